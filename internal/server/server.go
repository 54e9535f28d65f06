package server

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"time"

	"todoist/internal/auth"
	"todoist/internal/domain/errors"
	"todoist/internal/domain/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// TaskService is the task store as seen by the handlers. Every call is
// scoped by the authenticated user id.
type TaskService interface {
	List(ctx context.Context, userID string) ([]models.Task, error)
	Get(ctx context.Context, userID, taskID string) (models.Task, error)
	Create(ctx context.Context, userID string, req models.CreateTaskRequest) (models.Task, error)
	Update(ctx context.Context, userID, taskID string, req models.UpdateTaskRequest) (models.Task, error)
	Delete(ctx context.Context, userID, taskID string) error
}

type TaskAPI struct {
	httpSrv  *http.Server
	users    UserRepository
	tasks    TaskService
	tokens   *auth.Tokenizer
	cfg      *Config
	log      *logrus.Entry
	validate *validator.Validate
	metrics  http.Handler
}

type Option func(*TaskAPI)

func WithLogger(log *logrus.Entry) Option {
	return func(api *TaskAPI) {
		api.log = log
	}
}

// WithMetricsHandler exposes h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(api *TaskAPI) {
		api.metrics = h
	}
}

func NewTaskAPI(users UserRepository, tasks TaskService, cfg *Config, opts ...Option) *TaskAPI {
	if users == nil || tasks == nil {
		return nil
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	discard := logrus.New()
	discard.SetOutput(io.Discard)

	api := &TaskAPI{
		httpSrv: &http.Server{
			Addr:              cfg.ListenAddr(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		users:    users,
		tasks:    tasks,
		tokens:   auth.NewTokenizer(cfg.JWTSecret, time.Duration(cfg.TokenTTL)),
		cfg:      cfg,
		log:      logrus.NewEntry(discard),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(api)
	}

	api.configRoutes()

	return api
}

func (api *TaskAPI) Start() error {
	if api.httpSrv == nil {
		return errors.ErrInternalServer
	}

	api.log.WithField("addr", api.httpSrv.Addr).Info("http server listening")
	if err := api.httpSrv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (api *TaskAPI) Shutdown(ctx context.Context) error {
	return api.httpSrv.Shutdown(ctx)
}

func (api *TaskAPI) configRoutes() {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	if err := router.SetTrustedProxies(api.cfg.TrustedProxies); err != nil {
		api.log.WithError(err).Warn("invalid trusted proxies, trusting none")
		_ = router.SetTrustedProxies(nil)
	}

	router.Use(
		gin.Recovery(),
		RequestLogger(api.log),
		cors.New(api.corsConfig()),
		GzipRequestDecompress(),
		GzipResponseCompress(),
	)
	if api.cfg.RateLimit > 0 {
		router.Use(RateLimit(api.cfg.RateLimit, api.cfg.RateBurst))
	}

	router.NoRoute(func(ctx *gin.Context) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Endpoint not found"})
	})
	router.NoMethod(func(ctx *gin.Context) {
		ctx.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})

	router.GET("/", api.root)
	router.GET("/health", api.health)
	if api.metrics != nil {
		router.GET("/metrics", gin.WrapH(api.metrics))
	}

	gate := AuthGate(api.tokens, api.log)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/signup", api.signup)
		authGroup.POST("/login", api.login)
		authGroup.GET("/me", gate, api.me)
		authGroup.DELETE("/me", gate, api.deleteMe)
	}

	tasks := router.Group("/tasks", gate)
	{
		tasks.GET("", api.getTasks)
		tasks.GET("/:taskID", api.getTask)
		tasks.POST("", api.createTask)
		tasks.PUT("/:taskID", api.updateTask)
		tasks.DELETE("/:taskID", api.deleteTask)
	}

	api.httpSrv.Handler = router
}

// corsConfig allows the configured origins by exact match; "*" allows any.
// Requests without an Origin header are never subject to CORS.
func (api *TaskAPI) corsConfig() cors.Config {
	origins := api.cfg.AllowedOrigins
	return cors.Config{
		AllowOriginFunc: func(origin string) bool {
			for _, allowed := range origins {
				if allowed == "*" || strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Content-Encoding", "Accept-Encoding"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

func (api *TaskAPI) root(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"message": "Todoist Backend API",
		"health":  "/health",
		"docs":    "POST /auth/signup, POST /auth/login, GET/DELETE /auth/me, GET/POST/PUT/DELETE /tasks",
	})
}

func (api *TaskAPI) health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "OK", "message": "Server is running!"})
}

func (api *TaskAPI) signup(ctx *gin.Context) {
	var req models.SignupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errors.ErrBadRequest.Error()})
		return
	}
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := api.validate.Struct(req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": validationErrorToErrorResponse(err).Error()})
		return
	}

	existing, err := api.users.GetUserByEmail(ctx.Request.Context(), req.Email)
	if err != nil && !stderrors.Is(err, errors.ErrUserNotFound) {
		api.serverError(ctx, "Failed to create user", err)
		return
	}
	if existing != nil {
		ctx.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		api.serverError(ctx, "Failed to create user", err)
		return
	}

	user := &models.User{
		ID:        uuid.New().String(),
		Email:     req.Email,
		Password:  string(hash),
		Name:      req.Name,
		CreatedAt: time.Now().UTC().Format(models.TimestampLayout),
	}
	if err := api.users.CreateUser(ctx.Request.Context(), user); err != nil {
		if stderrors.Is(err, errors.ErrUserAlreadyExists) {
			ctx.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
			return
		}
		api.serverError(ctx, "Failed to create user", err)
		return
	}

	token, err := api.issueToken(ctx, user)
	if err != nil {
		api.serverError(ctx, "Failed to create user", err)
		return
	}

	api.log.WithField("user_id", user.ID).Info("user signed up")
	ctx.JSON(http.StatusCreated, gin.H{
		"message": "User created successfully",
		"token":   token,
		"user":    user,
	})
}

func (api *TaskAPI) login(ctx *gin.Context) {
	var req models.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errors.ErrBadRequest.Error()})
		return
	}
	req.Email = normalizeEmail(req.Email)
	if err := api.validate.Struct(req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": validationErrorToErrorResponse(err).Error()})
		return
	}

	user, err := api.authenticate(ctx.Request.Context(), req.Email, req.Password)
	if err != nil {
		if stderrors.Is(err, errors.ErrInvalidCredentials) {
			unauthorized(ctx, err)
			return
		}
		api.serverError(ctx, "Failed to log in", err)
		return
	}

	token, err := api.issueToken(ctx, user)
	if err != nil {
		api.serverError(ctx, "Failed to log in", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   token,
		"user":    user,
	})
}

// authenticate returns ErrInvalidCredentials for both an unknown email and a
// wrong password.
func (api *TaskAPI) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := api.users.GetUserByEmail(ctx, email)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			return nil, errors.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, errors.ErrInvalidCredentials
	}
	return user, nil
}

func (api *TaskAPI) me(ctx *gin.Context) {
	user, err := api.users.GetUserByID(ctx.Request.Context(), UserID(ctx))
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		api.serverError(ctx, "Failed to fetch user", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"user": user})
}

func (api *TaskAPI) deleteMe(ctx *gin.Context) {
	if err := api.users.DeleteUser(ctx.Request.Context(), UserID(ctx)); err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		api.serverError(ctx, "Failed to delete user", err)
		return
	}
	ctx.SetCookie(tokenCookie, "", -1, "/", "", api.secureCookies(), true)
	ctx.JSON(http.StatusOK, gin.H{"message": "Account deleted successfully"})
}

func (api *TaskAPI) issueToken(ctx *gin.Context, user *models.User) (string, error) {
	token, err := api.tokens.Generate(user)
	if err != nil {
		return "", err
	}
	maxAge := int(time.Duration(api.cfg.TokenTTL) / time.Second)
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(tokenCookie, token, maxAge, "/", "", api.secureCookies(), true)
	return token, nil
}

func (api *TaskAPI) secureCookies() bool {
	return api.cfg.Env == "prod"
}

func (api *TaskAPI) getTasks(ctx *gin.Context) {
	tasks, err := api.tasks.List(ctx.Request.Context(), UserID(ctx))
	if err != nil {
		api.respondError(ctx, "Failed to fetch tasks", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (api *TaskAPI) getTask(ctx *gin.Context) {
	task, err := api.tasks.Get(ctx.Request.Context(), UserID(ctx), ctx.Param("taskID"))
	if err != nil {
		api.respondError(ctx, "Failed to fetch task", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"task": task})
}

func (api *TaskAPI) createTask(ctx *gin.Context) {
	var req models.CreateTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errors.ErrBadRequest.Error()})
		return
	}
	if err := api.validate.Struct(req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": validationErrorToErrorResponse(err).Error()})
		return
	}

	task, err := api.tasks.Create(ctx.Request.Context(), UserID(ctx), req)
	if err != nil {
		api.respondError(ctx, "Failed to create task", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{
		"message": "Task created successfully",
		"task":    task,
	})
}

func (api *TaskAPI) updateTask(ctx *gin.Context) {
	var req models.UpdateTaskRequest
	// An empty body updates nothing.
	if err := ctx.ShouldBindJSON(&req); err != nil && !stderrors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errors.ErrBadRequest.Error()})
		return
	}

	task, err := api.tasks.Update(ctx.Request.Context(), UserID(ctx), ctx.Param("taskID"), req)
	if err != nil {
		api.respondError(ctx, "Failed to update task", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"message": "Task updated successfully",
		"task":    task,
	})
}

func (api *TaskAPI) deleteTask(ctx *gin.Context) {
	if err := api.tasks.Delete(ctx.Request.Context(), UserID(ctx), ctx.Param("taskID")); err != nil {
		api.respondError(ctx, "Failed to delete task", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Task deleted successfully"})
}

// respondError maps task store errors to a status. Anything that is not a
// validation or not-found error is reported with the opaque failMessage.
func (api *TaskAPI) respondError(ctx *gin.Context, failMessage string, err error) {
	var verr *errors.ValidationError
	switch {
	case stderrors.As(err, &verr):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
	case stderrors.Is(err, errors.ErrNotFound):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
	default:
		api.serverError(ctx, failMessage, err)
	}
}

func (api *TaskAPI) serverError(ctx *gin.Context, failMessage string, err error) {
	api.log.WithError(err).WithFields(logrus.Fields{
		"path":    ctx.FullPath(),
		"user_id": UserID(ctx),
	}).Error(failMessage)
	_ = ctx.Error(err)
	ctx.JSON(http.StatusInternalServerError, gin.H{"error": failMessage})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validationErrorToErrorResponse(err error) error {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, verr := range verrs {
			switch verr.Field() {
			case "Email":
				return errors.NewValidationError("email", errors.ErrInvalidEmail.Error())
			case "Password":
				return errors.NewValidationError("password", errors.ErrInvalidPassword.Error())
			case "Name":
				return errors.NewValidationError("name", errors.ErrInvalidName.Error())
			case "Text":
				return errors.NewValidationError("text", "Task text is required")
			}
		}
	}
	return errors.ErrValidation
}
