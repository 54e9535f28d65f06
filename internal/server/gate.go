package server

import (
	stderrors "errors"
	"net/http"

	"todoist/internal/auth"
	"todoist/internal/domain/errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	userIDKey   = "userID"
	tokenCookie = "jwt_token"
)

// AuthGate rejects requests without a valid identity token and stores the
// authenticated user id in the context.
func AuthGate(tokens *auth.Tokenizer, log *logrus.Entry) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token, err := requestToken(ctx)
		if err != nil {
			unauthorized(ctx, err)
			return
		}

		claims, err := tokens.Parse(token)
		if err != nil {
			log.WithError(err).Debug("rejected identity token")
			unauthorized(ctx, err)
			return
		}

		ctx.Set(userIDKey, claims.UserID)
		ctx.Next()
	}
}

// requestToken reads the token from the Authorization header, falling back
// to the session cookie.
func requestToken(ctx *gin.Context) (string, error) {
	if token, ok := auth.BearerToken(ctx.GetHeader("Authorization")); ok {
		return token, nil
	}
	if cookie, err := ctx.Cookie(tokenCookie); err == nil && cookie != "" {
		return cookie, nil
	}
	return "", errors.ErrNoToken
}

// unauthorized answers 401 with the client message for err.
func unauthorized(ctx *gin.Context, err error) {
	message := "Token is invalid or expired"
	switch {
	case stderrors.Is(err, errors.ErrNoToken):
		message = "No token provided, authorization denied"
	case stderrors.Is(err, errors.ErrInvalidCredentials):
		message = "Invalid credentials"
	}
	ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}

// UserID returns the id AuthGate attached to the request.
func UserID(ctx *gin.Context) string {
	return ctx.GetString(userIDKey)
}
