package db

import (
	"context"
	stderrors "errors"
	"time"

	"todoist/internal/domain/errors"
	"todoist/internal/domain/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const (
	queryTimeout = 15 * time.Second

	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

const taskColumns = `id, user_id, text, completed, priority, deadline_day, deadline_month, deadline_year, formatted_deadline, view, created_at`

type Storage struct {
	pool *pgxpool.Pool
	log  *logrus.Entry

	queryCreateTask     string
	queryGetTask        string
	queryListTasks      string
	queryUpdateTask     string
	queryDeleteTask     string
	queryCreateUser     string
	queryGetUserByID    string
	queryGetUserByEmail string
	queryDeleteUser     string
}

func NewStorage(ctx context.Context, connStr string, log *logrus.Entry) (*Storage, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.WithError(err).Error("failed to configure database pool")
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		log.WithError(err).Error("failed to connect to database")
		return nil, err
	}

	s := &Storage{
		pool:                pool,
		log:                 log.WithField("storage", "postgres"),
		queryCreateTask:     `INSERT INTO tasks (` + taskColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		queryGetTask:        `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND user_id = $2`,
		queryListTasks:      `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 ORDER BY created_at DESC`,
		queryUpdateTask:     `UPDATE tasks SET text = $1, completed = $2, priority = $3, deadline_day = $4, deadline_month = $5, deadline_year = $6, formatted_deadline = $7, view = $8 WHERE id = $9 AND user_id = $10`,
		queryDeleteTask:     `DELETE FROM tasks WHERE id = $1 AND user_id = $2`,
		queryCreateUser:     `INSERT INTO users (id, email, password, name, created_at) VALUES ($1, $2, $3, $4, $5)`,
		queryGetUserByID:    `SELECT id, email, password, COALESCE(name, ''), created_at FROM users WHERE id = $1`,
		queryGetUserByEmail: `SELECT id, email, password, COALESCE(name, ''), created_at FROM users WHERE lower(email) = lower($1)`,
		queryDeleteUser:     `DELETE FROM users WHERE id = $1`,
	}
	s.log.Info("database connection established")
	return s, nil
}

func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}

func (s *Storage) CreateTask(ctx context.Context, task *models.TaskRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, s.queryCreateTask,
		task.ID, task.UserID, task.Text, task.Completed, task.Priority,
		task.DeadlineDay, task.DeadlineMonth, task.DeadlineYear, task.FormattedDeadline,
		task.View, task.CreatedAt,
	)
	if err != nil {
		if pgCode(err) == foreignKeyViolation {
			return errors.ErrUserNotFound
		}
		s.log.WithError(err).Error("failed to create task")
		return err
	}
	s.log.WithField("task_id", task.ID).Debug("task created")
	return nil
}

func (s *Storage) GetTask(ctx context.Context, userID, taskID string) (*models.TaskRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	task, err := scanTask(s.pool.QueryRow(ctx, s.queryGetTask, taskID, userID))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		s.log.WithError(err).Error("failed to get task")
		return nil, err
	}
	return task, nil
}

func (s *Storage) ListTasks(ctx context.Context, userID string) ([]models.TaskRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, s.queryListTasks, userID)
	if err != nil {
		s.log.WithError(err).Error("failed to list tasks")
		return nil, err
	}
	defer rows.Close()

	tasks := []models.TaskRecord{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			s.log.WithError(err).Error("failed to read task row")
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		s.log.WithError(err).Error("failed to iterate task rows")
		return nil, err
	}
	return tasks, nil
}

func (s *Storage) UpdateTask(ctx context.Context, task *models.TaskRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ct, err := s.pool.Exec(ctx, s.queryUpdateTask,
		task.Text, task.Completed, task.Priority,
		task.DeadlineDay, task.DeadlineMonth, task.DeadlineYear, task.FormattedDeadline,
		task.View, task.ID, task.UserID,
	)
	if err != nil {
		s.log.WithError(err).Error("failed to update task")
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.ErrNotFound
	}
	s.log.WithField("task_id", task.ID).Debug("task updated")
	return nil
}

func (s *Storage) DeleteTask(ctx context.Context, userID, taskID string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ct, err := s.pool.Exec(ctx, s.queryDeleteTask, taskID, userID)
	if err != nil {
		s.log.WithError(err).Error("failed to delete task")
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.ErrNotFound
	}
	s.log.WithField("task_id", taskID).Debug("task deleted")
	return nil
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, s.queryCreateUser, user.ID, user.Email, user.Password, models.NullIfEmpty(user.Name), user.CreatedAt)
	if err != nil {
		if pgCode(err) == uniqueViolation {
			return errors.ErrUserAlreadyExists
		}
		s.log.WithError(err).Error("failed to create user")
		return err
	}
	s.log.WithField("user_id", user.ID).Debug("user created")
	return nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, s.queryGetUserByID, id)
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, s.queryGetUserByEmail, email)
}

func (s *Storage) getUser(ctx context.Context, query, arg string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	user := &models.User{}
	err := s.pool.QueryRow(ctx, query, arg).Scan(&user.ID, &user.Email, &user.Password, &user.Name, &user.CreatedAt)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrUserNotFound
		}
		s.log.WithError(err).Error("failed to get user")
		return nil, err
	}
	return user, nil
}

// DeleteUser removes the user; tasks go with it through ON DELETE CASCADE.
func (s *Storage) DeleteUser(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ct, err := s.pool.Exec(ctx, s.queryDeleteUser, id)
	if err != nil {
		s.log.WithError(err).Error("failed to delete user")
		return err
	}
	if ct.RowsAffected() == 0 {
		return errors.ErrUserNotFound
	}
	s.log.WithField("user_id", id).Debug("user deleted")
	return nil
}

func scanTask(row pgx.Row) (*models.TaskRecord, error) {
	task := &models.TaskRecord{}
	err := row.Scan(
		&task.ID, &task.UserID, &task.Text, &task.Completed, &task.Priority,
		&task.DeadlineDay, &task.DeadlineMonth, &task.DeadlineYear, &task.FormattedDeadline,
		&task.View, &task.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
