// Package taskstore owns task persistence rules: every operation is scoped by
// the owning user, optional fields get their defaults on create, updates merge
// by field presence, and rows are translated to the API shape.
package taskstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	apperr "todoist/internal/domain/errors"
	"todoist/internal/domain/models"

	"github.com/google/uuid"
)

// Repository persists task rows. Every lookup and write is keyed by both the
// task id and the owning user id; a row owned by someone else is reported as
// ErrNotFound.
type Repository interface {
	ListTasks(ctx context.Context, userID string) ([]models.TaskRecord, error)
	GetTask(ctx context.Context, userID, taskID string) (*models.TaskRecord, error)
	CreateTask(ctx context.Context, task *models.TaskRecord) error
	UpdateTask(ctx context.Context, task *models.TaskRecord) error
	DeleteTask(ctx context.Context, userID, taskID string) error
}

type Service interface {
	List(ctx context.Context, userID string) ([]models.Task, error)
	Get(ctx context.Context, userID, taskID string) (models.Task, error)
	Create(ctx context.Context, userID string, req models.CreateTaskRequest) (models.Task, error)
	Update(ctx context.Context, userID, taskID string, req models.UpdateTaskRequest) (models.Task, error)
	Delete(ctx context.Context, userID, taskID string) error
}

type Store struct {
	repo  Repository
	clock *clock
	newID func() string
}

type Option func(*Store)

// WithClock replaces the time source used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.clock.now = now
	}
}

func New(repo Repository, opts ...Option) *Store {
	s := &Store{
		repo:  repo,
		clock: &clock{now: time.Now},
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) List(ctx context.Context, userID string) ([]models.Task, error) {
	records, err := s.repo.ListTasks(ctx, userID)
	if err != nil {
		return nil, storeError("list tasks", err)
	}
	return models.ToTasks(records), nil
}

func (s *Store) Get(ctx context.Context, userID, taskID string) (models.Task, error) {
	record, err := s.find(ctx, userID, taskID)
	if err != nil {
		return models.Task{}, err
	}
	return record.ToTask(), nil
}

func (s *Store) Create(ctx context.Context, userID string, req models.CreateTaskRequest) (models.Task, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return models.Task{}, apperr.NewValidationError("text", "Task text is required")
	}

	record := &models.TaskRecord{
		ID:                s.newID(),
		UserID:            userID,
		Text:              text,
		Completed:         0,
		Priority:          orDefault(req.Priority, models.DefaultPriority),
		FormattedDeadline: models.NullIfEmpty(req.FormattedDeadline),
		View:              orDefault(req.View, models.DefaultView),
		CreatedAt:         s.clock.next().Format(models.TimestampLayout),
	}
	if req.Deadline != nil {
		record.DeadlineDay = models.NullIfEmpty(req.Deadline.Day)
		record.DeadlineMonth = models.NullIfEmpty(req.Deadline.Month)
		record.DeadlineYear = models.NullIfEmpty(req.Deadline.Year)
	}

	if err := s.repo.CreateTask(ctx, record); err != nil {
		return models.Task{}, storeError("create task", err)
	}
	return record.ToTask(), nil
}

func (s *Store) Update(ctx context.Context, userID, taskID string, req models.UpdateTaskRequest) (models.Task, error) {
	record, err := s.find(ctx, userID, taskID)
	if err != nil {
		return models.Task{}, err
	}

	if err := merge(record, req); err != nil {
		return models.Task{}, err
	}

	if err := s.repo.UpdateTask(ctx, record); err != nil {
		return models.Task{}, storeError("update task", err)
	}
	return record.ToTask(), nil
}

func (s *Store) Delete(ctx context.Context, userID, taskID string) error {
	if !validID(taskID) {
		return apperr.ErrNotFound
	}
	if err := s.repo.DeleteTask(ctx, userID, taskID); err != nil {
		return storeError("delete task", err)
	}
	return nil
}

func (s *Store) find(ctx context.Context, userID, taskID string) (*models.TaskRecord, error) {
	if !validID(taskID) {
		return nil, apperr.ErrNotFound
	}
	record, err := s.repo.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, storeError("get task", err)
	}
	return record, nil
}

// merge applies the fields present in req to record. Nullable columns accept
// an explicit null; the others reject it.
func merge(record *models.TaskRecord, req models.UpdateTaskRequest) error {
	if req.Text.Set {
		text := strings.TrimSpace(req.Text.Value)
		if req.Text.Null || text == "" {
			return apperr.NewValidationError("text", "Task text is required")
		}
		record.Text = text
	}
	if req.Completed.Set {
		if req.Completed.Null {
			return apperr.NewValidationError("completed", "completed must be a boolean")
		}
		record.Completed = models.BoolToInt(req.Completed.Value)
	}
	if req.Priority.Set {
		if req.Priority.Null {
			return apperr.NewValidationError("priority", "priority must be a string")
		}
		record.Priority = req.Priority.Value
	}
	if req.View.Set {
		if req.View.Null {
			return apperr.NewValidationError("view", "view must be a string")
		}
		record.View = req.View.Value
	}
	if req.Deadline != nil {
		if req.Deadline.Day.Set {
			record.DeadlineDay = req.Deadline.Day.Ptr()
		}
		if req.Deadline.Month.Set {
			record.DeadlineMonth = req.Deadline.Month.Ptr()
		}
		if req.Deadline.Year.Set {
			record.DeadlineYear = req.Deadline.Year.Ptr()
		}
	}
	if req.FormattedDeadline.Set {
		record.FormattedDeadline = req.FormattedDeadline.Ptr()
	}
	return nil
}

func storeError(op string, err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.ErrNotFound
	}
	if errors.Is(err, apperr.ErrStore) {
		return err
	}
	return apperr.NewStoreError(op, err)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// clock hands out strictly increasing timestamps so that creation order is
// also sort order, even for tasks created within the same microsecond.
type clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func (c *clock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
