// Package testutil holds test helpers shared by the storage backends.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"todoist/internal/domain/errors"
	"todoist/internal/domain/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Storage is the method set every backend provides.
type Storage interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error

	ListTasks(ctx context.Context, userID string) ([]models.TaskRecord, error)
	GetTask(ctx context.Context, userID, taskID string) (*models.TaskRecord, error)
	CreateTask(ctx context.Context, task *models.TaskRecord) error
	UpdateTask(ctx context.Context, task *models.TaskRecord) error
	DeleteTask(ctx context.Context, userID, taskID string) error
}

func NewUser() *models.User {
	id := uuid.New().String()
	return &models.User{
		ID:        id,
		Email:     fmt.Sprintf("%s@example.com", id[:8]),
		Password:  "hash",
		Name:      "Test User",
		CreatedAt: time.Now().UTC().Format(models.TimestampLayout),
	}
}

func NewTaskRecord(userID, text string, createdAt time.Time) *models.TaskRecord {
	return &models.TaskRecord{
		ID:        uuid.New().String(),
		UserID:    userID,
		Text:      text,
		Priority:  models.DefaultPriority,
		View:      models.DefaultView,
		CreatedAt: createdAt.UTC().Format(models.TimestampLayout),
	}
}

func strPtr(s string) *string { return &s }

// RunRepositoryTests exercises the persistence contract. newStorage must
// return an empty storage.
func RunRepositoryTests(t *testing.T, newStorage func(t *testing.T) Storage) {
	ctx := context.Background()

	t.Run("users", func(t *testing.T) {
		s := newStorage(t)
		user := NewUser()
		require.NoError(t, s.CreateUser(ctx, user))

		byID, err := s.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.Email, byID.Email)
		assert.Equal(t, user.Password, byID.Password)
		assert.Equal(t, user.Name, byID.Name)

		byEmail, err := s.GetUserByEmail(ctx, user.Email)
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)

		dup := NewUser()
		dup.Email = user.Email
		assert.Equal(t, errors.ErrUserAlreadyExists, s.CreateUser(ctx, dup))

		_, err = s.GetUserByID(ctx, uuid.New().String())
		assert.Equal(t, errors.ErrUserNotFound, err)
		_, err = s.GetUserByEmail(ctx, "nobody@example.com")
		assert.Equal(t, errors.ErrUserNotFound, err)
	})

	t.Run("task round trip", func(t *testing.T) {
		s := newStorage(t)
		user := NewUser()
		require.NoError(t, s.CreateUser(ctx, user))

		task := NewTaskRecord(user.ID, "Buy milk", time.Now())
		task.DeadlineDay = strPtr("3")
		task.FormattedDeadline = strPtr("")
		require.NoError(t, s.CreateTask(ctx, task))

		got, err := s.GetTask(ctx, user.ID, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task, got)
		assert.Nil(t, got.DeadlineMonth)
		require.NotNil(t, got.FormattedDeadline)
		assert.Equal(t, "", *got.FormattedDeadline)
	})

	t.Run("list is scoped and newest first", func(t *testing.T) {
		s := newStorage(t)
		alice, bob := NewUser(), NewUser()
		require.NoError(t, s.CreateUser(ctx, alice))
		require.NoError(t, s.CreateUser(ctx, bob))

		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		var ids []string
		for i := 0; i < 3; i++ {
			task := NewTaskRecord(alice.ID, fmt.Sprintf("task %d", i), base.Add(time.Duration(i)*time.Microsecond))
			require.NoError(t, s.CreateTask(ctx, task))
			ids = append(ids, task.ID)
		}
		require.NoError(t, s.CreateTask(ctx, NewTaskRecord(bob.ID, "bob", base)))

		tasks, err := s.ListTasks(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, tasks, 3)
		assert.Equal(t, ids[2], tasks[0].ID)
		assert.Equal(t, ids[1], tasks[1].ID)
		assert.Equal(t, ids[0], tasks[2].ID)

		empty, err := s.ListTasks(ctx, uuid.New().String())
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})

	t.Run("ownership", func(t *testing.T) {
		s := newStorage(t)
		owner, other := NewUser(), NewUser()
		require.NoError(t, s.CreateUser(ctx, owner))
		require.NoError(t, s.CreateUser(ctx, other))

		task := NewTaskRecord(owner.ID, "mine", time.Now())
		require.NoError(t, s.CreateTask(ctx, task))

		_, err := s.GetTask(ctx, other.ID, task.ID)
		assert.Equal(t, errors.ErrNotFound, err)

		stolen := *task
		stolen.UserID = other.ID
		stolen.Text = "stolen"
		assert.Equal(t, errors.ErrNotFound, s.UpdateTask(ctx, &stolen))
		assert.Equal(t, errors.ErrNotFound, s.DeleteTask(ctx, other.ID, task.ID))

		got, err := s.GetTask(ctx, owner.ID, task.ID)
		require.NoError(t, err)
		assert.Equal(t, "mine", got.Text)
	})

	t.Run("update overwrites every column", func(t *testing.T) {
		s := newStorage(t)
		user := NewUser()
		require.NoError(t, s.CreateUser(ctx, user))

		task := NewTaskRecord(user.ID, "before", time.Now())
		task.DeadlineYear = strPtr("2027")
		task.FormattedDeadline = strPtr("2027")
		require.NoError(t, s.CreateTask(ctx, task))

		task.Text = "after"
		task.Completed = 1
		task.Priority = ""
		task.DeadlineDay = strPtr("9")
		task.DeadlineYear = nil
		task.FormattedDeadline = nil
		task.View = "today"
		require.NoError(t, s.UpdateTask(ctx, task))

		got, err := s.GetTask(ctx, user.ID, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task, got)

		missing := NewTaskRecord(user.ID, "missing", time.Now())
		assert.Equal(t, errors.ErrNotFound, s.UpdateTask(ctx, missing))
	})

	t.Run("delete", func(t *testing.T) {
		s := newStorage(t)
		user := NewUser()
		require.NoError(t, s.CreateUser(ctx, user))

		task := NewTaskRecord(user.ID, "gone", time.Now())
		require.NoError(t, s.CreateTask(ctx, task))

		require.NoError(t, s.DeleteTask(ctx, user.ID, task.ID))
		assert.Equal(t, errors.ErrNotFound, s.DeleteTask(ctx, user.ID, task.ID))
		_, err := s.GetTask(ctx, user.ID, task.ID)
		assert.Equal(t, errors.ErrNotFound, err)
	})

	t.Run("deleting a user removes their tasks", func(t *testing.T) {
		s := newStorage(t)
		user := NewUser()
		require.NoError(t, s.CreateUser(ctx, user))
		task := NewTaskRecord(user.ID, "orphan", time.Now())
		require.NoError(t, s.CreateTask(ctx, task))

		require.NoError(t, s.DeleteUser(ctx, user.ID))
		assert.Equal(t, errors.ErrUserNotFound, s.DeleteUser(ctx, user.ID))

		_, err := s.GetTask(ctx, user.ID, task.ID)
		assert.Equal(t, errors.ErrNotFound, err)
		tasks, err := s.ListTasks(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, tasks)
	})

	t.Run("task for unknown user is rejected", func(t *testing.T) {
		s := newStorage(t)
		err := s.CreateTask(ctx, NewTaskRecord(uuid.New().String(), "nobody", time.Now()))
		assert.Equal(t, errors.ErrUserNotFound, err)
	})
}
