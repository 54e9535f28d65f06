package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"todoist/internal/domain/errors"
	"todoist/internal/domain/models"
)

type Storage struct {
	mu    sync.RWMutex
	users map[string]models.User
	tasks map[string]models.TaskRecord
}

func NewStorage() *Storage {
	return &Storage{
		users: make(map[string]models.User),
		tasks: make(map[string]models.TaskRecord),
	}
}

func (s *Storage) Close() error {
	return nil
}

func (s *Storage) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return errors.ErrUserAlreadyExists
		}
	}
	if _, exists := s.users[user.ID]; exists {
		return errors.ErrUserAlreadyExists
	}
	s.users[user.ID] = *user
	return nil
}

func (s *Storage) GetUserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, errors.ErrUserNotFound
	}
	return &user, nil
}

func (s *Storage) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return &user, nil
		}
	}
	return nil, errors.ErrUserNotFound
}

// DeleteUser removes the user together with every task the user owns.
func (s *Storage) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[id]; !exists {
		return errors.ErrUserNotFound
	}
	delete(s.users, id)
	for taskID, task := range s.tasks {
		if task.UserID == id {
			delete(s.tasks, taskID)
		}
	}
	return nil
}

func (s *Storage) ListTasks(_ context.Context, userID string) ([]models.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := []models.TaskRecord{}
	for _, t := range s.tasks {
		if t.UserID == userID {
			tasks = append(tasks, cloneRecord(t))
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt > tasks[j].CreatedAt
	})
	return tasks, nil
}

func (s *Storage) GetTask(_ context.Context, userID, taskID string) (*models.TaskRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[taskID]
	if !exists || task.UserID != userID {
		return nil, errors.ErrNotFound
	}
	task = cloneRecord(task)
	return &task, nil
}

func (s *Storage) CreateTask(_ context.Context, task *models.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[task.UserID]; !exists {
		return errors.ErrUserNotFound
	}
	s.tasks[task.ID] = cloneRecord(*task)
	return nil
}

func (s *Storage) UpdateTask(_ context.Context, task *models.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.tasks[task.ID]
	if !exists || existing.UserID != task.UserID {
		return errors.ErrNotFound
	}
	updated := cloneRecord(*task)
	updated.CreatedAt = existing.CreatedAt
	s.tasks[task.ID] = updated
	return nil
}

func (s *Storage) DeleteTask(_ context.Context, userID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists || task.UserID != userID {
		return errors.ErrNotFound
	}
	delete(s.tasks, taskID)
	return nil
}

func cloneRecord(t models.TaskRecord) models.TaskRecord {
	t.DeadlineDay = cloneString(t.DeadlineDay)
	t.DeadlineMonth = cloneString(t.DeadlineMonth)
	t.DeadlineYear = cloneString(t.DeadlineYear)
	t.FormattedDeadline = cloneString(t.FormattedDeadline)
	return t
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
