// Package sqlite stores users and tasks in an embedded SQLite file, the
// default backend for single-node deployments.
package sqlite

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"todoist/internal/domain/errors"
	"todoist/internal/domain/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type userRow struct {
	ID        string  `gorm:"primaryKey"`
	Email     string  `gorm:"type:text COLLATE NOCASE;not null;uniqueIndex"`
	Password  string  `gorm:"not null"`
	Name      *string
	CreatedAt string `gorm:"not null"`
}

func (userRow) TableName() string { return "users" }

type taskRow struct {
	ID                string   `gorm:"primaryKey"`
	UserID            string   `gorm:"not null;index:idx_tasks_user_created,priority:1"`
	User              *userRow `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Text              string   `gorm:"not null"`
	Completed         int      `gorm:"not null"`
	Priority          string   `gorm:"not null"`
	DeadlineDay       *string
	DeadlineMonth     *string
	DeadlineYear      *string
	FormattedDeadline *string
	View              string `gorm:"not null"`
	CreatedAt         string `gorm:"not null;index:idx_tasks_user_created,priority:2,sort:desc"`
}

func (taskRow) TableName() string { return "tasks" }

type Storage struct {
	db  *gorm.DB
	log *logrus.Entry
}

// NewStorage opens (or creates) the database file at path and migrates the
// schema. Foreign keys are switched on so that deleting a user cascades.
func NewStorage(path string, log *logrus.Entry) (*Storage, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		log.WithError(err).Error("failed to open sqlite database")
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One writer at a time; SQLite serialises writes anyway.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRow{}, &taskRow{}); err != nil {
		_ = sqlDB.Close()
		log.WithError(err).Error("failed to migrate sqlite schema")
		return nil, err
	}

	s := &Storage{db: db, log: log.WithField("storage", "sqlite")}
	s.log.WithField("path", path).Info("sqlite database ready")
	return s, nil
}

func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	row := userRow{
		ID:        user.ID,
		Email:     user.Email,
		Password:  user.Password,
		Name:      models.NullIfEmpty(user.Name),
		CreatedAt: user.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return errors.ErrUserAlreadyExists
		}
		s.log.WithError(err).Error("failed to create user")
		return err
	}
	return nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, "id = ?", id)
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, "email = ?", email)
}

func (s *Storage) findUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where(query, arg).First(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrUserNotFound
		}
		s.log.WithError(err).Error("failed to get user")
		return nil, err
	}
	user := &models.User{
		ID:        row.ID,
		Email:     row.Email,
		Password:  row.Password,
		CreatedAt: row.CreatedAt,
	}
	if row.Name != nil {
		user.Name = *row.Name
	}
	return user, nil
}

func (s *Storage) DeleteUser(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&userRow{})
	if result.Error != nil {
		s.log.WithError(result.Error).Error("failed to delete user")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.ErrUserNotFound
	}
	return nil
}

func (s *Storage) ListTasks(ctx context.Context, userID string) ([]models.TaskRecord, error) {
	var rows []taskRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		s.log.WithError(err).Error("failed to list tasks")
		return nil, err
	}

	tasks := make([]models.TaskRecord, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.record())
	}
	return tasks, nil
}

func (s *Storage) GetTask(ctx context.Context, userID, taskID string) (*models.TaskRecord, error) {
	var row taskRow
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", taskID, userID).First(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound
		}
		s.log.WithError(err).Error("failed to get task")
		return nil, err
	}
	task := row.record()
	return &task, nil
}

func (s *Storage) CreateTask(ctx context.Context, task *models.TaskRecord) error {
	row := newTaskRow(task)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isForeignKey(err) {
			return errors.ErrUserNotFound
		}
		s.log.WithError(err).Error("failed to create task")
		return err
	}
	return nil
}

func (s *Storage) UpdateTask(ctx context.Context, task *models.TaskRecord) error {
	result := s.db.WithContext(ctx).
		Model(&taskRow{}).
		Where("id = ? AND user_id = ?", task.ID, task.UserID).
		Updates(map[string]interface{}{
			"text":               task.Text,
			"completed":          task.Completed,
			"priority":           task.Priority,
			"deadline_day":       task.DeadlineDay,
			"deadline_month":     task.DeadlineMonth,
			"deadline_year":      task.DeadlineYear,
			"formatted_deadline": task.FormattedDeadline,
			"view":               task.View,
		})
	if result.Error != nil {
		s.log.WithError(result.Error).Error("failed to update task")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.ErrNotFound
	}
	return nil
}

func (s *Storage) DeleteTask(ctx context.Context, userID, taskID string) error {
	result := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", taskID, userID).Delete(&taskRow{})
	if result.Error != nil {
		s.log.WithError(result.Error).Error("failed to delete task")
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.ErrNotFound
	}
	return nil
}

func newTaskRow(t *models.TaskRecord) taskRow {
	return taskRow{
		ID:                t.ID,
		UserID:            t.UserID,
		Text:              t.Text,
		Completed:         t.Completed,
		Priority:          t.Priority,
		DeadlineDay:       t.DeadlineDay,
		DeadlineMonth:     t.DeadlineMonth,
		DeadlineYear:      t.DeadlineYear,
		FormattedDeadline: t.FormattedDeadline,
		View:              t.View,
		CreatedAt:         t.CreatedAt,
	}
}

func (r taskRow) record() models.TaskRecord {
	return models.TaskRecord{
		ID:                r.ID,
		UserID:            r.UserID,
		Text:              r.Text,
		Completed:         r.Completed,
		Priority:          r.Priority,
		DeadlineDay:       r.DeadlineDay,
		DeadlineMonth:     r.DeadlineMonth,
		DeadlineYear:      r.DeadlineYear,
		FormattedDeadline: r.FormattedDeadline,
		View:              r.View,
		CreatedAt:         r.CreatedAt,
	}
}

func isDuplicate(err error) bool {
	return stderrors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKey(err error) bool {
	return stderrors.Is(err, gorm.ErrForeignKeyViolated) || strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
