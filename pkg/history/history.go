// Package history provides an optional gorm-backed ledger of submitted
// tasks for diagnostics. The dispatcher records a row per submission and
// updates it when the task settles; nothing in the execution path depends on
// the ledger being present.
package history

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// TaskStatus is the ledger state of a submitted task.
type TaskStatus string

const (
	StatusSubmitted TaskStatus = "submitted"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// maxErrorLength bounds stored error messages so a chatty remote stderr
// cannot bloat the ledger.
const maxErrorLength = 2048

// TaskRecord is one submitted task.
type TaskRecord struct {
	TaskID      string     `gorm:"primaryKey;size:64"`
	Function    string     `gorm:"index;size:255;not null"`
	Endpoint    string     `gorm:"size:36"`
	Status      TaskStatus `gorm:"index;size:20;default:'submitted'"`
	ExitCode    int        `gorm:"default:0"`
	LastError   string     `gorm:"type:text"`
	SubmittedAt time.Time  `gorm:"autoCreateTime"`
	CompletedAt *time.Time
}

// Store is a gorm-backed task ledger.
type Store struct {
	db *gorm.DB
}

// NewStore creates a ledger on db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the ledger table.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&TaskRecord{})
}

// RecordSubmitted inserts a row for a freshly submitted task.
func (s *Store) RecordSubmitted(ctx context.Context, rec *TaskRecord) error {
	if rec.Status == "" {
		rec.Status = StatusSubmitted
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

// RecordSettled marks a task completed or failed.
func (s *Store) RecordSettled(ctx context.Context, taskID string, exitCode int, taskErr error) error {
	now := time.Now()
	updates := map[string]any{
		"status":       StatusCompleted,
		"exit_code":    exitCode,
		"completed_at": &now,
	}
	if taskErr != nil {
		updates["status"] = StatusFailed
		updates["last_error"] = truncate(taskErr.Error(), maxErrorLength)
	}
	return s.db.WithContext(ctx).
		Model(&TaskRecord{}).
		Where("task_id = ?", taskID).
		Updates(updates).Error
}

// Get returns the record for taskID, or nil when unknown.
func (s *Store) Get(ctx context.Context, taskID string) (*TaskRecord, error) {
	var rec TaskRecord
	err := s.db.WithContext(ctx).First(&rec, "task_id = ?", taskID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// List returns the most recent records for a function, newest first. An
// empty function name lists across all functions.
func (s *Store) List(ctx context.Context, function string, limit int) ([]*TaskRecord, error) {
	q := s.db.WithContext(ctx).Model(&TaskRecord{}).Order("submitted_at DESC")
	if function != "" {
		q = q.Where("function = ?", function)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []*TaskRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
