package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store wraps the gorm connection with the queries the pipeline and the API
// need. All task mutations go through here so that updated_at is bumped
// consistently and completed_at tracks terminal statuses.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// NewTaskToken returns the external task identifier handed to clients.
func NewTaskToken() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

func (s *Store) CreateTask(ctx context.Context, task *GenerationTask) error {
	if task.TaskID == "" {
		task.TaskID = NewTaskToken()
	}
	if task.Status == "" {
		task.Status = StatusPending
	}

	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("error creating generation task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id uint) (*GenerationTask, error) {
	var task GenerationTask
	if err := s.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *Store) GetTaskByToken(ctx context.Context, token string) (*GenerationTask, error) {
	var task GenerationTask
	if err := s.db.WithContext(ctx).First(&task, "task_id = ?", token).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns tasks newest first. A userID of 0 lists all tasks.
func (s *Store) ListTasks(ctx context.Context, userID int) ([]GenerationTask, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if userID != 0 {
		query = query.Where("user_id = ?", userID)
	}

	var tasks []GenerationTask
	if err := query.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("error listing generation tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTaskStatus moves a task to the given status. It always bumps
// updated_at, sets completed_at on entry into a terminal status, and clears
// it when a task is reopened.
func (s *Store) UpdateTaskStatus(ctx context.Context, id uint, status string) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if IsTerminalStatus(status) {
		updates["completed_at"] = time.Now().UTC()
	} else {
		updates["completed_at"] = nil
	}

	if err := s.db.WithContext(ctx).Model(&GenerationTask{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		slog.Error("error updating task status", "task", id, "status", status, "error", err)
		return err
	}
	return nil
}

// AppendTaskError appends a timestamped line to the task's error log without
// overwriting earlier entries.
func (s *Store) AppendTaskError(ctx context.Context, id uint, message string) error {
	entry := fmt.Sprintf("\n[%s] %s", time.Now().UTC().Format(time.RFC3339), message)

	err := s.db.WithContext(ctx).Model(&GenerationTask{}).Where("id = ?", id).Updates(map[string]any{
		"error_log":  gorm.Expr("COALESCE(error_log, '') || ?", entry),
		"updated_at": time.Now().UTC(),
	}).Error
	if err != nil {
		slog.Error("error appending to task error log", "task", id, "error", err)
		return err
	}
	return nil
}

func (s *Store) CreateResults(ctx context.Context, results []GenerationResult) error {
	if len(results) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&results).Error; err != nil {
		return fmt.Errorf("error storing generation results: %w", err)
	}
	return nil
}

// GetResults returns all persona rows for a task in insertion order.
func (s *Store) GetResults(ctx context.Context, taskID uint) ([]GenerationResult, error) {
	var results []GenerationResult
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("id ASC").Find(&results).Error; err != nil {
		return nil, fmt.Errorf("error loading generation results: %w", err)
	}
	return results, nil
}

func (s *Store) CountResults(ctx context.Context, taskID uint) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&GenerationResult{}).Where("task_id = ?", taskID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("error counting generation results: %w", err)
	}
	return count, nil
}

func (s *Store) SetResultBaseImage(ctx context.Context, resultID uint, url string) error {
	if err := s.db.WithContext(ctx).Model(&GenerationResult{}).Where("id = ?", resultID).Update("base_image_url", url).Error; err != nil {
		return fmt.Errorf("error saving base image url: %w", err)
	}
	return nil
}

func (s *Store) SetResultImages(ctx context.Context, resultID uint, urls []string) error {
	data, err := json.Marshal(urls)
	if err != nil {
		return fmt.Errorf("error encoding image urls: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&GenerationResult{}).Where("id = ?", resultID).Update("images", data).Error; err != nil {
		return fmt.Errorf("error saving image urls: %w", err)
	}
	return nil
}

// ResultImages decodes the stored image URL array. An empty or null column
// decodes to nil.
func ResultImages(r *GenerationResult) []string {
	if len(r.Images) == 0 {
		return nil
	}
	var urls []string
	if err := json.Unmarshal(r.Images, &urls); err != nil {
		slog.Warn("unreadable images column", "result", r.ID, "error", err)
		return nil
	}
	return urls
}

// ListTasksByStatus returns tasks in the given status whose updated_at is
// older than the cutoff. A zero cutoff matches every task in the status.
func (s *Store) ListTasksByStatus(ctx context.Context, status string, updatedBefore time.Time) ([]GenerationTask, error) {
	query := s.db.WithContext(ctx).Where("status = ?", status)
	if !updatedBefore.IsZero() {
		query = query.Where("updated_at < ?", updatedBefore)
	}

	var tasks []GenerationTask
	if err := query.Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("error listing tasks in status %s: %w", status, err)
	}
	return tasks, nil
}

// BioSettings holds the per-platform style instructions passed to the
// content generation workflow.
type BioSettings struct {
	Facebook  string
	Instagram string
	X         string
	Tiktok    string
}

func (s *Store) GetBioSettings(ctx context.Context) (BioSettings, error) {
	settings := BioSettings{}
	var err error
	if settings.Facebook, err = s.GetSetting(ctx, "bio_prompt_facebook", ""); err != nil {
		return settings, err
	}
	if settings.Instagram, err = s.GetSetting(ctx, "bio_prompt_instagram", ""); err != nil {
		return settings, err
	}
	if settings.X, err = s.GetSetting(ctx, "bio_prompt_x", ""); err != nil {
		return settings, err
	}
	if settings.Tiktok, err = s.GetSetting(ctx, "bio_prompt_tiktok", ""); err != nil {
		return settings, err
	}
	return settings, nil
}

func (s *Store) GetSetting(ctx context.Context, key, fallback string) (string, error) {
	var setting Setting
	if err := s.db.WithContext(ctx).First(&setting, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fallback, nil
		}
		return fallback, fmt.Errorf("error reading setting %s: %w", key, err)
	}
	return setting.Value, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	var setting Setting
	err := s.db.WithContext(ctx).Where(Setting{Key: key}).Assign(Setting{Value: value}).FirstOrCreate(&setting).Error
	if err != nil {
		return fmt.Errorf("error writing setting %s: %w", key, err)
	}
	return nil
}

func (s *Store) GetBoolConfig(ctx context.Context, key string, fallback bool) bool {
	var cfg BoolConfig
	if err := s.db.WithContext(ctx).First(&cfg, "key = ?", key).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Error("error reading config flag", "key", key, "error", err)
		}
		return fallback
	}
	return cfg.Value
}

func (s *Store) GetIntConfig(ctx context.Context, key string, fallback int) int {
	var cfg IntConfig
	if err := s.db.WithContext(ctx).First(&cfg, "key = ?", key).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Error("error reading int config", "key", key, "error", err)
		}
		return fallback
	}
	return cfg.Value
}
