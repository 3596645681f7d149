package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LeaseTask claims the oldest task in fromStatus and moves it to toStatus in
// a single transaction, returning the claimed row. With several workers
// running against postgres, FOR UPDATE SKIP LOCKED guarantees each row goes
// to exactly one worker; other transactions skip held rows instead of
// blocking on them. Returns (nil, nil) when nothing is claimable.
//
// The row lock is released when the claim commits. Crash recovery after that
// point is the watchdog's job, keyed off updated_at.
func (s *Store) LeaseTask(ctx context.Context, fromStatus, toStatus string) (*GenerationTask, error) {
	var task *GenerationTask

	err := s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		query := txn.Where("status = ?", fromStatus).Order("created_at ASC").Limit(1)
		if txn.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var claimed GenerationTask
		if err := query.First(&claimed).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("error selecting claimable task: %w", err)
		}

		now := time.Now().UTC()
		err := txn.Model(&GenerationTask{}).Where("id = ?", claimed.ID).Updates(map[string]any{
			"status":     toStatus,
			"updated_at": now,
		}).Error
		if err != nil {
			return fmt.Errorf("error claiming task %d: %w", claimed.ID, err)
		}

		claimed.Status = toStatus
		claimed.UpdatedAt = now
		task = &claimed
		return nil
	})
	if err != nil {
		return nil, err
	}

	return task, nil
}
