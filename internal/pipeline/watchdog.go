package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"avatar-backend/internal/database"
)

const (
	// WatchdogInterval is how often the periodic repair pass runs.
	WatchdogInterval = 5 * time.Minute

	// StuckThreshold is how long a task may sit in a processing status
	// without updates before the periodic pass repairs it.
	StuckThreshold = 15 * time.Minute
)

// RecoverStuckTasks repairs tasks abandoned by crashed or hung workers.
// Tasks stuck in generating-data go back to pending. Tasks stuck in
// generating-images are routed by their actual progress: no personas means
// back to pending, all personas with images means the work finished and the
// task is completed, anything in between goes back to data-generated so the
// resumable image stage can pick it up.
//
// checkIncompleteCompleted additionally audits completed tasks whose
// personas are missing images and reopens them as data-generated. Only the
// startup pass does this, with a zero threshold so a restart reclaims
// abandoned work immediately.
//
// Returns the number of repaired tasks.
func RecoverStuckTasks(ctx context.Context, store *database.Store, threshold time.Duration, checkIncompleteCompleted bool) (int, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	recovered := 0

	if checkIncompleteCompleted {
		completedTasks, err := store.ListTasksByStatus(ctx, database.StatusCompleted, time.Time{})
		if err != nil {
			return recovered, err
		}

		for _, task := range completedTasks {
			results, err := store.GetResults(ctx, task.ID)
			if err != nil {
				slog.Error("watchdog could not load results", "task", task.TaskID, "error", err)
				continue
			}
			if len(results) == 0 {
				continue
			}

			withImages := countWithImages(results)
			if withImages == len(results) {
				continue
			}

			slog.Warn("completed task is missing images, reopening",
				"task", task.TaskID, "with_images", withImages, "total", len(results))

			if err := store.UpdateTaskStatus(ctx, task.ID, database.StatusDataGenerated); err != nil {
				continue
			}
			store.AppendTaskError(ctx, task.ID, "Task was incomplete and auto-recovered by system startup.") //nolint:errcheck
			recovered++
		}
	}

	stuckData, err := store.ListTasksByStatus(ctx, database.StatusGeneratingData, cutoff)
	if err != nil {
		return recovered, err
	}

	for _, task := range stuckData {
		slog.Warn("task stuck in generating-data, resetting to pending", "task", task.TaskID)

		if err := store.UpdateTaskStatus(ctx, task.ID, database.StatusPending); err != nil {
			continue
		}
		store.AppendTaskError(ctx, task.ID, "Task was stuck and auto-recovered by system.") //nolint:errcheck
		recovered++
	}

	stuckImages, err := store.ListTasksByStatus(ctx, database.StatusGeneratingImages, cutoff)
	if err != nil {
		return recovered, err
	}

	for _, task := range stuckImages {
		results, err := store.GetResults(ctx, task.ID)
		if err != nil {
			slog.Error("watchdog could not load results", "task", task.TaskID, "error", err)
			continue
		}

		var target string
		switch withImages := countWithImages(results); {
		case len(results) == 0:
			slog.Warn("task stuck in generating-images with no personas, resetting to pending", "task", task.TaskID)
			target = database.StatusPending
		case withImages == len(results):
			slog.Info("stuck task already has all images, completing", "task", task.TaskID, "personas", len(results))
			target = database.StatusCompleted
		default:
			slog.Warn("task stuck in generating-images, resetting to data-generated",
				"task", task.TaskID, "with_images", withImages, "total", len(results))
			target = database.StatusDataGenerated
		}

		if err := store.UpdateTaskStatus(ctx, task.ID, target); err != nil {
			continue
		}
		store.AppendTaskError(ctx, task.ID, "Task was stuck and auto-recovered by system.") //nolint:errcheck
		recovered++
	}

	if recovered > 0 {
		slog.Info(fmt.Sprintf("recovered %d stuck task(s)", recovered))
	}

	return recovered, nil
}

func countWithImages(results []database.GenerationResult) int {
	count := 0
	for i := range results {
		if len(database.ResultImages(&results[i])) > 0 {
			count++
		}
	}
	return count
}
