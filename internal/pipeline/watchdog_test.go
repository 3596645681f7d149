package pipeline_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"avatar-backend/internal/database"
	"avatar-backend/internal/pipeline"
)

func makeTask(t *testing.T, store *database.Store, status string) *database.GenerationTask {
	task := &database.GenerationTask{
		UserID:             1,
		PersonaDescription: "test",
		BioLanguage:        "english",
		NumberToGenerate:   10,
		ImagesPerPersona:   4,
	}
	require.NoError(t, store.CreateTask(context.Background(), task))
	if status != database.StatusPending {
		require.NoError(t, store.UpdateTaskStatus(context.Background(), task.ID, status))
	}
	return task
}

func backdate(t *testing.T, db *gorm.DB, taskID uint, age time.Duration) {
	err := db.Model(&database.GenerationTask{}).Where("id = ?", taskID).
		Update("updated_at", time.Now().UTC().Add(-age)).Error
	require.NoError(t, err)
}

func addResults(t *testing.T, store *database.Store, taskID uint, total, withImages int) {
	ctx := context.Background()

	results := make([]database.GenerationResult, total)
	for i := range results {
		results[i] = database.GenerationResult{
			TaskID:      taskID,
			BatchNumber: 1,
			Firstname:   "Test",
			Lastname:    "Persona",
			Gender:      "f",
		}
	}
	require.NoError(t, store.CreateResults(ctx, results))

	stored, err := store.GetResults(ctx, taskID)
	require.NoError(t, err)
	for i := 0; i < withImages; i++ {
		urls, err := json.Marshal([]string{"memory://avatars/a.png"})
		require.NoError(t, err)
		require.NoError(t, store.DB().Model(&database.GenerationResult{}).
			Where("id = ?", stored[i].ID).Update("images", urls).Error)
	}
}

func taskStatus(t *testing.T, store *database.Store, id uint) string {
	task, err := store.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task.Status
}

func TestRecoverStuckDataTask(t *testing.T) {
	db := createDB(t)
	store := database.NewStore(db)

	stuck := makeTask(t, store, database.StatusGeneratingData)
	backdate(t, db, stuck.ID, 30*time.Minute)

	fresh := makeTask(t, store, database.StatusGeneratingData)

	recovered, err := pipeline.RecoverStuckTasks(context.Background(), store, 15*time.Minute, false)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	assert.Equal(t, database.StatusPending, taskStatus(t, store, stuck.ID))
	assert.Equal(t, database.StatusGeneratingData, taskStatus(t, store, fresh.ID))

	task, err := store.GetTask(context.Background(), stuck.ID)
	require.NoError(t, err)
	assert.Contains(t, task.ErrorLog, "Task was stuck and auto-recovered by system.")
}

func TestRecoverStuckImageTaskWithNoResults(t *testing.T) {
	db := createDB(t)
	store := database.NewStore(db)

	stuck := makeTask(t, store, database.StatusGeneratingImages)
	backdate(t, db, stuck.ID, 30*time.Minute)

	recovered, err := pipeline.RecoverStuckTasks(context.Background(), store, 15*time.Minute, false)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	// Without persona data the task has to restart from data generation.
	assert.Equal(t, database.StatusPending, taskStatus(t, store, stuck.ID))
}

func TestRecoverStuckImageTaskWithPartialImages(t *testing.T) {
	db := createDB(t)
	store := database.NewStore(db)

	stuck := makeTask(t, store, database.StatusGeneratingImages)
	addResults(t, store, stuck.ID, 4, 2)
	backdate(t, db, stuck.ID, 30*time.Minute)

	recovered, err := pipeline.RecoverStuckTasks(context.Background(), store, 15*time.Minute, false)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	assert.Equal(t, database.StatusDataGenerated, taskStatus(t, store, stuck.ID))
}

func TestRecoverStuckImageTaskWithAllImages(t *testing.T) {
	db := createDB(t)
	store := database.NewStore(db)

	stuck := makeTask(t, store, database.StatusGeneratingImages)
	addResults(t, store, stuck.ID, 3, 3)
	backdate(t, db, stuck.ID, 30*time.Minute)

	recovered, err := pipeline.RecoverStuckTasks(context.Background(), store, 15*time.Minute, false)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	assert.Equal(t, database.StatusCompleted, taskStatus(t, store, stuck.ID))

	task, err := store.GetTask(context.Background(), stuck.ID)
	require.NoError(t, err)
	assert.True(t, task.CompletedAt.Valid)
}

func TestRecoverReopensIncompleteCompletedTask(t *testing.T) {
	db := createDB(t)
	store := database.NewStore(db)

	incomplete := makeTask(t, store, database.StatusCompleted)
	addResults(t, store, incomplete.ID, 4, 1)

	finished := makeTask(t, store, database.StatusCompleted)
	addResults(t, store, finished.ID, 2, 2)

	empty := makeTask(t, store, database.StatusCompleted)

	recovered, err := pipeline.RecoverStuckTasks(context.Background(), store, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	assert.Equal(t, database.StatusDataGenerated, taskStatus(t, store, incomplete.ID))
	assert.Equal(t, database.StatusCompleted, taskStatus(t, store, finished.ID))
	assert.Equal(t, database.StatusCompleted, taskStatus(t, store, empty.ID))

	task, err := store.GetTask(context.Background(), incomplete.ID)
	require.NoError(t, err)
	assert.Contains(t, task.ErrorLog, "Task was incomplete and auto-recovered by system startup.")
	assert.False(t, task.CompletedAt.Valid)
}

func TestPeriodicPassSkipsCompletedAudit(t *testing.T) {
	db := createDB(t)
	store := database.NewStore(db)

	incomplete := makeTask(t, store, database.StatusCompleted)
	addResults(t, store, incomplete.ID, 4, 1)
	backdate(t, db, incomplete.ID, time.Hour)

	recovered, err := pipeline.RecoverStuckTasks(context.Background(), store, 15*time.Minute, false)
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)

	assert.Equal(t, database.StatusCompleted, taskStatus(t, store, incomplete.ID))
}

func TestRecoverIgnoresHealthyStatuses(t *testing.T) {
	db := createDB(t)
	store := database.NewStore(db)

	pending := makeTask(t, store, database.StatusPending)
	dataGenerated := makeTask(t, store, database.StatusDataGenerated)
	failed := makeTask(t, store, database.StatusFailed)
	backdate(t, db, pending.ID, time.Hour)
	backdate(t, db, dataGenerated.ID, time.Hour)
	backdate(t, db, failed.ID, time.Hour)

	recovered, err := pipeline.RecoverStuckTasks(context.Background(), store, 15*time.Minute, false)
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)

	assert.Equal(t, database.StatusPending, taskStatus(t, store, pending.ID))
	assert.Equal(t, database.StatusDataGenerated, taskStatus(t, store, dataGenerated.ID))
	assert.Equal(t, database.StatusFailed, taskStatus(t, store, failed.ID))
}

func TestStartupPassRecoversFreshStuckTasks(t *testing.T) {
	db := createDB(t)
	store := database.NewStore(db)

	// Just went stale; a zero threshold picks it up immediately.
	stuck := makeTask(t, store, database.StatusGeneratingData)
	backdate(t, db, stuck.ID, time.Second)

	recovered, err := pipeline.RecoverStuckTasks(context.Background(), store, 0, true)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	assert.Equal(t, database.StatusPending, taskStatus(t, store, stuck.ID))
}
