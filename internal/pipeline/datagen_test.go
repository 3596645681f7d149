package pipeline_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avatar-backend/internal/database"
	"avatar-backend/internal/flowise"
)

func personaBlob(count int, prefix string) string {
	var sb strings.Builder
	for i := 0; i < count; i++ {
		fmt.Fprintf(&sb,
			`{"firstname": "%s%d", "lastname": "Tester", "gender": "f", "bios": "{\"facebook_bio\": \"bio %d\"}"}`,
			prefix, i, i)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func newDataTask(t *testing.T, store *database.Store, count int) *database.GenerationTask {
	task := &database.GenerationTask{
		UserID:             7,
		PersonaDescription: "Scandinavian women in their 30s",
		BioLanguage:        "swedish",
		NumberToGenerate:   count,
		ImagesPerPersona:   4,
	}
	require.NoError(t, store.CreateTask(context.Background(), task))
	return task
}

func TestProcessDataTaskNoPendingTask(t *testing.T) {
	db := createDB(t)
	p, _, _ := newTestPipeline(db, &fakeContent{}, &fakeImages{})

	claimed, err := p.ProcessDataTask(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestProcessDataTaskSuccess(t *testing.T) {
	db := createDB(t)

	content := &fakeContent{
		generatePersonas: func(req flowise.PersonaRequest) (string, error) {
			return personaBlob(req.Amount, "P"), nil
		},
	}
	p, store, _ := newTestPipeline(db, content, &fakeImages{})
	task := newDataTask(t, store, 15)

	claimed, err := p.ProcessDataTask(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)

	// 15 personas plan into batches of 10 and 5.
	assert.Equal(t, 2, content.personaCalls)

	updated, err := store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusDataGenerated, updated.Status)
	assert.False(t, updated.CompletedAt.Valid)
	assert.Empty(t, updated.ErrorLog)

	results, err := store.GetResults(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Len(t, results, 15)
	for _, result := range results {
		assert.Contains(t, []int{1, 2}, result.BatchNumber)
		assert.Equal(t, "Tester", result.Lastname)
	}
}

func TestProcessDataTaskPassesSettingsAndDescription(t *testing.T) {
	db := createDB(t)

	var captured flowise.PersonaRequest
	content := &fakeContent{
		generatePersonas: func(req flowise.PersonaRequest) (string, error) {
			captured = req
			return personaBlob(req.Amount, "P"), nil
		},
	}
	p, store, _ := newTestPipeline(db, content, &fakeImages{})

	require.NoError(t, store.SetSetting(context.Background(), "bio_prompt_facebook", "casual tone"))
	require.NoError(t, store.SetSetting(context.Background(), "bio_prompt_x", "short and punchy"))
	newDataTask(t, store, 10)

	claimed, err := p.ProcessDataTask(context.Background())
	require.NoError(t, err)
	require.True(t, claimed)

	assert.Equal(t, 10, captured.Amount)
	assert.Equal(t, "Scandinavian women in their 30s", captured.PersonaDescription)
	assert.Equal(t, "swedish", captured.BioLanguage)
	assert.Equal(t, "casual tone", captured.InstructionsFacebook)
	assert.Equal(t, "short and punchy", captured.InstructionsX)
	assert.Empty(t, captured.InstructionsInstagram)
}

func TestProcessDataTaskPartialBatchFailure(t *testing.T) {
	db := createDB(t)

	content := &fakeContent{
		generatePersonas: func(req flowise.PersonaRequest) (string, error) {
			if req.Amount == 5 {
				return "", fmt.Errorf("workflow timed out")
			}
			return personaBlob(req.Amount, "P"), nil
		},
	}
	p, store, _ := newTestPipeline(db, content, &fakeImages{})
	task := newDataTask(t, store, 15)

	claimed, err := p.ProcessDataTask(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)

	updated, err := store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusDataGenerated, updated.Status)
	assert.Contains(t, updated.ErrorLog, "Partial success: 10/15 personas generated.")
	assert.Contains(t, updated.ErrorLog, "workflow timed out")

	results, err := store.GetResults(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Len(t, results, 10)
}

func TestProcessDataTaskAllBatchesFail(t *testing.T) {
	db := createDB(t)

	content := &fakeContent{
		generatePersonas: func(req flowise.PersonaRequest) (string, error) {
			return "", fmt.Errorf("workflow unavailable")
		},
	}
	p, store, _ := newTestPipeline(db, content, &fakeImages{})
	task := newDataTask(t, store, 23)

	claimed, err := p.ProcessDataTask(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)

	updated, err := store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusFailed, updated.Status)
	assert.True(t, updated.CompletedAt.Valid)
	assert.Contains(t, updated.ErrorLog, "All batches failed:")
	assert.Contains(t, updated.ErrorLog, "Batch 1:")
	assert.Contains(t, updated.ErrorLog, "Batch 3:")
}

func TestProcessDataTaskUnparseableResponseFailsBatch(t *testing.T) {
	db := createDB(t)

	content := &fakeContent{
		generatePersonas: func(req flowise.PersonaRequest) (string, error) {
			return "sorry, I cannot help with that", nil
		},
	}
	p, store, _ := newTestPipeline(db, content, &fakeImages{})
	task := newDataTask(t, store, 10)

	claimed, err := p.ProcessDataTask(context.Background())
	require.NoError(t, err)
	assert.True(t, claimed)

	updated, err := store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusFailed, updated.Status)
	assert.Contains(t, updated.ErrorLog, "no personas parsed from response")
}

func TestProcessDataTaskClaimsOldestFirst(t *testing.T) {
	db := createDB(t)

	content := &fakeContent{
		generatePersonas: func(req flowise.PersonaRequest) (string, error) {
			return personaBlob(req.Amount, "P"), nil
		},
	}
	p, store, _ := newTestPipeline(db, content, &fakeImages{})

	first := newDataTask(t, store, 10)
	second := newDataTask(t, store, 10)

	claimed, err := p.ProcessDataTask(context.Background())
	require.NoError(t, err)
	require.True(t, claimed)

	firstTask, err := store.GetTask(context.Background(), first.ID)
	require.NoError(t, err)
	secondTask, err := store.GetTask(context.Background(), second.ID)
	require.NoError(t, err)

	assert.Equal(t, database.StatusDataGenerated, firstTask.Status)
	assert.Equal(t, database.StatusPending, secondTask.Status)
}
