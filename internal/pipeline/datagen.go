package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"avatar-backend/internal/database"
	"avatar-backend/internal/flowise"
	"avatar-backend/internal/utils"
)

type batchJob struct {
	Number int
	Size   int
}

// ProcessDataTask claims one pending task and runs its data generation
// stage: the requested persona count is split into batches, the batches fan
// out over parallel content generation calls, and each batch's parsed
// personas are stored as soon as the batch returns so a crash mid-task
// loses at most the in-flight batches.
//
// Returns false when no task was claimable.
func (p *Pipeline) ProcessDataTask(ctx context.Context) (bool, error) {
	task, err := p.store.LeaseTask(ctx, database.StatusPending, database.StatusGeneratingData)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	slog.Info("processing data generation task",
		"task", task.TaskID,
		"user", task.UserID,
		"language", task.BioLanguage,
		"personas", task.NumberToGenerate,
		"images_per_persona", task.ImagesPerPersona)

	settings, err := p.store.GetBioSettings(ctx)
	if err != nil {
		// Leave the task in generating-data; the watchdog returns it to
		// pending once it goes stale.
		p.store.AppendTaskError(ctx, task.ID, fmt.Sprintf("could not load bio settings: %v", err)) //nolint:errcheck
		return true, fmt.Errorf("error loading bio settings: %w", err)
	}

	batches := PlanBatches(task.NumberToGenerate)
	slog.Info("planned batches", "task", task.TaskID, "batches", batches)

	queue := make(chan batchJob, len(batches))
	for i, size := range batches {
		queue <- batchJob{Number: i + 1, Size: size}
	}
	close(queue)

	worker := func(job batchJob) ([]Persona, error) {
		text, err := p.content.GeneratePersonas(ctx, flowise.PersonaRequest{
			Amount:                job.Size,
			PersonaDescription:    task.PersonaDescription,
			BioLanguage:           task.BioLanguage,
			InstructionsFacebook:  settings.Facebook,
			InstructionsInstagram: settings.Instagram,
			InstructionsX:         settings.X,
			InstructionsTiktok:    settings.Tiktok,
		})
		if err != nil {
			return nil, err
		}

		personas := ParsePersonas(text, task.TaskID, job.Number)
		if len(personas) == 0 {
			return nil, fmt.Errorf("no personas parsed from response")
		}
		return personas, nil
	}

	completed := make(chan utils.CompletedTask[batchJob, []Persona], len(batches))
	utils.RunInPool(worker, queue, completed, p.cfg.BatchWorkers)

	totalStored := 0
	var errorLogs []string

	for done := range completed {
		if done.Error != nil {
			slog.Error("batch failed", "task", task.TaskID, "batch", done.Input.Number, "error", done.Error)
			errorLogs = append(errorLogs, fmt.Sprintf("Batch %d: %v", done.Input.Number, done.Error))
			continue
		}

		results := make([]database.GenerationResult, len(done.Result))
		for i, persona := range done.Result {
			results[i] = resultFromPersona(task.ID, done.Input.Number, persona)
		}

		if err := p.store.CreateResults(ctx, results); err != nil {
			slog.Error("error storing batch results", "task", task.TaskID, "batch", done.Input.Number, "error", err)
			errorLogs = append(errorLogs, fmt.Sprintf("Batch %d: %v", done.Input.Number, err))
			continue
		}

		totalStored += len(results)
		slog.Info("stored batch results", "task", task.TaskID, "batch", done.Input.Number, "requested", done.Input.Size, "stored", len(results))
	}

	if totalStored == 0 {
		p.store.AppendTaskError(ctx, task.ID, "All batches failed:\n"+strings.Join(errorLogs, "\n")) //nolint:errcheck
		if err := p.store.UpdateTaskStatus(ctx, task.ID, database.StatusFailed); err != nil {
			return true, err
		}
		slog.Error("data generation failed, no results stored", "task", task.TaskID)
		return true, nil
	}

	if len(errorLogs) > 0 {
		message := fmt.Sprintf("Partial success: %d/%d personas generated.\nErrors:\n%s", totalStored, task.NumberToGenerate, strings.Join(errorLogs, "\n"))
		p.store.AppendTaskError(ctx, task.ID, message) //nolint:errcheck
	}

	if err := p.store.UpdateTaskStatus(ctx, task.ID, database.StatusDataGenerated); err != nil {
		return true, err
	}

	slog.Info("data generation completed", "task", task.TaskID, "stored", totalStored, "requested", task.NumberToGenerate)
	return true, nil
}

func resultFromPersona(taskID uint, batch int, persona Persona) database.GenerationResult {
	result := database.GenerationResult{
		TaskID:           taskID,
		BatchNumber:      batch,
		Firstname:        persona.Firstname,
		Lastname:         persona.Lastname,
		Gender:           persona.Gender,
		BioFacebook:      persona.BioFacebook,
		BioInstagram:     persona.BioInstagram,
		BioX:             persona.BioX,
		BioTiktok:        persona.BioTiktok,
		JobTitle:         persona.JobTitle,
		Workplace:        persona.Workplace,
		EduEstablishment: persona.EduEstablishment,
		EduStudy:         persona.EduStudy,
		CurrentCity:      persona.CurrentCity,
		CurrentState:     persona.CurrentState,
		PrevCity:         persona.PrevCity,
		PrevState:        persona.PrevState,
		About:            persona.About,
		Ethnicity:        persona.Ethnicity,
	}
	if persona.Age != nil {
		result.Age = sql.NullInt64{Int64: *persona.Age, Valid: true}
	}
	return result
}
