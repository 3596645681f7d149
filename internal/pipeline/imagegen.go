package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"avatar-backend/internal/database"
	"avatar-backend/internal/flowise"
	"avatar-backend/internal/imagery"
	"avatar-backend/internal/imaging"
)

// The derived images come back as one composite grid, always two columns
// wide.
const gridCols = 2

// ProcessImageTask claims one data-generated task and runs its image stage.
// Personas are processed sequentially; each one moves through checkpoints
// that persist immediately (base image URL, then the full image URL list),
// so a re-run after a crash resumes where the previous attempt stopped
// instead of repeating paid generation calls.
//
// Returns false when no task was claimable.
func (p *Pipeline) ProcessImageTask(ctx context.Context) (bool, error) {
	task, err := p.store.LeaseTask(ctx, database.StatusDataGenerated, database.StatusGeneratingImages)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	slog.Info("processing image generation task", "task", task.TaskID, "user", task.UserID)

	results, err := p.store.GetResults(ctx, task.ID)
	if err != nil {
		p.store.AppendTaskError(ctx, task.ID, fmt.Sprintf("could not load personas: %v", err)) //nolint:errcheck
		return true, err
	}

	if len(results) == 0 {
		p.store.AppendTaskError(ctx, task.ID, "No persona data found for image generation") //nolint:errcheck
		if err := p.store.UpdateTaskStatus(ctx, task.ID, database.StatusFailed); err != nil {
			return true, err
		}
		slog.Error("image generation failed, task has no personas", "task", task.TaskID)
		return true, nil
	}

	successCount := 0
	var errorLogs []string
	var promptHistory []string

	for i := range results {
		result := &results[i]
		personaName := result.Firstname + " " + result.Lastname
		slog.Info("processing persona images", "task", task.TaskID, "persona", personaName, "result", result.ID, "progress", fmt.Sprintf("%d/%d", i+1, len(results)))

		err := p.processPersonaImages(ctx, task, result, &promptHistory)
		if err != nil && !IsFatal(err) {
			// Checkpoints already persisted survive the retry, so a second
			// attempt only repeats the step that failed.
			slog.Warn("retrying persona after transient failure", "task", task.TaskID, "result", result.ID, "error", err)
			err = p.processPersonaImages(ctx, task, result, &promptHistory)
		}
		if err != nil {
			errorLogs = append(errorLogs, fmt.Sprintf("Persona %s (ID %d): %v", personaName, result.ID, err))
			slog.Error("persona image generation failed", "task", task.TaskID, "persona", personaName, "result", result.ID, "error", err)
			continue
		}
		successCount++
	}

	slog.Info("image generation finished", "task", task.TaskID, "succeeded", successCount, "total", len(results))

	if successCount == 0 {
		p.store.AppendTaskError(ctx, task.ID, "All image generation failed:\n"+strings.Join(errorLogs, "\n")) //nolint:errcheck
		if err := p.store.UpdateTaskStatus(ctx, task.ID, database.StatusFailed); err != nil {
			return true, err
		}
		return true, nil
	}

	// Partial success still completes the task: finished personas are
	// valuable, and the shortfall stays visible in the error log.
	if len(errorLogs) > 0 {
		message := fmt.Sprintf("Partial success: %d/%d personas with images.\nErrors:\n%s", successCount, len(results), strings.Join(errorLogs, "\n"))
		p.store.AppendTaskError(ctx, task.ID, message) //nolint:errcheck
	}

	if err := p.store.UpdateTaskStatus(ctx, task.ID, database.StatusCompleted); err != nil {
		return true, err
	}
	return true, nil
}

func (p *Pipeline) processPersonaImages(ctx context.Context, task *database.GenerationTask, result *database.GenerationResult, promptHistory *[]string) error {
	var baseImage []byte

	// Checkpoint 1: base image.
	if result.BaseImageURL == "" {
		generated, err := p.generateBaseImage(ctx, result)
		if err != nil {
			return classify(fmt.Errorf("base image generation failed: %w", err))
		}
		baseImage = generated

		key := baseImageKey(task.ID, result.ID)
		if err := p.objects.PutObject(ctx, p.cfg.AvatarBucket, key, baseImage, "image/png"); err != nil {
			return Transientf("base image upload failed: %v", err)
		}

		url := p.objects.PublicURL(p.cfg.AvatarBucket, key)
		if err := p.store.SetResultBaseImage(ctx, result.ID, url); err != nil {
			return Transientf("base image save failed: %v", err)
		}
		result.BaseImageURL = url
		slog.Info("base image stored", "task", task.TaskID, "result", result.ID, "url", url)
	} else {
		slog.Info("base image already present, resuming", "task", task.TaskID, "result", result.ID)
	}

	// Checkpoint 2: already has derived images, nothing to do.
	if len(database.ResultImages(result)) > 0 {
		slog.Info("derived images already present, skipping persona", "task", task.TaskID, "result", result.ID)
		return nil
	}

	// Checkpoint 3: synthesize the grid prompt from the persona record. Prior
	// prompts from this task ride along so the workflow varies its output.
	prompt, err := p.content.GenerateImagePrompt(ctx, personData(result), strings.Join(*promptHistory, "\n"))
	if err != nil {
		return classify(fmt.Errorf("image prompt generation failed: %w", err))
	}
	*promptHistory = append(*promptHistory, prompt)

	// When resuming past checkpoint 1, only the URL was persisted. Fetch
	// the stored base image rather than paying for a regeneration; fall
	// back to regenerating if the stored object is gone.
	if baseImage == nil {
		baseImage, err = p.objects.GetObject(ctx, p.cfg.AvatarBucket, baseImageKey(task.ID, result.ID))
		if err != nil {
			slog.Warn("stored base image unavailable, regenerating", "task", task.TaskID, "result", result.ID, "error", err)
			baseImage, err = p.images.GenerateBase(ctx, basePrompt(result), nil)
			if err != nil {
				return classify(fmt.Errorf("base image regeneration failed: %w", err))
			}
		}
	}

	// Checkpoint 4: derived-image grid.
	grid, err := p.images.GenerateGrid(ctx, baseImage, prompt)
	if err != nil {
		return classify(fmt.Errorf("grid generation failed: %w", err))
	}

	// Checkpoint 5: split, post-process, upload, persist the URL list in a
	// single update.
	rows := task.ImagesPerPersona / gridCols
	cells, err := imaging.SplitGrid(grid, rows, gridCols)
	if err != nil {
		return Transientf("grid split failed: %v", err)
	}
	if len(cells) != task.ImagesPerPersona {
		return Transientf("expected %d images, got %d", task.ImagesPerPersona, len(cells))
	}

	cropBorders := p.store.GetBoolConfig(ctx, "crop_white_borders", false)
	jitterStyle := p.store.GetBoolConfig(ctx, "randomize_image_style", false)

	urls := make([]string, 0, len(cells))
	for i, cell := range cells {
		if cropBorders {
			cell = imaging.TrimWhiteBorders(cell)
		}
		if jitterStyle {
			cell = imaging.Jitter(cell)
		}

		key := derivedImageKey(task.ID, result.ID, i)
		if err := p.objects.PutObject(ctx, p.cfg.AvatarBucket, key, cell, "image/png"); err != nil {
			return Transientf("upload failed for image %d: %v", i, err)
		}
		urls = append(urls, p.objects.PublicURL(p.cfg.AvatarBucket, key))
	}

	if err := p.store.SetResultImages(ctx, result.ID, urls); err != nil {
		return Transientf("image list save failed: %v", err)
	}

	slog.Info("persona images stored", "task", task.TaskID, "result", result.ID, "count", len(urls))
	return nil
}

func (p *Pipeline) generateBaseImage(ctx context.Context, result *database.GenerationResult) ([]byte, error) {
	prompt := basePrompt(result)

	var face []byte
	if p.faces != nil && p.store.GetBoolConfig(ctx, "randomize_face_base", false) {
		genderLock := p.store.GetBoolConfig(ctx, "randomize_face_gender_lock", false)

		_, data, err := p.faces.RandomFace(ctx, result.Gender, genderLock)
		if err != nil {
			slog.Warn("random face selection failed, using text-to-image", "result", result.ID, "error", err)
		} else if data != nil {
			face = data
			prompt += " Attached is an image just to draw inspiration from regarding facial anatomy and features, not ethnicity or gender."
		}
	}

	return p.images.GenerateBase(ctx, prompt, face)
}

func basePrompt(result *database.GenerationResult) string {
	gender := "female"
	if strings.EqualFold(result.Gender, "m") {
		gender = "male"
	}
	return fmt.Sprintf(
		"generate an image of how this person would look like in a selfie. the image should be not well-produced, amateur digital camera aesthetic, low resolution. Person: %s. %s.",
		result.BioFacebook, gender)
}

func personData(result *database.GenerationResult) flowise.PersonData {
	person := flowise.PersonData{
		Firstname:    result.Firstname,
		Lastname:     result.Lastname,
		Gender:       result.Gender,
		BioFacebook:  result.BioFacebook,
		BioInstagram: result.BioInstagram,
		BioX:         result.BioX,
		BioTiktok:    result.BioTiktok,
		Ethnicity:    result.Ethnicity,
	}
	if result.Age.Valid {
		age := result.Age.Int64
		person.Age = &age
	}
	return person
}

func baseImageKey(taskID, resultID uint) string {
	return fmt.Sprintf("avatars/task_%d/persona_%d/base.png", taskID, resultID)
}

func derivedImageKey(taskID, resultID uint, index int) string {
	return fmt.Sprintf("avatars/task_%d/persona_%d/image_%d.png", taskID, resultID, index)
}

func classify(err error) error {
	if errors.Is(err, imagery.ErrContentPolicy) {
		return &StepError{Fatal: true, Err: err}
	}
	return &StepError{Fatal: false, Err: err}
}
