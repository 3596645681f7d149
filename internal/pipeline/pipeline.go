package pipeline

import (
	"context"

	"avatar-backend/internal/database"
	"avatar-backend/internal/flowise"
	"avatar-backend/internal/storage"
)

// ContentGenerator produces persona data and image prompts. Implemented by
// flowise.Client.
type ContentGenerator interface {
	GeneratePersonas(ctx context.Context, req flowise.PersonaRequest) (string, error)
	GenerateImagePrompt(ctx context.Context, person flowise.PersonData, promptsHistory string) (string, error)
}

// ImageGenerator renders avatar images. Implemented by imagery.Client.
type ImageGenerator interface {
	GenerateBase(ctx context.Context, prompt string, referenceFace []byte) ([]byte, error)
	GenerateGrid(ctx context.Context, baseImage []byte, prompt string) ([]byte, error)
}

type Config struct {
	// Bucket for generated avatar artifacts.
	AvatarBucket string

	// Parallel content generation calls per data task.
	BatchWorkers int
}

// Pipeline runs the two processing stages over leased tasks.
type Pipeline struct {
	store   *database.Store
	content ContentGenerator
	images  ImageGenerator
	objects storage.ObjectStore
	faces   *storage.FacePool
	cfg     Config
}

func New(store *database.Store, content ContentGenerator, images ImageGenerator, objects storage.ObjectStore, faces *storage.FacePool, cfg Config) *Pipeline {
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 5
	}

	return &Pipeline{
		store:   store,
		content: content,
		images:  images,
		objects: objects,
		faces:   faces,
		cfg:     cfg,
	}
}
