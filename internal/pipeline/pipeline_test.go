package pipeline_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"avatar-backend/internal/database"
	"avatar-backend/internal/flowise"
	"avatar-backend/internal/pipeline"
	"avatar-backend/internal/storage"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

type fakeContent struct {
	mu            sync.Mutex
	personaCalls  int
	promptCalls   int
	seenHistories []string

	generatePersonas    func(req flowise.PersonaRequest) (string, error)
	generateImagePrompt func(person flowise.PersonData) (string, error)
}

func (f *fakeContent) GeneratePersonas(ctx context.Context, req flowise.PersonaRequest) (string, error) {
	f.mu.Lock()
	f.personaCalls++
	f.mu.Unlock()
	return f.generatePersonas(req)
}

func (f *fakeContent) GenerateImagePrompt(ctx context.Context, person flowise.PersonData, promptsHistory string) (string, error) {
	f.mu.Lock()
	f.promptCalls++
	f.seenHistories = append(f.seenHistories, promptsHistory)
	f.mu.Unlock()
	if f.generateImagePrompt == nil {
		return "a selfie grid", nil
	}
	return f.generateImagePrompt(person)
}

type fakeImages struct {
	baseCalls int
	gridCalls int

	generateBase func(prompt string, referenceFace []byte) ([]byte, error)
	generateGrid func(baseImage []byte, prompt string) ([]byte, error)
}

func (f *fakeImages) GenerateBase(ctx context.Context, prompt string, referenceFace []byte) ([]byte, error) {
	f.baseCalls++
	if f.generateBase == nil {
		return testPNG(4, 4), nil
	}
	return f.generateBase(prompt, referenceFace)
}

func (f *fakeImages) GenerateGrid(ctx context.Context, baseImage []byte, prompt string) ([]byte, error) {
	f.gridCalls++
	if f.generateGrid == nil {
		return testPNG(8, 8), nil
	}
	return f.generateGrid(baseImage, prompt)
}

func testPNG(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(40 * x), G: uint8(40 * y), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func newTestPipeline(db *gorm.DB, content *fakeContent, images *fakeImages) (*pipeline.Pipeline, *database.Store, *storage.InMemoryStore) {
	store := database.NewStore(db)
	objects := storage.NewInMemoryStore()

	p := pipeline.New(store, content, images, objects, nil, pipeline.Config{
		AvatarBucket: "avatars",
		BatchWorkers: 2,
	})
	return p, store, objects
}
