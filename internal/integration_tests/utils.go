package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"

	"avatar-backend/internal/database"
	"avatar-backend/internal/flowise"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) string {
	dbName, dbUser, dbPassword := "test_db", "test_user", "test_password"

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		err := postgresContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate PostgreSQL container")
	})

	connStr, err := postgresContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get PostgreSQL connection string")

	return connStr
}

func createDB(t *testing.T) *gorm.DB {
	uri := setupPostgresContainer(t, context.Background())
	db, err := database.NewDatabase(uri)
	require.NoError(t, err)

	return db
}

func httpRequest(api http.Handler, method, endpoint string, payload any, dest any) error {
	var body io.Reader
	if payload != nil {
		requestBody, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(requestBody)
	}

	req := httptest.NewRequest(method, endpoint, body)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		return fmt.Errorf("expected status code 200, got %d: %v", rr.Code, rr.Body.String())
	}

	if dest != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), dest); err != nil {
			return err
		}
	}

	return nil
}

// stubContent answers every persona request with exactly the requested
// number of records.
type stubContent struct{}

func (stubContent) GeneratePersonas(ctx context.Context, req flowise.PersonaRequest) (string, error) {
	var sb strings.Builder
	for i := 0; i < req.Amount; i++ {
		fmt.Fprintf(&sb,
			`{"firstname": "Persona%d", "lastname": "Test", "gender": "f", "bios": "{\"facebook_bio\": \"bio %d\"}"}`,
			i, i)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func (stubContent) GenerateImagePrompt(ctx context.Context, person flowise.PersonData, promptsHistory string) (string, error) {
	return "portrait grid of " + person.Firstname, nil
}

type stubImages struct{}

func (stubImages) GenerateBase(ctx context.Context, prompt string, referenceFace []byte) ([]byte, error) {
	return testPNG(4, 4), nil
}

func (stubImages) GenerateGrid(ctx context.Context, baseImage []byte, prompt string) ([]byte, error) {
	return testPNG(8, 8), nil
}

func testPNG(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(30 * x), G: uint8(30 * y), B: 100, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
