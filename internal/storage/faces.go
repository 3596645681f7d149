package storage

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"
)

const faceDownloadTimeout = 30 * time.Second

// FacePool serves random reference faces for base image generation. Faces
// live in a dedicated bucket under gender prefixes ("male/", "female/").
type FacePool struct {
	store  ObjectStore
	bucket string
}

func NewFacePool(store ObjectStore, bucket string) *FacePool {
	return &FacePool{store: store, bucket: bucket}
}

// RandomFace picks a random face image, optionally restricted to the given
// gender ("m" or "f"). Returns (key, bytes). A nil, nil return means the
// pool has no candidates; callers fall back to text-to-image generation.
func (p *FacePool) RandomFace(ctx context.Context, gender string, genderLock bool) (string, []byte, error) {
	prefix := ""
	if genderLock {
		prefix = genderPrefix(gender)
	}

	keys, err := p.store.ListObjects(ctx, p.bucket, prefix)
	if err != nil {
		return "", nil, fmt.Errorf("error listing face images: %w", err)
	}

	var candidates []string
	for _, key := range keys {
		if strings.HasSuffix(key, "/") {
			continue
		}
		lower := strings.ToLower(key)
		if strings.HasSuffix(lower, ".png") || strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg") || strings.HasSuffix(lower, ".webp") {
			candidates = append(candidates, key)
		}
	}

	if len(candidates) == 0 {
		slog.Warn("no face images available", "bucket", p.bucket, "prefix", prefix)
		return "", nil, nil
	}

	selected := candidates[rand.Intn(len(candidates))]

	downloadCtx, cancel := context.WithTimeout(ctx, faceDownloadTimeout)
	defer cancel()

	data, err := p.store.GetObject(downloadCtx, p.bucket, selected)
	if err != nil {
		return "", nil, fmt.Errorf("error downloading face image %s: %w", selected, err)
	}

	slog.Info("selected random face", "key", selected, "bytes", len(data))
	return selected, data, nil
}

func genderPrefix(gender string) string {
	if strings.EqualFold(gender, "m") {
		return "male/"
	}
	return "female/"
}
