package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"avatar-backend/cmd"
	"avatar-backend/internal/database"
	"avatar-backend/internal/flowise"
	"avatar-backend/internal/imagery"
	"avatar-backend/internal/pipeline"
	"avatar-backend/internal/scheduler"
	"avatar-backend/internal/storage"
)

type WorkerConfig struct {
	DatabaseURL string `env:"DATABASE_URL,notEmpty,required"`

	FlowisePersonaWorkflowURL string `env:"FLOWISE_PERSONA_WORKFLOW_URL,notEmpty,required"`
	FlowisePromptWorkflowURL  string `env:"FLOWISE_PROMPT_WORKFLOW_URL,notEmpty,required"`
	FlowiseAuthToken          string `env:"FLOWISE_AUTH_TOKEN"`

	OpenAIAPIKey     string `env:"OPENAI_API_KEY,notEmpty,required"`
	OpenAIAPIBase    string `env:"OPENAI_API_BASE"`
	OpenAIImageModel string `env:"OPENAI_IMAGE_MODEL" envDefault:"gpt-image-1"`

	S3EndpointURL     string `env:"S3_ENDPOINT_URL,notEmpty,required"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID,notEmpty,required"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY,notEmpty,required"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	S3PublicURLBase   string `env:"S3_PUBLIC_URL_BASE,notEmpty,required"`
	AvatarBucketName  string `env:"AVATAR_BUCKET_NAME" envDefault:"avatars"`
	FacesBucketName   string `env:"FACES_BUCKET_NAME" envDefault:"faces"`

	WorkerIntervalSeconds int `env:"WORKER_INTERVAL" envDefault:"30"`
	BatchConcurrency      int `env:"BATCH_CONCURRENCY" envDefault:"5"`
}

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	store := database.NewStore(db)

	objects, err := storage.NewS3Store(&storage.S3Config{
		S3EndpointURL:     cfg.S3EndpointURL,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
		S3Region:          cfg.S3Region,
		S3PublicURLBase:   cfg.S3PublicURLBase,
	})
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}

	faces := storage.NewFacePool(objects, cfg.FacesBucketName)

	content := flowise.NewClient(flowise.Config{
		PersonaWorkflowURL: cfg.FlowisePersonaWorkflowURL,
		PromptWorkflowURL:  cfg.FlowisePromptWorkflowURL,
		AuthToken:          cfg.FlowiseAuthToken,
	})

	images := imagery.NewClient(imagery.Config{
		APIKey:  cfg.OpenAIAPIKey,
		APIBase: cfg.OpenAIAPIBase,
		Model:   cfg.OpenAIImageModel,
	})

	p := pipeline.New(store, content, images, objects, faces, pipeline.Config{
		AvatarBucket: cfg.AvatarBucketName,
		BatchWorkers: cfg.BatchConcurrency,
	})

	// Reclaim work abandoned by a previous run before taking new tasks.
	if recovered, err := pipeline.RecoverStuckTasks(context.Background(), store, 0, true); err != nil {
		slog.Error("startup recovery pass failed", "error", err)
	} else if recovered > 0 {
		slog.Info("startup recovery pass finished", "recovered", recovered)
	}

	sched := scheduler.New(p, store, time.Duration(cfg.WorkerIntervalSeconds)*time.Second)
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Worker started. Waiting for tasks. Press Ctrl+C to exit.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, stopping scheduler...")
	sched.Stop()

	log.Println("Worker process stopped.")
}
