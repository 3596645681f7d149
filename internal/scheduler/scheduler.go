package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"avatar-backend/internal/database"
	"avatar-backend/internal/pipeline"
)

// Scheduler drives the worker: it ticks the data and image stages on a
// fixed interval and runs the stuck-task watchdog periodically. Jobs run in
// singleton mode, so a slow pass never stacks behind itself.
type Scheduler struct {
	scheduler *gocron.Scheduler
	pipeline  *pipeline.Pipeline
	store     *database.Store
	interval  time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(p *pipeline.Pipeline, store *database.Store, interval time.Duration) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		scheduler: s,
		pipeline:  p,
		store:     store,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start registers the recurring jobs and runs the scheduler in the
// background.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(s.interval).Do(s.dataTick); err != nil {
		return err
	}
	if _, err := s.scheduler.Every(s.interval).Do(s.imageTick); err != nil {
		return err
	}
	if _, err := s.scheduler.Every(pipeline.WatchdogInterval).Do(s.watchdogTick); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	slog.Info("scheduler started", "interval", s.interval)
	return nil
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
	slog.Info("scheduler stopped")
}

// dataTick drains pending tasks. The concurrency knob is re-read every tick
// so operators can throttle a running worker through the config table.
func (s *Scheduler) dataTick() {
	s.runStage("data", s.pipeline.ProcessDataTask)
}

func (s *Scheduler) imageTick() {
	s.runStage("image", s.pipeline.ProcessImageTask)
}

func (s *Scheduler) runStage(name string, process func(ctx context.Context) (bool, error)) {
	maxTasks := s.store.GetIntConfig(s.ctx, "max_concurrent_tasks", 3)
	if maxTasks < 1 {
		maxTasks = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < maxTasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if s.ctx.Err() != nil {
					return
				}
				claimed, err := process(s.ctx)
				if err != nil {
					slog.Error("stage pass failed", "stage", name, "error", err)
					return
				}
				if !claimed {
					return
				}
			}
		}()
	}
	wg.Wait()
}

func (s *Scheduler) watchdogTick() {
	if _, err := pipeline.RecoverStuckTasks(s.ctx, s.store, pipeline.StuckThreshold, false); err != nil {
		slog.Error("watchdog pass failed", "error", err)
	}
}
