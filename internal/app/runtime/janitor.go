package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/crud_service/pkg/logger"
)

// Task is one unit of periodic housekeeping.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Janitor runs housekeeping tasks on a cron schedule. It is a lifecycle
// service: Start schedules the tasks and Stop waits for a running pass.
type Janitor struct {
	schedule string
	tasks    []Task
	log      *logger.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewJanitor builds a janitor for the standard cron expression or @every
// descriptor in schedule.
func NewJanitor(schedule string, log *logger.Logger, tasks ...Task) *Janitor {
	if log == nil {
		log = logger.NewDefault("janitor")
	}
	return &Janitor{schedule: schedule, tasks: tasks, log: log}
}

// Name identifies the janitor to the lifecycle manager.
func (j *Janitor) Name() string { return "janitor" }

// Start schedules the tasks. An invalid schedule fails here rather than at
// the first tick.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(j.schedule, func() { j.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("janitor schedule %q: %w", j.schedule, err)
	}
	c.Start()
	j.cron = c
	j.log.WithField("schedule", j.schedule).Info("janitor started")
	return nil
}

// Stop unschedules the tasks and waits for a running pass, bounded by ctx.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	c := j.cron
	j.cron = nil
	j.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs every task once. A failing task is logged and does not stop
// the others.
func (j *Janitor) RunOnce(ctx context.Context) {
	for _, task := range j.tasks {
		start := time.Now()
		if err := task.Run(ctx); err != nil {
			j.log.WithError(err).WithField("task", task.Name).Warn("janitor task failed")
			continue
		}
		j.log.WithField("task", task.Name).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Debug("janitor task completed")
	}
}
