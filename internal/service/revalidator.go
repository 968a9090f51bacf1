// Package service hosts the long-running side of the core: scheduled
// re-validation of a live model source, for studio backends that lint models
// continuously rather than per save.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/micss-lab/modelexpr/internal/script"
	"github.com/micss-lab/modelexpr/pkg/schema"
)

// Snapshot is one immutable view of the data a validation pass needs. The
// source must not mutate it after handing it over.
type Snapshot struct {
	Model       *schema.Model
	Metamodel   *schema.Metamodel
	Constraints []schema.ScriptConstraint
}

// Source supplies fresh snapshots for each pass.
type Source interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// Sink receives the report of each completed pass.
type Sink func(*schema.ValidationReport)

// Revalidator runs a validation pass on a cron schedule. Overlapping passes
// are skipped rather than queued.
type Revalidator struct {
	source   Source
	runner   *script.Runner
	sink     Sink
	schedule cron.Schedule
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	running sync.Mutex // held while a pass is in flight
}

// NewRevalidator creates a Revalidator from a standard 5-field cron spec.
func NewRevalidator(source Source, runner *script.Runner, sink Sink, spec string, logger *slog.Logger) (*Revalidator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return &Revalidator{
		source:   source,
		runner:   runner,
		sink:     sink,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Start launches the background loop. It returns an error if already started.
func (r *Revalidator) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return fmt.Errorf("revalidator already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.loop(loopCtx, r.done)
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (r *Revalidator) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Revalidator) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		next := r.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.runOnce(ctx)
		}
	}
}

// runOnce executes one pass if none is in flight.
func (r *Revalidator) runOnce(ctx context.Context) {
	if !r.running.TryLock() {
		r.logger.Warn("validation pass still running, skipping scheduled run")
		return
	}
	defer r.running.Unlock()

	snap, err := r.source.Snapshot(ctx)
	if err != nil {
		r.logger.Error("cannot snapshot model for scheduled validation",
			slog.String("error", err.Error()))
		return
	}
	if snap == nil || snap.Model == nil {
		return
	}

	report := r.runner.Run(ctx, snap.Model, snap.Metamodel, snap.Constraints)
	if r.sink != nil {
		r.sink(report)
	}
}
