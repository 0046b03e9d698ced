package looper

import (
	"context"
	"errors"
	"io"
	"log"
	"time"
)

// ErrRunnerStopped is returned by Do once the runner has exited.
var ErrRunnerStopped = errors.New("runner stopped")

type command struct {
	fn   func(ctx context.Context, r *Recorder) error
	done chan error
}

// Runner is the cooperative maintenance context. It ticks Update at the
// configured interval and runs control commands from other goroutines in
// between ticks, so storage work and state changes happen on one goroutine.
type Runner struct {
	rec      *Recorder
	interval time.Duration
	cmds     chan command
	done     chan struct{}
}

// NewRunner creates a runner for rec.
func NewRunner(rec *Recorder) *Runner {
	return &Runner{
		rec:      rec,
		interval: rec.Config().UpdateInterval,
		cmds:     make(chan command, 16),
		done:     make(chan struct{}),
	}
}

// Run drives the maintenance loop until ctx is done. On exit the recorder is
// stopped so pending record blocks reach storage.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := r.rec.Stop(context.Background()); err != nil {
				log.Printf("looper: stop on shutdown: %v", err)
			}
			return ctx.Err()

		case cmd := <-r.cmds:
			cmd.done <- cmd.fn(ctx, r.rec)

		case <-ticker.C:
			if err := r.rec.Update(ctx); err != nil {
				log.Printf("looper: update: %v", err)
			}
		}
	}
}

// Do runs fn on the maintenance goroutine and returns its error.
func (r *Runner) Do(ctx context.Context, fn func(ctx context.Context, rec *Recorder) error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}

	select {
	case r.cmds <- cmd:
	case <-r.done:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.done:
		return err
	case <-r.done:
		return ErrRunnerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Play runs Recorder.Play on the maintenance goroutine.
func (r *Runner) Play(ctx context.Context, name string, loop bool) error {
	return r.Do(ctx, func(ctx context.Context, rec *Recorder) error {
		return rec.Play(ctx, name, loop)
	})
}

// Resume runs Recorder.Resume on the maintenance goroutine.
func (r *Runner) Resume(ctx context.Context) error {
	return r.Do(ctx, func(ctx context.Context, rec *Recorder) error {
		return rec.Resume(ctx)
	})
}

// Stop runs Recorder.Stop on the maintenance goroutine.
func (r *Runner) Stop(ctx context.Context) error {
	return r.Do(ctx, func(ctx context.Context, rec *Recorder) error {
		return rec.Stop(ctx)
	})
}

// StartRecord runs Recorder.StartRecord on the maintenance goroutine.
func (r *Runner) StartRecord(ctx context.Context) error {
	return r.Do(ctx, func(ctx context.Context, rec *Recorder) error {
		return rec.StartRecord(ctx)
	})
}

// StopRecord runs Recorder.StopRecord on the maintenance goroutine.
func (r *Runner) StopRecord(ctx context.Context) error {
	return r.Do(ctx, func(ctx context.Context, rec *Recorder) error {
		return rec.StopRecord(ctx)
	})
}

// SetReadPosition runs Recorder.SetReadPosition on the maintenance goroutine.
func (r *Runner) SetReadPosition(ctx context.Context, fraction float64) error {
	return r.Do(ctx, func(ctx context.Context, rec *Recorder) error {
		return rec.SetReadPosition(fraction)
	})
}

// ExportWAV writes the current play slot to w from the maintenance goroutine.
func (r *Runner) ExportWAV(ctx context.Context, w io.WriteSeeker) error {
	return r.Do(ctx, func(ctx context.Context, rec *Recorder) error {
		return rec.ExportWAV(w)
	})
}

// SetSaturation forwards to the recorder; it needs no serialization.
func (r *Runner) SetSaturation(v float64) {
	r.rec.SetSaturation(v)
}

// Status returns the recorder status.
func (r *Runner) Status() Status {
	return r.rec.Status()
}

// Diagnostics returns the recorder counters.
func (r *Runner) Diagnostics() Diagnostics {
	return r.rec.Diagnostics()
}

// Recorder returns the recorder driven by the runner.
func (r *Runner) Recorder() *Recorder {
	return r.rec
}
