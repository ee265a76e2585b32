// Package reloader restarts a child process whenever one of the watched files changes.
//
// Every cycle starts a child, records a baseline of the watched files and waits
// for the first of two things: the child terminating, or a watched file being
// modified. A modification kills the child and starts the next cycle. A child
// terminating on its own, crash or not, ends the live reload.
package reloader

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/magdyamr542/livereload/config"
	"github.com/magdyamr542/livereload/detector"
	"github.com/magdyamr542/livereload/events"
	"github.com/magdyamr542/livereload/execer"
	"github.com/magdyamr542/livereload/notifier"
	"golang.org/x/sync/errgroup"
)

// Result summarizes a finished live reload.
type Result struct {
	// Number of children started.
	Cycles int
	// How the last cycle ended.
	Outcome events.Outcome
}

// Option configures a Reloader.
type Option func(*Reloader)

// WithPollInterval sets how often the watched files are checked.
func WithPollInterval(d time.Duration) Option {
	return func(r *Reloader) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithNotifier uses filesystem notifications to check before the next poll.
func WithNotifier(n notifier.Notifier) Option {
	return func(r *Reloader) {
		r.notifier = n
	}
}

// WithDetector replaces the change detector.
func WithDetector(d detector.Detector) Option {
	return func(r *Reloader) {
		r.detector = d
	}
}

// Reloader runs the reload cycles.
type Reloader struct {
	watchSet []string
	execer   execer.Execer
	detector detector.Detector
	notifier notifier.Notifier
	interval time.Duration
	logger   hclog.Logger

	cycles atomic.Int64
}

// New returns a Reloader starting children with exc and watching watchSet.
func New(watchSet []string, exc execer.Execer, logger hclog.Logger, opts ...Option) *Reloader {
	r := &Reloader{
		watchSet: watchSet,
		execer:   exc,
		detector: detector.New(),
		interval: config.DefaultPollInterval,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cycles returns how many children were started so far.
func (r *Reloader) Cycles() int {
	return int(r.cycles.Load())
}

// Run starts the child and restarts it on every change until it exits on its own.
// A failure to start the child is returned. When ctx is done the current child is
// killed and ctx.Err() is returned.
func (r *Reloader) Run(ctx context.Context) (Result, error) {
	hints := make(chan events.Event, 1)
	if r.notifier != nil {
		closer, err := r.notifier.Notify(ctx, r.watchSet, hints)
		if err != nil {
			r.logger.Warn("Can't use file notifications, polling only", "error", err)
		} else {
			defer func() {
				if err := closer(); err != nil {
					r.logger.Debug("Closing the files watcher", "error", err)
				}
			}()
		}
	}

	r.logger.Debug("Starting the watch loop", "files", len(r.watchSet), "interval", r.interval)
	for {
		if err := ctx.Err(); err != nil {
			return r.result(0), err
		}

		outcome, err := r.cycle(ctx, hints)
		if err != nil {
			return r.result(outcome), err
		}

		if outcome == events.ChildExitedOnItsOwn {
			r.logger.Info("App closed, live reload is disabled")
			return r.result(outcome), nil
		}
	}
}

func (r *Reloader) result(outcome events.Outcome) Result {
	return Result{Cycles: r.Cycles(), Outcome: outcome}
}

// cycle runs one child until it exits or a watched file changes.
func (r *Reloader) cycle(ctx context.Context, hints <-chan events.Event) (events.Outcome, error) {
	execution, err := r.execer.Exec(ctx)
	if err != nil {
		return 0, err
	}
	baseline := r.detector.Capture(r.watchSet)
	n := r.cycles.Add(1)
	r.logger.Debug("Cycle started", "cycle", n, "pid", execution.Pid(), "execution", execution.ID)

	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	changed := make(chan string, 1)
	g, gctx := errgroup.WithContext(cycleCtx)
	g.Go(func() error {
		r.poll(gctx, baseline, hints, changed)
		return nil
	})

	var (
		outcome     events.Outcome
		changedPath string
	)
	select {
	case <-ctx.Done():
		cancel()
		_ = g.Wait()
		if err := execution.Kill(); err != nil {
			r.logger.Error("Can't stop the app", "error", err)
		}
		return 0, ctx.Err()

	case <-execution.Done():
		outcome = events.ChildExitedOnItsOwn

	case changedPath = <-changed:
		// A child that is already gone wins over the change.
		select {
		case <-execution.Done():
			outcome = events.ChildExitedOnItsOwn
		default:
			outcome = events.FileChanged
		}
	}

	cancel()
	_ = g.Wait()

	if outcome == events.ChildExitedOnItsOwn {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		r.logger.Debug("Child exited", "cycle", n, "state", execution.State(), "error", execution.ExitErr())
		return outcome, nil
	}

	r.logger.Info("A tracked file has been edited, reloading", "file", changedPath)
	if err := execution.Kill(); err != nil {
		return outcome, fmt.Errorf("stop the app: %w", err)
	}
	return outcome, nil
}

// poll checks the watch set every interval, or sooner on a hint, and reports the
// first changed path on changed.
func (r *Reloader) poll(ctx context.Context, baseline detector.Baseline, hints <-chan events.Event, changed chan<- string) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case event := <-hints:
			r.logger.Trace("File event", "file", event.File)
		}

		if path, ok := r.detector.HasChanged(r.watchSet, baseline); ok {
			changed <- path
			return
		}
	}
}
