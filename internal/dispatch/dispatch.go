// Package dispatch fans independent per-item tasks out over a bounded
// goroutine pool and collects one Result per item.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"dsmanager/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// MaxWorkers is the pool size used when Options.Workers is unset, and the cap.
const MaxWorkers = 48

// Result is the outcome of one task.
type Result struct {
	Index    int
	Key      string
	Value    string
	Err      error
	Duration time.Duration
}

// Progress is passed to Options.Progress after every task, in completion order.
type Progress struct {
	Done   int
	Total  int
	Result Result
}

// Options tunes a Run call.
type Options[T any] struct {
	Workers   int
	Operation string
	// Key names an item in results and errors.
	Key      func(T) string
	Progress func(Progress)
	Observer metrics.Observer
	Logger   *slog.Logger
}

// Report lists every task result in completion order.
type Report struct {
	Operation string
	Total     int
	Results   []Result
}

// Failed returns the failed results.
func (r Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Succeeded counts successful tasks.
func (r Report) Succeeded() int {
	return len(r.Results) - len(r.Failed())
}

// Err joins every task error, or returns nil when all tasks succeeded.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, res.Err)
	}
	return errors.Join(errs...)
}

// Run executes fn for every item with at most opts.Workers tasks in flight and
// blocks until all scheduled tasks finish. A failing task never cancels its
// siblings. Once ctx is done no further tasks start; those items are reported
// with ctx.Err().
func Run[T any](ctx context.Context, items []T, fn func(context.Context, T) (string, error), opts Options[T]) Report {
	workers := opts.Workers
	if workers <= 0 || workers > MaxWorkers {
		workers = MaxWorkers
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = metrics.Nop{}
	}

	report := Report{Operation: opts.Operation, Total: len(items), Results: make([]Result, 0, len(items))}
	var mu sync.Mutex
	record := func(res Result) {
		mu.Lock()
		defer mu.Unlock()
		report.Results = append(report.Results, res)
		if opts.Progress != nil {
			opts.Progress(Progress{Done: len(report.Results), Total: report.Total, Result: res})
		}
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for i, item := range items {
		key := ""
		if opts.Key != nil {
			key = opts.Key(item)
		}
		if err := ctx.Err(); err != nil {
			record(Result{Index: i, Key: key, Err: err})
			continue
		}
		g.Go(func() error {
			start := time.Now()
			value, err := fn(ctx, item)
			dur := time.Since(start)
			observer.Observe(ctx, opts.Operation, err == nil, dur)
			record(Result{Index: i, Key: key, Value: value, Err: err, Duration: dur})
			return nil
		})
	}
	_ = g.Wait()

	if failed := len(report.Failed()); failed > 0 {
		logger.Warn("batch finished with failures", "operation", opts.Operation, "failed", failed, "total", report.Total)
	} else {
		logger.Debug("batch finished", "operation", opts.Operation, "total", report.Total)
	}
	return report
}
