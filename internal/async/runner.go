package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront-be/internal/logger"

	"go.uber.org/zap"
)

var ErrSaturated = errors.New("async runner saturated")

// Task is a best-effort side effect. Its error never reaches the caller that
// scheduled it.
type Task func(ctx context.Context) error

type TaskError struct {
	Name      string
	RequestID string
	Err       error
}

func (e TaskError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

// Runner executes fire-and-forget tasks on a bounded number of goroutines and
// reports failures on its own error channel.
type Runner struct {
	slots   chan struct{}
	errs    chan TaskError
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewRunner(workers int, timeout time.Duration) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		slots:   make(chan struct{}, workers),
		errs:    make(chan TaskError, workers*4),
		timeout: timeout,
	}
}

// Go schedules task without blocking. The task context keeps the values of
// ctx (request id, log fields) but not its cancellation.
func (r *Runner) Go(ctx context.Context, name string, task Task) {
	reqID := logger.RequestIDFrom(ctx)

	select {
	case r.slots <- struct{}{}:
	default:
		r.report(TaskError{Name: name, RequestID: reqID, Err: ErrSaturated})
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { <-r.slots }()
		defer func() {
			if p := recover(); p != nil {
				r.report(TaskError{Name: name, RequestID: reqID, Err: fmt.Errorf("panic: %v", p)})
			}
		}()

		taskCtx := context.WithoutCancel(ctx)
		if r.timeout > 0 {
			var cancel context.CancelFunc
			taskCtx, cancel = context.WithTimeout(taskCtx, r.timeout)
			defer cancel()
		}

		if err := task(taskCtx); err != nil {
			r.report(TaskError{Name: name, RequestID: reqID, Err: err})
		}
	}()
}

func (r *Runner) report(te TaskError) {
	select {
	case r.errs <- te:
	default:
		logTaskError(te)
	}
}

func (r *Runner) Errors() <-chan TaskError {
	return r.errs
}

// Drain logs task errors until ctx is done. Run it in its own goroutine.
func (r *Runner) Drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case te := <-r.errs:
					logTaskError(te)
				default:
					return
				}
			}
		case te := <-r.errs:
			logTaskError(te)
		}
	}
}

// Wait blocks until every scheduled task has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func logTaskError(te TaskError) {
	logger.L().Warn("best-effort task failed",
		zap.String("layer", "async"),
		zap.String("task", te.Name),
		zap.String("request_id", te.RequestID),
		zap.Error(te.Err),
	)
}
