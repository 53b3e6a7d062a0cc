package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hashicorp/go-multierror"

	log "github.com/Geal/proust/logging"
)

// Task is a long running function supervised until it returns nil or ctx is done
type Task func(ctx context.Context) error

// PanicError is the failure recorded when a task panics
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Supervisor restarts a failing task at most MaxRestarts times
type Supervisor struct {
	Name        string
	MaxRestarts int
	Backoff     time.Duration
}

// Run runs task until it returns nil or ctx is cancelled, restarting it on errors and panics.
// When restarts are exhausted every failure is returned.
func (s Supervisor) Run(ctx context.Context, task Task) error {
	var failures *multierror.Error
	for attempt := 0; ; attempt++ {
		err := runOnce(ctx, task)
		if err == nil || ctx.Err() != nil {
			if err != nil {
				log.Debug("%v stopped during shutdown: %v", s.Name, err)
			}
			return nil
		}
		failures = multierror.Append(failures, fmt.Errorf("%v run %d: %w", s.Name, attempt+1, err))
		if attempt >= s.MaxRestarts {
			log.Error("%v failed %d times, giving up: %v", s.Name, attempt+1, err)
			return failures.ErrorOrNil()
		}
		log.Warn("%v failed, restarting (%d/%d): %v", s.Name, attempt+1, s.MaxRestarts, err)

		if s.Backoff > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.Backoff * time.Duration(attempt+1)):
			}
		}
	}
}

func runOnce(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return task(ctx)
}
