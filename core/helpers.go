package live

import (
	"context"
	"fmt"
)

type workerRun func(context.Context) error

func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s worker panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}

		return nil
	}
}

// goWorker runs a panic safe worker on its own goroutine and logs its
// failure.
func goWorker(ctx context.Context, name string, run func(context.Context) error) {
	worker := panicSafeNamedWorker(name, run)
	go func() {
		if err := worker(ctx); err != nil {
			logger.Warn("background worker failed", "worker", name, "error", err)
		}
	}()
}
