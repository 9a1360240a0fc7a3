package shell

import (
	"context"
	"fmt"
	"sync"

	"github.com/ridecheck/ridecheck/internal/logger"
)

// backgroundWriter runs cache writes as detached tasks.
//
// Failure policy: a failed write is logged at debug level, reported through
// onFailure, and then discarded. It is never retried and never reaches the
// request that produced the response.
type backgroundWriter struct {
	wg        sync.WaitGroup
	log       logger.Logger
	onFailure func(key string, err error)
}

func newBackgroundWriter(log logger.Logger, onFailure func(key string, err error)) *backgroundWriter {
	return &backgroundWriter{log: log, onFailure: onFailure}
}

// Go starts task without waiting for it. The task's context keeps the values
// of ctx but is not cancelled with it, so a finished request does not abort
// its own cache write.
func (w *backgroundWriter) Go(ctx context.Context, key string, task func(context.Context) error) {
	detached := context.WithoutCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.run(detached, task); err != nil {
			w.log.Debug("cache write discarded",
				logger.String("key", key),
				logger.Error(err))
			if w.onFailure != nil {
				w.onFailure(key, err)
			}
		}
	}()
}

func (w *backgroundWriter) run(ctx context.Context, task func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache write panicked: %v", r)
		}
	}()
	return task(ctx)
}

// Wait blocks until every started task has finished.
func (w *backgroundWriter) Wait() {
	w.wg.Wait()
}
