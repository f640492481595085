package jobs

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is the background part of a job. It returns the final artifact URL.
type Task func(ctx context.Context) (string, error)

// Runner executes background tasks. Every task ends by writing a terminal
// record, whatever happens inside it.
type Runner struct {
	store Store
	wg    sync.WaitGroup
}

func NewRunner(store Store) *Runner {
	return &Runner{store: store}
}

// Start runs task in the background for rec. workDir belongs to the task
// and is removed before the terminal record is written. ctx only carries
// values; the task is not cancelled when it ends.
func (r *Runner) Start(ctx context.Context, rec Record, workDir string, task Task) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		url, err := r.run(context.WithoutCancel(ctx), task)

		if workDir != "" {
			if rmErr := os.RemoveAll(workDir); rmErr != nil {
				log.Warn().Err(rmErr).Str("job", rec.ID).Msg("could not remove work dir")
			}
		}

		final := rec.Complete(url, "Video ready")
		if err != nil {
			log.Error().Err(err).Str("job", rec.ID).Msg("render failed")
			final = rec.Fail(err.Error())
		} else {
			log.Info().Str("job", rec.ID).Str("video", url).Msg("render completed")
		}

		wctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if perr := r.store.Put(wctx, final); perr != nil {
			log.Error().Err(perr).Str("job", rec.ID).Msg("could not write terminal job record")
		}
	}()
}

func (r *Runner) run(ctx context.Context, task Task) (url string, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Bytes("stack", debug.Stack()).Msg("render task panicked")
			err = fmt.Errorf("internal error: %v", p)
		}
	}()
	return task(ctx)
}

// Wait blocks until every started task has written its terminal record.
func (r *Runner) Wait() {
	r.wg.Wait()
}
