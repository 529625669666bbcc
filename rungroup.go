package uno

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/alphadose/haxmap"
	"golang.org/x/sync/errgroup"
)

// runGroup supervises runner goroutines in two tiers: awaited jobs keep the
// group alive, background jobs are cancelled once the last awaited job
// finishes. Any job error, awaited or background, stops the whole group.
type runGroup struct {
	awaitedWG    *errgroup.Group
	backgroundWG *errgroup.Group

	counter atomic.Int64
	jobs    *haxmap.Map[int64, *runJob]

	wait func() error
	stop func()
}

func newRunGroup() *runGroup {
	awaitedWG, awaitedCtx := errgroup.WithContext(context.Background())
	backgroundWG, backgroundCtx := errgroup.WithContext(context.Background())

	var g *runGroup
	g = &runGroup{
		awaitedWG:    awaitedWG,
		backgroundWG: backgroundWG,
		jobs:         haxmap.New[int64, *runJob](),
		wait:         sync.OnceValue(func() error { return errors.Join(awaitedWG.Wait(), backgroundWG.Wait()) }),
		stop: sync.OnceFunc(func() {
			g.jobs.ForEach(func(_ int64, j *runJob) bool {
				j.cancel()
				return true
			})
		}),
	}

	go func() {
		select {
		case <-awaitedCtx.Done():
		case <-backgroundCtx.Done():
		}
		g.stop()
	}()

	return g
}

// Go schedules fn. Awaited jobs hold the group open; when the last of them
// returns, every remaining job is cancelled.
func (g *runGroup) Go(ctx context.Context, wait bool, fn func(context.Context) error) {
	fnCtx, cancel := context.WithCancel(ctx)

	j := &runJob{
		fn:     fn,
		wait:   wait,
		cancel: cancel,
	}

	g.jobs.Set(g.counter.Add(1), j)

	wg := g.backgroundWG
	if wait {
		wg = g.awaitedWG
	}

	wg.Go(func() error {
		err := j.run(fnCtx)
		if err != nil {
			return err
		}

		running := 0
		g.jobs.ForEach(func(_ int64, j *runJob) bool {
			if !j.wait {
				return true
			}
			running++
			if j.done.Load() {
				running--
			}
			return true
		})

		if running == 0 {
			g.stop()
		}

		return nil
	})
}

// Wait blocks until every job has returned and reports their joined errors.
func (g *runGroup) Wait() error {
	return g.wait()
}

// Stop cancels every job's context. Jobs still have to return on their own.
func (g *runGroup) Stop() {
	g.stop()
}

type runJob struct {
	fn     func(context.Context) error
	wait   bool
	cancel context.CancelFunc

	done atomic.Bool
}

func (j *runJob) run(ctx context.Context) (err error) {
	defer j.done.Store(true)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("runner panicked: %v", r)
		}
	}()

	return j.fn(ctx)
}
