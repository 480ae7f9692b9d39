package refresh

import (
	"context"
	"sync"
	"time"
)

// Sweeper periodically removes expired records from a Store so that
// long-lived deployments do not accumulate dead rows. It runs one
// background goroutine from construction until Close.
//
// Sweeper instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Sweeper struct {
	store     Store
	interval  time.Duration
	onSweep   func(removed int, err error)
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewSweeper starts a sweeper over the store. The interval must be
// positive. onSweep, when non-nil, is invoked after every pass with the
// number of removed records or the error the pass hit; it runs on the
// sweeper goroutine and must not block.
//
// NewSweeper may return an error when input validation, dependency calls, or security checks fail.
// NewSweeper does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewSweeper(store Store, interval time.Duration, onSweep func(removed int, err error)) *Sweeper {
	if store == nil || interval <= 0 {
		return nil
	}

	s := &Sweeper{
		store:    store,
		interval: interval,
		onSweep:  onSweep,
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.run()

	return s
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce()
		case <-s.done:
			return
		}
	}
}

func (s *Sweeper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	removed, err := s.store.Sweep(ctx)
	if s.onSweep != nil {
		s.onSweep(removed, err)
	}
}

// Close stops the background goroutine and waits for an in-flight pass to
// finish. Close is idempotent.
func (s *Sweeper) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}
