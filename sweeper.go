// SPDX-License-Identifier: GPL-3.0-or-later

package dnssteal

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultSweepInterval is the default interval between sweeps.
	DefaultSweepInterval = time.Second

	// DefaultIdleThreshold is the default time after which a transfer
	// that received no fragments is considered done.
	DefaultIdleThreshold = 5 * time.Second
)

// Sweeper drains idle transfers from a [*Store], assembles them and
// delivers the results to a [Sink].
//
// Construct using [NewSweeper] and then adjust the OPTIONAL fields.
type Sweeper struct {
	// IdleThreshold is the idle time after which a transfer is drained.
	IdleThreshold time.Duration

	// Interval is the time between sweeps.
	Interval time.Duration

	// Logger is the logger to use.
	Logger *slog.Logger

	// Observer is notified about completed and failed transfers.
	Observer Observer

	// Sink receives the completed files.
	Sink Sink

	// Store is the store to drain.
	Store *Store

	// TimeNow returns the current time.
	TimeNow func() time.Time

	wg sync.WaitGroup
}

// NewSweeper creates a [*Sweeper] with default settings.
func NewSweeper(store *Store, sink Sink) *Sweeper {
	return &Sweeper{
		IdleThreshold: DefaultIdleThreshold,
		Interval:      DefaultSweepInterval,
		Logger:        slog.Default(),
		Observer:      NopObserver{},
		Sink:          sink,
		Store:         store,
		TimeNow:       time.Now,
	}
}

// Run sweeps every Interval until the context is done, then waits
// for the pending deliveries to finish.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	defer s.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx, s.TimeNow())
		}
	}
}

// Sweep performs a single drain-and-assemble pass using now as the
// current time and returns the number of files handed to the Sink.
//
// Failed transfers are logged and discarded.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) int {
	drained := s.Store.DrainIdle(s.IdleThreshold, now)
	s.Observer.InflightTransfers(s.Store.Len())

	var count int
	for _, tx := range drained {
		s.Logger.Info("flushing transfer", slog.String("id", tx.ID), slog.Int("fragments", len(tx.Fragments)))
		file, err := Assemble(tx.ID, tx.Fragments, now)
		if err != nil {
			s.Logger.Warn("discarding transfer", slog.String("id", tx.ID), slog.Any("err", err))
			s.Observer.AssemblyFailed(tx.ID, err)
			continue
		}
		s.Logger.Info(
			"extracted file",
			slog.String("id", tx.ID),
			slog.String("md5", file.ChecksumHex),
			slog.String("filename", file.Filename),
			slog.Int("size", len(file.Content)),
		)
		s.Observer.FileCompleted(file)
		s.deliver(context.WithoutCancel(ctx), file)
		count++
	}
	return count
}

func (s *Sweeper) deliver(ctx context.Context, file CompletedFile) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.Sink.Deliver(ctx, file); err != nil {
			s.Logger.Warn("cannot deliver file", slog.String("filename", file.Filename), slog.Any("err", err))
		}
	}()
}

// Wait blocks until all the pending deliveries have completed.
func (s *Sweeper) Wait() {
	s.wg.Wait()
}
