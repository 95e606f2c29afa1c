// SPDX-License-Identifier: GPL-3.0-or-later

package dnssteal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingObserver is an [Observer] remembering what it saw.
type recordingObserver struct {
	mu        sync.Mutex
	accepted  []Fragment
	rejected  []error
	completed []CompletedFile
	failed    []string
	inflight  []int
}

var _ Observer = &recordingObserver{}

func (ro *recordingObserver) FragmentAccepted(frag Fragment) {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	ro.accepted = append(ro.accepted, frag)
}

func (ro *recordingObserver) FragmentRejected(err error) {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	ro.rejected = append(ro.rejected, err)
}

func (ro *recordingObserver) FileCompleted(file CompletedFile) {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	ro.completed = append(ro.completed, file)
}

func (ro *recordingObserver) AssemblyFailed(id string, err error) {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	ro.failed = append(ro.failed, id)
}

func (ro *recordingObserver) InflightTransfers(count int) {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	ro.inflight = append(ro.inflight, count)
}

// channelSink returns a [Sink] writing into the returned channel.
func channelSink(size int) (Sink, <-chan CompletedFile) {
	ch := make(chan CompletedFile, size)
	sink := SinkFunc(func(ctx context.Context, file CompletedFile) error {
		ch <- file
		return nil
	})
	return sink, ch
}

func TestSweeperSweep(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	now := t0
	store := newTestStore(&now)
	sink, ch := channelSink(4)
	observer := &recordingObserver{}

	sweeper := NewSweeper(store, sink)
	sweeper.Observer = observer

	// a good transfer, a broken one and one still in progress
	id, fragments := testFragments("hello.txt", "Hello, World!\n", 8)
	for seq, text := range fragments {
		store.Upsert(id, seq, text)
	}
	store.Upsert("dead", 0, "broken-")
	now = t0.Add(3 * time.Second)
	store.Upsert("beef", 0, "partial-")

	count := sweeper.Sweep(context.Background(), t0.Add(6*time.Second))
	sweeper.Wait()
	require.Equal(t, 1, count)

	require.Len(t, ch, 1)
	file := <-ch
	require.Equal(t, "hello.txt", file.Filename)
	require.Equal(t, "Hello, World!\n", file.Content)
	require.Equal(t, t0.Add(6*time.Second), file.CompletedAt)

	require.Equal(t, 1, store.Len())
	require.Equal(t, []string{"dead"}, observer.failed)
	require.Len(t, observer.completed, 1)
	require.Equal(t, []int{1}, observer.inflight)
}

func TestSweeperSweepNothingIdle(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := newTestStore(&now)
	sink, ch := channelSink(1)

	store.Upsert("ab12", 0, "x")
	sweeper := NewSweeper(store, sink)
	require.Equal(t, 0, sweeper.Sweep(context.Background(), now.Add(time.Second)))
	sweeper.Wait()
	require.Empty(t, ch)
	require.Equal(t, 1, store.Len())
}

func TestSweeperSinkFailureIsNotFatal(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := newTestStore(&now)
	failing := SinkFunc(func(ctx context.Context, file CompletedFile) error {
		return errors.New("mocked error")
	})

	id, fragments := testFragments("a.txt", "content", 120)
	store.Upsert(id, 0, fragments[0])

	sweeper := NewSweeper(store, failing)
	require.Equal(t, 1, sweeper.Sweep(context.Background(), now.Add(time.Minute)))
	sweeper.Wait()
	require.Equal(t, 0, store.Len())
}

func TestSweeperDeliveryOutlivesSweep(t *testing.T) {
	now := time.Unix(1700000000, 0)
	store := newTestStore(&now)

	release := make(chan struct{})
	done := make(chan CompletedFile, 1)
	slow := SinkFunc(func(ctx context.Context, file CompletedFile) error {
		<-release
		done <- file
		return ctx.Err()
	})

	id, fragments := testFragments("a.txt", "content", 120)
	store.Upsert(id, 0, fragments[0])

	ctx, cancel := context.WithCancel(context.Background())
	sweeper := NewSweeper(store, slow)
	require.Equal(t, 1, sweeper.Sweep(ctx, now.Add(time.Minute)))

	// the next sweep runs while the delivery is still pending
	require.Equal(t, 0, sweeper.Sweep(ctx, now.Add(2*time.Minute)))

	// cancelling the sweep context does not cancel the delivery
	cancel()
	close(release)
	sweeper.Wait()
	require.Equal(t, "content", (<-done).Content)
}

func TestSweeperRun(t *testing.T) {
	store := NewStore()
	sink, ch := channelSink(1)

	id, fragments := testFragments("a.txt", "content", 120)
	store.Upsert(id, 0, fragments[0])

	sweeper := NewSweeper(store, sink)
	sweeper.IdleThreshold = 0
	sweeper.Interval = 10 * time.Millisecond
	sweeper.TimeNow = func() time.Time {
		return time.Now().Add(time.Second)
	}

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		sweeper.Run(ctx)
	}()

	select {
	case file := <-ch:
		require.Equal(t, "a.txt", file.Filename)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the file")
	}

	cancel()
	<-finished
	require.Equal(t, 0, store.Len())
}
