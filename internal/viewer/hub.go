// SPDX-License-Identifier: GPL-3.0-or-later

package viewer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bassosimone/dnssteal"
	"github.com/google/uuid"
)

// subscriberBuffer is the number of files queued for a slow viewer
// before further files are dropped for it.
const subscriberBuffer = 16

// Hub fans out completed files to the connected viewers and keeps
// the most recent ones for viewers connecting later.
//
// Hub implements [dnssteal.Sink]. Delivery never blocks.
type Hub struct {
	logger      *slog.Logger
	maxRecent   int
	mu          sync.Mutex
	closed      bool
	recent      []dnssteal.CompletedFile
	subscribers map[string]chan dnssteal.CompletedFile
}

var _ dnssteal.Sink = &Hub{}

// NewHub creates a [*Hub] remembering up to maxRecent files.
func NewHub(maxRecent int, logger *slog.Logger) *Hub {
	return &Hub{
		logger:      logger,
		maxRecent:   maxRecent,
		subscribers: make(map[string]chan dnssteal.CompletedFile),
	}
}

// Deliver implements [dnssteal.Sink].
func (h *Hub) Deliver(ctx context.Context, file dnssteal.CompletedFile) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.maxRecent > 0 {
		h.recent = append(h.recent, file)
		if excess := len(h.recent) - h.maxRecent; excess > 0 {
			h.recent = append([]dnssteal.CompletedFile(nil), h.recent[excess:]...)
		}
	}

	for id, ch := range h.subscribers {
		select {
		case ch <- file:
		default:
			h.logger.Warn("viewer too slow, dropping file", slog.String("viewer", id), slog.String("filename", file.Filename))
		}
	}
	return nil
}

// Subscribe registers a new viewer. The returned channel receives the
// files delivered from now on and is closed by the returned cancel
// function or by [*Hub.Close].
func (h *Hub) Subscribe() (string, <-chan dnssteal.CompletedFile, func()) {
	id := uuid.NewString()
	ch := make(chan dnssteal.CompletedFile, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch, func() {}
	}
	h.subscribers[id] = ch
	h.logger.Info("viewer connected", slog.String("viewer", id))

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if ch, found := h.subscribers[id]; found {
			delete(h.subscribers, id)
			close(ch)
			h.logger.Info("viewer disconnected", slog.String("viewer", id))
		}
	}
	return id, ch, cancel
}

// Subscribers returns the number of connected viewers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Recent returns the most recent files, oldest first.
func (h *Hub) Recent() []dnssteal.CompletedFile {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]dnssteal.CompletedFile{}, h.recent...)
}

// Close disconnects all the viewers.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subscribers {
		delete(h.subscribers, id)
		close(ch)
	}
}
