// SPDX-License-Identifier: GPL-3.0-or-later

package dnssteal

import (
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// Transfer is a file being reconstructed from fragments sharing an ID.
type Transfer struct {
	// ID is the transfer ID.
	ID string

	// Fragments maps sequence numbers to fragment text.
	Fragments map[uint32]string

	// LastSeen is when the most recent fragment was received.
	LastSeen time.Time
}

// SortedKeys returns the sequence numbers in ascending order.
func (t *Transfer) SortedKeys() []uint32 {
	keys := make([]uint32, 0, len(t.Fragments))
	for key := range t.Fragments {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Payload concatenates the fragments by ascending sequence number.
func (t *Transfer) Payload() string {
	var sb strings.Builder
	for _, key := range t.SortedKeys() {
		sb.WriteString(t.Fragments[key])
	}
	return sb.String()
}

// Store is the table of in-flight transfers.
//
// Construct using [NewStore]. The zero value is not ready to use.
//
// A Store is safe for concurrent use. The lock is only held to mutate
// or drain the table and never while assembling.
type Store struct {
	// TimeNow is the function used to stamp LastSeen.
	TimeNow func() time.Time

	mu        sync.Mutex
	transfers map[string]*Transfer
}

// NewStore creates an empty [*Store] using [time.Now] as its clock.
func NewStore() *Store {
	return &Store{
		TimeNow:   time.Now,
		transfers: make(map[string]*Transfer),
	}
}

// Upsert records a fragment, creating the transfer if needed. A fragment
// with an already-seen sequence number replaces the previous one.
func (s *Store) Upsert(id string, seq uint32, text string) {
	now := s.TimeNow()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, found := s.transfers[id]
	if !found {
		tx = &Transfer{ID: id, Fragments: make(map[uint32]string)}
		s.transfers[id] = tx
	}
	tx.Fragments[seq] = text
	tx.LastSeen = now
}

// DrainIdle removes and returns the transfers for which more than
// threshold elapsed between LastSeen and now. The caller owns the
// returned transfers, which are sorted by ID.
func (s *Store) DrainIdle(threshold time.Duration, now time.Time) []*Transfer {
	s.mu.Lock()
	var drained []*Transfer
	for id, tx := range s.transfers {
		if now.Sub(tx.LastSeen) > threshold {
			drained = append(drained, tx)
			delete(s.transfers, id)
		}
	}
	s.mu.Unlock()

	sort.Slice(drained, func(i, j int) bool {
		return drained[i].ID < drained[j].ID
	})
	return drained
}

// Len returns the number of in-flight transfers.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.transfers)
}
