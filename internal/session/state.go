// Package session holds per-user index slots. A State owns at most one
// immutable index snapshot; a Manager maps opaque session IDs to States and
// evicts idle ones.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/insight-scout/internal/logging"
	"github.com/54b3r/insight-scout/internal/rag"
)

// ErrNotReady is returned by View when no index has been built yet.
var ErrNotReady = errors.New("session: no index has been processed")

// ErrClosed is returned by Replace and Process once the State is closed.
var ErrClosed = errors.New("session: closed")

// Snapshot is a fully built index together with what it was built from.
type Snapshot struct {
	// Index answers similarity searches for this snapshot.
	Index rag.Index

	// Sources lists the processed URLs in input order.
	Sources []string

	// Titles maps a source URL to its page title, when it had one.
	Titles map[string]string

	// Documents is the number of documents loaded.
	Documents int

	// Chunks is the number of chunks indexed.
	Chunks int

	// BuiltAt is when the snapshot was published.
	BuiltAt time.Time
}

// Info is a read-only summary of a State.
type Info struct {
	Ready     bool      `json:"ready"`
	Sources   []string  `json:"sources"`
	Documents int       `json:"documents"`
	Chunks    int       `json:"chunks"`
	BuiltAt   time.Time `json:"builtAt,omitzero"`
}

// State is one session's index slot. Readers see either no index or a
// complete one, never a partial one.
type State struct {
	// id identifies the session in logs and history.
	id string

	// processMu serialises process actions on this session.
	processMu sync.Mutex

	// mu guards snap and closed. View holds the read lock for the whole read
	// so Replace can close the old index once it acquires the write lock.
	mu     sync.RWMutex
	snap   *Snapshot
	closed bool
}

// NewState returns an empty State with a fresh random ID.
func NewState() *State { return &State{id: uuid.NewString()} }

// ID returns the session identifier.
func (s *State) ID() string { return s.id }

// Process runs build while holding the session's process lock and publishes
// its snapshot on success. On failure the current snapshot is kept.
func (s *State) Process(ctx context.Context, build func(ctx context.Context) (*Snapshot, error)) error {
	s.processMu.Lock()
	defer s.processMu.Unlock()

	snap, err := build(ctx)
	if err != nil {
		return err
	}
	return s.Replace(ctx, snap)
}

// Replace publishes snap in a single swap and closes the index it displaced.
// Failing to close the old index is logged, not returned: the swap has
// already happened. On a closed State snap is not published; its index is
// closed and ErrClosed returned.
func (s *State) Replace(ctx context.Context, snap *Snapshot) error {
	if snap == nil || snap.Index == nil {
		return fmt.Errorf("session: snapshot has no index")
	}
	if snap.BuiltAt.IsZero() {
		snap.BuiltAt = time.Now()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if err := snap.Index.Close(ctx); err != nil {
			return errors.Join(ErrClosed, fmt.Errorf("session: close index: %w", err))
		}
		return ErrClosed
	}
	old := s.snap
	s.snap = snap
	s.mu.Unlock()

	if old != nil && old.Index != snap.Index {
		if err := old.Index.Close(ctx); err != nil {
			logging.FromContext(ctx).Warn("session: failed to close previous index",
				slog.String("session", s.id),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

// View calls fn with the current snapshot. It returns ErrNotReady without
// calling fn when nothing has been processed.
func (s *State) View(fn func(*Snapshot) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return ErrNotReady
	}
	return fn(s.snap)
}

// Info summarises the current snapshot.
func (s *State) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return Info{}
	}
	return Info{
		Ready:     true,
		Sources:   append([]string(nil), s.snap.Sources...),
		Documents: s.snap.Documents,
		Chunks:    s.snap.Chunks,
		BuiltAt:   s.snap.BuiltAt,
	}
}

// Close drops the current snapshot and releases its index. A process action
// still running on the State finishes, but its snapshot is discarded.
func (s *State) Close(ctx context.Context) error {
	s.mu.Lock()
	old := s.snap
	s.snap = nil
	s.closed = true
	s.mu.Unlock()

	if old == nil {
		return nil
	}
	if err := old.Index.Close(ctx); err != nil {
		return fmt.Errorf("session: close index: %w", err)
	}
	return nil
}
