package workspace

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sahilm/fuzzy"
	"github.com/shiploop/shiploop-api/internal/errors"
)

// snapshot is an immutable view of one user's records. Mutations build a
// new snapshot and swap it in; a published snapshot is never modified.
type snapshot[T Record[T]] struct {
	items   []T
	index   map[string]int
	version uint64
}

func (s *snapshot[T]) with(items []T) *snapshot[T] {
	next := &snapshot[T]{items: items, index: make(map[string]int, len(items)), version: 1}
	if s != nil {
		next.version = s.version + 1
	}
	for i, it := range items {
		next.index[it.GetMeta().ID] = i
	}
	return next
}

// searchable adapts a snapshot to fuzzy.Source.
type searchable[T Record[T]] []T

func (s searchable[T]) String(i int) string { return s[i].SearchText() }
func (s searchable[T]) Len() int            { return len(s) }

// Store keeps one kind of record per user in memory.
type Store[T Record[T]] struct {
	kind   string
	users  *xsync.MapOf[string, *snapshot[T]]
	policy *bluemonday.Policy
	now    func() time.Time
}

func NewStore[T Record[T]](kind string, policy *bluemonday.Policy) *Store[T] {
	if policy == nil {
		policy = bluemonday.UGCPolicy()
	}
	return &Store[T]{
		kind:   kind,
		users:  xsync.NewMapOf[string, *snapshot[T]](),
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store[T]) Kind() string { return s.kind }

func (s *Store[T]) load(user string) *snapshot[T] {
	snap, _ := s.users.Load(user)
	return snap
}

// List returns the user's records in creation order. A non-empty query
// returns only fuzzy matches of SearchText, best match first.
func (s *Store[T]) List(user, query string) []T {
	snap := s.load(user)
	if snap == nil {
		return []T{}
	}
	if query == "" {
		out := make([]T, len(snap.items))
		copy(out, snap.items)
		return out
	}

	matches := fuzzy.FindFrom(query, searchable[T](snap.items))
	out := make([]T, len(matches))
	for i, m := range matches {
		out[i] = snap.items[m.Index]
	}
	return out
}

func (s *Store[T]) Get(user, id string) (T, error) {
	var zero T
	snap := s.load(user)
	if snap == nil {
		return zero, errors.NewNotFoundError(s.kind)
	}
	i, ok := snap.index[id]
	if !ok {
		return zero, errors.NewNotFoundError(s.kind)
	}
	return snap.items[i], nil
}

// Version reports how many mutations the user's records have seen.
func (s *Store[T]) Version(user string) uint64 {
	if snap := s.load(user); snap != nil {
		return snap.version
	}
	return 0
}

func (s *Store[T]) Create(user string, rec T) (T, error) {
	rec, err := rec.Normalize(s.policy)
	if err != nil {
		return rec, errors.NewValidationError(err.Error())
	}
	now := s.now()
	rec = rec.WithMeta(Meta{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now})

	s.users.Compute(user, func(old *snapshot[T], _ bool) (*snapshot[T], bool) {
		var items []T
		if old != nil {
			items = make([]T, len(old.items), len(old.items)+1)
			copy(items, old.items)
		}
		return old.with(append(items, rec)), false
	})
	return rec, nil
}

// Patch merges a partial JSON document over the stored record.
func (s *Store[T]) Patch(user, id string, patch []byte) (T, error) {
	var (
		updated T
		opErr   error
	)
	s.users.Compute(user, func(old *snapshot[T], loaded bool) (*snapshot[T], bool) {
		if !loaded || old == nil {
			opErr = errors.NewNotFoundError(s.kind)
			return old, !loaded
		}
		i, ok := old.index[id]
		if !ok {
			opErr = errors.NewNotFoundError(s.kind)
			return old, false
		}

		current := old.items[i]
		next, err := merge(current, patch)
		if err != nil {
			opErr = errors.NewValidationError("Invalid request body")
			return old, false
		}
		if next, err = next.Normalize(s.policy); err != nil {
			opErr = errors.NewValidationError(err.Error())
			return old, false
		}
		meta := current.GetMeta()
		meta.UpdatedAt = s.now()
		updated = next.WithMeta(meta)

		items := make([]T, len(old.items))
		copy(items, old.items)
		items[i] = updated
		return old.with(items), false
	})
	return updated, opErr
}

func (s *Store[T]) Delete(user, id string) error {
	var opErr error
	s.users.Compute(user, func(old *snapshot[T], loaded bool) (*snapshot[T], bool) {
		if !loaded || old == nil {
			opErr = errors.NewNotFoundError(s.kind)
			return old, !loaded
		}
		i, ok := old.index[id]
		if !ok {
			opErr = errors.NewNotFoundError(s.kind)
			return old, false
		}

		items := make([]T, 0, len(old.items)-1)
		items = append(items, old.items[:i]...)
		items = append(items, old.items[i+1:]...)
		return old.with(items), false
	})
	return opErr
}

// merge decodes patch over a deep copy of current so slices shared with the
// published snapshot are left alone.
func merge[T any](current T, patch []byte) (T, error) {
	var next T
	raw, err := json.Marshal(current)
	if err != nil {
		return next, fmt.Errorf("failed to copy record: %w", err)
	}
	if err := json.Unmarshal(raw, &next); err != nil {
		return next, fmt.Errorf("failed to copy record: %w", err)
	}
	if err := json.Unmarshal(patch, &next); err != nil {
		return next, err
	}
	return next, nil
}
