// Package waitlist collects pre-launch signups.
package waitlist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is a single signup.
type Entry struct {
	Email     string     `json:"email"`
	JoinedAt  time.Time  `json:"joinedAt"`
	Source    string     `json:"source"`
	InvitedAt *time.Time `json:"invitedAt,omitempty"`
}

// Store persists waitlist entries. Emails are already normalized by the caller.
type Store interface {
	// Add inserts e unless its email exists. It returns the 1-based position
	// of the email and whether it was created.
	Add(ctx context.Context, e Entry) (int, bool, error)
	Count(ctx context.Context) (int, error)
	// List returns entries in join order. A nil invited returns all of them.
	List(ctx context.Context, invited *bool) ([]Entry, error)
	MarkInvited(ctx context.Context, emails []string, at time.Time) (int, error)
}

// FileStore keeps the waitlist in a single JSON array on disk.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create waitlist directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Add(_ context.Context, e Entry) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return 0, false, err
	}
	for i, existing := range entries {
		if existing.Email == e.Email {
			return i + 1, false, nil
		}
	}

	entries = append(entries, e)
	if err := s.save(entries); err != nil {
		return 0, false, err
	}
	return len(entries), true, nil
}

func (s *FileStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (s *FileStore) List(_ context.Context, invited *bool) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	if invited == nil {
		return entries, nil
	}

	out := entries[:0]
	for _, e := range entries {
		if (e.InvitedAt != nil) == *invited {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *FileStore) MarkInvited(_ context.Context, emails []string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return 0, err
	}

	wanted := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		wanted[email] = struct{}{}
	}

	updated := 0
	stamp := at.UTC()
	for i := range entries {
		if _, ok := wanted[entries[i].Email]; ok && entries[i].InvitedAt == nil {
			entries[i].InvitedAt = &stamp
			updated++
		}
	}
	if updated == 0 {
		return 0, nil
	}
	if err := s.save(entries); err != nil {
		return 0, err
	}
	return updated, nil
}

// load reads the file; a missing file is an empty waitlist.
func (s *FileStore) load() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read waitlist: %w", err)
	}

	var entries []Entry
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse waitlist: %w", err)
		}
	}
	return entries, nil
}

// save writes to a temp file in the same directory and renames it over the
// original so readers never see a half-written array.
func (s *FileStore) save(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode waitlist: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".waitlist-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write waitlist: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync waitlist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace waitlist: %w", err)
	}
	return nil
}
