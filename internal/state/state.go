// Package state persists the small service status record the daemon writes
// after every cycle: last check time, last successful login time and the
// last portal URL seen.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is the persisted status of the daemon.
type Record struct {
	LastCheck *time.Time `json:"last_check,omitempty"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	LastPortal string    `json:"last_portal,omitempty"`
}

// Store handles persistence of the status record to disk.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store and ensures its directory exists.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}
	return &Store{path: path}, nil
}

// Load reads the current record. A missing or corrupt file yields a zero
// record; the status file is advisory and never blocks the daemon.
func (s *Store) Load() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Update stamps the record after a cycle: the check time always, the login
// time on success, and the portal URL when one was detected.
func (s *Store) Update(portalURL string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.loadLocked()
	now := time.Now().UTC()
	rec.LastCheck = &now
	if success {
		rec.LastLogin = &now
	}
	if portalURL != "" {
		rec.LastPortal = portalURL
	}
	return s.persistLocked(rec)
}

func (s *Store) loadLocked() Record {
	data, err := os.ReadFile(s.path)
	if err != nil || len(data) == 0 {
		return Record{}
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}
	}
	return rec
}

func (s *Store) persistLocked(rec Record) error {
	bytes, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, bytes, 0o644); err != nil {
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// FormatAgo renders a timestamp as a rough "N units ago" string for the
// status command.
func FormatAgo(t time.Time) string {
	diff := time.Since(t)
	if diff < 0 {
		return "just now"
	}

	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%d seconds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	default:
		return plural(int(diff.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
