package deadletter

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/usvsthem-notdev/driftq/internal/metrics"
)

// ErrNotFound is returned when a requeue targets an entry that does not exist.
var ErrNotFound = errors.New("dead letter entry not found")

// Entry is an immutable record of a permanently-failed job.
type Entry struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Payload       []byte    `json:"payload,omitempty"`
	Error         string    `json:"error"`
	ErrorCategory Category  `json:"error_category"`
	Retries       int       `json:"retries"`
	FailedAt      time.Time `json:"failed_at"`
}

// Store is a disk-backed record of permanently-failed jobs. Every mutation
// rewrites the whole file through a temp-write + rename so the persisted
// state is always either the previous or the new list, never a partial write.
type Store struct {
	mu      sync.Mutex
	path    string
	entries []Entry
	alerter *Alerter
}

// Option configures a Store.
type Option func(*Store)

// WithAlerter attaches an alert destination fired on every append.
func WithAlerter(a *Alerter) Option {
	return func(s *Store) {
		s.alerter = a
	}
}

// New creates a Store persisting to the given file path.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path: path,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the persisted entry list from disk. A missing or unreadable
// file is not fatal: the store starts empty and the condition is logged.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", s.path).Msg("no dead letter file, starting empty")
			return nil
		}
		log.Warn().Err(err).Str("path", s.path).Msg("failed to read dead letter file, starting empty")
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("failed to parse dead letter file, starting empty")
		return nil
	}

	s.entries = entries
	metrics.DeadLetterEntries.Set(float64(len(s.entries)))
	log.Info().Int("entries", len(s.entries)).Str("path", s.path).Msg("loaded dead letter store")
	return nil
}

// Append adds one entry and synchronously persists the whole list. A persist
// failure is returned but the in-memory list still holds the entry; the
// entry is only lost if the process crashes before a later successful write.
func (s *Store) Append(entry Entry) error {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	metrics.DeadLetterEntries.Set(float64(len(s.entries)))
	err := s.persistLocked()
	s.mu.Unlock()

	if s.alerter != nil {
		go s.alerter.Fire(entry)
	}

	if err != nil {
		// Best effort: the in-memory list keeps the entry; callers log.
		return fmt.Errorf("failed to persist dead letter store: %w", err)
	}

	log.Warn().
		Str("job_id", entry.ID).
		Str("type", entry.Type).
		Str("category", string(entry.ErrorCategory)).
		Int("retries", entry.Retries).
		Msg("job dead-lettered")
	return nil
}

// List returns a copy of all entries.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear empties the store and persists the empty state.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	metrics.DeadLetterEntries.Set(0)
	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("failed to persist dead letter store: %w", err)
	}
	return nil
}

// Requeue removes and returns the entry matching id. The caller is
// responsible for reconstructing a job and enqueueing it again; the store
// never re-injects into the queue itself.
func (s *Store) Requeue(id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, entry := range s.entries {
		if entry.ID != id {
			continue
		}
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
		metrics.DeadLetterEntries.Set(float64(len(s.entries)))
		if err := s.persistLocked(); err != nil {
			log.Error().Err(err).Str("job_id", id).Msg("failed to persist dead letter store after requeue")
		}
		return entry, nil
	}

	return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// persistLocked writes the entry list to a temp file in the same directory
// and renames it over the real file. Callers must hold s.mu.
func (s *Store) persistLocked() error {
	entries := s.entries
	if entries == nil {
		entries = []Entry{}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal entries: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
