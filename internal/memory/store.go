// Package memory implements the runtime's long-term append-only memory
// log: a single JSON array file per installation, rewritten on each store.
package memory

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Record is one wrapped entry of the memory log.
type Record struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Data      any       `json:"data"`
}

// Store is an append-only JSON array persisted to a known file. On load
// failure the in-memory state starts empty and a warning is emitted;
// writes that fail are logged but do not propagate, matching the spec's
// "never block the pipeline on memory I/O" contract.
type Store struct {
	mu      sync.Mutex
	path    string
	logger  *slog.Logger
	records []Record
}

// NewStore opens (or lazily creates on first Store) the memory log at path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger.With("component", "memory")}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read memory file, starting empty", "error", err)
		}
		return
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("failed to parse memory file, starting empty", "error", err)
		return
	}
	s.records = records
}

// Store wraps item as {timestamp, source, data} and rewrites the file.
func (s *Store) Store(item any, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := Record{Timestamp: time.Now(), Source: source, Data: item}
	s.records = append(s.records, record)

	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		s.logger.Warn("failed to marshal memory records", "error", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		s.logger.Warn("failed to write memory file", "error", err)
	}
}

// Retrieve returns the last limit entries (or all entries if limit <= 0).
func (s *Store) Retrieve(limit int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit >= len(s.records) {
		out := make([]Record, len(s.records))
		copy(out, s.records)
		return out
	}
	start := len(s.records) - limit
	out := make([]Record, limit)
	copy(out, s.records[start:])
	return out
}

// Search returns entries whose serialised data contains keyword, case
// insensitively.
func (s *Store) Search(keyword string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyword = strings.ToLower(keyword)
	var matches []Record
	for _, r := range s.records {
		data, err := json.Marshal(r.Data)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(string(data)), keyword) {
			matches = append(matches, r)
		}
	}
	return matches
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Path returns the backing file path, primarily for diagnostics.
func (s *Store) Path() string {
	return s.path
}
