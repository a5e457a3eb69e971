// Package history persists one priced record per completed turn to an
// append-only JSONL file next to the logs. The file survives crashes:
// each record is written and flushed as a single line.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vox/usage"
)

const fileName = "cost_history.jsonl"

// Store appends usage records for the current session.
type Store struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Open creates or opens the history file under dir in append mode.
func Open(dir string) (*Store, error) {
	path := filepath.Join(dir, fileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening history file: %w", err)
	}
	return &Store{file: f, path: path}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Append writes one record as a single JSON line. A zero timestamp is
// stamped with the current time.
func (s *Store) Append(r *usage.Record) error {
	if r == nil {
		return nil
	}
	rec := *r
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	data, err := json.Marshal(&rec)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("history store closed")
	}
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("writing history record: %w", err)
	}
	return nil
}

// Close is safe to call repeatedly.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
}

// Load reads every record from the history file under dir. A missing
// file is an empty history; malformed lines are skipped so one bad
// write never hides the rest.
func Load(dir string) ([]usage.Record, error) {
	f, err := os.Open(filepath.Join(dir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var records []usage.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec usage.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, scanner.Err()
}

// Summary aggregates a loaded history for display.
type Summary struct {
	Turns        int
	InputTokens  int
	OutputTokens int
	TotalCost    float64
	First        time.Time
	Last         time.Time
}

func Summarize(records []usage.Record) Summary {
	var s Summary
	for _, r := range records {
		s.Turns++
		s.InputTokens += r.InputTokens
		s.OutputTokens += r.OutputTokens
		s.TotalCost += r.TotalCost
		if s.First.IsZero() || r.Timestamp.Before(s.First) {
			s.First = r.Timestamp
		}
		if r.Timestamp.After(s.Last) {
			s.Last = r.Timestamp
		}
	}
	return s
}
