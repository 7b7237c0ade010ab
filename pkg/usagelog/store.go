package usagelog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

const segmentMaxAge = 6 * time.Hour

// Record is one completed gateway request.
type Record struct {
	Timestamp        time.Time `json:"timestamp"`
	CorrelationID    string    `json:"correlation_id"`
	Path             string    `json:"path"`
	Model            string    `json:"model,omitempty"`
	StatusCode       int       `json:"status_code"`
	Streamed         bool      `json:"streamed,omitempty"`
	Duplicate        bool      `json:"duplicate,omitempty"`
	PromptTokens     int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
	TotalTokens      int       `json:"total_tokens,omitempty"`
	LatencyMS        int64     `json:"latency_ms"`
}

// Store appends records as zstd-compressed JSONL segments under dir.
// Segments roll on age so old usage can be pruned by deleting files.
type Store struct {
	mu       sync.Mutex
	dir      string
	file     *os.File
	enc      *zstd.Encoder
	openedAt time.Time
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir usage dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Append(rec Record) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode usage record: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureSegmentLocked(rec.Timestamp); err != nil {
		return err
	}
	if _, err := s.enc.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write usage record: %w", err)
	}
	// Flush per record: usage must survive an abrupt host shutdown.
	if err := s.enc.Flush(); err != nil {
		return fmt.Errorf("flush usage segment: %w", err)
	}
	return nil
}

func (s *Store) ensureSegmentLocked(ts time.Time) error {
	if ts.IsZero() {
		ts = time.Now()
	}
	if s.file != nil && ts.Sub(s.openedAt) < segmentMaxAge {
		return nil
	}
	if err := s.closeSegmentLocked(); err != nil {
		return err
	}
	name := fmt.Sprintf("usage-%d.jsonl.zst", ts.UTC().UnixNano())
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("open usage segment: %w", err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("init zstd writer: %w", err)
	}
	s.file = f
	s.enc = enc
	s.openedAt = ts
	return nil
}

func (s *Store) closeSegmentLocked() error {
	if s.file == nil {
		return nil
	}
	encErr := s.enc.Close()
	fileErr := s.file.Close()
	s.file = nil
	s.enc = nil
	if encErr != nil {
		return fmt.Errorf("close zstd writer: %w", encErr)
	}
	if fileErr != nil {
		return fmt.Errorf("close usage segment: %w", fileErr)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeSegmentLocked()
}
