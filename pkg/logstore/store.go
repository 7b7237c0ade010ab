package logstore

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const defaultMaxLines = 2000

type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Store is a bounded in-memory log ring. Subscribers (the host-UI websocket)
// receive entries as they are appended; slow subscribers drop entries rather
// than block the logging path.
type Store struct {
	mu       sync.RWMutex
	maxLines int
	seq      int64
	entries  []Entry
	subs     map[chan Entry]struct{}
}

func NewStore(maxLines int) *Store {
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}
	return &Store{
		maxLines: maxLines,
		entries:  []Entry{},
		subs:     map[chan Entry]struct{}{},
	}
}

func (s *Store) Add(level, message string, ts time.Time) {
	message = strings.TrimSpace(stripANSI(message))
	if message == "" {
		return
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	} else {
		ts = ts.UTC()
	}

	s.mu.Lock()
	s.seq++
	e := Entry{
		ID:        fmt.Sprintf("log-%d", s.seq),
		Timestamp: ts,
		Level:     normalizeLevel(level),
		Message:   message,
	}
	s.entries = append(s.entries, e)
	if len(s.entries) > s.maxLines {
		s.entries = append([]Entry(nil), s.entries[len(s.entries)-s.maxLines:]...)
	}
	for ch := range s.subs {
		select {
		case ch <- e:
		default:
		}
	}
	s.mu.Unlock()
}

// Recent returns up to limit entries, newest last.
func (s *Store) Recent(limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]Entry, limit)
	copy(out, s.entries[len(s.entries)-limit:])
	return out
}

// Subscribe registers a live entry channel; the returned func unsubscribes.
func (s *Store) Subscribe() (<-chan Entry, func()) {
	ch := make(chan Entry, 64)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}

// Writer returns an io.Writer that splits logger output into lines and
// appends them to the store.
func (s *Store) Writer() io.Writer {
	return &sink{store: s}
}

type sink struct {
	store *Store
	mu    sync.Mutex
	buf   []byte
}

func (w *sink) Write(p []byte) (int, error) {
	if w == nil || w.store == nil {
		return len(p), nil
	}
	w.mu.Lock()
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(w.buf[:idx]))
		w.buf = w.buf[idx+1:]
		if line == "" {
			continue
		}
		w.store.Add(extractLevel(line), extractMessage(line), time.Now().UTC())
	}
	w.mu.Unlock()
	return len(p), nil
}

func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "debu":
		return "debug"
	case "warn", "warning", "wrn":
		return "warn"
	case "error", "erro", "err":
		return "error"
	case "fatal", "fata":
		return "fatal"
	default:
		return "info"
	}
}

func extractLevel(line string) string {
	u := " " + strings.ToUpper(stripANSI(line)) + " "
	switch {
	case strings.Contains(u, " DEBUG "), strings.Contains(u, " DEBU "):
		return "debug"
	case strings.Contains(u, " WARN "), strings.Contains(u, " WARNING "):
		return "warn"
	case strings.Contains(u, " ERROR "), strings.Contains(u, " ERRO "):
		return "error"
	case strings.Contains(u, " FATAL "), strings.Contains(u, " FATA "):
		return "fatal"
	default:
		return "info"
	}
}

func extractMessage(line string) string {
	s := strings.TrimSpace(stripANSI(line))
	fields := strings.Fields(s)
	// Typical console format: "<time> <LEVEL> message key=value".
	if len(fields) >= 3 && strings.Contains(fields[0], ":") && looksLevelToken(fields[1]) {
		return strings.Join(fields[2:], " ")
	}
	if len(fields) >= 2 && looksLevelToken(fields[0]) {
		return strings.Join(fields[1:], " ")
	}
	return s
}

func looksLevelToken(v string) bool {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "DEBUG", "DEBU", "INFO", "WARN", "WARNING", "ERROR", "ERRO", "FATAL", "FATA":
		return true
	}
	return false
}

func stripANSI(s string) string {
	if !strings.ContainsRune(s, 0x1b) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inEsc := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !inEsc {
			if ch == 0x1b {
				inEsc = true
				continue
			}
			b.WriteByte(ch)
			continue
		}
		if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') {
			inEsc = false
		}
	}
	return b.String()
}
