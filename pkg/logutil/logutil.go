package logutil

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	log "github.com/charmbracelet/log"
)

var (
	outputMu  sync.Mutex
	outputTee io.Writer
)

// Configure sets the global log level and (re)applies the output sink.
func Configure(levelRaw string) error {
	levelRaw = strings.TrimSpace(levelRaw)
	if levelRaw == "" {
		levelRaw = "info"
	}
	level, err := log.ParseLevel(levelRaw)
	if err != nil {
		return fmt.Errorf("invalid log level %q", levelRaw)
	}
	log.SetLevel(level)
	log.SetReportTimestamp(true)
	applyOutput()
	return nil
}

// SetOutputTee mirrors every log line into w (the in-memory log store) in
// addition to stderr.
func SetOutputTee(w io.Writer) {
	outputMu.Lock()
	outputTee = w
	outputMu.Unlock()
	applyOutput()
}

func applyOutput() {
	outputMu.Lock()
	tee := outputTee
	outputMu.Unlock()
	if tee == nil {
		log.SetOutput(os.Stderr)
		return
	}
	log.SetOutput(io.MultiWriter(os.Stderr, tee))
}
