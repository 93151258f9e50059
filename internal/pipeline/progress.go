package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MeKo-Tech/idscan/internal/document"
)

// ProgressCallback defines the interface for progress reporting while
// several captures are scanned one after another.
type ProgressCallback interface {
	// OnStart is called when processing begins with the total number of captures.
	OnStart(total int)

	// OnResult is called once per scanned capture.
	OnResult(current, total int, name string, res *document.ScanResult)

	// OnError is called when a capture could not be scanned at all.
	OnError(current int, name string, err error)

	// OnComplete is called when processing is finished.
	OnComplete()
}

// NoOpProgressCallback implements ProgressCallback but does nothing.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)                                     {}
func (NoOpProgressCallback) OnResult(int, int, string, *document.ScanResult) {}
func (NoOpProgressCallback) OnError(int, string, error)                      {}
func (NoOpProgressCallback) OnComplete()                                     {}

// ConsoleProgressCallback prints one status line per capture.
type ConsoleProgressCallback struct {
	writer    io.Writer
	prefix    string
	mutex     sync.Mutex
	startTime time.Time
	last      time.Time
	counts    map[document.Status]int
}

// NewConsoleProgressCallback creates a new console progress reporter.
func NewConsoleProgressCallback(writer io.Writer, prefix string) *ConsoleProgressCallback {
	if writer == nil {
		writer = os.Stderr
	}
	return &ConsoleProgressCallback{writer: writer, prefix: prefix}
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.startTime = time.Now()
	c.last = c.startTime
	c.counts = make(map[document.Status]int)
	_, _ = fmt.Fprintf(c.writer, "%sScanning %d capture(s)\n", c.prefix, total)
}

func (c *ConsoleProgressCallback) OnResult(current, total int, name string, res *document.ScanResult) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	took := now.Sub(c.last)
	c.last = now
	if c.counts == nil {
		c.counts = make(map[document.Status]int)
	}
	c.counts[res.Status]++
	_, _ = fmt.Fprintf(c.writer, "%s[%d/%d] %s: %s (%s) %v\n",
		c.prefix, current, total, name, res.Status, res.TemplateID, took.Round(time.Millisecond))
}

func (c *ConsoleProgressCallback) OnError(current int, name string, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.last = time.Now()
	_, _ = fmt.Fprintf(c.writer, "%sError at capture %d (%s): %v\n", c.prefix, current, name, err)
}

func (c *ConsoleProgressCallback) OnComplete() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	elapsed := time.Since(c.startTime)
	_, _ = fmt.Fprintf(c.writer, "%sCompleted in %v: %d complete, %d partial, %d failed\n",
		c.prefix, elapsed.Round(time.Millisecond),
		c.counts[document.StatusComplete], c.counts[document.StatusPartial], c.counts[document.StatusFailed])
}

// LogProgressCallback logs progress updates using slog.
type LogProgressCallback struct {
	logger    *slog.Logger
	level     slog.Level
	startTime time.Time
}

// NewLogProgressCallback creates a new log-based progress reporter.
func NewLogProgressCallback(logger *slog.Logger, level slog.Level) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level}
}

func (l *LogProgressCallback) OnStart(total int) {
	l.startTime = time.Now()
	l.logger.Log(context.Background(), l.level, "Starting scans", "total", total)
}

func (l *LogProgressCallback) OnResult(current, total int, name string, res *document.ScanResult) {
	l.logger.Log(context.Background(), l.level, "Capture scanned",
		"current", current,
		"total", total,
		"capture", name,
		"status", res.Status,
		"template", res.TemplateID,
	)
}

func (l *LogProgressCallback) OnError(current int, name string, err error) {
	l.logger.Log(context.Background(), slog.LevelError, "Capture failed", "current", current, "capture", name, "error", err)
}

func (l *LogProgressCallback) OnComplete() {
	l.logger.Log(context.Background(), l.level, "Scans completed", "elapsed", time.Since(l.startTime).Round(time.Millisecond))
}

// MultiProgressCallback combines multiple progress callbacks.
type MultiProgressCallback struct {
	callbacks []ProgressCallback
}

// NewMultiProgressCallback creates a progress callback that reports to multiple callbacks.
func NewMultiProgressCallback(callbacks ...ProgressCallback) *MultiProgressCallback {
	return &MultiProgressCallback{callbacks: callbacks}
}

func (m *MultiProgressCallback) OnStart(total int) {
	for _, cb := range m.callbacks {
		cb.OnStart(total)
	}
}

func (m *MultiProgressCallback) OnResult(current, total int, name string, res *document.ScanResult) {
	for _, cb := range m.callbacks {
		cb.OnResult(current, total, name, res)
	}
}

func (m *MultiProgressCallback) OnError(current int, name string, err error) {
	for _, cb := range m.callbacks {
		cb.OnError(current, name, err)
	}
}

func (m *MultiProgressCallback) OnComplete() {
	for _, cb := range m.callbacks {
		cb.OnComplete()
	}
}
