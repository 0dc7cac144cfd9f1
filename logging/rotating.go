package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultFilePrefix  = "prescriptions"
	defaultMaxFileSize = 100 * 1024 * 1024
	cleanupInterval    = 24 * time.Hour
)

var numberedFileRe = regexp.MustCompile(`-\d{4}-W\d{2}_(\d{2})\.log$`)

// RotatingLogger is an io.Writer that writes to one file per ISO week,
// starting a numbered sibling when the size limit is reached, and removes
// files older than the retention period once a day.
type RotatingLogger struct {
	dir         string
	prefix      string
	retention   time.Duration
	maxFileSize int64

	mu          sync.Mutex
	file        *os.File
	week        string
	size        atomic.Int64
	stop        chan struct{}
	cleanupDone chan struct{}
	closeOnce   sync.Once
}

// NewRotatingLogger creates the log directory and opens the file for the current week.
func NewRotatingLogger(dir string, retentionWeeks int, maxFileSize int64) (*RotatingLogger, error) {
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	rl := &RotatingLogger{
		dir:         dir,
		prefix:      defaultFilePrefix,
		retention:   time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxFileSize: maxFileSize,
		stop:        make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}

	rl.mu.Lock()
	err := rl.rotate(weekKey(time.Now()), false)
	rl.mu.Unlock()
	if err != nil {
		return nil, err
	}

	go rl.cleanupLoop()
	return rl, nil
}

// weekKey returns the ISO week in YYYY-Www format
func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// rotate opens the file for week. Caller must hold mu.
func (rl *RotatingLogger) rotate(week string, full bool) error {
	if rl.file != nil {
		if err := rl.file.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file during rotation: %v\n", err)
		}
		rl.file = nil
	}

	name := rl.pickFile(week, full)
	path := filepath.Join(rl.dir, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	rl.file = file
	rl.week = week
	rl.size.Store(0)
	if info, err := file.Stat(); err == nil {
		rl.size.Store(info.Size())
	}
	return nil
}

// pickFile returns the file to append to for week. When the base file (or
// the current numbered file) is full, the next numbered name is returned.
func (rl *RotatingLogger) pickFile(week string, full bool) string {
	base := fmt.Sprintf("%s-%s.log", rl.prefix, week)

	if !full {
		info, err := os.Stat(filepath.Join(rl.dir, base))
		if err != nil || info.Size() < rl.maxFileSize {
			return base
		}
	}

	matches, _ := filepath.Glob(filepath.Join(rl.dir, fmt.Sprintf("%s-%s_??.log", rl.prefix, week)))
	highest := 0
	var highestSize int64
	for _, match := range matches {
		m := numberedFileRe.FindStringSubmatch(filepath.Base(match))
		if len(m) < 2 {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		if n > highest {
			highest = n
			highestSize = 0
			if info, err := os.Stat(match); err == nil {
				highestSize = info.Size()
			}
		}
	}

	if highest > 0 && !full && highestSize < rl.maxFileSize {
		return fmt.Sprintf("%s-%s_%02d.log", rl.prefix, week, highest)
	}
	return fmt.Sprintf("%s-%s_%02d.log", rl.prefix, week, highest+1)
}

// Write implements io.Writer.
func (rl *RotatingLogger) Write(p []byte) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	week := weekKey(time.Now())
	switch {
	case rl.week != week:
		if err := rl.rotate(week, false); err != nil {
			return 0, err
		}
	case rl.size.Load()+int64(len(p)) > rl.maxFileSize:
		if err := rl.rotate(week, true); err != nil {
			return 0, err
		}
	}

	if rl.file == nil {
		return 0, fmt.Errorf("no log file available")
	}

	n, err := rl.file.Write(p)
	rl.size.Add(int64(n))
	return n, err
}

func (rl *RotatingLogger) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	defer close(rl.cleanupDone)

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			if _, err := rl.cleanupOldLogs(time.Now()); err != nil {
				fmt.Fprintf(os.Stderr, "failed to clean up old logs: %v\n", err)
			}
		}
	}
}

// cleanupOldLogs removes log files last modified before now minus retention.
func (rl *RotatingLogger) cleanupOldLogs(now time.Time) (int, error) {
	entries, err := os.ReadDir(rl.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := now.Add(-rl.retention)
	deleted := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, rl.prefix+"-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(rl.dir, name)); err == nil {
			deleted++
		}
	}
	return deleted, nil
}

// Close stops the cleanup goroutine and closes the current file.
func (rl *RotatingLogger) Close() error {
	var err error
	rl.closeOnce.Do(func() {
		close(rl.stop)
		<-rl.cleanupDone

		rl.mu.Lock()
		defer rl.mu.Unlock()
		if rl.file != nil {
			err = rl.file.Close()
			rl.file = nil
		}
	})
	return err
}

// multiHandler fans records out to several handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
