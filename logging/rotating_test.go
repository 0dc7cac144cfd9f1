package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWeekKey(t *testing.T) {
	cases := map[string]time.Time{
		"2026-W01": time.Date(2025, 12, 29, 10, 0, 0, 0, time.UTC),
		"2026-W42": time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC),
		"2020-W53": time.Date(2020, 12, 31, 10, 0, 0, 0, time.UTC),
	}
	for want, ts := range cases {
		if got := weekKey(ts); got != want {
			t.Errorf("weekKey(%s) = %s, want %s", ts.Format(time.DateOnly), got, want)
		}
	}
}

func TestRotatingLoggerWritesWeeklyFile(t *testing.T) {
	dir := t.TempDir()
	rl, err := NewRotatingLogger(dir, 4, 1024*1024)
	if err != nil {
		t.Fatalf("NewRotatingLogger failed: %v", err)
	}
	defer rl.Close()

	if _, err := rl.Write([]byte("first line\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	name := filepath.Join(dir, "prescriptions-"+weekKey(time.Now())+".log")
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("expected weekly log file %s: %v", name, err)
	}
	if !strings.Contains(string(data), "first line") {
		t.Errorf("log file missing content: %q", data)
	}
}

func TestRotatingLoggerSizeRotation(t *testing.T) {
	dir := t.TempDir()
	rl, err := NewRotatingLogger(dir, 4, 64)
	if err != nil {
		t.Fatalf("NewRotatingLogger failed: %v", err)
	}
	defer rl.Close()

	line := []byte(strings.Repeat("x", 40) + "\n")
	for range 3 {
		if _, err := rl.Write(line); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	files, _ := filepath.Glob(filepath.Join(dir, "prescriptions-*.log"))
	if len(files) < 2 {
		t.Fatalf("expected size rotation to create numbered files, got %v", files)
	}
	numbered, _ := filepath.Glob(filepath.Join(dir, "prescriptions-*_01.log"))
	if len(numbered) != 1 {
		t.Errorf("expected a _01 file, got %v", files)
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	rl, err := NewRotatingLogger(dir, 1, 1024*1024)
	if err != nil {
		t.Fatalf("NewRotatingLogger failed: %v", err)
	}
	defer rl.Close()

	old := filepath.Join(dir, "prescriptions-2020-W01.log")
	unrelated := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, unrelated} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		past := time.Now().Add(-30 * 24 * time.Hour)
		os.Chtimes(p, past, past)
	}

	deleted, err := rl.cleanupOldLogs(time.Now())
	if err != nil {
		t.Fatalf("cleanupOldLogs failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted file, got %d", deleted)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expected old log file to be removed")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Error("expected unrelated file to be kept")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	rl, err := NewRotatingLogger(t.TempDir(), 1, 0)
	if err != nil {
		t.Fatalf("NewRotatingLogger failed: %v", err)
	}
	if err := rl.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := rl.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestGetConsoleLogLevel(t *testing.T) {
	cases := []struct {
		env, level string
		verbose    bool
		want       slog.Level
	}{
		{"dev", "", false, slog.LevelInfo},
		{"production", "", false, slog.LevelWarn},
		{"test", "", false, slog.LevelError},
		{"production", "", true, slog.LevelDebug},
		{"production", "debug", false, slog.LevelDebug},
		{"dev", "warning", false, slog.LevelWarn},
		{"dev", "ERROR", true, slog.LevelError},
		{"dev", "bogus", false, slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := GetConsoleLogLevel(tc.env, tc.level, tc.verbose); got != tc.want {
			t.Errorf("GetConsoleLogLevel(%q, %q, %v) = %v, want %v", tc.env, tc.level, tc.verbose, got, tc.want)
		}
	}
}

func TestInitLoggerWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	closer := InitLogger(Options{Dir: dir, Env: "test", RetentionWeeks: 1})
	t.Cleanup(func() {
		mu.Lock()
		DefaultLoggingService = nil
		mu.Unlock()
	})

	Info("draft created", "draft_id", "d-1")
	Debug("debug reaches the file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "prescriptions-"+weekKey(time.Now())+".log"))
	if err != nil {
		t.Fatalf("expected log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `"msg":"draft created"`) || !strings.Contains(content, `"draft_id":"d-1"`) {
		t.Errorf("expected JSON record in file, got %q", content)
	}
	if !strings.Contains(content, "debug reaches the file") {
		t.Errorf("expected debug record in file, got %q", content)
	}
}
