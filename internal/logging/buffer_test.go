package logging

import (
	"log/slog"
	"strings"
	"testing"
)

func TestLineBufferRetainsFormattedLines(t *testing.T) {
	buffer := NewLineBuffer(10, slog.LevelInfo)
	logger := slog.New(buffer)

	logger.Info("batch delivered", Int("records", 3))
	logger.Debug("ignored below level")

	lines := buffer.Drain()
	if len(lines) != 1 {
		t.Fatalf("lines: %v", lines)
	}
	if !strings.Contains(lines[0], "batch delivered") || !strings.Contains(lines[0], "records=3") {
		t.Fatalf("line content: %q", lines[0])
	}
	if buffer.Len() != 0 {
		t.Fatalf("drain should empty the buffer: %d", buffer.Len())
	}
}

func TestLineBufferDropsOldestWhenFull(t *testing.T) {
	buffer := NewLineBuffer(2, slog.LevelInfo)
	logger := slog.New(buffer)

	logger.Info("first")
	logger.Info("second")
	logger.Info("third")

	lines := buffer.Drain()
	if len(lines) != 2 {
		t.Fatalf("lines: %v", lines)
	}
	if !strings.Contains(lines[0], "second") || !strings.Contains(lines[1], "third") {
		t.Fatalf("oldest line should drop: %v", lines)
	}
}

func TestLineBufferRequeuePrepends(t *testing.T) {
	buffer := NewLineBuffer(10, slog.LevelInfo)
	logger := slog.New(buffer)

	logger.Info("newer")
	buffer.Requeue([]string{"older one", "older two"})

	lines := buffer.Drain()
	if len(lines) != 3 {
		t.Fatalf("lines: %v", lines)
	}
	if lines[0] != "older one" || lines[1] != "older two" {
		t.Fatalf("requeued lines must lead: %v", lines)
	}
	if !strings.Contains(lines[2], "newer") {
		t.Fatalf("existing line must follow: %v", lines)
	}
}

func TestLineBufferRequeueRespectsBound(t *testing.T) {
	buffer := NewLineBuffer(2, slog.LevelInfo)

	buffer.Requeue([]string{"a", "b", "c"})
	lines := buffer.Drain()
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("bounded requeue: %v", lines)
	}
}

func TestLineBufferWithAttrsSharesStorage(t *testing.T) {
	buffer := NewLineBuffer(10, slog.LevelInfo)
	logger := slog.New(buffer).With(String("component", "pipeline"))

	logger.Info("with component")

	lines := buffer.Drain()
	if len(lines) != 1 || !strings.Contains(lines[0], "component=pipeline") {
		t.Fatalf("derived logger must land in the parent buffer: %v", lines)
	}
}
