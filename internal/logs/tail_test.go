package logs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeLog(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "xtap.log")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailMissingFileIsNotAnError(t *testing.T) {
	result, err := Tail(context.Background(), filepath.Join(t.TempDir(), "absent.log"), TailOptions{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 0 || result.Offset != 0 {
		t.Fatalf("result: %+v", result)
	}
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "one\ntwo\nthree\nfour\n")

	result, err := Tail(context.Background(), path, TailOptions{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "three" || result.Lines[1] != "four" {
		t.Fatalf("lines: %v", result.Lines)
	}
	if result.Offset != int64(len("one\ntwo\nthree\nfour\n")) {
		t.Fatalf("offset: %d", result.Offset)
	}
}

func TestTailLastLinesFewerThanLimit(t *testing.T) {
	path := writeLog(t, "only\n")

	result, err := Tail(context.Background(), path, TailOptions{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "only" {
		t.Fatalf("lines: %v", result.Lines)
	}
}

func TestTailForwardFromOffset(t *testing.T) {
	path := writeLog(t, "first\nsecond\n")

	initial, err := Tail(context.Background(), path, TailOptions{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("initial Tail: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("third\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	next, err := Tail(context.Background(), path, TailOptions{Offset: initial.Offset, Limit: 10})
	if err != nil {
		t.Fatalf("forward Tail: %v", err)
	}
	if len(next.Lines) != 1 || next.Lines[0] != "third" {
		t.Fatalf("forward lines: %v", next.Lines)
	}
	if next.Offset <= initial.Offset {
		t.Fatalf("offset should advance: %d -> %d", initial.Offset, next.Offset)
	}
}

func TestTailOffsetPastEndClamped(t *testing.T) {
	path := writeLog(t, "short\n")

	result, err := Tail(context.Background(), path, TailOptions{Offset: 100000, Limit: 10})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 0 {
		t.Fatalf("lines past end: %v", result.Lines)
	}
	if result.Offset != int64(len("short\n")) {
		t.Fatalf("offset should clamp to size: %d", result.Offset)
	}
}

func TestTailFollowPicksUpAppendedLines(t *testing.T) {
	path := writeLog(t, "start\n")

	initial, err := Tail(context.Background(), path, TailOptions{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("initial Tail: %v", err)
	}

	go func() {
		time.Sleep(300 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return
		}
		defer f.Close()
		f.WriteString("late arrival\n")
	}()

	result, err := Tail(context.Background(), path, TailOptions{
		Offset: initial.Offset,
		Follow: true,
		Wait:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("follow Tail: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "late arrival" {
		t.Fatalf("follow lines: %v", result.Lines)
	}
}

func TestTailFollowStopsOnCancel(t *testing.T) {
	path := writeLog(t, "quiet\n")

	initial, err := Tail(context.Background(), path, TailOptions{Offset: -1, Limit: 10})
	if err != nil {
		t.Fatalf("initial Tail: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = Tail(ctx, path, TailOptions{Offset: initial.Offset, Follow: true, Wait: 10 * time.Second})
	if err == nil {
		t.Fatal("expected context error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("cancel took too long: %v", elapsed)
	}
}
