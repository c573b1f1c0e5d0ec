package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LineBuffer is a slog.Handler that retains formatted log lines in a bounded
// ring so the pipeline can ship them to the persistence daemon's /log
// endpoint. It replaces the upstream habit of intercepting the global console
// logger: the buffer is one explicit sink among others.
type LineBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
	level slog.Level
	attrs []slog.Attr
}

// NewLineBuffer returns a buffer retaining at most max lines at the given
// minimum level. When full, the oldest line is dropped.
func NewLineBuffer(max int, level slog.Level) *LineBuffer {
	if max <= 0 {
		max = 500
	}
	return &LineBuffer{max: max, level: level}
}

// Drain returns the buffered lines and empties the buffer.
func (b *LineBuffer) Drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.lines
	b.lines = nil
	return out
}

// Len reports the number of buffered lines.
func (b *LineBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Requeue puts undelivered lines back at the front of the buffer.
func (b *LineBuffer) Requeue(lines []string) {
	if len(lines) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(append([]string(nil), lines...), b.lines...)
	if overflow := len(b.lines) - b.max; overflow > 0 {
		b.lines = b.lines[overflow:]
	}
}

func (b *LineBuffer) Enabled(_ context.Context, level slog.Level) bool {
	return level >= b.level
}

func (b *LineBuffer) Handle(_ context.Context, rec slog.Record) error {
	timestamp := rec.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	var sb strings.Builder
	sb.WriteString(timestamp.UTC().Format(time.RFC3339))
	sb.WriteByte(' ')
	sb.WriteString(levelLabel(rec.Level))
	sb.WriteByte(' ')
	sb.WriteString(rec.Message)
	for _, attr := range b.attrs {
		writeAttr(&sb, attr)
	}
	rec.Attrs(func(attr slog.Attr) bool {
		writeAttr(&sb, attr)
		return true
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, sb.String())
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
	return nil
}

// WithAttrs shares the parent's line storage so drained output is unified.
func (b *LineBuffer) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr(nil), b.attrs...), attrs...)
	return &sharedLineBuffer{parent: b, attrs: merged}
}

func (b *LineBuffer) WithGroup(string) slog.Handler { return b }

func writeAttr(sb *strings.Builder, attr slog.Attr) {
	if attr.Key == "" {
		return
	}
	sb.WriteByte(' ')
	sb.WriteString(attr.Key)
	sb.WriteByte('=')
	fmt.Fprint(sb, attr.Value.Resolve().Any())
}

// sharedLineBuffer carries derived attrs while appending into its parent.
type sharedLineBuffer struct {
	parent *LineBuffer
	attrs  []slog.Attr
}

func (s *sharedLineBuffer) Enabled(ctx context.Context, level slog.Level) bool {
	return s.parent.Enabled(ctx, level)
}

func (s *sharedLineBuffer) Handle(ctx context.Context, rec slog.Record) error {
	cloned := rec.Clone()
	cloned.AddAttrs(s.attrs...)
	return s.parent.Handle(ctx, cloned)
}

func (s *sharedLineBuffer) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &sharedLineBuffer{parent: s.parent, attrs: append(append([]slog.Attr(nil), s.attrs...), attrs...)}
}

func (s *sharedLineBuffer) WithGroup(string) slog.Handler { return s }
