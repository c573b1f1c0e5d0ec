package pipeline

import "xtap/internal/record"

// buffer accumulates admitted records between flushes. It is owned by the
// driver goroutine and needs no locking.
type buffer struct {
	records []record.Record
}

func (b *buffer) Append(rec record.Record) {
	b.records = append(b.records, rec)
}

func (b *buffer) Len() int {
	return len(b.records)
}

// Drain returns the buffered records in arrival order and empties the buffer.
func (b *buffer) Drain() []record.Record {
	drained := b.records
	b.records = nil
	return drained
}

// Requeue puts a failed batch back at the front so arrival order survives a
// delivery failure even when new records arrived in the meantime.
func (b *buffer) Requeue(records []record.Record) {
	if len(records) == 0 {
		return
	}
	merged := make([]record.Record, 0, len(records)+len(b.records))
	merged = append(merged, records...)
	merged = append(merged, b.records...)
	b.records = merged
}
