package normalize

import (
	"encoding/json"
	"log/slog"
	"time"

	"xtap/internal/logging"
	"xtap/internal/record"
)

// Stats counts what a single Normalize call encountered. Skips are
// diagnostics, never failures.
type Stats struct {
	Entries    int
	Records    int
	Cursors    int
	Tombstones int
	Skipped    int
}

// Normalizer turns raw endpoint payloads into canonical records. It holds no
// mutable state; identical payloads yield identical records apart from the
// capture timestamp.
type Normalizer struct {
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Normalizer. A nil logger discards diagnostics.
func New(logger *slog.Logger) *Normalizer {
	return &Normalizer{
		logger: logging.WithComponent(logger, "normalize"),
		now:    time.Now,
	}
}

// WithClock overrides the capture timestamp source, for tests.
func (n *Normalizer) WithClock(now func() time.Time) *Normalizer {
	n.now = now
	return n
}

// Normalize extracts zero or more records from one raw payload. Extraction
// failures are contained per entry: a malformed entry is skipped and counted,
// never aborting the remaining entries or instructions.
func (n *Normalizer) Normalize(endpoint string, payload json.RawMessage) ([]record.Record, Stats) {
	var stats Stats

	var root map[string]any
	if err := json.Unmarshal(payload, &root); err != nil {
		n.logger.Warn("payload is not a JSON object", logging.String("endpoint", endpoint), logging.Error(err))
		return nil, stats
	}

	instructions := resolveInstructions(endpoint, root)
	if instructions == nil {
		n.logger.Warn("no instructions found", logging.String("endpoint", endpoint))
		return nil, stats
	}

	captured := n.now().UTC()
	var records []record.Record
	for _, rawInstruction := range instructions {
		instruction := asMap(rawInstruction)
		if instruction == nil {
			continue
		}
		for _, entry := range gatherEntries(instruction) {
			stats.Entries++
			recs := n.extractEntry(endpoint, entry, captured, &stats)
			records = append(records, recs...)
		}
	}
	stats.Records = len(records)
	return records, stats
}

// gatherEntries collects the instruction's entries list, moduleItems list,
// and optional single entry field.
func gatherEntries(instruction map[string]any) []map[string]any {
	var entries []map[string]any
	for _, raw := range asSlice(instruction["entries"]) {
		if entry := asMap(raw); entry != nil {
			entries = append(entries, entry)
		}
	}
	for _, raw := range asSlice(instruction["moduleItems"]) {
		if item := asMap(raw); item != nil {
			entries = append(entries, item)
		}
	}
	if entry := asMap(instruction["entry"]); entry != nil {
		entries = append(entries, entry)
	}
	return entries
}

// extractEntry classifies one entry and extracts its records. Panics from
// unexpected shapes are contained here so one entry cannot take down the
// payload.
func (n *Normalizer) extractEntry(endpoint string, entry map[string]any, captured time.Time, stats *Stats) (records []record.Record) {
	defer func() {
		if r := recover(); r != nil {
			stats.Skipped++
			n.logger.Warn("entry extraction panicked",
				logging.String("endpoint", endpoint),
				logging.String("entry_id", asString(entry["entryId"])),
				logging.Any("panic", r),
			)
			records = nil
		}
	}()

	content := asMap(entry["content"])
	if content == nil {
		// Module sub-items carry their payload under "item".
		content = asMap(entry["item"])
	}
	if content == nil {
		stats.Skipped++
		return nil
	}

	entryType := asString(content["entryType"])
	if entryType == "" {
		entryType = asString(content["__typename"])
	}

	switch entryType {
	case "TimelineTimelineCursor":
		// Pagination state only.
		stats.Cursors++
		return nil
	case "TimelineTimelineItem":
		if rec, ok := n.extractItem(endpoint, asMap(content["itemContent"]), captured, stats); ok {
			return []record.Record{rec}
		}
		return nil
	case "TimelineTimelineModule":
		// Threads arrive as module entries; each sub-item extracts
		// independently.
		for _, raw := range asSlice(content["items"]) {
			item := asMap(raw)
			if item == nil {
				continue
			}
			itemContent := asMap(dig(item, "item", "itemContent"))
			if rec, ok := n.extractItem(endpoint, itemContent, captured, stats); ok {
				records = append(records, rec)
			}
		}
		return records
	default:
		// Some entries carry item content without a recognized entry
		// type marker; try the direct shape before giving up.
		if itemContent := asMap(content["itemContent"]); itemContent != nil {
			if rec, ok := n.extractItem(endpoint, itemContent, captured, stats); ok {
				return []record.Record{rec}
			}
			return nil
		}
		stats.Skipped++
		n.logger.Debug("unrecognized entry type",
			logging.String("endpoint", endpoint),
			logging.String("entry_type", entryType),
		)
		return nil
	}
}

// extractItem unwraps the tweet union inside item content and normalizes the
// entity into a record.
func (n *Normalizer) extractItem(endpoint string, itemContent map[string]any, captured time.Time, stats *Stats) (record.Record, bool) {
	if itemContent == nil {
		stats.Skipped++
		return record.Record{}, false
	}

	result := asMap(dig(itemContent, "tweet_results", "result"))
	union := unwrapTweet(result)
	switch union.kind {
	case tweetTombstone:
		stats.Tombstones++
		return record.Record{}, false
	case tweetUnknown:
		stats.Skipped++
		n.logger.Debug("unrecognized tweet variant",
			logging.String("endpoint", endpoint),
			logging.String("typename", union.typeName),
		)
		return record.Record{}, false
	}

	if union.structural {
		n.logger.Debug("extracting despite unknown variant tag",
			logging.String("endpoint", endpoint),
			logging.String("typename", union.typeName),
		)
	}
	if union.interstitial != "" {
		n.logger.Debug("visibility-limited tweet",
			logging.String("endpoint", endpoint),
			logging.String("interstitial", union.interstitial),
		)
	}

	rec, ok := n.entityToRecord(union.entity, captured)
	if !ok {
		stats.Skipped++
		return record.Record{}, false
	}
	return rec, true
}
