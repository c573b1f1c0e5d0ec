package normalize

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"xtap/internal/logging"
)

var captureTime = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func newTestNormalizer() *Normalizer {
	return New(logging.NewNop()).WithClock(func() time.Time { return captureTime })
}

func tweetEntity(id, handle, text string) map[string]any {
	return map[string]any{
		"__typename": "Tweet",
		"rest_id":    id,
		"core": map[string]any{
			"user_results": map[string]any{
				"result": map[string]any{
					"rest_id":          "u-" + id,
					"is_blue_verified": true,
					"legacy": map[string]any{
						"screen_name":     handle,
						"name":            "Test " + handle,
						"verified":        false,
						"followers_count": float64(1200),
					},
				},
			},
		},
		"views": map[string]any{"count": "4242"},
		"legacy": map[string]any{
			"id_str":              id,
			"created_at":          "Sat Mar 14 09:20:00 +0000 2026",
			"full_text":           text,
			"reply_count":         float64(3),
			"retweet_count":       float64(7),
			"favorite_count":      float64(19),
			"quote_count":         float64(1),
			"bookmark_count":      float64(2),
			"conversation_id_str": id,
			"entities": map[string]any{
				"hashtags":      []any{map[string]any{"text": "golang"}},
				"user_mentions": []any{map[string]any{"screen_name": "someone"}},
				"urls": []any{map[string]any{
					"url":          "https://t.co/abc",
					"expanded_url": "https://example.com/post",
					"display_url":  "example.com/post",
				}},
			},
		},
	}
}

func itemEntry(entryID string, result map[string]any) map[string]any {
	return map[string]any{
		"entryId": entryID,
		"content": map[string]any{
			"entryType": "TimelineTimelineItem",
			"itemContent": map[string]any{
				"itemType":      "TimelineTweet",
				"tweet_results": map[string]any{"result": result},
			},
		},
	}
}

func homeTimelinePayload(t *testing.T, entries ...any) json.RawMessage {
	t.Helper()
	payload := map[string]any{
		"data": map[string]any{
			"home": map[string]any{
				"home_timeline_urt": map[string]any{
					"instructions": []any{
						map[string]any{
							"type":    "TimelineAddEntries",
							"entries": entries,
						},
					},
				},
			},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func TestNormalizePlainTweet(t *testing.T) {
	n := newTestNormalizer()

	payload := homeTimelinePayload(t, itemEntry("tweet-1", tweetEntity("111", "alice", "hello world")))
	records, stats := n.Normalize("HomeTimeline", payload)

	if stats.Entries != 1 || stats.Records != 1 || stats.Skipped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}

	rec := records[0]
	if rec.ID != "111" {
		t.Errorf("ID mismatch: got %q", rec.ID)
	}
	if rec.Text != "hello world" {
		t.Errorf("Text mismatch: got %q", rec.Text)
	}
	if !rec.CapturedAt.Equal(captureTime) {
		t.Errorf("CapturedAt mismatch: got %v", rec.CapturedAt)
	}
	if rec.Author.Handle != "alice" || rec.Author.ID != "u-111" {
		t.Errorf("author mismatch: %+v", rec.Author)
	}
	if !rec.Author.BlueVerified {
		t.Error("expected blue verified author")
	}
	if rec.Metrics.Replies != 3 || rec.Metrics.Likes != 19 || rec.Metrics.Bookmarks != 2 {
		t.Errorf("metrics mismatch: %+v", rec.Metrics)
	}
	if rec.Metrics.Views == nil || *rec.Metrics.Views != 4242 {
		t.Errorf("views mismatch: %v", rec.Metrics.Views)
	}
	if len(rec.Hashtags) != 1 || rec.Hashtags[0] != "golang" {
		t.Errorf("hashtags mismatch: %v", rec.Hashtags)
	}
	if len(rec.Mentions) != 1 || rec.Mentions[0] != "someone" {
		t.Errorf("mentions mismatch: %v", rec.Mentions)
	}
	if len(rec.URLs) != 1 || rec.URLs[0].Expanded != "https://example.com/post" {
		t.Errorf("urls mismatch: %v", rec.URLs)
	}
	if rec.IsRetweet || rec.Article != nil {
		t.Errorf("unexpected flags: retweet=%v article=%v", rec.IsRetweet, rec.Article)
	}
}

func TestNormalizeViewsAbsentStaysNil(t *testing.T) {
	n := newTestNormalizer()

	entity := tweetEntity("112", "alice", "no views here")
	delete(entity, "views")
	records, _ := n.Normalize("HomeTimeline", homeTimelinePayload(t, itemEntry("tweet-1", entity)))

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Metrics.Views != nil {
		t.Fatalf("expected nil views, got %d", *records[0].Metrics.Views)
	}
}

func TestNormalizeRetweetUsesInnerFullText(t *testing.T) {
	n := newTestNormalizer()

	inner := tweetEntity("222", "bob", "the original full text, untruncated")
	outer := tweetEntity("333", "alice", "RT @bob: the original full te…")
	legacy := outer["legacy"].(map[string]any)
	legacy["retweeted_status_result"] = map[string]any{"result": inner}

	records, stats := n.Normalize("HomeTimeline", homeTimelinePayload(t, itemEntry("tweet-1", outer)))
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d (stats %+v)", len(records), stats)
	}

	rec := records[0]
	if !rec.IsRetweet {
		t.Fatal("expected retweet flag")
	}
	if rec.RetweetedID != "222" {
		t.Errorf("retweeted id mismatch: got %q", rec.RetweetedID)
	}
	if rec.ID != "333" {
		t.Errorf("record keeps the wrapper id: got %q", rec.ID)
	}
	if rec.Text != "the original full text, untruncated" {
		t.Errorf("expected inner full text, got %q", rec.Text)
	}
}

func TestNormalizeTombstoneYieldsNothing(t *testing.T) {
	n := newTestNormalizer()

	tombstone := map[string]any{
		"__typename": "TweetTombstone",
		"tombstone":  map[string]any{"text": map[string]any{"text": "This Tweet was deleted."}},
	}
	records, stats := n.Normalize("HomeTimeline", homeTimelinePayload(t, itemEntry("tweet-1", tombstone)))

	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
	if stats.Tombstones != 1 {
		t.Fatalf("expected 1 tombstone, got %+v", stats)
	}
	if stats.Skipped != 0 {
		t.Fatalf("tombstones are not skips: %+v", stats)
	}
}

func TestNormalizeCursorCounted(t *testing.T) {
	n := newTestNormalizer()

	cursor := map[string]any{
		"entryId": "cursor-bottom",
		"content": map[string]any{
			"entryType": "TimelineTimelineCursor",
			"value":     "DAABCgABGi4",
		},
	}
	records, stats := n.Normalize("HomeTimeline", homeTimelinePayload(t, cursor, itemEntry("tweet-1", tweetEntity("444", "carol", "still here"))))

	if stats.Cursors != 1 {
		t.Fatalf("expected 1 cursor, got %+v", stats)
	}
	if len(records) != 1 || records[0].ID != "444" {
		t.Fatalf("cursor must not block other entries: %+v", records)
	}
}

func TestNormalizeModuleExtractsEachItem(t *testing.T) {
	n := newTestNormalizer()

	module := map[string]any{
		"entryId": "conversation-1",
		"content": map[string]any{
			"entryType": "TimelineTimelineModule",
			"items": []any{
				map[string]any{
					"entryId": "conversation-1-tweet-555",
					"item": map[string]any{
						"itemContent": map[string]any{
							"tweet_results": map[string]any{"result": tweetEntity("555", "dave", "thread root")},
						},
					},
				},
				map[string]any{
					"entryId": "conversation-1-tweet-556",
					"item": map[string]any{
						"itemContent": map[string]any{
							"tweet_results": map[string]any{"result": tweetEntity("556", "dave", "thread reply")},
						},
					},
				},
			},
		},
	}
	records, stats := n.Normalize("HomeTimeline", homeTimelinePayload(t, module))

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d (stats %+v)", len(records), stats)
	}
	if records[0].ID != "555" || records[1].ID != "556" {
		t.Fatalf("module item order lost: %q, %q", records[0].ID, records[1].ID)
	}
}

func TestNormalizeVisibilityWrappedTweet(t *testing.T) {
	n := newTestNormalizer()

	wrapped := map[string]any{
		"__typename": "TweetWithVisibilityResults",
		"tweet":      tweetEntity("666", "erin", "limited reach"),
		"limitedActionResults": map[string]any{
			"limited_actions": "limited_replies",
		},
	}
	records, stats := n.Normalize("HomeTimeline", homeTimelinePayload(t, itemEntry("tweet-1", wrapped)))

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d (stats %+v)", len(records), stats)
	}
	if records[0].ID != "666" || records[0].Text != "limited reach" {
		t.Fatalf("inner entity not hoisted: %+v", records[0])
	}
}

func TestNormalizeUnknownVariantWithStructureAccepted(t *testing.T) {
	n := newTestNormalizer()

	entity := tweetEntity("777", "frank", "schema drift survivor")
	entity["__typename"] = "TweetNextSeasonVariant"
	records, stats := n.Normalize("HomeTimeline", homeTimelinePayload(t, itemEntry("tweet-1", entity)))

	if len(records) != 1 || records[0].ID != "777" {
		t.Fatalf("expected structural acceptance, got %d records (stats %+v)", len(records), stats)
	}
}

func TestNormalizeUnknownVariantWithoutStructureSkipped(t *testing.T) {
	n := newTestNormalizer()

	records, stats := n.Normalize("HomeTimeline", homeTimelinePayload(t, itemEntry("tweet-1", map[string]any{
		"__typename": "TweetUnavailable",
		"reason":     "Suspended",
	})))

	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
	if stats.Skipped != 1 {
		t.Fatalf("expected 1 skip, got %+v", stats)
	}
}

func TestNormalizeNoteTweetTextPreferred(t *testing.T) {
	n := newTestNormalizer()

	entity := tweetEntity("888", "grace", "truncated preview…")
	entity["note_tweet"] = map[string]any{
		"note_tweet_results": map[string]any{
			"result": map[string]any{"text": "the complete long-form text without truncation"},
		},
	}
	records, _ := n.Normalize("HomeTimeline", homeTimelinePayload(t, itemEntry("tweet-1", entity)))

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Text != "the complete long-form text without truncation" {
		t.Fatalf("note text not preferred: %q", records[0].Text)
	}
}

func TestNormalizeVideoMediaPicksHighestBitrateMP4(t *testing.T) {
	n := newTestNormalizer()

	entity := tweetEntity("999", "heidi", "watch this")
	legacy := entity["legacy"].(map[string]any)
	legacy["extended_entities"] = map[string]any{
		"media": []any{map[string]any{
			"type":            "video",
			"media_url_https": "https://pbs.example/thumb.jpg",
			"video_info": map[string]any{
				"variants": []any{
					map[string]any{"content_type": "application/x-mpegURL", "url": "https://video.example/pl.m3u8"},
					map[string]any{"content_type": "video/mp4", "bitrate": float64(832000), "url": "https://video.example/low.mp4"},
					map[string]any{"content_type": "video/mp4", "bitrate": float64(2176000), "url": "https://video.example/high.mp4"},
				},
			},
		}},
	}
	records, _ := n.Normalize("HomeTimeline", homeTimelinePayload(t, itemEntry("tweet-1", entity)))

	if len(records) != 1 || len(records[0].Media) != 1 {
		t.Fatalf("expected 1 record with 1 media, got %+v", records)
	}
	media := records[0].Media[0]
	if media.Type != "video" {
		t.Errorf("media type mismatch: %q", media.Type)
	}
	if media.VideoURL != "https://video.example/high.mp4" {
		t.Errorf("expected highest-bitrate mp4, got %q", media.VideoURL)
	}
}

func TestNormalizeUnknownEndpointUsesFallbackSearch(t *testing.T) {
	n := newTestNormalizer()

	payload := map[string]any{
		"data": map[string]any{
			"brand_new_surface": map[string]any{
				"timeline": map[string]any{
					"instructions": []any{
						map[string]any{
							"type":    "TimelineAddEntries",
							"entries": []any{itemEntry("tweet-1", tweetEntity("1010", "ivan", "found by search"))},
						},
					},
				},
			},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	records, stats := n.Normalize("SomeFutureEndpoint", raw)
	if len(records) != 1 || records[0].ID != "1010" {
		t.Fatalf("fallback search failed: %d records (stats %+v)", len(records), stats)
	}
}

func TestNormalizeEntryWithoutContentSkipped(t *testing.T) {
	n := newTestNormalizer()

	records, stats := n.Normalize("HomeTimeline", homeTimelinePayload(t,
		map[string]any{"entryId": "who-knows"},
		itemEntry("tweet-1", tweetEntity("1111", "judy", "fine")),
	))

	if stats.Skipped != 1 {
		t.Fatalf("expected 1 skip, got %+v", stats)
	}
	if len(records) != 1 || records[0].ID != "1111" {
		t.Fatalf("skip must not affect siblings: %+v", records)
	}
}

func TestNormalizeRejectsNonObjectPayload(t *testing.T) {
	n := newTestNormalizer()

	records, stats := n.Normalize("HomeTimeline", json.RawMessage(`[1,2,3]`))
	if records != nil || stats.Entries != 0 {
		t.Fatalf("expected nothing from a non-object payload: %+v", stats)
	}
}

func TestNormalizeEntityWithoutIdentifierSkipped(t *testing.T) {
	n := newTestNormalizer()

	entity := tweetEntity("", "kim", "no id at all")
	delete(entity, "rest_id")
	delete(entity["legacy"].(map[string]any), "id_str")

	records, stats := n.Normalize("HomeTimeline", homeTimelinePayload(t, itemEntry("tweet-1", entity)))
	if len(records) != 0 || stats.Skipped != 1 {
		t.Fatalf("expected identifier-less skip, got %d records (stats %+v)", len(records), stats)
	}
}

func TestNormalizeRepeatedCallsYieldIdenticalRecords(t *testing.T) {
	n := newTestNormalizer()

	payload := homeTimelinePayload(t,
		itemEntry("tweet-1", tweetEntity("111", "alice", "hello world")),
		itemEntry("tweet-2", tweetEntity("222", "bob", "second post")),
	)

	first, firstStats := n.Normalize("HomeTimeline", payload)
	second, secondStats := n.Normalize("HomeTimeline", payload)

	if firstStats != secondStats {
		t.Fatalf("stats diverged across calls: %+v vs %+v", firstStats, secondStats)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated normalization diverged:\n first: %+v\nsecond: %+v", first, second)
	}
}
