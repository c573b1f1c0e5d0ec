package normalize

import (
	"time"

	"xtap/internal/record"
)

// entityToRecord maps an unwrapped tweet entity into a canonical record.
// Returns false when the entity carries no identifier.
func (n *Normalizer) entityToRecord(entity map[string]any, captured time.Time) (record.Record, bool) {
	id := asString(entity["rest_id"])
	if id == "" {
		id = asString(dig(entity, "legacy", "id_str"))
	}
	if id == "" {
		return record.Record{}, false
	}

	legacy := asMap(entity["legacy"])

	rec := record.Record{
		ID:         id,
		CreatedAt:  asString(legacy["created_at"]),
		CapturedAt: captured,
		Author:     extractAuthor(entity),
		Text:       extractText(entity, legacy),
		Metrics: record.Metrics{
			Replies:   asInt64(legacy["reply_count"]),
			Retweets:  asInt64(legacy["retweet_count"]),
			Likes:     asInt64(legacy["favorite_count"]),
			Quotes:    asInt64(legacy["quote_count"]),
			Bookmarks: asInt64(legacy["bookmark_count"]),
			Views:     parseCount(dig(entity, "views", "count")),
		},
		Media:          extractMedia(legacy),
		URLs:           extractURLs(legacy),
		Hashtags:       extractHashtags(legacy),
		Mentions:       extractMentions(legacy),
		ReplyToID:      asString(legacy["in_reply_to_status_id_str"]),
		QuotedID:       asString(legacy["quoted_status_id_str"]),
		ConversationID: asString(legacy["conversation_id_str"]),
	}

	// A retweet's own text is the truncated "RT @..." form; replace it
	// with the retweeted entity's full text.
	if retweeted := asMap(dig(legacy, "retweeted_status_result", "result")); retweeted != nil {
		inner := unwrapTweet(retweeted)
		if inner.kind == tweetPlain || inner.kind == tweetWithVisibility {
			rec.IsRetweet = true
			rec.RetweetedID = asString(inner.entity["rest_id"])
			innerLegacy := asMap(inner.entity["legacy"])
			if text := extractText(inner.entity, innerLegacy); text != "" {
				rec.Text = text
			}
		}
	}

	if article := extractArticle(entity); article != nil {
		rec.Article = article
		rec.Text = articleText(article)
	}

	return rec, true
}

// extractText prefers the long-form note text over the truncated legacy
// field.
func extractText(entity, legacy map[string]any) string {
	if note := asString(dig(entity, "note_tweet", "note_tweet_results", "result", "text")); note != "" {
		return note
	}
	return asString(legacy["full_text"])
}

func extractAuthor(entity map[string]any) record.Author {
	user := asMap(dig(entity, "core", "user_results", "result"))
	if user == nil {
		return record.Author{}
	}
	userLegacy := asMap(user["legacy"])
	return record.Author{
		ID:            asString(user["rest_id"]),
		Handle:        asString(userLegacy["screen_name"]),
		DisplayName:   asString(userLegacy["name"]),
		Verified:      asBool(userLegacy["verified"]),
		BlueVerified:  asBool(user["is_blue_verified"]),
		FollowerCount: asInt64(userLegacy["followers_count"]),
	}
}

// extractMedia prefers extended_entities, which carries video variants and
// alt text; entities.media is the older truncated list.
func extractMedia(legacy map[string]any) []record.Media {
	raw := asSlice(dig(legacy, "extended_entities", "media"))
	if raw == nil {
		raw = asSlice(dig(legacy, "entities", "media"))
	}
	media := make([]record.Media, 0, len(raw))
	for _, item := range raw {
		m := asMap(item)
		if m == nil {
			continue
		}
		entry := record.Media{
			Type:    asString(m["type"]),
			URL:     asString(m["media_url_https"]),
			AltText: asString(m["ext_alt_text"]),
		}
		if entry.Type == "video" || entry.Type == "animated_gif" {
			entry.VideoURL = bestVideoVariant(asSlice(dig(m, "video_info", "variants")))
		}
		media = append(media, entry)
	}
	return media
}

// bestVideoVariant picks the highest-bitrate mp4 variant.
func bestVideoVariant(variants []any) string {
	var best string
	var bestBitrate int64 = -1
	for _, raw := range variants {
		variant := asMap(raw)
		if variant == nil {
			continue
		}
		if asString(variant["content_type"]) != "video/mp4" {
			continue
		}
		if bitrate := asInt64(variant["bitrate"]); bitrate > bestBitrate {
			bestBitrate = bitrate
			best = asString(variant["url"])
		}
	}
	return best
}

func extractURLs(legacy map[string]any) []record.URL {
	raw := asSlice(dig(legacy, "entities", "urls"))
	urls := make([]record.URL, 0, len(raw))
	for _, item := range raw {
		u := asMap(item)
		if u == nil {
			continue
		}
		urls = append(urls, record.URL{
			URL:      asString(u["url"]),
			Expanded: asString(u["expanded_url"]),
			Display:  asString(u["display_url"]),
		})
	}
	return urls
}

func extractHashtags(legacy map[string]any) []string {
	raw := asSlice(dig(legacy, "entities", "hashtags"))
	tags := make([]string, 0, len(raw))
	for _, item := range raw {
		if tag := asString(asMap(item)["text"]); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func extractMentions(legacy map[string]any) []string {
	raw := asSlice(dig(legacy, "entities", "user_mentions"))
	mentions := make([]string, 0, len(raw))
	for _, item := range raw {
		if handle := asString(asMap(item)["screen_name"]); handle != "" {
			mentions = append(mentions, handle)
		}
	}
	return mentions
}
