package normalize

// tweetKind discriminates the tweet-like union inside item content. The
// upstream type tag is free text; unrecognized tags map to tweetUnknown
// rather than being guessed at.
type tweetKind int

const (
	tweetUnknown tweetKind = iota
	tweetPlain
	tweetWithVisibility
	tweetTombstone
)

// tweetUnion is the unwrapped union value. For tweetWithVisibility the inner
// entity is hoisted and the interstitial text kept transiently for
// diagnostics only.
type tweetUnion struct {
	kind         tweetKind
	entity       map[string]any
	typeName     string
	interstitial string
	// structural marks an unrecognized tag accepted only because the
	// value carries both a legacy and a core block.
	structural bool
}

// unwrapTweet classifies a tweet_results.result value by its variant tag.
// Unrecognized tags that still carry both a "legacy" and a "core" block are
// treated as plain entities so schema drift degrades gracefully.
func unwrapTweet(result map[string]any) tweetUnion {
	if len(result) == 0 {
		return tweetUnion{kind: tweetUnknown}
	}
	typeName := asString(result["__typename"])
	switch typeName {
	case "Tweet":
		return tweetUnion{kind: tweetPlain, entity: result, typeName: typeName}
	case "TweetWithVisibilityResults":
		inner := asMap(result["tweet"])
		if inner == nil {
			return tweetUnion{kind: tweetUnknown, typeName: typeName}
		}
		return tweetUnion{
			kind:         tweetWithVisibility,
			entity:       inner,
			typeName:     typeName,
			interstitial: asString(dig(result, "limitedActionResults", "limited_actions")),
		}
	case "TweetTombstone":
		// No identifier exists; the entity never reaches the dedup
		// store. A later full capture of the same id is unaffected.
		return tweetUnion{kind: tweetTombstone, typeName: typeName}
	}

	if _, hasLegacy := result["legacy"]; hasLegacy {
		if _, hasCore := result["core"]; hasCore {
			return tweetUnion{kind: tweetPlain, entity: result, typeName: typeName, structural: true}
		}
	}
	return tweetUnion{kind: tweetUnknown, typeName: typeName}
}
