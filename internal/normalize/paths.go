package normalize

import "sort"

// endpointPaths maps known GraphQL endpoint names to the key path where the
// instructions array lives. Upstream renames these without notice; unknown
// endpoints fall back to findInstructions.
var endpointPaths = map[string][]string{
	"HomeTimeline":             {"data", "home", "home_timeline_urt", "instructions"},
	"HomeLatestTimeline":       {"data", "home", "home_timeline_urt", "instructions"},
	"UserTweets":               {"data", "user", "result", "timeline_v2", "timeline", "instructions"},
	"UserTweetsAndReplies":     {"data", "user", "result", "timeline_v2", "timeline", "instructions"},
	"UserMedia":                {"data", "user", "result", "timeline_v2", "timeline", "instructions"},
	"TweetDetail":              {"data", "threaded_conversation_with_injections_v2", "instructions"},
	"SearchTimeline":           {"data", "search_by_raw_query", "search_timeline", "timeline", "instructions"},
	"Bookmarks":                {"data", "bookmark_timeline_v2", "timeline", "instructions"},
	"ListLatestTweetsTimeline": {"data", "list", "tweets_timeline", "timeline", "instructions"},
}

// maxSearchDepth bounds the fallback search. The bound is part of the
// contract: instruction arrays deeper than five levels are not discovered.
const maxSearchDepth = 5

// resolveInstructions returns the instructions array for the endpoint, using
// the static path table first and the bounded search as fallback.
func resolveInstructions(endpoint string, payload map[string]any) []any {
	if path, ok := endpointPaths[endpoint]; ok {
		if instructions := walkPath(payload, path); instructions != nil {
			return instructions
		}
	}
	return findInstructions(payload, maxSearchDepth)
}

func walkPath(payload map[string]any, path []string) []any {
	current := any(payload)
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[key]
	}
	instructions, ok := current.([]any)
	if !ok {
		return nil
	}
	return instructions
}

// findInstructions performs a depth-first search for the first object with a
// field literally named "instructions" holding a plausible instruction array.
// First match wins; siblings of a match are never visited. Object keys are
// visited in sorted order so results are deterministic.
func findInstructions(value any, depth int) []any {
	if depth < 0 {
		return nil
	}
	switch v := value.(type) {
	case map[string]any:
		if raw, ok := v["instructions"]; ok {
			if instructions, ok := raw.([]any); ok && plausibleInstructions(instructions) {
				return instructions
			}
		}
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if found := findInstructions(v[key], depth-1); found != nil {
				return found
			}
		}
	case []any:
		for _, item := range v {
			if found := findInstructions(item, depth-1); found != nil {
				return found
			}
		}
	}
	return nil
}

// plausibleInstructions requires at least one element that looks like a
// timeline-add or module-add instruction.
func plausibleInstructions(instructions []any) bool {
	for _, raw := range instructions {
		instruction, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		switch asString(instruction["type"]) {
		case "TimelineAddEntries", "TimelineAddToModule":
			return true
		}
		if _, ok := instruction["entries"].([]any); ok {
			return true
		}
	}
	return false
}
