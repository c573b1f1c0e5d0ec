package normalize

import (
	"fmt"
	"strings"

	"xtap/internal/record"
)

// extractArticle renders the long-form article overlay, when present, into a
// plain markdown-like body. An overlay whose content resolves to nothing is
// treated as absent.
func extractArticle(entity map[string]any) *record.Article {
	result := asMap(dig(entity, "article", "article_results", "result"))
	if result == nil {
		return nil
	}

	contentState := asMap(result["content_state"])
	blocks := asSlice(contentState["blocks"])
	if len(blocks) == 0 {
		return nil
	}

	entities := entityTable(asSlice(contentState["entityMap"]))
	mediaTable := mediaEntityTable(asSlice(result["media_entities"]))

	var (
		lines    []string
		media    []record.Media
		ordinal  int
		rendered bool
	)
	for _, raw := range blocks {
		block := asMap(raw)
		if block == nil {
			continue
		}
		blockType := asString(block["type"])
		text := strings.TrimSpace(asString(block["text"]))

		if blockType == "ordered-list-item" {
			ordinal++
		} else {
			ordinal = 0
		}

		if blockType == "atomic" {
			// Atomic blocks carry no text; they reference a media
			// entity through the entity map.
			if img, ok := resolveImage(block, entities, mediaTable); ok {
				lines = append(lines, fmt.Sprintf("![image](%s)", img.URL))
				media = append(media, img)
				rendered = true
			}
			continue
		}
		if text == "" {
			continue
		}

		switch blockType {
		case "header-one":
			lines = append(lines, "# "+text)
		case "header-two":
			lines = append(lines, "## "+text)
		case "header-three":
			lines = append(lines, "### "+text)
		case "unordered-list-item":
			lines = append(lines, "- "+text)
		case "ordered-list-item":
			lines = append(lines, fmt.Sprintf("%d. %s", ordinal, text))
		case "blockquote":
			lines = append(lines, "> "+text)
		default:
			lines = append(lines, text)
		}
		rendered = true
	}

	if !rendered {
		return nil
	}
	return &record.Article{
		Title: strings.TrimSpace(asString(result["title"])),
		Body:  strings.Join(lines, "\n\n"),
		Media: media,
	}
}

// entityTable indexes the content state's entity map by key.
func entityTable(entityMap []any) map[string]map[string]any {
	table := make(map[string]map[string]any, len(entityMap))
	for _, raw := range entityMap {
		pair := asMap(raw)
		if pair == nil {
			continue
		}
		key := asString(pair["key"])
		if key == "" {
			continue
		}
		if value := asMap(pair["value"]); value != nil {
			table[key] = value
		}
	}
	return table
}

// mediaEntityTable indexes the article's media entities by media id.
func mediaEntityTable(mediaEntities []any) map[string]record.Media {
	table := make(map[string]record.Media, len(mediaEntities))
	for _, raw := range mediaEntities {
		entity := asMap(raw)
		if entity == nil {
			continue
		}
		id := asString(entity["media_id"])
		if id == "" {
			continue
		}
		table[id] = record.Media{
			Type: "photo",
			URL:  asString(dig(entity, "media_info", "original_img_url")),
		}
	}
	return table
}

// resolveImage follows an atomic block's first entity range through the
// entity map to the media entity table.
func resolveImage(block map[string]any, entities map[string]map[string]any, mediaTable map[string]record.Media) (record.Media, bool) {
	for _, raw := range asSlice(block["entityRanges"]) {
		rng := asMap(raw)
		if rng == nil {
			continue
		}
		key := asString(rng["key"])
		if key == "" {
			// Draft-style entity ranges use numeric keys.
			if _, present := rng["key"]; present {
				key = fmt.Sprintf("%d", asInt64(rng["key"]))
			}
		}
		entity := entities[key]
		if entity == nil {
			continue
		}
		if asString(entity["type"]) != "MEDIA" {
			continue
		}
		mediaID := asString(dig(entity, "value", "mediaId"))
		if mediaID == "" {
			continue
		}
		if img, ok := mediaTable[mediaID]; ok && img.URL != "" {
			return img, true
		}
	}
	return record.Media{}, false
}

// articleText is the record text for an article-bearing record: the overlay
// supersedes whatever stub text was captured earlier.
func articleText(article *record.Article) string {
	if article.Title == "" {
		return article.Body
	}
	return article.Title + "\n\n" + article.Body
}
