package record

import "time"

// Record is the normalized unit emitted by the pipeline. Field names follow
// the JSONL wire shape consumed by the persistence daemon.
type Record struct {
	ID         string    `json:"id"`
	CreatedAt  string    `json:"createdAt,omitempty"`
	CapturedAt time.Time `json:"capturedAt"`

	Author Author `json:"author"`

	Text string `json:"text"`

	Metrics Metrics `json:"metrics"`

	Media    []Media  `json:"media"`
	URLs     []URL    `json:"urls"`
	Hashtags []string `json:"hashtags"`
	Mentions []string `json:"mentions"`

	ReplyToID      string `json:"replyToId,omitempty"`
	QuotedID       string `json:"quotedId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	IsRetweet      bool   `json:"isRetweet,omitempty"`
	RetweetedID    string `json:"retweetedId,omitempty"`

	// Article is set only for long-form records. A record carrying an
	// article supersedes a previously captured stub with the same ID.
	Article *Article `json:"article,omitempty"`

	// SourceEndpoint is stamped by the caller, never by the normalizer.
	SourceEndpoint string `json:"sourceEndpoint,omitempty"`
}

// Author describes the posting account. Upstream may omit any field.
type Author struct {
	ID            string `json:"id,omitempty"`
	Handle        string `json:"handle,omitempty"`
	DisplayName   string `json:"displayName,omitempty"`
	Verified      bool   `json:"verified,omitempty"`
	BlueVerified  bool   `json:"blueVerified,omitempty"`
	FollowerCount int64  `json:"followerCount,omitempty"`
}

// Metrics carries engagement counters. Views is a pointer because upstream
// reports it as an optional string counter; absence is not zero.
type Metrics struct {
	Replies   int64  `json:"replies"`
	Retweets  int64  `json:"retweets"`
	Likes     int64  `json:"likes"`
	Quotes    int64  `json:"quotes"`
	Bookmarks int64  `json:"bookmarks"`
	Views     *int64 `json:"views"`
}

// Media describes one attached media entity.
type Media struct {
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	AltText  string `json:"altText,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// URL is an expanded link from the record's entities.
type URL struct {
	URL      string `json:"url"`
	Expanded string `json:"expanded,omitempty"`
	Display  string `json:"display,omitempty"`
}

// Article is the rendered long-form overlay.
type Article struct {
	Title string  `json:"title,omitempty"`
	Body  string  `json:"body"`
	Media []Media `json:"media,omitempty"`
}

// HasArticle reports whether the record carries a long-form overlay.
// Such records are always accepted even when the ID was already seen.
func (r *Record) HasArticle() bool {
	return r.Article != nil
}
