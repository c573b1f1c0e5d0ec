package transport

import "xtap/internal/record"

// Op names a delivery operation. Every op is routed through the same Send
// call regardless of the selected channel.
type Op string

const (
	OpTweets         Op = "tweets"
	OpLog            Op = "log"
	OpTestPath       Op = "test-path"
	OpDump           Op = "dump"
	OpCheckYtdlp     Op = "check-ytdlp"
	OpDownloadVideo  Op = "download-video"
	OpDownloadStatus Op = "download-status"
)

// Envelope is one delivery unit handed to the transport manager.
type Envelope struct {
	Op        Op
	OutputDir string

	Tweets []record.Record
	Lines  []string

	// Dump payload.
	Filename string
	Content  string

	// Video passthrough.
	TweetURL   string
	DirectURL  string
	PostDate   string
	DownloadID string
}

// Result is the downstream outcome of a Send.
type Result struct {
	OK         bool
	Count      int
	Dupes      int
	Logged     int
	Available  bool
	DownloadID string
	Detail     string
}

// hostType maps an op onto the message channel's type tag.
func hostType(op Op) string {
	switch op {
	case OpTweets:
		return "TWEETS"
	case OpLog:
		return "LOG"
	case OpTestPath:
		return "TEST_PATH"
	case OpDump:
		return "DUMP"
	case OpCheckYtdlp:
		return "CHECK_YTDLP"
	case OpDownloadVideo:
		return "DOWNLOAD_VIDEO"
	case OpDownloadStatus:
		return "DOWNLOAD_STATUS"
	default:
		return ""
	}
}

// body renders the envelope's wire body shared by both channels.
func (e *Envelope) body() map[string]any {
	body := map[string]any{}
	if e.OutputDir != "" {
		body["outputDir"] = e.OutputDir
	}
	switch e.Op {
	case OpTweets:
		body["tweets"] = e.Tweets
	case OpLog:
		body["lines"] = e.Lines
	case OpTestPath:
		// outputDir only
	case OpDump:
		body["filename"] = e.Filename
		body["content"] = e.Content
	case OpCheckYtdlp:
		// empty body
	case OpDownloadVideo:
		body["tweetUrl"] = e.TweetURL
		body["directUrl"] = e.DirectURL
		body["postDate"] = e.PostDate
	case OpDownloadStatus:
		body["downloadId"] = e.DownloadID
	}
	return body
}
