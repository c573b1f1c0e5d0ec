package ipc

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and pipeline status.
type StatusResponse struct {
	Running           bool   `json:"running"`
	PID               int    `json:"pid"`
	LockPath          string `json:"lock_path"`
	StateDBPath       string `json:"state_db_path"`
	CaptureEnabled    bool   `json:"capture_enabled"`
	OutputDir         string `json:"output_dir"`
	Channel           string `json:"channel"`
	RapidDisconnects  int    `json:"rapid_disconnects"`
	Buffered          int    `json:"buffered"`
	PendingLogLines   int    `json:"pending_log_lines"`
	TrackedIDs        int    `json:"tracked_ids"`
	SessionAccepted   int64  `json:"session_accepted"`
	SessionDuplicates int64  `json:"session_duplicates"`
	AllTime           int64  `json:"all_time"`
	Flushes           int64  `json:"flushes"`
	LastFlush         string `json:"last_flush"`
	LastError         string `json:"last_error"`
}

// StopRequest stops the daemon process.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// FlushRequest forces an immediate batch delivery.
type FlushRequest struct{}

// FlushResponse reports the flush outcome.
type FlushResponse struct {
	Flushed bool   `json:"flushed"`
	Message string `json:"message"`
}

// SetCaptureRequest toggles payload processing.
type SetCaptureRequest struct {
	Enabled bool `json:"enabled"`
}

// SetCaptureResponse echoes the applied setting.
type SetCaptureResponse struct {
	Enabled bool `json:"enabled"`
}

// SetOutputDirRequest changes the delivery destination directory. The
// daemon validates the path downstream before applying it.
type SetOutputDirRequest struct {
	Dir string `json:"dir"`
}

// SetOutputDirResponse echoes the applied directory.
type SetOutputDirResponse struct {
	Dir string `json:"dir"`
}

// CountersRequest fetches pipeline counters.
type CountersRequest struct{}

// CountersResponse reports session and lifetime counters.
type CountersResponse struct {
	SessionAccepted   int64 `json:"session_accepted"`
	SessionDuplicates int64 `json:"session_duplicates"`
	AllTime           int64 `json:"all_time"`
	Flushes           int64 `json:"flushes"`
	TrackedIDs        int   `json:"tracked_ids"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// DumpRequest ships a raw payload snapshot downstream for inspection.
type DumpRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// DumpResponse indicates the dump was accepted.
type DumpResponse struct {
	OK bool `json:"ok"`
}

// CheckYtdlpRequest asks the persistence side whether its video downloader
// is available.
type CheckYtdlpRequest struct{}

// CheckYtdlpResponse reports downloader availability.
type CheckYtdlpResponse struct {
	Available bool   `json:"available"`
	Detail    string `json:"detail"`
}

// DownloadVideoRequest forwards a video download request downstream.
type DownloadVideoRequest struct {
	TweetURL  string `json:"tweet_url"`
	DirectURL string `json:"direct_url"`
	PostDate  string `json:"post_date"`
}

// DownloadVideoResponse carries the downstream download identifier.
type DownloadVideoResponse struct {
	DownloadID string `json:"download_id"`
}

// DownloadStatusRequest polls a previously started download.
type DownloadStatusRequest struct {
	DownloadID string `json:"download_id"`
}

// DownloadStatusResponse reports the download's downstream state.
type DownloadStatusResponse struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}
