package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xtap/internal/daemon"
	"xtap/internal/dedup"
	"xtap/internal/ipc"
	"xtap/internal/logging"
	"xtap/internal/pipeline"
	"xtap/internal/state"
	"xtap/internal/testsupport"
	"xtap/internal/transport"
)

type harness struct {
	client *ipc.Client
	store  *state.Store
	stops  chan struct{}
}

// startControl wires a real daemon, pipeline, and control server around an
// unreachable transport, then dials the control socket.
func startControl(t *testing.T, logPath string) *harness {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenState(t, cfg)
	logger := logging.NewNop()

	tm := transport.NewManager(cfg.Transport, logger)
	dedupStore := dedup.NewStore(cfg.Dedup.Capacity)
	driver := pipeline.NewDriver(cfg, logger, tm, dedupStore)

	d, err := daemon.New(cfg, logger, driver, tm)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	stops := make(chan struct{}, 1)
	server, err := ipc.NewServer(ctx, cfg.Paths.ControlSocket, ipc.ServerOptions{
		Daemon:      d,
		Settings:    store,
		StateDBPath: store.Path(),
		LogPath:     logPath,
		Stop:        func() { stops <- struct{}{} },
	}, logger)
	if err != nil {
		t.Fatalf("ipc.NewServer: %v", err)
	}
	server.Serve()
	t.Cleanup(server.Close)

	client, err := ipc.Dial(cfg.Paths.ControlSocket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return &harness{client: client, store: store, stops: stops}
}

func TestControlStatusRoundTrip(t *testing.T) {
	h := startControl(t, "")

	resp, err := h.client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !resp.Running {
		t.Fatal("daemon should report running")
	}
	if resp.PID != os.Getpid() {
		t.Fatalf("pid: got %d, want %d", resp.PID, os.Getpid())
	}
	if !resp.CaptureEnabled {
		t.Fatal("capture should default on")
	}
	if resp.Channel != string(transport.StateNone) {
		t.Fatalf("channel: %q", resp.Channel)
	}
	if resp.Buffered != 0 || resp.Flushes != 0 {
		t.Fatalf("fresh pipeline counters: %+v", resp)
	}
	if resp.LockPath == "" || resp.StateDBPath == "" {
		t.Fatalf("paths missing: %+v", resp)
	}
}

func TestControlSetCapturePersists(t *testing.T) {
	h := startControl(t, "")

	resp, err := h.client.SetCapture(false)
	if err != nil {
		t.Fatalf("SetCapture: %v", err)
	}
	if resp.Enabled {
		t.Fatal("response should echo disabled")
	}

	status, err := h.client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.CaptureEnabled {
		t.Fatal("capture should be off")
	}

	value, ok, err := h.store.Setting(context.Background(), state.KeyCaptureEnabled)
	if err != nil || !ok {
		t.Fatalf("persisted setting: ok=%v err=%v", ok, err)
	}
	if value != "false" {
		t.Fatalf("persisted value: %q", value)
	}
}

func TestControlFlushWithEmptyBuffer(t *testing.T) {
	h := startControl(t, "")

	resp, err := h.client.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if !resp.Flushed {
		t.Fatalf("empty flush should succeed: %+v", resp)
	}
}

func TestControlSetOutputDirRejectedWithoutChannel(t *testing.T) {
	h := startControl(t, "")

	_, err := h.client.SetOutputDir("/srv/archive")
	if err == nil {
		t.Fatal("expected rejection without a delivery channel")
	}
	if !strings.Contains(err.Error(), "output directory rejected") {
		t.Fatalf("error: %v", err)
	}

	status, err := h.client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.OutputDir == "/srv/archive" {
		t.Fatal("rejected directory must not be applied")
	}
}

func TestControlCounters(t *testing.T) {
	h := startControl(t, "")

	resp, err := h.client.Counters()
	if err != nil {
		t.Fatalf("Counters: %v", err)
	}
	if resp.SessionAccepted != 0 || resp.AllTime != 0 || resp.TrackedIDs != 0 {
		t.Fatalf("fresh counters: %+v", resp)
	}
}

func TestControlStopInvokesCallback(t *testing.T) {
	h := startControl(t, "")

	resp, err := h.client.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !resp.Stopped {
		t.Fatal("stop should acknowledge")
	}
	<-h.stops
}

func TestControlLogTail(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "xtap.log")
	if err := os.WriteFile(logPath, []byte("alpha\nbeta\ngamma\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	h := startControl(t, logPath)

	resp, err := h.client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail: %v", err)
	}
	if len(resp.Lines) != 2 || resp.Lines[0] != "beta" || resp.Lines[1] != "gamma" {
		t.Fatalf("lines: %v", resp.Lines)
	}
	if resp.Offset == 0 {
		t.Fatal("offset should advance to end of file")
	}
}

func TestControlDumpRequiresFilename(t *testing.T) {
	h := startControl(t, "")

	if _, err := h.client.Dump("", "{}"); err == nil {
		t.Fatal("expected filename validation error")
	}
}

func TestControlVideoValidation(t *testing.T) {
	h := startControl(t, "")

	if _, err := h.client.DownloadVideo("", "", ""); err == nil {
		t.Fatal("expected tweet url validation error")
	}
	if _, err := h.client.DownloadStatus(""); err == nil {
		t.Fatal("expected download id validation error")
	}
}
