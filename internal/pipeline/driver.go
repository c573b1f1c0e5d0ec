package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"xtap/internal/config"
	"xtap/internal/dedup"
	"xtap/internal/logging"
	"xtap/internal/normalize"
	"xtap/internal/transport"
)

// ErrStopped indicates the driver loop has exited.
var ErrStopped = errors.New("pipeline stopped")

// Sender delivers envelopes downstream. Satisfied by the transport manager;
// tests substitute a recorder.
type Sender interface {
	Send(ctx context.Context, env transport.Envelope) (transport.Result, error)
	State() transport.State
	RapidDisconnects() int
}

// SessionSaver persists the dedup snapshot between sessions. Satisfied by
// the state store.
type SessionSaver interface {
	SaveSession(ctx context.Context, ids []string, allTime int64) error
}

// Snapshot is a point-in-time view of the pipeline for status reporting.
type Snapshot struct {
	CaptureEnabled    bool
	OutputDir         string
	Buffered          int
	PendingLogLines   int
	TrackedIDs        int
	SessionAccepted   int64
	SessionDuplicates int64
	AllTime           int64
	Flushes           int64
	LastFlush         time.Time
	LastError         string
	Channel           transport.State
	RapidDisconnects  int
}

type ingestRequest struct {
	endpoint string
	payload  json.RawMessage
}

// DriverOption customizes driver construction.
type DriverOption func(*Driver)

// WithSessionSaver enables dedup snapshot persistence after each flush.
func WithSessionSaver(saver SessionSaver) DriverOption {
	return func(d *Driver) { d.saver = saver }
}

// WithLineBuffer attaches the captured-log ring whose contents ride along
// with flushes when log delivery is enabled.
func WithLineBuffer(lines *logging.LineBuffer) DriverOption {
	return func(d *Driver) { d.lines = lines }
}

// WithJitter overrides flush delay computation, for tests.
func WithJitter(jitter func(base time.Duration) time.Duration) DriverOption {
	return func(d *Driver) { d.jitter = jitter }
}

// Driver owns the capture pipeline: payloads are normalized, deduplicated,
// buffered, and flushed downstream either when the batch threshold is
// reached or when the jittered timer fires. All mutable state is confined
// to the Run goroutine; external callers interact through channels.
type Driver struct {
	cfg    *config.Config
	logger *slog.Logger
	sender Sender
	norm   *normalize.Normalizer
	dedup  *dedup.Store
	saver  SessionSaver
	lines  *logging.LineBuffer

	buffer         buffer
	captureEnabled bool
	outputDir      string

	ingestCh  chan ingestRequest
	controlCh chan func(ctx context.Context)
	done      chan struct{}

	jitter func(base time.Duration) time.Duration
	saving atomic.Bool

	flushes   int64
	lastFlush time.Time
	lastError string
}

// NewDriver builds a pipeline driver. Capture and output directory start
// from the config; both can be changed at runtime through control calls.
func NewDriver(cfg *config.Config, logger *slog.Logger, sender Sender, store *dedup.Store, opts ...DriverOption) *Driver {
	d := &Driver{
		cfg:            cfg,
		logger:         logging.WithComponent(logger, "pipeline"),
		sender:         sender,
		norm:           normalize.New(logger),
		dedup:          store,
		captureEnabled: cfg.Capture.Enabled,
		outputDir:      cfg.Paths.OutputDir,
		ingestCh:       make(chan ingestRequest, 16),
		controlCh:      make(chan func(ctx context.Context)),
		done:           make(chan struct{}),
	}
	d.jitter = func(base time.Duration) time.Duration {
		if base <= 0 {
			return time.Second
		}
		return base + rand.N(base/2)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes the pipeline loop until ctx is cancelled. A final flush is
// attempted on shutdown so buffered records are not stranded.
func (d *Driver) Run(ctx context.Context) error {
	timer := time.NewTimer(d.nextFlushDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), d.sendTimeout())
			d.flush(shutdownCtx)
			cancel()
			close(d.done)
			return nil

		case req := <-d.ingestCh:
			d.handleIngest(req)
			if d.buffer.Len() >= d.cfg.Batch.Size {
				d.flush(ctx)
				resetTimer(timer, d.nextFlushDelay())
			}

		case <-timer.C:
			d.flush(ctx)
			timer.Reset(d.nextFlushDelay())

		case fn := <-d.controlCh:
			fn(ctx)
		}
	}
}

// Ingest hands one raw payload to the pipeline loop. It blocks only while
// the loop is busy; callers are the ingest listener's request handlers.
func (d *Driver) Ingest(ctx context.Context, endpoint string, payload json.RawMessage) error {
	select {
	case d.ingestCh <- ingestRequest{endpoint: endpoint, payload: payload}:
		return nil
	case <-d.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush forces an immediate delivery attempt of the buffered batch.
func (d *Driver) Flush(ctx context.Context) error {
	var flushErr error
	if err := d.do(ctx, func(loopCtx context.Context) {
		flushErr = d.flush(loopCtx)
	}); err != nil {
		return err
	}
	return flushErr
}

// Status reports the pipeline's current counters and channel selection.
func (d *Driver) Status(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := d.do(ctx, func(context.Context) {
		snap = Snapshot{
			CaptureEnabled:    d.captureEnabled,
			OutputDir:         d.outputDir,
			Buffered:          d.buffer.Len(),
			TrackedIDs:        d.dedup.Len(),
			SessionAccepted:   d.dedup.SessionAccepted(),
			SessionDuplicates: d.dedup.SessionDuplicates(),
			AllTime:           d.dedup.AllTime(),
			Flushes:           d.flushes,
			LastFlush:         d.lastFlush,
			LastError:         d.lastError,
			Channel:           d.sender.State(),
			RapidDisconnects:  d.sender.RapidDisconnects(),
		}
		if d.lines != nil {
			snap.PendingLogLines = d.lines.Len()
		}
	})
	return snap, err
}

// SetCapture toggles payload processing. Disabling leaves the buffered
// batch intact for the next flush.
func (d *Driver) SetCapture(ctx context.Context, enabled bool) error {
	return d.do(ctx, func(context.Context) {
		if d.captureEnabled != enabled {
			d.captureEnabled = enabled
			d.logger.Info("capture toggled", logging.Bool("enabled", enabled))
		}
	})
}

// SetOutputDir changes the destination directory for subsequent deliveries.
// Callers validate the path first, see Passthrough with the test-path op.
func (d *Driver) SetOutputDir(ctx context.Context, dir string) error {
	return d.do(ctx, func(context.Context) {
		d.outputDir = dir
		d.logger.Info("output directory changed", logging.String("dir", dir))
	})
}

// Passthrough routes a non-batch operation (path validation, raw dumps,
// video downloads) through the active channel. The send happens inside the
// loop so it observes the same ordering as batch deliveries.
func (d *Driver) Passthrough(ctx context.Context, env transport.Envelope) (transport.Result, error) {
	var (
		result  transport.Result
		sendErr error
	)
	if env.OutputDir == "" {
		env.OutputDir = d.outputDirSnapshot(ctx)
	}
	if err := d.do(ctx, func(loopCtx context.Context) {
		result, sendErr = d.sender.Send(loopCtx, env)
	}); err != nil {
		return transport.Result{}, err
	}
	return result, sendErr
}

func (d *Driver) outputDirSnapshot(ctx context.Context) string {
	var dir string
	_ = d.do(ctx, func(context.Context) { dir = d.outputDir })
	return dir
}

// do runs fn on the loop goroutine and waits for it to finish.
func (d *Driver) do(ctx context.Context, fn func(ctx context.Context)) error {
	ran := make(chan struct{})
	wrapped := func(loopCtx context.Context) {
		fn(loopCtx)
		close(ran)
	}
	select {
	case d.controlCh <- wrapped:
	case <-d.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ran:
		return nil
	case <-d.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) handleIngest(req ingestRequest) {
	if !d.captureEnabled {
		d.logger.Debug("capture disabled, dropping payload", logging.String("endpoint", req.endpoint))
		return
	}

	records, stats := d.norm.Normalize(req.endpoint, req.payload)
	admitted := 0
	for i := range records {
		records[i].SourceEndpoint = req.endpoint
		if d.dedup.Admit(&records[i]) {
			d.buffer.Append(records[i])
			admitted++
		}
	}

	d.logger.Debug("payload ingested",
		logging.String("endpoint", req.endpoint),
		logging.Int("entries", stats.Entries),
		logging.Int("records", stats.Records),
		logging.Int("admitted", admitted),
		logging.Int("buffered", d.buffer.Len()),
	)
}

// flush delivers the buffered batch. On failure the batch is requeued at the
// front so ordering is preserved for the retry.
func (d *Driver) flush(ctx context.Context) error {
	if d.buffer.Len() == 0 {
		d.flushLogs(ctx)
		return nil
	}

	batch := d.buffer.Drain()
	result, err := d.sender.Send(ctx, transport.Envelope{
		Op:        transport.OpTweets,
		OutputDir: d.outputDir,
		Tweets:    batch,
	})
	if err != nil {
		d.buffer.Requeue(batch)
		d.lastError = err.Error()
		d.logger.Warn("flush failed, batch requeued",
			logging.Int("records", len(batch)),
			logging.Error(err),
		)
		return err
	}

	d.flushes++
	d.lastFlush = time.Now()
	d.lastError = ""
	d.logger.Info("batch delivered",
		logging.Int("records", len(batch)),
		logging.Int("stored", result.Count),
		logging.Int("dupes", result.Dupes),
	)

	d.persistSession()
	d.flushLogs(ctx)
	return nil
}

// flushLogs ships captured log lines after a batch delivery; a failure just
// requeues them for the next cycle.
func (d *Driver) flushLogs(ctx context.Context) {
	if !d.cfg.Capture.DeliverLogs || d.lines == nil || d.lines.Len() == 0 {
		return
	}
	lines := d.lines.Drain()
	if _, err := d.sender.Send(ctx, transport.Envelope{
		Op:        transport.OpLog,
		OutputDir: d.outputDir,
		Lines:     lines,
	}); err != nil {
		d.lines.Requeue(lines)
		d.logger.Debug("log delivery failed, lines requeued", logging.Error(err))
	}
}

// persistSession writes the dedup snapshot off the loop goroutine. At most
// one write is in flight; a flush during an ongoing write skips its turn and
// the next flush catches up.
func (d *Driver) persistSession() {
	if d.saver == nil || !d.saving.CompareAndSwap(false, true) {
		return
	}
	ids := d.dedup.Snapshot()
	allTime := d.dedup.AllTime()
	go func() {
		defer d.saving.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := d.saver.SaveSession(ctx, ids, allTime); err != nil {
			d.logger.Warn("session snapshot failed", logging.Error(err))
		}
	}()
}

func (d *Driver) nextFlushDelay() time.Duration {
	return d.jitter(time.Duration(d.cfg.Batch.FlushInterval) * time.Second)
}

func (d *Driver) sendTimeout() time.Duration {
	return time.Duration(d.cfg.Transport.SendTimeout) * time.Second
}

func resetTimer(timer *time.Timer, delay time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(delay)
}
