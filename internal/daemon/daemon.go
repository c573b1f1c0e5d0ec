package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"xtap/internal/config"
	"xtap/internal/logging"
	"xtap/internal/pipeline"
	"xtap/internal/transport"
)

// Daemon coordinates the capture pipeline and enforces single-instance
// execution through a lock file.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	driver    *pipeline.Driver
	transport *transport.Manager
	ingest    *ingestServer

	lockPath string
	lock     *flock.Flock

	running    atomic.Bool
	cancel     context.CancelFunc
	driverDone chan struct{}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, driver *pipeline.Driver, tm *transport.Manager) (*Daemon, error) {
	if cfg == nil || logger == nil || driver == nil || tm == nil {
		return nil, errors.New("daemon requires config, logger, driver, and transport")
	}

	lockPath := filepath.Join(cfg.Paths.StateDir, "xtapd.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		driver:    driver,
		transport: tm,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	d.ingest = newIngestServer(cfg, driver, logger)
	return d, nil
}

// Start acquires the daemon lock, launches the pipeline loop, and begins
// accepting capture payloads.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another xtap daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.driverDone = make(chan struct{})
	go func() {
		defer close(d.driverDone)
		if err := d.driver.Run(runCtx); err != nil {
			d.logger.Error("pipeline loop exited", logging.Error(err))
		}
	}()

	if err := d.ingest.start(runCtx); err != nil {
		cancel()
		<-d.driverDone
		_ = d.lock.Unlock()
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("xtap daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down the ingest listener, drains the pipeline, and releases
// the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.ingest.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.driverDone != nil {
		<-d.driverDone
		d.driverDone = nil
	}
	if err := d.transport.Close(); err != nil {
		d.logger.Debug("transport close", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("xtap daemon stopped")
}

// Running reports whether the daemon has started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LockFilePath returns the single-instance lock location.
func (d *Daemon) LockFilePath() string {
	return d.lockPath
}

// Driver exposes the pipeline for the control server.
func (d *Daemon) Driver() *pipeline.Driver {
	return d.driver
}
