package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"xtap/internal/config"
	"xtap/internal/daemon"
	"xtap/internal/dedup"
	"xtap/internal/ipc"
	"xtap/internal/logging"
	"xtap/internal/pipeline"
	"xtap/internal/state"
	"xtap/internal/transport"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel   string
	ConfigPath string
}

// Run starts the xtap daemon runtime loop and blocks until shutdown.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	runID := time.Now().UTC().Format("20060102T150405Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("xtap-%s.log", runID))

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}

	var lineBuffer *logging.LineBuffer
	loggerOpts := logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
	}
	if cfg.Capture.DeliverLogs {
		lineBuffer = logging.NewLineBuffer(cfg.Batch.MaxLogLines, slog.LevelInfo)
		loggerOpts.Extra = []slog.Handler{lineBuffer}
	}
	logger, err := logging.New(loggerOpts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update xtap.log link: %v\n", err)
	}
	pidPath := filepath.Join(cfg.Paths.StateDir, "xtapd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := state.Open(cfg)
	if err != nil {
		logger.Error("open state store", logging.Error(err))
		return err
	}
	defer store.Close()

	if err := applyPersistedSettings(signalCtx, cfg, store); err != nil {
		logger.Warn("load persisted settings", logging.Error(err))
	}

	dedupStore, err := restoreDedup(signalCtx, cfg, store, logger)
	if err != nil {
		return err
	}

	tm := transport.NewManager(cfg.Transport, logger,
		transport.WithCredentialSink(func(cred transport.Credential) {
			persistCtx, persistCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer persistCancel()
			if err := store.SetSetting(persistCtx, state.KeyDaemonToken, cred.Token); err != nil {
				logger.Warn("persist delivery token", logging.Error(err))
			}
			if err := store.SetSetting(persistCtx, state.KeyDaemonAddress, cred.Address); err != nil {
				logger.Warn("persist delivery address", logging.Error(err))
			}
		}))
	tm.Connect(signalCtx, cachedCredential(signalCtx, store))

	driverOpts := []pipeline.DriverOption{pipeline.WithSessionSaver(store)}
	if lineBuffer != nil {
		driverOpts = append(driverOpts, pipeline.WithLineBuffer(lineBuffer))
	}
	driver := pipeline.NewDriver(cfg, logger, tm, dedupStore, driverOpts...)

	d, err := daemon.New(cfg, logger, driver, tm)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.ControlSocket, ipc.ServerOptions{
		Daemon:      d,
		Settings:    store,
		StateDBPath: store.Path(),
		LogPath:     logPath,
		Stop:        cancel,
	}, logger)
	if err != nil {
		return fmt.Errorf("start control server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	if opts.ConfigPath != "" {
		prev := cfg
		if err := config.Watch(signalCtx, opts.ConfigPath, logger, func(next *config.Config) {
			applyConfigChange(signalCtx, driver, logger, prev, next)
			prev = next
		}); err != nil {
			logger.Warn("config watch unavailable", logging.Error(err))
		}
	}

	<-signalCtx.Done()
	logger.Info("xtap daemon shutting down")
	d.Stop()

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer saveCancel()
	if err := store.SaveSession(saveCtx, dedupStore.Snapshot(), dedupStore.AllTime()); err != nil {
		logger.Warn("final session snapshot failed", logging.Error(err))
	}
	return nil
}

// applyConfigChange pushes reloaded config values into the running pipeline.
// Only capture and output directory are safe to change without a restart;
// everything else keeps its startup value.
func applyConfigChange(ctx context.Context, driver *pipeline.Driver, logger *slog.Logger, prev, next *config.Config) {
	if next.Capture.Enabled != prev.Capture.Enabled {
		if err := driver.SetCapture(ctx, next.Capture.Enabled); err != nil {
			logger.Warn("apply reloaded capture flag", logging.Error(err))
		}
	}
	if next.Paths.OutputDir != prev.Paths.OutputDir {
		if err := driver.SetOutputDir(ctx, next.Paths.OutputDir); err != nil {
			logger.Warn("apply reloaded output directory", logging.Error(err))
		}
	}
}

// applyPersistedSettings overlays runtime settings saved by previous
// sessions onto the loaded config.
func applyPersistedSettings(ctx context.Context, cfg *config.Config, store *state.Store) error {
	if value, ok, err := store.Setting(ctx, state.KeyCaptureEnabled); err != nil {
		return err
	} else if ok {
		cfg.Capture.Enabled = value == "true"
	}
	if value, ok, err := store.Setting(ctx, state.KeyOutputDir); err != nil {
		return err
	} else if ok && value != "" {
		cfg.Paths.OutputDir = value
	}
	return nil
}

func restoreDedup(ctx context.Context, cfg *config.Config, store *state.Store, logger *slog.Logger) (*dedup.Store, error) {
	dedupStore := dedup.NewStore(cfg.Dedup.Capacity)
	ids, err := store.LoadSeenIDs(ctx, cfg.Dedup.Capacity)
	if err != nil {
		return nil, fmt.Errorf("load seen identifiers: %w", err)
	}
	allTime, err := store.Counter(ctx, state.CounterAllTime)
	if err != nil {
		return nil, fmt.Errorf("load counters: %w", err)
	}
	dedupStore.Restore(ids, allTime)
	logger.Info("dedup state restored",
		logging.Int("tracked_ids", dedupStore.Len()),
		logging.Int64("all_time", allTime),
	)
	return dedupStore, nil
}

func cachedCredential(ctx context.Context, store *state.Store) *transport.Credential {
	token, ok, err := store.Setting(ctx, state.KeyDaemonToken)
	if err != nil || !ok || token == "" {
		return nil
	}
	address, _, _ := store.Setting(ctx, state.KeyDaemonAddress)
	return &transport.Credential{Token: token, Address: address}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "xtap.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
