package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"xtap/internal/daemon"
	"xtap/internal/logging"
	"xtap/internal/logs"
	"xtap/internal/state"
	"xtap/internal/transport"
)

// serviceName is the RPC namespace exposed over the control socket.
const serviceName = "Xtap"

// SettingsWriter persists runtime setting changes. Satisfied by the state
// store.
type SettingsWriter interface {
	SetSetting(ctx context.Context, key, value string) error
}

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServerOptions carries the collaborators the control service needs.
type ServerOptions struct {
	Daemon      *daemon.Daemon
	Settings    SettingsWriter
	StateDBPath string
	LogPath     string
	// Stop requests process shutdown; invoked asynchronously so the RPC
	// response can still be written.
	Stop func()
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, opts ServerOptions, logger *slog.Logger) (*Server, error) {
	if opts.Daemon == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	svc := &service{
		daemon:      opts.Daemon,
		settings:    opts.Settings,
		stateDBPath: opts.StateDBPath,
		logPath:     opts.LogPath,
		stop:        opts.Stop,
		logger:      logging.WithComponent(logger, "ipc"),
		ctx:         ctx,
	}
	if err := rpcServer.RegisterName(serviceName, svc); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("control server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err))
	}
}

type service struct {
	daemon      *daemon.Daemon
	settings    SettingsWriter
	stateDBPath string
	logPath     string
	stop        func()
	logger      *slog.Logger
	ctx         context.Context
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	if s.logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, s.logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	snap, err := s.daemon.Driver().Status(s.ctx)
	if err != nil {
		return err
	}
	resp.Running = s.daemon.Running()
	resp.PID = os.Getpid()
	resp.LockPath = s.daemon.LockFilePath()
	resp.StateDBPath = s.stateDBPath
	resp.CaptureEnabled = snap.CaptureEnabled
	resp.OutputDir = snap.OutputDir
	resp.Channel = string(snap.Channel)
	resp.RapidDisconnects = snap.RapidDisconnects
	resp.Buffered = snap.Buffered
	resp.PendingLogLines = snap.PendingLogLines
	resp.TrackedIDs = snap.TrackedIDs
	resp.SessionAccepted = snap.SessionAccepted
	resp.SessionDuplicates = snap.SessionDuplicates
	resp.AllTime = snap.AllTime
	resp.Flushes = snap.Flushes
	if !snap.LastFlush.IsZero() {
		resp.LastFlush = snap.LastFlush.Format("2006-01-02T15:04:05Z07:00")
	}
	resp.LastError = snap.LastError
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	if s.stop != nil {
		go s.stop()
	}
	resp.Stopped = true
	return nil
}

func (s *service) Flush(_ FlushRequest, resp *FlushResponse) error {
	s.logger.Debug("manual flush requested")
	if err := s.daemon.Driver().Flush(s.ctx); err != nil {
		resp.Flushed = false
		resp.Message = err.Error()
		return nil
	}
	resp.Flushed = true
	resp.Message = "batch delivered"
	return nil
}

func (s *service) SetCapture(req SetCaptureRequest, resp *SetCaptureResponse) error {
	if err := s.daemon.Driver().SetCapture(s.ctx, req.Enabled); err != nil {
		return err
	}
	if s.settings != nil {
		value := "false"
		if req.Enabled {
			value = "true"
		}
		if err := s.settings.SetSetting(s.ctx, state.KeyCaptureEnabled, value); err != nil {
			s.logger.Warn("persist capture setting", logging.Error(err))
		}
	}
	resp.Enabled = req.Enabled
	return nil
}

// SetOutputDir validates the directory downstream before applying it. A
// rejected path leaves the current directory in place and surfaces the
// downstream error to the caller.
func (s *service) SetOutputDir(req SetOutputDirRequest, resp *SetOutputDirResponse) error {
	if req.Dir == "" {
		return errors.New("output directory is required")
	}
	driver := s.daemon.Driver()
	result, err := driver.Passthrough(s.ctx, transport.Envelope{
		Op:        transport.OpTestPath,
		OutputDir: req.Dir,
	})
	if err != nil {
		return fmt.Errorf("output directory rejected: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("output directory rejected: %s", result.Detail)
	}
	if err := driver.SetOutputDir(s.ctx, req.Dir); err != nil {
		return err
	}
	if s.settings != nil {
		if err := s.settings.SetSetting(s.ctx, state.KeyOutputDir, req.Dir); err != nil {
			s.logger.Warn("persist output directory", logging.Error(err))
		}
	}
	resp.Dir = req.Dir
	return nil
}

func (s *service) Counters(_ CountersRequest, resp *CountersResponse) error {
	snap, err := s.daemon.Driver().Status(s.ctx)
	if err != nil {
		return err
	}
	resp.SessionAccepted = snap.SessionAccepted
	resp.SessionDuplicates = snap.SessionDuplicates
	resp.AllTime = snap.AllTime
	resp.Flushes = snap.Flushes
	resp.TrackedIDs = snap.TrackedIDs
	return nil
}

func (s *service) Dump(req DumpRequest, resp *DumpResponse) error {
	if req.Filename == "" {
		return errors.New("dump filename is required")
	}
	result, err := s.daemon.Driver().Passthrough(s.ctx, transport.Envelope{
		Op:       transport.OpDump,
		Filename: req.Filename,
		Content:  req.Content,
	})
	if err != nil {
		return err
	}
	resp.OK = result.OK
	return nil
}

func (s *service) CheckYtdlp(_ CheckYtdlpRequest, resp *CheckYtdlpResponse) error {
	result, err := s.daemon.Driver().Passthrough(s.ctx, transport.Envelope{
		Op: transport.OpCheckYtdlp,
	})
	if err != nil {
		return err
	}
	resp.Available = result.Available
	resp.Detail = result.Detail
	return nil
}

func (s *service) DownloadVideo(req DownloadVideoRequest, resp *DownloadVideoResponse) error {
	if req.TweetURL == "" {
		return errors.New("tweet url is required")
	}
	result, err := s.daemon.Driver().Passthrough(s.ctx, transport.Envelope{
		Op:        transport.OpDownloadVideo,
		TweetURL:  req.TweetURL,
		DirectURL: req.DirectURL,
		PostDate:  req.PostDate,
	})
	if err != nil {
		return err
	}
	resp.DownloadID = result.DownloadID
	return nil
}

func (s *service) DownloadStatus(req DownloadStatusRequest, resp *DownloadStatusResponse) error {
	if req.DownloadID == "" {
		return errors.New("download id is required")
	}
	result, err := s.daemon.Driver().Passthrough(s.ctx, transport.Envelope{
		Op:         transport.OpDownloadStatus,
		DownloadID: req.DownloadID,
	})
	if err != nil {
		return err
	}
	resp.OK = result.OK
	resp.Detail = result.Detail
	return nil
}
