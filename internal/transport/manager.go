package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"xtap/internal/config"
	"xtap/internal/logging"
)

// State names the currently selected delivery channel.
type State string

const (
	StateNone State = "none"
	StateHTTP State = "http"
	StateHost State = "host"
)

// ErrNoChannel indicates no delivery channel could be established; the
// caller defers the batch until one becomes available.
var ErrNoChannel = errors.New("no delivery channel available")

// Credential is the cached channel A bearer token and address, persisted
// across sessions once obtained.
type Credential struct {
	Token   string
	Address string
}

// HostDialer opens a connection to the persistence host's socket.
type HostDialer func(ctx context.Context) (net.Conn, error)

// Option customizes manager construction.
type Option func(*Manager)

// WithHostDialer overrides how the host socket is opened, for tests.
func WithHostDialer(dial HostDialer) Option {
	return func(m *Manager) { m.dialHost = dial }
}

// WithCredentialSink registers a callback invoked when a fresh credential is
// obtained through bootstrap, so the caller can persist it.
func WithCredentialSink(sink func(Credential)) Option {
	return func(m *Manager) { m.onCredential = sink }
}

// Manager selects and maintains a delivery channel and exposes one Send
// operation regardless of which channel is active. Send and Connect must be
// called from the pipeline driver only; internal callbacks from the host
// read loop are the sole other writers and are mutex-guarded.
type Manager struct {
	cfg      config.Transport
	logger   *slog.Logger
	dialHost HostDialer

	onCredential func(Credential)

	state State
	httpc *httpChannel
	cred  *Credential

	mu               sync.Mutex
	host             *hostChannel
	lastDisconnect   time.Time
	rapidDisconnects int
}

// NewManager builds a transport manager in state none; call Connect to
// select a channel.
func NewManager(cfg config.Transport, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		logger: logging.WithComponent(logger, "transport"),
		state:  StateNone,
	}
	m.dialHost = func(ctx context.Context) (net.Conn, error) {
		return dialHost(ctx, cfg.HostSocket, m.bootstrapTimeout())
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the currently selected channel.
func (m *Manager) State() State {
	return m.state
}

// RapidDisconnects returns how many crash-loop-window host disconnects have
// occurred since the last acknowledged delivery.
func (m *Manager) RapidDisconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rapidDisconnects
}

// Connect selects a delivery channel:
//
//  1. a cached credential that still probes alive selects channel A;
//  2. otherwise a brief host connection bootstraps a fresh credential via
//     GET_TOKEN and channel A is probed with it;
//  3. otherwise a persistent host connection selects channel B;
//  4. otherwise the state stays none and deliveries are deferred.
func (m *Manager) Connect(ctx context.Context, cached *Credential) State {
	if cached != nil && cached.Token != "" {
		if m.tryHTTP(ctx, *cached) {
			return m.state
		}
		m.logger.Info("cached credential no longer valid")
	}

	if cred, ok := m.bootstrapCredential(ctx); ok {
		if m.tryHTTP(ctx, cred) {
			if m.onCredential != nil {
				m.onCredential(cred)
			}
			return m.state
		}
	}

	if m.ensureHost(ctx) {
		m.state = StateHost
		m.logger.Info("selected host channel", logging.String("socket", m.cfg.HostSocket))
		return m.state
	}

	m.state = StateNone
	m.logger.Warn("no delivery channel available, deferring")
	return m.state
}

// Send delivers one envelope over the selected channel. A channel A failure
// demotes to channel B for subsequent sends; the failed envelope itself is
// returned as an error for the scheduler to retry.
func (m *Manager) Send(ctx context.Context, env Envelope) (Result, error) {
	if m.state == StateNone {
		if m.Connect(ctx, m.cred) == StateNone {
			return Result{}, ErrNoChannel
		}
	}

	switch m.state {
	case StateHTTP:
		return m.sendHTTP(ctx, env)
	case StateHost:
		return m.sendHost(ctx, env)
	default:
		return Result{}, ErrNoChannel
	}
}

func (m *Manager) sendHTTP(ctx context.Context, env Envelope) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, m.sendTimeout())
	defer cancel()

	decoded, err := m.httpc.Post(ctx, httpPath(env.Op), env.body())
	if err != nil {
		m.logger.Warn("http send failed, demoting to host channel", logging.Error(err))
		m.state = StateHost
		m.ensureHost(ctx)
		return Result{}, err
	}
	m.resetDisconnects()
	return parseResult(decoded), nil
}

func (m *Manager) sendHost(ctx context.Context, env Envelope) (Result, error) {
	m.mu.Lock()
	host := m.host
	m.mu.Unlock()
	if host == nil {
		if !m.ensureHost(ctx) {
			m.state = StateNone
			return Result{}, ErrNoChannel
		}
		m.mu.Lock()
		host = m.host
		m.mu.Unlock()
	}

	msg := env.body()
	msg["type"] = hostType(env.Op)

	switch env.Op {
	case OpTweets, OpLog:
		// Fire-and-forget; the read loop consumes the ack and logs
		// rejections.
		if err := host.Send(msg); err != nil {
			return Result{}, err
		}
		return Result{OK: true, Count: len(env.Tweets), Logged: len(env.Lines)}, nil
	default:
		ctx, cancel := context.WithTimeout(ctx, m.sendTimeout())
		defer cancel()
		decoded, err := host.Request(ctx, msg, hostType(env.Op))
		if err != nil {
			return Result{}, err
		}
		result := parseResult(decoded)
		if !result.OK {
			return result, fmt.Errorf("%s rejected: %s", env.Op, result.Detail)
		}
		return result, nil
	}
}

func (m *Manager) tryHTTP(ctx context.Context, cred Credential) bool {
	address := cred.Address
	if address == "" {
		address = m.cfg.DaemonAddress
	}
	httpc := newHTTPChannel(address, cred.Token, m.sendTimeout(), m.probeTimeout())
	if !httpc.Probe(ctx) {
		return false
	}
	m.httpc = httpc
	m.cred = &Credential{Token: cred.Token, Address: address}
	m.state = StateHTTP
	m.logger.Info("selected http channel", logging.String("address", address))
	return true
}

// bootstrapCredential opens the host briefly, requests a token, and closes
// the connection again. Failure is non-fatal; the caller falls back.
func (m *Manager) bootstrapCredential(ctx context.Context) (Credential, bool) {
	ctx, cancel := context.WithTimeout(ctx, m.bootstrapTimeout())
	defer cancel()

	conn, err := m.dialHost(ctx)
	if err != nil {
		m.logger.Debug("bootstrap dial failed", logging.Error(err))
		return Credential{}, false
	}
	host := newHostChannel(conn, m.logger, nil, nil)
	defer host.Close()

	resp, err := host.Request(ctx, map[string]any{"type": "GET_TOKEN"}, "GET_TOKEN")
	if err != nil {
		m.logger.Debug("bootstrap request failed", logging.Error(err))
		return Credential{}, false
	}
	token, _ := resp["token"].(string)
	if token == "" {
		return Credential{}, false
	}
	address, _ := resp["address"].(string)
	if address == "" {
		address = m.cfg.DaemonAddress
	}
	m.logger.Info("bootstrapped delivery credential", logging.String("address", address))
	return Credential{Token: token, Address: address}, true
}

// ensureHost establishes the persistent host connection if absent.
func (m *Manager) ensureHost(ctx context.Context) bool {
	m.mu.Lock()
	if m.host != nil {
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	conn, err := m.dialHost(ctx)
	if err != nil {
		m.logger.Debug("host dial failed", logging.Error(err))
		return false
	}

	host := newHostChannel(conn, m.logger, m.handleAck, m.handleDisconnect)
	m.mu.Lock()
	m.host = host
	m.mu.Unlock()
	return true
}

// Close tears down any open channel.
func (m *Manager) Close() error {
	m.mu.Lock()
	host := m.host
	m.host = nil
	m.mu.Unlock()
	if host != nil {
		return host.Close()
	}
	return nil
}

func (m *Manager) handleAck(msg map[string]any) {
	m.resetDisconnects()
}

// handleDisconnect distinguishes isolated host disconnects from rapid ones:
// repeated disconnects inside the configured window signal a persistence
// process crash loop rather than a one-off failure.
func (m *Manager) handleDisconnect(err error) {
	m.mu.Lock()
	now := time.Now()
	rapid := !m.lastDisconnect.IsZero() && now.Sub(m.lastDisconnect) < m.disconnectWindow()
	m.lastDisconnect = now
	if rapid {
		m.rapidDisconnects++
	}
	count := m.rapidDisconnects
	m.host = nil
	m.mu.Unlock()

	if rapid {
		m.logger.Error("host crash loop suspected",
			logging.Int("rapid_disconnects", count),
			logging.Error(err),
		)
		return
	}
	m.logger.Warn("host disconnected", logging.Error(err))
}

func (m *Manager) resetDisconnects() {
	m.mu.Lock()
	m.rapidDisconnects = 0
	m.mu.Unlock()
}

func (m *Manager) sendTimeout() time.Duration {
	return time.Duration(m.cfg.SendTimeout) * time.Second
}

func (m *Manager) probeTimeout() time.Duration {
	return time.Duration(m.cfg.ProbeTimeout) * time.Second
}

func (m *Manager) bootstrapTimeout() time.Duration {
	return time.Duration(m.cfg.BootstrapTimeout) * time.Second
}

func (m *Manager) disconnectWindow() time.Duration {
	return time.Duration(m.cfg.DisconnectWindow) * time.Second
}

func httpPath(op Op) string {
	return "/" + string(op)
}

func parseResult(decoded map[string]any) Result {
	result := Result{}
	result.OK, _ = decoded["ok"].(bool)
	if count, ok := decoded["count"].(float64); ok {
		result.Count = int(count)
	}
	if dupes, ok := decoded["dupes"].(float64); ok {
		result.Dupes = int(dupes)
	}
	if logged, ok := decoded["logged"].(float64); ok {
		result.Logged = int(logged)
	}
	result.Available, _ = decoded["available"].(bool)
	result.DownloadID, _ = decoded["downloadId"].(string)
	if !result.OK {
		result.Detail = responseError(decoded)
	}
	return result
}
