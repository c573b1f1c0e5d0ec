package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"xtap/internal/logging"
)

// ErrHostClosed indicates the host connection went away before a pending
// request completed.
var ErrHostClosed = errors.New("host channel closed")

// hostChannel is the message-oriented delivery path (channel B): a
// persistent framed connection to the persistence host. Record deliveries
// are fire-and-forget; typed requests are correlated to responses through a
// pending map because the wire has no request/response pairing of its own.
type hostChannel struct {
	conn   net.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]*pendingCall
	seq     uint64
	closed  bool

	onAck        func(map[string]any)
	onDisconnect func(error)
}

type pendingCall struct {
	id  string
	seq uint64
	// expect is the response type tag that resolves this call.
	expect string
	ch     chan map[string]any
}

func newHostChannel(conn net.Conn, logger *slog.Logger, onAck func(map[string]any), onDisconnect func(error)) *hostChannel {
	h := &hostChannel{
		conn:         conn,
		logger:       logging.WithComponent(logger, "host"),
		pending:      make(map[string]*pendingCall),
		onAck:        onAck,
		onDisconnect: onDisconnect,
	}
	go h.readLoop()
	return h
}

// Send writes one message without waiting for its response; the read loop
// consumes the eventual ack and surfaces rejections through the logger.
func (h *hostChannel) Send(msg map[string]any) error {
	return h.write(msg)
}

// Request writes one typed message and waits for the response carrying the
// matching type tag, a timeout, or connection loss. Correlation ids are
// generated locally; the wire itself only carries type tags, so responses
// resolve the oldest pending call expecting that tag.
func (h *hostChannel) Request(ctx context.Context, msg map[string]any, expect string) (map[string]any, error) {
	call := &pendingCall{
		id:     uuid.NewString(),
		expect: expect,
		ch:     make(chan map[string]any, 1),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHostClosed
	}
	h.seq++
	call.seq = h.seq
	h.pending[call.id] = call
	h.mu.Unlock()

	if err := h.write(msg); err != nil {
		h.drop(call.id)
		return nil, err
	}

	select {
	case resp, ok := <-call.ch:
		if !ok {
			return nil, ErrHostClosed
		}
		return resp, nil
	case <-ctx.Done():
		h.drop(call.id)
		return nil, ctx.Err()
	}
}

func (h *hostChannel) Close() error {
	h.fail(nil)
	return h.conn.Close()
}

func (h *hostChannel) write(msg map[string]any) error {
	encoded, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode host message: %w", err)
	}
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if err := writeFrame(h.conn, encoded); err != nil {
		return fmt.Errorf("write host frame: %w", err)
	}
	return nil
}

func (h *hostChannel) readLoop() {
	for {
		payload, err := readFrame(h.conn)
		if err != nil {
			h.fail(err)
			if h.onDisconnect != nil {
				h.onDisconnect(err)
			}
			return
		}
		if len(payload) == 0 {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.logger.Warn("undecodable host frame", logging.Error(err))
			continue
		}
		h.dispatch(msg)
	}
}

// dispatch resolves the oldest pending call whose expected tag matches the
// response; untagged acks go to the ack callback.
func (h *hostChannel) dispatch(msg map[string]any) {
	tag, _ := msg["type"].(string)

	h.mu.Lock()
	var match *pendingCall
	for _, call := range h.pending {
		if call.expect != tag {
			continue
		}
		if match == nil || call.seq < match.seq {
			match = call
		}
	}
	if match != nil {
		delete(h.pending, match.id)
	}
	h.mu.Unlock()

	if match != nil {
		match.ch <- msg
		return
	}

	if ok, present := msg["ok"].(bool); present && !ok {
		h.logger.Warn("host rejected delivery", logging.String("detail", responseError(msg)))
		return
	}
	if h.onAck != nil {
		h.onAck(msg)
	}
}

func (h *hostChannel) drop(id string) {
	h.mu.Lock()
	delete(h.pending, id)
	h.mu.Unlock()
}

// fail closes all pending calls; safe to invoke more than once.
func (h *hostChannel) fail(err error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	pending := h.pending
	h.pending = map[string]*pendingCall{}
	h.mu.Unlock()

	for _, call := range pending {
		close(call.ch)
	}
	if err != nil && !errors.Is(err, net.ErrClosed) {
		h.logger.Debug("host connection lost", logging.Error(err))
	}
}

// dialHost opens the persistence host's socket.
func dialHost(ctx context.Context, socketPath string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	return dialer.DialContext(ctx, "unix", socketPath)
}
