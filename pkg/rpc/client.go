package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/StrathCole/pyth-publisher/pkg/metrics"
	"github.com/StrathCole/pyth-publisher/pkg/version"
)

const (
	defaultReconnectWait    = 1 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultPingInterval     = 30 * time.Second
	defaultPongWait         = 60 * time.Second
	defaultWriteWait        = 10 * time.Second
	maxMessageSize          = 8 << 20
)

// Config holds JSON-RPC client configuration.
type Config struct {
	URL string
	// ReconnectWait is the fixed delay between connection attempts. Retries are unbounded.
	ReconnectWait time.Duration
	// RequestTimeout bounds each Request. Zero leaves requests bounded only by
	// the caller's context and connection loss.
	RequestTimeout   time.Duration
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongWait         time.Duration
	WriteWait        time.Duration
	Logger           zerolog.Logger
}

// Client maintains one logical JSON-RPC session with automatic reconnection.
type Client struct {
	url              string
	reconnectWait    time.Duration
	requestTimeout   time.Duration
	handshakeTimeout time.Duration
	pingInterval     time.Duration
	pongWait         time.Duration
	writeWait        time.Duration
	logger           zerolog.Logger

	handler Handler
	state   atomic.Int32
	nextID  atomic.Uint64

	// connMu guards conn and serializes writes; gorilla allows one writer at a time.
	connMu sync.Mutex
	conn   *websocket.Conn

	pendingMu sync.Mutex
	pending   map[uint64]chan response

	lifeMu   sync.Mutex
	started  bool
	stopped  bool
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	handlers sync.WaitGroup

	reconnectCh chan struct{}
}

// NewClient creates a new JSON-RPC client. Call SetHandler before Start.
func NewClient(cfg Config) *Client {
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = defaultReconnectWait
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}

	return &Client{
		url:              cfg.URL,
		reconnectWait:    cfg.ReconnectWait,
		requestTimeout:   cfg.RequestTimeout,
		handshakeTimeout: cfg.HandshakeTimeout,
		pingInterval:     cfg.PingInterval,
		pongWait:         cfg.PongWait,
		writeWait:        cfg.WriteWait,
		logger:           cfg.Logger.With().Str("component", "rpc").Logger(),
		pending:          make(map[uint64]chan response),
		loopDone:         make(chan struct{}),
		reconnectCh:      make(chan struct{}, 1),
	}
}

// SetHandler sets the receiver of connection and notification events.
func (c *Client) SetHandler(h Handler) {
	c.handler = h
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// IsConnected reports whether the session is currently connected.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Start begins the connect/reconnect loop and returns immediately.
func (c *Client) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.stopped {
		return ErrClosed
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.logger.Info().Str("url", c.url).Msg("starting rpc client")
	go c.loop()
	return nil
}

// Stop closes the transport, fails pending requests and waits until the
// connection loop and every in-flight handler have returned. No handler
// callbacks fire after Stop returns.
func (c *Client) Stop() {
	c.lifeMu.Lock()
	if c.stopped {
		c.lifeMu.Unlock()
		return
	}
	c.stopped = true
	started := c.started
	c.lifeMu.Unlock()

	if started {
		c.cancel()
	}

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeWait))
		_ = c.conn.Close()
	}
	c.connMu.Unlock()

	if started {
		<-c.loopDone
	}
	c.handlers.Wait()
	c.failPending(ErrClosed)
	c.setState(StateDisconnected)
	c.logger.Info().Msg("rpc client stopped")
}

// Reconnect drops the current connection. The loop reconnects after the usual backoff.
func (c *Client) Reconnect() {
	select {
	case c.reconnectCh <- struct{}{}:
	default:
	}
}

// Request sends a request and waits for the matching response.
func (c *Client) Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	result, err := c.request(ctx, method, params)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordRPCRequest(method, status)
	return result, err
}

func (c *Client) request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	c.lifeMu.Lock()
	started, stopped := c.started, c.stopped
	c.lifeMu.Unlock()
	if stopped {
		return nil, ErrClosed
	}
	if !started {
		return nil, ErrNotConnected
	}

	id := c.nextID.Add(1)
	data, err := json.Marshal(request{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	ch := make(chan response, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer c.removePending(id)

	if err := c.write(data); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp.result, resp.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrRequestTimeout, method)
		}
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, ErrClosed
	}
}

func (c *Client) write(data []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: write: %v", ErrTransport, err)
	}
	return nil
}

func (c *Client) removePending(id uint64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for id, ch := range c.pending {
		select {
		case ch <- response{err: err}:
		default:
		}
		delete(c.pending, id)
	}
}

func (c *Client) deliver(id uint64, resp response) bool {
	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.pendingMu.Unlock()

	if !ok {
		return false
	}
	select {
	case ch <- resp:
	default:
	}
	return true
}

func (c *Client) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old == s {
		return
	}
	metrics.RecordConnected(s == StateConnected)
	c.logger.Debug().Str("from", old.String()).Str("to", s.String()).Msg("rpc state changed")
}

// loop maintains the connection. It exits only when the client context is cancelled.
func (c *Client) loop() {
	defer close(c.loopDone)

	for attempt := 0; ; attempt++ {
		if c.ctx.Err() != nil {
			return
		}
		if attempt > 0 {
			metrics.RecordReconnect()
		}

		c.setState(StateConnecting)
		conn, err := c.dial()
		if err != nil {
			c.setState(StateDisconnected)
			c.logger.Warn().Err(err).Int("attempt", attempt+1).Dur("wait", c.reconnectWait).
				Msg("failed to connect to agent, retrying")
			if !c.sleep(c.reconnectWait) {
				return
			}
			continue
		}

		err = c.serve(conn)
		c.setState(StateDisconnected)
		c.failPending(ErrConnectionLost)
		if c.ctx.Err() != nil {
			return
		}
		c.logger.Warn().Err(err).Dur("wait", c.reconnectWait).Msg("agent connection lost, reconnecting")
		if !c.sleep(c.reconnectWait) {
			return
		}
	}
}

func (c *Client) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.handshakeTimeout,
	}
	header := http.Header{}
	header.Set("User-Agent", version.AgentString())

	conn, _, err := dialer.DialContext(c.ctx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrTransport, c.url, err)
	}
	conn.SetReadLimit(maxMessageSize)
	return conn, nil
}

// serve runs one connection until it fails, is replaced, or the client stops.
func (c *Client) serve(conn *websocket.Conn) error {
	// discard a reconnect request aimed at a previous connection
	select {
	case <-c.reconnectCh:
	default:
	}

	connCtx, connCancel := context.WithCancel(c.ctx)
	defer func() {
		connCancel()
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		_ = conn.Close()
	}()

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.setState(StateConnected)
	c.logger.Info().Str("url", c.url).Msg("connected to agent")

	_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	go func() {
		select {
		case <-connCtx.Done():
		case <-c.reconnectCh:
			c.logger.Info().Msg("reconnect requested, dropping connection")
		}
		_ = conn.Close()
	}()
	go c.pingLoop(connCtx, conn)

	if c.handler != nil {
		c.dispatch(func() { c.handler.OnConnected(connCtx) })
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: read: %v", ErrTransport, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
		c.handleFrame(connCtx, data)
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait)); err != nil {
				c.logger.Warn().Err(err).Msg("ping failed")
				_ = conn.Close()
				return
			}
		}
	}
}

func (c *Client) handleFrame(ctx context.Context, data []byte) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed batch frame")
			return
		}
		for _, item := range batch {
			c.handleMessage(ctx, item)
		}
		return
	}
	c.handleMessage(ctx, trimmed)
}

func (c *Client) handleMessage(ctx context.Context, data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	if msg.Method != "" {
		n := Notification{Method: msg.Method, Params: msg.Params}
		if c.handler != nil {
			c.dispatch(func() { c.handler.OnNotification(ctx, n) })
		}
		return
	}

	if !msg.hasID() {
		c.logger.Warn().Str("frame", string(data)).Msg("dropping frame without id or method")
		return
	}

	id, err := msg.requestID()
	if err != nil {
		c.logger.Warn().Err(err).Msg("dropping response")
		return
	}

	resp := response{result: msg.Result}
	if msg.Error != nil {
		resp = response{err: msg.Error}
	}
	if !c.deliver(id, resp) {
		c.logger.Debug().Uint64("id", id).Msg("response for unknown request")
	}
}

// dispatch runs fn on a tracked goroutine so slow handlers never block reads.
func (c *Client) dispatch(fn func()) {
	c.handlers.Add(1)
	go func() {
		defer c.handlers.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error().Interface("panic", r).Msg("rpc handler panicked")
			}
		}()
		fn()
	}()
}

func (c *Client) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-c.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
