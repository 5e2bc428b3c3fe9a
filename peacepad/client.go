package peacepad

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/peacepad/peacepad-sdk-go/peacepad/internal"
	"github.com/peacepad/peacepad-sdk-go/peacepad/internal/backoff"
	"github.com/peacepad/peacepad-sdk-go/peacepad/rest"
)

// transport is the duplex connection the engine drives. internal.Conn is
// the production implementation over coder/websocket.
type transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, payload []byte) error
	Close(code websocket.StatusCode, reason string) error
}

type dialFunc func(ctx context.Context, url string) (transport, error)

// pendingMessage is an outbound payload queued while the socket is down.
type pendingMessage struct {
	payload  string
	queuedAt time.Time
}

// Client provides the high-level SDK for the PeacePad signaling endpoint.
// It owns exactly one live transport handle at a time and recovers from
// drops with capped exponential backoff while AutoReconnect is on.
type Client struct {
	cfg        Config
	logger     Logger
	dispatcher Dispatcher
	policy     backoff.Policy
	ringer     Ringer

	// Calls tracks the current incoming call; Gateway submits decisions.
	Calls   *CallTracker
	Gateway *CallGateway
	// REST is the call-record HTTP client, shared with the Gateway.
	REST *rest.Client

	dial      dialFunc
	afterFunc func(time.Duration, func()) *time.Timer

	onStateChanged      func(StateEvent)
	onNewMessage        func(NewMessageEvent)
	onPartnershipJoined func(PartnershipJoinedEvent)
	onCallOffer         func(CallOfferEvent)
	onCallAccepted      func(CallLifecycleEvent)
	onCallDeclined      func(CallLifecycleEvent)
	onCallEnded         func(CallLifecycleEvent)

	mu          sync.Mutex
	state       ConnectionState
	conn        transport
	pending     []pendingMessage
	retries     int
	retryTimer  *time.Timer
	intentional bool
	closed      bool
	cancelRead  context.CancelFunc
}

// NewClient constructs a client with the provided config.
// Use DefaultConfig() as a starting point and modify as needed.
func NewClient(cfg *Config) *Client {
	c := &Client{
		cfg:       *cfg,
		logger:    noopLogger{},
		ringer:    noopRinger{},
		Calls:     NewCallTracker(),
		REST:      rest.NewClient(cfg.APIBaseURL),
		afterFunc: time.AfterFunc,
		state:     StateDisconnected,
	}
	c.policy = backoff.Default()
	if cfg.ReconnectInterval > 0 {
		c.policy.Base = cfg.ReconnectInterval
	}
	if cfg.MaxReconnectDelay > 0 {
		c.policy.Max = cfg.MaxReconnectDelay
	}
	c.Gateway = NewCallGateway(c.REST, c.Calls)
	c.dial = c.defaultDial
	c.wireDispatcher()
	return c
}

// SetLogger overrides logger (optional).
func (c *Client) SetLogger(l Logger) {
	if l == nil {
		return
	}
	c.logger = l
	c.dispatcher.setLogger(l)
	c.Gateway.SetLogger(l)
}

// SetInvalidator wires cache invalidation for signals and call decisions
// (optional).
func (c *Client) SetInvalidator(inv Invalidator) {
	if inv == nil {
		return
	}
	c.dispatcher.SetInvalidator(inv)
	c.Gateway.SetInvalidator(inv)
}

// SetRinger wires the ringtone hook (optional). The client starts it on
// a call offer; the gateway and lifecycle signals stop it.
func (c *Client) SetRinger(r Ringer) {
	if r == nil {
		return
	}
	c.ringer = r
	c.Gateway.SetRinger(r)
}

// Callback registration is safe at any point, including after Connect:
// the fields are guarded against the read-loop goroutine.

// OnStateChanged registers callback for connection state transitions.
func (c *Client) OnStateChanged(fn func(StateEvent)) {
	c.mu.Lock()
	c.onStateChanged = fn
	c.mu.Unlock()
}

// OnNewMessage registers callback for new chat message signals.
func (c *Client) OnNewMessage(fn func(NewMessageEvent)) {
	c.mu.Lock()
	c.onNewMessage = fn
	c.mu.Unlock()
}

// OnPartnershipJoined registers callback for partnership-joined signals.
func (c *Client) OnPartnershipJoined(fn func(PartnershipJoinedEvent)) {
	c.mu.Lock()
	c.onPartnershipJoined = fn
	c.mu.Unlock()
}

// OnCallOffer registers callback for incoming-call signals.
func (c *Client) OnCallOffer(fn func(CallOfferEvent)) {
	c.mu.Lock()
	c.onCallOffer = fn
	c.mu.Unlock()
}

// OnCallAccepted registers callback for call-accepted signals.
func (c *Client) OnCallAccepted(fn func(CallLifecycleEvent)) {
	c.mu.Lock()
	c.onCallAccepted = fn
	c.mu.Unlock()
}

// OnCallDeclined registers callback for call-declined signals.
func (c *Client) OnCallDeclined(fn func(CallLifecycleEvent)) {
	c.mu.Lock()
	c.onCallDeclined = fn
	c.mu.Unlock()
}

// OnCallEnded registers callback for call-ended signals.
func (c *Client) OnCallEnded(fn func(CallLifecycleEvent)) {
	c.mu.Lock()
	c.onCallEnded = fn
	c.mu.Unlock()
}

// wireDispatcher routes dispatcher events through the call tracker and
// ringer before any user callback sees them. The tracker is the only
// mutator of the incoming-call record.
func (c *Client) wireDispatcher() {
	c.dispatcher.SetOnNewMessage(func(ev NewMessageEvent) {
		if fn := c.newMessageCallback(); fn != nil {
			fn(ev)
		}
	})
	c.dispatcher.SetOnPartnershipJoined(func(ev PartnershipJoinedEvent) {
		if fn := c.partnershipJoinedCallback(); fn != nil {
			fn(ev)
		}
	})
	c.dispatcher.SetOnCallOffer(func(ev CallOfferEvent) {
		c.Calls.offer(ev)
		c.ringer.Start(ev.CallType)
		if fn := c.callOfferCallback(); fn != nil {
			fn(ev)
		}
	})
	c.dispatcher.SetOnCallAccepted(func(ev CallLifecycleEvent) {
		c.resolveCall(ev)
		if fn := c.callAcceptedCallback(); fn != nil {
			fn(ev)
		}
	})
	c.dispatcher.SetOnCallDeclined(func(ev CallLifecycleEvent) {
		c.resolveCall(ev)
		if fn := c.callDeclinedCallback(); fn != nil {
			fn(ev)
		}
	})
	c.dispatcher.SetOnCallEnded(func(ev CallLifecycleEvent) {
		c.resolveCall(ev)
		if fn := c.callEndedCallback(); fn != nil {
			fn(ev)
		}
	})
}

func (c *Client) newMessageCallback() func(NewMessageEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onNewMessage
}

func (c *Client) partnershipJoinedCallback() func(PartnershipJoinedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onPartnershipJoined
}

func (c *Client) callOfferCallback() func(CallOfferEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onCallOffer
}

func (c *Client) callAcceptedCallback() func(CallLifecycleEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onCallAccepted
}

func (c *Client) callDeclinedCallback() func(CallLifecycleEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onCallDeclined
}

func (c *Client) callEndedCallback() func(CallLifecycleEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onCallEnded
}

// resolveCall clears the ringing slot on any lifecycle signal and drops
// the gateway's decision bookkeeping for the finished call. The event's
// call id is deliberately not matched against the stored record: the
// tracker assumes a single call at a time.
func (c *Client) resolveCall(ev CallLifecycleEvent) {
	c.ringer.Stop()
	c.Calls.Clear()
	c.Gateway.forget(ev.CallID)
}

// Connect opens the signaling socket and starts the read loop. Any
// existing transport is torn down first, marked intentional so its close
// does not itself trigger a reconnect.
func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.URL == "" {
		return NewError(ErrorInvalidConfig, "empty URL")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return NewError(ErrorDisconnected, "client closed")
	}
	c.stopRetryLocked()
	c.teardownConnLocked()
	c.intentional = false
	old := c.state
	c.state = StateConnecting
	c.mu.Unlock()
	c.emitState(old, StateConnecting, nil)

	return c.connect(ctx)
}

// Reconnect performs a user-initiated "retry now": it cancels any
// scheduled retry, resets the retry counter and dials again.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return NewError(ErrorDisconnected, "client closed")
	}
	c.stopRetryLocked()
	c.retries = 0
	c.teardownConnLocked()
	c.intentional = false
	old := c.state
	c.state = StateConnecting
	c.mu.Unlock()
	c.emitState(old, StateConnecting, nil)

	return c.connect(ctx)
}

// connect dials and, on success, flushes the pending queue and starts the
// read loop. Dial failures funnel through the same path as a dropped
// connection so one backoff policy covers every failure kind.
func (c *Client) connect(ctx context.Context) error {
	u, err := c.cfg.signalURL()
	if err != nil {
		return WrapError(ErrorInvalidConfig, "build signaling URL", err)
	}

	dialCtx := ctx
	if c.cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
		defer cancel()
	}

	t, err := c.dial(dialCtx, u)
	if err != nil {
		c.logger.Warn("dial failed", map[string]any{"error": err.Error()})
		c.handleDisconnect(nil, err)
		return WrapError(ErrorConnection, "dial signaling endpoint", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = t.Close(websocket.StatusNormalClosure, "client closed")
		return NewError(ErrorDisconnected, "client closed")
	}
	// A concurrent connect may have installed a handle while this dial
	// was in flight; at most one stays live.
	c.teardownConnLocked()
	c.conn = t
	c.retries = 0
	c.intentional = false
	c.flushPendingLocked(t)

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancelRead = cancel
	old := c.state
	c.state = StateConnected
	c.mu.Unlock()
	c.emitState(old, StateConnected, nil)

	go c.readLoop(runCtx, t)
	return nil
}

// flushPendingLocked attempts every queued payload in enqueue order. A
// payload whose write fails stays at its original position for the next
// flush cycle; later payloads are still attempted.
func (c *Client) flushPendingLocked(t transport) {
	if len(c.pending) == 0 {
		return
	}
	kept := c.pending[:0]
	for _, m := range c.pending {
		if err := t.Write(context.Background(), []byte(m.payload)); err != nil {
			c.logger.Warn("flush send failed, retaining", map[string]any{"error": err.Error()})
			kept = append(kept, m)
		}
	}
	c.pending = kept
}

// Send transmits payload immediately when the socket is open. Otherwise
// the payload is queued and ErrQueued is returned; the queue is flushed
// in FIFO order on the next successful open.
func (c *Client) Send(ctx context.Context, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateConnected && c.conn != nil {
		if err := c.conn.Write(ctx, []byte(payload)); err != nil {
			return WrapError(ErrorConnection, "send", err)
		}
		return nil
	}
	c.pending = append(c.pending, pendingMessage{payload: payload, queuedAt: time.Now()})
	return ErrQueued
}

// PendingCount reports how many payloads await the next flush.
func (c *Client) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RetryCount returns the number of automatic attempts made since the last
// successful open. Display values derive from this single counter.
func (c *Client) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retries
}

// Close shuts the client down: cancels any scheduled retry, marks the
// closure intentional and closes the transport. Safe to call repeatedly.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.intentional = true
	c.stopRetryLocked()
	var err error
	if c.conn != nil {
		if c.cancelRead != nil {
			c.cancelRead()
		}
		err = c.conn.Close(websocket.StatusNormalClosure, "client close")
		c.conn = nil
	}
	old := c.state
	c.state = StateClosed
	c.mu.Unlock()
	c.emitState(old, StateClosed, nil)
	return err
}

func (c *Client) readLoop(ctx context.Context, t transport) {
	for {
		data, err := t.Read(ctx)
		if err != nil {
			if isExpectedDisconnect(ctx, err) {
				c.logger.Debug("read loop exit", map[string]any{"error": err.Error()})
			} else {
				c.logger.Warn("read loop exit", map[string]any{"error": err.Error()})
			}
			c.handleDisconnect(t, err)
			return
		}
		c.dispatcher.Dispatch(data)
	}
}

// handleDisconnect is the single close path. from is nil for dial
// failures; for read-loop exits it identifies the transport so a loop
// belonging to a superseded handle cannot disturb the current one.
func (c *Client) handleDisconnect(from transport, cause error) {
	c.mu.Lock()
	if from != nil {
		if c.conn != from {
			c.mu.Unlock()
			return
		}
		c.conn = nil
	} else if c.conn != nil {
		// Stale dial failure: a newer connect already won while this
		// attempt was in flight. The live handle stays untouched.
		c.mu.Unlock()
		return
	}
	if c.closed || c.intentional {
		old := c.state
		if c.closed {
			c.state = StateClosed
		} else {
			c.state = StateDisconnected
		}
		newState := c.state
		c.mu.Unlock()
		c.emitState(old, newState, nil)
		return
	}
	if !c.cfg.AutoReconnect || c.retries >= c.cfg.MaxReconnectTries {
		old := c.state
		c.state = StateDisconnected
		c.mu.Unlock()
		c.emitState(old, StateDisconnected, cause)
		return
	}

	delay := c.policy.Delay(c.retries)
	c.retries++
	attempt := c.retries
	c.retryTimer = c.afterFunc(delay, func() {
		_ = c.connect(context.Background())
	})
	old := c.state
	c.state = StateReconnecting
	c.mu.Unlock()

	c.logger.Info("scheduling reconnect", map[string]any{
		"attempt": attempt,
		"delay":   delay.String(),
	})
	c.emitState(old, StateReconnecting, cause)
}

// stopRetryLocked cancels a scheduled reconnect. Callers hold c.mu.
func (c *Client) stopRetryLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// teardownConnLocked closes any existing transport, marking the closure
// intentional so its read loop does not trigger a reconnect. Callers
// hold c.mu.
func (c *Client) teardownConnLocked() {
	if c.conn == nil {
		return
	}
	c.intentional = true
	if c.cancelRead != nil {
		c.cancelRead()
		c.cancelRead = nil
	}
	_ = c.conn.Close(websocket.StatusNormalClosure, "superseded")
	c.conn = nil
}

func (c *Client) emitState(oldState, newState ConnectionState, cause error) {
	if oldState == newState {
		return
	}
	c.mu.Lock()
	fn := c.onStateChanged
	c.mu.Unlock()
	if fn != nil {
		fn(StateEvent{OldState: oldState, NewState: newState, Error: cause})
	}
}

func (c *Client) defaultDial(ctx context.Context, u string) (transport, error) {
	ws, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return internal.NewConn(ws, c.cfg.ReadTimeout, c.cfg.WriteTimeout), nil
}

func isExpectedDisconnect(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return true
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	default:
		return false
	}
}
