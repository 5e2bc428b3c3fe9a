package peacepad

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// fakeConn records writes and blocks reads until the run context is
// cancelled, keeping the read loop parked during tests.
type fakeConn struct {
	mu        sync.Mutex
	writes    []string
	failWrite map[string]bool
	closed    bool
}

func (f *fakeConn) Read(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeConn) Write(_ context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := string(payload)
	f.writes = append(f.writes, p)
	if f.failWrite[p] {
		return errors.New("write refused")
	}
	return nil
}

func (f *fakeConn) Close(websocket.StatusCode, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c := NewClient(&cfg)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSendQueuesWhileDisconnected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://localhost:9/ws"
	c := newTestClient(t, cfg)

	err := c.Send(context.Background(), "ping")
	if !errors.Is(err, ErrQueued) {
		t.Fatalf("expected ErrQueued, got %v", err)
	}
	if got := c.PendingCount(); got != 1 {
		t.Fatalf("pending count = %d, want 1", got)
	}
}

func TestFlushOnOpenPreservesOrderAndRetainsFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://localhost:9/ws"
	c := newTestClient(t, cfg)

	// Each dial yields a fresh transport, as the engine requires.
	first := &fakeConn{failWrite: map[string]bool{"b": true}}
	second := &fakeConn{}
	conns := []*fakeConn{first, second}
	c.dial = func(context.Context, string) (transport, error) {
		fc := conns[0]
		if len(conns) > 1 {
			conns = conns[1:]
		}
		return fc, nil
	}

	for _, p := range []string{"a", "b", "c"} {
		if err := c.Send(context.Background(), p); !errors.Is(err, ErrQueued) {
			t.Fatalf("send %q: expected ErrQueued, got %v", p, err)
		}
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got := c.State(); got != StateConnected {
		t.Fatalf("state = %s, want connected", got)
	}

	// All three were attempted in enqueue order; only the failure stays.
	want := []string{"a", "b", "c"}
	got := first.written()
	if len(got) != len(want) {
		t.Fatalf("writes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("writes = %v, want %v", got, want)
		}
	}
	if n := c.PendingCount(); n != 1 {
		t.Fatalf("pending count = %d, want 1 (failed payload retained)", n)
	}

	// The retained payload goes out on the next successful open.
	if err := c.Reconnect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if n := c.PendingCount(); n != 0 {
		t.Fatalf("pending count after second flush = %d, want 0", n)
	}
	if got := second.written(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("second flush writes = %v, want [b]", got)
	}
}

func TestRetryDelaySequenceThenDisconnected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://localhost:9/ws"
	cfg.ReconnectInterval = time.Second
	cfg.MaxReconnectTries = 3
	c := newTestClient(t, cfg)

	var delays []time.Duration
	c.afterFunc = func(d time.Duration, _ func()) *time.Timer {
		delays = append(delays, d)
		return time.NewTimer(time.Hour)
	}

	cause := errors.New("connection dropped")
	for i := 0; i < 3; i++ {
		c.handleDisconnect(nil, cause)
		if got := c.State(); got != StateReconnecting {
			t.Fatalf("close %d: state = %s, want reconnecting", i+1, got)
		}
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("scheduled delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("scheduled delays = %v, want %v", delays, want)
		}
	}

	// The fourth close exhausts the budget: no further attempt.
	c.handleDisconnect(nil, cause)
	if got := c.State(); got != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", got)
	}
	if len(delays) != 3 {
		t.Fatalf("a fourth retry was scheduled: %v", delays)
	}
}

func TestRetryDelayCappedAt30s(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://localhost:9/ws"
	cfg.ReconnectInterval = 10 * time.Second
	cfg.MaxReconnectTries = 5
	c := newTestClient(t, cfg)

	var delays []time.Duration
	c.afterFunc = func(d time.Duration, _ func()) *time.Timer {
		delays = append(delays, d)
		return time.NewTimer(time.Hour)
	}

	for i := 0; i < 4; i++ {
		c.handleDisconnect(nil, errors.New("drop"))
	}

	want := []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second, 30 * time.Second}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("scheduled delays = %v, want %v", delays, want)
		}
	}
}

func TestReconnectResetsCounterAndCancelsScheduledRetry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://localhost:9/ws"
	c := newTestClient(t, cfg)
	c.afterFunc = func(d time.Duration, _ func()) *time.Timer {
		return time.NewTimer(time.Hour)
	}

	c.handleDisconnect(nil, errors.New("drop"))
	c.handleDisconnect(nil, errors.New("drop"))
	if got := c.RetryCount(); got != 2 {
		t.Fatalf("retry count = %d, want 2", got)
	}

	fc := &fakeConn{}
	c.dial = func(context.Context, string) (transport, error) { return fc, nil }
	if err := c.Reconnect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if got := c.RetryCount(); got != 0 {
		t.Fatalf("retry count after reconnect = %d, want 0", got)
	}
	c.mu.Lock()
	timer := c.retryTimer
	c.mu.Unlock()
	if timer != nil {
		t.Fatalf("scheduled retry survived Reconnect")
	}
}

func TestDisabledAutoReconnectGoesStraightToDisconnected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://localhost:9/ws"
	cfg.AutoReconnect = false
	c := newTestClient(t, cfg)

	scheduled := false
	c.afterFunc = func(time.Duration, func()) *time.Timer {
		scheduled = true
		return time.NewTimer(time.Hour)
	}

	c.handleDisconnect(nil, errors.New("drop"))
	if got := c.State(); got != StateDisconnected {
		t.Fatalf("state = %s, want disconnected", got)
	}
	if scheduled {
		t.Fatalf("retry scheduled with AutoReconnect off")
	}
}

func TestConnectEmptyURL(t *testing.T) {
	cfg := DefaultConfig()
	c := newTestClient(t, cfg)
	if err := c.Connect(context.Background()); err == nil {
		t.Fatalf("expected error for empty URL")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://localhost:9/ws"
	c := NewClient(&cfg)

	if err := c.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if got := c.State(); got != StateClosed {
		t.Fatalf("state = %s, want closed", got)
	}
	if err := c.Connect(context.Background()); err == nil {
		t.Fatalf("expected error connecting a closed client")
	}
}

func TestStateChangeCallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://localhost:9/ws"
	c := newTestClient(t, cfg)

	var events []StateEvent
	c.OnStateChanged(func(ev StateEvent) { events = append(events, ev) })

	fc := &fakeConn{}
	c.dial = func(context.Context, string) (transport, error) { return fc, nil }
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("state events = %d, want 2 (connecting, connected)", len(events))
	}
	if events[0].NewState != StateConnecting || events[1].NewState != StateConnected {
		t.Fatalf("unexpected transitions: %+v", events)
	}
}

func TestStaleDialFailureLeavesLiveConnectionAlone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://localhost:9/ws"
	c := newTestClient(t, cfg)

	scheduled := false
	c.afterFunc = func(time.Duration, func()) *time.Timer {
		scheduled = true
		return time.NewTimer(time.Hour)
	}

	fc := &fakeConn{}
	c.dial = func(context.Context, string) (transport, error) { return fc, nil }
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// A dial attempt that lost the race reports its failure after a newer
	// connect already installed a handle. The live connection is unaffected.
	c.handleDisconnect(nil, errors.New("dial tcp: connection refused"))

	if got := c.State(); got != StateConnected {
		t.Fatalf("state = %s, want connected", got)
	}
	if got := c.RetryCount(); got != 0 {
		t.Fatalf("retry count = %d, want 0", got)
	}
	if scheduled {
		t.Fatalf("retry scheduled while a live connection was up")
	}
}

func TestConnectSupersedesExistingTransport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://localhost:9/ws"
	c := newTestClient(t, cfg)

	first := &fakeConn{}
	second := &fakeConn{}
	conns := []*fakeConn{first, second}
	c.dial = func(context.Context, string) (transport, error) {
		fc := conns[0]
		if len(conns) > 1 {
			conns = conns[1:]
		}
		return fc, nil
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	// A second dial completing against an already-connected client must
	// close the old handle rather than leak two live transports.
	if err := c.connect(context.Background()); err != nil {
		t.Fatalf("second connect: %v", err)
	}

	if !first.wasClosed() {
		t.Fatalf("superseded transport was not closed")
	}
	if got := c.State(); got != StateConnected {
		t.Fatalf("state = %s, want connected", got)
	}
	if err := c.Send(context.Background(), "ping"); err != nil {
		t.Fatalf("send on superseding transport: %v", err)
	}
	if got := second.written(); len(got) != 1 || got[0] != "ping" {
		t.Fatalf("second transport writes = %v, want [ping]", got)
	}
}

func TestCallbackRegisteredAfterConnectFires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://localhost:9/ws"
	c := newTestClient(t, cfg)

	fc := &fakeConn{}
	c.dial = func(context.Context, string) (transport, error) { return fc, nil }
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var offers []CallOfferEvent
	c.OnCallOffer(func(ev CallOfferEvent) { offers = append(offers, ev) })

	frame := `{"type":"incoming-call","callId":"c9","callerId":"u2","callerName":"Alex","callType":"audio"}`
	c.dispatcher.Dispatch([]byte(frame))

	if len(offers) != 1 || offers[0].CallID != "c9" {
		t.Fatalf("offers = %+v, want one for c9", offers)
	}
}
