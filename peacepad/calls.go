package peacepad

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/peacepad/peacepad-sdk-go/peacepad/rest"
)

// IncomingCall is the single pending call record. At most one exists per
// session at any time.
type IncomingCall struct {
	CallID       string
	CallerID     string
	CallerName   string
	CallerAvatar string
	CallType     CallType
}

// CallTracker holds the current incoming-call record, or none. It stores
// state only: it plays no sound and shows no UI. Mutations come from
// dispatcher events or an explicit Clear.
type CallTracker struct {
	mu      sync.Mutex
	current *IncomingCall
}

// NewCallTracker returns an empty tracker in the idle state.
func NewCallTracker() *CallTracker {
	return &CallTracker{}
}

// offer moves the tracker to ringing. A second offer while already
// ringing overwrites the stored record: last write wins, there is no
// call-waiting queue.
func (t *CallTracker) offer(ev CallOfferEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = &IncomingCall{
		CallID:       ev.CallID,
		CallerID:     ev.CallerID,
		CallerName:   ev.CallerName,
		CallerAvatar: ev.CallerAvatar,
		CallType:     ev.CallType,
	}
}

// Current returns the pending record, if any.
func (t *CallTracker) Current() (IncomingCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return IncomingCall{}, false
	}
	return *t.current, true
}

// Ringing reports whether a call is pending.
func (t *CallTracker) Ringing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current != nil
}

// Clear drops the pending record. Lifecycle signals clear the slot
// without checking that the event's call id matches the stored record;
// the tracker assumes a single call at a time.
func (t *CallTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = nil
}

// CallAPI is the slice of the call-record HTTP surface the gateway needs.
// *rest.Client implements it.
type CallAPI interface {
	AcceptCall(ctx context.Context, callID string, req rest.AcceptCallRequest) error
	DeclineCall(ctx context.Context, callID string, req rest.DeclineCallRequest) error
}

// CallGateway turns a local accept/decline action into a confirmed
// server-side state change. Local state is reconciled only after the
// server confirms: a failed accept leaves the tracker ringing so the
// user can retry without losing the call.
type CallGateway struct {
	api     CallAPI
	tracker *CallTracker
	ringer  Ringer
	inval   Invalidator
	logger  Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	resolved map[string]struct{}

	newKey func() string // idempotency key source, overridable in tests
}

// NewCallGateway wires a gateway over the call API and tracker.
func NewCallGateway(api CallAPI, tracker *CallTracker) *CallGateway {
	return &CallGateway{
		api:      api,
		tracker:  tracker,
		ringer:   noopRinger{},
		inval:    noopInvalidator{},
		logger:   noopLogger{},
		inflight: make(map[string]struct{}),
		resolved: make(map[string]struct{}),
		newKey:   uuid.NewString,
	}
}

// SetRinger overrides the ringtone hook (optional).
func (g *CallGateway) SetRinger(r Ringer) {
	if r != nil {
		g.ringer = r
	}
}

// SetInvalidator overrides the cache invalidation hook (optional).
func (g *CallGateway) SetInvalidator(inv Invalidator) {
	if inv != nil {
		g.inval = inv
	}
}

// SetLogger overrides the logger (optional).
func (g *CallGateway) SetLogger(l Logger) {
	if l != nil {
		g.logger = l
	}
}

// Accept confirms the call with the server, then stops the ringtone,
// clears the tracker and invalidates call history. A decision already
// confirmed for this call id is an idempotent no-op.
func (g *CallGateway) Accept(ctx context.Context, callID string) error {
	release, err := g.begin(callID)
	if err != nil || release == nil {
		return err
	}
	defer release()

	apiErr := g.api.AcceptCall(ctx, callID, rest.AcceptCallRequest{
		IdempotencyKey: g.newKey(),
	})
	return g.finish(callID, apiErr)
}

// Decline rejects the call with a canned reason. An empty reason fails
// local validation before any network request is made: the UI presents
// the reason picker first, then retries.
func (g *CallGateway) Decline(ctx context.Context, callID string, reason DeclineReason) error {
	if reason == "" {
		return ErrReasonRequired
	}
	if !reason.Valid() {
		return NewError(ErrorReasonRequired, "unknown decline reason: "+string(reason))
	}

	release, err := g.begin(callID)
	if err != nil || release == nil {
		return err
	}
	defer release()

	apiErr := g.api.DeclineCall(ctx, callID, rest.DeclineCallRequest{
		Reason:         string(reason),
		IdempotencyKey: g.newKey(),
	})
	return g.finish(callID, apiErr)
}

// begin guards against concurrent double-submission for one call id.
// It returns (nil, nil) when the decision was already confirmed.
func (g *CallGateway) begin(callID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, done := g.resolved[callID]; done {
		return nil, nil
	}
	if _, busy := g.inflight[callID]; busy {
		return nil, ErrDecisionPending
	}
	g.inflight[callID] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.inflight, callID)
		g.mu.Unlock()
	}, nil
}

func (g *CallGateway) finish(callID string, apiErr error) error {
	if apiErr != nil {
		// No optimistic update: the slot stays ringing for a retry.
		g.logger.Warn("call decision failed", map[string]any{
			"callId": callID, "error": apiErr.Error(),
		})
		return classifyAPIError(apiErr)
	}
	g.mu.Lock()
	g.resolved[callID] = struct{}{}
	g.mu.Unlock()

	g.ringer.Stop()
	g.tracker.Clear()
	g.inval.Invalidate(ScopeCallHistory)
	return nil
}

// forget drops the resolved marker for a call once a lifecycle signal
// confirms the server has settled it. Keeps the resolved set bounded by
// the calls still awaiting their signal.
func (g *CallGateway) forget(callID string) {
	if callID == "" {
		return
	}
	g.mu.Lock()
	delete(g.resolved, callID)
	g.mu.Unlock()
}

// classifyAPIError converts rest-layer failures into coded errors so the
// UI can distinguish late decisions from transient transport trouble.
func classifyAPIError(err error) error {
	var apiErr *rest.APIError
	if !errors.As(err, &apiErr) {
		return WrapError(ErrorConnection, "call decision request failed", err)
	}
	switch {
	case apiErr.Status == 401 || apiErr.Status == 403:
		return WrapError(ErrorUnauthorized, apiErr.Message, err)
	case apiErr.Status == 404:
		return WrapError(ErrorCallNotFound, apiErr.Message, err)
	case apiErr.Status == 409 || apiErr.Status == 410:
		// Call already accepted, declined or ended server-side. Non-fatal;
		// a lifecycle signal will clear the ringing slot.
		return WrapError(ErrorCallAlreadyResolved, apiErr.Message, err)
	case apiErr.Status >= 500:
		return WrapError(ErrorInternalServer, apiErr.Message, err)
	default:
		return WrapError(ErrorUnknown, apiErr.Message, err)
	}
}
