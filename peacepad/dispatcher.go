package peacepad

import "encoding/json"

// Dispatcher routes inbound signaling frames to registered callbacks.
// Frames are JSON objects discriminated by a "type" field; payload fields
// sit flat next to it. Unparseable frames are logged and dropped, unknown
// types are ignored. A frame must never take down the connection.
type Dispatcher struct {
	logger Logger
	inval  Invalidator

	onNewMessage        func(NewMessageEvent)
	onPartnershipJoined func(PartnershipJoinedEvent)
	onCallOffer         func(CallOfferEvent)
	onCallAccepted      func(CallLifecycleEvent)
	onCallDeclined      func(CallLifecycleEvent)
	onCallEnded         func(CallLifecycleEvent)
}

func (d *Dispatcher) SetOnNewMessage(fn func(NewMessageEvent)) { d.onNewMessage = fn }
func (d *Dispatcher) SetOnPartnershipJoined(fn func(PartnershipJoinedEvent)) {
	d.onPartnershipJoined = fn
}
func (d *Dispatcher) SetOnCallOffer(fn func(CallOfferEvent))        { d.onCallOffer = fn }
func (d *Dispatcher) SetOnCallAccepted(fn func(CallLifecycleEvent)) { d.onCallAccepted = fn }
func (d *Dispatcher) SetOnCallDeclined(fn func(CallLifecycleEvent)) { d.onCallDeclined = fn }
func (d *Dispatcher) SetOnCallEnded(fn func(CallLifecycleEvent))    { d.onCallEnded = fn }
func (d *Dispatcher) SetInvalidator(inv Invalidator)                { d.inval = inv }
func (d *Dispatcher) setLogger(l Logger)                            { d.logger = l }

// Dispatch interprets one inbound frame and fans it out.
func (d *Dispatcher) Dispatch(raw []byte) {
	var env signalEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		d.warn("dropping malformed frame", map[string]any{"error": err.Error()})
		return
	}

	switch env.Type {
	case signalNewMessage:
		var ev NewMessageEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			d.warn("dropping malformed new-message frame", map[string]any{"error": err.Error()})
			return
		}
		d.invalidate(ScopeConversations)
		if d.onNewMessage != nil {
			d.onNewMessage(ev)
		}
	case signalPartnershipJoined:
		var ev PartnershipJoinedEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			d.warn("dropping malformed partnership-joined frame", map[string]any{"error": err.Error()})
			return
		}
		d.invalidate(ScopePartnership, ScopeConversations)
		if d.onPartnershipJoined != nil {
			d.onPartnershipJoined(ev)
		}
	case signalIncomingCall:
		var ev CallOfferEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			d.warn("dropping malformed incoming-call frame", map[string]any{"error": err.Error()})
			return
		}
		if d.onCallOffer != nil {
			d.onCallOffer(ev)
		}
	case signalCallAccepted:
		d.lifecycle(raw, env.Type, d.onCallAccepted)
	case signalCallDeclined:
		d.lifecycle(raw, env.Type, d.onCallDeclined)
	case signalCallEnded:
		d.lifecycle(raw, env.Type, d.onCallEnded)
	default:
		// Unknown types are ignored without error.
	}
}

func (d *Dispatcher) lifecycle(raw []byte, typ string, fn func(CallLifecycleEvent)) {
	var ev CallLifecycleEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		d.warn("dropping malformed "+typ+" frame", map[string]any{"error": err.Error()})
		return
	}
	if fn != nil {
		fn(ev)
	}
}

func (d *Dispatcher) invalidate(scopes ...string) {
	if d.inval != nil {
		d.inval.Invalidate(scopes...)
	}
}

func (d *Dispatcher) warn(msg string, fields map[string]any) {
	if d.logger != nil {
		d.logger.Warn(msg, fields)
	}
}
