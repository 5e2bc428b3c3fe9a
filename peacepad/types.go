package peacepad

const (
	// Signal types pushed by the server over the signaling socket.
	signalNewMessage        = "new-message"
	signalPartnershipJoined = "partnership-joined"
	signalIncomingCall      = "incoming-call"
	signalCallAccepted      = "call-accepted"
	signalCallDeclined      = "call-declined"
	signalCallEnded         = "call-ended"
)

// CallType distinguishes audio-only from video calls.
type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// DeclineReason is one of the canned reasons offered when declining a call.
// The empty string means the user has not picked a reason yet; declining
// requires an explicit choice, with DeclineReasonNotSpecified standing in
// for "no reason given".
type DeclineReason string

const (
	DeclineReasonBusy          DeclineReason = "busy"
	DeclineReasonCantTalk      DeclineReason = "cant-talk"
	DeclineReasonCallBackLater DeclineReason = "call-back-later"
	DeclineReasonNotGoodTime   DeclineReason = "not-a-good-time"
	DeclineReasonNotSpecified  DeclineReason = "not-specified"
)

// DeclineReasons lists every reason a UI may present.
var DeclineReasons = []DeclineReason{
	DeclineReasonBusy,
	DeclineReasonCantTalk,
	DeclineReasonCallBackLater,
	DeclineReasonNotGoodTime,
	DeclineReasonNotSpecified,
}

// Valid reports whether r is one of the canned reasons.
func (r DeclineReason) Valid() bool {
	for _, v := range DeclineReasons {
		if r == v {
			return true
		}
	}
	return false
}

// signalEnvelope peeks at the discriminator of an inbound frame. Payload
// fields sit flat at the top level next to "type", so events unmarshal
// from the whole frame, not a nested data object.
type signalEnvelope struct {
	Type string `json:"type"`
}

// Invalidation scopes handed to an Invalidator when a signal or a confirmed
// call decision makes cached server state stale.
const (
	ScopeConversations = "conversations"
	ScopePartnership   = "partnership"
	ScopeCallHistory   = "call-history"
)

// Invalidator receives cache invalidation hints. Consumers that cache
// conversation lists, partnership state, or call history implement it;
// the default discards everything.
type Invalidator interface {
	Invalidate(scopes ...string)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(...string) {}

// Ringer is the ringtone hook for the notification surface. Start fires
// when a call offer arrives, Stop when the call is resolved locally or by
// a lifecycle signal. Implementations must tolerate repeated Stop calls.
type Ringer interface {
	Start(callType CallType)
	Stop()
}

type noopRinger struct{}

func (noopRinger) Start(CallType) {}
func (noopRinger) Stop()          {}
