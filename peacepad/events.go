package peacepad

// NewMessageEvent emitted when the partner sends a chat message.
type NewMessageEvent struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Preview        string `json:"preview,omitempty"`
}

// PartnershipJoinedEvent emitted when a co-parent redeems an invite code
// and the partnership becomes confirmed.
type PartnershipJoinedEvent struct {
	PartnerID   string `json:"partnerId"`
	PartnerName string `json:"partnerName"`
}

// CallOfferEvent emitted when the partner starts a call to this session.
type CallOfferEvent struct {
	CallID       string   `json:"callId"`
	CallerID     string   `json:"callerId"`
	CallerName   string   `json:"callerName"`
	CallerAvatar string   `json:"callerAvatar,omitempty"`
	CallType     CallType `json:"callType"`
}

// CallLifecycleEvent emitted for call-accepted, call-declined and
// call-ended signals. Reason is set only on declines, and only when the
// declining side picked one.
type CallLifecycleEvent struct {
	CallID string        `json:"callId,omitempty"`
	Reason DeclineReason `json:"reason,omitempty"`
}
