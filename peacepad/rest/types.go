package rest

import "time"

// Call decision types

// AcceptCallRequest is the request body for accepting an incoming call.
type AcceptCallRequest struct {
	// IdempotencyKey deduplicates retried submissions server-side.
	IdempotencyKey string `json:"-"`
}

// DeclineCallRequest is the request body for declining an incoming call.
type DeclineCallRequest struct {
	// Reason is one of the canned decline reasons.
	Reason string `json:"reason,omitempty"`
	// IdempotencyKey deduplicates retried submissions server-side.
	IdempotencyKey string `json:"-"`
}

// Call history types

// CallStatus is the server-side lifecycle state of a call record.
type CallStatus string

const (
	CallStatusRinging  CallStatus = "ringing"
	CallStatusAccepted CallStatus = "accepted"
	CallStatusDeclined CallStatus = "declined"
	CallStatusEnded    CallStatus = "ended"
	CallStatusMissed   CallStatus = "missed"
)

// CallRecord represents one call in the history.
type CallRecord struct {
	ID        string     `json:"id"`
	CallerID  string     `json:"callerId"`
	CalleeID  string     `json:"calleeId"`
	CallType  string     `json:"callType"`
	Status    CallStatus `json:"status"`
	Reason    string     `json:"reason,omitempty"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

// CallsResponse contains a page of call records with pagination info.
type CallsResponse struct {
	Calls   []CallRecord `json:"calls"`
	HasMore bool         `json:"hasMore"`
}

// ErrorResponse represents an API error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}
