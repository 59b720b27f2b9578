// Package webhook authenticates inbound payment-gateway notifications.
//
// The gateway signs every delivery with a shared HMAC-SHA256 secret and a
// timestamp, carried in a single header:
//
//	Paytrust-Signature: t=1719843320,v1=5257a869e7...
//
// Verification recomputes the signature over "<t>.<raw body>" and compares it
// in constant time against every v1 candidate in the header. A valid
// signature alone is not enough: the declared timestamp must also fall inside
// the replay tolerance window, otherwise the event is discarded without
// touching order fulfillment.
package webhook

import (
	"context"
	"errors"
	"time"
)

// Signature verification and freshness errors. All of them terminate the
// webhook request; none of them surface internal state to the caller.
var (
	ErrMalformedSignatureHeader = errors.New("webhook: malformed signature header")
	ErrSignatureMismatch        = errors.New("webhook: no signature candidate matched")
	ErrPayloadParse             = errors.New("webhook: payload is not a valid event")
	ErrStaleTimestamp           = errors.New("webhook: timestamp outside tolerance window")
)

// SignatureHeader is the parsed form of the gateway's signature header.
// Request-scoped; never persisted.
type SignatureHeader struct {
	Timestamp  int64
	Candidates []string // hex-encoded HMAC-SHA256 candidates
}

// Event is a verified gateway notification.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Created int64     `json:"created"`
	Data    EventData `json:"data"`
}

// EventData wraps the gateway's event object payload.
type EventData struct {
	Object map[string]interface{} `json:"object"`
}

// EventCheckoutCompleted is the event type that triggers order fulfillment.
const EventCheckoutCompleted = "checkout.session.completed"

// Processor receives verified, fresh events for downstream handling.
// Order fulfillment lives behind this interface and is out of scope here.
type Processor interface {
	Process(ctx context.Context, event *Event) error
}

// ProcessorFunc adapts a function to the Processor interface.
type ProcessorFunc func(ctx context.Context, event *Event) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// ReplayGuard decides whether a webhook timestamp is fresh enough to act on.
type ReplayGuard struct {
	tolerance time.Duration
}

// NewReplayGuard creates a guard with the given tolerance in seconds.
func NewReplayGuard(toleranceSeconds int) *ReplayGuard {
	return &ReplayGuard{tolerance: time.Duration(toleranceSeconds) * time.Second}
}

// IsFresh reports whether the declared unix timestamp lies within the
// tolerance window around now. The window is symmetric: an event from the
// future beyond tolerance is as stale as one from the past, and the boundary
// itself is inclusive.
func (g *ReplayGuard) IsFresh(timestamp int64, now time.Time) bool {
	age := now.Unix() - timestamp
	if age < 0 {
		age = -age
	}
	return time.Duration(age)*time.Second <= g.tolerance
}

// Tolerance returns the configured freshness window.
func (g *ReplayGuard) Tolerance() time.Duration {
	return g.tolerance
}
