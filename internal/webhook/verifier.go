package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Verifier validates webhook payloads against the shared gateway secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the given shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// ParseSignatureHeader splits "t=<unix>,v1=<hex>[,v1=<hex>...]" into its
// parts. Unknown schemes are ignored so the gateway can rotate signing
// versions without breaking older receivers.
func ParseSignatureHeader(header string) (*SignatureHeader, error) {
	parsed := &SignatureHeader{Timestamp: -1}

	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad timestamp", ErrMalformedSignatureHeader)
			}
			parsed.Timestamp = ts
		case "v1":
			if v != "" {
				parsed.Candidates = append(parsed.Candidates, v)
			}
		}
	}

	if parsed.Timestamp < 0 {
		return nil, fmt.Errorf("%w: missing timestamp", ErrMalformedSignatureHeader)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no signature candidates", ErrMalformedSignatureHeader)
	}
	return parsed, nil
}

// Verify authenticates the raw payload against the signature header and, on
// success, parses it into an Event. The returned error is one of
// ErrMalformedSignatureHeader, ErrSignatureMismatch, or ErrPayloadParse.
func (v *Verifier) Verify(payload []byte, header string) (*Event, *SignatureHeader, error) {
	sig, err := ParseSignatureHeader(header)
	if err != nil {
		return nil, nil, err
	}

	expected := v.compute(sig.Timestamp, payload)

	matched := false
	for _, candidate := range sig.Candidates {
		decoded, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		// hmac.Equal is constant-time; never short-circuit on length alone
		// via a direct comparison.
		if hmac.Equal(decoded, expected) {
			matched = true
		}
	}
	if !matched {
		return nil, sig, ErrSignatureMismatch
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil || event.Type == "" {
		return nil, sig, ErrPayloadParse
	}
	return &event, sig, nil
}

// Sign produces the header value for a payload at the given timestamp.
// Used by tests and by outbound deliveries in development tooling.
func (v *Verifier) Sign(timestamp int64, payload []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(v.compute(timestamp, payload)))
}

// compute returns HMAC-SHA256(secret, "<timestamp>.<payload>").
func (v *Verifier) compute(timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return mac.Sum(nil)
}
