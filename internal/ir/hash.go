package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DomainEvent is the domain prefix for event identity.
// The version suffix leaves room for a future algorithm change.
const DomainEvent = "rewind/event/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed ID of a simulation event.
// Two recordings of the same scenario produce identical IDs.
func EventID(eventType string, ts time.Time, seq int64, payload IRObject) (string, error) {
	if payload == nil {
		payload = IRObject{}
	}
	obj := IRObject{
		"type":         IRString(eventType),
		"timestamp_ns": IRInt(ts.UnixNano()),
		"seq":          IRInt(seq),
		"payload":      payload,
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}
