package session

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// wireMarker is the cookie-value form of a Marker. The timestamp travels as
// a string so restores tolerate whatever the issuing side wrote (RFC 3339 or
// a unix epoch); see ParseTimestamp.
type wireMarker struct {
	Identifier string `json:"identifier"`
	SentAt     string `json:"sent_at"`
}

// EncodeMarker renders a marker as a cookie-safe base64url(JSON) value.
// The value is transport encoding only; signing is the cookie issuer's
// concern, not this package's.
func EncodeMarker(m Marker) string {
	data, _ := json.Marshal(wireMarker{
		Identifier: m.Identifier,
		SentAt:     m.SentAt.UTC().Format(time.RFC3339),
	})
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeMarker parses a cookie value produced by EncodeMarker. Undecodable
// values return ErrMalformedMarker; a decodable envelope with an unparseable
// timestamp returns *InvalidTimestampError.
func DecodeMarker(value string) (*Marker, error) {
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, ErrMalformedMarker
	}
	var w wireMarker
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, ErrMalformedMarker
	}
	sentAt, err := ParseTimestamp(w.SentAt)
	if err != nil {
		return nil, err
	}
	return &Marker{Identifier: w.Identifier, SentAt: sentAt}, nil
}
