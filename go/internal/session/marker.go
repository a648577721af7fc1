// Package session holds the session-marker model, the cookie codec, and the
// durable marker stores. A marker is the (identifier, sent-at) pair proving
// a code was recently sent; it is what lets a reloaded page resume its
// cooldown instead of starting over.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Marker records that a code was sent to identifier at SentAt.
type Marker struct {
	Identifier string    `json:"identifier"`
	SentAt     time.Time `json:"sent_at"`
}

// Meta captures request context persisted alongside a marker.
type Meta struct {
	Channel   string `json:"channel,omitempty"`
	RemoteIP  string `json:"remote_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ErrMalformedMarker indicates a marker value that could not be decoded at
// all (bad base64 or bad JSON).
var ErrMalformedMarker = errors.New("malformed session marker")

// InvalidTimestampError indicates a marker whose timestamp field is present
// but not parseable as a date. It is raised synchronously from the parsing
// step so callers can reject the marker before restoring from it.
type InvalidTimestampError struct {
	Raw string
}

func (e *InvalidTimestampError) Error() string {
	return fmt.Sprintf("invalid session timestamp %q", e.Raw)
}

// ParseTimestamp parses a marker timestamp. Accepted forms: RFC 3339
// (with or without fractional seconds), unix seconds, unix milliseconds.
func ParseTimestamp(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		// Millisecond epochs passed 1e12 back in 2001; second epochs
		// won't reach it for tens of thousands of years.
		if n >= 1_000_000_000_000 {
			return time.UnixMilli(n), nil
		}
		return time.Unix(n, 0), nil
	}
	return time.Time{}, &InvalidTimestampError{Raw: raw}
}
