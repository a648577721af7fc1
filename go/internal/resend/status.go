package resend

// Status is the controller's finite-state-machine state. Exactly one status
// is active at a time.
type Status int

const (
	// StatusRestoring: the controller is resuming state from a previously
	// issued session marker.
	StatusRestoring Status = iota
	// StatusSending: a send is in flight (worker + persist callbacks).
	StatusSending
	// StatusCooldown: a code was sent recently; the countdown is running.
	StatusCooldown
	// StatusReady: a code may be sent now.
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusRestoring:
		return "restoring"
	case StatusSending:
		return "sending"
	case StatusCooldown:
		return "cooldown"
	case StatusReady:
		return "ready"
	default:
		return "unknown"
	}
}
