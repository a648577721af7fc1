package resend

import "fmt"

// ButtonState is the button-facing projection of the controller: pure
// derivation from status plus remaining time, no state of its own.
type ButtonState struct {
	Label    string `json:"label"`
	Disabled bool   `json:"disabled"`
	Loading  bool   `json:"loading"`
}

// Snapshot is a coherent view of the controller for transport: status,
// remaining seconds, and the button projection taken together.
type Snapshot struct {
	Status           string      `json:"status"`
	RemainingSeconds int         `json:"remaining_seconds"`
	Button           ButtonState `json:"button"`
}

// Button computes the button projection for the current status.
func (c *Controller) Button() ButtonState {
	c.mu.Lock()
	status := c.status
	c.mu.Unlock()

	switch status {
	case StatusReady:
		return ButtonState{Label: c.opts.ActiveLabel}
	case StatusCooldown:
		return ButtonState{
			Label:    fmt.Sprintf("Next code available in %s", c.timer.Display()),
			Disabled: true,
		}
	case StatusSending:
		return ButtonState{Label: "Sending code...", Disabled: true, Loading: true}
	default:
		return ButtonState{Label: "Restoring session...", Disabled: true, Loading: true}
	}
}

// Snapshot captures status, remaining seconds and the button projection.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Status:           c.Status().String(),
		RemainingSeconds: c.Remaining(),
		Button:           c.Button(),
	}
}
