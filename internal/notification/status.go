package notification

import (
	"fmt"
	"strings"

	"github.com/dwizi/notify-bridge/internal/bridgeerr"
)

type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Callback actions carried in button callback data.
const (
	ActionClose = "close"
	ActionOpen  = "open"
)

func ParseStatus(raw string) (Status, error) {
	switch Status(strings.TrimSpace(raw)) {
	case StatusOpen:
		return StatusOpen, nil
	case StatusClosed:
		return StatusClosed, nil
	default:
		return "", fmt.Errorf("unknown incident status %q: %w", raw, bridgeerr.ErrContractViolation)
	}
}

// Apply returns the status reached from s by action. Repeating an action is a no-op.
func (s Status) Apply(action string) (Status, error) {
	if s != StatusOpen && s != StatusClosed {
		return "", fmt.Errorf("transition from status %q: %w", s, bridgeerr.ErrContractViolation)
	}
	switch strings.TrimSpace(action) {
	case ActionClose:
		return StatusClosed, nil
	case ActionOpen:
		return StatusOpen, nil
	default:
		return "", fmt.Errorf("unknown callback action %q: %w", action, bridgeerr.ErrContractViolation)
	}
}
