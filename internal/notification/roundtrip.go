package notification

import (
	"fmt"
	"strings"

	"github.com/dwizi/notify-bridge/internal/bridgeerr"
)

// Coordinator re-renders a previously rendered incident after a button press.
type Coordinator struct {
	renderer *Renderer
}

func NewCoordinator(renderer *Renderer) *Coordinator {
	return &Coordinator{renderer: renderer}
}

// ApplyCallback re-parses renderedText, restores the link taken from the pressed
// message's keyboard, records actorID as editor and moves the status by action.
// The result depends only on the re-parsed record and the action.
func (c *Coordinator) ApplyCallback(renderedText, externalLink, action, actorID string) (Rendered, error) {
	switch strings.TrimSpace(action) {
	case ActionClose, ActionOpen:
	default:
		return Rendered{}, fmt.Errorf("unknown callback action %q: %w", action, bridgeerr.ErrContractViolation)
	}
	incident, err := ParseRenderedIncident(renderedText)
	if err != nil {
		return Rendered{}, err
	}
	incident.Link = strings.TrimSpace(externalLink)
	incident.Editor = strings.TrimSpace(actorID)
	status, err := incident.Status.Apply(action)
	if err != nil {
		return Rendered{}, err
	}
	incident.Status = status
	return c.renderer.Render(incident), nil
}
