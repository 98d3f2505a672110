package notification

import (
	"fmt"
	"strings"

	"github.com/dwizi/notify-bridge/internal/bridgeerr"
)

type Kind string

const (
	KindIncident   Kind = "incident"
	KindMonitoring Kind = "monitoring"
)

// Kinds lists record kinds in classification order.
var Kinds = []Kind{KindIncident, KindMonitoring}

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindIncident:
		return KindIncident, nil
	case KindMonitoring:
		return KindMonitoring, nil
	default:
		return "", fmt.Errorf("unknown record kind %q", raw)
	}
}

// Record is implemented by *Incident and *Monitoring only.
type Record interface {
	Kind() Kind
	render(r *Renderer) Rendered
}

// ParseError reports text that did not match the grammar of Kind.
type ParseError struct {
	Kind Kind
	Text string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, bridgeerr.ErrParseFailure)
}

func (e *ParseError) Unwrap() error {
	return bridgeerr.ErrParseFailure
}

// Parse applies the inbound e-mail grammar for kind.
func Parse(kind Kind, text string) (Record, error) {
	switch kind {
	case KindIncident:
		incident, err := ParseIncident(text)
		if err != nil {
			return nil, err
		}
		return incident, nil
	case KindMonitoring:
		monitoring, err := ParseMonitoring(text)
		if err != nil {
			return nil, err
		}
		return monitoring, nil
	default:
		return nil, fmt.Errorf("parse kind %q: %w", kind, bridgeerr.ErrContractViolation)
	}
}
