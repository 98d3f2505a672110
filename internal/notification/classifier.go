package notification

import "strings"

const (
	DefaultIncidentSender          = "prd.support@itsm.example.com"
	DefaultIncidentSubjectMarker   = "] назначено на вашу группу ["
	DefaultMonitoringSender        = "no-reply.monitoring@example.com"
	DefaultMonitoringSubjectMarker = ".srv.example.com"
)

// Rule accepts a message when the sender matches exactly (ignoring case) and the
// subject contains the marker.
type Rule struct {
	Sender        string
	SubjectMarker string
}

func (r Rule) accepts(sender, subject string) bool {
	expected := strings.TrimSpace(r.Sender)
	marker := r.SubjectMarker
	if expected == "" || marker == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(sender), expected) && strings.Contains(subject, marker)
}

// Classifier decides from message metadata which grammar applies, before any parsing.
type Classifier struct {
	rules map[Kind]Rule
}

func NewClassifier(incident, monitoring Rule) *Classifier {
	return &Classifier{rules: map[Kind]Rule{
		KindIncident:   incident,
		KindMonitoring: monitoring,
	}}
}

func DefaultClassifier() *Classifier {
	return NewClassifier(
		Rule{Sender: DefaultIncidentSender, SubjectMarker: DefaultIncidentSubjectMarker},
		Rule{Sender: DefaultMonitoringSender, SubjectMarker: DefaultMonitoringSubjectMarker},
	)
}

func (c *Classifier) Accepts(kind Kind, sender, subject string) bool {
	rule, ok := c.rules[kind]
	if !ok {
		return false
	}
	return rule.accepts(sender, subject)
}

// Classify returns the first kind whose rule accepts the message.
func (c *Classifier) Classify(sender, subject string) (Kind, bool) {
	for _, kind := range Kinds {
		if c.Accepts(kind, sender, subject) {
			return kind, true
		}
	}
	return "", false
}
