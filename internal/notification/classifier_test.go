package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifierDefaults(t *testing.T) {
	classifier := DefaultClassifier()

	cases := []struct {
		name    string
		sender  string
		subject string
		kind    Kind
		ok      bool
	}{
		{"incident", DefaultIncidentSender, "Инцидент [INC1] назначено на вашу группу [2-ая линия]", KindIncident, true},
		{"incident sender case", "PRD.Support@ITSM.example.com", "[INC1] назначено на вашу группу [x]", KindIncident, true},
		{"incident wrong subject", DefaultIncidentSender, "Инцидент INC1 закрыт", "", false},
		{"monitoring", DefaultMonitoringSender, "Problem: app01.srv.example.com", KindMonitoring, true},
		{"monitoring wrong sender", "alerts@example.com", "Problem: app01.srv.example.com", "", false},
		{"unrelated", "friend@example.com", "Привет", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, ok := classifier.Classify(tc.sender, tc.subject)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.kind, kind)
		})
	}
}

func TestClassifierEmptyRuleRejects(t *testing.T) {
	classifier := NewClassifier(Rule{}, Rule{Sender: "a@example.com"})
	assert.False(t, classifier.Accepts(KindIncident, "", ""))
	assert.False(t, classifier.Accepts(KindMonitoring, "a@example.com", "anything"))
	assert.False(t, classifier.Accepts(Kind("weather"), "a@example.com", "anything"))
}
