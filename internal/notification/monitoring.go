package notification

import "strings"

// Monitoring is a one-shot alert from the monitoring system. It is never re-parsed.
// Glyph is the priority marker from the default tables; a renderer built with other
// tables picks its own.
type Monitoring struct {
	Server       string
	Priority     string
	Glyph        string
	RegisteredAt string
	NotifiedAt   string
	Description  string
}

var defaultTables = DefaultTables()

func (m *Monitoring) Kind() Kind {
	return KindMonitoring
}

func (m *Monitoring) render(r *Renderer) Rendered {
	return r.renderMonitoring(m)
}

// ParseMonitoring extracts an alert from a monitoring e-mail body.
func ParseMonitoring(text string) (*Monitoring, error) {
	fields, ok := monitoringMailGrammar.match(text)
	if !ok {
		return nil, &ParseError{Kind: KindMonitoring, Text: text}
	}
	priority := field(fields, "priority")
	return &Monitoring{
		Server:       field(fields, "server"),
		Priority:     priority,
		Glyph:        defaultTables.Glyph(priority),
		RegisteredAt: field(fields, "registered_at"),
		NotifiedAt:   field(fields, "notified_at"),
		Description:  strings.TrimSuffix(fields["description"], "\r"),
	}, nil
}
