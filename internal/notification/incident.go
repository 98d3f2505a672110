package notification

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/dwizi/notify-bridge/internal/bridgeerr"
)

// Incident is an ITSM ticket assigned to the team.
type Incident struct {
	ID          string
	Priority    string
	SLA         string
	CreatedAt   string
	LastName    string
	FirstName   string
	Patronymic  string
	OrgUnit     string
	Subject     string
	Description string
	Link        string
	Device      string
	Status      Status
	Editor      string

	// Forwarded is set when Description carries another forwarded ticket.
	Forwarded *ForwardedIncident
}

// ForwardedIncident is the reduced ticket found inside a forwarded description.
type ForwardedIncident struct {
	LastName    string
	FirstName   string
	Patronymic  string
	OrgUnit     string
	CreatedAt   string
	Device      string
	Description string
}

func (i *Incident) Kind() Kind {
	return KindIncident
}

func (i *Incident) render(r *Renderer) Rendered {
	return r.renderIncident(i)
}

// FullName joins the non-empty name parts.
func (i *Incident) FullName() string {
	return joinName(i.LastName, i.FirstName, i.Patronymic)
}

// ForwardedUnparsed reports a description that announces a forwarded ticket whose
// body did not match the forwarded grammar.
func (i *Incident) ForwardedUnparsed() bool {
	return i.Forwarded == nil && strings.HasPrefix(cleanText(i.Description), ForwardedPrefix)
}

func (f *ForwardedIncident) FullName() string {
	return joinName(f.LastName, f.FirstName, f.Patronymic)
}

// ParseIncident extracts an OPEN incident from an inbound ITSM e-mail body.
func ParseIncident(text string) (*Incident, error) {
	fields, ok := incidentMailGrammar.match(text)
	if !ok {
		return nil, &ParseError{Kind: KindIncident, Text: text}
	}
	incident := &Incident{
		ID:          field(fields, "id"),
		Priority:    field(fields, "priority"),
		SLA:         field(fields, "sla"),
		CreatedAt:   field(fields, "created_at"),
		OrgUnit:     field(fields, "org_unit"),
		Subject:     fields["subject"],
		Description: fields["description"],
		Link:        field(fields, "link"),
		Status:      StatusOpen,
	}
	incident.LastName, incident.FirstName, incident.Patronymic = nameFields(fields)

	cleaned := cleanText(incident.Description)
	if strings.HasPrefix(cleaned, ForwardedPrefix) {
		forwarded, err := ParseForwarded(cleaned)
		if err == nil {
			incident.Forwarded = forwarded
		}
	}
	return incident, nil
}

// ParseForwarded extracts the ticket embedded in a forwarded description.
func ParseForwarded(text string) (*ForwardedIncident, error) {
	fields, ok := forwardedGrammar.match(text)
	if !ok {
		return nil, fmt.Errorf("%s: %w", KindIncident, bridgeerr.ErrForwardedParse)
	}
	return &ForwardedIncident{
		LastName:    field(fields, "last_name"),
		FirstName:   field(fields, "first_name"),
		Patronymic:  field(fields, "patronymic"),
		OrgUnit:     field(fields, "org_unit"),
		CreatedAt:   field(fields, "created_at"),
		Device:      field(fields, "device"),
		Description: field(fields, "description"),
	}, nil
}

var renderedMarkup = regexp.MustCompile(`</?(?:b|i|u|s|code|pre)>`)

// ParseRenderedIncident rebuilds an incident from text produced by the incident
// template. Forwarded content is kept as already rendered text.
func ParseRenderedIncident(text string) (*Incident, error) {
	plain := html.UnescapeString(renderedMarkup.ReplaceAllString(strings.ReplaceAll(text, "\r", ""), ""))
	fields, ok := renderedIncidentGrammar.match(plain)
	if !ok {
		return nil, &ParseError{Kind: KindIncident, Text: text}
	}
	status, err := ParseStatus(fields["status"])
	if err != nil {
		return nil, err
	}
	incident := &Incident{
		ID:          field(fields, "id"),
		Priority:    field(fields, "priority"),
		SLA:         field(fields, "sla"),
		CreatedAt:   field(fields, "created_at"),
		OrgUnit:     field(fields, "org_unit"),
		Subject:     fields["subject"],
		Description: fields["description"],
		Status:      status,
		Editor:      field(fields, "editor"),
	}
	incident.LastName, incident.FirstName, incident.Patronymic = nameFields(fields)
	return incident, nil
}

// nameFields prefers the three-part personal name and falls back to the job title.
func nameFields(fields map[string]string) (string, string, string) {
	if last := field(fields, "last_name"); last != "" {
		return last, field(fields, "first_name"), field(fields, "patronymic")
	}
	return field(fields, "job_title"), "", ""
}

func joinName(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, " ")
}
