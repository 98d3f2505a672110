package notification

import (
	"strings"

	"github.com/valyala/fasttemplate"
)

const incidentTemplate = "<b>#{id}   #{status}</b>\n\n" +
	"⭐ {priority}\n" +
	"⏱ {sla}\n" +
	"👤 {full_name}\n" +
	"🏭 {org_unit}\n" +
	"📆 {created_at}{editor_line}\n\n" +
	"🪧 <b>Описание</b>\n" +
	"{subject}\n\n" +
	"📖 <b>Подробно</b>\n" +
	"{description}"

// forwardedTemplate is plain text: it is spliced into the description and escaped with it.
const forwardedTemplate = "👤 {full_name}\n" +
	"🏭 {org_unit}\n" +
	"📆 {created_at}\n" +
	"⚙ {device}\n" +
	"✏️ {description}"

const monitoringTemplate = "{glyph} <b>{server}</b>\n" +
	"<i>{registered_at} </i>\n\n" +
	"<b><code>📖 {description}</code></b>\n"

// Tables holds the lookup data shared by every render call. It is not mutated after
// construction.
type Tables struct {
	PriorityGlyphs map[string]string
	DefaultGlyph   string
	LinkLabel      string
	LinkStyle      ButtonStyle
	StatusRows     map[Status][]Button
}

func DefaultTables() *Tables {
	return &Tables{
		PriorityGlyphs: map[string]string{
			"Critical": "🟥",
			"Warning":  "🟨",
		},
		DefaultGlyph: "‼️",
		LinkLabel:    "🔗 Инцидент в ITSM",
		LinkStyle:    StylePrimary,
		StatusRows: map[Status][]Button{
			StatusOpen:   {{Label: "Отметить закрытой", Action: ButtonCallback, Target: ActionClose, Style: StyleAttention}},
			StatusClosed: {{Label: "Отметить открытой", Action: ButtonCallback, Target: ActionOpen, Style: StyleBase}},
		},
	}
}

func (t *Tables) Glyph(priority string) string {
	if glyph, ok := t.PriorityGlyphs[strings.TrimSpace(priority)]; ok {
		return glyph
	}
	return t.DefaultGlyph
}

type Renderer struct {
	tables     *Tables
	incident   *fasttemplate.Template
	forwarded  *fasttemplate.Template
	monitoring *fasttemplate.Template
}

func NewRenderer(tables *Tables) *Renderer {
	if tables == nil {
		tables = DefaultTables()
	}
	return &Renderer{
		tables:     tables,
		incident:   fasttemplate.New(incidentTemplate, "{", "}"),
		forwarded:  fasttemplate.New(forwardedTemplate, "{", "}"),
		monitoring: fasttemplate.New(monitoringTemplate, "{", "}"),
	}
}

func (r *Renderer) Render(record Record) Rendered {
	return record.render(r)
}

func (r *Renderer) renderIncident(incident *Incident) Rendered {
	description := cleanText(incident.Description)
	if incident.Forwarded != nil {
		description = r.renderForwarded(incident.Forwarded)
	}
	editorLine := ""
	if editor := strings.TrimSpace(incident.Editor); editor != "" {
		editorLine = "\n🔄 " + EscapeMarkup(editor)
	}
	text := r.incident.ExecuteString(map[string]any{
		"id":          EscapeMarkup(incident.ID),
		"status":      EscapeMarkup(string(incident.Status)),
		"priority":    EscapeMarkup(incident.Priority),
		"sla":         EscapeMarkup(incident.SLA),
		"full_name":   EscapeMarkup(incident.FullName()),
		"org_unit":    EscapeMarkup(incident.OrgUnit),
		"created_at":  EscapeMarkup(incident.CreatedAt),
		"editor_line": editorLine,
		"subject":     EscapeMarkup(cleanText(incident.Subject)),
		"description": EscapeMarkup(description),
	})
	return Rendered{Text: text, Keyboard: r.incidentKeyboard(incident)}
}

func (r *Renderer) renderForwarded(forwarded *ForwardedIncident) string {
	return r.forwarded.ExecuteString(map[string]any{
		"full_name":   forwarded.FullName(),
		"org_unit":    forwarded.OrgUnit,
		"created_at":  forwarded.CreatedAt,
		"device":      forwarded.Device,
		"description": cleanText(forwarded.Description),
	})
}

func (r *Renderer) incidentKeyboard(incident *Incident) ControlDescriptor {
	keyboard := ControlDescriptor{}
	if link := strings.TrimSpace(incident.Link); link != "" {
		keyboard = append(keyboard, []Button{{
			Label:  r.tables.LinkLabel,
			Action: ButtonOpenLink,
			Target: link,
			Style:  r.tables.LinkStyle,
		}})
	}
	if row, ok := r.tables.StatusRows[incident.Status]; ok && len(row) > 0 {
		keyboard = append(keyboard, append([]Button(nil), row...))
	}
	return keyboard
}

func (r *Renderer) renderMonitoring(monitoring *Monitoring) Rendered {
	text := r.monitoring.ExecuteString(map[string]any{
		"glyph":         r.tables.Glyph(monitoring.Priority),
		"server":        EscapeMarkup(monitoring.Server),
		"registered_at": EscapeMarkup(monitoring.RegisteredAt),
		"description":   EscapeMarkup(cleanText(monitoring.Description)),
	})
	return Rendered{Text: text}
}

var markupEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// EscapeMarkup escapes the characters the chat HTML parse mode reserves.
func EscapeMarkup(value string) string {
	return markupEscaper.Replace(value)
}

// cleanText strips carriage returns and drops blank lines.
func cleanText(value string) string {
	lines := strings.Split(strings.ReplaceAll(value, "\r", ""), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
