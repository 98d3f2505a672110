package notification

import (
	"regexp"
	"strings"
)

// grammar matches a whole document shape in one pass and exposes its named groups.
type grammar struct {
	re *regexp.Regexp
}

func newGrammar(pattern string) grammar {
	return grammar{re: regexp.MustCompile(pattern)}
}

// match returns every named group of the first match, or ok=false. Groups of an
// alternative that did not participate are returned as empty strings.
func (g grammar) match(text string) (map[string]string, bool) {
	indexes := g.re.FindStringSubmatchIndex(text)
	if indexes == nil {
		return nil, false
	}
	fields := make(map[string]string, g.re.NumSubexp())
	for i, name := range g.re.SubexpNames() {
		if name == "" {
			continue
		}
		start, end := indexes[2*i], indexes[2*i+1]
		if start < 0 {
			fields[name] = ""
			continue
		}
		fields[name] = text[start:end]
	}
	return fields, true
}

func (g grammar) groups() []string {
	names := []string{}
	for _, name := range g.re.SubexpNames() {
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// ForwardedPrefix opens a description that carries another forwarded ticket.
const ForwardedPrefix = "Для группы 2-ая линия ВК мессенджер (VK Teams)"

var incidentMailGrammar = newGrammar(`(?s)` +
	`Исполнение \[(?P<id>INC\d+)\], \[(?P<priority>\S+)\].+` +
	`Дата регистрации:\s+\[(?P<created_at>[\d\sPAM:./]+)\].+` +
	`Статус SLA:\s+\[(?P<sla>[^\]\n]*)\].+` +
	`Пользователь:\s+\[(?:(?P<last_name>\S+) (?P<first_name>\S+) (?P<patronymic>\S*)|(?P<job_title>[^\]\n]+))\].+` +
	`Организация:\s+\[(?P<org_unit>[^\]\n]+)\].+` +
	`Описание:\s+\[(?P<subject>.*)\].+` +
	`Подробное описание:[^\[]*\[(?P<description>.*)\].+` +
	`Ссылка: Заявка *<(?P<link>[^>\s]+)>`)

var forwardedGrammar = newGrammar(`(?s)` +
	`Заказчик: +(?P<org_unit>[^\n]+) +(?P<last_name>\S+) +(?P<first_name>\S+) +(?P<patronymic>\S+) *\n+` +
	`Дата обращения: (?P<created_at>[\d\s.:]+),.+?` +
	`тип клиента и ОС: (?P<device>[^\n]+),.+?` +
	`Описание проблемы:\s*(?P<description>.+)\n*` +
	`С уважением,.+`)

// renderedIncidentGrammar is the inverse of incidentTemplate after markup is removed.
var renderedIncidentGrammar = newGrammar(`(?s)` +
	`#(?P<id>INC\d+)   #(?P<status>\S+)\n\n` +
	`⭐ (?P<priority>\S+)\n` +
	`⏱ (?P<sla>[^\n]*)\n` +
	`👤 (?:(?P<last_name>\S+) (?P<first_name>\S+) (?P<patronymic>\S*)|(?P<job_title>[^\n]+))\n` +
	`🏭 (?P<org_unit>[^\n]+)\n` +
	`📆 (?P<created_at>[\d\sPAM:./]+?)` +
	`(?:\n🔄 (?P<editor>[^\n]+))?\n\n` +
	`🪧 Описание\n(?P<subject>.*?)\n\n` +
	`📖 Подробно\n(?P<description>.*)$`)

var monitoringMailGrammar = newGrammar(`(?s)` +
	`событие на объекте:\s+(?P<server>[^\n(]+?)\s*(?:\([\d.]+\)*).+` +
	`Критичность:\s+(?P<priority>\S+).+` +
	`Сообщение:\s+(?P<description>.*?\S)(?: [\d.]+)?\s+` +
	`Время регистрации:\s+(?P<registered_at>[\d. :]+[A-Z]*)\s+` +
	`Время нотификации:\s+(?P<notified_at>[\d. :]+[A-Z]*)`)

func field(fields map[string]string, name string) string {
	return strings.TrimSpace(fields[name])
}
