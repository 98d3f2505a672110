package cli

import "charm.land/lipgloss/v2"

type theme struct {
	title   lipgloss.Style
	label   lipgloss.Style
	box     lipgloss.Style
	button  lipgloss.Style
	primary lipgloss.Style
	muted   lipgloss.Style
	header  lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
	danger  lipgloss.Style
}

func newTheme(plain bool) theme {
	if plain {
		none := lipgloss.NewStyle()
		return theme{
			title: none, label: none, box: none, button: none, primary: none,
			muted: none, header: none, success: none, warn: none, danger: none,
		}
	}
	border := lipgloss.Color("238")
	accent := lipgloss.Color("111")
	muted := lipgloss.Color("246")

	return theme{
		title: lipgloss.NewStyle().Bold(true).Foreground(accent),
		label: lipgloss.NewStyle().Foreground(muted),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1),
		button:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		primary: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("78")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		danger:  lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	}
}

func (t theme) outcome(value string) lipgloss.Style {
	switch value {
	case "delivered":
		return t.success
	case "rejected":
		return t.warn
	case "parse_failed":
		return t.danger
	default:
		return t.muted
	}
}
