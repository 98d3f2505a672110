package notification

type ButtonAction string

const (
	ButtonOpenLink ButtonAction = "open-link"
	ButtonCallback ButtonAction = "callback"
)

type ButtonStyle string

const (
	StyleBase      ButtonStyle = "base"
	StylePrimary   ButtonStyle = "primary"
	StyleAttention ButtonStyle = "attention"
)

// Button is one interactive control. Target is the URL for ButtonOpenLink and the
// callback name for ButtonCallback.
type Button struct {
	Label  string
	Action ButtonAction
	Target string
	Style  ButtonStyle
}

// ControlDescriptor is an ordered list of button rows attached to a message.
type ControlDescriptor [][]Button

// Link returns the target of the first open-link button.
func (d ControlDescriptor) Link() string {
	for _, row := range d {
		for _, button := range row {
			if button.Action == ButtonOpenLink {
				return button.Target
			}
		}
	}
	return ""
}

// Rendered is the display text plus its controls.
type Rendered struct {
	Text     string
	Keyboard ControlDescriptor
}
