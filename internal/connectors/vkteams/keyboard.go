package vkteams

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dwizi/notify-bridge/internal/notification"
)

type wireButton struct {
	Text         string `json:"text"`
	URL          string `json:"url,omitempty"`
	CallbackData string `json:"callbackData,omitempty"`
	Style        string `json:"style,omitempty"`
}

// EncodeKeyboard converts controls to the inlineKeyboardMarkup JSON array of rows.
func EncodeKeyboard(keyboard notification.ControlDescriptor) (string, error) {
	rows := make([][]wireButton, 0, len(keyboard))
	for _, row := range keyboard {
		wireRow := make([]wireButton, 0, len(row))
		for _, button := range row {
			item := wireButton{Text: button.Label, Style: string(button.Style)}
			switch button.Action {
			case notification.ButtonOpenLink:
				item.URL = button.Target
			case notification.ButtonCallback:
				item.CallbackData = button.Target
			default:
				return "", fmt.Errorf("unsupported button action %q", button.Action)
			}
			wireRow = append(wireRow, item)
		}
		rows = append(rows, wireRow)
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("encode keyboard: %w", err)
	}
	return string(data), nil
}

// DecodeKeyboard is the inverse of EncodeKeyboard for markup found in message parts.
func DecodeKeyboard(raw json.RawMessage) (notification.ControlDescriptor, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows [][]wireButton
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode keyboard: %w", err)
	}
	keyboard := make(notification.ControlDescriptor, 0, len(rows))
	for _, row := range rows {
		buttons := make([]notification.Button, 0, len(row))
		for _, item := range row {
			button := notification.Button{Label: item.Text, Style: notification.ButtonStyle(item.Style)}
			if url := strings.TrimSpace(item.URL); url != "" {
				button.Action = notification.ButtonOpenLink
				button.Target = url
			} else {
				button.Action = notification.ButtonCallback
				button.Target = item.CallbackData
			}
			buttons = append(buttons, button)
		}
		keyboard = append(keyboard, buttons)
	}
	return keyboard, nil
}
