package vkteams

import (
	"encoding/json"
	"strings"
)

const (
	eventCallbackQuery = "callbackQuery"
	partInlineKeyboard = "inlineKeyboardMarkup"
)

type Event struct {
	EventID int64           `json:"eventId"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type callbackPayload struct {
	QueryID      string      `json:"queryId"`
	CallbackData string      `json:"callbackData"`
	From         eventUser   `json:"from"`
	Message      callbackMsg `json:"message"`
}

type eventUser struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type callbackMsg struct {
	MsgID string       `json:"msgId"`
	Chat  eventChat    `json:"chat"`
	Text  string       `json:"text"`
	Parts []messagePart `json:"parts"`
}

type eventChat struct {
	ChatID string `json:"chatId"`
	Type   string `json:"type"`
}

type messagePart struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// link returns the open-link target of the message's own keyboard.
func (m callbackMsg) link() string {
	for _, part := range m.Parts {
		if part.Type != partInlineKeyboard {
			continue
		}
		keyboard, err := DecodeKeyboard(part.Payload)
		if err != nil {
			continue
		}
		if link := keyboard.Link(); link != "" {
			return link
		}
	}
	return ""
}

func (u eventUser) displayID() string {
	if id := strings.TrimSpace(u.UserID); id != "" {
		return id
	}
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}
