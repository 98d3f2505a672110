package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dwizi/notify-bridge/internal/bridgeerr"
	"github.com/dwizi/notify-bridge/internal/mailmsg"
	"github.com/dwizi/notify-bridge/internal/notification"
)

const maxPreviewBytes = 2 << 20

func (r *router) handleIngestions(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if r.deps.Ingestions == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "ledger is disabled"})
		return
	}
	limit := 50
	if raw := strings.TrimSpace(req.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 500"})
			return
		}
		limit = parsed
	}
	records, err := r.deps.Ingestions.ListIngestions(req.Context(), limit)
	if err != nil {
		r.deps.Logger.Error("list ingestions failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list ingestions"})
		return
	}
	items := make([]map[string]any, 0, len(records))
	for _, record := range records {
		items = append(items, map[string]any{
			"id":              record.ID,
			"source_key":      record.SourceKey,
			"uid":             record.UID,
			"message_id":      record.MessageID,
			"kind":            record.Kind,
			"outcome":         record.Outcome,
			"created_at_unix": record.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

type previewRequest struct {
	Kind string `json:"kind"`
	From string `json:"from"`
	// Subject is only needed when the classifier picks the kind.
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Raw     string `json:"raw"`
}

type previewButton struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	Target string `json:"target"`
	Style  string `json:"style,omitempty"`
}

// handlePreview renders a body or a raw RFC 5322 message without delivering it.
func (r *router) handlePreview(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if r.deps.Previewer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "preview is disabled"})
		return
	}
	var payload previewRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxPreviewBytes)).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	var kind notification.Kind
	if strings.TrimSpace(payload.Kind) != "" {
		parsedKind, err := notification.ParseKind(payload.Kind)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		kind = parsedKind
	}
	msg := mailmsg.Message{
		From:          payload.From,
		SenderAddress: mailmsg.Address(payload.From),
		Subject:       payload.Subject,
		Body:          payload.Body,
		Date:          time.Now().UTC(),
	}
	if strings.TrimSpace(payload.Raw) != "" {
		parsed, err := mailmsg.Parse([]byte(payload.Raw))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		msg = parsed
	}

	preview, err := r.deps.Previewer.Preview(msg, kind)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, bridgeerr.ErrNotRecognized) || errors.Is(err, bridgeerr.ErrParseFailure) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, map[string]string{"error": err.Error(), "kind": string(preview.Kind)})
		return
	}

	rows := make([][]previewButton, 0, len(preview.Rendered.Keyboard))
	for _, row := range preview.Rendered.Keyboard {
		buttons := make([]previewButton, 0, len(row))
		for _, button := range row {
			buttons = append(buttons, previewButton{
				Label:  button.Label,
				Action: string(button.Action),
				Target: button.Target,
				Style:  string(button.Style),
			})
		}
		rows = append(rows, buttons)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kind":     preview.Kind,
		"text":     preview.Rendered.Text,
		"keyboard": rows,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
