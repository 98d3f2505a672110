package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dwizi/notify-bridge/internal/mailmsg"
	"github.com/dwizi/notify-bridge/internal/notification"
)

type parseNotificationInput struct {
	Kind    string `json:"kind,omitempty" jsonschema:"Record kind: incident or monitoring. Empty lets the classifier decide from from and subject."`
	From    string `json:"from,omitempty" jsonschema:"Sender header used by the classifier"`
	Subject string `json:"subject,omitempty" jsonschema:"Subject header used by the classifier"`
	Body    string `json:"body,omitempty" jsonschema:"Plain text mail body"`
	Raw     string `json:"raw,omitempty" jsonschema:"Complete RFC 5322 message. Overrides from, subject and body."`
}

type buttonOutput struct {
	Label  string `json:"label"`
	Action string `json:"action" jsonschema:"open-link or callback"`
	Target string `json:"target" jsonschema:"URL or callback action name"`
	Style  string `json:"style,omitempty"`
}

type renderedOutput struct {
	Kind     string            `json:"kind,omitempty"`
	Fields   map[string]string `json:"fields,omitempty" jsonschema:"Fields extracted by the grammar"`
	Text     string            `json:"text" jsonschema:"HTML chat text"`
	Keyboard [][]buttonOutput  `json:"keyboard" jsonschema:"Inline keyboard rows"`
}

type applyCallbackInput struct {
	Text    string `json:"text" jsonschema:"Text of the delivered incident message"`
	Link    string `json:"link,omitempty" jsonschema:"URL of the message's open-link button"`
	Action  string `json:"action" jsonschema:"close or open"`
	ActorID string `json:"actor_id,omitempty" jsonschema:"Who pressed the button"`
}

type listIngestionsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum rows (default 50)"`
}

type ingestionOutput struct {
	SourceKey string `json:"source_key"`
	UID       uint32 `json:"uid,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Outcome   string `json:"outcome"`
	CreatedAt string `json:"created_at"`
}

type listIngestionsOutput struct {
	Items []ingestionOutput `json:"items"`
	Count int               `json:"count"`
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "parse_notification",
		Description: "Classify and parse a notification e-mail and return the chat message it would produce. Nothing is sent.",
	}, s.parseNotification)

	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "apply_callback",
		Description: "Apply a close or open button press to a delivered incident message and return the edited text.",
	}, s.applyCallback)

	if s.ingestions == nil {
		s.logger.Warn("ingestion ledger not configured, skipping list_ingestions tool")
		return
	}
	sdkmcp.AddTool(s.mcp, &sdkmcp.Tool{
		Name:        "list_ingestions",
		Description: "List the most recently handled mail messages and their outcome.",
	}, s.listIngestions)
}

func (s *Server) parseNotification(ctx context.Context, req *sdkmcp.CallToolRequest, args parseNotificationInput) (*sdkmcp.CallToolResult, renderedOutput, error) {
	var kind notification.Kind
	if strings.TrimSpace(args.Kind) != "" {
		parsed, err := notification.ParseKind(args.Kind)
		if err != nil {
			return nil, renderedOutput{}, err
		}
		kind = parsed
	}
	msg := mailmsg.Message{
		From:          args.From,
		SenderAddress: mailmsg.Address(args.From),
		Subject:       args.Subject,
		Body:          args.Body,
	}
	if strings.TrimSpace(args.Raw) != "" {
		parsed, err := mailmsg.Parse([]byte(args.Raw))
		if err != nil {
			return nil, renderedOutput{}, err
		}
		msg = parsed
	}
	preview, err := s.previewer.Preview(msg, kind)
	if err != nil {
		return nil, renderedOutput{}, fmt.Errorf("parse notification: %w", err)
	}
	output := toRenderedOutput(preview.Rendered)
	output.Kind = string(preview.Kind)
	output.Fields = recordFields(preview.Record)
	return textResult(output.Text), output, nil
}

func (s *Server) applyCallback(ctx context.Context, req *sdkmcp.CallToolRequest, args applyCallbackInput) (*sdkmcp.CallToolResult, renderedOutput, error) {
	rendered, err := s.coordinator.ApplyCallback(args.Text, args.Link, args.Action, args.ActorID)
	if err != nil {
		return nil, renderedOutput{}, fmt.Errorf("apply callback: %w", err)
	}
	output := toRenderedOutput(rendered)
	output.Kind = string(notification.KindIncident)
	return textResult(output.Text), output, nil
}

func (s *Server) listIngestions(ctx context.Context, req *sdkmcp.CallToolRequest, args listIngestionsInput) (*sdkmcp.CallToolResult, listIngestionsOutput, error) {
	records, err := s.ingestions.ListIngestions(ctx, args.Limit)
	if err != nil {
		return nil, listIngestionsOutput{}, fmt.Errorf("list ingestions: %w", err)
	}
	output := listIngestionsOutput{Items: make([]ingestionOutput, 0, len(records))}
	for _, record := range records {
		output.Items = append(output.Items, ingestionOutput{
			SourceKey: record.SourceKey,
			UID:       record.UID,
			MessageID: record.MessageID,
			Outcome:   record.Outcome,
			CreatedAt: record.CreatedAt.Format(time.RFC3339),
		})
	}
	output.Count = len(output.Items)
	return textResult(fmt.Sprintf("%d messages", output.Count)), output, nil
}

func textResult(text string) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: text}}}
}

func toRenderedOutput(rendered notification.Rendered) renderedOutput {
	rows := make([][]buttonOutput, 0, len(rendered.Keyboard))
	for _, row := range rendered.Keyboard {
		buttons := make([]buttonOutput, 0, len(row))
		for _, button := range row {
			buttons = append(buttons, buttonOutput{
				Label:  button.Label,
				Action: string(button.Action),
				Target: button.Target,
				Style:  string(button.Style),
			})
		}
		rows = append(rows, buttons)
	}
	return renderedOutput{Text: rendered.Text, Keyboard: rows}
}

func recordFields(record notification.Record) map[string]string {
	switch typed := record.(type) {
	case *notification.Incident:
		fields := map[string]string{
			"id":          typed.ID,
			"priority":    typed.Priority,
			"sla":         typed.SLA,
			"created_at":  typed.CreatedAt,
			"full_name":   typed.FullName(),
			"org_unit":    typed.OrgUnit,
			"subject":     typed.Subject,
			"description": typed.Description,
			"link":        typed.Link,
			"status":      string(typed.Status),
		}
		if typed.Forwarded != nil {
			fields["forwarded_full_name"] = typed.Forwarded.FullName()
			fields["forwarded_org_unit"] = typed.Forwarded.OrgUnit
			fields["forwarded_device"] = typed.Forwarded.Device
		}
		return fields
	case *notification.Monitoring:
		return map[string]string{
			"server":        typed.Server,
			"priority":      typed.Priority,
			"glyph":         typed.Glyph,
			"registered_at": typed.RegisteredAt,
			"notified_at":   typed.NotifiedAt,
			"description":   typed.Description,
		}
	default:
		return nil
	}
}
