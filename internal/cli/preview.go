package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dwizi/notify-bridge/internal/bridge"
	"github.com/dwizi/notify-bridge/internal/bridgeerr"
	"github.com/dwizi/notify-bridge/internal/config"
	"github.com/dwizi/notify-bridge/internal/mailmsg"
	"github.com/dwizi/notify-bridge/internal/notification"
)

const maxPreviewBytes = 2 << 20

type previewButton struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	Target string `json:"target"`
	Style  string `json:"style,omitempty"`
}

type previewOutput struct {
	Kind     string            `json:"kind"`
	Text     string            `json:"text"`
	Keyboard [][]previewButton `json:"keyboard"`
}

func newPreviewCommand() *cobra.Command {
	var (
		kindFlag string
		plain    bool
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "preview <file|->",
		Short: "Parse a saved mail (or bare notification body) and print the chat message it produces",
		Long: "Reads an .eml file, or a plain text notification body, and prints the rendered chat\n" +
			"message with its inline keyboard. Nothing is sent. Bare bodies carry no sender or\n" +
			"subject, so they need --kind.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind notification.Kind
			if strings.TrimSpace(kindFlag) != "" {
				parsed, err := notification.ParseKind(kindFlag)
				if err != nil {
					return err
				}
				kind = parsed
			}
			raw, err := readPreviewInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			cfg := config.FromEnv()
			service := bridge.New(cfg.Classifier(), notification.NewRenderer(nil), nil, bridge.Chats{}, nil, nil)
			preview, err := service.Preview(messageFromInput(raw), kind)
			if err != nil {
				if errors.Is(err, bridgeerr.ErrNotRecognized) && kind == "" {
					return fmt.Errorf("%w (pass --kind for a bare notification body)", err)
				}
				return err
			}
			output := toPreviewOutput(preview)
			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				encoder.SetEscapeHTML(false)
				return encoder.Encode(output)
			}
			writePreview(cmd.OutOrStdout(), newTheme(plain), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&kindFlag, "kind", "", "record kind (incident or monitoring); empty lets the classifier decide")
	cmd.Flags().BoolVar(&plain, "plain", false, "print without terminal styling")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the rendered message as JSON")
	return cmd
}

func readPreviewInput(stdin io.Reader, path string) ([]byte, error) {
	var reader io.Reader
	if strings.TrimSpace(path) == "-" {
		reader = stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer file.Close()
		reader = file
	}
	raw, err := io.ReadAll(io.LimitReader(reader, maxPreviewBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if len(raw) > maxPreviewBytes {
		return nil, fmt.Errorf("input exceeds %d bytes", maxPreviewBytes)
	}
	return raw, nil
}

// messageFromInput treats input with From or Subject headers as a complete
// message and anything else as a bare body.
func messageFromInput(raw []byte) mailmsg.Message {
	if parsed, err := mailmsg.Parse(raw); err == nil && (parsed.From != "" || parsed.Subject != "") {
		return parsed
	}
	return mailmsg.Message{Body: strings.ReplaceAll(string(raw), "\r\n", "\n")}
}

func toPreviewOutput(preview bridge.Preview) previewOutput {
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
	return previewOutput{Kind: string(preview.Kind), Text: preview.Rendered.Text, Keyboard: rows}
}

func writePreview(w io.Writer, t theme, output previewOutput) {
	fmt.Fprintln(w, t.title.Render("notify-bridge preview")+" "+t.label.Render("kind: "+output.Kind))
	fmt.Fprintln(w, t.box.Render(output.Text))
	if len(output.Keyboard) == 0 {
		fmt.Fprintln(w, t.muted.Render("no buttons"))
		return
	}
	for _, row := range output.Keyboard {
		parts := make([]string, 0, len(row))
		for _, button := range row {
			style := t.button
			switch notification.ButtonStyle(button.Style) {
			case notification.StylePrimary:
				style = t.primary
			case notification.StyleAttention:
				style = t.danger
			}
			parts = append(parts, style.Render("["+button.Label+"]")+" "+t.muted.Render(button.Action+" "+button.Target))
		}
		fmt.Fprintln(w, strings.Join(parts, "   "))
	}
}
