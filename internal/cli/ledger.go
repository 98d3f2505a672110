package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/spf13/cobra"

	"github.com/dwizi/notify-bridge/internal/config"
	"github.com/dwizi/notify-bridge/internal/store"
)

func newLedgerCommand() *cobra.Command {
	var (
		limit int
		plain bool
	)
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "List recently handled mail and its outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			sqlStore, err := store.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer sqlStore.Close()
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := sqlStore.AutoMigrate(ctx); err != nil {
				return err
			}
			items, err := sqlStore.ListIngestions(ctx, limit)
			if err != nil {
				return err
			}
			writeLedger(cmd.OutOrStdout(), newTheme(plain), items)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows")
	cmd.Flags().BoolVar(&plain, "plain", false, "print without terminal styling")
	return cmd
}

func writeLedger(w io.Writer, t theme, items []store.Ingestion) {
	if len(items) == 0 {
		fmt.Fprintln(w, t.muted.Render("ledger is empty"))
		return
	}
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		uid := ""
		if item.UID > 0 {
			uid = strconv.FormatUint(uint64(item.UID), 10)
		}
		rows = append(rows, []string{
			item.CreatedAt.Local().Format(time.DateTime),
			item.SourceKey,
			uid,
			item.MessageID,
			item.Outcome,
		})
	}
	rendered := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(t.muted).
		Headers("HANDLED", "SOURCE", "UID", "MESSAGE-ID", "OUTCOME").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return t.header.Padding(0, 1)
			}
			if col == 4 && row >= 0 && row < len(rows) {
				return t.outcome(rows[row][4]).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	fmt.Fprintln(w, rendered.String())
}
