package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type MarkIngestionInput struct {
	SourceKey string
	UID       uint32
	MessageID string
	Kind      string
	Outcome   string
}

type Ingestion struct {
	ID        string
	SourceKey string
	UID       uint32
	MessageID string
	Kind      string
	Outcome   string
	CreatedAt time.Time
}

// IsMessageIngested matches by uid or by Message-ID within one mail source.
func (s *Store) IsMessageIngested(ctx context.Context, sourceKey string, uid uint32, messageID string) (bool, error) {
	sourceKey = normalizeSourceKey(sourceKey)
	messageID = strings.TrimSpace(messageID)
	if sourceKey == "" || (uid == 0 && messageID == "") {
		return false, fmt.Errorf("source key and uid or message id are required")
	}
	clauses := []string{}
	args := []any{sourceKey}
	if uid > 0 {
		clauses = append(clauses, `uid = ?`)
		args = append(args, int64(uid))
	}
	if messageID != "" {
		clauses = append(clauses, `message_id = ?`)
		args = append(args, messageID)
	}
	query := `SELECT COUNT(*) FROM mail_ingestions WHERE source_key = ? AND (` + strings.Join(clauses, ` OR `) + `)`
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("lookup mail ingestion: %w", err)
	}
	return count > 0, nil
}

// MarkMessageIngested records the outcome. Marking the same message twice is a no-op.
func (s *Store) MarkMessageIngested(ctx context.Context, input MarkIngestionInput) error {
	sourceKey := normalizeSourceKey(input.SourceKey)
	messageID := strings.TrimSpace(input.MessageID)
	outcome := strings.TrimSpace(input.Outcome)
	if sourceKey == "" || (input.UID == 0 && messageID == "") || outcome == "" {
		return fmt.Errorf("missing mail ingestion fields")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO mail_ingestions (id, source_key, uid, message_id, kind, outcome, created_at_unix)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"ing_"+uuid.NewString(),
		sourceKey,
		nullIfZeroUint32(input.UID),
		nullIfEmpty(messageID),
		nullIfEmpty(strings.TrimSpace(input.Kind)),
		outcome,
		time.Now().UTC().Unix(),
	)
	if err != nil {
		if isSQLiteConstraint(err) {
			return nil
		}
		return fmt.Errorf("insert mail ingestion: %w", err)
	}
	return nil
}

// ListIngestions returns the most recent ledger rows first.
func (s *Store) ListIngestions(ctx context.Context, limit int) ([]Ingestion, error) {
	if limit < 1 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, source_key, uid, message_id, kind, outcome, created_at_unix
		 FROM mail_ingestions ORDER BY created_at_unix DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list mail ingestions: %w", err)
	}
	defer rows.Close()

	results := []Ingestion{}
	for rows.Next() {
		var (
			item      Ingestion
			uid       sql.NullInt64
			messageID sql.NullString
			kind      sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&item.ID, &item.SourceKey, &uid, &messageID, &kind, &item.Outcome, &createdAt); err != nil {
			return nil, fmt.Errorf("scan mail ingestion: %w", err)
		}
		item.UID = uint32(uid.Int64)
		item.MessageID = messageID.String
		item.Kind = kind.String
		item.CreatedAt = time.Unix(createdAt, 0).UTC()
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mail ingestions: %w", err)
	}
	return results, nil
}

func normalizeSourceKey(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

func isSQLiteConstraint(err error) bool {
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return false
	}
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "unique") || strings.Contains(text, "constraint")
}
