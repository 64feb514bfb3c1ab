package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var _ DedupRepo = (*PostgresStore)(nil)

func (s *PostgresStore) GetInbound(ctx context.Context, messageID string) (*InboundRecord, error) {
	rec := InboundRecord{MessageID: messageID}
	var received int64
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, reply, received_at FROM inbound_dedup WHERE message_id = $1`, messageID).
		Scan(&rec.SessionID, &rec.Reply, &received)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInboundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("dedup check failed: %w", err)
	}
	rec.ReceivedAt = time.Unix(0, received)
	return &rec, nil
}

func (s *PostgresStore) RecordInbound(ctx context.Context, rec *InboundRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO inbound_dedup (message_id, session_id, reply, received_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id) DO NOTHING`,
		rec.MessageID, rec.SessionID, rec.Reply, rec.ReceivedAt.UnixNano())
	if err != nil {
		slog.Error("PostgresStore RecordInbound failed", "error", err, "messageID", rec.MessageID)
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}
