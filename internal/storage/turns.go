package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/rememberd/internal/conversation"
)

// AppendTurn persists a turn, assigning the next sequence number within the
// conversation inside a transaction. Implements conversation.Store.
func (s *Store) AppendTurn(ctx context.Context, turn conversation.Turn) (conversation.Turn, error) {
	if turn.TurnID == "" {
		turn.TurnID = conversation.NewTurnID()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	err := s.withRetry(ctx, "append turn", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var last sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT MAX(seq) FROM turns WHERE conversation_id = ?`,
			turn.ConversationID,
		).Scan(&last); err != nil {
			return err
		}
		turn.Seq = last.Int64 + 1

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns
				(turn_id, conversation_id, seq, role, content, created_at,
				 latency_ms, retrieved_count, model_used, tokens_used)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			turn.TurnID, turn.ConversationID, turn.Seq, string(turn.Role),
			turn.Content, turn.CreatedAt.UnixMilli(),
			turn.Metrics.LatencyMS, turn.Metrics.RetrievedCount,
			turn.Metrics.ModelUsed, turn.Metrics.TokensUsed,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return conversation.Turn{}, err
	}
	return turn, nil
}

// GetTurns returns all turns for a conversation ordered by sequence.
// Unknown conversations yield an empty slice. Implements conversation.Store.
func (s *Store) GetTurns(ctx context.Context, conversationID string) ([]conversation.Turn, error) {
	turns := []conversation.Turn{}
	err := s.withRetry(ctx, "get turns", func() error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT turn_id, conversation_id, seq, role, content, created_at,
			        latency_ms, retrieved_count, model_used, tokens_used
			   FROM turns WHERE conversation_id = ? ORDER BY seq`,
			conversationID,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		turns = turns[:0]
		for rows.Next() {
			var (
				turn      conversation.Turn
				role      string
				createdAt int64
				tokens    sql.NullInt64
			)
			if err := rows.Scan(
				&turn.TurnID, &turn.ConversationID, &turn.Seq, &role,
				&turn.Content, &createdAt,
				&turn.Metrics.LatencyMS, &turn.Metrics.RetrievedCount,
				&turn.Metrics.ModelUsed, &tokens,
			); err != nil {
				return err
			}
			turn.Role = conversation.Role(role)
			turn.CreatedAt = time.UnixMilli(createdAt).UTC()
			if tokens.Valid {
				n := int(tokens.Int64)
				turn.Metrics.TokensUsed = &n
			}
			turns = append(turns, turn)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("loading turns for %s: %w", conversationID, err)
	}
	return turns, nil
}
