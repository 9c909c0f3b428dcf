package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/rememberd/internal/feedback"
)

// CreatePending inserts a new pending feedback record. Implements
// feedback.Store. A second insert for the same turn surfaces
// ErrDuplicateFeedback instead of overwriting: the invariant is one record
// per response turn, ever.
func (s *Store) CreatePending(ctx context.Context, rec feedback.Record) error {
	err := s.withRetry(ctx, "create pending feedback", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO feedback (response_turn_id, conversation_id, state, opened_at)
			 VALUES (?, ?, ?, ?)`,
			rec.ResponseTurnID, rec.ConversationID, string(feedback.StatePending),
			rec.OpenedAt.UnixMilli(),
		)
		return err
	})
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", feedback.ErrDuplicateFeedback, rec.ResponseTurnID)
	}
	return err
}

// Get returns the feedback record for a response turn. Implements
// feedback.Store.
func (s *Store) Get(ctx context.Context, responseTurnID string) (feedback.Record, error) {
	var rec feedback.Record
	err := s.withRetry(ctx, "get feedback", func() error {
		row := s.db.QueryRowContext(ctx,
			feedbackSelect+` WHERE response_turn_id = ?`, responseTurnID)
		got, err := scanFeedback(row)
		if err != nil {
			return err
		}
		rec = got
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return feedback.Record{}, fmt.Errorf("%w: %s", feedback.ErrNotFound, responseTurnID)
	}
	return rec, err
}

// Finalize transitions a pending record to finalized. The UPDATE is
// conditioned on the pending state, so a concurrent or repeated finalize
// leaves the first outcome untouched; the stored record is returned either
// way. Implements feedback.Store.
func (s *Store) Finalize(ctx context.Context, rec feedback.Record) (feedback.Record, bool, error) {
	var applied bool
	err := s.withRetry(ctx, "finalize feedback", func() error {
		var timeToNext any
		if rec.TimeToNextMS != nil {
			timeToNext = *rec.TimeToNextMS
		}
		var corrected any
		if rec.Corrected != nil {
			corrected = *rec.Corrected
		}
		var finalizedAt any
		if rec.FinalizedAt != nil {
			finalizedAt = rec.FinalizedAt.UnixMilli()
		}

		res, err := s.db.ExecContext(ctx,
			`UPDATE feedback
			    SET state = ?, continued = ?, abandoned = ?, corrected = ?,
			        time_to_next_ms = ?, synthesis_quality = ?, feedback_score = ?,
			        finalized_at = ?
			  WHERE response_turn_id = ? AND state = ?`,
			string(feedback.StateFinalized), rec.Continued, rec.Abandoned, corrected,
			timeToNext, rec.SynthesisQuality, rec.FeedbackScore, finalizedAt,
			rec.ResponseTurnID, string(feedback.StatePending),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		applied = n > 0
		return nil
	})
	if err != nil {
		return feedback.Record{}, false, err
	}

	stored, err := s.Get(ctx, rec.ResponseTurnID)
	if err != nil {
		return feedback.Record{}, false, err
	}
	return stored, applied, nil
}

// PendingByConversation returns the pending record for a conversation.
// Implements feedback.Store. At most one record can be pending per
// conversation because a new pending only opens after the prior one is
// finalized; the LIMIT is belt and braces.
func (s *Store) PendingByConversation(ctx context.Context, conversationID string) (feedback.Record, error) {
	var rec feedback.Record
	err := s.withRetry(ctx, "pending feedback by conversation", func() error {
		row := s.db.QueryRowContext(ctx,
			feedbackSelect+` WHERE conversation_id = ? AND state = ? ORDER BY opened_at DESC LIMIT 1`,
			conversationID, string(feedback.StatePending))
		got, err := scanFeedback(row)
		if err != nil {
			return err
		}
		rec = got
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return feedback.Record{}, fmt.Errorf("%w: no pending for conversation %s", feedback.ErrNotFound, conversationID)
	}
	return rec, err
}

// PendingOpenedBefore lists pending records opened at or before the cutoff.
// Implements feedback.Store.
func (s *Store) PendingOpenedBefore(ctx context.Context, cutoff time.Time) ([]feedback.Record, error) {
	var recs []feedback.Record
	err := s.withRetry(ctx, "list pending feedback", func() error {
		rows, err := s.db.QueryContext(ctx,
			feedbackSelect+` WHERE state = ? AND opened_at <= ? ORDER BY opened_at`,
			string(feedback.StatePending), cutoff.UnixMilli())
		if err != nil {
			return err
		}
		defer rows.Close()

		recs = recs[:0]
		for rows.Next() {
			rec, err := scanFeedback(rows)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return rows.Err()
	})
	return recs, err
}

const feedbackSelect = `SELECT response_turn_id, conversation_id, state, opened_at,
	continued, abandoned, corrected, time_to_next_ms,
	synthesis_quality, feedback_score, finalized_at
	FROM feedback`

func scanFeedback(row rowScanner) (feedback.Record, error) {
	var (
		rec         feedback.Record
		state       string
		openedAt    int64
		corrected   sql.NullString
		timeToNext  sql.NullInt64
		finalizedAt sql.NullInt64
	)
	if err := row.Scan(
		&rec.ResponseTurnID, &rec.ConversationID, &state, &openedAt,
		&rec.Continued, &rec.Abandoned, &corrected, &timeToNext,
		&rec.SynthesisQuality, &rec.FeedbackScore, &finalizedAt,
	); err != nil {
		return feedback.Record{}, err
	}
	rec.State = feedback.State(state)
	rec.OpenedAt = time.UnixMilli(openedAt).UTC()
	if corrected.Valid {
		s := corrected.String
		rec.Corrected = &s
	}
	if timeToNext.Valid {
		ms := timeToNext.Int64
		rec.TimeToNextMS = &ms
	}
	if finalizedAt.Valid {
		t := time.UnixMilli(finalizedAt.Int64).UTC()
		rec.FinalizedAt = &t
	}
	return rec, nil
}

// isUniqueViolation reports whether an error is a primary-key/unique
// constraint failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "constraint")
}
