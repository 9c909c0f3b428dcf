package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config holds tunables for the tracker.
type Config struct {
	// AbandonThreshold is the pending window. Default: 600s.
	AbandonThreshold time.Duration `koanf:"abandon_threshold"`

	// CorrectionMarkers overrides the correction lexicon.
	CorrectionMarkers []string `koanf:"correction_markers"`

	// AckMarkers overrides the positive-acknowledgement lexicon.
	AckMarkers []string `koanf:"ack_markers"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.AbandonThreshold <= 0 {
		c.AbandonThreshold = DefaultAbandonThreshold
	}
}

// Tracker implements the pending -> finalized feedback state machine over a
// Store. All finalize operations are idempotent: repeating one on an
// already-finalized record returns the stored record without error, which
// keeps retries safe.
type Tracker struct {
	store   Store
	scoring Scoring
	config  Config
	logger  *zap.Logger
}

// NewTracker creates a Tracker.
func NewTracker(store Store, config Config, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	return &Tracker{
		store:   store,
		scoring: NewScoring(config.CorrectionMarkers, config.AckMarkers),
		config:  config,
		logger:  logger,
	}
}

// AbandonThreshold returns the configured pending window.
func (t *Tracker) AbandonThreshold() time.Duration {
	return t.config.AbandonThreshold
}

// OpenPending creates a pending record for a response turn. Opening twice
// for the same turn returns ErrDuplicateFeedback.
func (t *Tracker) OpenPending(ctx context.Context, responseTurnID, conversationID string, openedAt time.Time) (Record, error) {
	rec := Record{
		ResponseTurnID: responseTurnID,
		ConversationID: conversationID,
		State:          StatePending,
		OpenedAt:       openedAt,
	}
	if err := t.store.CreatePending(ctx, rec); err != nil {
		return Record{}, err
	}
	t.logger.Debug("opened pending feedback",
		zap.String("response_turn_id", responseTurnID),
		zap.String("conversation_id", conversationID),
	)
	return rec, nil
}

// FinalizeOnNextTurn closes a pending record using the next turn's arrival
// time and content. Elapsed times at or past the abandonment threshold take
// the abandoned path even though a follow-up eventually arrived. Finalizing
// an already-finalized record is a no-op returning the stored record.
func (t *Tracker) FinalizeOnNextTurn(ctx context.Context, responseTurnID, nextContent string, nextTurnAt time.Time) (Record, error) {
	rec, err := t.store.Get(ctx, responseTurnID)
	if err != nil {
		return Record{}, err
	}
	if rec.Finalized() {
		return rec, nil
	}

	elapsed := nextTurnAt.Sub(rec.OpenedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= t.config.AbandonThreshold {
		return t.finalizeAbandoned(ctx, rec, nextTurnAt)
	}

	quality, corrected := t.scoring.Quality(elapsed, nextContent)

	ms := elapsed.Milliseconds()
	rec.State = StateFinalized
	rec.Continued = true
	rec.Abandoned = false
	rec.TimeToNextMS = &ms
	rec.SynthesisQuality = quality
	rec.FeedbackScore = quality
	rec.FinalizedAt = &nextTurnAt
	if corrected {
		content := nextContent
		rec.Corrected = &content
	}

	stored, applied, err := t.store.Finalize(ctx, rec)
	if err != nil {
		return Record{}, fmt.Errorf("finalizing feedback for %s: %w", responseTurnID, err)
	}
	if applied {
		t.logger.Debug("finalized feedback from follow-up",
			zap.String("response_turn_id", responseTurnID),
			zap.Float64("synthesis_quality", quality),
			zap.Bool("corrected", corrected),
			zap.Int64("time_to_next_ms", ms),
		)
	}
	return stored, nil
}

// FinalizeAsAbandoned closes a pending record whose window has elapsed with
// no follow-up. Below the threshold it is a no-op returning the record still
// pending; on an already-finalized record it returns the stored record.
func (t *Tracker) FinalizeAsAbandoned(ctx context.Context, responseTurnID string, now time.Time) (Record, error) {
	rec, err := t.store.Get(ctx, responseTurnID)
	if err != nil {
		return Record{}, err
	}
	if rec.Finalized() {
		return rec, nil
	}
	if now.Sub(rec.OpenedAt) < t.config.AbandonThreshold {
		return rec, nil
	}
	return t.finalizeAbandoned(ctx, rec, now)
}

// FinalizePriorForConversation is the opportunistic close-out used when a new
// query arrives: if the conversation has a pending record, it is finalized
// from the new turn's timing and content (or as abandoned when past the
// threshold). Returns ErrNotFound wrapped as ok=false when nothing was
// pending.
func (t *Tracker) FinalizePriorForConversation(ctx context.Context, conversationID, nextContent string, nextTurnAt time.Time) (Record, bool, error) {
	pending, err := t.store.PendingByConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	rec, err := t.FinalizeOnNextTurn(ctx, pending.ResponseTurnID, nextContent, nextTurnAt)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Sweep finalizes every pending record whose window elapsed before now.
// It is safe to call at any time and from any access path; records finalized
// concurrently are skipped via the store's compare-and-set.
func (t *Tracker) Sweep(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-t.config.AbandonThreshold)
	pending, err := t.store.PendingOpenedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing pending feedback: %w", err)
	}

	swept := 0
	for _, rec := range pending {
		if _, err := t.finalizeAbandoned(ctx, rec, now); err != nil {
			return swept, err
		}
		swept++
	}
	if swept > 0 {
		t.logger.Info("abandonment sweep finalized records", zap.Int("count", swept))
	}
	return swept, nil
}

// Get returns the record for a response turn.
func (t *Tracker) Get(ctx context.Context, responseTurnID string) (Record, error) {
	return t.store.Get(ctx, responseTurnID)
}

func (t *Tracker) finalizeAbandoned(ctx context.Context, rec Record, now time.Time) (Record, error) {
	rec.State = StateFinalized
	rec.Continued = false
	rec.Abandoned = true
	rec.Corrected = nil
	rec.TimeToNextMS = nil
	rec.SynthesisQuality = qualityAbandon
	rec.FeedbackScore = qualityAbandon
	rec.FinalizedAt = &now

	stored, applied, err := t.store.Finalize(ctx, rec)
	if err != nil {
		return Record{}, fmt.Errorf("finalizing abandoned feedback for %s: %w", rec.ResponseTurnID, err)
	}
	if applied {
		t.logger.Debug("finalized feedback as abandoned",
			zap.String("response_turn_id", rec.ResponseTurnID),
		)
	}
	return stored, nil
}
