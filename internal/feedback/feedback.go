// Package feedback tracks behavior-derived quality assessments of
// synthesized responses. A pending record opens when a response is produced
// and finalizes exactly once: either from the next turn's timing and content,
// or as abandoned when no follow-up arrives within the configured threshold.
//
// There is no background scheduler. Abandonment detection is opportunistic,
// triggered by the next access to the tracker (a new query for the
// conversation, or an explicit sweep). This mirrors the source system, which
// had no timer infrastructure either.
package feedback

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors.
var (
	// ErrDuplicateFeedback is returned when a pending record is opened twice
	// for the same response turn. This signals a caller bug and is never
	// silently overwritten.
	ErrDuplicateFeedback = errors.New("feedback record already exists for turn")

	// ErrNotFound is returned when no record exists for a response turn.
	ErrNotFound = errors.New("feedback record not found")
)

// State is the lifecycle state of a feedback record.
type State string

const (
	// StatePending means the response is awaiting a behavior signal.
	StatePending State = "pending"
	// StateFinalized is terminal; finalized records never reopen.
	StateFinalized State = "finalized"
)

// Record is the behavior-derived quality assessment for one response turn.
// At most one record exists per response turn, and it transitions
// pending -> finalized exactly once.
type Record struct {
	ResponseTurnID string `json:"response_turn_id"`
	ConversationID string `json:"conversation_id"`
	State          State  `json:"state"`

	// OpenedAt is when the response was produced and the record opened.
	OpenedAt time.Time `json:"opened_at"`

	// Continued reports whether a follow-up turn arrived before the
	// abandonment threshold.
	Continued bool `json:"continued"`

	// Abandoned reports that no follow-up arrived within the threshold.
	Abandoned bool `json:"abandoned"`

	// Corrected holds the follow-up content when it matched the correction
	// lexicon, nil otherwise.
	Corrected *string `json:"corrected,omitempty"`

	// TimeToNextMS is the elapsed milliseconds until the follow-up turn.
	// Nil on the abandoned path.
	TimeToNextMS *int64 `json:"time_to_next_ms,omitempty"`

	// SynthesisQuality is the per-turn quality heuristic in [0,1].
	SynthesisQuality float64 `json:"synthesis_quality"`

	// FeedbackScore currently mirrors SynthesisQuality. Kept as a separate
	// field so the two can be tuned independently later.
	FeedbackScore float64 `json:"feedback_score"`

	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

// Finalized reports whether the record reached its terminal state.
func (r *Record) Finalized() bool {
	return r.State == StateFinalized
}

// Store persists feedback records. Implementations must enforce the
// one-record-per-turn invariant and make finalization a single conditional
// transition.
type Store interface {
	// CreatePending inserts a new pending record. Returns
	// ErrDuplicateFeedback if one already exists for the turn.
	CreatePending(ctx context.Context, rec Record) error

	// Get returns the record for a response turn, or ErrNotFound.
	Get(ctx context.Context, responseTurnID string) (Record, error)

	// Finalize transitions a pending record to finalized. It must be a
	// compare-and-set on the pending state: if the record is already
	// finalized the stored record is returned unchanged with applied=false.
	Finalize(ctx context.Context, rec Record) (stored Record, applied bool, err error)

	// PendingByConversation returns the pending record for a conversation,
	// or ErrNotFound when none is open.
	PendingByConversation(ctx context.Context, conversationID string) (Record, error)

	// PendingOpenedBefore lists pending records opened at or before the
	// given cutoff, for the abandonment sweep.
	PendingOpenedBefore(ctx context.Context, cutoff time.Time) ([]Record, error)
}
