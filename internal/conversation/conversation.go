// Package conversation defines the turn model for query/response exchanges
// and the storage contract for appending and retrieving them. Turns are
// append-only and ordered by a per-conversation sequence number; they are
// never mutated after creation.
package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role distinguishes the two turn kinds.
type Role string

const (
	// RoleQuery is a user query turn.
	RoleQuery Role = "query"
	// RoleResponse is a synthesized response turn.
	RoleResponse Role = "response"
)

// Metrics are objective measurements recorded with a turn.
type Metrics struct {
	LatencyMS      int64  `json:"latency_ms,omitempty"`
	RetrievedCount int    `json:"retrieved_count,omitempty"`
	ModelUsed      string `json:"model_used,omitempty"`
	TokensUsed     *int   `json:"tokens_used,omitempty"`
}

// Turn is one message within a conversation.
type Turn struct {
	TurnID         string    `json:"turn_id"`
	ConversationID string    `json:"conversation_id"`

	// Seq is the monotonically increasing position within the conversation,
	// assigned by the store on append.
	Seq int64 `json:"seq"`

	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Metrics   Metrics   `json:"metrics"`
}

// Store persists conversation turns.
//
// Appends for the same conversation must be externally serialized (the
// engine holds a per-conversation lock); appends across conversations are
// independent. Retrieving turns for an unknown conversation returns an empty
// slice, not an error: unknown conversations are simply new.
type Store interface {
	// AppendTurn persists the turn, assigning TurnID (when empty) and Seq.
	// The stored turn is returned.
	AppendTurn(ctx context.Context, turn Turn) (Turn, error)

	// GetTurns returns all turns for a conversation in ascending Seq order.
	GetTurns(ctx context.Context, conversationID string) ([]Turn, error)
}

// MintID creates a new conversation identifier. Each call mints a fresh
// conversation; minting is never deduplicated.
func MintID() string {
	return uuid.New().String()
}

// NewTurnID creates a new turn identifier.
func NewTurnID() string {
	return uuid.New().String()
}
