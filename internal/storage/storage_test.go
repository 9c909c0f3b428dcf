package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/rememberd/internal/conversation"
	"github.com/fyrsmithlabs/rememberd/internal/feedback"
	"github.com/fyrsmithlabs/rememberd/internal/memory"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenCreatesDatabaseFile(t *testing.T) {
	store, err := Open(Config{Path: t.TempDir()}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestItemRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	item := memory.Item{
		ID:        "item-1",
		Text:      "the retro notes live in the shared drive",
		CreatedAt: created,
		Tags:      []string{"notes", "retro"},
	}
	require.NoError(t, store.SaveItem(ctx, item))

	got, err := store.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, item.Text, got.Text)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Equal(t, []string{"notes", "retro"}, got.Tags)

	_, err = store.GetItem(ctx, "missing")
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestUpdateItemTags(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveItem(ctx, memory.Item{
		ID: "item-1", Text: "x", CreatedAt: time.Now(),
	}))

	require.NoError(t, store.UpdateItemTags(ctx, "item-1", []string{"infra"}))
	got, err := store.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"infra"}, got.Tags)

	err = store.UpdateItemTags(ctx, "missing", []string{"x"})
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestGetItemsSkipsMissing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveItem(ctx, memory.Item{ID: "a", Text: "first", CreatedAt: time.Now()}))
	require.NoError(t, store.SaveItem(ctx, memory.Item{ID: "b", Text: "second", CreatedAt: time.Now()}))

	items, err := store.GetItems(ctx, []string{"b", "ghost", "a"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	// Order follows the requested ids.
	assert.Equal(t, "b", items[0].ID)
	assert.Equal(t, "a", items[1].ID)

	items, err = store.GetItems(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestListItemsPreservesInsertionOrder(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"z", "m", "a"} {
		require.NoError(t, store.SaveItem(ctx, memory.Item{ID: id, Text: id, CreatedAt: time.Now()}))
	}

	items, err := store.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "z", items[0].ID)
	assert.Equal(t, "m", items[1].ID)
	assert.Equal(t, "a", items[2].ID)
}

func TestAppendTurnAssignsSequentialSeq(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tokens := 17
	first, err := store.AppendTurn(ctx, conversation.Turn{
		ConversationID: "conv-1",
		Role:           conversation.RoleQuery,
		Content:        "how do I rotate certs",
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.TurnID)
	assert.Equal(t, int64(1), first.Seq)

	second, err := store.AppendTurn(ctx, conversation.Turn{
		ConversationID: "conv-1",
		Role:           conversation.RoleResponse,
		Content:        "use the rotation script",
		CreatedAt:      time.Now(),
		Metrics: conversation.Metrics{
			LatencyMS:      120,
			RetrievedCount: 3,
			ModelUsed:      "fast-model",
			TokensUsed:     &tokens,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Seq)

	// A different conversation starts its own sequence.
	other, err := store.AppendTurn(ctx, conversation.Turn{
		ConversationID: "conv-2",
		Role:           conversation.RoleQuery,
		Content:        "unrelated",
		CreatedAt:      time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), other.Seq)

	turns, err := store.GetTurns(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, conversation.RoleQuery, turns[0].Role)
	assert.Equal(t, conversation.RoleResponse, turns[1].Role)
	assert.Equal(t, int64(120), turns[1].Metrics.LatencyMS)
	assert.Equal(t, 3, turns[1].Metrics.RetrievedCount)
	assert.Equal(t, "fast-model", turns[1].Metrics.ModelUsed)
	require.NotNil(t, turns[1].Metrics.TokensUsed)
	assert.Equal(t, 17, *turns[1].Metrics.TokensUsed)
	assert.Nil(t, turns[0].Metrics.TokensUsed)
}

func TestGetTurnsUnknownConversationIsEmpty(t *testing.T) {
	store := openTestStore(t)

	turns, err := store.GetTurns(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestCreatePendingDuplicate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := feedback.Record{
		ResponseTurnID: "turn-1",
		ConversationID: "conv-1",
		State:          feedback.StatePending,
		OpenedAt:       time.Now(),
	}
	require.NoError(t, store.CreatePending(ctx, rec))
	err := store.CreatePending(ctx, rec)
	require.ErrorIs(t, err, feedback.ErrDuplicateFeedback)
}

func TestFinalizeIsConditionalOnPendingState(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	opened := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreatePending(ctx, feedback.Record{
		ResponseTurnID: "turn-1",
		ConversationID: "conv-1",
		State:          feedback.StatePending,
		OpenedAt:       opened,
	}))

	ms := int64(15000)
	content := "actually, wrong"
	finalizedAt := opened.Add(15 * time.Second)
	first := feedback.Record{
		ResponseTurnID:   "turn-1",
		ConversationID:   "conv-1",
		State:            feedback.StateFinalized,
		OpenedAt:         opened,
		Continued:        true,
		Corrected:        &content,
		TimeToNextMS:     &ms,
		SynthesisQuality: 0.7,
		FeedbackScore:    0.7,
		FinalizedAt:      &finalizedAt,
	}

	stored, applied, err := store.Finalize(ctx, first)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, feedback.StateFinalized, stored.State)
	require.NotNil(t, stored.Corrected)
	assert.Equal(t, content, *stored.Corrected)
	require.NotNil(t, stored.TimeToNextMS)
	assert.Equal(t, ms, *stored.TimeToNextMS)

	// A second finalize must not overwrite the first outcome.
	second := first
	second.SynthesisQuality = 0.1
	second.Corrected = nil
	stored, applied, err = store.Finalize(ctx, second)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.InDelta(t, 0.7, stored.SynthesisQuality, 1e-9)
	require.NotNil(t, stored.Corrected)
}

func TestPendingByConversation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.PendingByConversation(ctx, "conv-1")
	require.ErrorIs(t, err, feedback.ErrNotFound)

	require.NoError(t, store.CreatePending(ctx, feedback.Record{
		ResponseTurnID: "turn-1",
		ConversationID: "conv-1",
		State:          feedback.StatePending,
		OpenedAt:       time.Now(),
	}))

	rec, err := store.PendingByConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "turn-1", rec.ResponseTurnID)
}

func TestPendingOpenedBefore(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, store.CreatePending(ctx, feedback.Record{
			ResponseTurnID: id,
			ConversationID: "conv-" + id,
			State:          feedback.StatePending,
			OpenedAt:       base.Add(time.Duration(i) * time.Hour),
		}))
	}

	recs, err := store.PendingOpenedBefore(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "old", recs[0].ResponseTurnID)
	assert.Equal(t, "mid", recs[1].ResponseTurnID)
}
