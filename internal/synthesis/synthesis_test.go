package synthesis

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/rememberd/internal/memory"
)

func itemAt(id, text string, created time.Time) memory.Item {
	return memory.Item{ID: id, Text: text, CreatedAt: created}
}

func TestBuildContextOrdersOldestFirst(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	items := []memory.Item{
		itemAt("b", "second note", base.Add(time.Hour)),
		itemAt("a", "first note", base),
		itemAt("c", "third note", base.Add(2*time.Hour)),
	}

	out := buildContext(items)
	posA := strings.Index(out, "first note")
	posB := strings.Index(out, "second note")
	posC := strings.Index(out, "third note")
	require.GreaterOrEqual(t, posA, 0)
	assert.Less(t, posA, posB)
	assert.Less(t, posB, posC)
}

func TestBuildContextTruncationKeepsNewest(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	// Each entry is ~500 tokens, so only two fit in the 1000-token budget.
	filler := strings.Repeat("x", 2000-100)
	items := []memory.Item{
		itemAt("old", "OLD"+filler, base),
		itemAt("mid", "MID"+filler, base.Add(time.Hour)),
		itemAt("new", "NEW"+filler, base.Add(2*time.Hour)),
	}

	out := buildContext(items)
	assert.NotContains(t, out, "OLD")
	assert.Contains(t, out, "MID")
	assert.Contains(t, out, "NEW")
	// Survivors still render oldest-first.
	assert.Less(t, strings.Index(out, "MID"), strings.Index(out, "NEW"))
}

func TestBuildContextEmptyItems(t *testing.T) {
	assert.Equal(t, "", buildContext(nil))
}

func TestSystemPromptSelection(t *testing.T) {
	assert.Equal(t, synthesisPrompt, systemPrompt(StyleDefault))
	assert.Equal(t, synthesisPrompt, systemPrompt(StyleDeep))
	assert.Equal(t, chronologicalPrompt, systemPrompt(StyleChronological))
	assert.Equal(t, chronologicalPrompt, systemPrompt("Chronological"))
}

func TestUserMessageContainsQueryAndMemories(t *testing.T) {
	items := []memory.Item{itemAt("a", "deploy happens on fridays", time.Now())}
	msg := userMessage("when do we deploy", items)
	assert.Contains(t, msg, "Original Query: when do we deploy")
	assert.Contains(t, msg, "deploy happens on fridays")
	assert.Contains(t, msg, "Memory ID: a")
}

func TestModelForStyle(t *testing.T) {
	p := &OpenAIProvider{config: OpenAIConfig{
		ModelFast: "fast-model",
		ModelDeep: "deep-model",
	}}

	assert.Equal(t, "fast-model", p.modelFor(StyleDefault))
	assert.Equal(t, "fast-model", p.modelFor(StyleChronological))
	assert.Equal(t, "deep-model", p.modelFor(StyleDeep))
	assert.Equal(t, "deep-model", p.modelFor("DEEP"))
}

func TestOpenAIConfigDefaultsAndValidation(t *testing.T) {
	cfg := OpenAIConfig{APIKey: "key"}
	cfg.ApplyDefaults()
	assert.Equal(t, "llama-3.1-8b-instant", cfg.ModelFast)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.ModelDeep)
	assert.InDelta(t, 0.3, float64(cfg.Temperature), 1e-6)
	assert.Equal(t, 1500, cfg.MaxTokens)
	require.NoError(t, cfg.Validate())

	missing := OpenAIConfig{}
	missing.ApplyDefaults()
	require.ErrorIs(t, missing.Validate(), ErrInvalidConfig)
}
