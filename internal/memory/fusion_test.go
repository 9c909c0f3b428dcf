package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuseEmptyInputs(t *testing.T) {
	got := Fuse(time.Now(), DefaultWeights(), DefaultDecayTau, FusionInput{})
	assert.Empty(t, got)
}

func TestFuseCombinedScore(t *testing.T) {
	now := time.Unix(1000, 0)
	weights := Weights{Semantic: 0.6, Lexical: 0.25, Recency: 0.15}

	got := Fuse(now, weights, DefaultDecayTau, FusionInput{
		Semantic:  map[string]float64{"a": 1.0},
		Lexical:   map[string]float64{"a": 0.5},
		CreatedAt: map[string]time.Time{"a": now},
	})

	require.Len(t, got, 1)
	// Age 0 gives recency 1.0.
	assert.InDelta(t, 0.6*1.0+0.25*0.5+0.15*1.0, got[0].CombinedScore, 1e-9)
	assert.Equal(t, 1.0, got[0].SemanticScore)
	assert.Equal(t, 0.5, got[0].LexicalScore)
	assert.InDelta(t, 1.0, got[0].RecencyScore, 1e-9)
}

func TestFuseMissingSourcesDefaultToZero(t *testing.T) {
	now := time.Unix(1000, 0)
	got := Fuse(now, Weights{Semantic: 1, Lexical: 1, Recency: 1}, DefaultDecayTau, FusionInput{
		Lexical: map[string]float64{"lex-only": 0.8},
	})

	require.Len(t, got, 1)
	assert.Equal(t, 0.0, got[0].SemanticScore)
	assert.Equal(t, 0.0, got[0].RecencyScore, "no timestamp means no recency credit")
	assert.InDelta(t, 0.8, got[0].CombinedScore, 1e-9)
}

func TestFuseHybridRanking(t *testing.T) {
	// A "cats are great" at t=0, B "dogs are great" at t=100. A query close
	// to A's embedding with text "cats" must rank A above B even though B is
	// newer.
	base := time.Unix(0, 0)
	now := base.Add(200 * time.Second)
	weights := Weights{Semantic: 0.6, Lexical: 0.25, Recency: 0.15}

	got := Fuse(now, weights, DefaultDecayTau, FusionInput{
		Semantic: map[string]float64{"A": 0.95, "B": 0.55},
		Lexical:  map[string]float64{"A": 1.0 / 3.0},
		CreatedAt: map[string]time.Time{
			"A": base,
			"B": base.Add(100 * time.Second),
		},
	})

	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].ItemID)
	assert.Equal(t, "B", got[1].ItemID)
}

func TestFuseSemanticWeightMonotonicity(t *testing.T) {
	// Increasing the semantic weight never drops the item with the higher
	// semantic score below one with equal lexical/recency scores.
	now := time.Unix(1000, 0)
	created := map[string]time.Time{"hi": now, "lo": now}
	in := FusionInput{
		Semantic:  map[string]float64{"hi": 0.9, "lo": 0.4},
		Lexical:   map[string]float64{"hi": 0.5, "lo": 0.5},
		CreatedAt: created,
	}

	for _, wSem := range []float64{0.1, 0.3, 0.6, 0.9, 2.0} {
		got := Fuse(now, Weights{Semantic: wSem, Lexical: 0.25, Recency: 0.15}, DefaultDecayTau, in)
		require.Len(t, got, 2)
		assert.Equal(t, "hi", got[0].ItemID, "wSem=%f", wSem)
	}
}

func TestRecencyScoreStrictlyOrdersByAge(t *testing.T) {
	now := time.Unix(10000, 0)
	older := now.Add(-500 * time.Second)
	newer := now.Add(-100 * time.Second)

	for _, tau := range []time.Duration{time.Second, time.Minute, DefaultDecayTau, 30 * 24 * time.Hour} {
		so := RecencyScore(now, older, tau)
		sn := RecencyScore(now, newer, tau)
		assert.Greater(t, sn, so, "tau=%s", tau)
	}
}

func TestRecencyScoreClampsFutureTimestamps(t *testing.T) {
	now := time.Unix(1000, 0)
	score := RecencyScore(now, now.Add(time.Hour), DefaultDecayTau)
	assert.Equal(t, 1.0, score)
}

func TestFuseTieBreaking(t *testing.T) {
	now := time.Unix(1000, 0)
	older := now.Add(-10 * time.Second)

	// Same combined score via identical inputs; newer item wins, then id order.
	got := Fuse(now, Weights{Semantic: 1}, DefaultDecayTau, FusionInput{
		Semantic: map[string]float64{"b": 0.5, "a": 0.5, "c": 0.5},
		CreatedAt: map[string]time.Time{
			"b": now,
			"a": older,
			"c": older,
		},
	})

	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].ItemID, "most recent wins the tie")
	assert.Equal(t, "a", got[1].ItemID, "equal timestamps fall back to id order")
	assert.Equal(t, "c", got[2].ItemID)
}
