package memory

import (
	"math"
	"sort"
	"time"
)

// DefaultDecayTau is the default recency decay constant: one day.
const DefaultDecayTau = 86400 * time.Second

// FusionInput carries the per-source scores for one retrieval call. Items
// missing from a source default that source's score to 0.
type FusionInput struct {
	// Semantic maps item id to cosine similarity in [0,1], 1 = identical.
	Semantic map[string]float64

	// Lexical maps item id to term-overlap score in [0,1].
	Lexical map[string]float64

	// CreatedAt maps item id to its creation timestamp, used for the
	// recency signal. Items without a timestamp get recency 0.
	CreatedAt map[string]time.Time
}

// RecencyScore computes exp(-age/tau) for an item created at t, observed at
// now. Ages clamp at zero so clock skew never produces scores above 1.
func RecencyScore(now, createdAt time.Time, tau time.Duration) float64 {
	if tau <= 0 || createdAt.IsZero() {
		return 0
	}
	age := now.Sub(createdAt).Seconds()
	if age < 0 {
		age = 0
	}
	return math.Exp(-age / tau.Seconds())
}

// Fuse merges the per-source scores into one ranked candidate list:
//
//	combined = wSem*semantic + wLex*lexical + wRec*exp(-age/tau)
//
// Candidates sort by combined score descending; ties break by most recent
// CreatedAt, then by item id, so the ordering is total and deterministic.
// Empty inputs produce an empty list.
func Fuse(now time.Time, weights Weights, tau time.Duration, in FusionInput) []Candidate {
	if tau <= 0 {
		tau = DefaultDecayTau
	}

	ids := make(map[string]struct{})
	for id := range in.Semantic {
		ids[id] = struct{}{}
	}
	for id := range in.Lexical {
		ids[id] = struct{}{}
	}
	for id := range in.CreatedAt {
		ids[id] = struct{}{}
	}
	if len(ids) == 0 {
		return []Candidate{}
	}

	candidates := make([]Candidate, 0, len(ids))
	for id := range ids {
		sem := in.Semantic[id]
		lex := in.Lexical[id]
		createdAt := in.CreatedAt[id]
		rec := RecencyScore(now, createdAt, tau)

		candidates = append(candidates, Candidate{
			ItemID:        id,
			SemanticScore: sem,
			LexicalScore:  lex,
			RecencyScore:  rec,
			CombinedScore: weights.Semantic*sem + weights.Lexical*lex + weights.Recency*rec,
			CreatedAt:     createdAt,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ItemID < b.ItemID
	})

	return candidates
}
