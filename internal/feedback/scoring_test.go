package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQualityTiers(t *testing.T) {
	s := NewScoring(nil, nil)

	tests := []struct {
		name    string
		elapsed time.Duration
		content string
		want    float64
		wantCor bool
	}{
		{"fast neutral", 10 * time.Second, "what about prod", 0.9, false},
		{"fast boundary is moderate", 30 * time.Second, "next", 0.7, false},
		{"moderate neutral", 60 * time.Second, "next", 0.7, false},
		{"moderate boundary is slow", 120 * time.Second, "next", 0.5, false},
		{"slow neutral", 500 * time.Second, "next", 0.5, false},
		{"fast correction", 10 * time.Second, "actually, that's wrong", 0.7, true},
		{"moderate correction", 50 * time.Second, "no, that's not right", 0.5, true},
		{"slow correction floors", 300 * time.Second, "incorrect", 0.3, true},
		{"fast ack", 10 * time.Second, "thanks, and also", 1.0, false},
		{"ack caps at one", 5 * time.Second, "perfect, thank you", 1.0, false},
		{"slow ack", 300 * time.Second, "got it, next question", 0.6, false},
		{"correction and ack", 50 * time.Second, "thanks but that's not it", 0.6, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, corrected := s.Quality(tt.elapsed, tt.content)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.Equal(t, tt.wantCor, corrected)
		})
	}
}

func TestCorrectionDetectionIsCaseInsensitive(t *testing.T) {
	s := NewScoring(nil, nil)

	assert.True(t, s.IsCorrection("Actually, it was Tuesday"))
	assert.True(t, s.IsCorrection("WRONG"))
	assert.False(t, s.IsCorrection("tell me more"))
	// "no" only counts with the comma, so "normal" style words do not trip it.
	assert.False(t, s.IsCorrection("normal operation resumed"))
}

func TestCustomLexicons(t *testing.T) {
	s := NewScoring([]string{"nope"}, []string{"cheers"})

	assert.True(t, s.IsCorrection("nope, other way"))
	assert.False(t, s.IsCorrection("actually, that's wrong"))
	assert.True(t, s.IsAcknowledgement("cheers"))
	assert.False(t, s.IsAcknowledgement("thanks"))
}
