// Package synthesis turns a query plus retrieved memory items into a
// natural-language answer via a chat-completion provider. The provider is
// pluggable; the OpenAI implementation also covers Groq and other
// OpenAI-compatible endpoints through a configurable base URL.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fyrsmithlabs/rememberd/internal/memory"
)

// Sentinel errors.
var (
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrProviderFailed wraps upstream API failures with a generic reason.
	ErrProviderFailed = errors.New("synthesis provider failed")
)

// Style selects the synthesis mode.
const (
	// StyleDefault is a concise direct answer using the fast model.
	StyleDefault = ""
	// StyleDeep routes to the deeper (slower) model.
	StyleDeep = "deep"
	// StyleChronological presents the answer in timeline order.
	StyleChronological = "chronological"
)

// Options adjusts one synthesis call.
type Options struct {
	// MaxTokens caps the completion length. 0 uses the provider default.
	MaxTokens int

	// Style is one of the Style constants.
	Style string
}

// Result is a synthesized answer with accounting metadata.
type Result struct {
	Text       string
	ModelUsed  string
	TokensUsed *int
}

// Provider synthesizes a response from a query and its retrieved evidence.
// An empty item slice is valid: the provider answers from an empty context
// block (typically stating that nothing relevant was found).
type Provider interface {
	Synthesize(ctx context.Context, query string, items []memory.Item, opts Options) (Result, error)
}

// Approximate context budget: 4 characters per token, 1000 tokens of
// retrieved memories.
const (
	contextTokenBudget = 1000
	charsPerToken      = 4
)

const synthesisPrompt = "You are a helpful assistant that synthesizes information from retrieved " +
	"memories to answer a query. Do not include the raw memories in your response, only the " +
	"synthesized answer. Be concise and directly answer the query based on the provided context."

const chronologicalPrompt = "You are a helpful assistant that synthesizes information from retrieved " +
	"memories to answer a query. Present the information in chronological order based on the " +
	"creation time of the memories. Do not include the raw memories in your response, only the " +
	"synthesized answer. Be concise and directly answer the query based on the provided context."

// systemPrompt returns the system message for a style.
func systemPrompt(style string) string {
	if strings.EqualFold(style, StyleChronological) {
		return chronologicalPrompt
	}
	return synthesisPrompt
}

// buildContext renders items oldest-first into a context block under the
// token budget. When the budget forces a cut, the newest items win: the
// block is assembled newest-first and then reversed, so recent context
// survives truncation.
func buildContext(items []memory.Item) string {
	sorted := make([]memory.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var kept []string
	used := 0
	for i := len(sorted) - 1; i >= 0; i-- {
		entry := fmt.Sprintf("\nMemory ID: %s\nContent: %s\nCreated At: %s",
			sorted[i].ID, sorted[i].Text, sorted[i].CreatedAt.Format(time.RFC3339))
		tokens := len(entry) / charsPerToken
		if used+tokens > contextTokenBudget {
			break
		}
		kept = append(kept, entry)
		used += tokens
	}

	// kept is newest-first; reverse to oldest-first.
	var b strings.Builder
	for i := len(kept) - 1; i >= 0; i-- {
		b.WriteString(kept[i])
	}
	return b.String()
}

// userMessage renders the full user prompt for a synthesis call.
func userMessage(query string, items []memory.Item) string {
	return fmt.Sprintf("Original Query: %s\n\nRetrieved Memories:\n%s\n\nSynthesized Answer:",
		query, buildContext(items))
}
