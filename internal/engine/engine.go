// Package engine orchestrates the remember pipeline: hybrid retrieval over
// the vector and text indexes, score fusion, synthesis, conversation
// persistence, and the behavior-feedback loop that closes out the previous
// response whenever a new query arrives.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/rememberd/internal/conversation"
	"github.com/fyrsmithlabs/rememberd/internal/embeddings"
	"github.com/fyrsmithlabs/rememberd/internal/feedback"
	"github.com/fyrsmithlabs/rememberd/internal/memory"
	"github.com/fyrsmithlabs/rememberd/internal/synthesis"
)

var tracer = otel.Tracer("rememberd.engine")

// DefaultTopK is the number of candidates handed to synthesis when the
// caller does not specify one.
const DefaultTopK = 5

// ItemStore persists items durably. The vector and text indexes are derived
// views; the item store is the source of truth for item text and tags.
type ItemStore interface {
	SaveItem(ctx context.Context, item memory.Item) error
	GetItems(ctx context.Context, ids []string) ([]memory.Item, error)
	ListItems(ctx context.Context) ([]memory.Item, error)
	UpdateItemTags(ctx context.Context, id string, tags []string) error
}

// Config holds engine tunables.
type Config struct {
	// TopK is the default candidate count. Default: 5.
	TopK int `koanf:"top_k"`

	// Weights are the default score-fusion weights.
	Weights memory.Weights `koanf:"weights"`

	// DecayTau is the recency decay constant. Default: 24h.
	DecayTau time.Duration `koanf:"decay_tau"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.Weights.IsZero() {
		c.Weights = memory.DefaultWeights()
	}
	if c.DecayTau <= 0 {
		c.DecayTau = memory.DefaultDecayTau
	}
}

// Engine wires the retrieval core to its providers and stores. Construct
// one with New and share it; all methods are safe for concurrent use.
type Engine struct {
	config   Config
	vector   *memory.VectorIndex
	text     *memory.TextIndex
	items    ItemStore
	turns    conversation.Store
	tracker  *feedback.Tracker
	embedder embeddings.Provider
	synth    synthesis.Provider
	logger   *zap.Logger

	convLocks *conversationLocks

	// indexMu makes the vector+text insert pair atomic with respect to
	// retrieval: an item is never visible in only one index.
	indexMu sync.RWMutex

	// now is swappable for tests.
	now func() time.Time
}

// New creates an Engine and rebuilds the in-memory text index from the item
// store.
func New(
	config Config,
	vector *memory.VectorIndex,
	text *memory.TextIndex,
	items ItemStore,
	turns conversation.Store,
	tracker *feedback.Tracker,
	embedder embeddings.Provider,
	synth synthesis.Provider,
	logger *zap.Logger,
) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	if vector.Dimension() != embedder.Dimension() {
		return nil, fmt.Errorf("vector index dimension %d does not match embedding provider dimension %d",
			vector.Dimension(), embedder.Dimension())
	}

	e := &Engine{
		config:    config,
		vector:    vector,
		text:      text,
		items:     items,
		turns:     turns,
		tracker:   tracker,
		embedder:  embedder,
		synth:     synth,
		logger:    logger,
		convLocks: newConversationLocks(),
		now:       time.Now,
	}

	if err := e.rebuildIndexes(context.Background()); err != nil {
		return nil, fmt.Errorf("rebuilding indexes: %w", err)
	}
	return e, nil
}

// rebuildIndexes reloads every stored item into the in-memory text index and
// seeds the vector index's insertion order, so tie-breaking stays
// deterministic across restarts.
func (e *Engine) rebuildIndexes(ctx context.Context) error {
	items, err := e.items.ListItems(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, len(items))
	for i, item := range items {
		if err := e.text.Insert(item.ID, item.Text); err != nil {
			return err
		}
		ids[i] = item.ID
	}
	e.vector.Warm(ids)
	if len(items) > 0 {
		e.logger.Info("indexes rebuilt", zap.Int("items", len(items)))
	}
	return nil
}

// Request is one remember call.
type Request struct {
	// ConversationID continues an existing conversation. Empty mints a new
	// one.
	ConversationID string

	// Query is the user's question.
	Query string

	// TopK caps retrieved candidates. 0 uses the configured default.
	TopK int

	// Weights overrides the fusion weights for this call.
	Weights *memory.Weights

	// Style selects the synthesis style ("", "deep", "chronological").
	Style string

	// Tags are attached to the item ingested from this query.
	Tags []string
}

// Response is the result of a remember call.
type Response struct {
	ConversationID    string   `json:"conversation_id"`
	ResponseTurnID    string   `json:"response_turn_id"`
	ResponseText      string   `json:"response_text"`
	ModelUsed         string   `json:"model_used"`
	TokensUsed        *int     `json:"tokens_used,omitempty"`
	RetrievedEvidence []string `json:"retrieved_evidence"`
}

// Remember answers a query from memory. The previous pending feedback for
// the conversation (if any) is finalized first, using this query's timing
// and content as the behavior signal; then retrieval, synthesis, and
// persistence run, and a fresh pending feedback record opens for the new
// response. A failed synthesis appends no response turn and opens no
// feedback.
func (e *Engine) Remember(ctx context.Context, req Request) (Response, error) {
	ctx, span := tracer.Start(ctx, "Engine.Remember")
	defer span.End()

	if req.Query == "" {
		return Response{}, fmt.Errorf("query cannot be empty")
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = conversation.MintID()
	}
	span.SetAttributes(attribute.String("conversation_id", conversationID))

	unlock := e.convLocks.acquire(conversationID)
	defer unlock()

	now := e.now()

	// Close out the previous response's pending feedback before anything
	// else. This is also where overdue abandonment is detected; there is no
	// timer doing it in the background.
	if _, finalized, err := e.tracker.FinalizePriorForConversation(ctx, conversationID, req.Query, now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, stageErr(StageStorage, err)
	} else if finalized {
		e.logger.Debug("finalized prior feedback", zap.String("conversation_id", conversationID))
	}

	queryTurn, err := e.turns.AppendTurn(ctx, conversation.Turn{
		ConversationID: conversationID,
		Role:           conversation.RoleQuery,
		Content:        req.Query,
		CreatedAt:      now,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, stageErr(StageStorage, err)
	}

	embedding, err := e.embedder.Embed(ctx, req.Query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, stageErr(StageEmbedding, err)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = e.config.TopK
	}
	weights := e.config.Weights
	if req.Weights != nil {
		weights = *req.Weights
	}

	start := e.now()
	candidates, err := e.retrieve(ctx, req.Query, embedding, topK, weights)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, stageErr(StageRetrieval, err)
	}

	evidence := make([]string, len(candidates))
	for i, c := range candidates {
		evidence[i] = c.ItemID
	}
	items, err := e.items.GetItems(ctx, evidence)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, stageErr(StageRetrieval, err)
	}

	synthesized, err := e.synth.Synthesize(ctx, req.Query, items, synthesis.Options{Style: req.Style})
	if err != nil {
		// No response turn is appended for a failed synthesis; the query
		// turn stands alone and the next call starts clean.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, stageErr(StageSynthesis, err)
	}
	latency := e.now().Sub(start)

	responseTurn, err := e.turns.AppendTurn(ctx, conversation.Turn{
		ConversationID: conversationID,
		Role:           conversation.RoleResponse,
		Content:        synthesized.Text,
		CreatedAt:      e.now(),
		Metrics: conversation.Metrics{
			LatencyMS:      latency.Milliseconds(),
			RetrievedCount: len(candidates),
			ModelUsed:      synthesized.ModelUsed,
			TokensUsed:     synthesized.TokensUsed,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, stageErr(StageStorage, err)
	}

	// The pending record opens only after the response turn is durably
	// stored, so a cancelled call never leaves feedback state behind.
	if _, err := e.tracker.OpenPending(ctx, responseTurn.TurnID, conversationID, responseTurn.CreatedAt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, stageErr(StageStorage, err)
	}

	// Ingest the query as a new memory item, reusing its embedding. The
	// response already succeeded, so ingestion failure degrades to a warning
	// rather than failing the call.
	if err := e.ingest(ctx, memory.Item{
		ID:        queryTurn.TurnID,
		Text:      req.Query,
		Embedding: embedding,
		CreatedAt: now,
		Tags:      req.Tags,
	}); err != nil {
		e.logger.Warn("failed to ingest query as memory item",
			zap.String("item_id", queryTurn.TurnID),
			zap.Error(err),
		)
	}

	span.SetAttributes(
		attribute.Int("retrieved_count", len(candidates)),
		attribute.String("model_used", synthesized.ModelUsed),
	)
	span.SetStatus(codes.Ok, "success")

	e.logger.Info("remember completed",
		zap.String("conversation_id", conversationID),
		zap.String("response_turn_id", responseTurn.TurnID),
		zap.Int("retrieved_count", len(candidates)),
		zap.Int64("latency_ms", latency.Milliseconds()),
	)

	return Response{
		ConversationID:    conversationID,
		ResponseTurnID:    responseTurn.TurnID,
		ResponseText:      synthesized.Text,
		ModelUsed:         synthesized.ModelUsed,
		TokensUsed:        synthesized.TokensUsed,
		RetrievedEvidence: evidence,
	}, nil
}

// retrieve runs the vector and text queries concurrently and fuses the
// results. Empty indexes produce an empty candidate list, which is a valid
// result rather than an error.
func (e *Engine) retrieve(ctx context.Context, query string, embedding []float32, topK int, weights memory.Weights) ([]memory.Candidate, error) {
	e.indexMu.RLock()
	defer e.indexMu.RUnlock()

	var (
		vectorResults []memory.VectorResult
		textResults   []memory.TextResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results, err := e.vector.Query(gctx, embedding, topK, nil)
		if err != nil {
			return err
		}
		vectorResults = results
		return nil
	})
	g.Go(func() error {
		textResults = e.text.Query(query, topK)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in := memory.FusionInput{
		Semantic:  make(map[string]float64, len(vectorResults)),
		Lexical:   make(map[string]float64, len(textResults)),
		CreatedAt: make(map[string]time.Time),
	}
	for _, r := range vectorResults {
		in.Semantic[r.ID] = r.Similarity
	}
	for _, r := range textResults {
		in.Lexical[r.ID] = r.Score
	}

	ids := make([]string, 0, len(in.Semantic)+len(in.Lexical))
	seen := make(map[string]struct{})
	for _, r := range vectorResults {
		ids = append(ids, r.ID)
		seen[r.ID] = struct{}{}
	}
	for _, r := range textResults {
		if _, ok := seen[r.ID]; !ok {
			ids = append(ids, r.ID)
		}
	}

	items, err := e.items.GetItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		in.CreatedAt[item.ID] = item.CreatedAt
	}

	candidates := memory.Fuse(e.now(), weights, e.config.DecayTau, in)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// Write ingests text directly as a memory item, bypassing the conversation
// flow. Returns the new item's id.
func (e *Engine) Write(ctx context.Context, text string, tags []string) (string, error) {
	ctx, span := tracer.Start(ctx, "Engine.Write")
	defer span.End()

	if text == "" {
		return "", fmt.Errorf("text cannot be empty")
	}

	embedding, err := e.embedder.Embed(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", stageErr(StageEmbedding, err)
	}

	item := memory.Item{
		ID:        conversation.NewTurnID(),
		Text:      text,
		Embedding: embedding,
		CreatedAt: e.now(),
		Tags:      tags,
	}
	if err := e.ingest(ctx, item); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", stageErr(StageStorage, err)
	}

	span.SetStatus(codes.Ok, "success")
	e.logger.Info("memory item written", zap.String("item_id", item.ID))
	return item.ID, nil
}

// ingest persists an item and inserts it into both indexes. The index pair
// is written under the write lock so retrieval never sees a half-inserted
// item.
func (e *Engine) ingest(ctx context.Context, item memory.Item) error {
	if err := e.items.SaveItem(ctx, item); err != nil {
		return fmt.Errorf("saving item: %w", err)
	}

	e.indexMu.Lock()
	defer e.indexMu.Unlock()

	if err := e.vector.Insert(ctx, item.ID, item.Embedding, tagMetadata(item.Tags)); err != nil {
		return fmt.Errorf("inserting vector: %w", err)
	}
	if err := e.text.Insert(item.ID, item.Text); err != nil {
		return fmt.Errorf("inserting text: %w", err)
	}
	return nil
}

// Feedback records explicit user feedback for the conversation's pending
// response and finalizes it. The feedback text is also appended as a query
// turn so the transcript stays complete.
func (e *Engine) Feedback(ctx context.Context, conversationID, text string) (feedback.Record, error) {
	ctx, span := tracer.Start(ctx, "Engine.Feedback")
	defer span.End()

	if conversationID == "" {
		return feedback.Record{}, fmt.Errorf("conversation_id is required for feedback")
	}

	unlock := e.convLocks.acquire(conversationID)
	defer unlock()

	now := e.now()
	rec, finalized, err := e.tracker.FinalizePriorForConversation(ctx, conversationID, text, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return feedback.Record{}, stageErr(StageStorage, err)
	}
	if !finalized {
		return feedback.Record{}, fmt.Errorf("%w: no pending response for conversation %s",
			feedback.ErrNotFound, conversationID)
	}

	if _, err := e.turns.AppendTurn(ctx, conversation.Turn{
		ConversationID: conversationID,
		Role:           conversation.RoleQuery,
		Content:        text,
		CreatedAt:      now,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return feedback.Record{}, stageErr(StageStorage, err)
	}

	span.SetStatus(codes.Ok, "success")
	return rec, nil
}

// Turns returns a conversation's transcript in order. Unknown conversations
// return an empty slice.
func (e *Engine) Turns(ctx context.Context, conversationID string) ([]conversation.Turn, error) {
	return e.turns.GetTurns(ctx, conversationID)
}

// Sweep finalizes all pending feedback records past the abandonment
// threshold. Returns the number finalized.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	return e.tracker.Sweep(ctx, e.now())
}

// tagMetadata converts item tags to the metadata map used for vector
// filtering.
func tagMetadata(tags []string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	meta := make(map[string]string, len(tags))
	for _, tag := range tags {
		meta["tag:"+tag] = "true"
	}
	return meta
}
