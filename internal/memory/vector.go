package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var vectorTracer = otel.Tracer("rememberd.memory.vector")

// VectorConfig holds configuration for the chromem-go backed vector index.
type VectorConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.local/share/rememberd/vectors"
	Path string `koanf:"path"`

	// Collection is the collection name. Default: "rememberd_items".
	Collection string `koanf:"collection"`

	// Dimension is the required embedding length. Every insert and query is
	// validated against it. Default: 1536 (text-embedding-3-small).
	Dimension int `koanf:"dimension"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`
}

// ApplyDefaults sets default values for unset fields.
func (c *VectorConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.local/share/rememberd/vectors"
	}
	if c.Collection == "" {
		c.Collection = "rememberd_items"
	}
	if c.Dimension == 0 {
		c.Dimension = 1536
	}
}

// Validate validates the configuration.
func (c *VectorConfig) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// VectorResult is one nearest-neighbor hit. Similarity is cosine similarity
// clamped to [0,1], higher is closer.
type VectorResult struct {
	ID         string
	Similarity float64
	Metadata   map[string]string
}

// VectorIndex stores items with fixed-dimension embeddings and answers
// K-nearest-neighbor queries. It is backed by a persistent chromem-go
// collection; embeddings are always precomputed by the caller.
//
// Ordering is deterministic: results sort by similarity descending, with ties
// broken by insertion order (earlier wins).
type VectorIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     VectorConfig
	logger     *zap.Logger

	mu   sync.Mutex
	seq  map[string]int
	next int
}

// NewVectorIndex opens (or creates) the vector index at the configured path.
func NewVectorIndex(config VectorConfig, logger *zap.Logger) (*VectorIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	collection, err := db.GetOrCreateCollection(config.Collection, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", config.Collection, err)
	}

	idx := &VectorIndex{
		db:         db,
		collection: collection,
		config:     config,
		logger:     logger,
		seq:        make(map[string]int),
	}

	logger.Info("vector index initialized",
		zap.String("path", path),
		zap.String("collection", config.Collection),
		zap.Int("dimension", config.Dimension),
		zap.Int("count", collection.Count()),
	)

	return idx, nil
}

// rejectEmbeddingFunc is installed as the collection's embedding function.
// Every code path in this package supplies precomputed embeddings, so a call
// into it means a caller forgot one.
func rejectEmbeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("vector index requires precomputed embeddings")
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Dimension returns the configured embedding dimension.
func (v *VectorIndex) Dimension() int {
	return v.config.Dimension
}

// Count returns the number of stored items.
func (v *VectorIndex) Count() int {
	return v.collection.Count()
}

// Insert stores an item embedding under the given id. The embedding length
// must equal the configured dimension; mismatches are rejected with
// ErrDimensionMismatch and nothing is written.
func (v *VectorIndex) Insert(ctx context.Context, id string, embedding []float32, metadata map[string]string) error {
	ctx, span := vectorTracer.Start(ctx, "VectorIndex.Insert")
	defer span.End()
	span.SetAttributes(attribute.String("item_id", id))

	if id == "" {
		return ErrEmptyID
	}
	if len(embedding) != v.config.Dimension {
		err := fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), v.config.Dimension)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	doc := chromem.Document{
		ID:        id,
		Content:   id, // content is tracked by the text index; chromem requires a non-empty document
		Metadata:  metadata,
		Embedding: embedding,
	}
	if err := v.collection.AddDocument(ctx, doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding document: %w", err)
	}

	v.mu.Lock()
	if _, ok := v.seq[id]; !ok {
		v.seq[id] = v.next
		v.next++
	}
	v.mu.Unlock()

	span.SetStatus(codes.Ok, "success")
	v.logger.Debug("inserted vector", zap.String("item_id", id))
	return nil
}

// Query returns up to k nearest items by cosine similarity, descending.
// The optional where map restricts results to items whose metadata matches
// every entry; filtering happens before the top-k cut. An empty index yields
// an empty result, not an error.
func (v *VectorIndex) Query(ctx context.Context, embedding []float32, k int, where map[string]string) ([]VectorResult, error) {
	ctx, span := vectorTracer.Start(ctx, "VectorIndex.Query")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(embedding) != v.config.Dimension {
		err := fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), v.config.Dimension)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// chromem requires nResults <= document count.
	count := v.collection.Count()
	if count == 0 {
		return []VectorResult{}, nil
	}
	if k > count {
		k = count
	}

	results, err := v.collection.QueryEmbedding(ctx, embedding, k, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	out := make([]VectorResult, len(results))
	for i, r := range results {
		out[i] = VectorResult{
			ID:         r.ID,
			Similarity: clampUnit(float64(r.Similarity)),
			Metadata:   r.Metadata,
		}
	}

	// Deterministic ordering: similarity descending, insertion order on ties.
	v.mu.Lock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return v.seq[out[i].ID] < v.seq[out[j].ID]
	})
	v.mu.Unlock()

	span.SetAttributes(attribute.Int("results_count", len(out)))
	span.SetStatus(codes.Ok, "success")
	return out, nil
}

// Warm seeds the insertion-order sequence from ids already persisted in the
// collection, in the order given. Called once at startup so tie-breaking
// stays stable across restarts; ids inserted later keep ordering after them.
func (v *VectorIndex) Warm(ids []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, id := range ids {
		if _, ok := v.seq[id]; !ok {
			v.seq[id] = v.next
			v.next++
		}
	}
}

// Delete removes an item from the index. Missing ids are not an error.
func (v *VectorIndex) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if err := v.collection.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	v.mu.Lock()
	delete(v.seq, id)
	v.mu.Unlock()
	return nil
}

// Close releases the index. chromem persists on write, so this is a no-op
// kept for interface symmetry.
func (v *VectorIndex) Close() error {
	v.logger.Info("vector index closed")
	return nil
}

func clampUnit(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
