// Package memory implements the hybrid retrieval core: a vector index for
// semantic K-nearest-neighbor search, a lexical text index, and score fusion
// that merges semantic, lexical, and recency signals into one ranked list.
//
// The indexes never call an embedding provider themselves. Callers embed text
// up front and hand the vectors in, which keeps the indexes deterministic and
// testable with fixed fixtures.
package memory
