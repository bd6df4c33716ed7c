package storage

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/dshills/funcsim-mcp/pkg/types"
)

// searchFunctions performs nearest-neighbour search over stored signatures
func searchFunctions(ctx context.Context, db *sql.DB, sig types.Signature, k int) ([]types.MatchCandidate, error) {
	if k <= 0 || sig.FeatureCount() == 0 {
		return []types.MatchCandidate{}, nil
	}
	// Use SQL-side scoring when sqlite-vec is available
	if VectorExtensionAvailable {
		return searchFunctionsOptimized(ctx, db, sig, k)
	}
	// Fall back to Go-based computation for purego builds
	return searchFunctionsFallback(ctx, db, sig, k)
}

// searchFunctionsOptimized uses sqlite-vec to score and order signatures in SQL
func searchFunctionsOptimized(ctx context.Context, db *sql.DB, sig types.Signature, k int) ([]types.MatchCandidate, error) {
	queryBlob, err := vectorBlob(sig.Vector())
	if err != nil {
		return nil, fmt.Errorf("failed to encode query vector: %w", err)
	}
	qf := sig.FeatureCount()

	// vec_distance_cosine returns distance (lower is better); convert to a
	// similarity clamped to [0, 1] and derive confidence from feature agreement
	query := `
		SELECT md5, exe_name, path, fn_name, address, similarity,
		       similarity * MIN(feature_count, ?) * 1.0 / MAX(feature_count, ?) AS confidence
		FROM (
			SELECT
				COALESCE(e.md5, '') AS md5,
				e.name AS exe_name,
				e.path AS path,
				f.name AS fn_name,
				f.address AS address,
				f.feature_count AS feature_count,
				MAX(0.0, MIN(1.0, 1.0 - vec_distance_cosine(f.vector, ?))) AS similarity
			FROM functions f
			INNER JOIN executables e ON e.id = f.executable_id
			WHERE f.dimension = ? AND f.feature_count > 0
		)
		ORDER BY similarity DESC, confidence DESC, path, fn_name, address
		LIMIT ?
	`
	rows, err := db.QueryContext(ctx, query, qf, qf, queryBlob, sig.Dimension(), k)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	top := NewTopK(k)
	for rows.Next() {
		var c types.MatchCandidate
		if err := rows.Scan(
			&c.Function.Program.ID, &c.Function.Program.Name, &c.Function.Program.Path,
			&c.Function.Name, &c.Function.Address, &c.Similarity, &c.Confidence,
		); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		top.Offer(c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return top.Results(), nil
}

// searchFunctionsFallback streams every signature of matching dimension and
// scores it in Go. This is used when sqlite-vec is not available.
func searchFunctionsFallback(ctx context.Context, db *sql.DB, sig types.Signature, k int) ([]types.MatchCandidate, error) {
	query := `
		SELECT COALESCE(e.md5, ''), e.name, e.path, f.name, f.address, f.vector, f.feature_count
		FROM functions f
		INNER JOIN executables e ON e.id = f.executable_id
		WHERE f.dimension = ? AND f.feature_count > 0
	`
	rows, err := db.QueryContext(ctx, query, sig.Dimension())
	if err != nil {
		return nil, fmt.Errorf("failed to query signatures: %w", err)
	}
	defer func() { _ = rows.Close() }()

	queryVector := sig.Vector()
	queryFeatures := sig.FeatureCount()
	top := NewTopK(k)

	for rows.Next() {
		var c types.MatchCandidate
		var blob []byte
		var featureCount int
		if err := rows.Scan(
			&c.Function.Program.ID, &c.Function.Program.Name, &c.Function.Program.Path,
			&c.Function.Name, &c.Function.Address, &blob, &featureCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signature: %w", err)
		}

		vector := deserializeVector(blob)
		sim, conf, ok := ScorePair(queryVector, queryFeatures, vector, featureCount)
		if !ok {
			continue // Dimension mismatch, skip
		}
		c.Similarity = sim
		c.Confidence = conf
		top.Offer(c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return top.Results(), nil
}

// ScorePair computes similarity and confidence between a query vector and a
// stored vector. ok is false when the dimensions differ.
//
// Similarity is cosine similarity clamped to [0, 1]. Confidence scales the
// similarity by how closely the feature counts agree, so a match built from a
// handful of features is trusted less than one with comparable feature sets.
func ScorePair(query []float32, queryFeatures int, stored []float32, storedFeatures int) (similarity, confidence float64, ok bool) {
	if len(query) != len(stored) {
		return 0, 0, false
	}

	similarity = clamp01(cosineSimilarity(query, stored))

	lo, hi := queryFeatures, storedFeatures
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi == 0 {
		return similarity, 0, true
	}
	confidence = clamp01(similarity * float64(lo) / float64(hi))
	return similarity, confidence, true
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// TopK keeps the k best candidates seen so far under types.CompareCandidates
type TopK struct {
	k     int
	items candidateHeap
}

// NewTopK creates a collector for at most k candidates
func NewTopK(k int) *TopK {
	if k < 0 {
		k = 0
	}
	return &TopK{k: k, items: make(candidateHeap, 0, min(k, 1024))}
}

// Offer considers c for inclusion
func (t *TopK) Offer(c types.MatchCandidate) {
	if t.k == 0 {
		return
	}
	if len(t.items) < t.k {
		heap.Push(&t.items, c)
		return
	}
	// items[0] is the worst kept candidate
	if types.CompareCandidates(c, t.items[0]) < 0 {
		t.items[0] = c
		heap.Fix(&t.items, 0)
	}
}

// Results returns the kept candidates best first
func (t *TopK) Results() []types.MatchCandidate {
	out := make([]types.MatchCandidate, len(t.items))
	copy(out, t.items)
	slices.SortFunc(out, types.CompareCandidates)
	return out
}

// candidateHeap is a heap with the worst candidate at the root
type candidateHeap []types.MatchCandidate

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	return types.CompareCandidates(h[i], h[j]) > 0
}
func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)   { *h = append(*h, x.(types.MatchCandidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
