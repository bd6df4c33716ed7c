package types

import (
	"fmt"
	"math"
)

const (
	// DefaultLimit is the page size used when none is given
	DefaultLimit = 100
	// MaxLimit caps the page size
	MaxLimit = 1000
)

// Unbounded is the default exclusive upper bound for scores
var Unbounded = math.Inf(1)

// FilterSpec narrows and pages a ranked candidate list.
// Minimums are inclusive, maximums are exclusive.
type FilterSpec struct {
	MinSimilarity float64
	MinConfidence float64
	MaxSimilarity float64
	MaxConfidence float64
	Offset        int
	Limit         int
}

// DefaultFilterSpec returns a spec that keeps every candidate and returns the
// first DefaultLimit of them
func DefaultFilterSpec() FilterSpec {
	return FilterSpec{
		MinSimilarity: 0,
		MinConfidence: 0,
		MaxSimilarity: Unbounded,
		MaxConfidence: Unbounded,
		Offset:        0,
		Limit:         DefaultLimit,
	}
}

// Validate checks the bound and paging invariants
func (f FilterSpec) Validate() error {
	for _, b := range []struct {
		name  string
		value float64
	}{
		{"min_similarity", f.MinSimilarity},
		{"max_similarity", f.MaxSimilarity},
		{"min_confidence", f.MinConfidence},
		{"max_confidence", f.MaxConfidence},
	} {
		if math.IsNaN(b.value) {
			return Wrap(ErrInvalidArgument, fmt.Errorf("%w: %s", ErrNaNBound, b.name))
		}
	}

	if f.MinSimilarity > f.MaxSimilarity {
		return Wrap(ErrInvalidArgument, fmt.Errorf("%w: similarity %g > %g", ErrBoundsInverted, f.MinSimilarity, f.MaxSimilarity))
	}
	if f.MinConfidence > f.MaxConfidence {
		return Wrap(ErrInvalidArgument, fmt.Errorf("%w: confidence %g > %g", ErrBoundsInverted, f.MinConfidence, f.MaxConfidence))
	}

	if f.Offset < 0 {
		return Wrap(ErrInvalidArgument, fmt.Errorf("%w: %d", ErrNegativeOffset, f.Offset))
	}
	if f.Limit <= 0 {
		return Wrap(ErrInvalidArgument, fmt.Errorf("%w: %d", ErrNonPositiveLimit, f.Limit))
	}
	if f.Limit > MaxLimit {
		return Wrap(ErrInvalidArgument, fmt.Errorf("%w: %d > %d", ErrLimitAboveCap, f.Limit, MaxLimit))
	}

	return nil
}

// Admits reports whether c falls inside the similarity and confidence bounds
func (f FilterSpec) Admits(c MatchCandidate) bool {
	if c.Similarity < f.MinSimilarity || c.Similarity >= f.MaxSimilarity {
		return false
	}
	if c.Confidence < f.MinConfidence || c.Confidence >= f.MaxConfidence {
		return false
	}
	return true
}
