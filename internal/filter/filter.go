// Package filter narrows ranked candidates by score bounds and pages the
// survivors. Everything here is pure: inputs are never modified.
package filter

import (
	"github.com/dshills/funcsim-mcp/pkg/types"
)

// Page is one page of filtered candidates plus paging metadata
type Page struct {
	Items   []types.MatchCandidate
	Total   int // Candidates that passed the bounds, before paging
	Offset  int
	Limit   int
	HasMore bool
}

// Apply keeps candidates inside the spec's bounds, preserving input order,
// and returns the [Offset, Offset+Limit) slice of them. The spec is
// validated before any candidate is looked at.
func Apply(candidates []types.MatchCandidate, spec types.FilterSpec) ([]types.MatchCandidate, error) {
	page, err := ApplyPage(candidates, spec)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// ApplyPage is Apply with paging metadata
func ApplyPage(candidates []types.MatchCandidate, spec types.FilterSpec) (*Page, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	kept := make([]types.MatchCandidate, 0, min(len(candidates), spec.Limit))
	total := 0
	for _, c := range candidates {
		if !spec.Admits(c) {
			continue
		}
		if total >= spec.Offset && total-spec.Offset < spec.Limit {
			kept = append(kept, c)
		}
		total++
	}

	return &Page{
		Items:   kept,
		Total:   total,
		Offset:  spec.Offset,
		Limit:   spec.Limit,
		HasMore: spec.Offset+len(kept) < total,
	}, nil
}
