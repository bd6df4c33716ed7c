// Package selector picks single matches out of a ranked sequence.
package selector

import (
	"github.com/dshills/funcsim-mcp/pkg/types"
)

// SelectExact returns the first candidate, in ranked order, whose function
// name equals name exactly. The whole sequence is scanned; a higher ranked
// candidate with a different name is never returned in its place.
func SelectExact(ranked []types.MatchCandidate, name string) (types.MatchCandidate, error) {
	if name == "" {
		return types.MatchCandidate{}, types.Wrap(types.ErrInvalidArgument, types.ErrMissingFunction)
	}
	for _, c := range ranked {
		if c.Function.Name == name {
			return c, nil
		}
	}
	return types.MatchCandidate{}, types.Wrapf(types.ErrNotFound, "no match named %q among %d candidates", name, len(ranked))
}

// SelectTop returns the best ranked candidate regardless of name
func SelectTop(ranked []types.MatchCandidate) (types.MatchCandidate, error) {
	if len(ranked) == 0 {
		return types.MatchCandidate{}, types.Wrapf(types.ErrNotFound, "no candidates")
	}
	return ranked[0], nil
}
