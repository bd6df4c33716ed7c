package types

import (
	"strings"
	"time"
)

// MatchCandidate is one ranked result of a similarity query
type MatchCandidate struct {
	// Identification
	Function FunctionRef

	// Scoring
	Similarity float64 // Cosine similarity of the feature vectors (0-1)
	Confidence float64 // Trust in the similarity given feature agreement (0-1)
}

// Validate checks if the match candidate is valid
func (c MatchCandidate) Validate() error {
	if err := c.Function.Validate(); err != nil {
		return err
	}

	if !unitInterval(c.Similarity) || !unitInterval(c.Confidence) {
		return ErrInvalidScore
	}

	return nil
}

// unitInterval rejects NaN along with anything outside [0, 1]
func unitInterval(v float64) bool {
	return v >= 0 && v <= 1
}

// Ref returns the reference a caller hands to the resolver
func (c MatchCandidate) Ref() MatchRef {
	return MatchRef{
		ExecutablePath:  c.Function.Program.Path,
		FunctionName:    c.Function.Name,
		FunctionAddress: c.Function.Address,
	}
}

// MatchRef points at a matched function for artifact resolution
type MatchRef struct {
	ExecutablePath  string
	FunctionName    string
	FunctionAddress string
}

// Validate checks that the reference names an executable and a function
func (r MatchRef) Validate() error {
	if r.ExecutablePath == "" {
		return ErrMissingExecutable
	}
	return r.Function().Validate()
}

// Function converts the reference into a FunctionRef
func (r MatchRef) Function() FunctionRef {
	return FunctionRef{
		Program: ProgramRef{Path: r.ExecutablePath},
		Name:    r.FunctionName,
		Address: r.FunctionAddress,
	}
}

// ArtifactKind distinguishes the text a resolver produces
type ArtifactKind string

const (
	ArtifactDisassembly   ArtifactKind = "disassembly"
	ArtifactDecompilation ArtifactKind = "decompilation"
)

// ResolvedArtifact is disassembly or decompiled text for one matched function
type ResolvedArtifact struct {
	Kind     ArtifactKind
	Function FunctionRef
	Text     string
	Elapsed  time.Duration // Wall-clock time consumed
	Budget   time.Duration // Budget the resolution ran under
}

// CompareCandidates orders candidates best first: descending similarity, then
// descending confidence, then ascending function key. It returns a negative
// number when a ranks before b.
func CompareCandidates(a, b MatchCandidate) int {
	switch {
	case a.Similarity > b.Similarity:
		return -1
	case a.Similarity < b.Similarity:
		return 1
	case a.Confidence > b.Confidence:
		return -1
	case a.Confidence < b.Confidence:
		return 1
	}
	return strings.Compare(a.Function.Key(), b.Function.Key())
}
