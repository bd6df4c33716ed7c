package filter

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/funcsim-mcp/pkg/types"
)

func candidates(scores ...[2]float64) []types.MatchCandidate {
	out := make([]types.MatchCandidate, len(scores))
	for i, s := range scores {
		out[i] = types.MatchCandidate{
			Function:   types.FunctionRef{Program: types.ProgramRef{Path: "/bin/a"}, Name: fmt.Sprintf("f%d", i), Address: "0x1"},
			Similarity: s[0],
			Confidence: s[1],
		}
	}
	return out
}

func names(cs []types.MatchCandidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Function.Name
	}
	return out
}

func TestApply_Bounds(t *testing.T) {
	input := candidates(
		[2]float64{0.95, 0.9}, // f0
		[2]float64{0.90, 0.5}, // f1: similarity at max, excluded
		[2]float64{0.70, 0.2}, // f2: both mins, included
		[2]float64{0.69, 0.9}, // f3: below min similarity
		[2]float64{0.80, 0.8}, // f4: confidence at max, excluded
		[2]float64{0.85, 0.3}, // f5
	)
	spec := types.DefaultFilterSpec()
	spec.MinSimilarity = 0.7
	spec.MaxSimilarity = 0.9
	spec.MinConfidence = 0.2
	spec.MaxConfidence = 0.8

	got, err := Apply(input, spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"f2", "f5"}, names(got), "order preserved")
}

func TestApply_DefaultsKeepEverything(t *testing.T) {
	input := candidates([2]float64{1, 1}, [2]float64{0, 0}, [2]float64{0.5, 0.25})
	got, err := Apply(input, types.DefaultFilterSpec())
	require.NoError(t, err)
	assert.Equal(t, input, got)
}

func TestApply_Paging(t *testing.T) {
	input := candidates(
		[2]float64{0.9, 0}, [2]float64{0.8, 0}, [2]float64{0.7, 0},
		[2]float64{0.6, 0}, [2]float64{0.5, 0},
	)

	tests := []struct {
		offset, limit int
		want          []string
		hasMore       bool
	}{
		{0, 2, []string{"f0", "f1"}, true},
		{2, 2, []string{"f2", "f3"}, true},
		{4, 2, []string{"f4"}, false},
		{5, 2, []string{}, false},
		{100, 10, []string{}, false},
		{0, 5, []string{"f0", "f1", "f2", "f3", "f4"}, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("offset=%d limit=%d", tt.offset, tt.limit), func(t *testing.T) {
			spec := types.DefaultFilterSpec()
			spec.Offset = tt.offset
			spec.Limit = tt.limit

			page, err := ApplyPage(input, spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(page.Items))
			assert.Equal(t, 5, page.Total)
			assert.Equal(t, tt.hasMore, page.HasMore)
		})
	}
}

func TestApply_PagingCountsOnlyFiltered(t *testing.T) {
	input := candidates([2]float64{0.9, 0}, [2]float64{0.1, 0}, [2]float64{0.8, 0}, [2]float64{0.7, 0})
	spec := types.DefaultFilterSpec()
	spec.MinSimilarity = 0.5
	spec.Offset = 1
	spec.Limit = 1

	page, err := ApplyPage(input, spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"f2"}, names(page.Items))
	assert.Equal(t, 3, page.Total)
	assert.True(t, page.HasMore)
}

func TestApply_InvalidSpec(t *testing.T) {
	input := candidates([2]float64{0.9, 0.9})

	for name, mutate := range map[string]func(*types.FilterSpec){
		"inverted": func(s *types.FilterSpec) { s.MinSimilarity, s.MaxSimilarity = 0.9, 0.1 },
		"nan":      func(s *types.FilterSpec) { s.MaxConfidence = math.NaN() },
		"zero":     func(s *types.FilterSpec) { s.Limit = 0 },
		"over cap": func(s *types.FilterSpec) { s.Limit = types.MaxLimit + 1 },
		"negative": func(s *types.FilterSpec) { s.Offset = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			spec := types.DefaultFilterSpec()
			mutate(&spec)
			got, err := Apply(input, spec)
			assert.ErrorIs(t, err, types.ErrInvalidArgument)
			assert.Nil(t, got)
		})
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	input := candidates([2]float64{0.9, 0.1}, [2]float64{0.2, 0.1}, [2]float64{0.8, 0.1})
	snapshot := append([]types.MatchCandidate(nil), input...)

	spec := types.DefaultFilterSpec()
	spec.MinSimilarity = 0.5
	_, err := Apply(input, spec)
	require.NoError(t, err)
	assert.Equal(t, snapshot, input)
}

func TestApply_Empty(t *testing.T) {
	got, err := Apply(nil, types.DefaultFilterSpec())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestApply_WorkedExample(t *testing.T) {
	input := []types.MatchCandidate{
		{Function: types.FunctionRef{Name: "foo"}, Similarity: 0.95, Confidence: 0.8},
		{Function: types.FunctionRef{Name: "bar"}, Similarity: 0.90, Confidence: 0.99},
		{Function: types.FunctionRef{Name: "baz"}, Similarity: 0.85, Confidence: 0.5},
	}
	spec := types.DefaultFilterSpec()
	spec.MinSimilarity = 0.88
	spec.MaxConfidence = 0.99

	got, err := Apply(input, spec)
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, names(got))
}

func TestApply_PaginationRoundTrip(t *testing.T) {
	var scores [][2]float64
	for i := 0; i < 23; i++ {
		scores = append(scores, [2]float64{float64(i%10) / 10, 0.5})
	}
	input := candidates(scores...)

	spec := types.DefaultFilterSpec()
	spec.MinSimilarity = 0.3
	full, err := Apply(input, spec)
	require.NoError(t, err)

	for _, n := range []int{1, 4, 7, 100} {
		var rebuilt []types.MatchCandidate
		for offset := 0; ; offset += n {
			spec.Offset, spec.Limit = offset, n
			page, err := ApplyPage(input, spec)
			require.NoError(t, err)
			rebuilt = append(rebuilt, page.Items...)
			if !page.HasMore {
				break
			}
		}
		assert.Equal(t, full, rebuilt, "page size %d", n)
	}
}
