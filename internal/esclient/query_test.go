package esclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQueryAppliesFieldReduction(t *testing.T) {
	req := QueryRequest{
		Indices:  []string{"dshield-*"},
		Fields:   []string{"source.ip", "@timestamp"},
		PageSize: 50,
		Time:     TimeRange{TimeRangeHours: 24},
	}
	body, optimizations := buildQuery(req)
	assert.Contains(t, optimizations, "field_reduction")
	assert.Equal(t, []string{"source.ip", "@timestamp"}, body.Source)
}

func TestBuildQueryAppliesPageReduction(t *testing.T) {
	req := QueryRequest{
		Indices:  []string{"dshield-*"},
		PageSize: 10,
		Time:     TimeRange{TimeRangeHours: 24},
	}
	_, optimizations := buildQuery(req)
	assert.Contains(t, optimizations, "page_reduction")
}

func TestBuildQueryNoOptimizationsByDefault(t *testing.T) {
	req := QueryRequest{
		Indices:  []string{"dshield-*"},
		PageSize: 500,
		Time:     TimeRange{TimeRangeHours: 24},
	}
	_, optimizations := buildQuery(req)
	assert.Empty(t, optimizations)
}

func TestBuildQueryConjunctiveFilters(t *testing.T) {
	req := QueryRequest{
		Indices: []string{"dshield-*"},
		Filters: []Filter{
			{Field: "source.ip", Op: FilterTerm, Value: "1.2.3.4"},
			{Field: "destination.port", Op: FilterTerms, Value: []any{80, 443}},
		},
		PageSize: 50,
		Time:     TimeRange{TimeRangeHours: 1},
	}
	body, _ := buildQuery(req)
	must, ok := body.Query["bool"].(map[string]any)["must"].([]map[string]any)
	require.True(t, ok)
	// time range clause plus two filter clauses.
	assert.Len(t, must, 3)
}

func TestComplexityForReflectsOptimizations(t *testing.T) {
	assert.Equal(t, ComplexitySimple, complexityFor(nil))
	assert.Equal(t, ComplexityOptimized, complexityFor([]string{"field_reduction"}))
}

func TestJoinIndicesDefaultsToWildcard(t *testing.T) {
	assert.Equal(t, "*", joinIndices(nil))
	assert.Equal(t, "a,b", joinIndices([]string{"a", "b"}))
}
