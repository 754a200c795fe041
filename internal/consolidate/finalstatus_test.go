package consolidate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"semanticpipe/internal/pipeline"
)

func TestFinalStatus_NoItems(t *testing.T) {
	require.Equal(t, pipeline.StatusEnrichedNoItems, FinalStatus(Counts{TotalItems: 0}))
}

func TestFinalStatus_AllSucceeded(t *testing.T) {
	require.Equal(t, pipeline.StatusEnrichedComplete, FinalStatus(Counts{TotalItems: 3, Success: 3}))
}

func TestFinalStatus_Partial(t *testing.T) {
	require.Equal(t, pipeline.StatusPartiallyEnriched, FinalStatus(Counts{TotalItems: 3, Success: 2, Failure: 1}))
}

func TestFinalStatus_AllFailed(t *testing.T) {
	require.Equal(t, pipeline.StatusEnrichmentFailedAll, FinalStatus(Counts{TotalItems: 2, Failure: 2}))
}

func TestFinalStatus_AllRateLimited(t *testing.T) {
	require.Equal(t, pipeline.StatusEnrichmentSkippedAllRate, FinalStatus(Counts{TotalItems: 2, RateLimited: 2}))
}

func TestFinalStatus_AllSkippedEmptyText(t *testing.T) {
	require.Equal(t, pipeline.StatusEnrichedAllSkippedEmpty, FinalStatus(Counts{TotalItems: 2, SkippedEmptyText: 2}))
}

func TestSummary_TruncatesLongErrors(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	s := Summary(Counts{Success: 1, Failure: 1}, 2, []string{string(long)})
	require.Len(t, s.ItemProcessingErrors[0], 255)
}
