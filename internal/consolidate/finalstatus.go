package consolidate

import (
	"semanticpipe/internal/pipeline"
)

// Counts summarizes a job's outcome for final status computation (§4.12).
type Counts struct {
	TotalItems  int
	Success     int
	Failure     int
	RateLimited int
	// SkippedEmptyText is items whose cleansedContent was empty and never
	// enqueued at all; they count toward totalDeserializedItems but not
	// toward the attempted tally.
	SkippedEmptyText int
}

// FinalStatus implements the §4.12 decision tree.
func FinalStatus(c Counts) pipeline.CleansedBatchStatus {
	if c.TotalItems == 0 {
		return pipeline.StatusEnrichedNoItems
	}

	attempted := c.Success + c.Failure + c.RateLimited

	if attempted == 0 && c.SkippedEmptyText > 0 {
		return pipeline.StatusEnrichedAllSkippedEmpty
	}
	if c.Failure == 0 && c.RateLimited == 0 && c.Success == attempted {
		return pipeline.StatusEnrichedComplete
	}
	if c.Success > 0 && (c.Failure > 0 || c.RateLimited > 0) {
		return pipeline.StatusPartiallyEnriched
	}
	if c.Failure == attempted && attempted > 0 {
		return pipeline.StatusEnrichmentFailedAll
	}
	if c.RateLimited == attempted && attempted > 0 {
		return pipeline.StatusEnrichmentSkippedAllRate
	}
	return pipeline.StatusEnrichmentIssuesDetected
}

// Summary builds the persisted diagnostics payload, truncating each error
// message to 255 characters.
func Summary(c Counts, totalDeserialized int, errMessages []string) pipeline.EnrichmentSummary {
	truncated := make([]string, len(errMessages))
	for i, m := range errMessages {
		if len(m) > 255 {
			m = m[:255]
		}
		truncated[i] = m
	}
	return pipeline.EnrichmentSummary{
		TotalDeserializedItems:   totalDeserialized,
		ItemsAttempted:           c.Success + c.Failure + c.RateLimited,
		SuccessfullyEnriched:     c.Success,
		FailedEnrichmentAttempts: c.Failure,
		SkippedByRateLimit:       c.RateLimited,
		ItemProcessingErrors:     truncated,
	}
}
