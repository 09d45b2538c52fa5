package evolution

// Aggregate reduces a candidate's pairwise comparisons to one result. Ties
// count in the win-rate denominator but not the numerator, so a candidate
// that only ever ties scores 0 and cannot clear the adoption gate.
func Aggregate(candidateID string, kind MutationKind, comparisons []Comparison) EvaluationResult {
	result := EvaluationResult{
		CandidateID: candidateID,
		Kind:        kind,
		SampleCount: len(comparisons),
	}
	if len(comparisons) == 0 {
		return result
	}

	var wins, losses, ties int
	var metrics MetricScores
	for _, c := range comparisons {
		switch c.Winner {
		case WinnerCandidate:
			wins++
		case WinnerBaseline:
			losses++
		default:
			ties++
		}
		metrics.Helpfulness += c.Candidate.Helpfulness
		metrics.Correctness += c.Candidate.Correctness
		metrics.Coherence += c.Candidate.Coherence
	}

	n := float64(wins + losses + ties)
	result.WinRate = float64(wins) / n
	result.Metrics = MetricScores{
		Helpfulness: metrics.Helpfulness / n,
		Correctness: metrics.Correctness / n,
		Coherence:   metrics.Coherence / n,
	}
	result.MeanScore = result.Metrics.Mean()
	return result
}

// Select picks the winning candidate, if any, from a job's full result set.
// A candidate must beat the baseline decisively: its win rate has to reach
// 0.5 plus the configured margin. Among gated candidates the highest win rate
// wins, with mean score breaking ties. Returns nil when nothing clears the
// gate, which leaves the baseline in place.
func Select(results []EvaluationResult, margin float64) *EvaluationResult {
	gate := 0.5 + margin

	var best *EvaluationResult
	for i := range results {
		r := &results[i]
		if r.SampleCount == 0 || r.WinRate < gate {
			continue
		}
		if best == nil || betterThan(r, best) {
			best = r
		}
	}
	return best
}

func betterThan(a, b *EvaluationResult) bool {
	if a.WinRate != b.WinRate {
		return a.WinRate > b.WinRate
	}
	return a.MeanScore > b.MeanScore
}
