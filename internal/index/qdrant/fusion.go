package qdrant

// rrfK is the reciprocal-rank constant; the conventional value keeps any
// single channel from dominating the fused ranking.
const rrfK = 60

// candidate is one entry of a per-channel ranking, best first.
type candidate struct {
	id      string
	payload any
}

// fused pairs a candidate with its reciprocal-rank score.
type fused struct {
	candidate
	score float64
}

// fuseRRF merges independently-ranked channels into one ranking by
// reciprocal-rank score: sum over channels of 1/(k + rank), rank 1-based;
// channels where an id is absent contribute nothing. Ties break stably by
// first appearance across channels (channel order, then rank), so the
// output is a pure function of the input rankings.
func fuseRRF(channels [][]candidate, limit int) []fused {
	scores := make(map[string]float64)
	firstSeen := make(map[string]int)
	var order []candidate

	pos := 0
	for _, channel := range channels {
		for rank, c := range channel {
			scores[c.id] += 1.0 / float64(rrfK+rank+1)
			if _, seen := firstSeen[c.id]; !seen {
				firstSeen[c.id] = pos
				order = append(order, c)
			}
			pos++
		}
	}

	out := make([]fused, 0, len(order))
	for _, c := range order {
		out = append(out, fused{candidate: c, score: scores[c.id]})
	}
	// Insertion sort keeps the first-seen order for equal scores; the
	// candidate sets here are search pages, not corpora.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].score > out[j-1].score; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
