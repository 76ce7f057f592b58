package domain

import (
	"math"
	"strings"
	"time"
)

// RecencyCutoff is the oldest event date kept when a query asks for recent
// events only.
func RecencyCutoff(now time.Time, years int) time.Time {
	return now.AddDate(-years, 0, 0)
}

// FilterFloodEvents applies the intent's deterministic limits to a
// distance-sorted event list: drop events before recentSince when RecentOnly
// is set, drop events beyond MaxDistanceMiles, then keep the first MaxEvents.
// Input order is preserved, so with no recency or distance limit the result
// is exactly events[:MaxEvents]. The input is never modified.
func FilterFloodEvents(events []FloodEvent, filters FloodEventFilters, recentSince time.Time) []FloodEvent {
	limit := len(events)
	if filters.MaxEvents != nil {
		limit = min(max(*filters.MaxEvents, 0), limit)
	}

	out := make([]FloodEvent, 0, limit)
	for _, e := range events {
		if len(out) == limit {
			break
		}
		if filters.RecentOnly && e.Date.Before(recentSince) {
			continue
		}
		if filters.MaxDistanceMiles != nil && e.DistanceFromQueryMiles > *filters.MaxDistanceMiles {
			// sorted by distance, nothing further can pass
			break
		}
		out = append(out, e)
	}
	return out
}

// CosineSimilarity returns dot(a,b) / (|a|·|b|). Mismatched lengths, empty
// vectors and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// VariableScore is an SVI variable's similarity to the query.
type VariableScore struct {
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}

// SelectSVIVariables returns the names of the variables whose similarity is
// at least threshold.
func SelectSVIVariables(scores []VariableScore, threshold float64) map[string]bool {
	keep := make(map[string]bool, len(scores))
	for _, s := range scores {
		if s.Similarity >= threshold {
			keep[s.Name] = true
		}
	}
	return keep
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
