package traits

import "sort"

// DefaultQuota is the number of clips the selection aims for per trait.
const DefaultQuota = 5

// Ideal reference clips last strictly between these bounds, in seconds.
const (
	MinIdealSeconds = 3.0
	MaxIdealSeconds = 10.0
)

// Candidate is one corpus clip eligible for a trait.
type Candidate struct {
	Path       string
	Transcript string
	Noise      Noise
	Duration   float64
}

// Select picks reference clips from candidates. Per noise level, clean
// first, it takes every clip of ideal length, then longer clips shortest
// first, stopping once quota is met. Clips of at most MinIdealSeconds are
// used last, longest first. Clips of unknown noise are never selected.
func Select(candidates []Candidate, quota int) []Candidate {
	var selected []Candidate
	full := func() bool { return len(selected) >= quota }
	take := func(pool []Candidate, less func(a, b Candidate) bool, limit int) {
		sort.SliceStable(pool, func(i, j int) bool {
			if less(pool[i], pool[j]) {
				return true
			}
			if less(pool[j], pool[i]) {
				return false
			}
			return pool[i].Path < pool[j].Path
		})
		if limit >= 0 && len(pool) > limit {
			pool = pool[:limit]
		}
		selected = append(selected, pool...)
	}
	never := func(a, b Candidate) bool { return false }
	shorter := func(a, b Candidate) bool { return a.Duration < b.Duration }
	longer := func(a, b Candidate) bool { return a.Duration > b.Duration }

	levels := []Noise{NoiseClean, NoiseNoisy, NoiseVeryNoisy}
	for _, noise := range levels {
		if full() {
			return selected
		}
		take(filter(candidates, noise, isIdeal), never, -1)

		if full() {
			return selected
		}
		take(filter(candidates, noise, isLong), shorter, quota-len(selected))
	}

	if full() {
		return selected
	}
	var short []Candidate
	for _, noise := range levels {
		short = append(short, filter(candidates, noise, isShort)...)
	}
	take(short, longer, quota-len(selected))

	return selected
}

func isIdeal(d float64) bool { return d > MinIdealSeconds && d < MaxIdealSeconds }
func isLong(d float64) bool  { return d >= MaxIdealSeconds }
func isShort(d float64) bool { return d <= MinIdealSeconds }

func filter(candidates []Candidate, noise Noise, keep func(float64) bool) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		if c.Noise == noise && keep(c.Duration) {
			out = append(out, c)
		}
	}
	return out
}
