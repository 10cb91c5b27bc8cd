package match

// Weighting for artist scoring: name similarity dominates, popularity is a
// small tiebreaker between otherwise equal candidates.
const (
	artistNameWeight       = 0.85
	artistPopularityWeight = 0.15

	albumTitleWeight  = 0.45
	albumArtistWeight = 0.45

	compilationTitleWeight = 0.80
	compilationYearWeight  = 0.20

	trackTitleWeight  = 0.50
	trackArtistWeight = 0.50

	yearExactBonus = 0.10
	yearCloseBonus = 0.05
)

// Decision is the action a confidence score maps to.
type Decision string

// Decisions, from highest confidence band to lowest.
const (
	DecisionAutoApply    Decision = "auto_apply"
	DecisionManualReview Decision = "manual_review"
	DecisionRejected     Decision = "rejected"
)

// Thresholds are the two confidence cut points separating the decision
// bands. Each band includes its lower bound.
type Thresholds struct {
	AutoApply    float64
	ManualReview float64
}

// DefaultThresholds returns the standard decision cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{AutoApply: 0.75, ManualReview: 0.50}
}

// Classify maps a confidence value onto a decision.
func Classify(confidence float64, t Thresholds) Decision {
	switch {
	case confidence >= t.AutoApply:
		return DecisionAutoApply
	case confidence >= t.ManualReview:
		return DecisionManualReview
	default:
		return DecisionRejected
	}
}

// Similarity returns a string-distance ratio in [0,1] between two already
// normalized strings: 1 for identical inputs, 0 for entirely different.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	return 1.0 - float64(levenshteinDistance(a, b))/float64(longest)
}

// ScoreArtist computes the confidence that candidate is the same artist as
// query. popularity is the provider's 0-100 popularity figure; unknown (0)
// simply contributes nothing.
func ScoreArtist(query, candidate string, popularity int) float64 {
	sim := Similarity(Normalize(query), Normalize(candidate))
	return artistNameWeight*sim + artistPopularityWeight*normalizedPopularity(popularity)
}

// ScoreAlbum computes the confidence that a candidate album matches the
// query. Years of 0 mean unknown and earn no bonus. When either side is
// flagged as a compilation the artist field is never consulted: the score
// is built from the title and the release year alone.
func ScoreAlbum(queryTitle, queryArtist, candTitle, candArtist string, queryYear, candYear int, compilation bool) float64 {
	titleSim := Similarity(Normalize(queryTitle), Normalize(candTitle))

	if compilation {
		return compilationTitleWeight*titleSim + compilationYearWeight*yearCloseness(queryYear, candYear)
	}

	artistSim := Similarity(Normalize(queryArtist), Normalize(candArtist))
	return albumTitleWeight*titleSim + albumArtistWeight*artistSim + yearBonus(queryYear, candYear)
}

// ScoreTrack computes the confidence that a candidate track matches the
// query, weighting title and artist equally.
func ScoreTrack(queryTitle, queryArtist, candTitle, candArtist string) float64 {
	titleSim := Similarity(Normalize(queryTitle), Normalize(candTitle))
	artistSim := Similarity(Normalize(queryArtist), Normalize(candArtist))
	return trackTitleWeight*titleSim + trackArtistWeight*artistSim
}

// yearBonus is the additive bonus for non-compilation albums.
func yearBonus(a, b int) float64 {
	switch {
	case a == 0 || b == 0:
		return 0
	case a == b:
		return yearExactBonus
	case a-b == 1 || b-a == 1:
		return yearCloseBonus
	default:
		return 0
	}
}

// yearCloseness scales the year agreement into [0,1] following the same
// exact / ±1 rule, for use as a weighted component.
func yearCloseness(a, b int) float64 {
	switch {
	case a == 0 || b == 0:
		return 0
	case a == b:
		return 1.0
	case a-b == 1 || b-a == 1:
		return 0.5
	default:
		return 0
	}
}

func normalizedPopularity(p int) float64 {
	if p <= 0 {
		return 0
	}
	if p >= 100 {
		return 1
	}
	return float64(p) / 100
}

// levenshteinDistance computes the edit distance between two strings using
// the two-row dynamic programming form.
func levenshteinDistance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
