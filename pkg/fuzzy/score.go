package fuzzy

import "strings"

// Scoring weights for album matching. The field tiers run exact > fuzzy >
// substring; year proximity tolerates reissues.
const (
	ScoreFieldExact     = 100
	ScoreFieldFuzzy     = 80
	ScoreFieldSubstring = 60

	ScoreYearExact = 50
	ScoreYearClose = 30
	ScoreYearNear  = 10

	ScoreImageBonus = 10

	yearCloseRange = 1
	yearNearRange  = 3
)

// Album holds the fields of a catalog record relevant to matching.
type Album struct {
	Artist string
	Title  string
	Year   int // 0 when unknown
}

// Candidate holds the fields of a search result relevant to matching.
type Candidate struct {
	Artist   string
	Title    string
	Year     int // 0 when unknown
	HasImage bool
}

// ScoreAlbum computes the relevance of a search candidate for a catalog
// album. Artist and title contribute independently, year only when both
// sides carry one. The result is an unclamped sum; with the image bonus the
// practical range is 0-260. Pure and deterministic.
func (n *Normalizer) ScoreAlbum(album Album, candidate Candidate) int {
	score := n.scoreField(album.Artist, candidate.Artist)
	score += n.scoreField(album.Title, candidate.Title)
	score += scoreYear(album.Year, candidate.Year)

	if candidate.HasImage {
		score += ScoreImageBonus
	}

	return score
}

func (n *Normalizer) scoreField(want, got string) int {
	wantLoose := n.Normalize(want)
	gotLoose := n.Normalize(got)
	if wantLoose == "" || gotLoose == "" {
		return 0
	}

	if wantLoose == gotLoose {
		return ScoreFieldExact
	}

	if n.NormalizeStrict(want) == n.NormalizeStrict(got) {
		return ScoreFieldFuzzy
	}

	if strings.Contains(wantLoose, gotLoose) || strings.Contains(gotLoose, wantLoose) {
		return ScoreFieldSubstring
	}

	return 0
}

func scoreYear(want, got int) int {
	if want == 0 || got == 0 {
		return 0
	}

	diff := want - got
	if diff < 0 {
		diff = -diff
	}

	switch {
	case diff == 0:
		return ScoreYearExact
	case diff <= yearCloseRange:
		return ScoreYearClose
	case diff <= yearNearRange:
		return ScoreYearNear
	default:
		return 0
	}
}
