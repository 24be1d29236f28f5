package calendar

// Band is the qualitative color band for a day or session score.
type Band string

const (
	BandEmpty   Band = "empty"    // no sessions
	BandZero    Band = "zero"     // sessions exist but score 0
	BandVeryLow Band = "very_low" // [1,20)
	BandLow     Band = "low"      // [20,40)
	BandNeutral Band = "neutral"  // [40,60)
	BandGood    Band = "good"     // [60,80)
	BandGreat   Band = "great"    // >= 80
)

// BandFor maps a score to its band. hasSessions distinguishes a day with no
// data from one whose average is 0.
func BandFor(score int, hasSessions bool) Band {
	switch {
	case !hasSessions:
		return BandEmpty
	case score >= 80:
		return BandGreat
	case score >= 60:
		return BandGood
	case score >= 40:
		return BandNeutral
	case score >= 20:
		return BandLow
	case score <= 0:
		return BandZero
	default:
		return BandVeryLow
	}
}
