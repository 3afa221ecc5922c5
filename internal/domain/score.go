package domain

// scoreCategory groups source types for corroboration credit. Both fire
// feeds fold into one category: a commercial alarm and a marshal filing for
// the same incident are not independent enough to count twice.
type scoreCategory string

const (
	categoryWeather     scoreCategory = "weather"
	categoryFireReport  scoreCategory = "fire_report"
	categoryCAD         scoreCategory = "cad"
	categoryNews        scoreCategory = "news"
	categoryDeclaration scoreCategory = "declaration"
)

// categoryContribution is the fixed score each category adds, counted once
// regardless of how many signals that category contributed.
var categoryContribution = map[scoreCategory]int{
	categoryWeather:     40,
	categoryFireReport:  25,
	categoryCAD:         20,
	categoryNews:        15,
	categoryDeclaration: 20,
}

func scoreCategoryFor(st SourceType) scoreCategory {
	switch st {
	case SourceWeather:
		return categoryWeather
	case SourceFireCommercial, SourceFireState:
		return categoryFireReport
	case SourceCAD:
		return categoryCAD
	case SourceNews:
		return categoryNews
	case SourceDeclaration:
		return categoryDeclaration
	default:
		return categoryNews
	}
}

// maxConfidenceScore caps the summed contributions.
const maxConfidenceScore = 100

// Score sums the per-category contributions for the distinct source types
// present, capped at 100. Adding source types never lowers the score, which
// keeps cluster scores monotonically non-decreasing within a run.
func Score(present []SourceType) int {
	seen := map[scoreCategory]bool{}
	total := 0
	for _, st := range present {
		cat := scoreCategoryFor(st)
		if seen[cat] {
			continue
		}
		seen[cat] = true
		total += categoryContribution[cat]
	}
	if total > maxConfidenceScore {
		return maxConfidenceScore
	}
	return total
}

// Tier derives the verification tier from a score and the contributing
// source types: <60 probable, 60-85 reported, >85 confirmed. The hard
// override comes first: a weather-only composition can never be confirmed,
// whatever the number says.
func Tier(score int, present []SourceType) VerificationStatus {
	weatherOnly := len(present) > 0
	for _, st := range present {
		if st != SourceWeather {
			weatherOnly = false
			break
		}
	}

	switch {
	case score > 85:
		if weatherOnly {
			return StatusReported
		}
		return StatusConfirmed
	case score >= 60:
		return StatusReported
	default:
		return StatusProbable
	}
}

// ScoreAndTier computes both in one call.
func ScoreAndTier(present []SourceType) (int, VerificationStatus) {
	s := Score(present)
	return s, Tier(s, present)
}
