package crossval

import "fmt"

// Report summarizes the most recent validation results.
type Report struct {
	Window          int
	Total           int
	Passed          int
	Warnings        int
	Failed          int
	BySeverity      map[Severity]int
	ByType          map[DiscrepancyType]int
	Recommendations []string
}

// Report aggregates the last window results (all history when window <= 0
// or larger than the retained history).
func (v *Validator) Report(window int) Report {
	h := v.history
	if window > 0 && window < len(h) {
		h = h[len(h)-window:]
	}

	rep := Report{
		Window:     window,
		Total:      len(h),
		BySeverity: make(map[Severity]int),
		ByType:     make(map[DiscrepancyType]int),
	}
	for i := range h {
		switch h[i].Status {
		case StatusPassed:
			rep.Passed++
		case StatusPassedWithWarnings:
			rep.Warnings++
		default:
			rep.Failed++
		}
		for _, d := range h[i].Discrepancies {
			rep.BySeverity[d.Severity]++
			rep.ByType[d.Type]++
		}
	}

	rep.Recommendations = recommend(rep)
	return rep
}

func recommend(rep Report) []string {
	var recs []string
	if rep.Total == 0 {
		return recs
	}
	if rep.BySeverity[SeverityCritical] > 0 {
		recs = append(recs, "critical discrepancies present: halt new position opens on affected markets")
	}
	// Failure rate over 20% means one of the venues is unreliable, not a
	// one-off data glitch.
	if rep.Failed*5 > rep.Total {
		recs = append(recs, fmt.Sprintf("failure rate %d/%d exceeds 20%%: review comparison source reliability", rep.Failed, rep.Total))
	}
	if rep.ByType[DiscrepancyTimestampDrift]*2 > rep.Total {
		recs = append(recs, "persistent timestamp drift: check venue polling cadence")
	}
	return recs
}
