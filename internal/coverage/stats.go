package coverage

import "math"

// CoverageStat is a covered/total pair for one metric.
type CoverageStat struct {
	Covered int
	Total   int
}

// Percent returns the coverage ratio in percent, or nil when nothing
// was measurable. Full coverage is exactly 100.0; anything less is
// capped at 99.9 so rounding can never misreport completeness.
func (s CoverageStat) Percent() *float64 {
	return percentOf(s.Covered, s.Total)
}

// PercentOr returns Percent, or fallback when nothing was measurable.
func (s CoverageStat) PercentOr(fallback float64) float64 {
	if percent := s.Percent(); percent != nil {
		return *percent
	}
	return fallback
}

// Add accumulates another stat into s.
func (s *CoverageStat) Add(other CoverageStat) {
	s.Covered += other.Covered
	s.Total += other.Total
}

// DecisionStat tracks decision outcomes separately from the other
// metrics because a decision can be uncheckable: it still contributes
// its outcomes to the total, but never to the covered count.
type DecisionStat struct {
	Covered     int
	Uncheckable int
	Total       int
}

// Percent returns the decision coverage ratio, or nil when no
// decisions were measured.
func (s DecisionStat) Percent() *float64 {
	return percentOf(s.Covered, s.Total)
}

// PercentOr returns Percent, or fallback when nothing was measurable.
func (s DecisionStat) PercentOr(fallback float64) float64 {
	if percent := s.Percent(); percent != nil {
		return *percent
	}
	return fallback
}

// Add accumulates another stat into s.
func (s *DecisionStat) Add(other DecisionStat) {
	s.Covered += other.Covered
	s.Uncheckable += other.Uncheckable
	s.Total += other.Total
}

// SummarizedStats bundles every metric for a file or a whole report.
type SummarizedStats struct {
	Line      CoverageStat
	Function  CoverageStat
	Branch    CoverageStat
	Condition CoverageStat
	Decision  DecisionStat
	Call      CoverageStat
}

// Add accumulates another summary into s.
func (s *SummarizedStats) Add(other SummarizedStats) {
	s.Line.Add(other.Line)
	s.Function.Add(other.Function)
	s.Branch.Add(other.Branch)
	s.Condition.Add(other.Condition)
	s.Decision.Add(other.Decision)
	s.Call.Add(other.Call)
}

// Stats computes every metric for the file. Excluded entities are
// invisible: an excluded line hides its branches, conditions, calls
// and decision as well.
func (fc *FileCoverage) Stats() SummarizedStats {
	var stats SummarizedStats

	for _, fn := range fc.Functions {
		for lineno, count := range fn.Count {
			if fn.Excluded[lineno] {
				continue
			}
			stats.Function.Total++
			if count > 0 {
				stats.Function.Covered++
			}
		}
	}

	for _, line := range fc.Lines {
		if line.Excluded {
			continue
		}
		stats.Line.Total++
		if line.Count > 0 {
			stats.Line.Covered++
		}

		for _, branch := range line.Branches {
			if branch.Excluded {
				continue
			}
			stats.Branch.Total++
			if branch.Covered() {
				stats.Branch.Covered++
			}
		}

		for _, condition := range line.Conditions {
			if condition.Excluded {
				continue
			}
			stats.Condition.Total += int(condition.Count)
			stats.Condition.Covered += int(condition.Covered)
		}

		for _, call := range line.Calls {
			if call.Excluded {
				continue
			}
			stats.Call.Total++
			if call.Covered() {
				stats.Call.Covered++
			}
		}

		switch decision := line.Decision.(type) {
		case nil:
		case DecisionUncheckable:
			stats.Decision.Uncheckable++
			stats.Decision.Total += 2
		case DecisionConditional:
			if decision.CountTrue > 0 {
				stats.Decision.Covered++
			}
			if decision.CountFalse > 0 {
				stats.Decision.Covered++
			}
			stats.Decision.Total += 2
		case DecisionSwitch:
			if decision.Count > 0 {
				stats.Decision.Covered++
			}
			stats.Decision.Total++
		}
	}

	return stats
}

// percentOf implements the shared rounding contract: nil for an empty
// measurement, exactly 100.0 only for full coverage, otherwise one
// decimal place capped at 99.9.
func percentOf(covered, total int) *float64 {
	if total == 0 {
		return nil
	}
	if covered == total {
		percent := 100.0
		return &percent
	}
	percent := math.Round(float64(covered)/float64(total)*1000) / 10
	if percent > 99.9 {
		percent = 99.9
	}
	return &percent
}
