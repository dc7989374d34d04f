package report

import (
	"fmt"
	"io"

	"github.com/zjy-dev/gocovr/internal/coverage"
)

// PrintSummary writes the aggregate totals in the compact
// "lines: 87.5% (7 out of 8)" form. Lines, functions and branches
// always print; the remaining scopes only when something was measured.
func PrintSummary(w io.Writer, container *coverage.Container) error {
	stats := container.Stats()

	if err := printScope(w, "lines", stats.Line); err != nil {
		return err
	}
	if err := printScope(w, "functions", stats.Function); err != nil {
		return err
	}
	if err := printScope(w, "branches", stats.Branch); err != nil {
		return err
	}
	if stats.Condition.Total > 0 {
		if err := printScope(w, "conditions", stats.Condition); err != nil {
			return err
		}
	}
	if stats.Decision.Total > 0 {
		_, err := fmt.Fprintf(w, "decisions: %.1f%% (%d out of %d, %d uncheckable)\n",
			stats.Decision.PercentOr(0.0), stats.Decision.Covered, stats.Decision.Total, stats.Decision.Uncheckable)
		if err != nil {
			return err
		}
	}
	if stats.Call.Total > 0 {
		if err := printScope(w, "calls", stats.Call); err != nil {
			return err
		}
	}
	return nil
}

func printScope(w io.Writer, scope string, stat coverage.CoverageStat) error {
	_, err := fmt.Fprintf(w, "%s: %.1f%% (%d out of %d)\n", scope, stat.PercentOr(0.0), stat.Covered, stat.Total)
	return err
}
