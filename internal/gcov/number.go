package gcov

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/zjy-dev/gocovr/internal/logger"
)

// siUnits are gcov's human-readable suffixes, each a factor of 1000
// over the previous.
const siUnits = "kMGTPEZY"

// parseHitsValue reverses gcov's count formatting. Percentages cannot
// be inverted, so any positive percentage maps to 1 and zero (or NAN)
// to 0. SI-suffixed values ("1.7k") expand to their full count.
func parseHitsValue(formatted string) (int64, error) {
	if formatted == "NAN %" {
		return 0, nil
	}
	if strings.HasSuffix(formatted, "%") {
		percent, err := strconv.ParseFloat(strings.TrimSuffix(formatted, "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("malformed gcov percentage %q: %w", formatted, err)
		}
		if percent > 0 {
			return 1, nil
		}
		return 0, nil
	}

	for exponent := len(siUnits); exponent >= 1; exponent-- {
		unit := siUnits[exponent-1]
		if strings.HasSuffix(formatted, string(unit)) {
			value, err := strconv.ParseFloat(formatted[:len(formatted)-1], 64)
			if err != nil {
				return 0, fmt.Errorf("malformed gcov value %q: %w", formatted, err)
			}
			return int64(value * math.Pow(1000, float64(exponent))), nil
		}
	}

	value, err := strconv.ParseInt(formatted, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed gcov value %q: %w", formatted, err)
	}
	return value, nil
}

// parsePercentValue parses gcov's percentage formatting into a float,
// keeping NAN as NaN.
func parsePercentValue(formatted string) (float64, error) {
	if formatted == "NAN %" {
		return math.NaN(), nil
	}
	if !strings.HasSuffix(formatted, "%") {
		return 0, fmt.Errorf("gcov percentage must end with %%, got %q", formatted)
	}
	percent, err := strconv.ParseFloat(strings.TrimSuffix(formatted, "%"), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed gcov percentage %q: %w", formatted, err)
	}
	return percent, nil
}

// hitsValidator applies the negative/suspicious counter policy for one
// parsed file. The first ignored anomaly of each class logs a warning;
// under the warn-once-per-file classes, later ones only count so the
// file produces a single closing summary instead of one warning per
// line.
type hitsValidator struct {
	opts Options
	diag *Diagnostics

	negativeCounted   bool
	negativeIgnored   int64
	suspiciousCounted bool
	suspiciousIgnored int64
}

func newHitsValidator(opts Options, diag *Diagnostics) *hitsValidator {
	return &hitsValidator{opts: opts, diag: diag}
}

// check sanitizes one counter value. Anomalous values become 0 when
// their class is ignored, otherwise the matching error is returned.
func (v *hitsValidator) check(hits int64, rawLine string) (int64, error) {
	if hits < 0 {
		if !v.opts.ignoresAny(IgnoreAll, IgnoreNegativeHitsWarn, IgnoreNegativeHitsWarnOncePerFile) {
			return 0, &NegativeHitsError{Line: rawLine}
		}
		if v.diag != nil {
			v.diag.NegativeHits.Inc()
		}
		if v.negativeCounted {
			v.negativeIgnored++
		} else {
			logger.Warnf("Ignoring negative hits in line %q.", rawLine)
			if v.opts.ignoresAny(IgnoreNegativeHitsWarnOncePerFile) {
				v.negativeCounted = true
				v.negativeIgnored = 1
			}
		}
		hits = 0
	}

	if v.opts.SuspiciousHitsThreshold != 0 && hits >= v.opts.SuspiciousHitsThreshold {
		if !v.opts.ignoresAny(IgnoreAll, IgnoreSuspiciousWarn, IgnoreSuspiciousWarnOncePerFile) {
			return 0, &SuspiciousHitsError{Line: rawLine}
		}
		if v.diag != nil {
			v.diag.SuspiciousHits.Inc()
		}
		if v.suspiciousCounted {
			v.suspiciousIgnored++
		} else {
			logger.Warnf("Ignoring suspicious hits in line %q.", rawLine)
			if v.opts.ignoresAny(IgnoreSuspiciousWarnOncePerFile) {
				v.suspiciousCounted = true
				v.suspiciousIgnored = 1
			}
		}
		hits = 0
	}

	return hits, nil
}

// logTotals emits the per-file closing summary for anomalies beyond
// the first.
func (v *hitsValidator) logTotals() {
	if v.negativeCounted && v.negativeIgnored > 1 {
		logger.Warnf("Ignored %d negative hits overall.", v.negativeIgnored)
	}
	if v.suspiciousCounted && v.suspiciousIgnored > 1 {
		logger.Warnf("Ignored %d suspicious hits overall.", v.suspiciousIgnored)
	}
}
