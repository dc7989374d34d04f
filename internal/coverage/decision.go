package coverage

// Decision is the tagged variant describing the heuristic outcome
// summary for a control-flow construct on a line. Exactly three
// variants exist: DecisionConditional for two-way branches,
// DecisionSwitch for case labels, and DecisionUncheckable for
// constructs the analyzer recognized but could not interpret.
//
// Variants are immutable values; merging produces a new value.
type Decision interface {
	decisionVariant()
}

// DecisionConditional carries outcome counts for a two-way branch.
// The true/false orientation comes from branch order and may be
// inverted for some constructs; the counts themselves are exact.
type DecisionConditional struct {
	CountTrue  int64
	CountFalse int64
}

// DecisionSwitch carries the hit count of one case label.
type DecisionSwitch struct {
	Count int64
}

// DecisionUncheckable marks a recognized construct with no usable
// outcome interpretation.
type DecisionUncheckable struct{}

func (DecisionConditional) decisionVariant() {}
func (DecisionSwitch) decisionVariant()      {}
func (DecisionUncheckable) decisionVariant() {}

// MergeDecisions combines two decision values. An absent decision
// yields the other side unchanged. Same-variant decisions accumulate
// their counts. Uncheckable absorbs everything, and a variant
// mismatch degrades to Uncheckable rather than guessing which side
// classified the construct correctly.
func MergeDecisions(a, b Decision) Decision {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}

	switch left := a.(type) {
	case DecisionUncheckable:
		return DecisionUncheckable{}
	case DecisionConditional:
		if right, ok := b.(DecisionConditional); ok {
			return DecisionConditional{
				CountTrue:  left.CountTrue + right.CountTrue,
				CountFalse: left.CountFalse + right.CountFalse,
			}
		}
	case DecisionSwitch:
		if right, ok := b.(DecisionSwitch); ok {
			return DecisionSwitch{Count: left.Count + right.Count}
		}
	}
	return DecisionUncheckable{}
}
