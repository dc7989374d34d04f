package coverage

// MergeOptions carries the knobs that influence how fragments combine.
// The zero value is the strict default.
type MergeOptions struct {
	// FuncPolicy resolves functions reported at multiple definition
	// lines.
	FuncPolicy FunctionPolicy
}

// DefaultMergeOptions is the strict configuration used unless the
// caller asked for a relaxed function merge mode.
func DefaultMergeOptions() MergeOptions {
	return MergeOptions{FuncPolicy: FunctionStrict}
}

// MaxLineMergeOptions folds multi-line functions onto their largest
// definition line. The JSON tool output lists one function record per
// specialization, so readers of that format always merge with this.
func MaxLineMergeOptions() MergeOptions {
	return MergeOptions{FuncPolicy: FunctionLineMax}
}

// mergeProperty reconciles a single-valued property of two records
// that are being merged under the same key. Empty values yield to set
// ones; two set values must agree or the merge fails.
func mergeProperty(entity, key, property, a, b string) (string, error) {
	if a == "" {
		return b, nil
	}
	if b == "" || a == b {
		return a, nil
	}
	return "", &MergeConflictError{
		Entity:   entity,
		Key:      key,
		Property: property,
		ValueA:   a,
		ValueB:   b,
		Hint:     "the inputs describe different source files; re-run the instrumented build from a clean tree",
	}
}
