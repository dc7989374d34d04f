package decision

import (
	"regexp"
	"strings"
)

var (
	punctuationRx   = regexp.MustCompile(`([;:(){}])`)
	whitespaceRx    = regexp.MustCompile(`\s+`)
	onelineBranchRx = regexp.MustCompile(`^[^;]+\{(?:[^;]+;)*.*\}$`)
)

// blankNonCode replaces comments and the contents of string and
// character literals with a single space so that keyword scanning and
// parenthesis counting only see real code. Literals and block comments
// left open at the end of the line are blanked to the end.
func blankNonCode(code string) string {
	var out strings.Builder
	out.Grow(len(code))
	for i := 0; i < len(code); {
		c := code[i]
		switch {
		case c == '/' && i+1 < len(code) && code[i+1] == '/':
			out.WriteByte(' ')
			i = len(code)
		case c == '/' && i+1 < len(code) && code[i+1] == '*':
			out.WriteByte(' ')
			end := strings.Index(code[i+2:], "*/")
			if end < 0 {
				i = len(code)
			} else {
				i += 2 + end + 2
			}
		case c == '"' || c == '\'':
			out.WriteByte(' ')
			j := i + 1
			for j < len(code) {
				if code[j] == '\\' {
					j += 2
					continue
				}
				if code[j] == c {
					j++
					break
				}
				j++
			}
			i = j
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// prepareDecisionString normalizes a source line for keyword scanning:
// comments and literal contents are blanked, separators are padded
// with spaces and runs of whitespace collapse to one space. The result
// starts with a space so keywords at the beginning of the line match
// the same patterns as keywords after a statement.
func prepareDecisionString(code string) string {
	prepared := blankNonCode(code)
	prepared = punctuationRx.ReplaceAllString(prepared, " $1 ")
	prepared = whitespaceRx.ReplaceAllString(prepared, " ")
	return " " + strings.TrimSpace(prepared)
}

// parenDelta is the number of parentheses opened minus closed on the
// line, ignoring literals and comments.
func parenDelta(code string) int {
	prepared := prepareDecisionString(code)
	return strings.Count(prepared, "(") - strings.Count(prepared, ")")
}

func isBranchStatement(code string) bool {
	prepared := prepareDecisionString(code)
	for _, keyword := range []string{" if (", "; if (", " case ", "; case ", " default :", "; default :"} {
		if strings.Contains(prepared, keyword) {
			return true
		}
	}
	return false
}

func isLoop(code string) bool {
	prepared := prepareDecisionString(code)
	for _, keyword := range []string{" while (", "} while (", " for ", " for ("} {
		if strings.Contains(prepared, keyword) {
			return true
		}
	}
	return false
}

func isSwitch(code string) bool {
	prepared := prepareDecisionString(code)
	return strings.Contains(prepared, " case ") || strings.Contains(prepared, " default :")
}

// isTernary reports whether the line holds a conditional operator, a
// two-way decision folded into one expression.
func isTernary(code string) bool {
	prepared := prepareDecisionString(code)
	q := strings.Index(prepared, "?")
	if q < 0 {
		return false
	}
	return strings.Contains(prepared[q+1:], " : ")
}

// isOnelineBranch reports whether the decision and its full body sit
// on a single line, as in "if (a > 5) { a = 0; }".
func isOnelineBranch(code string) bool {
	return onelineBranchRx.MatchString(prepareDecisionString(code))
}

// isClosedBranch reports whether a decision's condition expression is
// complete on this line while its body is not, as in "if (a > 5) {".
func isClosedBranch(code string) bool {
	prepared := prepareDecisionString(code)
	if (isBranchStatement(prepared) || isLoop(prepared)) && !isOnelineBranch(prepared) {
		return parenDelta(prepared) == 0
	}
	return false
}
