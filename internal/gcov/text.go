package gcov

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zjy-dev/gocovr/internal/coverage"
	"github.com/zjy-dev/gocovr/internal/logger"
)

// UnknownFunctionName labels lines reported before any function tag,
// which happens for compiler-inlined code at the top of a file. The
// synthetic function record for them is always excluded.
const UnknownFunctionName = "<unknown function>"

// specializationSeparator is the literal row gcov prints between
// template specialization sections.
const specializationSeparator = "------------------"

// valueRx matches gcov's format_gcov() output: a percentage, a plain
// count, or a human-readable SI-suffixed count.
const valueRx = `(?:NAN %|-?[0-9.]+[%kMGTPEZY]?)`

var (
	reSourceLine = regexp.MustCompile(`^(?: +)?(` + valueRx + `[*]?|-|#{5}|={5}):(?: +)?([0-9]+):(.*)$`)
	reBlockLine  = regexp.MustCompile(`^(?: +)?(` + valueRx + `|\${5}|%{5}):(?: +)?([0-9]+)-block +([0-9]+)$`)
	reBranchLine = regexp.MustCompile(`^branch +([0-9]+) +(?:taken +(` + valueRx + `)|never +executed)(?: +\((\w+)\))?$`)
	reCallLine   = regexp.MustCompile(`^call +([0-9]+) +(?:returned +(` + valueRx + `)|never +executed)$`)
	reUncondLine = regexp.MustCompile(`^unconditional +([0-9]+) +(?:taken +(` + valueRx + `)|never +executed)$`)
	reFuncLine   = regexp.MustCompile(`^function +(.*?) +called +([0-9]+) +returned +(` + valueRx + `) +blocks +executed +(` + valueRx + `)$`)
)

type extraInfo uint8

const (
	extraNoncode extraInfo = 1 << iota
	extraExceptionOnly
	extraPartial
)

// token is one categorized gcov output line. Categorization is total:
// every line is either one of these variants or an UnknownLineError.
type token interface{ gcovToken() }

type sourceToken struct {
	Hits   int64
	Lineno int
	Code   string
	Extra  extraInfo
}

type metadataToken struct {
	Key      string
	Value    string
	HasValue bool
}

type blockToken struct {
	Hits    int64
	Lineno  int
	BlockID int
}

type branchToken struct {
	Branchno   int
	Hits       int64
	Annotation string
}

type callToken struct {
	Callno   int
	Returned int64
}

type unconditionalToken struct {
	Branchno int
	Hits     int64
}

type functionToken struct {
	Name          string
	CallCount     int64
	BlocksCovered float64
}

type specializationNameToken struct{ Name string }

type specializationSeparatorToken struct{}

func (sourceToken) gcovToken()                  {}
func (metadataToken) gcovToken()                {}
func (blockToken) gcovToken()                   {}
func (branchToken) gcovToken()                  {}
func (callToken) gcovToken()                    {}
func (unconditionalToken) gcovToken()           {}
func (functionToken) gcovToken()                {}
func (specializationNameToken) gcovToken()      {}
func (specializationSeparatorToken) gcovToken() {}

// ParseMetadata reads the `-: 0:Key:value` header of a gcov report.
// The header ends at the first non-metadata line. A report without a
// Source key cannot be attributed to a file and is rejected.
func ParseMetadata(filename string, lines []string) (map[string]string, error) {
	validator := newHitsValidator(DefaultOptions(), nil)
	metadata := make(map[string]string)
	for _, line := range lines {
		if line == "" {
			continue
		}
		tok, err := parseLine(line, validator)
		if err != nil {
			return nil, fmt.Errorf("parsing metadata of %s: %w", filename, err)
		}
		meta, ok := tok.(metadataToken)
		if !ok {
			break
		}
		metadata[meta.Key] = meta.Value
	}

	if _, ok := metadata["Source"]; !ok {
		return nil, fmt.Errorf("missing key 'Source' in metadata of gcov output %s", filename)
	}
	return metadata, nil
}

// lineError pairs an unparseable raw line with its error and its
// position in the report for the closing diagnosis.
type lineError struct {
	lineno int
	line   string
	err    error
}

// ParseText extracts the coverage fragment from an annotated-source
// gcov report. sourceFilename is the resolved path of the measured
// source file; dataSource names the gcov output for provenance.
//
// Returns the fragment and the source code text reconstructed from the
// annotated rows, indexed by line number starting at 1.
func ParseText(lines []string, sourceFilename, dataSource string, opts Options, diag *Diagnostics) (*coverage.FileCoverage, []string, error) {
	validator := newHitsValidator(opts, diag)

	var errLines []lineError
	tokens := make([]token, 0, len(lines))
	rawLines := make([]string, 0, len(lines))
	rawNos := make([]int, 0, len(lines))
	for i, raw := range lines {
		if raw == "" {
			continue
		}
		tok, err := parseLine(raw, validator)
		if err != nil {
			errLines = append(errLines, lineError{lineno: i + 1, line: raw, err: err})
			continue
		}
		tokens = append(tokens, tok)
		rawLines = append(rawLines, raw)
		rawNos = append(rawNos, i+1)
	}

	if opts.UseExistingFiles && missingFunctionTags(tokens) {
		logger.Warnf("No function line found in gcov file %s.\n"+
			"This may indicate that the file was generated without the proper gcov options\n"+
			"(especially --branch-probabilities).", dataSource)
	}

	validator.logTotals()

	filecov := coverage.NewFileCoverage(sourceFilename, dataSource)
	parser := &textParser{filecov: filecov, functionName: UnknownFunctionName, blockID: coverage.UnknownBlock}
	for i, tok := range tokens {
		if err := parser.gather(tok); err != nil {
			errLines = append(errLines, lineError{lineno: rawNos[i], line: rawLines[i], err: err})
			parser.recover()
		}
	}
	if err := parser.finish(); err != nil {
		return nil, nil, err
	}

	if err := reportErrLines(errLines, sourceFilename, opts, diag); err != nil {
		return nil, nil, err
	}

	return filecov, reconstructSource(tokens), nil
}

// missingFunctionTags reports whether the tokens contain measurement
// rows but no function tag at all.
func missingFunctionTags(tokens []token) bool {
	sawContent := false
	for _, tok := range tokens {
		switch tok.(type) {
		case functionToken:
			return false
		case metadataToken:
		default:
			sawContent = true
		}
	}
	return sawContent
}

// reconstructSource rebuilds the source text from the annotated rows.
// Rows gcov did not emit stay empty.
func reconstructSource(tokens []token) []string {
	maxLineno := 0
	for _, tok := range tokens {
		if src, ok := tok.(sourceToken); ok && src.Lineno > maxLineno {
			maxLineno = src.Lineno
		}
	}
	src := make([]string, maxLineno)
	for _, tok := range tokens {
		if srcTok, ok := tok.(sourceToken); ok && srcTok.Lineno >= 1 {
			src[srcTok.Lineno-1] = srcTok.Code
		}
	}
	return src
}

func reportErrLines(errLines []lineError, sourceFilename string, opts Options, diag *Diagnostics) error {
	if len(errLines) == 0 {
		return nil
	}
	if diag != nil {
		diag.UnrecognizedLines.Add(int64(len(errLines)))
	}

	lines := make([]string, len(errLines))
	for i, le := range errLines {
		lines[i] = le.line
	}
	logger.Warnf("Unrecognized gcov output for %s:\n\t  %s\n"+
		"\tThis is indicative of a gcov output parse error.",
		sourceFilename, strings.Join(lines, "\n\t  "))
	for _, le := range errLines {
		logger.Warnf("Exception during parsing: %v", le.err)
	}

	if opts.ignoresAny(IgnoreAll) {
		return nil
	}
	logger.Errorf("Exiting because of parse errors.\n" +
		"\tYou can run with gcov-ignore-parse-errors=all to continue anyway.")
	first := errLines[0]
	return &ParseError{File: sourceFilename, Lineno: first.lineno, Text: first.line, Err: first.err}
}

// textParser is the state machine that folds categorized lines into a
// fragment. Function tags apply to a later source row, template
// specialization sections shadow the surrounding state, and parse
// errors reset the machine until the next source row.
type textParser struct {
	filecov *coverage.FileCoverage

	deferred         []functionToken
	functionName     string
	inSpecialization bool
	lastLine         *coverage.LineCoverage
	blockID          int
	recovering       bool
	saved            *savedParserState

	// seenLines are the aggregate section's rows, tracked so a
	// following specialization section can retract them.
	seenLines []*coverage.LineCoverage
}

type savedParserState struct {
	deferred         []functionToken
	functionName     string
	inSpecialization bool
	lastLine         *coverage.LineCoverage
	blockID          int
	recovering       bool
	saved            *savedParserState
}

// save shelves everything but the tracked aggregate rows and starts a
// specialization scope.
func (p *textParser) save() {
	p.saved = &savedParserState{
		deferred:         p.deferred,
		functionName:     p.functionName,
		inSpecialization: p.inSpecialization,
		lastLine:         p.lastLine,
		blockID:          p.blockID,
		recovering:       p.recovering,
		saved:            p.saved,
	}
	p.deferred = nil
	p.functionName = ""
	p.inSpecialization = true
	p.lastLine = nil
	p.blockID = coverage.UnknownBlock
	p.recovering = false
}

// restore leaves a specialization scope.
func (p *textParser) restore() {
	saved := p.saved
	p.deferred = saved.deferred
	p.functionName = saved.functionName
	p.inSpecialization = saved.inSpecialization
	p.lastLine = saved.lastLine
	p.blockID = saved.blockID
	p.recovering = saved.recovering
	p.saved = saved.saved
}

// recover resets the machine after a bad row; gathering resumes at the
// next source row.
func (p *textParser) recover() {
	*p = textParser{filecov: p.filecov, blockID: coverage.UnknownBlock, recovering: true}
}

func (p *textParser) gather(tok token) error {
	if src, ok := tok.(sourceToken); ok {
		return p.gatherSource(src)
	}
	if p.recovering {
		return nil
	}

	switch tok := tok.(type) {
	case functionToken:
		// The tag describes the next source row; defer it so the
		// function gets that row's line number.
		if len(p.deferred) > 0 {
			logger.Debugf("Several function definitions for the next source row; function %s will not contain line coverage.",
				p.deferred[len(p.deferred)-1].Name)
		}
		p.deferred = append(p.deferred, tok)
		p.functionName = tok.Name

	case specializationNameToken:
		p.save()

	case specializationSeparatorToken:
		if p.inSpecialization {
			p.restore()
		}

	case branchToken:
		if p.lastLine != nil {
			branchcov, err := coverage.NewBranchCoverage(
				tok.Branchno, p.blockID, coverage.UnknownBlock,
				tok.Hits, tok.Annotation == "fallthrough", tok.Annotation == "throw")
			if err != nil {
				return err
			}
			p.lastLine.InsertBranch(branchcov)
		}

	case callToken:
		// lastLine is nil if the row was considered noncode.
		if p.lastLine != nil {
			callcov, err := coverage.NewCallCoverage(tok.Callno, p.blockID, coverage.UnknownBlock, tok.Returned)
			if err != nil {
				return err
			}
			p.lastLine.InsertCall(callcov)
		}

	case blockToken:
		p.blockID = tok.BlockID

	case metadataToken, unconditionalToken:
		// Already consumed by ParseMetadata; unconditional branches
		// carry no reportable data.

	default:
		return fmt.Errorf("unexpected gcov token %T", tok)
	}
	return nil
}

func (p *textParser) gatherSource(src sourceToken) error {
	if src.Extra&extraNoncode != 0 {
		return nil
	}

	if err := p.flushDeferred(src.Lineno); err != nil {
		return err
	}

	// A specialization section following the aggregate section means
	// the aggregate rows in its range carried bogus summed counts;
	// retract them.
	if p.inSpecialization && len(p.seenLines) > 0 &&
		p.seenLines[0].Lineno <= src.Lineno && src.Lineno <= p.seenLines[len(p.seenLines)-1].Lineno {
		for _, linecov := range p.seenLines {
			if linecov.Lineno >= src.Lineno {
				logger.Debugf("%s: retracting aggregated row of function %s.", linecov.Location(), linecov.FunctionName)
				p.filecov.RemoveLine(linecov)
			}
		}
		p.seenLines = p.seenLines[:0]
	}

	linecov, err := coverage.NewLineCoverage(src.Lineno, p.functionName, src.Hits, md5Hex(src.Code))
	if err != nil {
		return err
	}
	inserted, err := p.filecov.InsertLine(linecov, coverage.DefaultMergeOptions())
	if err != nil {
		return err
	}
	p.lastLine = inserted
	p.recovering = false
	if !p.inSpecialization {
		p.seenLines = append(p.seenLines, inserted)
	}
	return nil
}

// flushDeferred materializes pending function tags at the given line.
func (p *textParser) flushDeferred(lineno int) error {
	for _, fn := range p.deferred {
		functioncov, err := coverage.NewFunctionCoverage(fn.Name, "", lineno, fn.CallCount, fn.BlocksCovered, nil, nil)
		if err != nil {
			return err
		}
		if _, err := p.filecov.InsertFunction(functioncov, coverage.MaxLineMergeOptions()); err != nil {
			return err
		}
	}
	p.deferred = p.deferred[:0]
	return nil
}

// finish flushes function tags with no following source row and
// attaches the synthetic record for rows seen before any function tag.
func (p *textParser) finish() error {
	lineno := 0
	if p.lastLine != nil {
		lineno = p.lastLine.Lineno + 1
	}
	if err := p.flushDeferred(lineno); err != nil {
		return err
	}

	unknownLineno := 0
	for _, key := range p.filecov.SortedLineKeys() {
		if key.FunctionName == UnknownFunctionName {
			unknownLineno = key.Lineno
			break
		}
	}
	if unknownLineno > 0 {
		logger.Debugf("%s: rows before the first function tag have no attributable function; excluding them from function statistics.",
			p.filecov.Filename)
		functioncov, err := coverage.NewFunctionCoverage(UnknownFunctionName, "", unknownLineno, 0, 0, nil, nil)
		if err != nil {
			return err
		}
		functioncov.SetExcluded()
		if _, err := p.filecov.InsertFunction(functioncov, coverage.MaxLineMergeOptions()); err != nil {
			return err
		}
	}
	return nil
}

// parseLine categorizes one gcov output line.
func parseLine(line string, validator *hitsValidator) (token, error) {
	if tok, matched, err := parseTagLine(line, validator); err != nil {
		return nil, err
	} else if matched {
		return tok, nil
	}

	// Rows shaped like source rows also cover metadata and block rows.
	if match := reSourceLine.FindStringSubmatch(line); match != nil {
		hitsStr, linenoStr, code := match[1], match[2], match[3]
		lineno, err := strconv.Atoi(linenoStr)
		if err != nil {
			return nil, fmt.Errorf("malformed line number %q: %w", linenoStr, err)
		}

		if hitsStr == "-" && linenoStr == "0" {
			if key, value, found := strings.Cut(code, ":"); found {
				return metadataToken{Key: key, Value: strings.TrimSpace(value), HasValue: true}, nil
			}
			return metadataToken{Key: code}, nil
		}

		var hits int64
		var extra extraInfo
		switch {
		case hitsStr == "-":
			extra = extraNoncode
		case hitsStr == "#####":
		case hitsStr == "=====":
			extra = extraExceptionOnly
		case strings.HasSuffix(hitsStr, "*"):
			if hits, err = parseHitsValue(strings.TrimSuffix(hitsStr, "*")); err != nil {
				return nil, err
			}
			extra = extraPartial
		default:
			if hits, err = parseHitsValue(hitsStr); err != nil {
				return nil, err
			}
		}
		if hits, err = validator.check(hits, line); err != nil {
			return nil, err
		}
		return sourceToken{Hits: hits, Lineno: lineno, Code: code, Extra: extra}, nil
	}

	if strings.Contains(line, "-block ") {
		if match := reBlockLine.FindStringSubmatch(line); match != nil {
			hitsStr := match[1]
			lineno, _ := strconv.Atoi(match[2])
			blockID, _ := strconv.Atoi(match[3])

			var hits int64
			var err error
			switch hitsStr {
			case "%%%%%", "$$$$$":
			default:
				if hits, err = parseHitsValue(hitsStr); err != nil {
					return nil, err
				}
			}
			if hits, err = validator.check(hits, line); err != nil {
				return nil, err
			}
			return blockToken{Hits: hits, Lineno: lineno, BlockID: blockID}, nil
		}
	}

	// A specialization name is any row starting in the first column
	// and ending with ":". Demangled names have no further reliable
	// structure, so this check comes last.
	if first, _ := utf8.DecodeRuneInString(line); len(line) > 2 && !unicode.IsSpace(first) && strings.HasSuffix(line, ":") {
		return specializationNameToken{Name: strings.TrimSuffix(line, ":")}, nil
	}

	return nil, &UnknownLineError{Line: line}
}

// parseTagLine handles the tag rows that start in the first column:
// branch, call, unconditional, function, and the specialization
// separator.
func parseTagLine(line string, validator *hitsValidator) (token, bool, error) {
	if strings.HasPrefix(line, " ") {
		return nil, false, nil
	}

	if strings.HasPrefix(line, "branch ") {
		if match := reBranchLine.FindStringSubmatch(line); match != nil {
			branchno, _ := strconv.Atoi(match[1])
			hits, err := hitsOrZero(match[2])
			if err != nil {
				return nil, false, err
			}
			if hits, err = validator.check(hits, line); err != nil {
				return nil, false, err
			}
			return branchToken{Branchno: branchno, Hits: hits, Annotation: match[3]}, true, nil
		}
	}

	if strings.HasPrefix(line, "call ") {
		if match := reCallLine.FindStringSubmatch(line); match != nil {
			callno, _ := strconv.Atoi(match[1])
			returned, err := hitsOrZero(match[2])
			if err != nil {
				return nil, false, err
			}
			return callToken{Callno: callno, Returned: returned}, true, nil
		}
	}

	if strings.HasPrefix(line, "unconditional ") {
		if match := reUncondLine.FindStringSubmatch(line); match != nil {
			branchno, _ := strconv.Atoi(match[1])
			hits, err := hitsOrZero(match[2])
			if err != nil {
				return nil, false, err
			}
			if hits, err = validator.check(hits, line); err != nil {
				return nil, false, err
			}
			return unconditionalToken{Branchno: branchno, Hits: hits}, true, nil
		}
	}

	if strings.HasPrefix(line, "function ") {
		if match := reFuncLine.FindStringSubmatch(line); match != nil {
			count, err := parseHitsValue(match[2])
			if err != nil {
				return nil, false, err
			}
			blocks, err := parsePercentValue(match[4])
			if err != nil {
				return nil, false, err
			}
			return functionToken{Name: match[1], CallCount: count, BlocksCovered: blocks}, true, nil
		}
	}

	if line == specializationSeparator {
		return specializationSeparatorToken{}, true, nil
	}

	return nil, false, nil
}

// hitsOrZero parses an optional VALUE field; "never executed" rows
// leave it empty.
func hitsOrZero(formatted string) (int64, error) {
	if formatted == "" {
		return 0, nil
	}
	return parseHitsValue(formatted)
}

func md5Hex(text string) string {
	digest := md5.Sum([]byte(text))
	return hex.EncodeToString(digest[:])
}
