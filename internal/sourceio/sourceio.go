// Package sourceio reads source files as line slices, decoding from a
// configurable character encoding into UTF-8. Coverage tools name
// files in whatever encoding the build used; reports and checksums
// want UTF-8.
package sourceio

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// FilesystemError reports a failed filesystem operation on one input
// or measured file. Callers distinguish it from parse errors to skip
// the affected file instead of aborting the whole run.
type FilesystemError struct {
	Path string
	Op   string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// ReadLines reads filename and returns its lines without terminators.
// encodingName is an IANA charset name; empty means UTF-8. Bytes that
// do not decode are replaced, never dropped.
func ReadLines(filename, encodingName string) ([]string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, &FilesystemError{Path: filename, Op: "reading", Err: err}
	}
	text, err := Decode(data, encodingName)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filename, err)
	}
	return SplitLines(text), nil
}

// Decode converts raw bytes from the named encoding to a UTF-8 string.
func Decode(data []byte, encodingName string) (string, error) {
	if encodingName == "" || strings.EqualFold(encodingName, "utf-8") || strings.EqualFold(encodingName, "utf8") {
		return string(data), nil
	}
	enc, err := ianaindex.IANA.Encoding(encodingName)
	if err != nil || enc == nil {
		return "", fmt.Errorf("unknown source encoding %q", encodingName)
	}
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// SplitLines splits text into lines, accepting LF and CRLF endings. A
// trailing terminator does not produce a final empty line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
