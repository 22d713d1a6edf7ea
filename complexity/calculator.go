// Package complexity scores a file's structural complexity. The daemon
// treats the scoring routine as a black box behind the Calculator
// interface; Structural is the built-in analyzer.
package complexity

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Calculator computes a structural-complexity score for one file
type Calculator interface {
	Score(path string) (int64, error)
}

// maxScanSize caps how much of a file the analyzer reads
const maxScanSize = 1 << 20 // 1 MiB

// decisionTokens are the branch points counted toward the score
var decisionTokens = []string{
	"if ", "if(", "else", "for ", "for(", "while ", "while(",
	"case ", "catch ", "catch(", "switch ", "switch(",
	"elif ", "except ", "&&", "||", "?:",
}

// Structural is the default analyzer: one point per line of code plus one
// per decision point plus the line's indentation depth. Binary files score
// zero.
type Structural struct{}

// NewStructural returns the built-in analyzer
func NewStructural() *Structural {
	return &Structural{}
}

// Score computes the structural complexity of the file at path
func (s *Structural) Score(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var score int64
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxScanSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if bytes.ContainsRune(line, 0) {
			// Binary content; structural analysis does not apply
			return 0, nil
		}

		trimmed := strings.TrimSpace(string(line))
		if trimmed == "" || isComment(trimmed) {
			continue
		}

		score++
		score += int64(indentDepth(string(line)))
		for _, token := range decisionTokens {
			score += int64(strings.Count(trimmed, token))
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan %s: %w", path, err)
	}

	return score, nil
}

// isComment filters whole-line comments in the usual syntaxes
func isComment(trimmed string) bool {
	return strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "#") ||
		strings.HasPrefix(trimmed, "*") ||
		strings.HasPrefix(trimmed, "/*")
}

// indentDepth counts leading indentation units (tab or 4 spaces)
func indentDepth(line string) int {
	depth := 0
	spaces := 0
	for _, r := range line {
		switch r {
		case '\t':
			depth++
			spaces = 0
		case ' ':
			spaces++
			if spaces == 4 {
				depth++
				spaces = 0
			}
		default:
			return depth
		}
	}
	return depth
}
