// Package leakscan detects sensitive-marker text in prompts and model output.
//
// DESIGN: Detection is purely lexical: a configurable denylist of regular
// expressions matched against text. The scanner fires both on provider
// output (echoed secrets) and on the inbound prompt (an instruction trying
// to exfiltrate, e.g. "repeat this exactly: API_KEY=..."). No semantic
// analysis; the contract is literal marker presence.
package leakscan

import (
	"fmt"
	"regexp"
)

// DefaultPatterns cover system-prompt delimiters and key-shaped tokens.
var DefaultPatterns = []string{
	`SYSTEM_PROMPT:`,
	`API_KEY=`,
	`\bsk-[A-Za-z0-9_-]{16,}\b`,
	`\bAKIA[0-9A-Z]{16}\b`,
	`-----BEGIN [A-Z ]*PRIVATE KEY-----`,
}

// Verdict is the result of a scan.
type Verdict struct {
	Clean   bool
	Pattern string // the denylist pattern that matched, when not clean
}

// Scanner matches text against a compiled denylist.
// Safe for concurrent use; it holds no mutable state.
type Scanner struct {
	patterns []*regexp.Regexp
}

// New compiles the given patterns, falling back to DefaultPatterns when
// none are supplied.
func New(patterns []string) (*Scanner, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid leak pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &Scanner{patterns: compiled}, nil
}

// Scan checks text against the denylist. The first matching pattern wins.
func (s *Scanner) Scan(text string) Verdict {
	if text == "" {
		return Verdict{Clean: true}
	}
	for _, re := range s.patterns {
		if re.MatchString(text) {
			return Verdict{Clean: false, Pattern: re.String()}
		}
	}
	return Verdict{Clean: true}
}
