// Package heuristics classifies user-supplied text as injection-like, spam-like
// or degenerate. The checks are pattern based, deterministic and free of I/O; they
// flag probable abuse without any guarantee of precision.
package heuristics

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxTextBytes bounds how much of a text is inspected. Longer input is cut at the
// last rune boundary below the limit; callers that must judge the whole text
// reject anything longer.
const MaxTextBytes = 8 << 10

// clip returns at most MaxTextBytes of text without splitting a rune.
func clip(text string) string {
	if len(text) <= MaxTextBytes {
		return text
	}
	cut := MaxTextBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// Verdict groups both classifications of one text.
type Verdict struct {
	Suspicious bool `json:"suspicious"`
	Spam       bool `json:"spam"`
}

// Classify runs every heuristic on text.
func Classify(text string) Verdict {
	return Verdict{Suspicious: IsSuspiciousInput(text), Spam: IsSpam(text)}
}

var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bunion\s+(all\s+)?select\b`),
	regexp.MustCompile(`['"` + "`" + `]\s*;\s*(drop|delete|insert|update|alter|truncate|exec|execute|union|select|create|shutdown)\b`),
	regexp.MustCompile(`;\s*(drop\s+table|delete\s+from|insert\s+into|update\s+\w+\s+set|select\s+\S+\s+from|truncate\s+table|exec(ute)?\s)`),
	regexp.MustCompile(`\b(drop|truncate|alter)\s+(table|database|schema)\b`),
	regexp.MustCompile(`['"]\s*(or|and)\s+['"]?\w+['"]?\s*(=|like\b|<|>)`),
	regexp.MustCompile(`['"]\s*(--|/\*)`),
	regexp.MustCompile(`;\s*(--|/\*)`),
	regexp.MustCompile(`\b(sleep|benchmark)\s*\(\s*\d`),
	regexp.MustCompile(`\bwaitfor\s+delay\b`),
}

var markupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`<\s*/?\s*(script|iframe|frame|object|embed|applet|svg|img|link|style|meta|base|form)\b`),
	regexp.MustCompile(`<[^>]*\bon[a-z]+\s*=`),
	regexp.MustCompile(`\b(javascript|vbscript|livescript)\s*:`),
	regexp.MustCompile(`\bdata\s*:\s*text/html`),
}

var shellPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$\(|\$\{|` + "`"),
	regexp.MustCompile(`&&|\|\|`),
	regexp.MustCompile(`[;|&]\s*(rm\s+-|curl\s|wget\s|bash\b|zsh\b|sh\s+-c|chmod\s|chown\s|whoami\b|uname\b|nc\s+-|ncat\b|python\s+-c|perl\s+-e|cat\s+/)`),
	regexp.MustCompile(`\.\./|\.\.\\`),
	regexp.MustCompile(`/etc/(passwd|shadow)`),
}

const minRepeatRun = 6

// IsSuspiciousInput reports whether text looks like SQL, markup/script or shell
// injection, contains embedded newlines, or is degenerate (only punctuation, or a
// single character repeated six or more times in a row). Emoji and other symbols
// count as content, not punctuation.
func IsSuspiciousInput(text string) bool {
	if text == "" {
		return false
	}
	normalized := norm.NFKC.String(clip(text))
	if strings.ContainsAny(normalized, "\r\n") {
		return true
	}
	lower := strings.ToLower(normalized)
	if matchAny(sqlPatterns, lower) || matchAny(markupPatterns, lower) || matchAny(shellPatterns, lower) {
		return true
	}
	return isDegenerate(normalized)
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func isDegenerate(s string) bool {
	onlyPunct := true
	seenVisible := false
	var prev rune
	run := 0
	for i, r := range s {
		if i > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= minRepeatRun {
			return true
		}
		prev = r

		if unicode.IsSpace(r) {
			continue
		}
		seenVisible = true
		if !unicode.IsPunct(r) {
			onlyPunct = false
		}
	}
	return seenVisible && onlyPunct
}

var urlPattern = regexp.MustCompile(`(?i)https?://`)

// spamKeywords are matched case-insensitively anywhere in the text.
var spamKeywords = []string{
	"viagra",
	"cialis",
	"free money",
	"earn money",
	"casino",
	"lottery",
	"prize",
	"winner",
	"buy now",
}

const (
	maxURLs       = 3
	minRepeatUnit = 4
	maxRepeatUnit = 256
	minRepeats    = 3
)

// IsSpam reports whether text carries more than three links, repeats a chunk of
// four to 256 characters at least three times in a row, or mentions a spam keyword.
func IsSpam(text string) bool {
	if text == "" {
		return false
	}
	normalized := norm.NFKC.String(clip(text))
	if len(urlPattern.FindAllStringIndex(normalized, -1)) > maxURLs {
		return true
	}
	if hasRepeatedChunk([]rune(normalized), minRepeatUnit, maxRepeatUnit, minRepeats) {
		return true
	}
	lower := strings.ToLower(normalized)
	for _, kw := range spamKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// hasRepeatedChunk reports whether some substring of minUnit to maxUnit runes
// occurs `times` times back to back. For a unit length L this holds exactly when
// s[k] == s[k+L] for (times-1)*L consecutive positions k. The scan costs
// O(len(s) * maxUnit).
func hasRepeatedChunk(s []rune, minUnit, maxUnit, times int) bool {
	n := len(s)
	for l := minUnit; l <= maxUnit && l*times <= n; l++ {
		need := (times - 1) * l
		run := 0
		for k := 0; k+l < n; k++ {
			if s[k] != s[k+l] {
				run = 0
				continue
			}
			run++
			if run >= need {
				return true
			}
		}
	}
	return false
}
