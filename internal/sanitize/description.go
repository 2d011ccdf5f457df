// Package sanitize cleans generated character descriptions before they
// reach the ledger or the asset publisher.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxDescription is the longest description accepted by default.
const MaxDescription = 300

var (
	tagPattern    = regexp.MustCompile(`</?(?:thinking|description|answer|output|result)[^>]*>`)
	labelPattern  = regexp.MustCompile(`(?i)^(?:new |improved |character )?description\s*:\s*`)
	spacePattern  = regexp.MustCompile(`\s+`)
	markupPattern = regexp.MustCompile("[*_`#]+")
)

// StripTags removes wrapper tags models sometimes put around an answer.
func StripTags(text string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(text, ""))
}

// Description normalizes model output into a single-line description:
// wrapper tags, a leading "Description:" label, markdown emphasis and
// surrounding quotes are removed, whitespace is collapsed and the result
// is capped at max runes on a word boundary. max <= 0 uses MaxDescription.
func Description(text string, max int) string {
	if max <= 0 {
		max = MaxDescription
	}
	s := StripTags(text)
	s = markupPattern.ReplaceAllString(s, "")
	s = spacePattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = trimQuotes(s)
	s = labelPattern.ReplaceAllString(s, "")
	s = trimQuotes(s)
	return truncate(s, max)
}

func trimQuotes(s string) string {
	for {
		s = strings.TrimSpace(s)
		if len(s) < 2 {
			return s
		}
		first, _ := utf8.DecodeRuneInString(s)
		last, _ := utf8.DecodeLastRuneInString(s)
		if !isQuotePair(first, last) {
			return s
		}
		s = s[utf8.RuneLen(first) : len(s)-utf8.RuneLen(last)]
	}
}

func isQuotePair(a, b rune) bool {
	switch a {
	case '"':
		return b == '"'
	case '\'':
		return b == '\''
	case '“':
		return b == '”'
	case '‘':
		return b == '’'
	}
	return false
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:max])
	if idx := strings.LastIndex(cut, " "); idx > len(cut)/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,;:-")
}
