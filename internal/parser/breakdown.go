package parser

import (
	"regexp"
	"strings"
)

// breakdownToken matches one "points/year" element like "110/23" or "160/'24".
// Years are exactly two digits.
var breakdownToken = regexp.MustCompile(`\d+\s*/\s*'?\d{2}\b`)

var breakdownSeparators = regexp.MustCompile(`\s*[,;-]\s*|\s{2,}`)

// ExtractPointsBreakdown pulls a per-year point allocation out of free text.
// At least two year tokens are required; a single "110/23" is too ambiguous
// to be a breakdown. Apostrophes are dropped and separators are normalized to
// a comma-space so equivalent breakdowns compare equal. Returns "" when no
// breakdown is present.
func ExtractPointsBreakdown(text string) string {
	tokens := breakdownToken.FindAllString(text, -1)
	if len(tokens) < 2 {
		return ""
	}

	start := breakdownToken.FindStringIndex(text)[0]
	segment := text[start:]
	if end := strings.LastIndex(segment, tokens[len(tokens)-1]); end >= 0 {
		segment = segment[:end+len(tokens[len(tokens)-1])]
	}

	segment = strings.ReplaceAll(segment, "'", "")
	segment = breakdownSeparators.ReplaceAllString(segment, ", ")
	parts := strings.Split(segment, ", ")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
