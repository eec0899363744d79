package render

import (
	"html"
	"regexp"
	"strings"
)

var (
	reDropBlocks = regexp.MustCompile(`(?is)<(script|style|head)[^>]*>.*?</(script|style|head)>`)
	reLineBreaks = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/h[1-6]|/li|/tr)\s*/?>`)
	reLinks      = regexp.MustCompile(`(?is)<a\s[^>]*href\s*=\s*["']([^"']+)["'][^>]*>(.*?)</a>`)
	reTags       = regexp.MustCompile(`(?s)<[^>]*>`)
	reSpaces     = regexp.MustCompile(`[ \t\x{00A0}]+`)
	reBlankLines = regexp.MustCompile(`\n{3,}`)
)

// PlainText derives a text alternative from rendered HTML mail. Links keep
// their target in parentheses so they stay usable in text-only clients.
func PlainText(s string) string {
	s = reDropBlocks.ReplaceAllString(s, "")
	s = reLinks.ReplaceAllString(s, "$2 ($1)")
	s = reLineBreaks.ReplaceAllString(s, "\n")
	s = reTags.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(reSpaces.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = reBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
