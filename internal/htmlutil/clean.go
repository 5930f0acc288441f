package htmlutil

import (
	"regexp"

	"github.com/k3a/html2text"
)

var spaceRe = regexp.MustCompile(`\s+`)

// ToText converts HTML to plain text using a proper HTML parser.
// Handles entities, strips tags, and preserves readable text.
func ToText(s string) string {
	return html2text.HTML2Text(s)
}

// Flatten converts HTML to a single line of whitespace-collapsed text,
// suited to regex scans over a whole scraped page.
func Flatten(s string) string {
	return spaceRe.ReplaceAllString(ToText(s), " ")
}
