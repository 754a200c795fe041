// Package cleanse strips templating tokens and markup from raw content
// text and normalizes whitespace, matching the cleansing rules the
// Extractor applies to every content field before hashing and enrichment.
package cleanse

import (
	"regexp"
	"strings"
)

var (
	templateTokenRe = regexp.MustCompile(`\{%.*?%\}`)
	htmlTagRe       = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// Text applies the fixed-order cleansing pipeline to content and returns
// the cleansed string, or "" if nothing remains after trimming.
func Text(content string) string {
	out := templateTokenRe.ReplaceAllString(content, " ")
	out = htmlTagRe.ReplaceAllString(out, " ")
	out = whitespaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
