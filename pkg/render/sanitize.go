package render

import (
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	markupPolicyOnce sync.Once
	markupPolicy     *bluemonday.Policy
)

// descriptionPolicy allows the inline markup used in field descriptions and
// notices (links, emphasis, code) and nothing else.
func descriptionPolicy() *bluemonday.Policy {
	markupPolicyOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowElements("a", "b", "strong", "em", "i", "code", "br", "span")
		p.AllowAttrs("href").OnElements("a")
		p.AllowAttrs("class").OnElements("span", "code")
		p.AllowURLSchemes("https", "http", "mailto")
		p.RequireNoFollowOnLinks(true)
		p.RequireParseableURLs(true)
		markupPolicy = p
	})
	return markupPolicy
}

// SanitizeMarkup strips anything outside the inline allow-list from s.
func SanitizeMarkup(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return descriptionPolicy().Sanitize(s)
}

// StripMarkup removes every tag from s, keeping the text content.
func StripMarkup(s string) string {
	return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(s))
}
