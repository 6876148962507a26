package portal

import "regexp"

// Parser extracts the portal redirect URL and the one-time form token from
// HTML. Both methods are pure; the patterns are compiled once at
// construction and the Parser is safe for concurrent use.
type Parser struct {
	redirectRe *regexp.Regexp
	magicRe    *regexp.Regexp
}

// NewParser compiles the portal page patterns.
func NewParser() *Parser {
	return &Parser{
		// Client-side redirect the gateway injects into intercepted pages.
		redirectRe: regexp.MustCompile(`window\.location="([^"]*)"`),
		// Hidden one-time token on the login form. Double-quoted attributes
		// and exact casing only; portal variants that deviate yield nothing.
		magicRe: regexp.MustCompile(`<input[^>]*type="hidden"[^>]*name="magic"[^>]*value="([^"]*)"`),
	}
}

// RedirectURL returns the target of the first redirect assignment in
// document order, if any.
func (p *Parser) RedirectURL(html string) (string, bool) {
	m := p.redirectRe.FindStringSubmatch(html)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FormToken returns the value of the hidden magic input. An empty value is
// reported as absent, never as an empty token.
func (p *Parser) FormToken(html string) (string, bool) {
	m := p.magicRe.FindStringSubmatch(html)
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}
