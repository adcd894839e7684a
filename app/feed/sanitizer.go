package feed

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"
)

var (
	// <p-->, <br -->, </div---> as emitted by some broken feed generators
	dashClosedTagRe = regexp.MustCompile(`<(/?[a-zA-Z][a-zA-Z0-9]*)(\s[^<>]*?)??\s*-{2,}>`)
	startTagRe      = regexp.MustCompile(`<[a-zA-Z][a-zA-Z0-9]*\s[^<>]*>`)
	styleClassRe    = regexp.MustCompile(`(?i)\s+(?:style|class)\s*=\s*(?:"[^"]*"|'[^']*'|[^\s"'>]+)`)
	scriptBlockRe   = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	styleBlockRe    = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
)

// CleanHTML repairs dash-terminated tags, drops style and class attributes, removes
// script and style blocks and trims the result. Passes repeat until the text stops changing,
// so CleanHTML(CleanHTML(x)) == CleanHTML(x).
func CleanHTML(raw string) string {
	if raw == "" {
		return raw
	}

	out := raw
	for {
		next := cleanPass(out)
		if next == out {
			return out
		}
		out = next
	}
}

// cleanPass never lengthens its input, which bounds the loop in CleanHTML.
func cleanPass(s string) string {
	s = dashClosedTagRe.ReplaceAllString(s, "<$1$2>")
	s = startTagRe.ReplaceAllStringFunc(s, stripStyleClass)
	s = scriptBlockRe.ReplaceAllString(s, "")
	s = styleBlockRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// stripStyleClass works on a single start tag, so text between tags is never touched.
func stripStyleClass(tag string) string {
	return styleClassRe.ReplaceAllString(tag, "")
}

var titlePolicy = bluemonday.StrictPolicy()

// CleanTitle strips every tag from a title, decodes entities and normalizes to NFC.
func CleanTitle(title string) string {
	title = titlePolicy.Sanitize(strings.TrimSpace(title))
	title = html.UnescapeString(title)
	title = strings.Join(strings.Fields(title), " ")
	return norm.NFC.String(title)
}
