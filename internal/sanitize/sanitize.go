// Package sanitize converts remote HTML status and bio bodies into the plain
// text stored locally.
//
// [Text] is pure and safe for concurrent use. Its passes are repeated until the
// output stops changing, so Text(Text(s)) == Text(s) for every input.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	lineBreak    = regexp.MustCompile(`(?i)<br\s*/?>`)
	paragraphEnd = regexp.MustCompile(`(?i)</p\s*>`)
	tagName      = regexp.MustCompile(`^/?([A-Za-z][A-Za-z0-9]*)(?:[\s/>]|$)`)

	// strict keeps no elements at all; text content survives HTML-escaped.
	strict = bluemonday.StrictPolicy()

	// entities reverses the escaping done by the stripper plus the named
	// entities remote servers commonly emit.
	entities = strings.NewReplacer(
		"&nbsp;", " ",
		"\u00a0", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#34;", `"`,
		"&#39;", "'",
	)

	// elements are the tag names recognised as markup.
	elements = setOf(
		"a", "abbr", "address", "article", "aside", "audio", "b", "bdi", "bdo",
		"big", "blockquote", "body", "br", "button", "caption", "center", "cite",
		"code", "col", "colgroup", "dd", "del", "details", "dfn", "div", "dl",
		"dt", "em", "embed", "figcaption", "figure", "font", "footer", "form",
		"h1", "h2", "h3", "h4", "h5", "h6", "head", "header", "hr", "html", "i",
		"iframe", "img", "input", "ins", "kbd", "label", "li", "link", "main",
		"mark", "meta", "nav", "noscript", "object", "ol", "option", "p",
		"picture", "pre", "q", "rp", "rt", "ruby", "s", "samp", "script",
		"section", "select", "small", "source", "span", "strike", "strong",
		"style", "sub", "summary", "sup", "svg", "table", "tbody", "td",
		"template", "textarea", "tfoot", "th", "thead", "time", "title", "tr",
		"track", "tt", "u", "ul", "var", "video", "wbr",
	)
)

func setOf(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Text strips markup from s. Line breaks and paragraph ends become "\n",
// every other tag is removed, common entities are unescaped and surrounding
// whitespace is trimmed.
//
// Only complete HTML element tags count as markup. A "<" that does not open
// one, as in "x <y", "a <b then c" or "List<T>", is kept as text.
func Text(s string) string {
	out := s
	for {
		next := pass(out)
		if next == out {
			return out
		}
		out = next
	}
}

func pass(s string) string {
	s = lineBreak.ReplaceAllString(s, "\n")
	s = paragraphEnd.ReplaceAllString(s, "\n")
	s = strict.Sanitize(escapeStrayAngles(s))
	s = entities.Replace(s)
	return strings.TrimSpace(s)
}

// escapeStrayAngles rewrites every "<" that does not start an element tag or
// a comment to "&lt;", so the stripper treats it as text.
func escapeStrayAngles(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '<' && !opensTag(s[i+1:]) {
			b.WriteString("&lt;")
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// opensTag reports whether rest, the text after a "<", continues as a
// comment or as an element tag closed by ">" before the next "<".
func opensTag(rest string) bool {
	if strings.HasPrefix(rest, "!--") {
		return true
	}
	m := tagName.FindStringSubmatch(rest)
	if m == nil || !elements[strings.ToLower(m[1])] {
		return false
	}
	end := strings.IndexByte(rest, '>')
	next := strings.IndexByte(rest, '<')
	return end >= 0 && (next < 0 || end < next)
}
