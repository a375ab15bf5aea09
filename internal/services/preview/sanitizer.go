// -----------------------------------------------------------------------
// Sanitizer - context-aware cleaning of model-produced template content
// -----------------------------------------------------------------------

package preview

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	scriptBlockPattern  = regexp.MustCompile(`(?is)<\s*script[^>]*>.*?<\s*/\s*script\s*>`)
	scriptOpenPattern   = regexp.MustCompile(`(?i)<\s*script[^>]*>`)
	eventAttrQuoted     = regexp.MustCompile(`(?i)\s+on\w+\s*=\s*['"][^'"]*['"]`)
	eventAttrBare       = regexp.MustCompile(`(?i)\s+on\w+\s*=\s*\S+`)
	jsProtocolPattern   = regexp.MustCompile(`(?i)javascript\s*:`)
	cssExpressionClause = regexp.MustCompile(`(?i)expression\s*\([^)]*\)`)

	// Tailwind uses alphanumerics, hyphens, underscores, colons, slashes,
	// brackets, dots and hashes
	safeClassString = regexp.MustCompile(`^[a-zA-Z0-9\s\-_:/\[\]\.#]+$`)
	safeClassToken  = regexp.MustCompile(`^[a-zA-Z0-9\-_:/\[\]\.]+$`)
)

var blockedURLProtocols = []string{"javascript:", "vbscript:", "data:", "file:"}

var allowedURLSchemes = map[string]bool{
	"http":   true,
	"https":  true,
	"mailto": true,
	"tel":    true,
}

// Sanitizer cleans template trees string by string. Model output is
// untrusted; every value passes through here before rendering or storage.
type Sanitizer struct {
	htmlPolicy *bluemonday.Policy
	textPolicy *bluemonday.Policy
}

// NewSanitizer builds the HTML allowlist policy
func NewSanitizer() *Sanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		// Structure
		"div", "span", "section", "article", "header", "footer", "nav", "main", "aside",
		// Text
		"p", "h1", "h2", "h3", "h4", "h5", "h6", "br", "hr",
		// Formatting
		"strong", "b", "em", "i", "u", "s", "small", "mark", "sub", "sup",
		// Lists
		"ul", "ol", "li", "dl", "dt", "dd",
		// Links and media
		"a", "img",
		// Tables
		"table", "thead", "tbody", "tfoot", "tr", "th", "td", "caption",
		// Forms
		"form", "input", "button", "label", "select", "option", "textarea",
		// Other
		"blockquote", "pre", "code", "figure", "figcaption", "time",
	)

	p.AllowAttrs("class", "id", "role", "title").Globally()
	p.AllowDataAttributes()
	p.AllowAttrs("href", "target", "rel").OnElements("a")
	p.AllowAttrs("src", "alt", "width", "height", "loading").OnElements("img")
	p.AllowAttrs("type", "name", "value", "placeholder", "required", "disabled", "readonly", "checked").OnElements("input")
	p.AllowAttrs("type", "name", "value", "disabled").OnElements("button")
	p.AllowAttrs("for").OnElements("label")
	p.AllowAttrs("name", "required", "disabled", "multiple").OnElements("select")
	p.AllowAttrs("value", "selected", "disabled").OnElements("option")
	p.AllowAttrs("name", "placeholder", "required", "disabled", "readonly", "rows", "cols").OnElements("textarea")
	p.AllowAttrs("action", "method", "enctype").OnElements("form")
	p.AllowAttrs("colspan", "rowspan").OnElements("td")
	p.AllowAttrs("colspan", "rowspan", "scope").OnElements("th")
	p.AllowAttrs("datetime").OnElements("time")

	p.AllowURLSchemes("http", "https", "mailto", "tel")
	p.AllowRelativeURLs(true)
	p.RequireParseableURLs(true)

	return &Sanitizer{
		htmlPolicy: p,
		textPolicy: bluemonday.StrictPolicy(),
	}
}

// SanitizeTemplate cleans an entire raw template tree. The returned tree
// has the same shape; only string values change.
func (s *Sanitizer) SanitizeTemplate(template map[string]any) map[string]any {
	cleaned := s.sanitizeValue(template, "")
	out, _ := cleaned.(map[string]any)
	return out
}

func (s *Sanitizer) sanitizeValue(value any, key string) any {
	switch v := value.(type) {
	case string:
		return s.sanitizeString(v, key)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = s.sanitizeValue(item, k)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.sanitizeValue(item, key)
		}
		return out
	default:
		return value
	}
}

// sanitizeString dispatches on the key's meaning: URL fields, class
// strings and HTML bodies each get their own treatment; everything else
// is escaped as plain text.
func (s *Sanitizer) sanitizeString(value, key string) string {
	switch strings.ToLower(key) {
	case "href", "src", "action", "route":
		return s.SanitizeURL(value)
	case "class", "classname":
		return s.SanitizeClassName(value)
	case "content", "html", "body":
		return s.SanitizeHTML(value)
	default:
		return s.SanitizeText(value)
	}
}

// SanitizeHTML strips everything outside the tag/attribute allowlist
func (s *Sanitizer) SanitizeHTML(html string) string {
	if html == "" {
		return ""
	}

	// Pre-pass for patterns the parser might normalize away
	html = scriptBlockPattern.ReplaceAllString(html, "")
	html = scriptOpenPattern.ReplaceAllString(html, "")
	html = eventAttrQuoted.ReplaceAllString(html, "")
	html = eventAttrBare.ReplaceAllString(html, "")
	html = jsProtocolPattern.ReplaceAllString(html, "")
	html = cssExpressionClause.ReplaceAllString(html, "")

	return s.htmlPolicy.Sanitize(html)
}

// SanitizeURL allows http/https/mailto/tel and relative paths; anything
// else collapses to empty
func (s *Sanitizer) SanitizeURL(url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return ""
	}

	lower := strings.ToLower(url)
	for _, proto := range blockedURLProtocols {
		if strings.HasPrefix(lower, proto) {
			return ""
		}
	}

	if strings.HasPrefix(url, "/") || strings.HasPrefix(url, "#") {
		return url
	}

	if idx := strings.Index(url, "://"); idx >= 0 {
		if !allowedURLSchemes[strings.ToLower(url[:idx])] {
			return ""
		}
	}

	return url
}

// SanitizeText escapes a plain text value
func (s *Sanitizer) SanitizeText(text string) string {
	if text == "" {
		return ""
	}
	return s.textPolicy.Sanitize(text)
}

// SanitizeClassName keeps only tokens made of the safe Tailwind charset
func (s *Sanitizer) SanitizeClassName(className string) string {
	if className == "" {
		return ""
	}
	if safeClassString.MatchString(className) {
		return className
	}

	var safe []string
	for _, token := range strings.Fields(className) {
		if safeClassToken.MatchString(token) {
			safe = append(safe, token)
		}
	}
	return strings.Join(safe, " ")
}
