// -----------------------------------------------------------------------
// HTML renderer - pure function from a sanitized template to one page
// -----------------------------------------------------------------------

package preview

import (
	"fmt"
	htmltemplate "html/template"
	"regexp"
	"strings"

	"github.com/ternarybob/pagesmith/internal/models"
)

const defaultPrimaryColor = "#3B82F6"

var classCharFilter = regexp.MustCompile(`[^a-zA-Z0-9_\- ]+`)

// RenderTemplate renders a template package to a single self-contained
// HTML page. Deterministic, no I/O; escaping is handled by html/template.
// Supported section kinds: hero, features, products, testimonials, cta,
// form, footer, plus a generic fallback.
func RenderTemplate(tmpl *models.Template) (string, error) {
	view := buildPageView(tmpl)

	var sb strings.Builder
	if err := pageTemplate.Execute(&sb, view); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return sb.String(), nil
}

// Palette values are fixed constants or validated hex colors, typed CSS
// so the template engine does not mangle rgba() values
type pageView struct {
	Title        string
	Description  string
	PrimaryColor htmltemplate.CSS
	BG           htmltemplate.CSS
	FG           htmltemplate.CSS
	Muted        htmltemplate.CSS
	Card         htmltemplate.CSS
	Border       htmltemplate.CSS
	Sections     []sectionView
}

type sectionView struct {
	Kind      string // dispatch key: hero, grid, cta, form, footer, default
	Type      string // original type, used in the section class
	Title     string
	Subtitle  string
	Content   string
	ClassName string
	HeroStyle htmltemplate.CSS
	Buttons   []buttonView
	Cards     []cardView
	Fields    []fieldView
	Links     []linkView
	Cols      int
}

type buttonView struct {
	Label string
	Href  string
	Class string
}

type cardView struct {
	Icon  string
	Title string
	Meta  string
	Body  string
}

type fieldView struct {
	Name        string
	Label       string
	Type        string
	Placeholder string
	Required    bool
}

type linkView struct {
	Title string
	Href  string
}

func buildPageView(tmpl *models.Template) pageView {
	view := pageView{
		Title:        "Generated Page",
		PrimaryColor: defaultPrimaryColor,
		BG:           "#ffffff",
		FG:           "#111827",
		Muted:        "#6b7280",
		Card:         "#f9fafb",
		Border:       "rgba(0,0,0,0.08)",
	}

	if tmpl.Metadata.Title != "" {
		view.Title = tmpl.Metadata.Title
	} else if tmpl.Metadata.Name != "" {
		view.Title = tmpl.Metadata.Name
	}
	view.Description = tmpl.Metadata.Description

	if isHexColor(tmpl.Theme.PrimaryColor) {
		view.PrimaryColor = htmltemplate.CSS(tmpl.Theme.PrimaryColor)
	}
	if tmpl.Theme.DarkMode {
		view.BG = "#0b1220"
		view.FG = "#e5e7eb"
		view.Muted = "#9ca3af"
		view.Card = "#0f172a"
		view.Border = "rgba(255,255,255,0.08)"
	}

	for _, sec := range tmpl.Sections {
		view.Sections = append(view.Sections, buildSectionView(sec))
	}
	return view
}

func buildSectionView(sec models.Section) sectionView {
	secType := strings.ToLower(sec.Type)
	if secType == "" {
		secType = "content"
	}

	sv := sectionView{
		Type:      secType,
		Title:     sec.Title,
		Subtitle:  sec.Subtitle,
		Content:   sec.Content,
		ClassName: safeClass(sec.ClassName),
		Buttons:   buildButtons(sec.Buttons),
	}

	switch secType {
	case "hero":
		sv.Kind = "hero"
		if bg := safeHTTPURL(sec.Background); bg != "" {
			sv.HeroStyle = htmltemplate.CSS(fmt.Sprintf(
				"background-image:url('%s');background-size:cover;background-position:center;", bg))
		}
	case "features":
		sv.Kind = "grid"
		sv.Cols = clampColumns(sec.Columns)
		for _, item := range sec.Items {
			sv.Cards = append(sv.Cards, cardView{Icon: item.Icon, Title: item.Title, Body: item.Content})
		}
	case "products", "testimonials":
		sv.Kind = "grid"
		sv.Cols = clampColumns(sec.Columns)
		sv.Cards = buildItemCards(sec, secType)
	case "cta":
		sv.Kind = "cta"
	case "form":
		sv.Kind = "form"
		for _, f := range sec.Fields {
			fv := fieldView{
				Name:        f.Name,
				Label:       f.Label,
				Type:        f.Type,
				Placeholder: f.Placeholder,
				Required:    f.Required,
			}
			if fv.Name == "" {
				fv.Name = "field"
			}
			if fv.Label == "" {
				fv.Label = fv.Name
			}
			if fv.Type == "" {
				fv.Type = "text"
			}
			sv.Fields = append(sv.Fields, fv)
		}
	case "footer":
		sv.Kind = "footer"
		for _, item := range sec.Items {
			if item.Title == "" {
				continue
			}
			href := item.Href
			if href == "" {
				href = "#"
			}
			sv.Links = append(sv.Links, linkView{Title: item.Title, Href: href})
		}
	default:
		sv.Kind = "default"
	}

	return sv
}

func buildButtons(buttons []models.Button) []buttonView {
	var out []buttonView
	for _, btn := range buttons {
		variant := strings.ToLower(btn.Variant)
		class := "btn-primary"
		if variant == "outline" || variant == "secondary" {
			class = "btn-secondary"
		}
		href := btn.Href
		if href == "" {
			href = "#"
		}
		out = append(out, buttonView{Label: btn.Caption(), Href: href, Class: class})
	}
	return out
}

// buildItemCards maps grid items to cards, or emits placeholders when
// the section defers to a dataSource at runtime
func buildItemCards(sec models.Section, kind string) []cardView {
	if len(sec.Items) > 0 {
		var cards []cardView
		for _, item := range sec.Items {
			cards = append(cards, cardView{
				Title: firstNonEmpty(item.Title, item.Name),
				Meta:  firstNonEmpty(item.Subtitle, item.Role, item.Price),
				Body:  firstNonEmpty(item.Content, item.Text, item.Description),
			})
		}
		return cards
	}

	label := "No items/dataSource provided"
	if sec.DataSource != "" {
		label = "Loaded from dataSource: " + sec.DataSource
	}
	cols := clampColumns(sec.Columns)
	cards := make([]cardView, 0, cols*2)
	for i := 0; i < cols*2; i++ {
		cards = append(cards, cardView{
			Title: fmt.Sprintf("%s Item %d", capitalize(kind), i+1),
			Body:  label,
		})
	}
	return cards
}

func clampColumns(cols int) int {
	if cols < 1 {
		return 3
	}
	if cols > 4 {
		return 4
	}
	return cols
}

func safeClass(s string) string {
	return strings.TrimSpace(classCharFilter.ReplaceAllString(s, ""))
}

// safeHTTPURL admits absolute http(s) URLs only, quote-escaped for use
// inside a CSS url() value
func safeHTTPURL(u string) string {
	u = strings.TrimSpace(u)
	lower := strings.ToLower(u)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return ""
	}
	u = strings.ReplaceAll(u, `"`, "%22")
	u = strings.ReplaceAll(u, "'", "%27")
	return u
}

func isHexColor(s string) bool {
	if len(s) != 4 && len(s) != 7 && len(s) != 9 {
		return false
	}
	if s[0] != '#' {
		return false
	}
	for _, c := range s[1:] {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var pageTemplate = htmltemplate.Must(htmltemplate.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <meta name="description" content="{{.Description}}">
    <style>
        :root {
            --primary-color: {{.PrimaryColor}};
            --bg: {{.BG}};
            --fg: {{.FG}};
            --muted: {{.Muted}};
            --card: {{.Card}};
            --border: {{.Border}};
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
            line-height: 1.6;
            background: var(--bg);
            color: var(--fg);
        }
        .section { padding: 4rem 2rem; max-width: 1200px; margin: 0 auto; }
        .section-title { font-size: 2.2rem; font-weight: 800; margin-bottom: 0.75rem; }
        .section-subtitle { font-size: 1.1rem; color: var(--muted); margin-bottom: 1.75rem; }
        .section-content { font-size: 1.05rem; color: var(--fg); max-width: 900px; }
        .muted { color: var(--muted); }
        .section-hero {
            position: relative; text-align: center; color: white;
            padding: 6rem 2rem; max-width: none;
            border-bottom: 1px solid var(--border);
            background: linear-gradient(135deg, var(--primary-color), #8b5cf6);
        }
        .hero-overlay { position: absolute; inset: 0; background: rgba(0,0,0,0.45); }
        .hero-inner { position: relative; max-width: 900px; margin: 0 auto; }
        .hero-title { font-size: 3rem; font-weight: 900; line-height: 1.1; margin-bottom: 1rem; }
        .hero-subtitle { font-size: 1.2rem; opacity: 0.95; }
        .section-buttons { display: flex; gap: 1rem; justify-content: center; flex-wrap: wrap; margin-top: 2rem; }
        .btn {
            display: inline-block; padding: 0.75rem 1.5rem; border-radius: 0.75rem;
            text-decoration: none; font-weight: 700; border: 1px solid transparent;
        }
        .btn-primary { background: white; color: #111827; }
        .btn-secondary { background: transparent; color: white; border-color: rgba(255,255,255,0.7); }
        .grid { display: grid; grid-template-columns: repeat(var(--cols, 3), minmax(0, 1fr)); gap: 1rem; }
        .card { background: var(--card); border: 1px solid var(--border); border-radius: 1rem; padding: 1.25rem; }
        .card-icon { color: var(--muted); font-size: 0.9rem; margin-bottom: 0.5rem; }
        .card-title { font-weight: 800; margin-bottom: 0.35rem; }
        .card-meta { color: var(--muted); font-size: 0.9rem; margin-bottom: 0.75rem; }
        .card-body { color: var(--fg); font-size: 0.98rem; }
        .section-cta { max-width: none; background: #111827; color: white; }
        .cta-inner { max-width: 1200px; margin: 0 auto; }
        .section-cta .section-subtitle, .section-cta .section-content { color: rgba(255,255,255,0.85); }
        .section-cta .btn-primary { background: var(--primary-color); color: white; }
        .form { display: grid; gap: 1rem; max-width: 520px; }
        .form-field { display: grid; gap: 0.4rem; }
        .form-label { color: var(--muted); font-size: 0.9rem; font-weight: 600; }
        .input {
            padding: 0.75rem 0.9rem; border-radius: 0.75rem; border: 1px solid var(--border);
            background: var(--card); color: var(--fg); outline: none;
        }
        .form-note { margin-top: 1rem; font-size: 0.9rem; }
        .section-footer { max-width: none; border-top: 1px solid var(--border); padding-top: 2rem; padding-bottom: 2rem; }
        .footer-inner { max-width: 1200px; margin: 0 auto; display: grid; gap: 1rem; }
        .footer-links { display: flex; flex-wrap: wrap; gap: 0.75rem 1rem; }
        .footer-link { color: var(--muted); text-decoration: none; }
        .footer-link:hover { color: var(--fg); }
        @media (max-width: 900px) { .grid { grid-template-columns: repeat(2, minmax(0, 1fr)); } }
        @media (max-width: 600px) {
            .section { padding: 3rem 1rem; }
            .grid { grid-template-columns: 1fr; }
            .hero-title { font-size: 2.2rem; }
        }
    </style>
</head>
<body>
{{- range .Sections}}
{{- if eq .Kind "hero"}}
    <section class="section section-hero {{.ClassName}}"{{with .HeroStyle}} style="{{.}}"{{end}}>
        <div class="hero-overlay"></div>
        <div class="hero-inner">
            {{if .Title}}<h1 class="hero-title">{{.Title}}</h1>{{end}}
            {{if .Subtitle}}<p class="hero-subtitle">{{.Subtitle}}</p>{{end}}
            <div class="section-buttons">
                {{- range .Buttons}}<a href="{{.Href}}" class="btn {{.Class}}">{{.Label}}</a>{{end -}}
            </div>
        </div>
    </section>
{{- else if eq .Kind "grid"}}
    <section class="section section-{{.Type}} {{.ClassName}}">
        {{if .Title}}<h2 class="section-title">{{.Title}}</h2>{{end}}
        {{if .Subtitle}}<p class="section-subtitle">{{.Subtitle}}</p>{{end}}
        <div class="grid" style="--cols:{{.Cols}};">
            {{- range .Cards}}
            <div class="card">
                {{if .Icon}}<div class="card-icon">{{.Icon}}</div>{{end}}
                {{if .Title}}<div class="card-title">{{.Title}}</div>{{end}}
                {{if .Meta}}<div class="card-meta">{{.Meta}}</div>{{end}}
                {{if .Body}}<div class="card-body">{{.Body}}</div>{{end}}
            </div>
            {{- else}}
            <div class="muted">No items provided.</div>
            {{- end}}
        </div>
    </section>
{{- else if eq .Kind "cta"}}
    <section class="section section-cta {{.ClassName}}">
        <div class="cta-inner">
            {{if .Title}}<h2 class="section-title">{{.Title}}</h2>{{end}}
            {{if .Content}}<div class="section-content">{{.Content}}</div>{{end}}
            <div class="section-buttons">
                {{- range .Buttons}}<a href="{{.Href}}" class="btn {{.Class}}">{{.Label}}</a>{{end -}}
            </div>
        </div>
    </section>
{{- else if eq .Kind "form"}}
    <section class="section section-form {{.ClassName}}">
        {{if .Title}}<h2 class="section-title">{{.Title}}</h2>{{end}}
        {{if .Subtitle}}<p class="section-subtitle">{{.Subtitle}}</p>{{end}}
        <form class="form" action="#" method="post">
            {{- range .Fields}}
            <label class="form-field">
                <span class="form-label">{{.Label}}</span>
                <input class="input" name="{{.Name}}" type="{{.Type}}" placeholder="{{.Placeholder}}"{{if .Required}} required{{end}}/>
            </label>
            {{- end}}
            <button type="submit" class="btn btn-primary">Submit</button>
        </form>
        <div class="muted form-note">Note: form submit is disabled in preview (no backend).</div>
    </section>
{{- else if eq .Kind "footer"}}
    <footer class="section section-footer {{.ClassName}}">
        <div class="footer-inner">
            {{if .Content}}<div class="footer-content">{{.Content}}</div>{{end}}
            <div class="footer-links">
                {{- range .Links}}<a class="footer-link" href="{{.Href}}">{{.Title}}</a>{{end -}}
            </div>
        </div>
    </footer>
{{- else}}
    <section class="section section-{{.Type}} {{.ClassName}}">
        {{if .Title}}<h2 class="section-title">{{.Title}}</h2>{{end}}
        {{if .Subtitle}}<p class="section-subtitle">{{.Subtitle}}</p>{{end}}
        {{if .Content}}<div class="section-content">{{.Content}}</div>{{end}}
        <div class="section-buttons">
            {{- range .Buttons}}<a href="{{.Href}}" class="btn {{.Class}}">{{.Label}}</a>{{end -}}
        </div>
    </section>
{{- end}}
{{- end}}
</body>
</html>`))
