package preview

import (
	"strings"
	"testing"

	"github.com/ternarybob/pagesmith/internal/models"
)

func TestRenderFullPage(t *testing.T) {
	tmpl := &models.Template{
		Metadata: models.Metadata{Name: "Acme Shop", Description: "Demo store"},
		Theme:    models.Theme{PrimaryColor: "#ff5500"},
		Sections: []models.Section{
			{
				Type:     "hero",
				Title:    "Welcome to Acme",
				Subtitle: "Everything you need",
				Buttons:  []models.Button{{Label: "Shop now", Variant: "primary", Href: "/shop"}},
			},
			{
				Type:    "features",
				Title:   "Why us",
				Columns: 3,
				Items: []models.Item{
					{Title: "Fast", Content: "Ships same day"},
					{Title: "Cheap", Content: "Best prices"},
				},
			},
			{
				Type:    "form",
				Title:   "Contact",
				Fields:  []models.FormField{{Name: "email", Label: "Email", Type: "email", Required: true}},
			},
			{Type: "footer", Content: "© Acme", Items: []models.Item{{Title: "About", Href: "/about"}}},
		},
	}

	html, err := RenderTemplate(tmpl)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	for _, want := range []string{
		"<!DOCTYPE html>",
		"<title>Acme Shop</title>",
		"--primary-color: #ff5500",
		"Welcome to Acme",
		`<a href="/shop" class="btn btn-primary">Shop now</a>`,
		"section-features",
		"Ships same day",
		`name="email" type="email"`,
		"required",
		"section-footer",
		"© Acme",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("Expected rendered page to contain %q", want)
		}
	}
}

func TestRenderEscapesContent(t *testing.T) {
	tmpl := &models.Template{
		Sections: []models.Section{
			{Type: "content", Title: `<script>alert("x")</script>`},
		},
	}

	html, err := RenderTemplate(tmpl)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if strings.Contains(html, "<script>alert") {
		t.Error("Expected title to be escaped")
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Error("Expected escaped entities in output")
	}
}

func TestRenderDarkMode(t *testing.T) {
	tmpl := &models.Template{Theme: models.Theme{DarkMode: true}}

	html, err := RenderTemplate(tmpl)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(html, "--bg: #0b1220") {
		t.Error("Expected dark background palette")
	}
}

func TestRenderDefaultsAndClamps(t *testing.T) {
	tmpl := &models.Template{
		Sections: []models.Section{
			{Type: "products", Columns: 9, DataSource: "ds_products"},
		},
	}

	html, err := RenderTemplate(tmpl)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(html, "<title>Generated Page</title>") {
		t.Error("Expected fallback page title")
	}
	if !strings.Contains(html, "--cols:4;") {
		t.Error("Expected columns clamped to 4")
	}
	if !strings.Contains(html, "Loaded from dataSource: ds_products") {
		t.Error("Expected dataSource placeholder cards")
	}
	if !strings.Contains(html, "Products Item 1") {
		t.Error("Expected placeholder card titles")
	}
}

func TestRenderHeroBackground(t *testing.T) {
	tests := []struct {
		name       string
		background string
		wantInline bool
	}{
		{"https allowed", "https://example.com/bg.jpg", true},
		{"javascript blocked", "javascript:alert(1)", false},
		{"relative blocked", "/images/bg.jpg", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpl := &models.Template{
				Sections: []models.Section{{Type: "hero", Background: tt.background}},
			}
			html, err := RenderTemplate(tmpl)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			hasInline := strings.Contains(html, "background-image:url(")
			if hasInline != tt.wantInline {
				t.Errorf("background %q: inline style present=%v, want %v", tt.background, hasInline, tt.wantInline)
			}
		})
	}
}

func TestRenderDeterministic(t *testing.T) {
	tmpl := &models.Template{
		Metadata: models.Metadata{Title: "Stable"},
		Sections: []models.Section{
			{Type: "hero", Title: "A"},
			{Type: "cta", Title: "B", Buttons: []models.Button{{Text: "Go"}}},
		},
	}

	first, err := RenderTemplate(tmpl)
	if err != nil {
		t.Fatal(err)
	}
	second, err := RenderTemplate(tmpl)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("Expected identical output for identical input")
	}
}
