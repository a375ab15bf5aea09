package preview

import (
	"strings"
	"testing"
)

func TestSanitizeURL(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{"https absolute", "https://example.com/page", "https://example.com/page"},
		{"http absolute", "http://example.com", "http://example.com"},
		{"mailto", "mailto:hi@example.com", "mailto:hi@example.com"},
		{"tel", "tel:+1234567890", "tel:+1234567890"},
		{"relative path", "/shop/products", "/shop/products"},
		{"fragment", "#top", "#top"},
		{"javascript blocked", "javascript:alert(1)", ""},
		{"vbscript blocked", "vbscript:msgbox", ""},
		{"data blocked", "data:text/html,<script>", ""},
		{"file blocked", "file:///etc/passwd", ""},
		{"ftp blocked", "ftp://example.com/file", ""},
		{"whitespace trimmed", "  https://example.com  ", "https://example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeURL(tt.url); got != tt.want {
				t.Errorf("SanitizeURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestSanitizeHTML(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name     string
		html     string
		mustKeep []string
		mustDrop []string
	}{
		{
			name:     "safe markup kept",
			html:     `<p>Hello <strong>world</strong></p>`,
			mustKeep: []string{"<p>", "<strong>"},
		},
		{
			name:     "script stripped",
			html:     `<p>ok</p><script>alert(1)</script>`,
			mustKeep: []string{"<p>ok</p>"},
			mustDrop: []string{"<script", "alert(1)"},
		},
		{
			name:     "event handler stripped",
			html:     `<div onclick="steal()">text</div>`,
			mustKeep: []string{"text"},
			mustDrop: []string{"onclick", "steal"},
		},
		{
			name:     "iframe stripped",
			html:     `<iframe src="https://evil"></iframe>fine`,
			mustKeep: []string{"fine"},
			mustDrop: []string{"<iframe"},
		},
		{
			name:     "javascript href neutralized",
			html:     `<a href="javascript:alert(1)">x</a>`,
			mustDrop: []string{"javascript:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.SanitizeHTML(tt.html)
			for _, want := range tt.mustKeep {
				if !strings.Contains(got, want) {
					t.Errorf("Expected output to contain %q, got %q", want, got)
				}
			}
			for _, bad := range tt.mustDrop {
				if strings.Contains(got, bad) {
					t.Errorf("Expected output to drop %q, got %q", bad, got)
				}
			}
		})
	}
}

func TestSanitizeClassName(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name  string
		class string
		want  string
	}{
		{"plain tailwind", "flex items-center gap-4", "flex items-center gap-4"},
		{"responsive variants", "md:flex lg:grid-cols-3", "md:flex lg:grid-cols-3"},
		{"arbitrary value", "bg-[#ff0000]", "bg-[#ff0000]"},
		{"bad token filtered", `flex <script> gap-4`, "flex gap-4"},
		{"quote filtered", `x-data="evil" flex`, "flex"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeClassName(tt.class); got != tt.want {
				t.Errorf("SanitizeClassName(%q) = %q, want %q", tt.class, got, tt.want)
			}
		})
	}
}

func TestSanitizeTemplateContextDispatch(t *testing.T) {
	s := NewSanitizer()

	template := map[string]any{
		"metadata": map[string]any{
			"name":  "My <b>Page</b>",
			"route": "javascript:alert(1)",
		},
		"sections": []any{
			map[string]any{
				"type":      "hero",
				"title":     "<script>x</script>Hello",
				"content":   "<p>Welcome</p><script>bad()</script>",
				"className": "flex <evil> gap-2",
				"buttons": []any{
					map[string]any{"label": "Go", "href": "data:text/html,x"},
				},
			},
		},
	}

	cleaned := s.SanitizeTemplate(template)

	metadata := cleaned["metadata"].(map[string]any)
	if metadata["route"] != "" {
		t.Errorf("Expected route blocked, got %q", metadata["route"])
	}
	if strings.Contains(metadata["name"].(string), "<b>") {
		t.Errorf("Expected name escaped, got %q", metadata["name"])
	}

	section := cleaned["sections"].([]any)[0].(map[string]any)
	if strings.Contains(section["title"].(string), "<script") {
		t.Errorf("Expected title cleaned, got %q", section["title"])
	}
	content := section["content"].(string)
	if !strings.Contains(content, "<p>Welcome</p>") {
		t.Errorf("Expected safe HTML kept in content, got %q", content)
	}
	if strings.Contains(content, "script") {
		t.Errorf("Expected script dropped from content, got %q", content)
	}
	if got := section["className"].(string); got != "flex gap-2" {
		t.Errorf("Expected className filtered, got %q", got)
	}

	button := section["buttons"].([]any)[0].(map[string]any)
	if button["href"] != "" {
		t.Errorf("Expected data: href blocked, got %q", button["href"])
	}
}

func TestSanitizeTemplatePreservesNonStrings(t *testing.T) {
	s := NewSanitizer()

	template := map[string]any{
		"theme":    map[string]any{"darkMode": true},
		"sections": []any{map[string]any{"type": "features", "columns": float64(3)}},
	}

	cleaned := s.SanitizeTemplate(template)
	theme := cleaned["theme"].(map[string]any)
	if theme["darkMode"] != true {
		t.Error("Expected booleans untouched")
	}
	section := cleaned["sections"].([]any)[0].(map[string]any)
	if section["columns"] != float64(3) {
		t.Error("Expected numbers untouched")
	}
}
