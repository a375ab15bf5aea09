package validator

import (
	"encoding/json"
	"strings"
	"testing"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var pkg map[string]any
	if err := json.Unmarshal([]byte(raw), &pkg); err != nil {
		t.Fatalf("Failed to decode fixture: %v", err)
	}
	return pkg
}

func TestValidateCleanTemplate(t *testing.T) {
	pkg := decode(t, `{
		"metadata": {"name": "Shop", "pageType": "landing", "route": "/shop"},
		"theme": {"primaryColor": "#3b82f6", "darkMode": false},
		"dataSources": [{"id": "ds1", "endpoint": "get.products"}],
		"actions": [{"id": "ac1", "endpoint": "Shop.post_carts"}],
		"sections": [
			{"type": "hero", "title": "Welcome"},
			{"type": "features", "items": [{"title": "Fast"}]},
			{"type": "cta", "buttons": [{"label": "Buy", "actionRef": "ac1"}]}
		]
	}`)

	result := Validate(pkg)
	if !result.Valid() {
		t.Fatalf("Expected valid template, got errors: %v", result.AllErrors())
	}
	if len(result.AllWarnings()) != 0 {
		t.Errorf("Expected no warnings, got %v", result.AllWarnings())
	}
}

func TestEndpointFormats(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		wantErr  bool
	}{
		{"api get", "get.products", false},
		{"api post underscore", "post.cart_items", false},
		{"module form", "Shop.post_carts", false},
		{"uppercase method segment", "get.Products", true},
		{"missing segment", "get.", true},
		{"digit first", "get.1products", true},
		{"bare word", "products", true},
		{"module lowercase", "shop.post_carts", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg := map[string]any{
				"dataSources": []any{map[string]any{"id": "d1", "endpoint": tt.endpoint}},
			}
			result := Validate(pkg)
			hasErr := len(result.EndpointErrors) > 0
			if hasErr != tt.wantErr {
				t.Errorf("endpoint %q: got errors %v, wantErr=%v", tt.endpoint, result.EndpointErrors, tt.wantErr)
			}
		})
	}
}

func TestDangerousEndpointSubstring(t *testing.T) {
	// Case-insensitive substring match rejects regardless of format
	pkg := map[string]any{
		"actions": []any{map[string]any{"id": "a1", "endpoint": "post.drop_tables"}},
	}
	result := Validate(pkg)
	found := false
	for _, e := range result.EndpointErrors {
		if strings.Contains(e, "dangerous") {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected dangerous pattern error, got %v", result.EndpointErrors)
	}
}

func TestCrossReferences(t *testing.T) {
	pkg := decode(t, `{
		"dataSources": [{"id": "ds1", "endpoint": "get.products"}, {"id": "ds1", "endpoint": "get.posts"}],
		"actions": [{"id": "ac1", "endpoint": "post.orders"}],
		"sections": [
			{"type": "products", "dataSource": "missing"},
			{"type": "cta", "actionRef": "nope", "buttons": [{"label": "Go", "actionRef": "gone"}]}
		]
	}`)

	result := Validate(pkg)
	errs := strings.Join(result.CrossRefErrors, "\n")
	for _, want := range []string{
		"dataSources[1].id 'ds1' is a duplicate",
		"sections[0].dataSource 'missing'",
		"sections[1].actionRef 'nope'",
		"sections[1].buttons[0].actionRef 'gone'",
	} {
		if !strings.Contains(errs, want) {
			t.Errorf("Expected crossref error containing %q, got:\n%s", want, errs)
		}
	}
}

func TestSecuritySignatures(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"script tag", "<script>alert(1)</script>"},
		{"script tag spaced", "< script >x"},
		{"javascript proto", "javascript:alert(1)"},
		{"event handler", `<img onerror=alert(1)>`},
		{"iframe", "<iframe src=x>"},
		{"css expression", "width: expression(alert(1))"},
		{"data url", "background: url('data:text/html,x')"},
		{"css import", "@import url(evil)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg := map[string]any{
				"sections": []any{map[string]any{"type": "hero", "content": tt.value}},
			}
			result := Validate(pkg)
			if len(result.SecurityFlags) == 0 {
				t.Errorf("Expected security flag for %q", tt.value)
			}
		})
	}
}

func TestReactiveDirectives(t *testing.T) {
	pkg := map[string]any{
		"sections": []any{map[string]any{
			"type":    "hero",
			"content": `<div x-html="payload"></div>`,
		}},
	}
	result := Validate(pkg)
	if len(result.DirectiveErrors) == 0 {
		t.Error("Expected directive error for x-html")
	}
}

func TestClassNamePolicy(t *testing.T) {
	exactly500 := strings.Repeat("a", 500)
	over500 := strings.Repeat("a", 501)

	tests := []struct {
		name      string
		className string
		wantErr   bool
	}{
		{"normal classes", "flex items-center gap-4 bg-blue-500", false},
		{"exactly at limit", exactly500, false},
		{"one over limit", over500, true},
		{"url arbitrary value", "bg-[url(http://evil)]", true},
		{"html in arbitrary value", `before:content-['<b>']`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg := map[string]any{
				"sections": []any{map[string]any{"type": "hero", "className": tt.className}},
			}
			result := Validate(pkg)
			hasErr := len(result.StyleErrors) > 0
			if hasErr != tt.wantErr {
				t.Errorf("className: got errors %v, wantErr=%v", result.StyleErrors, tt.wantErr)
			}
		})
	}
}

func TestThemeColors(t *testing.T) {
	tests := []struct {
		name    string
		color   string
		wantErr bool
	}{
		{"three digit", "#fff", false},
		{"six digit", "#3b82f6", false},
		{"eight digit", "#3b82f6ff", false},
		{"four digit", "#ffff", true},
		{"five digit", "#fffff", true},
		{"seven digit", "#fffffff", true},
		{"no hash", "3b82f6", true},
		{"named color", "blue", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg := map[string]any{"theme": map[string]any{"primaryColor": tt.color}}
			result := Validate(pkg)
			hasErr := len(result.ThemeErrors) > 0
			if hasErr != tt.wantErr {
				t.Errorf("color %q: got errors %v, wantErr=%v", tt.color, result.ThemeErrors, tt.wantErr)
			}
		})
	}

	t.Run("dark mode not boolean", func(t *testing.T) {
		pkg := map[string]any{"theme": map[string]any{"darkMode": "yes"}}
		result := Validate(pkg)
		if len(result.ThemeErrors) == 0 {
			t.Error("Expected theme error for non-boolean darkMode")
		}
	})
}

func TestRoutePolicy(t *testing.T) {
	tests := []struct {
		name    string
		route   string
		wantErr bool
	}{
		{"root", "/", false},
		{"nested", "/shop/products", false},
		{"path param", "/products/{id}", false},
		{"traversal", "/../admin", true},
		{"no leading slash", "shop", true},
		{"angle brackets", "/<script>", true},
		{"javascript", "/javascript:alert(1)", true},
		{"query string", "/shop?page=1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg := map[string]any{"metadata": map[string]any{"route": tt.route}}
			result := Validate(pkg)
			hasErr := len(result.RouteErrors) > 0
			if hasErr != tt.wantErr {
				t.Errorf("route %q: got errors %v, wantErr=%v", tt.route, result.RouteErrors, tt.wantErr)
			}
		})
	}
}

func TestCompletenessWarnings(t *testing.T) {
	t.Run("empty sections", func(t *testing.T) {
		pkg := map[string]any{"sections": []any{}}
		result := Validate(pkg)
		if len(result.CompletenessWarnings) != 1 {
			t.Fatalf("Expected 1 warning, got %v", result.CompletenessWarnings)
		}
		if !result.Valid() {
			t.Error("Warnings must not block acceptance")
		}
	})

	t.Run("form without fields or actionRef", func(t *testing.T) {
		pkg := map[string]any{
			"sections": []any{map[string]any{"type": "form"}},
		}
		result := Validate(pkg)
		if len(result.CompletenessWarnings) != 2 {
			t.Errorf("Expected 2 warnings, got %v", result.CompletenessWarnings)
		}
	})

	t.Run("products without dataSource", func(t *testing.T) {
		pkg := map[string]any{
			"sections": []any{map[string]any{"type": "products"}},
		}
		result := Validate(pkg)
		if len(result.CompletenessWarnings) != 1 {
			t.Errorf("Expected 1 warning, got %v", result.CompletenessWarnings)
		}
	})
}

func TestPageTypeRecommendations(t *testing.T) {
	pkg := decode(t, `{
		"metadata": {"pageType": "contact"},
		"sections": [{"type": "form", "fields": [{"name": "name"}], "actionRef": "a1"}],
		"actions": [{"id": "a1", "endpoint": "post.contact"}]
	}`)
	result := Validate(pkg)

	warnings := strings.Join(result.PageTypeWarnings, "\n")
	if !strings.Contains(warnings, "section type 'content'") {
		t.Errorf("Expected missing content section warning, got:\n%s", warnings)
	}
	if !strings.Contains(warnings, "form field 'email'") {
		t.Errorf("Expected missing email field warning, got:\n%s", warnings)
	}
	if strings.Contains(warnings, "form field 'name'") {
		t.Errorf("Present field must not warn, got:\n%s", warnings)
	}
}

func TestUnknownKeysIgnored(t *testing.T) {
	pkg := decode(t, `{
		"sections": [{"type": "hero", "futureKey": {"nested": true}}],
		"experiments": {"flag": 1}
	}`)
	result := Validate(pkg)
	if len(result.StructureErrors) != 0 {
		t.Errorf("Unknown keys must be ignored, got %v", result.StructureErrors)
	}
}

func TestStructuralErrors(t *testing.T) {
	pkg := decode(t, `{
		"metadata": "not an object",
		"dataSources": [{"endpoint": "get.products"}],
		"actions": ["not an object"],
		"sections": [{"title": "no type"}]
	}`)
	result := Validate(pkg)

	errs := strings.Join(result.StructureErrors, "\n")
	for _, want := range []string{
		"metadata: expected object",
		"dataSources[0]: missing required field 'id'",
		"actions[0]: expected object",
		"sections[0]: missing required field 'type'",
	} {
		if !strings.Contains(errs, want) {
			t.Errorf("Expected structure error containing %q, got:\n%s", want, errs)
		}
	}
}

func TestLayersAccumulate(t *testing.T) {
	// Errors in an early layer must not suppress later layers
	pkg := decode(t, `{
		"metadata": {"route": "/../admin"},
		"theme": {"primaryColor": "#ffff"},
		"dataSources": [{"id": "d1", "endpoint": "bogus"}],
		"sections": [{"type": "hero", "content": "<script>x</script>"}]
	}`)
	result := Validate(pkg)

	if len(result.EndpointErrors) == 0 {
		t.Error("Expected endpoint errors")
	}
	if len(result.SecurityFlags) == 0 {
		t.Error("Expected security flags")
	}
	if len(result.ThemeErrors) == 0 {
		t.Error("Expected theme errors")
	}
	if len(result.RouteErrors) == 0 {
		t.Error("Expected route errors")
	}
}

func TestCycleSafety(t *testing.T) {
	inner := map[string]any{"content": "safe text"}
	inner["self"] = inner
	pkg := map[string]any{
		"sections": []any{map[string]any{"type": "hero", "extra": inner}},
	}

	// Must terminate
	result := Validate(pkg)
	if !result.Valid() {
		t.Errorf("Expected valid result, got %v", result.AllErrors())
	}
}
