// -----------------------------------------------------------------------
// Template validator - gates untrusted model output before rendering
// -----------------------------------------------------------------------

package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/ternarybob/pagesmith/internal/models"
)

var (
	apiEndpointPattern    = regexp.MustCompile(`^(get|post|put|patch|delete)\.[a-z][a-z0-9_]*$`)
	moduleEndpointPattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9_]*\.[a-z][a-z0-9_]*$`)
	dangerousEndpoints    = regexp.MustCompile(`(?i)(drop|truncate|delete\.users|delete\.all|admin|exec|eval|system)`)

	hexColor3 = regexp.MustCompile(`^#[0-9a-fA-F]{3}$`)
	hexColor6 = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	hexColor8 = regexp.MustCompile(`^#[0-9a-fA-F]{8}$`)

	routeValid = regexp.MustCompile(`^/[a-zA-Z0-9_\-/{}]*$`)
)

type patternRule struct {
	pattern *regexp.Regexp
	desc    string
}

// Fixed XSS/injection signatures applied to every string value
var unsafePatterns = []patternRule{
	{regexp.MustCompile(`(?i)<\s*script\b`), "script tag"},
	{regexp.MustCompile(`(?i)javascript\s*:`), "javascript: protocol"},
	{regexp.MustCompile(`(?i)\bon\w+\s*=`), "inline event handler (on*=)"},
	{regexp.MustCompile(`(?i)<\s*iframe\b`), "iframe tag"},
	{regexp.MustCompile(`(?i)<\s*object\b`), "object tag"},
	{regexp.MustCompile(`(?i)<\s*embed\b`), "embed tag"},
	{regexp.MustCompile(`(?i)<\s*form\b[^>]*action\s*=`), "form with action"},
	{regexp.MustCompile(`(?i)<\s*meta\b[^>]*http-equiv`), "meta http-equiv"},
	{regexp.MustCompile(`(?i)<\s*link\b[^>]*rel\s*=\s*['"]?import`), "link import"},
	{regexp.MustCompile(`(?i)<\s*base\b`), "base tag"},
	{regexp.MustCompile(`(?i)expression\s*\(`), "CSS expression()"},
	{regexp.MustCompile(`(?i)url\s*\(\s*['"]?\s*data:`), "data: URL"},
	{regexp.MustCompile(`(?i)@import\s+`), "CSS @import"},
}

// Reactive directive signatures that permit raw-HTML injection or
// arbitrary code evaluation
var directivePatterns = []patternRule{
	{regexp.MustCompile(`(?i)x-html\s*=`), "x-html directive (allows raw HTML injection)"},
	{regexp.MustCompile(`(?i)x-on\s*:\s*\w+\s*=\s*['"][^'"]*\(`), "x-on with function call"},
	{regexp.MustCompile(`(?i)@\w+\s*=\s*['"][^'"]*\(`), "@ shorthand with function call"},
	{regexp.MustCompile(`(?i)x-init\s*=\s*['"][^'"]*fetch\s*\(`), "x-init with fetch"},
	{regexp.MustCompile(`(?i)x-init\s*=\s*['"][^'"]*eval\s*\(`), "x-init with eval"},
	{regexp.MustCompile(`(?i)\$refs\s*\[`), "$refs bracket access"},
	{regexp.MustCompile(`(?i)\$el\s*\.`), "$el direct manipulation"},
	{regexp.MustCompile(`(?i)x-data\s*=\s*['"]?\s*\{[^}]{500,}`), "x-data with large object (>500 chars)"},
}

// Class strings with arbitrary-value tokens carrying markup or URLs
var classPatterns = []patternRule{
	{regexp.MustCompile(`(?i)\[\s*['"].*<`), "arbitrary content with HTML"},
	{regexp.MustCompile(`(?i)\[\s*['"].*javascript:`), "arbitrary content with javascript:"},
	{regexp.MustCompile(`(?i)content-\[[^\]]*<`), "content-[] with HTML"},
	{regexp.MustCompile(`(?i)url\([^)]*\)`), "url() in arbitrary value"},
}

var routeDangerous = []patternRule{
	{regexp.MustCompile(`(?i)<\s*script`), "script tag in route"},
	{regexp.MustCompile(`(?i)javascript:`), "javascript: in route"},
	{regexp.MustCompile(`\.\.`), "directory traversal (..)"},
	{regexp.MustCompile(`[<>"']`), "special characters"},
}

const maxClassNameLength = 500

// pageTypeProfile lists the recommended shape for a known page type
type pageTypeProfile struct {
	recommendedSections []string
	requiredFormFields  []string
}

var pageTypeProfiles = map[string]pageTypeProfile{
	"product":  {recommendedSections: []string{"products", "content"}},
	"category": {recommendedSections: []string{"products"}},
	"blog":     {recommendedSections: []string{"posts", "content"}},
	"cart":     {recommendedSections: []string{"content", "cta"}},
	"account":  {recommendedSections: []string{"form", "content"}},
	"contact":  {recommendedSections: []string{"form", "content"}, requiredFormFields: []string{"name", "email", "message"}},
	"landing":  {recommendedSections: []string{"hero", "features", "cta"}},
}

var recognizedTopLevelKeys = map[string]bool{
	"metadata":    true,
	"theme":       true,
	"dataSources": true,
	"actions":     true,
	"sections":    true,
}

// Validate runs every layer over a raw decoded template and accumulates
// findings. Pure function: no I/O, deterministic output order. Later
// layers run even when earlier ones produced errors.
func Validate(pkg map[string]any) *models.ValidationResult {
	result := &models.ValidationResult{}
	result.StructureErrors = validateStructure(pkg)
	result.EndpointErrors = validateEndpoints(pkg)
	result.CrossRefErrors = validateCrossRefs(pkg)
	result.SecurityFlags = scanStrings(pkg, unsafePatterns, "contains")
	result.DirectiveErrors = scanStrings(pkg, directivePatterns, "contains unsafe reactive pattern -")
	result.StyleErrors = validateClassNames(pkg)
	result.ThemeErrors = validateTheme(pkg)
	result.RouteErrors = validateRoute(pkg)
	result.PageTypeWarnings = validatePageType(pkg)
	result.CompletenessWarnings = validateCompleteness(pkg)
	return result
}

// Layer 1: top-level shape and required entity fields. Unrecognized keys
// are ignored for forward compatibility.
func validateStructure(pkg map[string]any) []string {
	var errors []string

	if v, ok := pkg["metadata"]; ok {
		if _, isMap := v.(map[string]any); !isMap {
			errors = append(errors, "metadata: expected object")
		}
	}
	if v, ok := pkg["theme"]; ok {
		if _, isMap := v.(map[string]any); !isMap {
			errors = append(errors, "theme: expected object")
		}
	}

	for _, key := range []string{"dataSources", "actions", "sections"} {
		v, ok := pkg[key]
		if !ok || v == nil {
			continue
		}
		list, isList := v.([]any)
		if !isList {
			errors = append(errors, fmt.Sprintf("%s: expected array", key))
			continue
		}
		for i, entry := range list {
			obj, isMap := entry.(map[string]any)
			if !isMap {
				errors = append(errors, fmt.Sprintf("%s[%d]: expected object", key, i))
				continue
			}
			switch key {
			case "dataSources", "actions":
				if s, _ := obj["id"].(string); s == "" {
					errors = append(errors, fmt.Sprintf("%s[%d]: missing required field 'id'", key, i))
				}
				if s, _ := obj["endpoint"].(string); s == "" {
					errors = append(errors, fmt.Sprintf("%s[%d]: missing required field 'endpoint'", key, i))
				}
			case "sections":
				if s, _ := obj["type"].(string); s == "" {
					errors = append(errors, fmt.Sprintf("sections[%d]: missing required field 'type'", i))
				}
			}
		}
	}

	return errors
}

// Layer 2: endpoint strings must match the API or Module form and never
// the dangerous substring list
func validateEndpoints(pkg map[string]any) []string {
	var errors []string
	for _, key := range []string{"dataSources", "actions"} {
		list, _ := pkg[key].([]any)
		for i, entry := range list {
			obj, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			ep, _ := obj["endpoint"].(string)
			if ep == "" {
				continue
			}
			if !apiEndpointPattern.MatchString(ep) && !moduleEndpointPattern.MatchString(ep) {
				errors = append(errors, fmt.Sprintf("%s[%d].endpoint '%s' invalid format", key, i, ep))
			}
			if dangerousEndpoints.MatchString(ep) {
				errors = append(errors, fmt.Sprintf("%s[%d].endpoint '%s' matches dangerous pattern", key, i, ep))
			}
		}
	}
	return errors
}

// Layer 3: dataSource/actionRef ids must resolve; ids must be unique
func validateCrossRefs(pkg map[string]any) []string {
	var errors []string

	dsIDs := collectIDs(pkg, "dataSources", &errors)
	acIDs := collectIDs(pkg, "actions", &errors)

	sectionIDs := map[string]bool{}
	sections, _ := pkg["sections"].([]any)
	for i, entry := range sections {
		sec, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := sec["id"].(string); id != "" {
			if sectionIDs[id] {
				errors = append(errors, fmt.Sprintf("sections[%d].id '%s' is a duplicate", i, id))
			}
			sectionIDs[id] = true
		}
		if ds, _ := sec["dataSource"].(string); ds != "" && !dsIDs[ds] {
			errors = append(errors, fmt.Sprintf("sections[%d].dataSource '%s' references unknown id", i, ds))
		}
		if ar, _ := sec["actionRef"].(string); ar != "" && !acIDs[ar] {
			errors = append(errors, fmt.Sprintf("sections[%d].actionRef '%s' references unknown id", i, ar))
		}
		buttons, _ := sec["buttons"].([]any)
		for j, b := range buttons {
			btn, ok := b.(map[string]any)
			if !ok {
				continue
			}
			if ar, _ := btn["actionRef"].(string); ar != "" && !acIDs[ar] {
				errors = append(errors, fmt.Sprintf("sections[%d].buttons[%d].actionRef '%s' references unknown id", i, j, ar))
			}
		}
	}

	return errors
}

func collectIDs(pkg map[string]any, key string, errors *[]string) map[string]bool {
	ids := map[string]bool{}
	list, _ := pkg[key].([]any)
	for i, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		id, _ := obj["id"].(string)
		if id == "" {
			continue
		}
		if ids[id] {
			*errors = append(*errors, fmt.Sprintf("%s[%d].id '%s' is a duplicate", key, i, id))
		}
		ids[id] = true
	}
	return ids
}

// Layers 4-5: every string value anywhere in the tree is scanned against
// a fixed signature list. Traversal is depth-first with sorted keys so
// output order is stable; shared or cyclic containers are visited once.
func scanStrings(pkg map[string]any, rules []patternRule, verb string) []string {
	var hits []string
	visited := map[uintptr]bool{}
	walkStrings(pkg, "$", visited, func(path, val string) {
		for _, rule := range rules {
			if rule.pattern.MatchString(val) {
				hits = append(hits, fmt.Sprintf("%s: %s %s", path, verb, rule.desc))
			}
		}
	})
	return hits
}

func walkStrings(node any, path string, visited map[uintptr]bool, fn func(path, val string)) {
	switch v := node.(type) {
	case string:
		fn(path, v)
	case map[string]any:
		ptr := reflect.ValueOf(v).Pointer()
		if visited[ptr] {
			return
		}
		visited[ptr] = true
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkStrings(v[k], path+"."+k, visited, fn)
		}
	case []any:
		if len(v) > 0 {
			ptr := reflect.ValueOf(v).Pointer()
			if visited[ptr] {
				return
			}
			visited[ptr] = true
		}
		for i, item := range v {
			walkStrings(item, fmt.Sprintf("%s[%d]", path, i), visited, fn)
		}
	}
}

// Layer 6: class strings are bounded and must not smuggle markup or URLs
// through arbitrary-value tokens
func validateClassNames(pkg map[string]any) []string {
	var errors []string
	sections, _ := pkg["sections"].([]any)
	for i, entry := range sections {
		sec, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		cn, _ := sec["className"].(string)
		if cn == "" {
			continue
		}
		path := fmt.Sprintf("sections[%d].className", i)
		if len(cn) > maxClassNameLength {
			errors = append(errors, fmt.Sprintf("%s: exceeds max length (%d > %d)", path, len(cn), maxClassNameLength))
		}
		for _, rule := range classPatterns {
			if rule.pattern.MatchString(cn) {
				errors = append(errors, fmt.Sprintf("%s: contains dangerous pattern - %s", path, rule.desc))
			}
		}
	}
	return errors
}

// Layer 7: theme color and dark mode
func validateTheme(pkg map[string]any) []string {
	var errors []string
	theme, ok := pkg["theme"].(map[string]any)
	if !ok {
		return nil
	}

	if color, present := theme["primaryColor"]; present && color != nil {
		s, isString := color.(string)
		if !isString {
			errors = append(errors, fmt.Sprintf("theme.primaryColor: expected string, got %T", color))
		} else if s != "" && !hexColor3.MatchString(s) && !hexColor6.MatchString(s) && !hexColor8.MatchString(s) {
			errors = append(errors, fmt.Sprintf("theme.primaryColor '%s' is not a valid hex color format", s))
		}
	}

	if darkMode, present := theme["darkMode"]; present && darkMode != nil {
		if _, isBool := darkMode.(bool); !isBool {
			errors = append(errors, fmt.Sprintf("theme.darkMode: expected boolean, got %T", darkMode))
		}
	}

	return errors
}

// Layer 8: route shape and dangerous content
func validateRoute(pkg map[string]any) []string {
	metadata, _ := pkg["metadata"].(map[string]any)
	if metadata == nil {
		return nil
	}
	route, present := metadata["route"]
	if !present || route == nil {
		return nil
	}
	s, isString := route.(string)
	if !isString {
		return []string{fmt.Sprintf("metadata.route: expected string, got %T", route)}
	}
	if s == "" {
		return nil
	}

	var errors []string
	for _, rule := range routeDangerous {
		if rule.pattern.MatchString(s) {
			errors = append(errors, fmt.Sprintf("metadata.route '%s' contains %s", s, rule.desc))
		}
	}
	if !routeValid.MatchString(s) {
		if strings.Contains(s, "?") {
			errors = append(errors, fmt.Sprintf("metadata.route '%s' contains query string - handle separately", s))
		} else if !strings.HasPrefix(s, "/") {
			errors = append(errors, fmt.Sprintf("metadata.route '%s' must start with '/'", s))
		} else if len(errors) == 0 {
			errors = append(errors, fmt.Sprintf("metadata.route '%s' contains invalid characters", s))
		}
	}
	return errors
}

// Layer 9a: page-type-specific recommendations (warnings)
func validatePageType(pkg map[string]any) []string {
	metadata, _ := pkg["metadata"].(map[string]any)
	if metadata == nil {
		return nil
	}
	pageType, _ := metadata["pageType"].(string)
	profile, known := pageTypeProfiles[pageType]
	if !known {
		return nil
	}

	sectionTypes := map[string]bool{}
	formFields := map[string]bool{}
	sections, _ := pkg["sections"].([]any)
	for _, entry := range sections {
		sec, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := sec["type"].(string); t != "" {
			sectionTypes[t] = true
		}
		fields, _ := sec["fields"].([]any)
		for _, f := range fields {
			if fld, ok := f.(map[string]any); ok {
				if name, _ := fld["name"].(string); name != "" {
					formFields[name] = true
				}
			}
		}
	}

	var warnings []string
	for _, secType := range profile.recommendedSections {
		if !sectionTypes[secType] {
			warnings = append(warnings, fmt.Sprintf("pageType '%s' typically includes section type '%s'", pageType, secType))
		}
	}
	for _, fieldName := range profile.requiredFormFields {
		if !formFields[fieldName] {
			warnings = append(warnings, fmt.Sprintf("pageType '%s' typically requires form field '%s'", pageType, fieldName))
		}
	}
	return warnings
}

// Layer 9b: completeness warnings
func validateCompleteness(pkg map[string]any) []string {
	var warnings []string
	sections, _ := pkg["sections"].([]any)
	if len(sections) == 0 {
		return []string{"sections array is empty - page has no content"}
	}

	for i, entry := range sections {
		sec, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if t, _ := sec["type"].(string); t == "form" {
			if fields, _ := sec["fields"].([]any); len(fields) == 0 {
				warnings = append(warnings, fmt.Sprintf("sections[%d]: form section has no fields defined", i))
			}
			if ar, _ := sec["actionRef"].(string); ar == "" {
				warnings = append(warnings, fmt.Sprintf("sections[%d]: form section has no actionRef - form won't submit", i))
			}
		}
	}
	for i, entry := range sections {
		sec, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		t, _ := sec["type"].(string)
		ds, _ := sec["dataSource"].(string)
		if (t == "products" || t == "posts") && ds == "" {
			warnings = append(warnings, fmt.Sprintf("sections[%d]: '%s' section has no dataSource", i, t))
		}
	}
	return warnings
}
