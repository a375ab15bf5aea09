package models

import "time"

// ValidationResult accumulates validator findings by category.
// Categories 1-8 block acceptance; warnings do not.
type ValidationResult struct {
	StructureErrors      []string `json:"structure_errors,omitempty"`
	EndpointErrors       []string `json:"endpoint_errors,omitempty"`
	CrossRefErrors       []string `json:"crossref_errors,omitempty"`
	SecurityFlags        []string `json:"security_flags,omitempty"`
	DirectiveErrors      []string `json:"directive_errors,omitempty"`
	StyleErrors          []string `json:"style_errors,omitempty"`
	ThemeErrors          []string `json:"theme_errors,omitempty"`
	RouteErrors          []string `json:"route_errors,omitempty"`
	PageTypeWarnings     []string `json:"page_type_warnings,omitempty"`
	CompletenessWarnings []string `json:"completeness_warnings,omitempty"`
}

// Valid returns true when no error category has entries
func (r *ValidationResult) Valid() bool {
	return len(r.AllErrors()) == 0
}

// AllErrors flattens the blocking categories in layer order
func (r *ValidationResult) AllErrors() []string {
	var out []string
	out = append(out, r.StructureErrors...)
	out = append(out, r.EndpointErrors...)
	out = append(out, r.CrossRefErrors...)
	out = append(out, r.SecurityFlags...)
	out = append(out, r.DirectiveErrors...)
	out = append(out, r.StyleErrors...)
	out = append(out, r.ThemeErrors...)
	out = append(out, r.RouteErrors...)
	return out
}

// AllWarnings flattens the non-blocking categories
func (r *ValidationResult) AllWarnings() []string {
	var out []string
	out = append(out, r.PageTypeWarnings...)
	out = append(out, r.CompletenessWarnings...)
	return out
}

// GenerationResult is the contract between the worker and a model adapter.
// Retryable distinguishes transient failures (rate limit, 5xx, timeout,
// malformed JSON, validator rejection) from permanent ones. RetryAfter
// carries the provider-suggested retry window on rate limit errors.
type GenerationResult struct {
	Success     bool              `json:"success"`
	Template    map[string]any    `json:"template,omitempty"`
	RawResponse string            `json:"raw_response,omitempty"`
	Error       string            `json:"error,omitempty"`
	StatusCode  int               `json:"status_code,omitempty"`
	Retryable   bool              `json:"retryable"`
	RetryAfter  time.Duration     `json:"retry_after,omitempty"`
	Validation  *ValidationResult `json:"validation,omitempty"`
}
