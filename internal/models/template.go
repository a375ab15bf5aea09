// -----------------------------------------------------------------------
// Template Package - Structured page description produced by the model
// -----------------------------------------------------------------------

package models

import (
	"encoding/json"
	"fmt"
)

// Template is the typed view of a model-produced template package.
// Parsing is lenient: unknown keys are ignored for forward compatibility,
// known keys are decoded best-effort. Validation happens on the raw tree
// before this type is ever constructed.
type Template struct {
	Metadata    Metadata     `json:"metadata"`
	Theme       Theme        `json:"theme"`
	DataSources []DataSource `json:"dataSources"`
	Actions     []Action     `json:"actions"`
	Sections    []Section    `json:"sections"`
}

type Metadata struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PageType    string `json:"pageType"`
	Route       string `json:"route"`
}

type Theme struct {
	PrimaryColor string `json:"primaryColor"`
	DarkMode     bool   `json:"darkMode"`
}

// DataSource binds a section's dynamic content to a backend endpoint
type DataSource struct {
	ID       string         `json:"id"`
	Endpoint string         `json:"endpoint"`
	Params   map[string]any `json:"params,omitempty"`
	KeyName  string         `json:"keyName,omitempty"`
}

// Action binds a form or button to a backend endpoint
type Action struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
	Method   string `json:"method,omitempty"`
}

// Section is one renderable page block. Sections may nest via Children.
type Section struct {
	Type       string      `json:"type"`
	ID         string      `json:"id,omitempty"`
	Title      string      `json:"title,omitempty"`
	Subtitle   string      `json:"subtitle,omitempty"`
	Content    string      `json:"content,omitempty"`
	ClassName  string      `json:"className,omitempty"`
	DataSource string      `json:"dataSource,omitempty"`
	ActionRef  string      `json:"actionRef,omitempty"`
	Buttons    []Button    `json:"buttons,omitempty"`
	Items      []Item      `json:"items,omitempty"`
	Fields     []FormField `json:"fields,omitempty"`
	Columns    int         `json:"columns,omitempty"`
	Background string      `json:"backgroundImage,omitempty"`
	Children   []Section   `json:"children,omitempty"`
}

type Button struct {
	Label     string `json:"label,omitempty"`
	Text      string `json:"text,omitempty"`
	Variant   string `json:"variant,omitempty"`
	Href      string `json:"href,omitempty"`
	ActionRef string `json:"actionRef,omitempty"`
}

// Caption returns the button label, accepting either key the model emits
func (b Button) Caption() string {
	if b.Label != "" {
		return b.Label
	}
	if b.Text != "" {
		return b.Text
	}
	return "Button"
}

// Item is one card in a features/products/testimonials grid
type Item struct {
	Title       string `json:"title,omitempty"`
	Name        string `json:"name,omitempty"`
	Subtitle    string `json:"subtitle,omitempty"`
	Role        string `json:"role,omitempty"`
	Price       string `json:"price,omitempty"`
	Content     string `json:"content,omitempty"`
	Text        string `json:"text,omitempty"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Href        string `json:"href,omitempty"`
}

type FormField struct {
	Name        string `json:"name,omitempty"`
	Label       string `json:"label,omitempty"`
	Type        string `json:"type,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// ParseTemplate decodes a raw template tree into the typed view.
// Unknown keys are dropped; type mismatches on known keys fail.
func ParseTemplate(raw map[string]any) (*Template, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode template: %w", err)
	}
	var tmpl Template
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("failed to decode template: %w", err)
	}
	return &tmpl, nil
}
