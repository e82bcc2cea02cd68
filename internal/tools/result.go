package tools

import "strings"

// Result is the outcome of a tool call as returned to the client.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content is one block of a result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Text joins the text of every content block, one per line.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n")
}

// NewTextContent creates a text content block
func NewTextContent(text string) Content {
	return Content{
		Type: "text",
		Text: text,
	}
}

// NewTextResult creates a successful result with one text block per argument
func NewTextResult(texts ...string) *Result {
	r := &Result{Content: make([]Content, 0, len(texts))}
	for _, t := range texts {
		r.Content = append(r.Content, NewTextContent(t))
	}
	return r
}

// NewErrorResult creates an error result with one text block per argument
func NewErrorResult(texts ...string) *Result {
	r := NewTextResult(texts...)
	r.IsError = true
	return r
}
