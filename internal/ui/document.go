package ui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/nvuectl/internal/nvue"
)

// Document is a box showing a response body: indented JSON, or raw text for
// bodies the device did not send as JSON.
type Document struct {
	Title    string
	Lines    []string
	Width    int
	MaxLines int // 0 = unlimited
}

// NewDocument formats resp for display
func NewDocument(title string, resp *nvue.Response) *Document {
	return &Document{
		Title: title,
		Lines: strings.Split(FormatResponse(resp), "\n"),
		Width: GetTerminalWidth(),
	}
}

// FormatResponse renders a response as indented JSON, or its raw text
func FormatResponse(resp *nvue.Response) string {
	if resp == nil {
		return "null"
	}
	if !resp.IsJSON() {
		return resp.String()
	}
	data, err := json.MarshalIndent(resp.Value(), "", "  ")
	if err != nil {
		return resp.String()
	}
	return string(data)
}

// SetWidth sets the render width
func (d *Document) SetWidth(width int) *Document {
	d.Width = width
	return d
}

// SetMaxLines truncates long documents
func (d *Document) SetMaxLines(n int) *Document {
	d.MaxLines = n
	return d
}

// Render returns the styled box
func (d *Document) Render() string {
	width := clampWidth(d.Width)

	lines := d.Lines
	var footer string
	if d.MaxLines > 0 && len(lines) > d.MaxLines {
		footer = StepNoteStyle.Render(fmt.Sprintf("... %d more lines (use --format json for the full document)", len(lines)-d.MaxLines))
		lines = lines[:d.MaxLines]
	}

	parts := []string{DocumentTitleStyle.Render(d.Title), DocumentContentStyle.Render(strings.Join(lines, "\n"))}
	if footer != "" {
		parts = append(parts, footer)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(width-4).
		Padding(0, 1).
		Render(strings.Join(parts, "\n"))
}

// String implements fmt.Stringer
func (d *Document) String() string {
	return d.Render()
}
