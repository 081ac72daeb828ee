package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// RenderSymbol renders a single colored symbol
func RenderSymbol(sym rune, color lipgloss.Color) string {
	return lipgloss.NewStyle().Foreground(color).Render(string(sym))
}

// RenderLegendItem renders a single legend item: "▶ name"
func RenderLegendItem(sym rune, color lipgloss.Color, name string) string {
	return fmt.Sprintf("%s %s", RenderSymbol(sym, color), name)
}

// RenderLegend joins legend items on one line
func RenderLegend(items []string) string {
	return strings.Join(items, "  ")
}

// RenderProgress renders a width-cell bar filled to frac (0-1)
func RenderProgress(frac float64, width int, fill, empty rune, color lipgloss.Color) string {
	if width <= 0 {
		return ""
	}
	frac = max(0, min(1, frac))
	n := int(frac*float64(width) + 0.5)
	bar := strings.Repeat(string(fill), n)
	rest := strings.Repeat(string(empty), width-n)
	return lipgloss.NewStyle().Foreground(color).Render(bar) + rest
}

// Pad truncates or right-pads s to exactly width cells
func Pad(s string, width int) string {
	r := []rune(s)
	if len(r) > width {
		if width <= 1 {
			return string(r[:width])
		}
		return string(r[:width-1]) + "…"
	}
	return s + strings.Repeat(" ", width-len(r))
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
