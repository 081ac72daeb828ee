package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// Sequence table
	Playing rune // ▶ current slot
	Next    rune // ◆ slot after the current one
	Start   rune // ● start slot
	Empty   rune // · no loop

	// Transport
	Running rune // ▶
	Stopped rune // ■

	// Lap progress bar
	Filled   rune // █
	Unfilled rune // ░
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Playing: '▶',
			Next:    '◆',
			Start:   '●',
			Empty:   '·',

			Running: '▶',
			Stopped: '■',

			Filled:   '█',
			Unfilled: '░',
		},
	}
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0 // deep purple
	RoleMuted   = 0.2 // purple-magenta
	RoleFG      = 0.4 // pink-purple (readable)
	RoleAccent  = 0.5 // vivid magenta
	RoleCursor  = 0.6 // rose pink
	RoleActive  = 0.7 // orange
	RoleWarning = 0.8 // amber
	RoleSuccess = 1.0 // bright yellow
)

// Style helpers

func (t *Theme) BG() lipgloss.Color {
	return t.Color(RoleBG)
}

func (t *Theme) FG() lipgloss.Color {
	return t.Color(RoleFG)
}

func (t *Theme) Accent() lipgloss.Color {
	return t.Color(RoleAccent)
}

func (t *Theme) Muted() lipgloss.Color {
	return t.Color(RoleMuted)
}

func (t *Theme) Active() lipgloss.Color {
	return t.Color(RoleActive)
}

func (t *Theme) Cursor() lipgloss.Color {
	return t.Color(RoleCursor)
}

func (t *Theme) Warning() lipgloss.Color {
	return t.Color(RoleWarning)
}

func (t *Theme) Success() lipgloss.Color {
	return t.Color(RoleSuccess)
}

// Color returns lipgloss color for any normalized value 0-1
func (t *Theme) Color(norm float64) lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(norm))
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
