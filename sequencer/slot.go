package sequencer

import (
	"errors"
	"fmt"
	"strings"

	"midi-looper/loop"
)

// NumSlots is the number of addressable slots (A-Z)
const NumSlots = 26

// SlotID addresses a slot: 0 = A ... 25 = Z
type SlotID uint8

// NoSlot marks the end of a chain (stop after this slot)
const NoSlot SlotID = 0xFF

var ErrBadSlot = errors.New("invalid slot")

// ParseSlotID parses a slot letter (case-insensitive). Empty or "-" / "--"
// parse as NoSlot.
func ParseSlotID(s string) (SlotID, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "-", "--":
		return NoSlot, nil
	}
	if len(s) != 1 {
		return NoSlot, fmt.Errorf("%w: %q", ErrBadSlot, s)
	}
	c := s[0]
	if c >= 'a' && c <= 'z' {
		c -= 'a' - 'A'
	}
	if c < 'A' || c > 'Z' {
		return NoSlot, fmt.Errorf("%w: %q", ErrBadSlot, s)
	}
	return SlotID(c - 'A'), nil
}

// Valid reports whether id addresses one of the 26 slots
func (id SlotID) Valid() bool {
	return id < NumSlots
}

func (id SlotID) String() string {
	if !id.Valid() {
		return "--"
	}
	return string(rune('A' + id))
}

// Slot is one vertex of the sequence graph
type Slot struct {
	ID     SlotID
	Loop   *loop.Loop // nil = silent placeholder
	Repeat int        // >= 1
	Next   SlotID     // NoSlot = stop
}

func (s *Slot) HasLoop() bool {
	return s.Loop != nil
}

// LoopName returns the loop name or "--" for an empty slot
func (s *Slot) LoopName() string {
	if s.Loop == nil {
		return "--"
	}
	return s.Loop.Name
}

// LengthBars returns the loop length in bars, or "--"
func (s *Slot) LengthBars() string {
	if s.Loop == nil {
		return "--"
	}
	return fmt.Sprintf("%d", s.Loop.Bars())
}

// Grid is the full slot graph plus its entry point. It is a value type:
// copies share loops but not slot settings.
type Grid struct {
	Slots [NumSlots]Slot
	Start SlotID
}

// NewGrid returns 26 empty slots (repeat 1, no next) starting at A
func NewGrid() Grid {
	var g Grid
	for i := range g.Slots {
		g.Slots[i] = Slot{ID: SlotID(i), Repeat: 1, Next: NoSlot}
	}
	return g
}

// Get returns the slot for id, or nil if id is out of range
func (g *Grid) Get(id SlotID) *Slot {
	if !id.Valid() {
		return nil
	}
	return &g.Slots[id]
}

func (g *Grid) SetLoop(id SlotID, l *loop.Loop) {
	if s := g.Get(id); s != nil {
		s.Loop = l
	}
}

func (g *Grid) ClearLoop(id SlotID) {
	g.SetLoop(id, nil)
}

// SetNext points id at next; NoSlot (or any invalid id) means stop
func (g *Grid) SetNext(id, next SlotID) {
	if s := g.Get(id); s != nil {
		if !next.Valid() {
			next = NoSlot
		}
		s.Next = next
	}
}

// SetRepeat sets the repeat count, clamped to at least 1
func (g *Grid) SetRepeat(id SlotID, n int) {
	if s := g.Get(id); s != nil {
		s.Repeat = max(n, 1)
	}
}

func (g *Grid) SetStart(id SlotID) {
	if id.Valid() {
		g.Start = id
	}
}
