package sequencer

import (
	"fmt"
	"sort"
	"sync"

	"midi-looper/debug"
	"midi-looper/loop"
	"midi-looper/midi"
)

// Player walks the slot graph in step with the clock pulse counter.
//
// All state is guarded by mu; Tick is called by the single pulse producer,
// State and Grid by any number of display readers.
type Player struct {
	mu sync.Mutex

	grid      Grid
	loaded    bool
	current   SlotID // NoSlot once the chain reached a stop
	iteration uint64 // lap within the current slot
	cursor    int    // next unfired event
	origin    uint64 // pulse at which the current slot began
	playing   bool
}

func NewPlayer() *Player {
	return &Player{current: NoSlot}
}

// PlaybackState is a display snapshot of the player
type PlaybackState struct {
	Active    bool   // a slot is selected (false after a stop)
	Slot      SlotID // current slot
	Iteration int    // 1-indexed lap
	Repeat    int    // total laps for the slot
	Next      SlotID
	LoopName  string
	Remaining uint64 // pulses until the slot advances
}

// LoadGrid installs g and restarts from its start slot
func (p *Player) LoadGrid(g Grid, pulse uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grid = g
	p.loaded = true
	p.reset(pulse)
}

// UpdateGrid swaps in an edited grid, keeping the current slot and lap.
// If the current slot lost its loop, playback resets to the start slot.
// If the loop was replaced, the cursor is moved past events already due.
func (p *Player) UpdateGrid(g Grid, pulse uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		p.grid = g
		p.loaded = true
		p.reset(pulse)
		return
	}

	var prev *loop.Loop
	if s := p.grid.Get(p.current); s != nil {
		prev = s.Loop
	}
	p.grid = g
	if !p.current.Valid() {
		return
	}

	cur := p.grid.Get(p.current)
	if cur.Loop == nil {
		debug.Log("player", "slot %s cleared while playing, reset to %s", p.current, g.Start)
		p.reset(pulse)
		return
	}
	if prev != cur.Loop {
		p.seek(cur.Loop, pulse)
	}
}

// Reset returns to the start slot at lap 0, anchored at pulse
func (p *Player) Reset(pulse uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset(pulse)
}

func (p *Player) reset(pulse uint64) {
	p.current = p.grid.Start
	if !p.loaded {
		p.current = NoSlot
	}
	p.iteration = 0
	p.cursor = 0
	p.origin = pulse
}

// seek re-derives lap and cursor for l at pulse: events strictly before the
// current position count as already played.
func (p *Player) seek(l *loop.Loop, pulse uint64) {
	if l.Length == 0 {
		p.cursor = 0
		return
	}
	elapsed := p.elapsed(pulse)
	p.iteration = elapsed / l.Length
	pos := elapsed % l.Length
	p.cursor = sort.Search(len(l.Events), func(i int) bool {
		return l.Events[i].Position >= pos
	})
}

func (p *Player) SetPlaying(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = on
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Grid returns a copy of the installed grid
func (p *Player) Grid() Grid {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.grid
}

// elapsed saturates at 0 so a counter reset never underflows
func (p *Player) elapsed(pulse uint64) uint64 {
	if pulse < p.origin {
		return 0
	}
	return pulse - p.origin
}

// Tick returns the raw messages due at pulse, in loop order
func (p *Player) Tick(pulse uint64) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing {
		return nil
	}

	for {
		slot := p.grid.Get(p.current)
		if slot == nil || slot.Loop == nil || slot.Loop.Length == 0 {
			return nil
		}
		l := slot.Loop

		elapsed := p.elapsed(pulse)
		lap := elapsed / l.Length
		pos := elapsed % l.Length

		if lap >= uint64(max(slot.Repeat, 1)) {
			debug.Log("player", "slot %s done after %d laps, next %s", slot.ID, lap, slot.Next)
			p.current = slot.Next
			p.iteration = 0
			p.cursor = 0
			p.origin = pulse
			// origin == pulse, so the next pass is lap 0 of the new slot
			continue
		}

		if lap > p.iteration {
			p.iteration = lap
			p.cursor = 0
		}

		return p.collect(l, pos)
	}
}

func (p *Player) collect(l *loop.Loop, pos uint64) [][]byte {
	var out [][]byte
	for p.cursor < len(l.Events) {
		e := &l.Events[p.cursor]
		if e.Position > pos {
			break
		}
		out = append(out, e.Message)
		p.cursor++
	}
	return out
}

// State returns a display snapshot as of pulse
func (p *Player) State(pulse uint64) PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()

	slot := p.grid.Get(p.current)
	if slot == nil {
		return PlaybackState{Slot: NoSlot, Next: NoSlot}
	}

	st := PlaybackState{
		Active:    true,
		Slot:      slot.ID,
		Iteration: int(p.iteration) + 1,
		Repeat:    max(slot.Repeat, 1),
		Next:      slot.Next,
		LoopName:  slot.LoopName(),
	}
	if slot.Loop != nil && slot.Loop.Length > 0 {
		total := uint64(st.Repeat) * slot.Loop.Length
		if elapsed := p.elapsed(pulse); elapsed < total {
			st.Remaining = total - elapsed
		}
	}
	return st
}

// FormatCountdown renders pulses remaining as bars.beats. One-indexed
// counts down to 1.1 on the last beat, zero-indexed to 0.0.
func FormatCountdown(remaining uint64, zeroIndexed bool) string {
	if remaining == 0 {
		return "-.-"
	}
	beats := (remaining - 1) / midi.PulsesPerBeat
	bars := beats / midi.BeatsPerBar
	beat := beats % midi.BeatsPerBar
	if zeroIndexed {
		return fmt.Sprintf("%d.%d", bars, beat)
	}
	return fmt.Sprintf("%d.%d", bars+1, beat+1)
}
