package sequencer

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"midi-looper/loop"
)

// testLoop is one bar with a note on at 0 and note off at 48
func testLoop(name string, note byte) *loop.Loop {
	return &loop.Loop{
		Name:   name,
		Length: 96,
		Events: []loop.Event{
			{Position: 0, Message: []byte{0x90, note, 100}},
			{Position: 48, Message: []byte{0x80, note, 0}},
		},
	}
}

func noteOn(note byte) []byte  { return []byte{0x90, note, 100} }
func noteOff(note byte) []byte { return []byte{0x80, note, 0} }

// twoSlotGrid: A(60) x repA -> B(64) x repB -> nextB
func twoSlotGrid(repA, repB int, nextB SlotID) Grid {
	g := NewGrid()
	g.SetLoop(0, testLoop("loop1", 60))
	g.SetLoop(1, testLoop("loop2", 64))
	g.SetRepeat(0, repA)
	g.SetRepeat(1, repB)
	g.SetNext(0, 1)
	g.SetNext(1, nextB)
	return g
}

func newPlaying(g Grid) *Player {
	p := NewPlayer()
	p.LoadGrid(g, 0)
	p.SetPlaying(true)
	return p
}

func expectEvents(t *testing.T, pulse uint64, got [][]byte, want ...[]byte) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("tick(%d): got %d events % X, want %d", pulse, len(got), got, len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Fatalf("tick(%d) event %d = % X, want % X", pulse, i, got[i], want[i])
		}
	}
}

// run ticks every pulse in [from, to) and returns the events keyed by pulse
func run(p *Player, from, to uint64) map[uint64][][]byte {
	out := map[uint64][][]byte{}
	for pulse := from; pulse < to; pulse++ {
		if ev := p.Tick(pulse); len(ev) > 0 {
			out[pulse] = ev
		}
	}
	return out
}

func TestNotPlayingReturnsEmpty(t *testing.T) {
	p := NewPlayer()
	p.LoadGrid(twoSlotGrid(2, 2, NoSlot), 0)
	if ev := p.Tick(0); len(ev) != 0 {
		t.Fatalf("stopped player emitted %d events", len(ev))
	}
}

func TestNoGridReturnsEmpty(t *testing.T) {
	p := NewPlayer()
	p.SetPlaying(true)
	if ev := p.Tick(0); len(ev) != 0 {
		t.Fatalf("player without grid emitted %d events", len(ev))
	}
	if st := p.State(0); st.Active {
		t.Fatal("no grid should report inactive")
	}
}

func TestPlaysStartSlot(t *testing.T) {
	p := newPlaying(twoSlotGrid(2, 2, NoSlot))
	expectEvents(t, 0, p.Tick(0), noteOn(60))
}

func TestRepeatsBeforeAdvancing(t *testing.T) {
	p := newPlaying(twoSlotGrid(2, 2, NoSlot))
	expectEvents(t, 0, p.Tick(0), noteOn(60))
	expectEvents(t, 48, p.Tick(48), noteOff(60))
	expectEvents(t, 96, p.Tick(96), noteOn(60))
}

func TestAdvancesAfterRepeatCount(t *testing.T) {
	p := newPlaying(twoSlotGrid(2, 2, NoSlot))
	p.Tick(0)
	p.Tick(48)
	p.Tick(96)
	p.Tick(144)
	expectEvents(t, 192, p.Tick(192), noteOn(64))

	st := p.State(192)
	if st.Slot != 1 || st.Iteration != 1 || st.Repeat != 2 {
		t.Fatalf("state = %+v", st)
	}
}

func TestCyclesBackToFirst(t *testing.T) {
	p := newPlaying(twoSlotGrid(1, 1, 0))
	p.Tick(0)
	p.Tick(48)
	expectEvents(t, 96, p.Tick(96), noteOn(64))
	p.Tick(144)
	expectEvents(t, 192, p.Tick(192), noteOn(60))
}

func TestSelfLoop(t *testing.T) {
	g := NewGrid()
	g.SetLoop(0, testLoop("solo", 60))
	g.SetNext(0, 0)
	p := newPlaying(g)

	got := run(p, 0, 96*5)
	for lap := uint64(0); lap < 5; lap++ {
		expectEvents(t, lap*96, got[lap*96], noteOn(60))
		expectEvents(t, lap*96+48, got[lap*96+48], noteOff(60))
	}
	if len(got) != 10 {
		t.Fatalf("got events at %d pulses, want 10", len(got))
	}
}

func TestStopsAtEndOfChain(t *testing.T) {
	p := newPlaying(twoSlotGrid(1, 1, NoSlot))
	got := run(p, 0, 192)
	if len(got) != 4 {
		t.Fatalf("expected 4 event pulses before stop, got %d", len(got))
	}

	// silent from here on
	if rest := run(p, 192, 1000); len(rest) != 0 {
		t.Fatalf("stopped chain emitted at %d pulses", len(rest))
	}
	if st := p.State(500); st.Active || st.Slot != NoSlot {
		t.Fatalf("state after stop = %+v", st)
	}

	p.Reset(1000)
	expectEvents(t, 1000, p.Tick(1000), noteOn(60))
}

func TestReset(t *testing.T) {
	p := newPlaying(twoSlotGrid(1, 1, NoSlot))
	p.Tick(0)
	p.Tick(96) // now on B

	p.Reset(0)
	expectEvents(t, 0, p.Tick(0), noteOn(60))
}

func TestResetAnchorsAtPulse(t *testing.T) {
	p := newPlaying(twoSlotGrid(1, 1, NoSlot))
	run(p, 0, 130)

	p.Reset(130)
	if ev := p.Tick(130); len(ev) != 1 || ev[0][1] != 60 {
		t.Fatalf("tick right after reset = % X", ev)
	}
	expectEvents(t, 178, p.Tick(178), noteOff(60))
}

func TestChordReturnedTogether(t *testing.T) {
	g := NewGrid()
	g.SetLoop(0, &loop.Loop{
		Name:   "chord",
		Length: 96,
		Events: []loop.Event{
			{Position: 0, Message: noteOn(60)},
			{Position: 0, Message: noteOn(64)},
			{Position: 0, Message: noteOn(67)},
			{Position: 48, Message: noteOff(60)},
		},
	})
	p := newPlaying(g)
	expectEvents(t, 0, p.Tick(0), noteOn(60), noteOn(64), noteOn(67))
}

func TestSkippedPulsesCatchUp(t *testing.T) {
	p := newPlaying(twoSlotGrid(4, 1, NoSlot))
	p.Tick(0)
	// pulse 48 never ticked; the note off still fires once
	expectEvents(t, 50, p.Tick(50), noteOff(60))
	if ev := p.Tick(51); len(ev) != 0 {
		t.Fatalf("duplicate emission: % X", ev)
	}
}

func TestEmptySlotIsSilentPlaceholder(t *testing.T) {
	g := twoSlotGrid(1, 1, NoSlot)
	g.SetStart(2) // C has no loop
	p := newPlaying(g)
	if got := run(p, 0, 500); len(got) != 0 {
		t.Fatalf("empty slot emitted at %d pulses", len(got))
	}
	if st := p.State(10); !st.Active || st.LoopName != "--" || st.Remaining != 0 {
		t.Fatalf("state = %+v", st)
	}
}

func TestEmptyLoopStillAdvances(t *testing.T) {
	g := twoSlotGrid(1, 1, NoSlot)
	g.SetLoop(0, &loop.Loop{Name: "rest", Length: 96})
	p := newPlaying(g)

	if ev := p.Tick(0); len(ev) != 0 {
		t.Fatalf("rest emitted % X", ev)
	}
	expectEvents(t, 96, p.Tick(96), noteOn(64))
}

func TestUnreachableEventsNeverFire(t *testing.T) {
	g := NewGrid()
	l := testLoop("long", 60)
	l.Events = append(l.Events, loop.Event{Position: 120, Message: noteOn(72)})
	g.SetLoop(0, l)
	g.SetNext(0, 0)
	p := newPlaying(g)

	for pulse, evs := range run(p, 0, 96*4) {
		for _, ev := range evs {
			if ev[1] == 72 {
				t.Fatalf("event beyond loop length fired at %d", pulse)
			}
		}
	}
}

func TestUpdateGridPreservesPosition(t *testing.T) {
	p := newPlaying(twoSlotGrid(2, 1, NoSlot))
	run(p, 0, 100) // A lap 2

	g := p.Grid()
	g.SetRepeat(1, 3)
	p.UpdateGrid(g, 100)

	st := p.State(100)
	if st.Slot != 0 || st.Iteration != 2 {
		t.Fatalf("state after update = %+v", st)
	}
	expectEvents(t, 144, p.Tick(144), noteOff(60))
}

func TestUpdateGridClearedSlotResets(t *testing.T) {
	p := newPlaying(twoSlotGrid(1, 1, NoSlot))
	run(p, 0, 120) // on B

	g := p.Grid()
	g.ClearLoop(1)
	p.UpdateGrid(g, 120)

	st := p.State(120)
	if st.Slot != 0 || st.Iteration != 1 {
		t.Fatalf("expected reset to A, got %+v", st)
	}
	expectEvents(t, 120, p.Tick(120), noteOn(60))
}

func TestUpdateGridSwappedLoopSeeks(t *testing.T) {
	p := newPlaying(twoSlotGrid(2, 1, NoSlot))
	run(p, 0, 20)

	g := p.Grid()
	g.SetLoop(0, testLoop("swapped", 67))
	p.UpdateGrid(g, 20)

	// position 0 already passed: nothing replays, next event is the off at 48
	if got := run(p, 20, 48); len(got) != 0 {
		t.Fatalf("swap replayed events: %v", got)
	}
	expectEvents(t, 48, p.Tick(48), noteOff(67))
	expectEvents(t, 96, p.Tick(96), noteOn(67))
}

func TestUpdateGridBeforeLoad(t *testing.T) {
	p := NewPlayer()
	p.SetPlaying(true)
	p.UpdateGrid(twoSlotGrid(1, 1, NoSlot), 0)
	expectEvents(t, 0, p.Tick(0), noteOn(60))
}

func TestStateRemaining(t *testing.T) {
	p := newPlaying(twoSlotGrid(2, 1, NoSlot))
	st := p.State(0)
	if st.Remaining != 192 || st.Next != 1 || st.LoopName != "loop1" {
		t.Fatalf("state = %+v", st)
	}
	p.Tick(100)
	if st := p.State(100); st.Remaining != 92 || st.Iteration != 2 {
		t.Fatalf("state = %+v", st)
	}
}

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		remaining uint64
		zero      bool
		want      string
	}{
		{0, false, "-.-"},
		{1, false, "1.1"},
		{24, false, "1.1"},
		{25, false, "1.2"},
		{96, false, "1.4"},
		{97, false, "2.1"},
		{192, false, "2.4"},
		{1, true, "0.0"},
		{24, true, "0.0"},
		{96, true, "0.3"},
		{97, true, "1.0"},
	}
	for _, tt := range tests {
		if got := FormatCountdown(tt.remaining, tt.zero); got != tt.want {
			t.Errorf("FormatCountdown(%d, %v) = %q, want %q", tt.remaining, tt.zero, got, tt.want)
		}
	}
}

func TestPlayerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("repeat N then advance to next slot's pulse-0 events", prop.ForAll(
		func(repeat int) bool {
			p := newPlaying(twoSlotGrid(repeat, 1, NoSlot))
			got := run(p, 0, uint64(repeat)*96)
			for lap := 0; lap < repeat; lap++ {
				at := uint64(lap) * 96
				if len(got[at]) != 1 || got[at][0][1] != 60 {
					return false
				}
				if len(got[at+48]) != 1 || got[at+48][0][0] != 0x80 {
					return false
				}
			}
			boundary := uint64(repeat) * 96
			ev := p.Tick(boundary)
			return len(ev) == 1 && bytes.Equal(ev[0], noteOn(64))
		},
		gen.IntRange(1, 8),
	))

	properties.Property("reset returns to start slot lap 0", prop.ForAll(
		func(advance int, start int) bool {
			g := twoSlotGrid(1, 2, 0)
			g.SetLoop(2, testLoop("loop3", 67))
			g.SetNext(2, 0)
			g.SetStart(SlotID(start))
			p := newPlaying(g)
			run(p, 0, uint64(advance))

			p.Reset(uint64(advance))
			st := p.State(uint64(advance))
			if st.Slot != SlotID(start) || st.Iteration != 1 {
				return false
			}
			ev := p.Tick(uint64(advance))
			return len(ev) == 1 && ev[0][0] == 0x90
		},
		gen.IntRange(0, 2000),
		gen.IntRange(0, 2),
	))

	properties.Property("each event fires once per lap", prop.ForAll(
		func(laps int) bool {
			g := NewGrid()
			g.SetLoop(0, testLoop("solo", 60))
			g.SetRepeat(0, laps)
			p := newPlaying(g)
			count := 0
			for _, evs := range run(p, 0, uint64(laps)*96+500) {
				count += len(evs)
			}
			return count == laps*2
		},
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}
