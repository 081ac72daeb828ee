package sequencer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"midi-looper/clock"
	"midi-looper/debug"
	"midi-looper/midi"
)

// Source selects which pulse producer drives the engine
type Source int

const (
	SourceExternal Source = iota // forwarded input port
	SourceInternal               // clock.Generator
)

func (s Source) String() string {
	if s == SourceInternal {
		return "internal"
	}
	return "external"
}

// ParseSource parses "external" or "internal" (empty = external)
func ParseSource(s string) (Source, error) {
	switch s {
	case "", "external":
		return SourceExternal, nil
	case "internal":
		return SourceInternal, nil
	}
	return SourceExternal, fmt.Errorf("unknown clock source %q", s)
}

// UI refresh rate
const uiFPS = 30

// Manager wires a pulse source to the clock state and the player, and sends
// due events to the output sink.
type Manager struct {
	clock  *clock.State
	player *Player
	gen    *clock.Generator

	out       midi.Sink
	source    Source
	channel   uint8 // 0-15
	sendClock bool
	mu        sync.RWMutex

	// Notify TUI of updates
	UpdateChan chan struct{}
}

// NewManager creates an engine sending to out, with the internal generator
// set to bpm but idle.
func NewManager(out midi.Sink, bpm float64) *Manager {
	m := &Manager{
		clock:      clock.New(),
		player:     NewPlayer(),
		out:        out,
		UpdateChan: make(chan struct{}, 1),
	}
	m.gen = clock.NewGenerator(bpm, m.handleInternal)
	return m
}

// Run drives the internal generator and the UI refresh until ctx is done
// (blocking - run in goroutine)
func (m *Manager) Run(ctx context.Context) {
	go m.gen.Run(ctx)

	ticker := time.NewTicker(time.Second / uiFPS)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.allNotesOff()
			return
		case <-ticker.C:
			m.notifyUpdate()
		}
	}
}

// HandleExternal is the input port handler. Messages are dropped while the
// internal generator is the source.
func (m *Manager) HandleExternal(msg []byte) {
	if m.Source() != SourceExternal {
		return
	}
	m.process(msg)
}

func (m *Manager) handleInternal(msg []byte) {
	// the generator's closing STOP can arrive after a switch to external
	if m.Source() != SourceInternal && (len(msg) == 0 || msg[0] != midi.Stop) {
		return
	}
	m.mu.RLock()
	forward := m.sendClock
	m.mu.RUnlock()
	if forward {
		m.send(msg)
	}
	m.process(msg)
}

// process feeds one realtime message to clock and player
func (m *Manager) process(msg []byte) {
	if len(msg) == 0 {
		return
	}

	switch msg[0] {
	case midi.Start:
		m.clock.HandleMessage(msg)
		m.player.Reset(0)
		m.player.SetPlaying(true)
		debug.Log("engine", "START")
		m.notifyUpdate()

	case midi.Continue:
		m.clock.HandleMessage(msg)
		m.player.SetPlaying(true)
		debug.Log("engine", "CONTINUE at pulse %d", m.clock.PulseCount())
		m.notifyUpdate()

	case midi.Stop:
		m.clock.HandleMessage(msg)
		m.player.SetPlaying(false)
		m.allNotesOff()
		debug.Log("engine", "STOP at pulse %d", m.clock.PulseCount())
		m.notifyUpdate()

	case midi.TimingClock:
		// tick with the count before this pulse: the first pulse after
		// START is loop position 0
		pulse := m.clock.PulseCount()
		m.clock.HandleMessage(msg)
		if !m.clock.Running() {
			return
		}
		if !m.player.Playing() {
			// clock auto-started without a transport message
			m.player.Reset(pulse)
			m.player.SetPlaying(true)
			debug.Log("engine", "auto-start at pulse %d", pulse)
		}
		for _, ev := range m.tick(pulse) {
			m.send(ev)
		}
		debug.LogEvery(midi.PulsesPerBar*8, "engine", "pulse %d bpm %.1f", pulse, m.clock.BPM())
	}
}

// tick runs the player, restarting it from the start slot if it panics
func (m *Manager) tick(pulse uint64) (events [][]byte) {
	defer func() {
		if r := recover(); r != nil {
			debug.Error("engine", "player panic at pulse %d: %v; resetting", pulse, r)
			m.player.Reset(pulse)
			events = nil
		}
	}()
	return m.player.Tick(pulse)
}

// send delivers msg; failures are logged and dropped
func (m *Manager) send(msg []byte) {
	m.mu.RLock()
	out := m.out
	m.mu.RUnlock()
	if out == nil {
		return
	}
	if err := out.Send(msg); err != nil {
		debug.LogEvery(50, "send", "send % X failed: %v", msg, err)
	}
}

func (m *Manager) allNotesOff() {
	m.mu.RLock()
	ch := m.channel
	m.mu.RUnlock()
	m.send([]byte{midi.CC | ch, midi.CCAllNotesOff, 0})
}

// notifyUpdate wakes the TUI without blocking
func (m *Manager) notifyUpdate() {
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}

// SetOutput replaces the output sink (nil drops all output)
func (m *Manager) SetOutput(out midi.Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.out = out
}

// SetChannel sets the output channel (1-16) used for all-notes-off
func (m *Manager) SetChannel(ch int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channel = uint8(max(1, min(16, ch)) - 1)
}

// SetSendClock forwards generated realtime messages to the output
func (m *Manager) SetSendClock(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendClock = on
}

func (m *Manager) Source() Source {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.source
}

// SetSource switches pulse producer. Leaving internal mode stops the
// generator, which emits a final STOP.
func (m *Manager) SetSource(s Source) {
	m.mu.Lock()
	prev := m.source
	m.source = s
	m.mu.Unlock()

	if prev == SourceInternal && s != SourceInternal {
		m.gen.SetEnabled(false)
	}
	debug.Info("engine", "clock source %s", s)
	m.notifyUpdate()
}

// Play starts the internal generator (no-op for an external source)
func (m *Manager) Play() {
	if m.Source() == SourceInternal {
		m.gen.SetEnabled(true)
	}
}

// Stop stops the internal generator (no-op for an external source)
func (m *Manager) Stop() {
	if m.Source() == SourceInternal {
		m.gen.SetEnabled(false)
	}
}

// TogglePlay flips the internal transport
func (m *Manager) TogglePlay() {
	if m.gen.Enabled() {
		m.Stop()
	} else {
		m.Play()
	}
}

// SetTempo sets the internal generator BPM (clamped 20-300)
func (m *Manager) SetTempo(bpm float64) {
	m.gen.SetBPM(bpm)
	m.notifyUpdate()
}

func (m *Manager) Tempo() float64 {
	return m.gen.BPM()
}

// LoadGrid installs g and restarts from its start slot
func (m *Manager) LoadGrid(g Grid) {
	m.player.LoadGrid(g, m.clock.PulseCount())
	m.notifyUpdate()
}

// UpdateGrid installs an edited grid, keeping the playback position
func (m *Manager) UpdateGrid(g Grid) {
	m.player.UpdateGrid(g, m.clock.PulseCount())
	m.notifyUpdate()
}

func (m *Manager) Grid() Grid {
	return m.player.Grid()
}

// Status is a display snapshot. Fields are read independently and may be
// one pulse apart.
type Status struct {
	Running       bool
	SeenTransport bool
	Pulse         uint64
	Bar, Beat     uint64
	BPM           float64
	Source        Source
	InternalBPM   float64
	Generating    bool
	Playback      PlaybackState
}

func (m *Manager) Status() Status {
	pulse := m.clock.PulseCount()
	bar, beat := clock.PositionAt(pulse)
	return Status{
		Running:       m.clock.Running(),
		SeenTransport: m.clock.SeenTransport(),
		Pulse:         pulse,
		Bar:           bar,
		Beat:          beat,
		BPM:           m.clock.BPM(),
		Source:        m.Source(),
		InternalBPM:   m.gen.BPM(),
		Generating:    m.gen.Enabled(),
		Playback:      m.player.State(pulse),
	}
}
