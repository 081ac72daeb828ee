// Package clock tracks transport state and tempo from a stream of MIDI
// realtime messages, and can generate such a stream at a fixed tempo.
package clock

import (
	"sync"
	"sync/atomic"
	"time"

	"midi-looper/midi"
)

// State is shared between the pulse producer and display readers.
//
// Scalar fields are independent atomics; a reader may observe e.g. a
// position computed from a counter that has since moved. The timestamp ring
// is guarded by a mutex because evict+insert+recompute is one step.
//
// If no START/STOP/CONTINUE has been seen yet, clock pulses auto-start
// playback so the looper can join a source that is already running. The
// first transport message disables this for good.
type State struct {
	running       atomic.Bool
	seenTransport atomic.Bool
	pulseCount    atomic.Uint64
	bpmX100       atomic.Uint64

	mu    sync.Mutex
	times TimeBuffer

	now func() time.Time
}

func New() *State {
	return &State{now: time.Now}
}

func (s *State) Running() bool {
	return s.running.Load()
}

// SeenTransport reports whether an explicit transport message arrived
func (s *State) SeenTransport() bool {
	return s.seenTransport.Load()
}

// PulseCount returns pulses counted while running since the last START
func (s *State) PulseCount() uint64 {
	return s.pulseCount.Load()
}

// Position returns the current (bar, beat), both 1-indexed
func (s *State) Position() (bar, beat uint64) {
	return PositionAt(s.pulseCount.Load())
}

// PositionAt converts a pulse count to a 1-indexed (bar, beat)
func PositionAt(pulses uint64) (bar, beat uint64) {
	beats := pulses / midi.PulsesPerBeat
	return beats/midi.BeatsPerBar + 1, beats%midi.BeatsPerBar + 1
}

// BPM returns the rolling tempo estimate (0 until two pulses were seen)
func (s *State) BPM() float64 {
	return float64(s.bpmX100.Load()) / 100
}

// HandleMessage updates state from one raw message stamped with the current time
func (s *State) HandleMessage(msg []byte) {
	s.HandleMessageAt(msg, s.now())
}

// HandleMessageAt is HandleMessage with an explicit timestamp
func (s *State) HandleMessageAt(msg []byte, now time.Time) {
	if len(msg) == 0 {
		return
	}

	switch msg[0] {
	case midi.Start:
		s.seenTransport.Store(true)
		s.running.Store(true)
		s.pulseCount.Store(0)
		s.bpmX100.Store(0)
		s.mu.Lock()
		s.times.Clear()
		s.mu.Unlock()

	case midi.Continue:
		s.seenTransport.Store(true)
		s.running.Store(true)

	case midi.Stop:
		s.seenTransport.Store(true)
		s.running.Store(false)

	case midi.TimingClock:
		if !s.seenTransport.Load() {
			s.running.Store(true)
		}

		// tempo tracks pulses even while stopped
		s.mu.Lock()
		s.times.Push(now)
		if oldest, n, ok := s.times.Oldest(); ok && n > 1 {
			if elapsed := now.Sub(oldest).Seconds(); elapsed > 0 {
				beats := float64(n-1) / midi.PulsesPerBeat
				bpm := beats / (elapsed / 60)
				s.bpmX100.Store(uint64(bpm * 100))
			}
		}
		s.mu.Unlock()

		if s.running.Load() {
			s.pulseCount.Add(1)
		}
	}
}
