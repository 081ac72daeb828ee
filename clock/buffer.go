package clock

import (
	"time"

	"midi-looper/midi"
)

// WindowPulses is the BPM averaging window: one bar of pulses
const WindowPulses = midi.PulsesPerBar

// TimeBuffer is a fixed-capacity ring of pulse timestamps. The zero value is
// an empty buffer.
type TimeBuffer struct {
	times [WindowPulses]time.Time
	index int
	count int
}

// Push stores t, evicting the oldest sample once full, and returns the
// number of retained samples.
func (b *TimeBuffer) Push(t time.Time) int {
	b.times[b.index] = t
	b.index = (b.index + 1) % WindowPulses
	if b.count < WindowPulses {
		b.count++
	}
	return b.count
}

// Oldest returns the oldest retained timestamp and the sample count.
func (b *TimeBuffer) Oldest() (time.Time, int, bool) {
	if b.count == 0 {
		return time.Time{}, 0, false
	}
	if b.count < WindowPulses {
		return b.times[0], b.count, true
	}
	// full: the write cursor points at the oldest sample
	return b.times[b.index], b.count, true
}

func (b *TimeBuffer) Len() int {
	return b.count
}

func (b *TimeBuffer) Clear() {
	*b = TimeBuffer{}
}
