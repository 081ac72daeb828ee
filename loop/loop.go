// Package loop loads standard MIDI files into fixed-length loops quantized
// to the MIDI clock grid (24 pulses per quarter note).
package loop

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"gitlab.com/gomidi/midi/v2/smf"

	"midi-looper/debug"
	"midi-looper/midi"
)

var (
	// ErrTimecode is returned for files using SMPTE time code instead of
	// metric (ticks per quarter note) timing.
	ErrTimecode = errors.New("timecode-based MIDI files not supported")

	// ErrNoResolution is returned when a file declares 0 ticks per quarter note.
	ErrNoResolution = errors.New("MIDI file has no tick resolution")
)

// Event is a single channel voice message at a pulse offset within the loop
type Event struct {
	Position uint64 // pulses from loop start
	Channel  uint8  // 0-15
	Message  []byte // status + data
}

// Loop is a parsed MIDI file. Events are sorted by Position.
type Loop struct {
	Name   string
	Path   string
	Length uint64 // pulses; bars * 96, independent of event span
	Events []Event
}

// Load reads the MIDI file at path as a loop of the given number of bars
func Load(path string, bars int) (*Loop, error) {
	f, err := smf.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	l, err := FromSMF(f, nameFromPath(path), bars)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	l.Path = path
	return l, nil
}

// Parse reads MIDI file data from r
func Parse(r io.Reader, name string, bars int) (*Loop, error) {
	f, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return FromSMF(f, name, bars)
}

// FromSMF quantizes every channel voice event of every track onto the
// 24 ppqn grid: position = tick * 24 / ticksPerQuarter (rounded down).
func FromSMF(f *smf.SMF, name string, bars int) (*Loop, error) {
	var ppq uint64
	switch tf := f.TimeFormat.(type) {
	case smf.MetricTicks:
		ppq = uint64(tf)
	default:
		return nil, ErrTimecode
	}
	if ppq == 0 {
		return nil, ErrNoResolution
	}
	if bars < 1 {
		bars = 1
	}

	l := &Loop{
		Name:   name,
		Length: uint64(bars) * midi.PulsesPerBar,
	}

	for _, track := range f.Tracks {
		var tick uint64
		for _, ev := range track {
			tick += uint64(ev.Delta)

			raw := []byte(ev.Message)
			if len(raw) == 0 || !midi.IsChannelVoice(raw[0]) {
				continue
			}
			n := midi.VoiceLength(raw[0])
			if len(raw) < n {
				continue
			}

			msg := make([]byte, n)
			copy(msg, raw[:n])
			l.Events = append(l.Events, Event{
				Position: tick * midi.PulsesPerBeat / ppq,
				Channel:  msg[0] & 0x0F,
				Message:  msg,
			})
		}
	}

	sort.Slice(l.Events, func(i, j int) bool {
		return l.Events[i].Position < l.Events[j].Position
	})

	if n := l.Unreachable(); n > 0 {
		debug.Warn("loop", "%s: %d of %d events lie beyond %d bar(s) and will never play",
			name, n, len(l.Events), bars)
	}
	debug.Log("loop", "loaded %s: %d events, %d pulses (ppq %d)", name, len(l.Events), l.Length, ppq)
	return l, nil
}

// SetChannel rewrites the channel of every event (ch 0-15)
func (l *Loop) SetChannel(ch uint8) {
	ch &= 0x0F
	for i := range l.Events {
		e := &l.Events[i]
		e.Channel = ch
		e.Message[0] = e.Message[0]&0xF0 | ch
	}
}

// Bars returns the loop length in bars
func (l *Loop) Bars() int {
	return int(l.Length / midi.PulsesPerBar)
}

// Unreachable counts events at or past Length. Playback wraps modulo
// Length, so these never fire.
func (l *Loop) Unreachable() int {
	// events are sorted: find the first position >= Length
	i := sort.Search(len(l.Events), func(i int) bool {
		return l.Events[i].Position >= l.Length
	})
	return len(l.Events) - i
}

// Clone returns a deep copy, so a remap does not touch a shared loop
func (l *Loop) Clone() *Loop {
	c := *l
	c.Events = make([]Event, len(l.Events))
	for i, e := range l.Events {
		e.Message = append([]byte(nil), e.Message...)
		c.Events[i] = e
	}
	return &c
}

func nameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
