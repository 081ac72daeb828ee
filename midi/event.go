package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// Real-time (single byte) messages
const (
	TimingClock uint8 = 0xF8
	Start       uint8 = 0xFA
	Continue    uint8 = 0xFB
	Stop        uint8 = 0xFC
	ActiveSense uint8 = 0xFE
	Reset       uint8 = 0xFF
)

// Channel voice status nibbles
const (
	NoteOff         uint8 = 0x80
	NoteOn          uint8 = 0x90
	PolyPressure    uint8 = 0xA0
	CC              uint8 = 0xB0
	ProgramChange   uint8 = 0xC0
	ChannelPressure uint8 = 0xD0
	PitchBend       uint8 = 0xE0
	SysEx           uint8 = 0xF0
)

// CCAllNotesOff is the channel mode controller that silences held notes
const CCAllNotesOff uint8 = 123

// Clock resolution and the fixed time signature (4/4)
const (
	PulsesPerBeat = 24
	BeatsPerBar   = 4
	PulsesPerBar  = PulsesPerBeat * BeatsPerBar
)

// IsChannelVoice reports whether status is a channel voice status byte (0x80-0xEF).
func IsChannelVoice(status uint8) bool {
	return status >= 0x80 && status < 0xF0
}

// VoiceLength returns the full message length (status included) for a
// channel voice status byte, or 0 if status is not one.
func VoiceLength(status uint8) int {
	if !IsChannelVoice(status) {
		return 0
	}
	switch status & 0xF0 {
	case ProgramChange, ChannelPressure:
		return 2
	default:
		return 3
	}
}

// Describe returns a short type label and human readable details for a raw message.
func Describe(msg []byte) (kind, details string) {
	if len(msg) == 0 {
		return "EMPTY", ""
	}

	switch msg[0] {
	case TimingClock:
		return "CLOCK", "MIDI Clock pulse (24 ppqn)"
	case Start:
		return "START", "Start playback from beginning"
	case Continue:
		return "CONTINUE", "Continue playback"
	case Stop:
		return "STOP", "Stop playback"
	case ActiveSense:
		return "ACTIVE_SENSE", "Active sensing"
	case Reset:
		return "RESET", "System reset"
	}

	m := gomidi.Message(msg)
	var ch, key, vel, cc, val, prog, pressure uint8
	var rel int16
	var abs uint16

	switch {
	case m.GetNoteOn(&ch, &key, &vel):
		if vel == 0 {
			return "NOTE_OFF", fmt.Sprintf("Ch:%d Note:%s Vel:%d", ch+1, NoteName(key), vel)
		}
		return "NOTE_ON", fmt.Sprintf("Ch:%d Note:%s Vel:%d", ch+1, NoteName(key), vel)
	case m.GetNoteOff(&ch, &key, &vel):
		return "NOTE_OFF", fmt.Sprintf("Ch:%d Note:%s Vel:%d", ch+1, NoteName(key), vel)
	case m.GetControlChange(&ch, &cc, &val):
		return "CONTROL_CHANGE", fmt.Sprintf("Ch:%d CC:%d Val:%d", ch+1, cc, val)
	case m.GetProgramChange(&ch, &prog):
		return "PROGRAM_CHANGE", fmt.Sprintf("Ch:%d Prog:%d", ch+1, prog)
	case m.GetPitchBend(&ch, &rel, &abs):
		return "PITCH_BEND", fmt.Sprintf("Ch:%d Val:%d", ch+1, abs)
	case m.GetPolyAfterTouch(&ch, &key, &pressure):
		return "POLY_PRESSURE", fmt.Sprintf("Ch:%d Note:%s Val:%d", ch+1, NoteName(key), pressure)
	case m.GetAfterTouch(&ch, &pressure):
		return "CHANNEL_PRESSURE", fmt.Sprintf("Ch:%d Val:%d", ch+1, pressure)
	}

	if msg[0] == SysEx {
		return "SYSEX", fmt.Sprintf("%d bytes", len(msg))
	}
	if IsChannelVoice(msg[0]) {
		// truncated channel message
		return "INCOMPLETE", fmt.Sprintf("Ch:%d Status:0x%02X", msg[0]&0x0F+1, msg[0])
	}
	return "UNKNOWN", fmt.Sprintf("Status: 0x%02X", msg[0])
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName formats a note number as name+octave (60 = C4)
func NoteName(note uint8) string {
	octave := int(note/12) - 1
	return fmt.Sprintf("%s%d", noteNames[note%12], octave)
}
