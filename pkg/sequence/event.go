// Package sequence loads Standard MIDI Files into a flat, time-ordered event
// list stamped with absolute milliseconds.
//
// A Sequence is immutable once built and may be shared read-only by any number
// of playbacks.
package sequence

import "fmt"

// Kind identifies the type of a sequence event. Channel message kinds carry
// their MIDI status nibble; SetTempo carries the meta event type.
type Kind uint8

const (
	NoteOff         Kind = 0x80
	NoteOn          Kind = 0x90
	KeyPressure     Kind = 0xA0
	ControlChange   Kind = 0xB0
	ProgramChange   Kind = 0xC0
	ChannelPressure Kind = 0xD0
	PitchBend       Kind = 0xE0
	SetTempo        Kind = 0x51
)

// DefaultMicrosPerBeat is the SMF default tempo (120 BPM).
const DefaultMicrosPerBeat = 500000

// ChannelCount is the number of MIDI channels.
const ChannelCount = 16

// DrumChannel is the General MIDI percussion channel (0-based).
const DrumChannel = 9

func (k Kind) String() string {
	switch k {
	case NoteOff:
		return "NoteOff"
	case NoteOn:
		return "NoteOn"
	case KeyPressure:
		return "KeyPressure"
	case ControlChange:
		return "ControlChange"
	case ProgramChange:
		return "ProgramChange"
	case ChannelPressure:
		return "ChannelPressure"
	case PitchBend:
		return "PitchBend"
	case SetTempo:
		return "SetTempo"
	}
	return fmt.Sprintf("Kind(0x%02X)", uint8(k))
}

// StateDefining reports whether events of this kind have to be replayed to
// reconstruct synthesizer state at an arbitrary position.
func (k Kind) StateDefining() bool {
	switch k {
	case ProgramChange, ControlChange, PitchBend, SetTempo:
		return true
	}
	return false
}

// Event is one time-stamped message of a Sequence. Only the fields relevant
// to Kind are set.
type Event struct {
	TimeMs  uint32
	Kind    Kind
	Channel int

	Key        int // NoteOn, NoteOff, KeyPressure
	Velocity   int // NoteOn, NoteOff
	Program    int // ProgramChange
	Controller int // ControlChange
	Value      int // ControlChange value, KeyPressure and ChannelPressure amount
	Bend       int // PitchBend, 0..16383 with 8192 centered
	Tempo      int // SetTempo, microseconds per quarter note
}

// BPM converts the tempo of a SetTempo event to beats per minute.
func (e Event) BPM() int {
	if e.Tempo <= 0 {
		return 0
	}
	return int(60000000.0 / float64(e.Tempo))
}
