// Package synth defines the synthesis engine contract consumed by playback and
// implements it on top of go-meltysynth.
package synth

import "errors"

// Sentinel errors
var (
	// ErrInvalidSoundFont is returned when SoundFont bytes fail to parse.
	ErrInvalidSoundFont = errors.New("invalid SoundFont")

	// ErrSoundFontNotFound is returned when the SoundFont file cannot be found.
	ErrSoundFontNotFound = errors.New("SoundFont file not found")

	// ErrEngineCreate is returned when a synthesizer instance cannot be created.
	ErrEngineCreate = errors.New("failed to create synthesizer")
)

// DrumBank is the bank number of percussion presets.
const DrumBank = 128

// DrumChannel is the General MIDI percussion channel (0-based).
const DrumChannel = 9

// General MIDI controller numbers.
const (
	CCBankSelect       = 0
	CCModulation       = 1
	CCDataEntry        = 6
	CCVolume           = 7
	CCPan              = 10
	CCExpression       = 11
	CCBankSelectLSB    = 32
	CCSustain          = 64
	CCReverb           = 91
	CCChorus           = 93
	CCNRPNLSB          = 98
	CCNRPNMSB          = 99
	CCRPNLSB           = 100
	CCRPNMSB           = 101
	CCAllSoundOff      = 120
	CCResetControllers = 121
	CCAllNotesOff      = 123
)

const (
	PitchBendCenter = 8192
	PitchBendMax    = 16383
)

// Engine defaults and limits.
const (
	DefaultMaxVoices = 256
	DefaultBlockSize = 64
	MinSampleRate    = 16000
	MaxSampleRate    = 192000

	minMaxVoices = 8

	// silenceThreshold is below one 16-bit LSB.
	silenceThreshold = 1.0 / 32768

	// silenceHoldFrames is the run of silent output after which an engine
	// reports no active voices.
	silenceHoldFrames = 1024
)

// Preset identifies one instrument definition in a bank.
type Preset struct {
	Index  int // position in the SoundFont preset list
	Bank   int
	Number int
	Name   string
}

// Settings configures a synthesizer instance.
type Settings struct {
	SampleRate int
	MaxVoices  int
	BlockSize  int
}

// Engine is one synthesizer instance with its own voice state. Except for
// ChannelPreset, methods are called from the render goroutine only.
type Engine interface {
	// Render writes len(left) stereo frames. left and right must have equal length.
	Render(left, right []float32)
	// NoteOn starts a note. velocity is in [0,1].
	NoteOn(channel, key int, velocity float32)
	NoteOff(channel, key int)
	// AllNotesOff releases every voice on every channel.
	AllNotesOff()
	// ChannelNotesOff releases every voice on one channel.
	ChannelNotesOff(channel int)
	// SetProgram selects a program. drums requests a percussion bank lookup.
	SetProgram(channel, program int, drums bool)
	ControlChange(channel, controller, value int)
	// PitchBend sets the 14-bit bend value, 8192 is center.
	PitchBend(channel, value int)
	// Reset silences all voices and restores default channel state.
	Reset()
	// ActiveVoices is zero once nothing is audible, including notes whose
	// sample ended without a note-off.
	ActiveVoices() int
	// ChannelPreset reports the preset a channel currently resolves to.
	ChannelPreset(channel int) (Preset, bool)
	Close() error
}

// Bank is a loaded instrument bank that can produce independent engines.
type Bank interface {
	// Duplicate creates a new engine sharing the bank's sample data.
	Duplicate(settings Settings) (Engine, error)
	// Lookup resolves a bank/program pair to a preset.
	Lookup(bank, program int) (Preset, bool)
	// Loaded reports whether the bank holds parsed data.
	Loaded() bool
}
