// Package playback renders an event sequence through a synthesis engine while
// accepting live channel controls and injected MIDI messages from other
// goroutines.
package playback

import "errors"

// Configuration errors
var (
	ErrNoBank            = errors.New("no SoundFont bank")
	ErrNoSequence        = errors.New("no MIDI sequence")
	ErrNotLoaded         = errors.New("resource not loaded")
	ErrInvalidTempoScale = errors.New("tempo scale must be positive")
	ErrInvalidSampleRate = errors.New("sample rate out of range")
)

// Live control errors
var (
	ErrChannelOutOfRange  = errors.New("channel out of range")
	ErrNoteOutOfRange     = errors.New("note out of range")
	ErrVelocityOutOfRange = errors.New("velocity out of range")
	ErrValueOutOfRange    = errors.New("value out of range")
	ErrUnsupportedMessage = errors.New("unsupported MIDI message")
)

// ErrDuplicateFailed is returned when the bank cannot be duplicated for a new
// playback instance.
var ErrDuplicateFailed = errors.New("failed to duplicate SoundFont bank")
