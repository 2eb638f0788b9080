package playback

import (
	"math"
	"sync/atomic"

	"github.com/zurustar/sf2midi/pkg/sequence"
)

// NoOverride is the program override value meaning "use the sequence's program".
const NoOverride = -1

// channelState holds the live control knobs of one channel. Each field is read
// and written independently.
type channelState struct {
	muted           atomic.Bool
	solo            atomic.Bool
	transpose       atomic.Int32
	volume          atomic.Uint32 // float32 bits
	programOverride atomic.Int32
}

type channelStates [sequence.ChannelCount]channelState

func (cs *channelStates) reset() {
	for i := range cs {
		cs[i].muted.Store(false)
		cs[i].solo.Store(false)
		cs[i].transpose.Store(0)
		cs[i].volume.Store(math.Float32bits(1))
		cs[i].programOverride.Store(NoOverride)
	}
}

func (cs *channelStates) anySolo() bool {
	for i := range cs {
		if cs[i].solo.Load() {
			return true
		}
	}
	return false
}

// audible reports whether notes on ch are heard: not muted, and either no
// channel is soloed or ch is.
func (cs *channelStates) audible(ch int) bool {
	if ch < 0 || ch >= len(cs) {
		return false
	}
	return isAudible(cs[ch].muted.Load(), cs[ch].solo.Load(), cs.anySolo())
}

func isAudible(muted, solo, anySolo bool) bool {
	if muted {
		return false
	}
	return !anySolo || solo
}

// audibleMask returns one bit per audible channel.
func (cs *channelStates) audibleMask() uint16 {
	anySolo := cs.anySolo()
	var mask uint16
	for i := range cs {
		if isAudible(cs[i].muted.Load(), cs[i].solo.Load(), anySolo) {
			mask |= 1 << i
		}
	}
	return mask
}

func (cs *channelStates) volume(ch int) float32 {
	return math.Float32frombits(cs[ch].volume.Load())
}

func (cs *channelStates) setVolume(ch int, v float32) {
	cs[ch].volume.Store(math.Float32bits(clampVolume(v)))
}

// resolveProgram applies the channel's program override.
func (cs *channelStates) resolveProgram(ch, program int) int {
	if o := int(cs[ch].programOverride.Load()); o >= 0 {
		return o
	}
	return program
}

func clampVolume(v float32) float32 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// effectiveKey transposes key by whole octaves and semitones, clamped to the
// MIDI note range.
func effectiveKey(key, octaves, semitones int) int {
	return clampKey(key + octaves*12 + semitones)
}

func clampKey(key int) int {
	if key < 0 {
		return 0
	}
	if key > 127 {
		return 127
	}
	return key
}

func checkChannel(ch int) error {
	if ch < 0 || ch >= sequence.ChannelCount {
		return ErrChannelOutOfRange
	}
	return nil
}
