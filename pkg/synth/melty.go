package synth

import (
	"math"
	"sync"

	"github.com/sinshu/go-meltysynth/meltysynth"
)

// MIDI status bytes understood by meltysynth.ProcessMidiMessage.
const (
	statusControlChange = 0xB0
	statusProgramChange = 0xC0
	statusPitchBend     = 0xE0
)

// meltyEngine adapts a meltysynth.Synthesizer to Engine.
//
// meltysynth does not report its voice count. The adapter treats the engine
// as idle once the output has stayed below silenceThreshold for
// silenceHoldFrames, whether or not keys are still held. One-shot samples end
// without a note-off and must not keep the engine busy.
type meltyEngine struct {
	synth   *meltysynth.Synthesizer
	presets *presetTable

	held         [16][128]bool
	heldCount    int
	silentFrames int

	// bank and program are read by ChannelPreset from other goroutines.
	mu      sync.Mutex
	bank    [16]int
	program [16]int
}

func newMeltyEngine(s *meltysynth.Synthesizer, presets *presetTable) *meltyEngine {
	return &meltyEngine{synth: s, presets: presets, silentFrames: silenceHoldFrames}
}

func validChannel(ch int) bool {
	return ch >= 0 && ch < 16
}

func (e *meltyEngine) Render(left, right []float32) {
	if e.synth == nil {
		clear(left)
		clear(right)
		e.silentFrames = silenceHoldFrames
		return
	}
	e.synth.Render(left, right)

	var peak float32
	for i := range left {
		if v := abs32(left[i]); v > peak {
			peak = v
		}
		if v := abs32(right[i]); v > peak {
			peak = v
		}
	}
	if peak > silenceThreshold {
		e.silentFrames = 0
	} else if e.silentFrames < silenceHoldFrames {
		e.silentFrames += len(left)
	}
}

func (e *meltyEngine) idle() bool {
	return e.silentFrames >= silenceHoldFrames
}

func (e *meltyEngine) NoteOn(ch, key int, velocity float32) {
	if e.synth == nil || !validChannel(ch) || key < 0 || key > 127 {
		return
	}
	vel := int32(math.Round(float64(velocity) * 127))
	if vel > 127 {
		vel = 127
	}
	if vel <= 0 {
		// meltysynth treats zero velocity as note-off
		e.NoteOff(ch, key)
		return
	}
	e.synth.NoteOn(int32(ch), int32(key), vel)
	e.silentFrames = 0
	if !e.held[ch][key] {
		e.held[ch][key] = true
		e.heldCount++
	}
}

func (e *meltyEngine) NoteOff(ch, key int) {
	if e.synth == nil || !validChannel(ch) || key < 0 || key > 127 {
		return
	}
	e.synth.NoteOff(int32(ch), int32(key))
	e.release(ch, key)
}

func (e *meltyEngine) release(ch, key int) {
	if e.held[ch][key] {
		e.held[ch][key] = false
		e.heldCount--
	}
}

func (e *meltyEngine) releaseChannel(ch int) {
	for key := range e.held[ch] {
		e.release(ch, key)
	}
}

func (e *meltyEngine) AllNotesOff() {
	if e.synth == nil {
		return
	}
	e.synth.NoteOffAll(true)
	e.held = [16][128]bool{}
	e.heldCount = 0
	e.silentFrames = silenceHoldFrames
}

func (e *meltyEngine) ChannelNotesOff(ch int) {
	if e.synth == nil || !validChannel(ch) {
		return
	}
	e.synth.ProcessMidiMessage(int32(ch), statusControlChange, CCAllNotesOff, 0)
	e.releaseChannel(ch)
}

// SetProgram selects a program. meltysynth always maps channel 9 to the
// percussion bank; other channels are switched with a bank select of 128 and
// back to bank 0 when the drum flag is cleared.
func (e *meltyEngine) SetProgram(ch, program int, drums bool) {
	if e.synth == nil || !validChannel(ch) || program < 0 || program > 127 {
		return
	}
	e.mu.Lock()
	bank := e.bank[ch]
	e.mu.Unlock()

	switch {
	case ch == DrumChannel:
	case drums:
		e.ControlChange(ch, CCBankSelect, DrumBank)
	case bank >= DrumBank:
		e.ControlChange(ch, CCBankSelect, 0)
	}
	e.synth.ProcessMidiMessage(int32(ch), statusProgramChange, int32(program), 0)

	e.mu.Lock()
	e.program[ch] = program
	e.mu.Unlock()
}

func (e *meltyEngine) ControlChange(ch, controller, value int) {
	if e.synth == nil || !validChannel(ch) {
		return
	}
	e.synth.ProcessMidiMessage(int32(ch), statusControlChange, int32(controller), int32(value))

	switch controller {
	case CCBankSelect:
		e.mu.Lock()
		e.bank[ch] = value
		e.mu.Unlock()
	case CCAllSoundOff, CCAllNotesOff:
		e.releaseChannel(ch)
	}
}

func (e *meltyEngine) PitchBend(ch, value int) {
	if e.synth == nil || !validChannel(ch) {
		return
	}
	value = clamp(value, 0, PitchBendMax)
	e.synth.ProcessMidiMessage(int32(ch), statusPitchBend, int32(value&0x7F), int32(value>>7))
}

func (e *meltyEngine) Reset() {
	if e.synth == nil {
		return
	}
	e.synth.Reset()
	e.held = [16][128]bool{}
	e.heldCount = 0
	e.silentFrames = silenceHoldFrames

	e.mu.Lock()
	e.bank = [16]int{}
	e.program = [16]int{}
	e.mu.Unlock()
}

// ActiveVoices returns the number of held keys, at least one while the output
// is still audible, and zero once the engine has gone idle.
func (e *meltyEngine) ActiveVoices() int {
	if e.idle() {
		return 0
	}
	return max(e.heldCount, 1)
}

func (e *meltyEngine) ChannelPreset(ch int) (Preset, bool) {
	if !validChannel(ch) || e.presets == nil {
		return Preset{}, false
	}
	e.mu.Lock()
	bank, program := e.bank[ch], e.program[ch]
	e.mu.Unlock()

	if ch == DrumChannel {
		bank += DrumBank
	}
	return e.presets.Lookup(bank, program)
}

func (e *meltyEngine) Close() error {
	e.synth = nil
	return nil
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
