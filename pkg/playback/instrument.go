package playback

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/zurustar/sf2midi/pkg/synth"
)

// Instrument plays a bank live without a sequence. Notes and controls are
// queued from any goroutine and applied at the start of the next Render.
type Instrument struct {
	sampleRate int
	log        *slog.Logger

	engine synth.Engine
	queue  commandQueue

	left  []float32
	right []float32

	active      atomic.Bool
	closed      atomic.Bool
	framesMixed atomic.Uint64
	closeOnce   sync.Once
}

// NewInstrument creates an inactive instrument with its own engine. Only the
// sample rate, voice limit and logger options apply.
func NewInstrument(bank synth.Bank, opts ...Option) (*Instrument, error) {
	if bank == nil {
		return nil, ErrNoBank
	}
	if !bank.Loaded() {
		return nil, fmt.Errorf("%w: bank", ErrNotLoaded)
	}
	cfg := buildConfig(opts)
	if cfg.sampleRate < synth.MinSampleRate || cfg.sampleRate > synth.MaxSampleRate {
		return nil, ErrInvalidSampleRate
	}

	engine, err := bank.Duplicate(cfg.engineSettings())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDuplicateFailed, err)
	}

	cfg.log.Debug("Instrument created", "sample_rate", cfg.sampleRate, "max_voices", cfg.maxVoices)
	return &Instrument{
		sampleRate: cfg.sampleRate,
		log:        cfg.log,
		engine:     engine,
		left:       make([]float32, BlockFrames),
		right:      make([]float32, BlockFrames),
	}, nil
}

// Start activates rendering. The position restarts at from.
func (in *Instrument) Start(from float64) error {
	if !(from >= 0) {
		return ErrValueOutOfRange
	}
	if in.closed.Load() {
		return ErrNotLoaded
	}
	in.active.Store(true)
	in.framesMixed.Store(uint64(float64(in.sampleRate) * from))
	return nil
}

// Stop deactivates rendering and releases every voice immediately.
func (in *Instrument) Stop() {
	in.active.Store(false)
	if !in.closed.Load() {
		in.engine.AllNotesOff()
	}
}

// Seek only moves the reported position; an instrument has no timeline.
func (in *Instrument) Seek(to float64) error {
	if !(to >= 0) {
		return ErrValueOutOfRange
	}
	in.framesMixed.Store(uint64(float64(in.sampleRate) * to))
	return nil
}

// IsPlaying reports whether the instrument is rendering.
func (in *Instrument) IsPlaying() bool {
	return in.active.Load()
}

// LoopCount is always zero.
func (in *Instrument) LoopCount() int {
	return 0
}

// Position returns the rendered time in seconds.
func (in *Instrument) Position() float64 {
	return float64(in.framesMixed.Load()) / float64(in.sampleRate)
}

// SampleRate returns the output sample rate in Hz.
func (in *Instrument) SampleRate() int {
	return in.sampleRate
}

// ActiveVoices returns the engine's sounding voice count as of the last Render.
// Call it from the render goroutine.
func (in *Instrument) ActiveVoices() int {
	return in.engine.ActiveVoices()
}

// Render fills buf with interleaved stereo frames and returns len(buf)/2.
func (in *Instrument) Render(buf []float32) int {
	frames := len(buf) / 2
	if !in.active.Load() || in.closed.Load() {
		clear(buf)
		return frames
	}

	in.queue.drain(in)

	for offset := 0; offset < frames; {
		block := min(frames-offset, BlockFrames)
		left, right := in.left[:block], in.right[:block]
		in.engine.Render(left, right)
		out := buf[offset*2:]
		for i := range left {
			out[i*2] = left[i]
			out[i*2+1] = right[i]
		}
		offset += block
	}
	clear(buf[frames*2:])

	in.framesMixed.Add(uint64(frames))
	return frames
}

// NoteOn queues a note-on. The key is clamped to 0-127 and velocity to [0,1].
func (in *Instrument) NoteOn(ch, key int, velocity float32) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	in.queue.push(noteOnCmd{channel: ch, key: clampKey(key), velocity: clampVolume(velocity)})
	return nil
}

// NoteOff queues a note-off. The key is clamped to 0-127.
func (in *Instrument) NoteOff(ch, key int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	in.queue.push(noteOffCmd{channel: ch, key: clampKey(key)})
	return nil
}

// AllNotesOff queues a release of every voice.
func (in *Instrument) AllNotesOff() {
	in.queue.push(allNotesOffCmd{})
}

// SetPreset queues a preset selection. drums selects the percussion bank.
func (in *Instrument) SetPreset(ch, preset int, drums bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if err := check7bit(preset); err != nil {
		return err
	}
	in.queue.push(programCmd{channel: ch, program: preset, drums: drums})
	return nil
}

// ControlChange queues a control change.
func (in *Instrument) ControlChange(ch, controller, value int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if err := check7bit(controller); err != nil {
		return err
	}
	if err := check7bit(value); err != nil {
		return err
	}
	in.queue.push(controlChangeCmd{channel: ch, controller: controller, value: value})
	return nil
}

// PitchBend queues a pitch bend. value is 0-16383, 8192 is center.
func (in *Instrument) PitchBend(ch, value int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if value < 0 || value > synth.PitchBendMax {
		return ErrValueOutOfRange
	}
	in.queue.push(pitchBendCmd{channel: ch, value: value})
	return nil
}

// ChannelPressure queues channel pressure, applied as channel volume.
func (in *Instrument) ChannelPressure(ch, pressure int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if err := check7bit(pressure); err != nil {
		return err
	}
	in.queue.push(channelPressureCmd{channel: ch, pressure: pressure})
	return nil
}

// ChannelPreset returns the preset a channel currently resolves to.
func (in *Instrument) ChannelPreset(ch int) (synth.Preset, error) {
	if err := checkChannel(ch); err != nil {
		return synth.Preset{}, err
	}
	if in.closed.Load() {
		return synth.Preset{}, ErrNotLoaded
	}
	preset, ok := in.engine.ChannelPreset(ch)
	if !ok {
		return synth.Preset{}, fmt.Errorf("%w: no preset for channel %d", ErrNotLoaded, ch)
	}
	return preset, nil
}

// Close releases the engine.
func (in *Instrument) Close() error {
	var err error
	in.closeOnce.Do(func() {
		in.active.Store(false)
		in.closed.Store(true)
		in.queue.discard()
		err = in.engine.Close()
		in.log.Debug("Instrument closed")
	})
	return err
}

// commandTarget

func (in *Instrument) applyNoteOn(c noteOnCmd) {
	in.engine.NoteOn(c.channel, c.key, c.velocity)
}

func (in *Instrument) applyNoteOff(c noteOffCmd) {
	in.engine.NoteOff(c.channel, c.key)
}

func (in *Instrument) applyAllNotesOff(allNotesOffCmd) {
	in.engine.AllNotesOff()
}

func (in *Instrument) applyChannelNotesOff(c channelNotesOffCmd) {
	in.engine.ChannelNotesOff(c.channel)
}

func (in *Instrument) applyProgram(c programCmd) {
	in.engine.SetProgram(c.channel, c.program, c.drums)
}

func (in *Instrument) applyControlChange(c controlChangeCmd) {
	in.engine.ControlChange(c.channel, c.controller, c.value)
}

func (in *Instrument) applyPitchBend(c pitchBendCmd) {
	in.engine.PitchBend(c.channel, c.value)
}

func (in *Instrument) applyChannelPressure(c channelPressureCmd) {
	in.engine.ControlChange(c.channel, synth.CCVolume, c.pressure)
}
