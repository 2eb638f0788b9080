package playback

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/zurustar/sf2midi/pkg/sequence"
	"github.com/zurustar/sf2midi/pkg/synth"
)

// Playback renders one Stream through its own engine instance.
//
// Render, Start, Stop, Seek and Close belong to the goroutine that owns the
// audio output and must not run concurrently with each other. Channel
// controls, message injection and the status queries are safe from any
// goroutine.
type Playback struct {
	stream *Stream
	cfg    *config
	seq    *sequence.Sequence
	log    *slog.Logger

	engine   synth.Engine
	channels channelStates
	queue    commandQueue

	// owned by the render goroutine
	cursor   int     // first event not yet applied
	replayed int     // events before this index had their state replayed by seek
	timeMs   float64 // playback position
	suppress bool    // seek replay in progress
	sounding [sequence.ChannelCount][128]uint8
	left     []float32
	right    []float32

	active      atomic.Bool
	closed      atomic.Bool
	loopCount   atomic.Int64
	position    atomic.Uint64 // float64 bits of timeMs
	framesMixed atomic.Uint64

	notify    chan Notification
	dropped   atomic.Uint64
	closeOnce sync.Once
}

func newPlayback(s *Stream, engine synth.Engine) *Playback {
	p := &Playback{
		stream: s,
		cfg:    &s.cfg,
		seq:    s.seq,
		log:    s.cfg.log,
		engine: engine,
		left:   make([]float32, BlockFrames),
		right:  make([]float32, BlockFrames),
	}
	p.channels.reset()
	if s.cfg.notifyBuffer > 0 {
		p.notify = make(chan Notification, s.cfg.notifyBuffer)
	}
	return p
}

// Stream returns the stream the playback was created from.
func (p *Playback) Stream() *Stream {
	return p.stream
}

// Start activates playback from the given position in seconds and resets the
// loop counter.
func (p *Playback) Start(from float64) error {
	if !(from >= 0) {
		return ErrValueOutOfRange
	}
	if p.closed.Load() {
		return ErrNotLoaded
	}
	p.active.Store(true)
	p.loopCount.Store(0)
	p.seek(from)
	p.log.Debug("Playback started", "from", from)
	return nil
}

// Stop deactivates playback and releases every voice immediately.
func (p *Playback) Stop() {
	p.active.Store(false)
	if !p.closed.Load() {
		p.engine.AllNotesOff()
	}
	p.clearSounding()
	p.log.Debug("Playback stopped", "position", p.Position())
}

// Seek moves playback to the given position in seconds, rebuilding program,
// controller, pitch bend and tempo state without sounding any notes before it.
// Notes that start exactly at the target still sound.
func (p *Playback) Seek(to float64) error {
	if !(to >= 0) {
		return ErrValueOutOfRange
	}
	if p.closed.Load() {
		return ErrNotLoaded
	}
	p.seek(to)
	p.log.Debug("Playback seek", "to", to, "cursor", p.cursor)
	return nil
}

// seekToleranceMs absorbs float error converting seconds to milliseconds.
const seekToleranceMs = 1e-6

func (p *Playback) seek(seconds float64) {
	p.engine.Reset()
	p.clearSounding()

	target := seconds * 1000.0
	end := p.seq.After(target + seekToleranceMs)

	p.suppress = true
	for i := 0; i < end; i++ {
		if ev := p.seq.At(i); ev.Kind.StateDefining() {
			p.applyEvent(ev)
		}
	}
	p.suppress = false

	// Notes exactly at the target still sound; their state events were
	// replayed above and are skipped by processEvents.
	p.cursor = p.seq.AtOrAfter(target - seekToleranceMs)
	p.replayed = end
	p.timeMs = target
	p.position.Store(math.Float64bits(target))
	p.framesMixed.Store(uint64(float64(p.cfg.sampleRate) * seconds))
}

// IsPlaying reports whether playback is active.
func (p *Playback) IsPlaying() bool {
	return p.active.Load()
}

// LoopCount returns how many times playback has looped since Start.
func (p *Playback) LoopCount() int {
	return int(p.loopCount.Load())
}

// Position returns the playback position in seconds.
func (p *Playback) Position() float64 {
	return math.Float64frombits(p.position.Load()) / 1000.0
}

// FramesMixed returns the number of frames rendered since the last seek,
// counted from the seek position.
func (p *Playback) FramesMixed() uint64 {
	return p.framesMixed.Load()
}

// SampleRate returns the output sample rate in Hz.
func (p *Playback) SampleRate() int {
	return p.cfg.sampleRate
}

// Render fills buf with interleaved stereo frames and returns the number of
// frames written, which is always len(buf)/2. Inactive playback renders
// silence.
func (p *Playback) Render(buf []float32) int {
	frames := len(buf) / 2
	if !p.active.Load() || p.closed.Load() {
		clear(buf)
		return frames
	}

	p.queue.drain(p)

	msPerFrame := 1000.0 / float64(p.cfg.sampleRate) * p.cfg.tempoScale
	offset := 0
	for offset < frames && p.active.Load() {
		block := min(frames-offset, BlockFrames)

		p.timeMs += float64(block) * msPerFrame
		p.processEvents(p.timeMs)

		left, right := p.left[:block], p.right[:block]
		p.engine.Render(left, right)
		out := buf[offset*2:]
		for i := range left {
			out[i*2] = left[i]
			out[i*2+1] = right[i]
		}

		p.framesMixed.Add(uint64(block))
		offset += block

		if p.cursor >= p.seq.Len() && p.engine.ActiveVoices() == 0 {
			if p.cfg.loop {
				p.loopCount.Add(1)
				p.seek(p.cfg.loopOffset)
				p.log.Debug("Playback looped", "loop", p.loopCount.Load())
				continue
			}
			p.active.Store(false)
			break
		}
	}
	clear(buf[offset*2:])

	p.position.Store(math.Float64bits(p.timeMs))
	return frames
}

// processEvents applies every event with a timestamp at or before ms.
func (p *Playback) processEvents(ms float64) {
	n := p.seq.Len()
	for p.cursor < n {
		ev := p.seq.At(p.cursor)
		if float64(ev.TimeMs) > ms {
			return
		}
		if p.cursor >= p.replayed || !ev.Kind.StateDefining() {
			p.applyEvent(ev)
		}
		p.cursor++
	}
}

// applyEvent sends one sequence event to the engine and notifies observers.
func (p *Playback) applyEvent(ev sequence.Event) {
	ch := ev.Channel
	var param1, param2 int

	switch ev.Kind {
	case sequence.ProgramChange:
		param1 = ev.Program
		if checkChannel(ch) == nil {
			p.engine.SetProgram(ch, p.channels.resolveProgram(ch, ev.Program), ch == sequence.DrumChannel)
		}
	case sequence.NoteOn:
		param1, param2 = ev.Key, ev.Velocity
		if p.channels.audible(ch) {
			p.noteOn(ch, ev.Key, float32(ev.Velocity)/127)
		}
	case sequence.NoteOff:
		// observers get the untransposed key to match note pairs
		param1 = ev.Key
		p.noteOff(ch, ev.Key)
	case sequence.PitchBend:
		param1 = ev.Bend
		p.engine.PitchBend(ch, ev.Bend)
	case sequence.ControlChange:
		param1, param2 = ev.Controller, ev.Value
		p.engine.ControlChange(ch, ev.Controller, ev.Value)
	case sequence.SetTempo:
		param1 = ev.BPM()
	case sequence.KeyPressure:
		param1, param2 = ev.Key, ev.Value
	case sequence.ChannelPressure:
		param1 = ev.Value
	}

	p.emit(ev.Kind, ch, param1, param2)
}

// noteOn starts a note with transpose and channel volume applied. velocity is
// in [0,1].
func (p *Playback) noteOn(ch, key int, velocity float32) {
	if checkChannel(ch) != nil || key < 0 || key > 127 {
		return
	}
	eff := effectiveKey(key, p.cfg.transpose, int(p.channels[ch].transpose.Load()))
	// release the key an earlier note-on on this key was transposed to
	if prev := int(p.sounding[ch][key]) - 1; prev >= 0 && prev != eff {
		p.engine.NoteOff(ch, prev)
	}
	p.sounding[ch][key] = uint8(eff) + 1
	p.engine.NoteOn(ch, eff, velocity*p.channels.volume(ch))
}

// noteOff releases the key its note-on was transposed to, so changing the
// transpose while a note is held does not leave it hanging.
func (p *Playback) noteOff(ch, key int) {
	if checkChannel(ch) != nil || key < 0 || key > 127 {
		return
	}
	eff := int(p.sounding[ch][key]) - 1
	if eff < 0 {
		eff = effectiveKey(key, p.cfg.transpose, int(p.channels[ch].transpose.Load()))
	}
	p.sounding[ch][key] = 0
	p.engine.NoteOff(ch, eff)
}

func (p *Playback) clearSounding() {
	p.sounding = [sequence.ChannelCount][128]uint8{}
}

// Close stops playback, releases the engine and closes the notification
// channel.
func (p *Playback) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.active.Store(false)
		p.closed.Store(true)
		p.queue.discard()
		err = p.engine.Close()
		if p.notify != nil {
			close(p.notify)
		}
		p.log.Debug("Playback closed", "dropped_notifications", p.dropped.Load())
	})
	return err
}

// commandTarget

func (p *Playback) applyNoteOn(c noteOnCmd) {
	if p.channels.audible(c.channel) {
		p.noteOn(c.channel, c.key, c.velocity)
	}
}

func (p *Playback) applyNoteOff(c noteOffCmd) {
	p.noteOff(c.channel, c.key)
}

func (p *Playback) applyAllNotesOff(allNotesOffCmd) {
	p.engine.AllNotesOff()
	p.clearSounding()
}

func (p *Playback) applyChannelNotesOff(c channelNotesOffCmd) {
	p.engine.ChannelNotesOff(c.channel)
	p.sounding[c.channel] = [128]uint8{}
}

func (p *Playback) applyProgram(c programCmd) {
	p.engine.SetProgram(c.channel, p.channels.resolveProgram(c.channel, c.program), c.drums)
}

func (p *Playback) applyControlChange(c controlChangeCmd) {
	p.engine.ControlChange(c.channel, c.controller, c.value)
}

func (p *Playback) applyPitchBend(c pitchBendCmd) {
	p.engine.PitchBend(c.channel, c.value)
}

// applyChannelPressure maps pressure to channel volume (CC7).
func (p *Playback) applyChannelPressure(c channelPressureCmd) {
	p.engine.ControlChange(c.channel, synth.CCVolume, c.pressure)
}
