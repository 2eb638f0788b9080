package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/zurustar/sf2midi/pkg/sequence"
	"github.com/zurustar/sf2midi/pkg/synth"
)

// fakeEngine records engine calls and simulates voices with a fixed release
// tail measured in rendered blocks.
type fakeEngine struct {
	calls []string

	voices      map[[2]int]float32 // channel, key -> velocity
	releaseTail int
	releasing   int

	program [16]int
	drums   [16]bool
	cc      map[[2]int]int
	bend    [16]int

	closed bool
}

func newFakeEngine(releaseTail int) *fakeEngine {
	e := &fakeEngine{releaseTail: releaseTail}
	e.clearState()
	return e
}

func (e *fakeEngine) clearState() {
	e.voices = make(map[[2]int]float32)
	e.cc = make(map[[2]int]int)
	e.program = [16]int{}
	e.drums = [16]bool{}
	for i := range e.bend {
		e.bend[i] = synth.PitchBendCenter
	}
	e.releasing = 0
}

func (e *fakeEngine) record(format string, args ...any) {
	e.calls = append(e.calls, fmt.Sprintf(format, args...))
}

func (e *fakeEngine) Render(left, right []float32) {
	level := float32(0)
	if len(e.voices) > 0 || e.releasing > 0 {
		level = 0.25
	}
	for i := range left {
		left[i] = level
		right[i] = -level
	}
	if len(e.voices) == 0 && e.releasing > 0 {
		e.releasing--
	}
}

func (e *fakeEngine) NoteOn(ch, key int, velocity float32) {
	e.record("noteon %d %d %.3f", ch, key, velocity)
	e.voices[[2]int{ch, key}] = velocity
}

func (e *fakeEngine) NoteOff(ch, key int) {
	e.record("noteoff %d %d", ch, key)
	if _, ok := e.voices[[2]int{ch, key}]; ok {
		delete(e.voices, [2]int{ch, key})
		e.releasing = e.releaseTail
	}
}

func (e *fakeEngine) AllNotesOff() {
	e.record("allnotesoff")
	e.voices = make(map[[2]int]float32)
	e.releasing = 0
}

func (e *fakeEngine) ChannelNotesOff(ch int) {
	e.record("channelnotesoff %d", ch)
	for k := range e.voices {
		if k[0] == ch {
			delete(e.voices, k)
		}
	}
}

func (e *fakeEngine) SetProgram(ch, program int, drums bool) {
	e.record("program %d %d %t", ch, program, drums)
	e.program[ch] = program
	e.drums[ch] = drums
}

func (e *fakeEngine) ControlChange(ch, controller, value int) {
	e.record("cc %d %d %d", ch, controller, value)
	e.cc[[2]int{ch, controller}] = value
}

func (e *fakeEngine) PitchBend(ch, value int) {
	e.record("bend %d %d", ch, value)
	e.bend[ch] = value
}

func (e *fakeEngine) Reset() {
	e.record("reset")
	e.clearState()
}

func (e *fakeEngine) ActiveVoices() int {
	n := len(e.voices)
	if e.releasing > 0 {
		n++
	}
	return n
}

func (e *fakeEngine) ChannelPreset(ch int) (synth.Preset, bool) {
	bank := 0
	if e.drums[ch] {
		bank = synth.DrumBank
	}
	return synth.Preset{Bank: bank, Number: e.program[ch], Name: fmt.Sprintf("preset %d:%d", bank, e.program[ch])}, true
}

func (e *fakeEngine) Close() error {
	e.closed = true
	return nil
}

// fakeState is the engine state seek must rebuild.
type fakeState struct {
	program [16]int
	drums   [16]bool
	cc      map[[2]int]int
	bend    [16]int
}

func (e *fakeEngine) state() fakeState {
	cc := make(map[[2]int]int, len(e.cc))
	for k, v := range e.cc {
		cc[k] = v
	}
	return fakeState{program: e.program, drums: e.drums, cc: cc, bend: e.bend}
}

func (s fakeState) equal(o fakeState) bool {
	if s.program != o.program || s.drums != o.drums || s.bend != o.bend || len(s.cc) != len(o.cc) {
		return false
	}
	for k, v := range s.cc {
		if ov, ok := o.cc[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// fakeBank hands out fakeEngines and resolves presets by name.
type fakeBank struct {
	engines     []*fakeEngine
	releaseTail int
	loaded      bool
	err         error
}

func newFakeBank() *fakeBank {
	return &fakeBank{releaseTail: 3, loaded: true}
}

func (b *fakeBank) Duplicate(synth.Settings) (synth.Engine, error) {
	if b.err != nil {
		return nil, b.err
	}
	e := newFakeEngine(b.releaseTail)
	b.engines = append(b.engines, e)
	return e, nil
}

func (b *fakeBank) Lookup(bank, program int) (synth.Preset, bool) {
	if bank == synth.DrumBank {
		return synth.Preset{Bank: bank, Number: program, Name: "Standard Kit"}, true
	}
	return synth.Preset{Bank: bank, Number: program, Name: fmt.Sprintf("Program %d", program)}, true
}

func (b *fakeBank) Loaded() bool {
	return b.loaded
}

var errDuplicate = errors.New("out of memory")

// discardLogger keeps test output quiet.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestPlayback creates a started playback over events with a fake engine.
func newTestPlayback(t testing.TB, events []sequence.Event, opts ...Option) (*Playback, *fakeEngine) {
	t.Helper()

	bank := newFakeBank()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	stream, err := NewStream(bank, sequence.New(events), opts...)
	if err != nil {
		t.Fatalf("NewStream failed: %v", err)
	}
	p, err := stream.NewPlayback()
	if err != nil {
		t.Fatalf("NewPlayback failed: %v", err)
	}
	return p, bank.engines[0]
}

// drainNotifications returns every notification currently buffered.
func drainNotifications(p *Playback) []Notification {
	var out []Notification
	for {
		select {
		case n, ok := <-p.Notifications():
			if !ok {
				return out
			}
			out = append(out, n)
		default:
			return out
		}
	}
}

// testSong is a short two-channel song with state changes spread over time.
func testSong() []sequence.Event {
	return []sequence.Event{
		{TimeMs: 0, Kind: sequence.SetTempo, Tempo: 500000},
		{TimeMs: 0, Kind: sequence.ProgramChange, Channel: 0, Program: 5},
		{TimeMs: 0, Kind: sequence.NoteOn, Channel: 0, Key: 60, Velocity: 100},
		{TimeMs: 100, Kind: sequence.ControlChange, Channel: 0, Controller: 7, Value: 90},
		{TimeMs: 200, Kind: sequence.NoteOff, Channel: 0, Key: 60},
		{TimeMs: 200, Kind: sequence.ProgramChange, Channel: 1, Program: 40},
		{TimeMs: 250, Kind: sequence.PitchBend, Channel: 1, Bend: 10000},
		{TimeMs: 300, Kind: sequence.NoteOn, Channel: 1, Key: 64, Velocity: 80},
		{TimeMs: 400, Kind: sequence.SetTempo, Tempo: 400000},
		{TimeMs: 450, Kind: sequence.ProgramChange, Channel: 0, Program: 6},
		{TimeMs: 500, Kind: sequence.NoteOff, Channel: 1, Key: 64},
		{TimeMs: 550, Kind: sequence.NoteOn, Channel: 9, Key: 36, Velocity: 127},
		{TimeMs: 600, Kind: sequence.NoteOff, Channel: 9, Key: 36},
	}
}
