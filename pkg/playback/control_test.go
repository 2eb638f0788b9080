package playback

import (
	"errors"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/zurustar/sf2midi/pkg/sequence"
)

func TestPlayback_ControlErrors(t *testing.T) {
	p, _ := newTestPlayback(t, testSong())

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"mute channel -1", func() error { return p.SetMuted(-1, true) }, ErrChannelOutOfRange},
		{"solo channel 16", func() error { return p.SetSolo(16, true) }, ErrChannelOutOfRange},
		{"transpose channel 16", func() error { return p.SetTranspose(16, 1) }, ErrChannelOutOfRange},
		{"volume channel 16", func() error { return p.SetVolume(16, 1) }, ErrChannelOutOfRange},
		{"override channel 16", func() error { return p.SetProgramOverride(16, 1) }, ErrChannelOutOfRange},
		{"note on key 128", func() error { return p.NoteOn(0, 128, 100) }, ErrNoteOutOfRange},
		{"note on key -1", func() error { return p.NoteOn(0, -1, 100) }, ErrNoteOutOfRange},
		{"note on velocity 128", func() error { return p.NoteOn(0, 60, 128) }, ErrVelocityOutOfRange},
		{"note off channel 16", func() error { return p.NoteOff(16, 60) }, ErrChannelOutOfRange},
		{"program 128", func() error { return p.SelectProgram(0, 128, false) }, ErrValueOutOfRange},
		{"controller 128", func() error { return p.ControlChange(0, 128, 0) }, ErrValueOutOfRange},
		{"controller value 128", func() error { return p.ControlChange(0, 7, 128) }, ErrValueOutOfRange},
		{"pitch bend 16384", func() error { return p.PitchBend(0, 16384) }, ErrValueOutOfRange},
		{"pressure -1", func() error { return p.ChannelPressure(0, -1) }, ErrValueOutOfRange},
		{"tempo message", func() error { return p.PushMessage(sequence.SetTempo, 0, 120, 0) }, ErrUnsupportedMessage},
		{"key pressure message", func() error { return p.PushMessage(sequence.KeyPressure, 0, 60, 10) }, ErrUnsupportedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if p.PendingCommands() != 0 {
		t.Errorf("rejected messages must not be queued, %d pending", p.PendingCommands())
	}
}

func TestPlayback_PushMessage(t *testing.T) {
	p, engine := newTestPlayback(t, []sequence.Event{
		{TimeMs: 60000, Kind: sequence.NoteOn, Key: 1, Velocity: 1},
	})
	if err := p.Start(0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	msgs := []struct {
		kind       sequence.Kind
		ch, p1, p2 int
	}{
		{sequence.ProgramChange, 9, 16, 0},
		{sequence.ControlChange, 2, 10, 20},
		{sequence.PitchBend, 2, 0, 0},
		{sequence.ChannelPressure, 3, 64, 0},
		{sequence.NoteOn, 2, 60, 127},
		{sequence.NoteOff, 2, 60, 0},
	}
	for _, m := range msgs {
		if err := p.PushMessage(m.kind, m.ch, m.p1, m.p2); err != nil {
			t.Fatalf("PushMessage(%v) failed: %v", m.kind, err)
		}
	}
	p.Render(make([]float32, BlockFrames*2))

	want := []string{
		"reset",
		"program 9 16 true",
		"cc 2 10 20",
		"bend 2 0",
		"cc 3 7 64",
		"noteon 2 60 1.000",
		"noteoff 2 60",
	}
	if !slices.Equal(engine.calls, want) {
		t.Errorf("unexpected calls:\n got %v\nwant %v", engine.calls, want)
	}
}

func TestPlayback_Audibility(t *testing.T) {
	p, _ := newTestPlayback(t, testSong())

	steps := []struct {
		name        string
		do          func() error
		wantPending int
		audible     []int
	}{
		{"solo silences the other fifteen", func() error { return p.SetSolo(3, true) }, 15, []int{3}},
		{"muting the soloed channel silences it", func() error { return p.SetMuted(3, true) }, 16, nil},
		{"unsolo silences nothing", func() error { return p.SetSolo(3, false) }, 16, []int{0, 1, 2, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}},
		{"unmute silences nothing", func() error { return p.SetMuted(3, false) }, 16, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}},
	}

	for _, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			if err := step.do(); err != nil {
				t.Fatalf("control failed: %v", err)
			}
			if p.PendingCommands() != step.wantPending {
				t.Errorf("expected %d pending commands, got %d", step.wantPending, p.PendingCommands())
			}
			for ch := 0; ch < sequence.ChannelCount; ch++ {
				got, err := p.Audible(ch)
				if err != nil {
					t.Fatalf("Audible failed: %v", err)
				}
				if want := slices.Contains(step.audible, ch); got != want {
					t.Errorf("channel %d: expected audible=%v, got %v", ch, want, got)
				}
			}
		})
	}

	muted, _ := p.Muted(3)
	solo, _ := p.Solo(3)
	if muted || solo {
		t.Errorf("expected channel 3 cleared, muted=%v solo=%v", muted, solo)
	}
}

func TestPlayback_MutedChannelSkipsNotes(t *testing.T) {
	p, engine := newTestPlayback(t, testSong())
	if err := p.SetMuted(0, true); err != nil {
		t.Fatalf("SetMuted failed: %v", err)
	}
	if err := p.Start(0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	drainNotifications(p)

	p.Render(make([]float32, BlockFrames*2))

	for _, c := range engine.calls {
		if strings.HasPrefix(c, "noteon") {
			t.Errorf("muted channel must not sound, got %q", c)
		}
	}
	// observers still see the event
	got := drainNotifications(p)
	if len(got) != 1 || got[0].Kind != sequence.NoteOn {
		t.Errorf("expected note-on notification, got %+v", got)
	}
}

func TestPlayback_VolumeScalesVelocity(t *testing.T) {
	p, engine := newTestPlayback(t, testSong())
	if err := p.SetVolume(0, 0.5); err != nil {
		t.Fatalf("SetVolume failed: %v", err)
	}
	if err := p.Start(0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	p.Render(make([]float32, BlockFrames*2))

	got := engine.voices[[2]int{0, 60}]
	want := float32(100) / 127 * 0.5
	if math.Abs(float64(got-want)) > 1e-6 {
		t.Errorf("expected velocity %v, got %v", want, got)
	}
}

func TestPlayback_ProgramOverride(t *testing.T) {
	p, engine := newTestPlayback(t, testSong())
	if err := p.SetProgramOverride(0, 30); err != nil {
		t.Fatalf("SetProgramOverride failed: %v", err)
	}
	if err := p.Start(0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if engine.program[0] != 30 {
		t.Errorf("expected overridden program 30, got %d", engine.program[0])
	}

	// notifications report the sequence's program
	for _, n := range drainNotifications(p) {
		if n.Kind == sequence.ProgramChange && n.Channel == 0 && n.Param1 != 5 {
			t.Errorf("expected notified program 5, got %d", n.Param1)
		}
	}

	if err := p.SetProgramOverride(0, NoOverride); err != nil {
		t.Fatalf("SetProgramOverride failed: %v", err)
	}
	if o, _ := p.ProgramOverride(0); o != NoOverride {
		t.Errorf("expected NoOverride, got %d", o)
	}
	if err := p.SelectProgram(0, 7, false); err != nil {
		t.Fatalf("SelectProgram failed: %v", err)
	}
	p.Render(make([]float32, BlockFrames*2))
	if engine.program[0] != 7 {
		t.Errorf("expected program 7 after clearing override, got %d", engine.program[0])
	}

	preset, err := p.ChannelPreset(0)
	if err != nil {
		t.Fatalf("ChannelPreset failed: %v", err)
	}
	if preset.Number != 7 || preset.Bank != 0 {
		t.Errorf("unexpected preset %+v", preset)
	}
	if _, err := p.ChannelPreset(16); !errors.Is(err, ErrChannelOutOfRange) {
		t.Errorf("expected ErrChannelOutOfRange, got %v", err)
	}
}

func TestPlayback_TransposeReleasesSoundingKey(t *testing.T) {
	p, engine := newTestPlayback(t, testSong(), WithTranspose(1))
	if err := p.SetTranspose(0, -2); err != nil {
		t.Fatalf("SetTranspose failed: %v", err)
	}
	if err := p.Start(0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	p.Render(make([]float32, BlockFrames*2))
	if _, ok := engine.voices[[2]int{0, 70}]; !ok {
		t.Fatalf("expected key 70 sounding, got %v", engine.voices)
	}

	// the note-off at 200ms must release the key that was started
	if err := p.SetTranspose(0, 0); err != nil {
		t.Fatalf("SetTranspose failed: %v", err)
	}
	p.Render(make([]float32, 44100/4*2))

	if !slices.Contains(engine.calls, "noteoff 0 70") {
		t.Errorf("expected note-off for key 70, got %v", engine.calls)
	}
	if _, ok := engine.voices[[2]int{0, 70}]; ok {
		t.Error("expected key 70 released")
	}
	if tr, _ := p.Transpose(0); tr != 0 {
		t.Errorf("expected channel transpose 0, got %d", tr)
	}
}

func TestPlayback_RetriggerAfterTransposeReleasesOldKey(t *testing.T) {
	p, engine := newTestPlayback(t, []sequence.Event{
		{TimeMs: 60000, Kind: sequence.NoteOn, Key: 1, Velocity: 1},
	})
	if err := p.Start(0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := p.PushMessage(sequence.NoteOn, 2, 60, 127); err != nil {
		t.Fatalf("PushMessage failed: %v", err)
	}
	p.Render(make([]float32, BlockFrames*2))

	if err := p.SetTranspose(2, 3); err != nil {
		t.Fatalf("SetTranspose failed: %v", err)
	}
	if err := p.PushMessage(sequence.NoteOn, 2, 60, 127); err != nil {
		t.Fatalf("PushMessage failed: %v", err)
	}
	if err := p.PushMessage(sequence.NoteOff, 2, 60, 0); err != nil {
		t.Fatalf("PushMessage failed: %v", err)
	}
	p.Render(make([]float32, BlockFrames*2))

	want := []string{
		"reset",
		"noteon 2 60 1.000",
		"noteoff 2 60",
		"noteon 2 63 1.000",
		"noteoff 2 63",
	}
	if !slices.Equal(engine.calls, want) {
		t.Errorf("unexpected calls:\n got %v\nwant %v", engine.calls, want)
	}
	if len(engine.voices) != 0 {
		t.Errorf("expected no hanging voices, got %v", engine.voices)
	}
}

func TestPlayback_Channels(t *testing.T) {
	p, _ := newTestPlayback(t, testSong())

	want := []ChannelInfo{
		{Channel: 0, Program: 6, NoteCount: 1, PresetName: "Program 6"},
		{Channel: 1, Program: 40, NoteCount: 1, PresetName: "Program 40"},
		{Channel: 9, Program: 0, NoteCount: 1, Drums: true, PresetName: "Standard Kit"},
	}
	if got := p.Channels(); !slices.Equal(got, want) {
		t.Errorf("unexpected channels:\n got %+v\nwant %+v", got, want)
	}
}

func TestPlayback_AllNotesOffInjected(t *testing.T) {
	p, engine := newTestPlayback(t, testSong())
	if err := p.Start(0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	p.Render(make([]float32, BlockFrames*2))

	p.AllNotesOff()
	p.Render(make([]float32, BlockFrames*2))

	if len(engine.voices) != 0 {
		t.Errorf("expected no voices, got %v", engine.voices)
	}
	if !slices.Contains(engine.calls, "allnotesoff") {
		t.Error("expected allnotesoff call")
	}
}
