package app

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/wav"
	"github.com/zurustar/sf2midi/pkg/sequence"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// clearEnv 環境変数の影響を排除する
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"HEADLESS", "SOUNDFONT", "TIMEOUT", "LOG_LEVEL"} {
		t.Setenv(name, "")
	}
}

// testSoundFont finds a SoundFont with real samples or skips the test.
func testSoundFont(t *testing.T) string {
	t.Helper()

	if env := os.Getenv("SOUNDFONT"); env != "" {
		if abs, err := filepath.Abs(env); err == nil {
			if _, err := os.Stat(abs); err == nil {
				return abs
			}
		}
	}
	absPath, err := filepath.Abs(filepath.Join("..", "..", DefaultSoundFontName))
	if err == nil {
		if _, err := os.Stat(absPath); err == nil {
			return absPath
		}
	}

	t.Skip("SoundFont file not found")
	return ""
}

// writeTestMIDI writes a half-second piece on channels 0 and 9.
func writeTestMIDI(t *testing.T, dir string) string {
	t.Helper()

	var tr smf.Track
	tr.Add(0, smf.MetaTempo(120))
	tr.Add(0, midi.ProgramChange(0, 0))
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(0, midi.NoteOn(9, 36, 100))
	tr.Add(960, midi.NoteOff(0, 60))
	tr.Add(0, midi.NoteOff(9, 36))
	tr.Close(0)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(960)
	if err := s.Add(tr); err != nil {
		t.Fatalf("failed to add track: %v", err)
	}
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatalf("failed to write SMF: %v", err)
	}

	path := filepath.Join(dir, "song.mid")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write MIDI file: %v", err)
	}
	return path
}

func TestRun_Help(t *testing.T) {
	clearEnv(t)

	for _, args := range [][]string{{}, {"-h"}} {
		if err := New(nil).Run(args); err != nil {
			t.Errorf("Run(%v) returned %v", args, err)
		}
	}
}

func TestRun_Errors(t *testing.T) {
	clearEnv(t)
	chdir(t, t.TempDir())
	midiPath := writeTestMIDI(t, t.TempDir())

	t.Run("invalid flag", func(t *testing.T) {
		if err := New(nil).Run([]string{"--tempo", "0", midiPath}); err == nil {
			t.Error("expected error for zero tempo")
		}
	})

	t.Run("missing MIDI file", func(t *testing.T) {
		err := New(nil).Run([]string{"missing.mid"})
		if !errors.Is(err, sequence.ErrMIDIFileNotFound) {
			t.Errorf("expected ErrMIDIFileNotFound, got %v", err)
		}
	})

	t.Run("no SoundFont", func(t *testing.T) {
		err := New(nil).Run([]string{"--headless", midiPath})
		if !errors.Is(err, ErrNoSoundFont) {
			t.Errorf("expected ErrNoSoundFont, got %v", err)
		}
	})

	t.Run("invalid SoundFont", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.sf2")
		if err := os.WriteFile(bad, []byte("RIFF....junk"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := New(nil).Run([]string{"-s", bad, "--headless", midiPath}); err == nil {
			t.Error("expected error for invalid SoundFont")
		}
	})
}

func TestRun_WithSoundFont(t *testing.T) {
	clearEnv(t)
	sf := testSoundFont(t)
	dir := t.TempDir()
	midiPath := writeTestMIDI(t, dir)

	t.Run("list channels", func(t *testing.T) {
		var out bytes.Buffer
		app := New(nil)
		app.out = &out
		if err := app.Run([]string{"-s", sf, "--list-channels", midiPath}); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		if len(lines) < 3 || !strings.HasPrefix(lines[0], "CH") {
			t.Fatalf("unexpected output:\n%s", out.String())
		}
		if !strings.HasPrefix(lines[1], "0 ") || !strings.HasPrefix(lines[2], "9 ") {
			t.Errorf("expected channels 0 and 9, got:\n%s", out.String())
		}
		if !strings.Contains(lines[2], "(drums)") {
			t.Errorf("channel 9 should be listed as drums: %q", lines[2])
		}
		if !strings.Contains(out.String(), "length: 0.50s") {
			t.Errorf("expected length line, got:\n%s", out.String())
		}
	})

	t.Run("headless", func(t *testing.T) {
		if err := New(nil).Run([]string{"-s", sf, "--headless", "--mute", "9", midiPath}); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	})

	t.Run("headless loop needs timeout", func(t *testing.T) {
		err := New(nil).Run([]string{"-s", sf, "--headless", "--loop", midiPath})
		if !errors.Is(err, ErrEndlessRender) {
			t.Errorf("expected ErrEndlessRender, got %v", err)
		}
	})

	t.Run("WAV output", func(t *testing.T) {
		wavPath := filepath.Join(dir, "out.wav")
		if err := New(nil).Run([]string{"-s", sf, "-o", wavPath, "--rate", "22050", midiPath}); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		f, err := os.Open(wavPath)
		if err != nil {
			t.Fatalf("failed to open WAV: %v", err)
		}
		defer f.Close()

		dec := wav.NewDecoder(f)
		if !dec.IsValidFile() {
			t.Fatal("output is not a valid WAV file")
		}
		if dec.SampleRate != 22050 || dec.NumChans != 2 || dec.BitDepth != 16 {
			t.Errorf("format = %d Hz %d ch %d bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
		}
		buf, err := dec.FullPCMBuffer()
		if err != nil {
			t.Fatalf("failed to decode WAV: %v", err)
		}
		// 0.5秒の曲とリリースの余韻
		if frames := buf.NumFrames(); frames < 22050/2 {
			t.Errorf("expected at least %d frames, got %d", 22050/2, frames)
		}
	})
}
