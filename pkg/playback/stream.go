package playback

import (
	"fmt"

	"github.com/zurustar/sf2midi/pkg/sequence"
	"github.com/zurustar/sf2midi/pkg/synth"
)

// Stream pairs a bank with a sequence under a fixed configuration. It is
// immutable and may create any number of independent Playbacks.
type Stream struct {
	bank synth.Bank
	seq  *sequence.Sequence
	cfg  config
}

// NewStream validates the configuration. The sequence and bank must outlive
// every playback created from the stream and are never modified.
func NewStream(bank synth.Bank, seq *sequence.Sequence, opts ...Option) (*Stream, error) {
	if bank == nil {
		return nil, ErrNoBank
	}
	if seq == nil {
		return nil, ErrNoSequence
	}
	if !bank.Loaded() {
		return nil, fmt.Errorf("%w: bank", ErrNotLoaded)
	}
	if seq.Len() == 0 {
		return nil, fmt.Errorf("%w: sequence is empty", ErrNotLoaded)
	}

	cfg := buildConfig(opts)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.log.Debug("MIDI stream created",
		"events", seq.Len(),
		"duration_ms", seq.DurationMs(),
		"sample_rate", cfg.sampleRate,
		"tempo_scale", cfg.tempoScale,
		"transpose", cfg.transpose,
		"loop", cfg.loop,
		"loop_offset", cfg.loopOffset)

	return &Stream{bank: bank, seq: seq, cfg: cfg}, nil
}

// NewPlayback creates an inactive playback with its own engine. Call Start to
// begin rendering.
func (s *Stream) NewPlayback() (*Playback, error) {
	engine, err := s.bank.Duplicate(s.cfg.engineSettings())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDuplicateFailed, err)
	}
	return newPlayback(s, engine), nil
}

// Length returns the sequence duration in seconds at the file's tempo.
func (s *Stream) Length() float64 {
	return float64(s.seq.DurationMs()) / 1000.0
}

// Sequence returns the shared event sequence.
func (s *Stream) Sequence() *sequence.Sequence {
	return s.seq
}

// SampleRate returns the output sample rate in Hz.
func (s *Stream) SampleRate() int { return s.cfg.sampleRate }

// TempoScale returns the playback speed multiplier.
func (s *Stream) TempoScale() float64 { return s.cfg.tempoScale }

// Transpose returns the global transpose in octaves.
func (s *Stream) Transpose() int { return s.cfg.transpose }

// Loop reports whether playback loops.
func (s *Stream) Loop() bool { return s.cfg.loop }

// LoopOffset returns the loop restart position in seconds.
func (s *Stream) LoopOffset() float64 { return s.cfg.loopOffset }

// ChannelInfo summarizes one channel used by the sequence.
type ChannelInfo struct {
	Channel    int
	Program    int
	NoteCount  int
	Drums      bool
	PresetName string
}

// Channels lists the channels the sequence uses with the preset each program
// resolves to in the bank.
func (s *Stream) Channels() []ChannelInfo {
	usage := s.seq.Channels()
	infos := make([]ChannelInfo, 0, len(usage))
	for _, u := range usage {
		info := ChannelInfo{
			Channel:   u.Channel,
			Program:   u.Program,
			NoteCount: u.NoteCount,
			Drums:     u.Drums,
		}
		bank := 0
		if u.Drums {
			bank = synth.DrumBank
		}
		if p, ok := s.bank.Lookup(bank, u.Program); ok {
			info.PresetName = p.Name
		}
		infos = append(infos, info)
	}
	return infos
}
