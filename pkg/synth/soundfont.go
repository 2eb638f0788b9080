package synth

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"

	"github.com/sinshu/go-meltysynth/meltysynth"
	"github.com/zurustar/sf2midi/pkg/fileutil"
)

// SoundFont is a parsed SF2 bank. It is read-only after loading and may be
// shared by any number of engines.
type SoundFont struct {
	sf *meltysynth.SoundFont
	presetTable
}

// NewSoundFont parses a SoundFont from r.
func NewSoundFont(r io.Reader) (*SoundFont, error) {
	sf, err := meltysynth.NewSoundFont(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSoundFont, err)
	}

	presets := make([]Preset, 0, len(sf.Presets))
	for i, p := range sf.Presets {
		presets = append(presets, Preset{
			Index:  i,
			Bank:   int(p.BankNumber),
			Number: int(p.PatchNumber),
			Name:   p.Name,
		})
	}
	return &SoundFont{sf: sf, presetTable: newPresetTable(presets)}, nil
}

// ParseSoundFont parses SoundFont bytes.
func ParseSoundFont(data []byte) (*SoundFont, error) {
	return NewSoundFont(bytes.NewReader(data))
}

// LoadSoundFontFS reads and parses a SoundFont through fsys, or the OS file
// system when fsys is nil.
func LoadSoundFontFS(fsys fileutil.FileSystem, path string) (*SoundFont, error) {
	data, err := fileutil.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSoundFontNotFound, path)
		}
		return nil, fmt.Errorf("failed to read SoundFont file: %w", err)
	}
	return ParseSoundFont(data)
}

// Loaded reports whether the SoundFont holds parsed data.
func (s *SoundFont) Loaded() bool {
	return s != nil && s.sf != nil
}

// Duplicate creates an engine with its own voice state over the shared sample
// data. Reverb and chorus are disabled.
func (s *SoundFont) Duplicate(settings Settings) (Engine, error) {
	if !s.Loaded() {
		return nil, fmt.Errorf("%w: SoundFont not loaded", ErrEngineCreate)
	}

	ms := meltysynth.NewSynthesizerSettings(int32(settings.SampleRate))
	ms.BlockSize = int32(clamp(orDefault(settings.BlockSize, DefaultBlockSize), 8, 1024))
	ms.MaximumPolyphony = int32(clamp(orDefault(settings.MaxVoices, DefaultMaxVoices), minMaxVoices, DefaultMaxVoices))
	ms.EnableReverbAndChorus = false

	synth, err := meltysynth.NewSynthesizer(s.sf, ms)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineCreate, err)
	}
	return newMeltyEngine(synth, &s.presetTable), nil
}

// presetTable resolves bank/program pairs the way meltysynth does on note-on.
type presetTable struct {
	list   []Preset
	byKey  map[int]Preset
	lowest Preset
}

func presetKey(bank, program int) int {
	return bank<<16 | program
}

func newPresetTable(presets []Preset) presetTable {
	t := presetTable{
		list:  presets,
		byKey: make(map[int]Preset, len(presets)),
	}
	for i, p := range presets {
		key := presetKey(p.Bank, p.Number)
		if _, dup := t.byKey[key]; dup {
			continue
		}
		t.byKey[key] = p
		if i == 0 || key < presetKey(t.lowest.Bank, t.lowest.Number) {
			t.lowest = p
		}
	}
	return t
}

// Lookup returns the exact preset, else the General MIDI fallback: bank 0 for
// melodic banks, the standard kit (128:0) for percussion banks, else the
// preset with the lowest bank/program.
func (t *presetTable) Lookup(bank, program int) (Preset, bool) {
	if len(t.byKey) == 0 {
		return Preset{}, false
	}
	if p, ok := t.byKey[presetKey(bank, program)]; ok {
		return p, true
	}
	fallback := presetKey(0, program)
	if bank >= DrumBank {
		fallback = presetKey(DrumBank, 0)
	}
	if p, ok := t.byKey[fallback]; ok {
		return p, true
	}
	return t.lowest, true
}

// Presets returns program number to preset name for one bank.
func (t *presetTable) Presets(bank int) map[int]string {
	result := make(map[int]string)
	for _, p := range t.list {
		if p.Bank == bank {
			if _, ok := result[p.Number]; !ok {
				result[p.Number] = p.Name
			}
		}
	}
	return result
}

// PresetList returns every preset ordered by bank then program.
func (t *presetTable) PresetList() []Preset {
	out := make([]Preset, len(t.list))
	copy(out, t.list)
	sort.SliceStable(out, func(i, j int) bool {
		return presetKey(out[i].Bank, out[i].Number) < presetKey(out[j].Bank, out[j].Number)
	})
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
