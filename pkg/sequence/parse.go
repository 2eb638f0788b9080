package sequence

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/zurustar/sf2midi/pkg/fileutil"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// ErrInvalidFormat is returned when the data is not a readable MIDI file.
var ErrInvalidFormat = errors.New("invalid MIDI file format")

// ErrNoEvents is returned when a MIDI file parses but contains no playable events.
var ErrNoEvents = errors.New("MIDI file contains no events")

// ErrMIDIFileNotFound is returned when the MIDI file cannot be found.
var ErrMIDIFileNotFound = errors.New("MIDI file not found")

// timedEvent is an event before tick-to-millisecond conversion.
type timedEvent struct {
	tick  int64
	event Event
}

// Parse reads a Standard MIDI File and merges all tracks into one Sequence.
// Only metric (ticks per quarter note) time division is supported.
func Parse(data []byte) (*Sequence, error) {
	file, err := readSMF(data)
	if err != nil {
		return nil, err
	}

	var (
		timed []timedEvent
		names []string
	)
	for _, track := range file.Tracks {
		var tick int64
		for _, ev := range track {
			tick += int64(ev.Delta)
			msg := ev.Message

			var (
				bpm  float64
				name string
			)
			switch {
			case msg.GetMetaTempo(&bpm):
				if bpm <= 0 || math.IsInf(bpm, 0) {
					continue
				}
				usec := int(math.Round(60000000 / bpm))
				timed = append(timed, timedEvent{tick: tick, event: Event{Kind: SetTempo, Tempo: usec}})
			case msg.GetMetaTrackName(&name):
				if name = decodeText([]byte(name)); name != "" {
					names = append(names, name)
				}
			case msg.IsPlayable():
				if e, ok := decodeChannelMessage(midi.Message(msg)); ok {
					timed = append(timed, timedEvent{tick: tick, event: e})
				}
			}
		}
	}

	if len(timed) == 0 {
		return nil, ErrNoEvents
	}

	tm := newTempoMap(file)

	// Merge tracks. The stable sort keeps track order for simultaneous events.
	sort.SliceStable(timed, func(i, j int) bool { return timed[i].tick < timed[j].tick })

	events := make([]Event, len(timed))
	for i, te := range timed {
		e := te.event
		// TimeAt works in whole microseconds; allow one of rounding.
		e.TimeMs = uint32(tm.Millis(te.tick) + 1e-3)
		events[i] = e
	}

	return &Sequence{events: events, tempo: tm, trackNames: names}, nil
}

// readSMF reads the file with gomidi. The reader computes absolute tempo
// times while reading and panics on SMPTE division, so that is reported as an
// invalid format.
func readSMF(data []byte) (file *smf.SMF, err error) {
	defer func() {
		if r := recover(); r != nil {
			file, err = nil, fmt.Errorf("%w: %v", ErrInvalidFormat, r)
		}
	}()

	file, err = smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if _, ok := file.TimeFormat.(smf.MetricTicks); !ok {
		return nil, fmt.Errorf("%w: unsupported time format %v", ErrInvalidFormat, file.TimeFormat)
	}
	return file, nil
}

// Load reads and parses a MIDI file through fsys, or the OS file system when
// fsys is nil.
func Load(fsys fileutil.FileSystem, path string) (*Sequence, error) {
	data, err := fileutil.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMIDIFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read MIDI file: %w", err)
	}
	return Parse(data)
}

// decodeChannelMessage converts a channel voice message to an Event.
func decodeChannelMessage(m midi.Message) (Event, bool) {
	var (
		ch, d1, d2 uint8
		rel        int16
		abs        uint16
	)
	switch {
	case m.GetNoteOn(&ch, &d1, &d2):
		// note-on with zero velocity is a note-off
		if d2 == 0 {
			return Event{Kind: NoteOff, Channel: int(ch), Key: int(d1)}, true
		}
		return Event{Kind: NoteOn, Channel: int(ch), Key: int(d1), Velocity: int(d2)}, true
	case m.GetNoteOff(&ch, &d1, &d2):
		return Event{Kind: NoteOff, Channel: int(ch), Key: int(d1), Velocity: int(d2)}, true
	case m.GetPolyAfterTouch(&ch, &d1, &d2):
		return Event{Kind: KeyPressure, Channel: int(ch), Key: int(d1), Value: int(d2)}, true
	case m.GetControlChange(&ch, &d1, &d2):
		return Event{Kind: ControlChange, Channel: int(ch), Controller: int(d1), Value: int(d2)}, true
	case m.GetProgramChange(&ch, &d1):
		return Event{Kind: ProgramChange, Channel: int(ch), Program: int(d1)}, true
	case m.GetAfterTouch(&ch, &d1):
		return Event{Kind: ChannelPressure, Channel: int(ch), Value: int(d1)}, true
	case m.GetPitchBend(&ch, &rel, &abs):
		return Event{Kind: PitchBend, Channel: int(ch), Bend: int(abs)}, true
	}
	return Event{}, false
}

// decodeText returns text meta payloads as UTF-8. Payloads that are not valid
// UTF-8 are treated as Shift-JIS, which older Japanese MIDI files use.
func decodeText(b []byte) string {
	b = bytes.TrimRight(b, "\x00")
	if utf8.Valid(b) {
		return strings.TrimSpace(string(b))
	}
	reader := transform.NewReader(bytes.NewReader(b), japanese.ShiftJIS.NewDecoder())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return strings.TrimSpace(string(b))
	}
	return strings.TrimSpace(string(decoded))
}
