package sequence

import (
	"sort"
	"time"
)

// Sequence is an ordered, randomly accessible list of events.
type Sequence struct {
	events     []Event
	tempo      *TempoMap
	trackNames []string
}

// New builds a Sequence from events, ordering them by timestamp. Events with
// equal timestamps keep their relative order.
func New(events []Event) *Sequence {
	evs := make([]Event, len(events))
	copy(evs, events)
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].TimeMs < evs[j].TimeMs })
	return &Sequence{events: evs}
}

// Len returns the number of events.
func (s *Sequence) Len() int {
	if s == nil {
		return 0
	}
	return len(s.events)
}

// At returns the i-th event.
func (s *Sequence) At(i int) Event {
	return s.events[i]
}

// Events returns the underlying events. Callers must not modify the slice.
func (s *Sequence) Events() []Event {
	if s == nil {
		return nil
	}
	return s.events
}

// After returns the index of the first event whose timestamp is strictly
// greater than ms, or Len() if there is none.
func (s *Sequence) After(ms float64) int {
	return sort.Search(len(s.events), func(i int) bool {
		return float64(s.events[i].TimeMs) > ms
	})
}

// AtOrAfter returns the index of the first event whose timestamp is at or
// after ms, or Len() if there is none.
func (s *Sequence) AtOrAfter(ms float64) int {
	return sort.Search(len(s.events), func(i int) bool {
		return float64(s.events[i].TimeMs) >= ms
	})
}

// DurationMs returns the timestamp of the last event.
func (s *Sequence) DurationMs() uint32 {
	if s.Len() == 0 {
		return 0
	}
	return s.events[len(s.events)-1].TimeMs
}

// Length returns the total duration of the sequence.
func (s *Sequence) Length() time.Duration {
	return time.Duration(s.DurationMs()) * time.Millisecond
}

// TempoMap returns the tempo map the timestamps were computed with. It is nil
// for sequences built with New.
func (s *Sequence) TempoMap() *TempoMap {
	return s.tempo
}

// TrackNames returns the track name meta events in track order, decoded to
// UTF-8. Tracks without a name are omitted.
func (s *Sequence) TrackNames() []string {
	return s.trackNames
}

// ChannelUsage summarizes how a sequence uses one MIDI channel.
type ChannelUsage struct {
	Channel   int
	Program   int // last program change on the channel
	NoteCount int
	Drums     bool
}

// Channels returns usage for every channel that has a program change or a
// note-on, in channel order.
func (s *Sequence) Channels() []ChannelUsage {
	var (
		used  [ChannelCount]bool
		infos [ChannelCount]ChannelUsage
	)
	for _, ev := range s.Events() {
		ch := ev.Channel
		if ch < 0 || ch >= ChannelCount {
			continue
		}
		switch ev.Kind {
		case ProgramChange:
			infos[ch].Program = ev.Program
			used[ch] = true
		case NoteOn:
			infos[ch].NoteCount++
			used[ch] = true
		}
	}

	var result []ChannelUsage
	for ch := 0; ch < ChannelCount; ch++ {
		if !used[ch] {
			continue
		}
		info := infos[ch]
		info.Channel = ch
		info.Drums = ch == DrumChannel
		result = append(result, info)
	}
	return result
}
