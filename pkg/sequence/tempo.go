package sequence

import (
	"gitlab.com/gomidi/midi/v2/smf"
)

// TempoChange represents a tempo change in a MIDI file.
type TempoChange struct {
	Tick int64   // absolute MIDI tick
	BPM  float64 // quarter notes per minute
}

// TempoMap converts absolute MIDI ticks to milliseconds considering the tempo
// changes of a metric time SMF.
type TempoMap struct {
	file *smf.SMF
}

func newTempoMap(file *smf.SMF) *TempoMap {
	return &TempoMap{file: file}
}

// Millis converts an absolute tick to milliseconds.
func (tm *TempoMap) Millis(tick int64) float64 {
	return float64(tm.file.TimeAt(tick)) / 1000.0
}

// PPQ returns the ticks per quarter note.
func (tm *TempoMap) PPQ() int {
	return int(tm.file.TimeFormat.(smf.MetricTicks).Resolution())
}

// Changes returns the tempo changes in tick order.
func (tm *TempoMap) Changes() []TempoChange {
	src := tm.file.TempoChanges()
	changes := make([]TempoChange, len(src))
	for i, tc := range src {
		changes[i] = TempoChange{Tick: tc.AbsTicks, BPM: tc.BPM}
	}
	return changes
}
