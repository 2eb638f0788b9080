package playback

// command is a live message queued by a control goroutine and applied on the
// render goroutine. The set is closed: every command dispatches to one method
// of commandTarget, so adding a command breaks every target until handled.
type command interface {
	apply(t commandTarget)
}

// commandTarget is implemented by Playback and Instrument.
type commandTarget interface {
	applyNoteOn(c noteOnCmd)
	applyNoteOff(c noteOffCmd)
	applyAllNotesOff(c allNotesOffCmd)
	applyChannelNotesOff(c channelNotesOffCmd)
	applyProgram(c programCmd)
	applyControlChange(c controlChangeCmd)
	applyPitchBend(c pitchBendCmd)
	applyChannelPressure(c channelPressureCmd)
}

type noteOnCmd struct {
	channel  int
	key      int
	velocity float32 // [0,1]
}

type noteOffCmd struct {
	channel int
	key     int
}

type allNotesOffCmd struct{}

// channelNotesOffCmd silences one channel after it became inaudible.
type channelNotesOffCmd struct {
	channel int
}

type programCmd struct {
	channel int
	program int
	drums   bool
}

type controlChangeCmd struct {
	channel    int
	controller int
	value      int
}

type pitchBendCmd struct {
	channel int
	value   int
}

type channelPressureCmd struct {
	channel  int
	pressure int
}

func (c noteOnCmd) apply(t commandTarget)          { t.applyNoteOn(c) }
func (c noteOffCmd) apply(t commandTarget)         { t.applyNoteOff(c) }
func (c allNotesOffCmd) apply(t commandTarget)     { t.applyAllNotesOff(c) }
func (c channelNotesOffCmd) apply(t commandTarget) { t.applyChannelNotesOff(c) }
func (c programCmd) apply(t commandTarget)         { t.applyProgram(c) }
func (c controlChangeCmd) apply(t commandTarget)   { t.applyControlChange(c) }
func (c pitchBendCmd) apply(t commandTarget)       { t.applyPitchBend(c) }
func (c channelPressureCmd) apply(t commandTarget) { t.applyChannelPressure(c) }
