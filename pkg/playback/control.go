package playback

import (
	"fmt"

	"github.com/zurustar/sf2midi/pkg/sequence"
	"github.com/zurustar/sf2midi/pkg/synth"
)

// Channel controls take effect immediately without queueing. Mute and solo
// changes also queue an all-notes-off for every channel they silence.

// SetMuted mutes or unmutes a channel.
func (p *Playback) SetMuted(ch int, muted bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	p.changeAudibility(func() { p.channels[ch].muted.Store(muted) })
	return nil
}

// Muted reports whether a channel is muted.
func (p *Playback) Muted(ch int) (bool, error) {
	if err := checkChannel(ch); err != nil {
		return false, err
	}
	return p.channels[ch].muted.Load(), nil
}

// SetSolo sets a channel's solo flag. While any channel is soloed only soloed
// channels are audible.
func (p *Playback) SetSolo(ch int, solo bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	p.changeAudibility(func() { p.channels[ch].solo.Store(solo) })
	return nil
}

// Solo reports whether a channel is soloed.
func (p *Playback) Solo(ch int) (bool, error) {
	if err := checkChannel(ch); err != nil {
		return false, err
	}
	return p.channels[ch].solo.Load(), nil
}

// Audible reports whether notes on a channel are currently heard.
func (p *Playback) Audible(ch int) (bool, error) {
	if err := checkChannel(ch); err != nil {
		return false, err
	}
	return p.channels.audible(ch), nil
}

// changeAudibility applies change and queues a channel notes-off for every
// channel that went from audible to inaudible.
func (p *Playback) changeAudibility(change func()) {
	p.queue.pushWith(func() []command {
		before := p.channels.audibleMask()
		change()
		silenced := before &^ p.channels.audibleMask()

		var cmds []command
		for ch := 0; ch < sequence.ChannelCount; ch++ {
			if silenced&(1<<ch) != 0 {
				cmds = append(cmds, channelNotesOffCmd{channel: ch})
			}
		}
		return cmds
	})
}

// SetTranspose sets a channel's transpose in semitones, added to the global
// transpose.
func (p *Playback) SetTranspose(ch, semitones int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	p.channels[ch].transpose.Store(int32(semitones))
	return nil
}

// Transpose returns a channel's transpose in semitones.
func (p *Playback) Transpose(ch int) (int, error) {
	if err := checkChannel(ch); err != nil {
		return 0, err
	}
	return int(p.channels[ch].transpose.Load()), nil
}

// SetVolume sets a channel's velocity multiplier, clamped to [0,1].
func (p *Playback) SetVolume(ch int, volume float32) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	p.channels.setVolume(ch, volume)
	return nil
}

// Volume returns a channel's velocity multiplier.
func (p *Playback) Volume(ch int) (float32, error) {
	if err := checkChannel(ch); err != nil {
		return 0, err
	}
	return p.channels.volume(ch), nil
}

// SetProgramOverride replaces the program of every later program change on a
// channel. NoOverride restores the sequence's programs.
func (p *Playback) SetProgramOverride(ch, program int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	p.channels[ch].programOverride.Store(int32(program))
	return nil
}

// ProgramOverride returns a channel's program override or NoOverride.
func (p *Playback) ProgramOverride(ch int) (int, error) {
	if err := checkChannel(ch); err != nil {
		return NoOverride, err
	}
	return int(p.channels[ch].programOverride.Load()), nil
}

// Injected messages are queued and applied at the start of the next Render,
// before any sequence event of that call.

// NoteOn queues a note-on. velocity is 0-127.
func (p *Playback) NoteOn(ch, key, velocity int) error {
	if err := checkNote(ch, key); err != nil {
		return err
	}
	if velocity < 0 || velocity > 127 {
		return ErrVelocityOutOfRange
	}
	p.queue.push(noteOnCmd{channel: ch, key: key, velocity: float32(velocity) / 127})
	return nil
}

// NoteOff queues a note-off.
func (p *Playback) NoteOff(ch, key int) error {
	if err := checkNote(ch, key); err != nil {
		return err
	}
	p.queue.push(noteOffCmd{channel: ch, key: key})
	return nil
}

// AllNotesOff queues a release of every voice.
func (p *Playback) AllNotesOff() {
	p.queue.push(allNotesOffCmd{})
}

// SelectProgram queues a program change. The channel's program override
// still applies.
func (p *Playback) SelectProgram(ch, program int, drums bool) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if err := check7bit(program); err != nil {
		return err
	}
	p.queue.push(programCmd{channel: ch, program: program, drums: drums})
	return nil
}

// ControlChange queues a control change.
func (p *Playback) ControlChange(ch, controller, value int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if err := check7bit(controller); err != nil {
		return err
	}
	if err := check7bit(value); err != nil {
		return err
	}
	p.queue.push(controlChangeCmd{channel: ch, controller: controller, value: value})
	return nil
}

// PitchBend queues a pitch bend. value is 0-16383, 8192 is center.
func (p *Playback) PitchBend(ch, value int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if value < 0 || value > synth.PitchBendMax {
		return ErrValueOutOfRange
	}
	p.queue.push(pitchBendCmd{channel: ch, value: value})
	return nil
}

// ChannelPressure queues channel pressure, applied as channel volume.
func (p *Playback) ChannelPressure(ch, pressure int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if err := check7bit(pressure); err != nil {
		return err
	}
	p.queue.push(channelPressureCmd{channel: ch, pressure: pressure})
	return nil
}

// PushMessage queues a raw channel message. For notes param1 is the key and
// param2 the velocity; for control changes the controller and value; for
// program changes and channel pressure param1 is the value; for pitch bend
// param1 is the 14-bit value.
func (p *Playback) PushMessage(kind sequence.Kind, ch, param1, param2 int) error {
	switch kind {
	case sequence.NoteOn:
		return p.NoteOn(ch, param1, param2)
	case sequence.NoteOff:
		return p.NoteOff(ch, param1)
	case sequence.ControlChange:
		return p.ControlChange(ch, param1, param2)
	case sequence.ProgramChange:
		return p.SelectProgram(ch, param1, ch == sequence.DrumChannel)
	case sequence.PitchBend:
		return p.PitchBend(ch, param1)
	case sequence.ChannelPressure:
		return p.ChannelPressure(ch, param1)
	}
	return fmt.Errorf("%w: %v", ErrUnsupportedMessage, kind)
}

// PendingCommands returns the number of queued messages not yet applied.
func (p *Playback) PendingCommands() int {
	return p.queue.len()
}

// ChannelPreset returns the preset a channel currently resolves to.
func (p *Playback) ChannelPreset(ch int) (synth.Preset, error) {
	if err := checkChannel(ch); err != nil {
		return synth.Preset{}, err
	}
	if p.closed.Load() {
		return synth.Preset{}, ErrNotLoaded
	}
	preset, ok := p.engine.ChannelPreset(ch)
	if !ok {
		return synth.Preset{}, fmt.Errorf("%w: no preset for channel %d", ErrNotLoaded, ch)
	}
	return preset, nil
}

// Channels lists the channels the sequence uses.
func (p *Playback) Channels() []ChannelInfo {
	return p.stream.Channels()
}

func checkNote(ch, key int) error {
	if err := checkChannel(ch); err != nil {
		return err
	}
	if key < 0 || key > 127 {
		return ErrNoteOutOfRange
	}
	return nil
}

func check7bit(v int) error {
	if v < 0 || v > 127 {
		return ErrValueOutOfRange
	}
	return nil
}
