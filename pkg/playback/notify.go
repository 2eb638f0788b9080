package playback

import "github.com/zurustar/sf2midi/pkg/sequence"

// Notification reports one sequence event applied by the render goroutine.
//
// Param1 and Param2 depend on Kind: key and velocity for notes (the key is not
// transposed), controller and value for control changes, program for program
// changes, the 14-bit value for pitch bend and BPM for tempo changes.
type Notification struct {
	Kind    sequence.Kind
	Channel int
	Param1  int
	Param2  int
}

// Notifications returns the channel notifications are delivered on. It is nil
// when notifications are disabled and is closed by Close. Events are dropped
// rather than blocking the render goroutine when the buffer is full.
func (p *Playback) Notifications() <-chan Notification {
	return p.notify
}

// DroppedNotifications returns the number of notifications dropped because the
// buffer was full.
func (p *Playback) DroppedNotifications() uint64 {
	return p.dropped.Load()
}

// emit delivers a notification. During seek replay only tempo and program
// changes are reported.
func (p *Playback) emit(kind sequence.Kind, ch, param1, param2 int) {
	if p.notify == nil {
		return
	}
	if p.suppress && kind != sequence.SetTempo && kind != sequence.ProgramChange {
		return
	}
	select {
	case p.notify <- Notification{Kind: kind, Channel: ch, Param1: param1, Param2: param2}:
	default:
		p.dropped.Add(1)
	}
}
