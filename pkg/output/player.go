package output

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/zurustar/sf2midi/pkg/logger"
)

// Ebitengine allows one audio context per process.
var (
	contextMu         sync.Mutex
	sharedContext     *audio.Context
	sharedContextRate int
)

// Context returns the process-wide audio context, creating it at sampleRate on
// first use. Later calls must ask for the same rate.
func Context(sampleRate int) (*audio.Context, error) {
	contextMu.Lock()
	defer contextMu.Unlock()

	if sharedContext == nil {
		sharedContext = audio.NewContext(sampleRate)
		sharedContextRate = sampleRate
	}
	if sharedContextRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", sharedContextRate, sampleRate)
	}
	return sharedContext, nil
}

// Player plays a Stream on the default audio device.
type Player struct {
	stream *Stream
	player *audio.Player
	log    *slog.Logger
}

// NewPlayer creates a paused player reading from stream. bufferSize bounds the
// output latency; zero keeps Ebitengine's default.
func NewPlayer(stream *Stream, bufferSize time.Duration) (*Player, error) {
	ctx, err := Context(stream.SampleRate())
	if err != nil {
		return nil, err
	}
	p, err := ctx.NewPlayer(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio player: %w", err)
	}
	if bufferSize > 0 {
		p.SetBufferSize(bufferSize)
	}
	return &Player{stream: stream, player: p, log: logger.Component("output")}, nil
}

// Play starts the source at from seconds and resumes the device.
func (p *Player) Play(from float64) error {
	if err := p.stream.Start(from); err != nil {
		return err
	}
	p.player.Play()
	p.log.Debug("Audio output started", "from", from, "sample_rate", p.stream.SampleRate())
	return nil
}

// Pause pauses the device without stopping the source.
func (p *Player) Pause() {
	p.player.Pause()
}

// IsPlaying reports whether the device is still consuming audio. A finite
// stream stops the device once the source ends.
func (p *Player) IsPlaying() bool {
	return p.player.IsPlaying()
}

// SetMuted silences the device while the source keeps rendering.
func (p *Player) SetMuted(muted bool) {
	if muted {
		p.player.SetVolume(0)
	} else {
		p.player.SetVolume(1)
	}
}

// Wait blocks until the device stops playing, done is closed, or timeout
// elapses. A zero timeout waits without limit. It reports whether playback
// finished on its own.
func (p *Player) Wait(done <-chan struct{}, timeout time.Duration) bool {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		select {
		case <-done:
			return false
		case <-deadline:
			p.log.Info("Timeout reached", "timeout", timeout)
			return false
		case <-ticker.C:
			if !p.player.IsPlaying() {
				return true
			}
		}
	}
}

// Close stops the source and releases the device player.
func (p *Player) Close() error {
	p.stream.Stop()
	p.player.Pause()
	return p.player.Close()
}
