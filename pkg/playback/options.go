package playback

import (
	"log/slog"

	"github.com/zurustar/sf2midi/pkg/logger"
	"github.com/zurustar/sf2midi/pkg/synth"
)

// Defaults
const (
	DefaultSampleRate         = 44100
	DefaultNotificationBuffer = 256

	// BlockFrames is the number of frames rendered between event checks.
	BlockFrames = 64
)

// config is frozen by NewStream and shared by every playback it creates.
type config struct {
	sampleRate   int
	tempoScale   float64
	transpose    int
	loop         bool
	loopOffset   float64 // seconds
	maxVoices    int
	notifyBuffer int
	log          *slog.Logger
}

func defaultConfig() config {
	return config{
		sampleRate:   DefaultSampleRate,
		tempoScale:   1.0,
		maxVoices:    synth.DefaultMaxVoices,
		notifyBuffer: DefaultNotificationBuffer,
	}
}

// Option configures a Stream or an Instrument.
type Option func(*config)

// WithSampleRate sets the output sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(c *config) { c.sampleRate = rate }
}

// WithTempoScale scales playback speed. 1.0 plays at the file's tempo.
func WithTempoScale(scale float64) Option {
	return func(c *config) { c.tempoScale = scale }
}

// WithTranspose shifts every note by the given number of octaves.
func WithTranspose(octaves int) Option {
	return func(c *config) { c.transpose = octaves }
}

// WithLoop enables looping back to WithLoopOffset once the sequence ends.
func WithLoop(loop bool) Option {
	return func(c *config) { c.loop = loop }
}

// WithLoopOffset sets the position in seconds a loop restarts from.
func WithLoopOffset(seconds float64) Option {
	return func(c *config) { c.loopOffset = seconds }
}

// WithMaxVoices limits engine polyphony.
func WithMaxVoices(n int) Option {
	return func(c *config) { c.maxVoices = n }
}

// WithNotificationBuffer sets the capacity of the notification channel.
// Zero or less disables notifications.
func WithNotificationBuffer(n int) Option {
	return func(c *config) { c.notifyBuffer = n }
}

// WithLogger sets the logger. The process logger is used by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.log = l }
}

func buildConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.GetLogger()
	}
	return cfg
}

func (c *config) validate() error {
	if c.sampleRate < synth.MinSampleRate || c.sampleRate > synth.MaxSampleRate {
		return ErrInvalidSampleRate
	}
	// NaN fails both comparisons
	if !(c.tempoScale > 0) {
		return ErrInvalidTempoScale
	}
	if !(c.loopOffset >= 0) {
		return ErrValueOutOfRange
	}
	return nil
}

func (c *config) engineSettings() synth.Settings {
	return synth.Settings{
		SampleRate: c.sampleRate,
		MaxVoices:  c.maxVoices,
		BlockSize:  BlockFrames,
	}
}
