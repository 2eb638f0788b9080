// Package output turns rendered playback frames into 16-bit PCM for realtime
// output through Ebitengine/audio and for offline WAV files.
package output

import (
	"encoding/binary"
	"io"
	"sync"
)

// BytesPerFrame is the size of one interleaved stereo int16 frame.
const BytesPerFrame = 4

// Source renders interleaved stereo float frames. Both playback.Playback and
// playback.Instrument satisfy it.
type Source interface {
	Render(buf []float32) int
	IsPlaying() bool
	Start(from float64) error
	Stop()
	Seek(to float64) error
	Position() float64
	SampleRate() int
}

// Stream implements io.Reader over a Source, producing little-endian int16
// interleaved stereo.
//
// Render and the transport calls must not overlap, so Stream owns the source:
// Start, Stop and Seek go through it and are serialized with Read.
type Stream struct {
	mu     sync.Mutex
	src    Source
	finite bool
	buf    []float32
	frames int64
}

// NewStream creates a stream that renders silence while the source is
// inactive. Use it when the output device stays open.
func NewStream(src Source) *Stream {
	return &Stream{src: src}
}

// NewFiniteStream creates a stream that reports io.EOF once the source stops
// playing, so a player or writer reading it finishes with the song.
func NewFiniteStream(src Source) *Stream {
	return &Stream{src: src, finite: true}
}

// Read renders len(p)/4 frames. A trailing partial frame is left untouched.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finite && !s.src.IsPlaying() {
		return 0, io.EOF
	}

	frames := len(p) / BytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(s.buf) < need {
		s.buf = make([]float32, need)
	}
	s.buf = s.buf[:need]

	s.src.Render(s.buf)
	s.frames += int64(frames)

	for i, v := range s.buf {
		binary.LittleEndian.PutUint16(p[i*2:], uint16(toInt16(v)))
	}
	return frames * BytesPerFrame, nil
}

// Start starts the source from the given position in seconds.
func (s *Stream) Start(from float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Start(from)
}

// Stop stops the source. Subsequent reads render silence, or io.EOF for a
// finite stream.
func (s *Stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src.Stop()
}

// Seek moves the source to the given position in seconds.
func (s *Stream) Seek(to float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Seek(to)
}

// Position returns the source position in seconds.
func (s *Stream) Position() float64 {
	return s.src.Position()
}

// IsPlaying reports whether the source is active.
func (s *Stream) IsPlaying() bool {
	return s.src.IsPlaying()
}

// FramesRead returns the number of frames delivered to readers.
func (s *Stream) FramesRead() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// SampleRate returns the source sample rate in Hz.
func (s *Stream) SampleRate() int {
	return s.src.SampleRate()
}

// toInt16 converts a float sample to int16, clipping to [-1, 1].
func toInt16(v float32) int16 {
	switch {
	case v != v:
		return 0
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	return int16(v * 32767)
}
