package output

import (
	"fmt"
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth   = 16
	wavPCMFormat  = 1
	wavChunkFrame = 4096
)

// WriteWAV renders src into a 16-bit stereo PCM WAV file until the source
// stops playing or limit elapses. A zero limit renders until the end, so it
// must not be used with a looping source. The source must already be started.
// It returns the number of frames written.
func WriteWAV(w io.WriteSeeker, src Source, limit time.Duration) (int64, error) {
	rate := src.SampleRate()
	maxFrames := int64(-1)
	if limit > 0 {
		maxFrames = int64(limit.Seconds() * float64(rate))
	}

	enc := wav.NewEncoder(w, rate, wavBitDepth, 2, wavPCMFormat)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: rate},
		SourceBitDepth: wavBitDepth,
	}
	floats := make([]float32, wavChunkFrame*2)

	var written int64
	for src.IsPlaying() && (maxFrames < 0 || written < maxFrames) {
		frames := int64(wavChunkFrame)
		if maxFrames >= 0 {
			frames = min(frames, maxFrames-written)
		}
		chunk := floats[:frames*2]
		src.Render(chunk)

		if cap(buf.Data) < len(chunk) {
			buf.Data = make([]int, len(chunk))
		}
		buf.Data = buf.Data[:len(chunk)]
		for i, v := range chunk {
			buf.Data[i] = int(toInt16(v))
		}
		if err := enc.Write(buf); err != nil {
			return written, fmt.Errorf("failed to write WAV data: %w", err)
		}
		written += frames
	}

	if written == 0 {
		// header and an empty data chunk
		buf.Data = buf.Data[:0]
		if err := enc.Write(buf); err != nil {
			return 0, fmt.Errorf("failed to write WAV header: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return written, fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	return written, nil
}
