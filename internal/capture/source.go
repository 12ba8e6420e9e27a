// Package capture provides the audio sources that feed the pipeline:
// local devices through miniaudio, WAV or raw PCM files, and Discord voice.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/meeting-copilot/internal/audio"
)

var (
	// ErrUnsupported is returned for sources this build or platform lacks.
	ErrUnsupported = errors.New("capture source not supported")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("capture source already started")
)

// Sink receives captured PCM16 chunks. OnAudioFrame must not block and must
// not retain pcm beyond the call.
type Sink interface {
	OnAudioFrame(pcm []byte)
	EndOfStream()
}

// Source produces audio into a Sink until stopped or exhausted.
type Source interface {
	Name() string
	Start(ctx context.Context, sink Sink) error
	Stop() error
}

// Format is the PCM layout every source must deliver.
type Format struct {
	SampleRate int
	Channels   int
	// ChunkFrames is the number of frames per delivered chunk.
	ChunkFrames int
}

func (f Format) chunkBytes() int { return f.ChunkFrames * f.Channels * audio.BytesPerSample }

func (f Format) validate() error {
	if f.SampleRate <= 0 || f.Channels <= 0 || f.ChunkFrames <= 0 {
		return fmt.Errorf("%w: sample_rate=%d channels=%d chunk_frames=%d", audio.ErrInvalidConfig, f.SampleRate, f.Channels, f.ChunkFrames)
	}
	return nil
}

// converter turns PCM16 at an input layout into the target mono or
// same-channel layout, downmixing and decimating as needed.
type converter struct {
	fromRate, fromChannels int
	to                     Format
}

func newConverter(fromRate, fromChannels int, to Format) (*converter, error) {
	if fromChannels != to.Channels && to.Channels != 1 {
		return nil, fmt.Errorf("%w: cannot map %d channels to %d", audio.ErrInvalidConfig, fromChannels, to.Channels)
	}
	if fromRate != to.SampleRate && (fromRate < to.SampleRate || fromRate%to.SampleRate != 0) {
		return nil, fmt.Errorf("%w: cannot resample %d Hz to %d Hz", audio.ErrInvalidConfig, fromRate, to.SampleRate)
	}
	return &converter{fromRate: fromRate, fromChannels: fromChannels, to: to}, nil
}

func (c *converter) identity() bool {
	return c.fromRate == c.to.SampleRate && c.fromChannels == c.to.Channels
}

// inputBytes is the input block size that converts into one output chunk.
func (c *converter) inputBytes() int {
	return c.to.ChunkFrames * (c.fromRate / c.to.SampleRate) * c.fromChannels * audio.BytesPerSample
}

func (c *converter) convert(pcm []byte) ([]byte, error) {
	if c.identity() {
		return pcm, nil
	}
	samples := audio.BytesToSamples(pcm)
	if c.fromChannels != c.to.Channels {
		samples = audio.Downmix(samples, c.fromChannels)
	}
	samples, err := audio.Decimate(samples, c.fromRate, c.to.SampleRate)
	if err != nil {
		return nil, err
	}
	return audio.SamplesToBytes(samples), nil
}
