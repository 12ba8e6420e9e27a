// Package playback plays synthesized speech on the default output device.
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"

	"github.com/meeting-copilot/internal/logging"
)

// ErrUnknownFormat is returned for clips that are neither WAV nor MP3.
var ErrUnknownFormat = errors.New("unknown audio clip format")

type clipKind int

const (
	clipUnknown clipKind = iota
	clipWAV
	clipMP3
)

func detect(data []byte, contentType string) clipKind {
	ct := strings.ToLower(contentType)
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return clipWAV
	case bytes.HasPrefix(data, []byte("ID3")), len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return clipMP3
	case strings.Contains(ct, "wav"):
		return clipWAV
	case strings.Contains(ct, "mpeg"), strings.Contains(ct, "mp3"):
		return clipMP3
	}
	return clipUnknown
}

func decode(data []byte, contentType string) (beep.StreamSeekCloser, beep.Format, error) {
	switch detect(data, contentType) {
	case clipWAV:
		return wav.Decode(bytes.NewReader(data))
	case clipMP3:
		return mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	}
	return nil, beep.Format{}, fmt.Errorf("%w: content type %q", ErrUnknownFormat, contentType)
}

// Player plays one clip at a time through the beep speaker. The speaker is
// initialised on first use at that clip's rate; later clips are resampled.
type Player struct {
	mu       sync.Mutex
	initOnce sync.Once
	initErr  error
	rate     beep.SampleRate
}

func NewPlayer() *Player { return &Player{} }

func (p *Player) init(rate beep.SampleRate) error {
	p.initOnce.Do(func() {
		p.rate = rate
		p.initErr = speaker.Init(rate, rate.N(time.Second/10))
	})
	return p.initErr
}

// Play blocks until the clip has played or ctx is done.
func (p *Player) Play(ctx context.Context, data []byte, contentType string) error {
	stream, format, err := decode(data, contentType)
	if err != nil {
		return err
	}
	defer stream.Close()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.init(format.SampleRate); err != nil {
		return fmt.Errorf("speaker init: %w", err)
	}
	var s beep.Streamer = stream
	if format.SampleRate != p.rate {
		s = beep.Resample(4, format.SampleRate, p.rate, stream)
	}
	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() { close(done) })))
	logging.Debugw("playback started", "sample_rate", int(format.SampleRate), "samples", stream.Len())
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}
