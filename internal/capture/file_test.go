package capture

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/meeting-copilot/internal/audio"
)

type collectSink struct {
	mu     sync.Mutex
	chunks [][]byte
	eos    int
	ended  chan struct{}
}

func newCollectSink() *collectSink { return &collectSink{ended: make(chan struct{}, 4)} }

func (c *collectSink) OnAudioFrame(pcm []byte) {
	c.mu.Lock()
	c.chunks = append(c.chunks, append([]byte(nil), pcm...))
	c.mu.Unlock()
}

func (c *collectSink) EndOfStream() {
	c.mu.Lock()
	c.eos++
	c.mu.Unlock()
	c.ended <- struct{}{}
}

func (c *collectSink) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ch := range c.chunks {
		n += len(ch)
	}
	return n
}

func (c *collectSink) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.ended:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for end of stream")
	}
}

var mono16k = Format{SampleRate: 16000, Channels: 1, ChunkFrames: 480}

func TestFileSourceWAV(t *testing.T) {
	pcm := make([]byte, 16000*2) // one second
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, audio.BuildWAV(pcm, 16000, 1), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	src := NewFileSource(path, false, mono16k)
	sink := newCollectSink()
	if err := src.Start(context.Background(), sink); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sink.wait(t)
	if err := src.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := sink.total(); got != len(pcm) {
		t.Fatalf("want %d bytes got %d", len(pcm), got)
	}
	if first := len(sink.chunks[0]); first != 960 {
		t.Fatalf("want 960 byte chunks got %d", first)
	}
	if sink.eos != 1 {
		t.Fatalf("want one end of stream got %d", sink.eos)
	}
}

func TestFileSourceConvertsStereo48k(t *testing.T) {
	// 30ms of 48kHz stereo becomes 30ms of 16kHz mono
	samples := make([]int16, 1440*2)
	for i := range samples {
		samples[i] = 300
	}
	wav := audio.BuildWAV(audio.SamplesToBytes(samples), 48000, 2)
	src := NewFileSource("mem", false, mono16k)
	src.open = func(string) (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(wav)), nil }
	sink := newCollectSink()
	if err := src.Start(context.Background(), sink); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sink.wait(t)
	if got := sink.total(); got != 480*2 {
		t.Fatalf("want 960 bytes got %d", got)
	}
	if s := audio.BytesToSamples(sink.chunks[0]); s[0] != 300 {
		t.Fatalf("unexpected sample value %d", s[0])
	}
}

func TestFileSourceRawWithTrailingPartial(t *testing.T) {
	raw := make([]byte, 960*2+101)
	src := NewFileSource("raw", false, mono16k)
	src.open = func(string) (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(raw)), nil }
	sink := newCollectSink()
	if err := src.Start(context.Background(), sink); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sink.wait(t)
	if got := sink.total(); got != 960*2+100 {
		t.Fatalf("partial sample should be dropped, got %d bytes", got)
	}
}

func TestFileSourceRejectsUnsupportedRate(t *testing.T) {
	wav := audio.BuildWAV(make([]byte, 64), 44100, 1)
	src := NewFileSource("mem", false, mono16k)
	src.open = func(string) (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(wav)), nil }
	if err := src.Start(context.Background(), newCollectSink()); err == nil {
		t.Fatalf("expected error for 44.1kHz input")
	}
}

func TestFileSourceStopEndsRealtimePlayback(t *testing.T) {
	src := NewFileSource("raw", true, mono16k)
	src.open = func(string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(make([]byte, 16000*2*10))), nil
	}
	sink := newCollectSink()
	if err := src.Start(context.Background(), sink); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := sink.total(); got >= 16000*2 {
		t.Fatalf("realtime pacing delivered %d bytes in 50ms", got)
	}
	sink.wait(t)
}

func TestFileSourceMissingFile(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "nope.wav"), false, mono16k)
	if err := src.Start(context.Background(), newCollectSink()); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
