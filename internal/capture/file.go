package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/meeting-copilot/internal/audio"
	"github.com/meeting-copilot/internal/logging"
)

// FileSource replays a WAV file, or raw PCM16 in the target format, as if
// it were being captured. Path "-" reads standard input.
type FileSource struct {
	Path string
	// Realtime paces chunks at their play duration; otherwise the file is
	// pushed as fast as the sink accepts it.
	Realtime bool

	format Format
	open   func(path string) (io.ReadCloser, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func NewFileSource(path string, realtime bool, f Format) *FileSource {
	return &FileSource{Path: path, Realtime: realtime, format: f, open: openInput}
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func (s *FileSource) Name() string { return "file" }

// Start opens the input and delivers it on a background goroutine, calling
// EndOfStream once the input is exhausted.
func (s *FileSource) Start(ctx context.Context, sink Sink) error {
	if err := s.format.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrAlreadyStarted
	}
	rc, err := s.open(s.Path)
	if err != nil {
		return fmt.Errorf("file source: %w", err)
	}
	br := bufio.NewReader(rc)
	conv, err := s.converterFor(br)
	if err != nil {
		rc.Close()
		return fmt.Errorf("file source %s: %w", s.Path, err)
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		defer rc.Close()
		err := s.pump(ctx, br, conv, sink)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Warnw("file source stopped with error", "path", s.Path, "err", err)
		}
		sink.EndOfStream()
	}()
	logging.Infow("capture started", append(logging.SourceFields("file", s.format.SampleRate, s.format.Channels), "path", s.Path, "realtime", s.Realtime)...)
	return nil
}

// converterFor reads a WAV header when the stream starts with RIFF.
func (s *FileSource) converterFor(br *bufio.Reader) (*converter, error) {
	magic, err := br.Peek(4)
	if err == nil && bytes.Equal(magic, []byte("RIFF")) {
		wf, err := audio.ReadWAVHeader(br)
		if err != nil {
			return nil, err
		}
		return newConverter(wf.SampleRate, wf.Channels, s.format)
	}
	return newConverter(s.format.SampleRate, s.format.Channels, s.format)
}

func (s *FileSource) pump(ctx context.Context, r io.Reader, conv *converter, sink Sink) error {
	block := make([]byte, conv.inputBytes())
	var ticker *time.Ticker
	if s.Realtime {
		ticker = time.NewTicker(audio.Duration(s.format.chunkBytes(), s.format.SampleRate, s.format.Channels))
		defer ticker.Stop()
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.ReadFull(r, block)
		if n > 0 {
			// drop a trailing partial sample
			n -= n % (audio.BytesPerSample * conv.fromChannels)
			pcm, cerr := conv.convert(append([]byte(nil), block[:n]...))
			if cerr != nil {
				return cerr
			}
			if len(pcm) > 0 {
				sink.OnAudioFrame(pcm)
			}
		}
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		case err != nil:
			return err
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}

// Wait blocks until the input is exhausted or the source is stopped.
func (s *FileSource) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *FileSource) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
