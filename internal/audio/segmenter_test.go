package audio

import (
	"errors"
	"testing"
)

const (
	testRate       = 16000
	testFrameMs    = 30
	testFrameBytes = testRate * testFrameMs / 1000 * 2 // 960
)

// markerClassifier treats byte 0 as the speech flag and byte 1 == 0xFF as a
// malformed frame.
type markerClassifier struct{}

func (markerClassifier) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	if len(frame) != testFrameBytes {
		return false, ErrBadFrame
	}
	if frame[1] == 0xFF {
		return false, ErrBadFrame
	}
	return frame[0] == 1, nil
}

func frame(speech bool, seq byte) []byte {
	f := make([]byte, testFrameBytes)
	if speech {
		f[0] = 1
	}
	f[2] = seq
	return f
}

func frames(pattern string, startSeq byte) []byte {
	var out []byte
	for i, c := range pattern {
		out = append(out, frame(c == 'v', startSeq+byte(i))...)
	}
	return out
}

func newTestSegmenter(t *testing.T, maxMs int) *Segmenter {
	t.Helper()
	s, err := NewSegmenter(SegmenterConfig{
		SampleRate:     testRate,
		FrameMs:        testFrameMs,
		PaddingMs:      300,
		Aggressiveness: 2,
		MaxUtteranceMs: maxMs,
	}, markerClassifier{})
	if err != nil {
		t.Fatalf("NewSegmenter: %v", err)
	}
	return s
}

func TestSegmenterRejectsInvalidConfig(t *testing.T) {
	cases := []SegmenterConfig{
		{SampleRate: 44100, FrameMs: 30, PaddingMs: 300},
		{SampleRate: 16000, FrameMs: 25, PaddingMs: 300},
		{SampleRate: 16000, FrameMs: 30, PaddingMs: 300, Aggressiveness: 4},
		{SampleRate: 16000, FrameMs: 30, PaddingMs: 20},
		{SampleRate: 16000, FrameMs: 30, PaddingMs: 300, MaxUtteranceMs: -1},
	}
	for i, cfg := range cases {
		if _, err := NewSegmenter(cfg, nil); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("case %d: expected ErrInvalidConfig, got %v", i, err)
		}
	}
}

func TestSegmenterSilenceNeverTriggers(t *testing.T) {
	s := newTestSegmenter(t, 0)
	if s.WindowSize() != 10 {
		t.Fatalf("window size: want 10 got %d", s.WindowSize())
	}
	if out := s.Process(frames("ssssssssssssssssssss", 0)); len(out) != 0 {
		t.Fatalf("silence emitted %d utterances", len(out))
	}
	if s.Triggered() {
		t.Fatalf("silence triggered the segmenter")
	}
}

func TestSegmenterSeedsWithPreTriggerFrames(t *testing.T) {
	s := newTestSegmenter(t, 0)
	// 3 silent then 6 voiced: 6 voiced of 9 is not > 6
	if out := s.Process(frames("sssvvvvvv", 0)); len(out) != 0 || s.Triggered() {
		t.Fatalf("triggered too early")
	}
	// 7th voiced frame crosses 0.6*K
	s.Process(frames("v", 9))
	if !s.Triggered() {
		t.Fatalf("expected trigger after 7 voiced frames")
	}
	// 8 silent frames is not > 0.8*K
	if out := s.Process(frames("ssssssss", 10)); len(out) != 0 {
		t.Fatalf("ended too early")
	}
	out := s.Process(frames("s", 18))
	if len(out) != 1 {
		t.Fatalf("expected one utterance, got %d", len(out))
	}
	u := out[0]
	// 10 seeded frames + 9 silent trailing frames
	if len(u) != 19*testFrameBytes {
		t.Fatalf("utterance length: want %d got %d", 19*testFrameBytes, len(u))
	}
	for i := 0; i < 19; i++ {
		if seq := u[i*testFrameBytes+2]; seq != byte(i) {
			t.Fatalf("frame %d: want seq %d got %d", i, i, seq)
		}
	}
	if u[0] != 0 {
		t.Fatalf("utterance should start with the silent onset frames")
	}
	if s.Triggered() {
		t.Fatalf("segmenter should be idle after emitting")
	}
}

func TestSegmenterPauseDoesNotSplit(t *testing.T) {
	s := newTestSegmenter(t, 0)
	s.Process(frames("vvvvvvv", 0))
	// a short pause then more speech keeps one utterance open
	if out := s.Process(frames("ssssssvvvvssssss", 7)); len(out) != 0 {
		t.Fatalf("pause split the utterance")
	}
	if !s.Triggered() {
		t.Fatalf("expected to still be speaking")
	}
}

func TestSegmenterFlush(t *testing.T) {
	s := newTestSegmenter(t, 0)
	if u := s.Flush(); u != nil {
		t.Fatalf("idle flush returned %d bytes", len(u))
	}
	s.Process(frames("vvvvvvvvv", 0))
	u := s.Flush()
	if len(u) != 9*testFrameBytes {
		t.Fatalf("flush: want %d bytes got %d", 9*testFrameBytes, len(u))
	}
	if s.Triggered() {
		t.Fatalf("flush should leave the segmenter idle")
	}
	if u := s.Flush(); u != nil {
		t.Fatalf("second flush returned %d bytes", len(u))
	}
}

func TestSegmenterReset(t *testing.T) {
	s := newTestSegmenter(t, 0)
	s.Process(frames("vvvvvvvv", 0))
	s.Reset()
	if s.Triggered() {
		t.Fatalf("reset should clear trigger")
	}
	if u := s.Flush(); u != nil {
		t.Fatalf("reset should discard the utterance")
	}
}

func TestSegmenterCarriesPartialFrames(t *testing.T) {
	s := newTestSegmenter(t, 0)
	stream := frames("vvvvvvv", 0)
	for off := 0; off < len(stream); off += 500 {
		end := min(off+500, len(stream))
		s.Process(stream[off:end])
	}
	if !s.Triggered() {
		t.Fatalf("expected trigger across irregular chunks")
	}
	if u := s.Flush(); len(u) != len(stream) {
		t.Fatalf("flush: want %d bytes got %d", len(stream), len(u))
	}
}

func TestSegmenterDropsRejectedFrames(t *testing.T) {
	s := newTestSegmenter(t, 0)
	bad := frame(true, 0)
	bad[1] = 0xFF
	s.Process(frames("vvvvvv", 0))
	for i := 0; i < 3; i++ {
		s.Process(bad)
	}
	if s.Triggered() {
		t.Fatalf("rejected frames must not count toward the trigger")
	}
	if s.DroppedFrames() != 3 {
		t.Fatalf("dropped: want 3 got %d", s.DroppedFrames())
	}
	s.Process(frames("v", 6))
	if !s.Triggered() {
		t.Fatalf("expected trigger on the 7th valid voiced frame")
	}
}

func TestSegmenterMaxUtteranceCut(t *testing.T) {
	// 600ms = 20 frames
	s := newTestSegmenter(t, 600)
	var pattern string
	for i := 0; i < 40; i++ {
		pattern += "v"
	}
	out := s.Process(frames(pattern, 0))
	if len(out) != 2 {
		t.Fatalf("expected 2 cut utterances, got %d", len(out))
	}
	for i, u := range out {
		if len(u) != 20*testFrameBytes {
			t.Fatalf("utterance %d: want %d bytes got %d", i, 20*testFrameBytes, len(u))
		}
	}
}

func TestEnergyClassifier(t *testing.T) {
	c, err := NewEnergyClassifier(2)
	if err != nil {
		t.Fatalf("NewEnergyClassifier: %v", err)
	}
	silent := make([]byte, testFrameBytes)
	if speech, err := c.IsSpeech(silent, testRate); err != nil || speech {
		t.Fatalf("silent frame: speech=%v err=%v", speech, err)
	}
	loud := make([]int16, testFrameBytes/2)
	for i := range loud {
		if i%2 == 0 {
			loud[i] = 8000
		} else {
			loud[i] = -8000
		}
	}
	if speech, err := c.IsSpeech(SamplesToBytes(loud), testRate); err != nil || !speech {
		t.Fatalf("loud frame: speech=%v err=%v", speech, err)
	}
	if _, err := c.IsSpeech(make([]byte, 100), testRate); !errors.Is(err, ErrBadFrame) {
		t.Fatalf("expected ErrBadFrame, got %v", err)
	}
	if _, err := NewEnergyClassifier(7); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
