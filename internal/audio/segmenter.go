package audio

import (
	"fmt"
	"slices"
)

var (
	validSampleRates = []int{8000, 16000, 32000, 48000}
	validFrameMs     = []int{10, 20, 30}
)

const (
	triggerRatio = 0.6
	releaseRatio = 0.8
)

// SegmenterConfig configures voice activity segmentation.
type SegmenterConfig struct {
	SampleRate     int
	FrameMs        int
	PaddingMs      int
	Aggressiveness int
	// MaxUtteranceMs cuts an utterance that runs this long without a pause.
	// Zero disables the cut.
	MaxUtteranceMs int
}

type decision struct {
	frame  []byte
	speech bool
}

// Segmenter turns a PCM16 byte stream into utterances. It keeps a window of
// the last K frame decisions (K = PaddingMs / FrameMs); it starts an
// utterance when more than 60% of the window is voiced and ends it once
// more than 80% is unvoiced. Not safe for concurrent use.
type Segmenter struct {
	classifier FrameClassifier
	sampleRate int
	frameBytes int
	k          int
	maxBytes   int

	window []decision
	head   int
	count  int
	voiced int

	triggered bool
	utterance []byte
	carry     []byte

	dropped uint64
}

// NewSegmenter validates cfg and builds a segmenter. A nil classifier selects
// the energy classifier for cfg.Aggressiveness.
func NewSegmenter(cfg SegmenterConfig, classifier FrameClassifier) (*Segmenter, error) {
	if !slices.Contains(validSampleRates, cfg.SampleRate) {
		return nil, fmt.Errorf("%w: sample rate %d not in %v", ErrInvalidConfig, cfg.SampleRate, validSampleRates)
	}
	if !slices.Contains(validFrameMs, cfg.FrameMs) {
		return nil, fmt.Errorf("%w: frame duration %dms not in %v", ErrInvalidConfig, cfg.FrameMs, validFrameMs)
	}
	if cfg.Aggressiveness < 0 || cfg.Aggressiveness > 3 {
		return nil, fmt.Errorf("%w: vad aggressiveness %d not in 0..3", ErrInvalidConfig, cfg.Aggressiveness)
	}
	k := cfg.PaddingMs / cfg.FrameMs
	if k <= 0 {
		return nil, fmt.Errorf("%w: padding %dms shorter than one %dms frame", ErrInvalidConfig, cfg.PaddingMs, cfg.FrameMs)
	}
	if cfg.MaxUtteranceMs < 0 {
		return nil, fmt.Errorf("%w: negative max utterance %dms", ErrInvalidConfig, cfg.MaxUtteranceMs)
	}
	if classifier == nil {
		ec, err := NewEnergyClassifier(cfg.Aggressiveness)
		if err != nil {
			return nil, err
		}
		classifier = ec
	}
	frameBytes := cfg.SampleRate * cfg.FrameMs / 1000 * BytesPerSample
	s := &Segmenter{
		classifier: classifier,
		sampleRate: cfg.SampleRate,
		frameBytes: frameBytes,
		k:          k,
		maxBytes:   cfg.MaxUtteranceMs * cfg.SampleRate / 1000 * BytesPerSample,
		window:     make([]decision, k),
		carry:      make([]byte, 0, frameBytes),
	}
	for i := range s.window {
		s.window[i].frame = make([]byte, frameBytes)
	}
	return s, nil
}

// WindowSize is K, the number of decisions kept.
func (s *Segmenter) WindowSize() int { return s.k }

// Triggered reports whether an utterance is in progress.
func (s *Segmenter) Triggered() bool { return s.triggered }

// DroppedFrames counts frames the classifier rejected.
func (s *Segmenter) DroppedFrames() uint64 { return s.dropped }

// Process feeds chunk through the state machine and returns any utterances
// completed by it, oldest first. A trailing partial frame is held back and
// completed by the next call.
func (s *Segmenter) Process(chunk []byte) [][]byte {
	var out [][]byte
	data := chunk
	if len(s.carry) > 0 {
		need := s.frameBytes - len(s.carry)
		if len(data) < need {
			s.carry = append(s.carry, data...)
			return nil
		}
		s.carry = append(s.carry, data[:need]...)
		out = s.processFrame(s.carry, out)
		s.carry = s.carry[:0]
		data = data[need:]
	}
	for len(data) >= s.frameBytes {
		out = s.processFrame(data[:s.frameBytes], out)
		data = data[s.frameBytes:]
	}
	if len(data) > 0 {
		s.carry = append(s.carry[:0], data...)
	}
	return out
}

func (s *Segmenter) processFrame(frame []byte, out [][]byte) [][]byte {
	speech, err := s.classifier.IsSpeech(frame, s.sampleRate)
	if err != nil {
		s.dropped++
		return out
	}
	if !s.triggered {
		s.push(frame, speech)
		if float64(s.voiced) > triggerRatio*float64(s.k) {
			s.triggered = true
			for i := 0; i < s.count; i++ {
				s.utterance = append(s.utterance, s.window[(s.head+i)%s.k].frame...)
			}
			s.clearWindow()
		}
		return out
	}
	s.utterance = append(s.utterance, frame...)
	s.push(frame, speech)
	unvoiced := s.count - s.voiced
	if float64(unvoiced) > releaseRatio*float64(s.k) {
		return append(out, s.finish())
	}
	if s.maxBytes > 0 && len(s.utterance) >= s.maxBytes {
		return append(out, s.finish())
	}
	return out
}

// push records a decision, evicting the oldest once K are held.
func (s *Segmenter) push(frame []byte, speech bool) {
	var idx int
	if s.count < s.k {
		idx = (s.head + s.count) % s.k
		s.count++
	} else {
		idx = s.head
		if s.window[idx].speech {
			s.voiced--
		}
		s.head = (s.head + 1) % s.k
	}
	copy(s.window[idx].frame, frame)
	s.window[idx].speech = speech
	if speech {
		s.voiced++
	}
}

func (s *Segmenter) clearWindow() {
	s.head, s.count, s.voiced = 0, 0, 0
}

func (s *Segmenter) finish() []byte {
	u := s.utterance
	s.utterance = nil
	s.triggered = false
	s.clearWindow()
	return u
}

// Flush ends the utterance in progress, if any, and returns it. The
// segmenter is left idle and any held partial frame is discarded.
func (s *Segmenter) Flush() []byte {
	s.carry = s.carry[:0]
	if !s.triggered {
		s.clearWindow()
		return nil
	}
	return s.finish()
}

// Reset discards all state, including an utterance in progress.
func (s *Segmenter) Reset() {
	s.carry = s.carry[:0]
	s.utterance = nil
	s.triggered = false
	s.clearWindow()
}
