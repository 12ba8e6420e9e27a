package audio

import (
	"errors"
	"fmt"
)

// FrameClassifier decides whether one exact-length PCM16 frame holds speech.
type FrameClassifier interface {
	IsSpeech(frame []byte, sampleRate int) (bool, error)
}

// ErrBadFrame is returned by classifiers for frames they cannot judge.
var ErrBadFrame = errors.New("invalid frame")

// energyThresholds maps aggressiveness 0..3 to a normalized RMS level.
// Higher aggressiveness needs louder frames before calling them speech.
var energyThresholds = [...]float64{0.006, 0.010, 0.015, 0.025}

// EnergyClassifier is a stateless RMS energy detector. Hysteresis lives in
// the Segmenter, so each frame is judged on its own.
type EnergyClassifier struct {
	threshold float64
}

// NewEnergyClassifier returns a classifier tuned for the given aggressiveness.
func NewEnergyClassifier(aggressiveness int) (*EnergyClassifier, error) {
	if aggressiveness < 0 || aggressiveness >= len(energyThresholds) {
		return nil, fmt.Errorf("%w: vad aggressiveness %d not in 0..3", ErrInvalidConfig, aggressiveness)
	}
	return &EnergyClassifier{threshold: energyThresholds[aggressiveness]}, nil
}

// IsSpeech accepts 10, 20 or 30 ms frames.
func (c *EnergyClassifier) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	if !validFrameLength(len(frame), sampleRate) {
		return false, fmt.Errorf("%w: %d bytes at %d Hz", ErrBadFrame, len(frame), sampleRate)
	}
	return RMS(frame)/32768.0 >= c.threshold, nil
}

func validFrameLength(n, sampleRate int) bool {
	for _, ms := range validFrameMs {
		if n == sampleRate*ms/1000*BytesPerSample {
			return true
		}
	}
	return false
}
