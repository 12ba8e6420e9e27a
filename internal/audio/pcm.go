package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

// BytesPerSample is the width of one PCM16 sample.
const BytesPerSample = 2

// ErrInvalidConfig is returned by constructors given values they cannot run with.
var ErrInvalidConfig = errors.New("invalid audio config")

// ErrNotWAV is returned when a stream does not carry a PCM16 RIFF/WAVE header.
var ErrNotWAV = errors.New("not a pcm16 wav stream")

// BuildWAV wraps PCM16LE audio in a minimal RIFF/WAVE container.
func BuildWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)
	dataLen := uint32(len(pcm))
	riffSize := uint32(4 + (8 + 16) + (8 + dataLen))

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, riffSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataLen)
	buf.Write(pcm)
	return buf.Bytes()
}

// WAVFormat describes the fmt chunk of a PCM16 wav stream.
type WAVFormat struct {
	SampleRate int
	Channels   int
}

// ReadWAVHeader consumes the RIFF header of r up to the start of the data
// chunk, skipping any chunks in between (LIST, fact). The reader is left
// positioned at the first sample.
func ReadWAVHeader(r io.Reader) (WAVFormat, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return WAVFormat{}, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return WAVFormat{}, ErrNotWAV
	}
	var format WAVFormat
	seenFmt := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return WAVFormat{}, fmt.Errorf("%w: missing data chunk: %v", ErrNotWAV, err)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))
		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return WAVFormat{}, fmt.Errorf("%w: short fmt chunk: %v", ErrNotWAV, err)
			}
			if size < 16 {
				return WAVFormat{}, fmt.Errorf("%w: fmt chunk size %d", ErrNotWAV, size)
			}
			if tag := binary.LittleEndian.Uint16(body[0:2]); tag != 1 {
				return WAVFormat{}, fmt.Errorf("%w: audio format %d", ErrNotWAV, tag)
			}
			if bits := binary.LittleEndian.Uint16(body[14:16]); bits != 16 {
				return WAVFormat{}, fmt.Errorf("%w: %d bits per sample", ErrNotWAV, bits)
			}
			format.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			seenFmt = true
		case "data":
			if !seenFmt {
				return WAVFormat{}, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			return format, nil
		default:
			// chunks are word aligned
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return WAVFormat{}, fmt.Errorf("%w: skipping %q: %v", ErrNotWAV, id, err)
			}
		}
	}
}

// Duration returns the play time of n PCM16 bytes.
func Duration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := n / (BytesPerSample * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// SamplesToBytes encodes samples as PCM16LE.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples decodes PCM16LE. A trailing odd byte is ignored.
func BytesToSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// RMS computes the root mean square amplitude of a PCM16LE frame.
func RMS(pcm []byte) float64 {
	n := len(pcm) / BytesPerSample
	if n == 0 {
		return 0
	}
	var sumSq float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sumSq += v * v
	}
	return math.Sqrt(sumSq / float64(n))
}

// Downmix averages interleaved channels into mono.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/channels)
	for i := range out {
		var sum int32
		for c := 0; c < channels; c++ {
			sum += int32(samples[i*channels+c])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

// Decimate converts mono audio from one rate to a lower rate that divides it
// evenly, averaging each group of input samples.
func Decimate(samples []int16, fromRate, toRate int) ([]int16, error) {
	if fromRate == toRate {
		return samples, nil
	}
	if toRate <= 0 || fromRate < toRate || fromRate%toRate != 0 {
		return nil, fmt.Errorf("%w: cannot decimate %d Hz to %d Hz", ErrInvalidConfig, fromRate, toRate)
	}
	factor := fromRate / toRate
	out := make([]int16, len(samples)/factor)
	for i := range out {
		var sum int32
		for j := 0; j < factor; j++ {
			sum += int32(samples[i*factor+j])
		}
		out[i] = int16(sum / int32(factor))
	}
	return out, nil
}
