package audio

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

func TestReadWAVHeaderPositionsAtSamples(t *testing.T) {
	pcm := SamplesToBytes([]int16{1, -2, 3, -4})
	r := bytes.NewReader(BuildWAV(pcm, 16000, 1))
	format, err := ReadWAVHeader(r)
	if err != nil {
		t.Fatalf("ReadWAVHeader: %v", err)
	}
	if format.SampleRate != 16000 || format.Channels != 1 {
		t.Fatalf("unexpected format %+v", format)
	}
	rest, _ := io.ReadAll(r)
	if !bytes.Equal(rest, pcm) {
		t.Fatalf("reader not positioned at data: %v", rest)
	}
}

func TestReadWAVHeaderSkipsListChunk(t *testing.T) {
	wav := BuildWAV([]byte{9, 0}, 8000, 1)
	// splice a LIST chunk (odd length, padded) between fmt and data
	list := []byte{'L', 'I', 'S', 'T', 3, 0, 0, 0, 'a', 'b', 'c', 0}
	spliced := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)
	r := bytes.NewReader(spliced)
	if _, err := ReadWAVHeader(r); err != nil {
		t.Fatalf("ReadWAVHeader: %v", err)
	}
	rest, _ := io.ReadAll(r)
	if !bytes.Equal(rest, []byte{9, 0}) {
		t.Fatalf("unexpected samples %v", rest)
	}
}

func TestReadWAVHeaderRejectsRaw(t *testing.T) {
	if _, err := ReadWAVHeader(bytes.NewReader(make([]byte, 64))); !errors.Is(err, ErrNotWAV) {
		t.Fatalf("expected ErrNotWAV, got %v", err)
	}
}

func TestDecimateAndDownmix(t *testing.T) {
	stereo := []int16{10, 20, 30, 40, -10, -30}
	mono := Downmix(stereo, 2)
	if len(mono) != 3 || mono[0] != 15 || mono[1] != 35 || mono[2] != -20 {
		t.Fatalf("Downmix: %v", mono)
	}
	in := []int16{3, 3, 3, 6, 6, 6}
	out, err := Decimate(in, 48000, 16000)
	if err != nil {
		t.Fatalf("Decimate: %v", err)
	}
	if len(out) != 2 || out[0] != 3 || out[1] != 6 {
		t.Fatalf("Decimate: %v", out)
	}
	if _, err := Decimate(in, 44100, 16000); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestDuration(t *testing.T) {
	if d := Duration(32000, 16000, 1); d != time.Second {
		t.Fatalf("Duration: want 1s got %v", d)
	}
	if d := Duration(960, 16000, 1); d != 30*time.Millisecond {
		t.Fatalf("Duration: want 30ms got %v", d)
	}
}
