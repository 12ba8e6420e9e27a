package audio

import (
	"bytes"
	"errors"
	"math/rand"
	"sync"
	"testing"
)

func TestRingBufferRejectsZeroCapacity(t *testing.T) {
	if _, err := NewRingBuffer(0, 16000, 1); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewRingBuffer(1, 0, 1); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for zero rate, got %v", err)
	}
}

func TestRingBufferKeepsNewestBytes(t *testing.T) {
	// 1s at 8 Hz mono = 16 bytes
	rb, err := NewRingBuffer(1, 8, 1)
	if err != nil {
		t.Fatalf("NewRingBuffer: %v", err)
	}
	if rb.Capacity() != 16 {
		t.Fatalf("capacity: want 16 got %d", rb.Capacity())
	}
	rng := rand.New(rand.NewSource(7))
	var all []byte
	for i := 0; i < 200; i++ {
		chunk := make([]byte, rng.Intn(40))
		rng.Read(chunk)
		rb.Append(chunk)
		all = append(all, chunk...)
		if rb.Len() > rb.Capacity() {
			t.Fatalf("len %d exceeds capacity %d", rb.Len(), rb.Capacity())
		}
		want := all
		if len(want) > 16 {
			want = want[len(want)-16:]
		}
		if got := rb.Bytes(); !bytes.Equal(got, want) {
			t.Fatalf("iteration %d: contents mismatch\nwant=%v\ngot =%v", i, want, got)
		}
	}
}

func TestRingBufferLastSeconds(t *testing.T) {
	rb, err := NewRingBuffer(2, 8, 1) // 32 bytes, 16 bytes per second
	if err != nil {
		t.Fatalf("NewRingBuffer: %v", err)
	}
	data := make([]byte, 20)
	for i := range data {
		data[i] = byte(i)
	}
	rb.Append(data)

	if got := rb.LastSeconds(0.5); !bytes.Equal(got, data[12:]) {
		t.Fatalf("LastSeconds(0.5): want %v got %v", data[12:], got)
	}
	if got := rb.LastSeconds(1); !bytes.Equal(got, data[4:]) {
		t.Fatalf("LastSeconds(1): want %v got %v", data[4:], got)
	}
	// clamped to what is stored
	if got := rb.LastSeconds(10); !bytes.Equal(got, data) {
		t.Fatalf("LastSeconds(10): want all %d bytes, got %d", len(data), len(got))
	}
	if got := rb.LastSeconds(0); len(got) != 0 {
		t.Fatalf("LastSeconds(0): want empty, got %d bytes", len(got))
	}
	if d := rb.DurationSeconds(); d != 1.25 {
		t.Fatalf("DurationSeconds: want 1.25 got %v", d)
	}
	if rb.IsFull() {
		t.Fatalf("buffer should not be full")
	}
	rb.Append(make([]byte, 12))
	if !rb.IsFull() {
		t.Fatalf("buffer should be full")
	}
	rb.Clear()
	if rb.Len() != 0 || len(rb.Bytes()) != 0 {
		t.Fatalf("Clear left %d bytes", rb.Len())
	}
}

func TestRingBufferOversizedAppend(t *testing.T) {
	rb, _ := NewRingBuffer(1, 4, 1) // 8 bytes
	rb.Append([]byte{1, 2, 3})
	big := []byte{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}
	rb.Append(big)
	if got := rb.Bytes(); !bytes.Equal(got, big[2:]) {
		t.Fatalf("want %v got %v", big[2:], got)
	}
}

func TestRingBufferConcurrentReaders(t *testing.T) {
	rb, _ := NewRingBuffer(1, 16000, 1)
	frame := bytes.Repeat([]byte{0xAB}, 960)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			rb.Append(frame)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			snap := rb.LastSeconds(0.5)
			for _, b := range snap {
				if b != 0xAB {
					t.Errorf("torn read: byte %x", b)
					return
				}
			}
		}
	}()
	wg.Wait()
}
