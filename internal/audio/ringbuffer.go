package audio

import (
	"fmt"
	"sync"
)

// RingBuffer keeps the most recent maxSeconds of PCM16 audio. Appends evict
// the oldest bytes once the buffer is full. All methods are safe for
// concurrent use; reads copy out under the lock.
type RingBuffer struct {
	mu         sync.Mutex
	buf        []byte
	start      int
	size       int
	sampleRate int
	channels   int
}

// NewRingBuffer sizes the buffer as maxSeconds × sampleRate × channels × 2
// bytes. A configuration that yields zero capacity is rejected.
func NewRingBuffer(maxSeconds float64, sampleRate, channels int) (*RingBuffer, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("%w: ring buffer sample_rate=%d channels=%d", ErrInvalidConfig, sampleRate, channels)
	}
	capacity := int(maxSeconds * float64(sampleRate*channels*BytesPerSample))
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: ring buffer capacity is zero (max_seconds=%v)", ErrInvalidConfig, maxSeconds)
	}
	return &RingBuffer{
		buf:        make([]byte, capacity),
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// Append adds p to the tail of the buffer.
func (r *RingBuffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	capacity := len(r.buf)
	if len(p) >= capacity {
		copy(r.buf, p[len(p)-capacity:])
		r.start = 0
		r.size = capacity
		return
	}
	end := (r.start + r.size) % capacity
	n := copy(r.buf[end:], p)
	if n < len(p) {
		copy(r.buf, p[n:])
	}
	r.size += len(p)
	if r.size > capacity {
		r.start = (r.start + r.size - capacity) % capacity
		r.size = capacity
	}
}

// LastSeconds returns the newest seconds worth of audio, clamped to what is
// stored, oldest byte first.
func (r *RingBuffer) LastSeconds(seconds float64) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := int(seconds * float64(r.bytesPerSecond()))
	if want < 0 {
		want = 0
	}
	return r.tailLocked(want)
}

// Bytes returns everything currently stored.
func (r *RingBuffer) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tailLocked(r.size)
}

func (r *RingBuffer) tailLocked(n int) []byte {
	if n > r.size {
		n = r.size
	}
	out := make([]byte, n)
	if n == 0 {
		return out
	}
	capacity := len(r.buf)
	from := (r.start + r.size - n) % capacity
	copied := copy(out, r.buf[from:min(from+n, capacity)])
	if copied < n {
		copy(out[copied:], r.buf[:n-copied])
	}
	return out
}

// Clear empties the buffer without releasing its storage.
func (r *RingBuffer) Clear() {
	r.mu.Lock()
	r.start, r.size = 0, 0
	r.mu.Unlock()
}

func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *RingBuffer) Capacity() int { return len(r.buf) }

// DurationSeconds reports how much audio is stored.
func (r *RingBuffer) DurationSeconds() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return float64(r.size) / float64(r.bytesPerSecond())
}

func (r *RingBuffer) IsFull() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size == len(r.buf)
}

func (r *RingBuffer) bytesPerSecond() int {
	return r.sampleRate * r.channels * BytesPerSample
}
