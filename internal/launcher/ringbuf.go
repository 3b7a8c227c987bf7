package launcher

import "sync"

// RingBuffer is a bounded byte accumulator keeping the last N bytes written.
// Captured process output goes through one of these so a noisy or
// long-running backend can never grow the supervisor's memory.
type RingBuffer struct {
	mu      sync.Mutex
	buf     []byte
	w       int
	wrapped bool
}

// NewRingBuffer returns a ring holding at most capacity bytes.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 8192
	}
	return &RingBuffer{buf: make([]byte, capacity)}
}

// Write implements io.Writer. It never fails; old bytes are overwritten.
func (r *RingBuffer) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(p)
	if n >= len(r.buf) {
		copy(r.buf, p[n-len(r.buf):])
		r.w = 0
		r.wrapped = true
		return n, nil
	}
	c := copy(r.buf[r.w:], p)
	if c < n {
		copy(r.buf, p[c:])
		r.wrapped = true
	}
	r.w = (r.w + n) % len(r.buf)
	if r.w < c && !r.wrapped {
		r.wrapped = true
	}
	return n, nil
}

// Bytes returns a copy of the retained bytes in write order.
func (r *RingBuffer) Bytes() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.wrapped {
		out := make([]byte, r.w)
		copy(out, r.buf[:r.w])
		return out
	}
	out := make([]byte, len(r.buf))
	n := copy(out, r.buf[r.w:])
	copy(out[n:], r.buf[:r.w])
	return out
}

// Len reports the number of retained bytes.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wrapped {
		return len(r.buf)
	}
	return r.w
}
