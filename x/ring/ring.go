// Package ring provides a bounded byte buffer that slides on overflow.
//
// UART drivers accumulate response bytes in a Ring until a terminator or an
// expected token shows up. When an append would exceed the capacity, the
// oldest bytes are discarded so the most recent data is always kept, in
// order.
//
// A Ring has a single owner and is not safe for concurrent use.
package ring

import "bytes"

// Ring is a power-of-two sized byte buffer with monotonic read/write indices.
type Ring struct {
	buf  []byte
	mask uint32
	rd   uint32 // oldest byte (monotonic)
	wr   uint32 // next write (monotonic)
}

// New allocates a Ring. size must be a power of two >= 2.
func New(size int) *Ring {
	if size < 2 || (size&(size-1)) != 0 {
		panic("ring: size must be power of two >= 2")
	}
	return &Ring{buf: make([]byte, size), mask: uint32(size - 1)}
}

// NewAtLeast allocates a Ring whose capacity is n rounded up to a power of two.
func NewAtLeast(n int) *Ring {
	size := 2
	for size < n {
		size <<= 1
	}
	return New(size)
}

func (r *Ring) size() uint32 { return uint32(len(r.buf)) }

// Cap returns the capacity in bytes.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of buffered bytes.
func (r *Ring) Len() int { return int(r.wr - r.rd) }

// Space returns the number of bytes that can be written without discarding.
func (r *Ring) Space() int { return int(r.size() - (r.wr - r.rd)) }

// Reset drops everything.
func (r *Ring) Reset() { r.rd, r.wr = 0, 0 }

// Write appends p. It never fails: when p does not fit, the oldest bytes are
// discarded first. It returns the number of bytes dropped.
func (r *Ring) Write(p []byte) (dropped int) {
	if len(p) == 0 {
		return 0
	}
	size := r.size()
	if uint32(len(p)) >= size {
		// Only the tail of p survives; everything buffered goes too.
		dropped = r.Len() + len(p) - int(size)
		p = p[len(p)-int(size):]
		r.rd, r.wr = 0, 0
	} else if over := len(p) - r.Space(); over > 0 {
		dropped = over
		r.rd += uint32(over)
	}

	n := uint32(len(p))
	wrIdx := r.wr & r.mask
	first := size - wrIdx
	if first > n {
		first = n
	}
	copy(r.buf[wrIdx:wrIdx+first], p[:first])
	if second := n - first; second > 0 {
		copy(r.buf[:second], p[first:])
	}
	r.wr += n
	return dropped
}

// WriteByte appends a single byte, sliding if full.
func (r *Ring) WriteByte(b byte) error {
	var one [1]byte
	one[0] = b
	r.Write(one[:])
	return nil
}

// Bytes returns an ordered copy of the buffered bytes.
func (r *Ring) Bytes() []byte {
	out := make([]byte, r.Len())
	r.peek(out)
	return out
}

// String returns the buffered bytes as a string.
func (r *Ring) String() string { return string(r.Bytes()) }

func (r *Ring) peek(dst []byte) int {
	n := uint32(len(dst))
	if avail := r.wr - r.rd; n > avail {
		n = avail
	}
	rdIdx := r.rd & r.mask
	first := r.size() - rdIdx
	if first > n {
		first = n
	}
	copy(dst[:first], r.buf[rdIdx:rdIdx+first])
	if second := n - first; second > 0 {
		copy(dst[first:n], r.buf[:second])
	}
	return int(n)
}

// Read moves up to len(p) of the oldest bytes into p.
func (r *Ring) Read(p []byte) (int, error) {
	n := r.peek(p)
	r.rd += uint32(n)
	return n, nil
}

// Discard drops up to n of the oldest bytes.
func (r *Ring) Discard(n int) {
	if n <= 0 {
		return
	}
	if n > r.Len() {
		n = r.Len()
	}
	r.rd += uint32(n)
}

// Index returns the offset of the first occurrence of token, or -1.
func (r *Ring) Index(token []byte) int {
	if len(token) == 0 {
		return 0
	}
	return bytes.Index(r.Bytes(), token)
}

// Contains reports whether token is buffered.
func (r *Ring) Contains(token string) bool {
	return r.Index([]byte(token)) >= 0
}

// ReadLine pops the oldest complete line (terminated by '\n'). The terminator
// and any trailing '\r' are stripped. ok is false when no full line is
// buffered.
func (r *Ring) ReadLine() (line []byte, ok bool) {
	i := r.Index([]byte{'\n'})
	if i < 0 {
		return nil, false
	}
	line = make([]byte, i)
	r.peek(line)
	r.rd += uint32(i + 1)
	return bytes.TrimSuffix(line, []byte{'\r'}), true
}
