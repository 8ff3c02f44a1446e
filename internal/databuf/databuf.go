// Package databuf implements a growable byte buffer whose capacity is
// always a power of two, amortizing the resize cost of appending bytes
// read one at a time — the manifest reader's main use case when it
// scans a NUL-terminated path of unknown length.
package databuf

const minCapacity = 256

// Buffer is a growable byte buffer with capacity always a power of
// two >= minCapacity.
type Buffer struct {
	data []byte
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{data: make([]byte, 0, minCapacity)}
}

// Len returns the number of bytes currently stored.
func (b *Buffer) Len() int { return len(b.data) }

// Cap returns the current backing capacity.
func (b *Buffer) Cap() int { return cap(b.data) }

// Bytes returns the buffer's contents. The slice is valid until the
// next call to Append/AppendByte/Reset.
func (b *Buffer) Bytes() []byte { return b.data }

// Reset empties the buffer without releasing its backing array.
func (b *Buffer) Reset() { b.data = b.data[:0] }

// Append appends p to the buffer, growing capacity to the next power
// of two when needed.
func (b *Buffer) Append(p []byte) {
	b.grow(len(p))
	b.data = append(b.data, p...)
}

// AppendByte appends a single byte, growing capacity to the next
// power of two when needed.
func (b *Buffer) AppendByte(c byte) {
	b.grow(1)
	b.data = append(b.data, c)
}

func (b *Buffer) grow(n int) {
	need := len(b.data) + n
	if need <= cap(b.data) {
		return
	}
	newCap := nextPowerOfTwo(need)
	grown := make([]byte, len(b.data), newCap)
	copy(grown, b.data)
	b.data = grown
}

func nextPowerOfTwo(n int) int {
	c := minCapacity
	for c < n {
		c <<= 1
	}
	return c
}
