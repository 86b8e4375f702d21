// Package bitmap implements the fixed-size bit sets used as per-call
// bookkeeping by the placement engine. Small maps live in an inline array;
// larger ones are backed by a bitset.BitSet.
package bitmap

import (
	"math/bits"

	"github.com/bits-and-blooms/bitset"
)

const inlineWords = 4

// Bitmap is a fixed-size set of bits indexed from zero. The zero value is an
// empty map of size zero.
type Bitmap struct {
	size   int
	inline [inlineWords]uint64
	heap   *bitset.BitSet
}

// New returns a cleared bitmap able to hold n bits.
func New(n int) *Bitmap {
	b := &Bitmap{}
	b.Reset(n)
	return b
}

// Reset resizes the bitmap to n bits and clears it, reusing storage when the
// size is unchanged.
func (b *Bitmap) Reset(n int) {
	if n < 0 {
		n = 0
	}
	b.size = n
	if (n+63)/64 <= inlineWords {
		b.heap = nil
		b.inline = [inlineWords]uint64{}
		return
	}
	if b.heap != nil && b.heap.Len() == uint(n) {
		b.heap.ClearAll()
		return
	}
	b.heap = bitset.New(uint(n))
}

// Len returns the number of addressable bits.
func (b *Bitmap) Len() int {
	return b.size
}

// Inline reports whether the bitmap fits in its inline storage.
func (b *Bitmap) Inline() bool {
	return b.heap == nil
}

func (b *Bitmap) Set(i int) {
	if i < 0 || i >= b.size {
		return
	}
	if b.heap != nil {
		b.heap.Set(uint(i))
		return
	}
	b.inline[i>>6] |= 1 << (uint(i) & 63)
}

func (b *Bitmap) Clear(i int) {
	if i < 0 || i >= b.size {
		return
	}
	if b.heap != nil {
		b.heap.Clear(uint(i))
		return
	}
	b.inline[i>>6] &^= 1 << (uint(i) & 63)
}

// IsSet reports whether bit i is set. Out of range bits read as clear.
func (b *Bitmap) IsSet(i int) bool {
	if i < 0 || i >= b.size {
		return false
	}
	if b.heap != nil {
		return b.heap.Test(uint(i))
	}
	return b.inline[i>>6]&(1<<(uint(i)&63)) != 0
}

// IsSetRange reports whether every bit in [start, end] is set.
func (b *Bitmap) IsSetRange(start, end int) bool {
	for i := start; i <= end; i++ {
		if !b.IsSet(i) {
			return false
		}
	}
	return true
}

// ClearRange clears every bit in [start, end].
func (b *Bitmap) ClearRange(start, end int) {
	for i := start; i <= end; i++ {
		b.Clear(i)
	}
}

// Count returns the number of set bits.
func (b *Bitmap) Count() int {
	if b.heap != nil {
		return int(b.heap.Count())
	}
	n := 0
	for _, w := range b.inline {
		n += bits.OnesCount64(w)
	}
	return n
}

// CopyFrom makes b an exact copy of src.
func (b *Bitmap) CopyFrom(src *Bitmap) {
	b.size = src.size
	b.inline = src.inline
	if src.heap == nil {
		b.heap = nil
		return
	}
	if b.heap != nil && b.heap.Len() == src.heap.Len() {
		src.heap.Copy(b.heap)
		return
	}
	b.heap = src.heap.Clone()
}

// Clone returns an independent copy.
func (b *Bitmap) Clone() *Bitmap {
	c := &Bitmap{}
	c.CopyFrom(b)
	return c
}

// Equal reports whether both maps have the same size and bits.
func (b *Bitmap) Equal(o *Bitmap) bool {
	if b.size != o.size {
		return false
	}
	if b.heap != nil {
		return b.heap.Equal(o.heap)
	}
	return b.inline == o.inline
}
