// Package smallvec provides a vector that keeps its first few elements in an
// inline array and only allocates once it grows past that.
package smallvec

// InlineCap is the number of elements stored without a heap allocation.
const InlineCap = 8

// Vec is an append-only vector with inline storage. The zero value is ready
// to use. A Vec must not be copied after the first Append.
type Vec[T any] struct {
	inline [InlineCap]T
	n      int
	heap   []T
}

// WithCapacity returns a vector that has already reserved room for n
// elements; the heap is only used when n exceeds InlineCap.
func WithCapacity[T any](n int) *Vec[T] {
	v := &Vec[T]{}
	if n > InlineCap {
		v.heap = make([]T, 0, n)
	}
	return v
}

func (v *Vec[T]) Append(x T) {
	if v.heap == nil && v.n < InlineCap {
		v.inline[v.n] = x
		v.n++
		return
	}
	if v.heap == nil {
		v.heap = make([]T, 0, 2*InlineCap)
	}
	if len(v.heap) == 0 && v.n > 0 {
		v.heap = append(v.heap, v.inline[:v.n]...)
	}
	v.heap = append(v.heap, x)
	v.n++
}

func (v *Vec[T]) Len() int {
	return v.n
}

// Spilled reports whether the elements moved to the heap.
func (v *Vec[T]) Spilled() bool {
	return v.heap != nil && len(v.heap) > 0
}

func (v *Vec[T]) At(i int) T {
	return v.Slice()[i]
}

func (v *Vec[T]) Set(i int, x T) {
	v.Slice()[i] = x
}

// Slice returns the elements. The slice aliases the vector storage.
func (v *Vec[T]) Slice() []T {
	if v.Spilled() {
		return v.heap
	}
	return v.inline[:v.n]
}
