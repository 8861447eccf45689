// Package tensor provides a minimal n-dimensional float64 array and the
// numeric operations the diffusion and training code is built from.
package tensor

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Tensor is an n-dimensional float64 array stored flat in row-major order.
type Tensor struct {
	Data  []float64
	Shape []int
}

func New(shape ...int) *Tensor {
	size := 1
	for _, s := range shape {
		size *= s
	}
	return &Tensor{Data: make([]float64, size), Shape: shape}
}

func From(data []float64, shape ...int) *Tensor {
	return &Tensor{Data: data, Shape: shape}
}

func (t *Tensor) Numel() int {
	n := 1
	for _, s := range t.Shape {
		n *= s
	}
	return n
}

func (t *Tensor) Clone() *Tensor {
	d := make([]float64, len(t.Data))
	copy(d, t.Data)
	return &Tensor{Data: d, Shape: append([]int{}, t.Shape...)}
}

// Reshape returns a view with a new shape; the element count must match.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	size := 1
	for _, s := range shape {
		size *= s
	}
	if size != t.Numel() {
		panic(fmt.Sprintf("tensor: reshape %v -> %v changes element count", t.Shape, shape))
	}
	return &Tensor{Data: t.Data, Shape: shape}
}

// SameShape reports whether two tensors have identical shapes.
func SameShape(a, b *Tensor) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

// Randn fills a new tensor with standard-normal samples from rng.
func Randn(rng *rand.Rand, shape ...int) *Tensor {
	out := New(shape...)
	for i := range out.Data {
		out.Data[i] = rng.NormFloat64()
	}
	return out
}

// Linspace returns n evenly spaced values from start to stop inclusive.
func Linspace(start, stop float64, n int) *Tensor {
	out := New(n)
	if n == 1 {
		out.Data[0] = start
		return out
	}
	step := (stop - start) / float64(n-1)
	for i := 0; i < n; i++ {
		out.Data[i] = start + float64(i)*step
	}
	return out
}

// --- Element-wise operations ---

func Add(a, b *Tensor) *Tensor {
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	return out
}

func Sub(a, b *Tensor) *Tensor {
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] - b.Data[i]
	}
	return out
}

func Mul(a, b *Tensor) *Tensor {
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] * b.Data[i]
	}
	return out
}

func Scale(x *Tensor, s float64) *Tensor {
	out := New(x.Shape...)
	for i := range x.Data {
		out.Data[i] = x.Data[i] * s
	}
	return out
}

// AddScaled computes a + s*b without allocating an intermediate.
func AddScaled(a *Tensor, s float64, b *Tensor) *Tensor {
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] + s*b.Data[i]
	}
	return out
}

// Apply maps f over every element into a new tensor.
func Apply(x *Tensor, f func(float64) float64) *Tensor {
	out := New(x.Shape...)
	for i, v := range x.Data {
		out.Data[i] = f(v)
	}
	return out
}

func Sum(x *Tensor) float64 {
	s := 0.0
	for _, v := range x.Data {
		s += v
	}
	return s
}

func Mean(x *Tensor) float64 {
	return Sum(x) / float64(x.Numel())
}

// --- Matrix operations ---

// MatMul computes c = a @ b for 2D tensors, a: [m, k], b: [k, n] -> [m, n].
// Delegates to gonum's BLAS-backed dense multiply.
func MatMul(a, b *Tensor) *Tensor {
	m, k := a.Shape[0], a.Shape[1]
	k2, n := b.Shape[0], b.Shape[1]
	if k != k2 {
		panic(fmt.Sprintf("tensor: matmul inner dims %d != %d", k, k2))
	}
	am := mat.NewDense(m, k, a.Data)
	bm := mat.NewDense(k2, n, b.Data)
	out := New(m, n)
	cm := mat.NewDense(m, n, out.Data)
	cm.Mul(am, bm)
	return out
}

// Transpose returns the transpose of a 2D tensor.
func Transpose(x *Tensor) *Tensor {
	r, c := x.Shape[0], x.Shape[1]
	out := New(c, r)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Data[j*r+i] = x.Data[i*c+j]
		}
	}
	return out
}

// --- Structural operations ---

// ConcatAxis concatenates a and b along the given axis. All other axes must
// agree.
func ConcatAxis(axis int, a, b *Tensor) *Tensor {
	if len(a.Shape) != len(b.Shape) {
		panic("tensor: concat rank mismatch")
	}
	outShape := append([]int{}, a.Shape...)
	outShape[axis] += b.Shape[axis]

	outer := 1
	for i := 0; i < axis; i++ {
		outer *= a.Shape[i]
	}
	inner := 1
	for i := axis + 1; i < len(a.Shape); i++ {
		inner *= a.Shape[i]
	}

	out := New(outShape...)
	aBlock := a.Shape[axis] * inner
	bBlock := b.Shape[axis] * inner
	for o := 0; o < outer; o++ {
		copy(out.Data[o*(aBlock+bBlock):], a.Data[o*aBlock:(o+1)*aBlock])
		copy(out.Data[o*(aBlock+bBlock)+aBlock:], b.Data[o*bBlock:(o+1)*bBlock])
	}
	return out
}

// SliceAxis returns the [from, to) range of x along the given axis as a copy.
func SliceAxis(x *Tensor, axis, from, to int) *Tensor {
	if from < 0 || to > x.Shape[axis] || from >= to {
		panic(fmt.Sprintf("tensor: slice [%d:%d) out of range for axis %d of %v", from, to, axis, x.Shape))
	}
	outShape := append([]int{}, x.Shape...)
	outShape[axis] = to - from

	outer := 1
	for i := 0; i < axis; i++ {
		outer *= x.Shape[i]
	}
	inner := 1
	for i := axis + 1; i < len(x.Shape); i++ {
		inner *= x.Shape[i]
	}

	out := New(outShape...)
	srcBlock := x.Shape[axis] * inner
	dstBlock := (to - from) * inner
	for o := 0; o < outer; o++ {
		copy(out.Data[o*dstBlock:(o+1)*dstBlock], x.Data[o*srcBlock+from*inner:o*srcBlock+to*inner])
	}
	return out
}

// Transpose01 swaps the first two axes of a tensor of rank >= 2.
func Transpose01(x *Tensor) *Tensor {
	d0, d1 := x.Shape[0], x.Shape[1]
	inner := 1
	for i := 2; i < len(x.Shape); i++ {
		inner *= x.Shape[i]
	}
	outShape := append([]int{}, x.Shape...)
	outShape[0], outShape[1] = d1, d0
	out := New(outShape...)
	for i := 0; i < d0; i++ {
		for j := 0; j < d1; j++ {
			copy(out.Data[(j*d0+i)*inner:(j*d0+i+1)*inner], x.Data[(i*d1+j)*inner:(i*d1+j+1)*inner])
		}
	}
	return out
}
