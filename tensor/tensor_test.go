package tensor

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatMulAgainstHandComputation(t *testing.T) {
	a := From([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	b := From([]float64{7, 8, 9, 10, 11, 12}, 3, 2)

	c := MatMul(a, b)
	require.Equal(t, []int{2, 2}, c.Shape)
	assert.Equal(t, []float64{58, 64, 139, 154}, c.Data)

	assert.Panics(t, func() { MatMul(a, a) }, "inner dimensions must agree")
}

func TestTransposeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	x := Randn(rng, 3, 5)

	back := Transpose(Transpose(x))
	assert.Equal(t, x.Shape, back.Shape)
	assert.Equal(t, x.Data, back.Data)

	xt := Transpose(x)
	for i := 0; i < 3; i++ {
		for j := 0; j < 5; j++ {
			assert.Equal(t, x.Data[i*5+j], xt.Data[j*3+i])
		}
	}
}

func TestConcatAxis(t *testing.T) {
	a := From([]float64{1, 2, 3, 4}, 2, 2)
	b := From([]float64{5, 6, 7, 8}, 2, 2)

	rows := ConcatAxis(0, a, b)
	require.Equal(t, []int{4, 2}, rows.Shape)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, rows.Data)

	cols := ConcatAxis(1, a, b)
	require.Equal(t, []int{2, 4}, cols.Shape)
	assert.Equal(t, []float64{1, 2, 5, 6, 3, 4, 7, 8}, cols.Data)
}

func TestSliceAxisSelectsRange(t *testing.T) {
	// x[b, s, d] = 100*b + 10*s + d, so every slice is checkable by eye.
	x := New(2, 4, 3)
	for b := 0; b < 2; b++ {
		for s := 0; s < 4; s++ {
			for d := 0; d < 3; d++ {
				x.Data[(b*4+s)*3+d] = float64(100*b + 10*s + d)
			}
		}
	}

	mid := SliceAxis(x, 1, 1, 3)
	require.Equal(t, []int{2, 2, 3}, mid.Shape)
	assert.Equal(t, []float64{10, 11, 12, 20, 21, 22, 110, 111, 112, 120, 121, 122}, mid.Data)

	assert.Panics(t, func() { SliceAxis(x, 1, 3, 3) }, "empty range")
	assert.Panics(t, func() { SliceAxis(x, 1, 2, 5) }, "out of bounds")
}

func TestConcatSliceInverse(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	a := Randn(rng, 3, 2, 4)
	b := Randn(rng, 3, 5, 4)

	joined := ConcatAxis(1, a, b)
	assert.Equal(t, a.Data, SliceAxis(joined, 1, 0, 2).Data)
	assert.Equal(t, b.Data, SliceAxis(joined, 1, 2, 7).Data)
}

func TestTranspose01(t *testing.T) {
	x := New(2, 3, 2)
	for i := range x.Data {
		x.Data[i] = float64(i)
	}

	y := Transpose01(x)
	require.Equal(t, []int{3, 2, 2}, y.Shape)
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 2; k++ {
				assert.Equal(t, x.Data[(i*3+j)*2+k], y.Data[(j*2+i)*2+k])
			}
		}
	}

	back := Transpose01(y)
	assert.Equal(t, x.Data, back.Data)
}

func TestLinspace(t *testing.T) {
	l := Linspace(0, 1, 5)
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, l.Data)

	single := Linspace(3, 9, 1)
	assert.Equal(t, []float64{3}, single.Data)
}

func TestReshapePreservesDataAndChecksCount(t *testing.T) {
	x := From([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	y := x.Reshape(3, 2)
	assert.Equal(t, x.Data, y.Data)
	assert.Equal(t, []int{3, 2}, y.Shape)
	assert.Panics(t, func() { x.Reshape(4, 2) })
}

func TestCloneIsIndependent(t *testing.T) {
	x := From([]float64{1, 2}, 2)
	y := x.Clone()
	y.Data[0] = 42
	assert.Equal(t, 1.0, x.Data[0])
}

func TestElementwiseHelpers(t *testing.T) {
	a := From([]float64{1, 2, 3}, 3)
	b := From([]float64{4, 5, 6}, 3)

	assert.Equal(t, []float64{5, 7, 9}, Add(a, b).Data)
	assert.Equal(t, []float64{-3, -3, -3}, Sub(a, b).Data)
	assert.Equal(t, []float64{4, 10, 18}, Mul(a, b).Data)
	assert.Equal(t, []float64{2, 4, 6}, Scale(a, 2).Data)
	assert.Equal(t, []float64{9, 12, 15}, AddScaled(a, 2, b).Data)
	assert.Equal(t, []float64{1, 4, 9}, Apply(a, func(v float64) float64 { return v * v }).Data)
	assert.Equal(t, 6.0, Sum(a))
	assert.Equal(t, 2.0, Mean(a))
}
