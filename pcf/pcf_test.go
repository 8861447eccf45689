package pcf

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diffpcfgan/grad"
	"diffpcfgan/tensor"
)

func newTestDiscriminator(t *testing.T, inputSize int) *Discriminator {
	t.Helper()
	return NewDiscriminator(4, 3, inputSize, rand.New(rand.NewSource(1)))
}

func TestDistanceZeroOnIdenticalPaths(t *testing.T) {
	d := newTestDiscriminator(t, 2)
	rng := rand.New(rand.NewSource(2))
	paths := grad.Const(tensor.Randn(rng, 8, 5, 2))

	dist, err := d.DistanceMeasure(paths, paths, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 0, dist.Scalar(), 1e-12)
}

func TestDistanceSeparatesShiftedDistributions(t *testing.T) {
	d := newTestDiscriminator(t, 2)
	rng := rand.New(rand.NewSource(3))
	real := tensor.Randn(rng, 32, 5, 2)
	fake := tensor.Apply(tensor.Randn(rng, 32, 5, 2), func(v float64) float64 { return v + 2 })

	dist, err := d.DistanceMeasure(grad.Const(real), grad.Const(fake), 0)
	require.NoError(t, err)
	assert.Greater(t, dist.Scalar(), 0.01, "shifted distributions must be far apart")
}

func TestDistanceShapeMismatch(t *testing.T) {
	d := newTestDiscriminator(t, 2)
	rng := rand.New(rand.NewSource(4))

	tests := []struct {
		name       string
		real, fake *tensor.Tensor
	}{
		{"rank", tensor.Randn(rng, 8, 10), tensor.Randn(rng, 8, 5, 2)},
		{"steps", tensor.Randn(rng, 8, 5, 2), tensor.Randn(rng, 8, 4, 2)},
		{"features", tensor.Randn(rng, 8, 5, 2), tensor.Randn(rng, 8, 5, 3)},
		{"discriminator input size", tensor.Randn(rng, 8, 5, 3), tensor.Randn(rng, 8, 5, 3)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.DistanceMeasure(grad.Const(tc.real), grad.Const(tc.fake), 0)
			assert.ErrorIs(t, err, ErrShapeMismatch)
		})
	}
}

func TestDistanceAllowsDifferentBatchSizes(t *testing.T) {
	d := newTestDiscriminator(t, 2)
	rng := rand.New(rand.NewSource(5))

	dist, err := d.DistanceMeasure(
		grad.Const(tensor.Randn(rng, 8, 5, 2)),
		grad.Const(tensor.Randn(rng, 16, 5, 2)),
		0.1,
	)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, dist.Scalar(), 0.0)
}

func TestGradientFlowsIntoFrequencyBank(t *testing.T) {
	d := newTestDiscriminator(t, 2)
	rng := rand.New(rand.NewSource(6))

	dist, err := d.DistanceMeasure(
		grad.Const(tensor.Randn(rng, 8, 5, 2)),
		grad.Const(tensor.Randn(rng, 8, 5, 2)),
		0,
	)
	require.NoError(t, err)

	dist.Backward()
	require.NotNil(t, d.W.Grad, "the frequency bank must be trainable")
	nonZero := false
	for _, g := range d.W.Grad.Data {
		if g != 0 {
			nonZero = true
			break
		}
	}
	assert.True(t, nonZero)
}

func TestGradientFlowsIntoFakePaths(t *testing.T) {
	d := newTestDiscriminator(t, 2)
	rng := rand.New(rand.NewSource(7))
	fake := grad.Param(tensor.Randn(rng, 8, 5, 2))

	dist, err := d.DistanceMeasure(grad.Const(tensor.Randn(rng, 8, 5, 2)), fake, 0.1)
	require.NoError(t, err)

	dist.Backward()
	require.NotNil(t, fake.Grad)
	assert.Len(t, fake.Grad.Data, fake.Value.Numel())
}

func TestFrequencyBankInitIsOrthonormal(t *testing.T) {
	d := NewDiscriminator(2, 3, 4, rand.New(rand.NewSource(8)))
	w := d.W.Value
	require.Equal(t, []int{6, 4}, w.Shape)

	// Columns of a thin-QR Q factor are orthonormal: W^T W = I (4x4).
	wtw := tensor.MatMul(tensor.Transpose(w), w)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, wtw.Data[i*4+j], 1e-10, "(%d,%d)", i, j)
		}
	}
}

func TestParametersExposesBank(t *testing.T) {
	d := newTestDiscriminator(t, 2)
	params := d.Parameters()
	require.Len(t, params, 1)
	assert.Same(t, d.W, params[0])
}
