package dataset

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diffpcfgan/tensor"
)

func TestOrnsteinUhlenbeckShapeAndMeanReversion(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	data := OrnsteinUhlenbeck(200, 32, 2, 2.0, 1.5, 0.3, rng)
	require.Equal(t, []int{200, 32, 2}, data.Shape)

	// Stationary init plus mean reversion keeps the overall mean near mu.
	assert.InDelta(t, 1.5, tensor.Mean(data), 0.05)
}

func TestSineStaysBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	data := Sine(50, 16, 3, rng)
	require.Equal(t, []int{50, 16, 3}, data.Shape)
	for _, v := range data.Data {
		assert.LessOrEqual(t, math.Abs(v), 1.0)
	}
}

func TestNormalizeZScoresPerChannel(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	data := OrnsteinUhlenbeck(100, 8, 2, 1.0, 5.0, 1.0, rng)

	norm := Normalize(data)
	num, seqLen, dim := data.Shape[0], data.Shape[1], data.Shape[2]
	for d := 0; d < dim; d++ {
		sum, sumSq := 0.0, 0.0
		n := float64(num * seqLen)
		for i := 0; i < num*seqLen; i++ {
			v := norm.Data[i*dim+d]
			sum += v
			sumSq += v * v
		}
		mean := sum / n
		assert.InDelta(t, 0, mean, 1e-9, "channel %d mean", d)
		assert.InDelta(t, 1, math.Sqrt((sumSq-n*mean*mean)/(n-1)), 1e-9, "channel %d std", d)
	}

	// The input is left untouched.
	assert.InDelta(t, 5.0, tensor.Mean(data), 0.2)
}

func TestNormalizeConstantChannel(t *testing.T) {
	data := tensor.New(4, 2, 1)
	for i := range data.Data {
		data.Data[i] = 7
	}
	norm := Normalize(data)
	for _, v := range norm.Data {
		assert.Equal(t, 0.0, v)
	}
}

func TestSplitAndBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	data := tensor.Randn(rng, 10, 4, 1)

	train, val := Split(data, 0.8)
	assert.Equal(t, 8, train.Shape[0])
	assert.Equal(t, 2, val.Shape[0])
	assert.Equal(t, data.Data[:8*4], train.Data)
	assert.Equal(t, data.Data[8*4:], val.Data)

	// Extreme fractions still leave one validation sample.
	train, val = Split(data, 1.0)
	assert.Equal(t, 9, train.Shape[0])
	assert.Equal(t, 1, val.Shape[0])

	full := Batch(data, 0, 4)
	assert.Equal(t, 4, full.Shape[0])
	short := Batch(data, 2, 4)
	assert.Equal(t, 2, short.Shape[0], "the trailing batch is short")
}
