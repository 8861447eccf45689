// Package dataset generates the synthetic time-series the training
// entrypoint and the tests run on.
package dataset

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"diffpcfgan/tensor"
)

// OrnsteinUhlenbeck samples (num, seqLen, dim) mean-reverting paths from
// dX = theta*(mu - X) dt + sigma dW with X0 ~ N(mu, sigma^2/(2 theta)).
func OrnsteinUhlenbeck(num, seqLen, dim int, theta, mu, sigma float64, rng *rand.Rand) *tensor.Tensor {
	const dt = 0.05
	out := tensor.New(num, seqLen, dim)
	stationaryStd := sigma / math.Sqrt(2*theta)
	for n := 0; n < num; n++ {
		for d := 0; d < dim; d++ {
			x := mu + stationaryStd*rng.NormFloat64()
			for l := 0; l < seqLen; l++ {
				out.Data[(n*seqLen+l)*dim+d] = x
				x += theta*(mu-x)*dt + sigma*math.Sqrt(dt)*rng.NormFloat64()
			}
		}
	}
	return out
}

// Sine samples (num, seqLen, dim) sinusoids with random frequency and phase.
func Sine(num, seqLen, dim int, rng *rand.Rand) *tensor.Tensor {
	out := tensor.New(num, seqLen, dim)
	for n := 0; n < num; n++ {
		for d := 0; d < dim; d++ {
			freq := 0.5 + rng.Float64()
			phase := 2 * math.Pi * rng.Float64()
			for l := 0; l < seqLen; l++ {
				out.Data[(n*seqLen+l)*dim+d] = math.Sin(freq*float64(l)/float64(seqLen)*2*math.Pi + phase)
			}
		}
	}
	return out
}

// Normalize z-scores every feature channel in place across samples and lags.
func Normalize(data *tensor.Tensor) *tensor.Tensor {
	num, seqLen, dim := data.Shape[0], data.Shape[1], data.Shape[2]
	out := data.Clone()
	channel := make([]float64, num*seqLen)
	for d := 0; d < dim; d++ {
		for i := 0; i < num*seqLen; i++ {
			channel[i] = data.Data[i*dim+d]
		}
		mean, std := stat.MeanStdDev(channel, nil)
		if std == 0 {
			std = 1
		}
		for i := 0; i < num*seqLen; i++ {
			out.Data[i*dim+d] = (channel[i] - mean) / std
		}
	}
	return out
}

// Split cuts the sample axis into a training and a validation part.
func Split(data *tensor.Tensor, trainFrac float64) (*tensor.Tensor, *tensor.Tensor) {
	num := data.Shape[0]
	cut := int(float64(num) * trainFrac)
	if cut <= 0 || cut >= num {
		cut = num - 1
	}
	train := tensor.SliceAxis(data, 0, 0, cut)
	val := tensor.SliceAxis(data, 0, cut, num)
	return train, val
}

// Batch returns the b-th batch of the sample axis, short at the end.
func Batch(data *tensor.Tensor, b, batchSize int) *tensor.Tensor {
	from := b * batchSize
	to := from + batchSize
	if to > data.Shape[0] {
		to = data.Shape[0]
	}
	return tensor.SliceAxis(data, 0, from, to)
}
