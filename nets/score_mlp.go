// Package nets provides the neural collaborators of the training loops: a
// score network for the diffusion process and a recurrent generator with a
// learned initial hidden state for the plain GAN variant.
package nets

import (
	"math"
	"math/rand"

	"diffpcfgan/grad"
	"diffpcfgan/tensor"
)

const stepEmbedDim = 16

// ScoreMLP is a small feed-forward score network. The noisy state is
// flattened over (sequence length, feature dim), a sinusoidal embedding of
// the diffusion step is appended, and three dense layers map it back to the
// state shape.
type ScoreMLP struct {
	seqLen     int
	dimSeq     int
	totalSteps int

	w1, b1 *grad.Var
	w2, b2 *grad.Var
	w3, b3 *grad.Var
}

// NewScoreMLP builds the network with Xavier-initialized weights.
func NewScoreMLP(seqLen, dimSeq, hiddenDim, totalSteps int, rng *rand.Rand) *ScoreMLP {
	in := seqLen*dimSeq + stepEmbedDim
	out := seqLen * dimSeq
	return &ScoreMLP{
		seqLen:     seqLen,
		dimSeq:     dimSeq,
		totalSteps: totalSteps,
		w1:         xavier(rng, in, hiddenDim),
		b1:         grad.Param(tensor.New(hiddenDim)),
		w2:         xavier(rng, hiddenDim, hiddenDim),
		b2:         grad.Param(tensor.New(hiddenDim)),
		w3:         xavier(rng, hiddenDim, out),
		b3:         grad.Param(tensor.New(out)),
	}
}

// xavier initializes a (in, out) weight matrix scaled by sqrt(2/in).
func xavier(rng *rand.Rand, in, out int) *grad.Var {
	w := tensor.New(in, out)
	scale := math.Sqrt(2.0 / float64(in))
	for i := range w.Data {
		w.Data[i] = rng.NormFloat64() * scale
	}
	return grad.Param(w)
}

// Parameters returns the trainable parameter group (the generator side of
// the optimizer pair).
func (m *ScoreMLP) Parameters() []*grad.Var {
	return []*grad.Var{m.w1, m.b1, m.w2, m.b2, m.w3, m.b3}
}

// Score predicts the score of x at the given diffusion step. The output has
// the same shape as x.
func (m *ScoreMLP) Score(x *grad.Var, step int) *grad.Var {
	shape := x.Value.Shape
	batch := shape[0]
	flat := grad.Reshape(x, batch, m.seqLen*m.dimSeq)

	emb := grad.Const(m.stepEmbedding(step, batch))
	h := grad.Concat(1, flat, emb)

	h = grad.Tanh(grad.AddBias(grad.MatMul(h, m.w1), m.b1))
	h = grad.Tanh(grad.AddBias(grad.MatMul(h, m.w2), m.b2))
	out := grad.AddBias(grad.MatMul(h, m.w3), m.b3)
	return grad.Reshape(out, shape...)
}

// stepEmbedding is the usual sinusoidal embedding of the step index,
// repeated over the batch.
func (m *ScoreMLP) stepEmbedding(step, batch int) *tensor.Tensor {
	row := make([]float64, stepEmbedDim)
	t := float64(step) / float64(m.totalSteps)
	for k := 0; k < stepEmbedDim/2; k++ {
		freq := math.Pow(10000, -2*float64(k)/float64(stepEmbedDim))
		row[2*k] = math.Sin(t * freq * float64(m.totalSteps))
		row[2*k+1] = math.Cos(t * freq * float64(m.totalSteps))
	}
	out := tensor.New(batch, stepEmbedDim)
	for b := 0; b < batch; b++ {
		copy(out.Data[b*stepEmbedDim:(b+1)*stepEmbedDim], row)
	}
	return out
}
