package nets

import (
	"math/rand"

	"diffpcfgan/grad"
	"diffpcfgan/tensor"
)

// SingleStateRecurrent is a vanilla recurrent generator whose initial hidden
// state is itself a trainable parameter, repeated over the batch at call
// time. Fed with i.i.d. noise at every lag, it emits a full sequence.
type SingleStateRecurrent struct {
	noiseDim   int
	hiddenSize int
	outputDim  int

	h0     *grad.Var // (1, hidden), learned
	wx, wh *grad.Var
	bh     *grad.Var
	wo, bo *grad.Var
}

// NewSingleStateRecurrent builds the generator.
func NewSingleStateRecurrent(noiseDim, hiddenSize, outputDim int, rng *rand.Rand) *SingleStateRecurrent {
	return &SingleStateRecurrent{
		noiseDim:   noiseDim,
		hiddenSize: hiddenSize,
		outputDim:  outputDim,
		h0:         grad.Param(tensor.Randn(rng, 1, hiddenSize)),
		wx:         xavier(rng, noiseDim, hiddenSize),
		wh:         xavier(rng, hiddenSize, hiddenSize),
		bh:         grad.Param(tensor.New(hiddenSize)),
		wo:         xavier(rng, hiddenSize, outputDim),
		bo:         grad.Param(tensor.New(outputDim)),
	}
}

// Parameters returns the trainable parameter group.
func (g *SingleStateRecurrent) Parameters() []*grad.Var {
	return []*grad.Var{g.h0, g.wx, g.wh, g.bh, g.wo, g.bo}
}

// Generate samples a batch of sequences of shape (batch, seqLen, outputDim).
func (g *SingleStateRecurrent) Generate(batch, seqLen int, rng *rand.Rand) *grad.Var {
	// ones @ h0 repeats the learned initial state across the batch while
	// keeping the gradient path into h0.
	ones := tensor.New(batch, 1)
	for i := range ones.Data {
		ones.Data[i] = 1
	}
	h := grad.MatMul(grad.Const(ones), g.h0)

	outs := make([]*grad.Var, 0, seqLen)
	for t := 0; t < seqLen; t++ {
		z := grad.Const(tensor.Randn(rng, batch, g.noiseDim))
		pre := grad.Add(grad.MatMul(z, g.wx), grad.MatMul(h, g.wh))
		h = grad.Tanh(grad.AddBias(pre, g.bh))
		y := grad.AddBias(grad.MatMul(h, g.wo), g.bo)
		outs = append(outs, grad.Reshape(y, batch, 1, g.outputDim))
	}
	return grad.Concat(1, outs...)
}
