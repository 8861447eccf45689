// Package pcf implements the path characteristic-function discriminator
// distance: a learned metric between empirical distributions of paths, used
// as the adversarial objective. The generator minimizes it, the discriminator
// maximizes it by adapting the frequency bank.
package pcf

import (
	"errors"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"diffpcfgan/grad"
	"diffpcfgan/tensor"
)

// ErrShapeMismatch indicates the two path tensors cannot be compared.
var ErrShapeMismatch = errors.New("pcf: real and fake paths have incompatible shapes")

// Discriminator compares two batches of paths of shape (batch, steps, features)
// through their empirical characteristic functions under a learned frequency
// bank W of shape (numSamples*hiddenDim, features). Both the real and the
// fake side flow through the same graph, so gradients are available for the
// generator (through the fake paths) and for the discriminator (through W)
// independently.
type Discriminator struct {
	W *grad.Var

	numSamples int
	hiddenDim  int
	inputSize  int
}

// NewDiscriminator initializes the frequency bank with orthonormal columns
// (QR of a Gaussian matrix) so the initial frequencies are well spread.
func NewDiscriminator(numSamples, hiddenDim, inputSize int, rng *rand.Rand) *Discriminator {
	m := numSamples * hiddenDim
	raw := mat.NewDense(m, inputSize, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < inputSize; j++ {
			raw.Set(i, j, rng.NormFloat64())
		}
	}

	var qr mat.QR
	qr.Factorize(raw)
	var q mat.Dense
	qr.QTo(&q)

	w := tensor.New(m, inputSize)
	for i := 0; i < m; i++ {
		for j := 0; j < inputSize; j++ {
			w.Data[i*inputSize+j] = q.At(i, j)
		}
	}

	return &Discriminator{
		W:          grad.Param(w),
		numSamples: numSamples,
		hiddenDim:  hiddenDim,
		inputSize:  inputSize,
	}
}

// Parameters returns the trainable parameter group.
func (d *Discriminator) Parameters() []*grad.Var { return []*grad.Var{d.W} }

// DistanceMeasure computes the characteristic-function distance between real
// and fake paths of shape (batch, steps, features). Batches may differ in
// size; step count and feature dimension must match. lambda weighs an
// additional expected-path (batch mean) penalty.
func (d *Discriminator) DistanceMeasure(real, fake *grad.Var, lambda float64) (*grad.Var, error) {
	rs, fs := real.Value.Shape, fake.Value.Shape
	if len(rs) != 3 || len(fs) != 3 || rs[1] != fs[1] || rs[2] != fs[2] {
		return nil, fmt.Errorf("%w: %v vs %v", ErrShapeMismatch, rs, fs)
	}
	if rs[2] != d.inputSize {
		return nil, fmt.Errorf("%w: feature dim %d, discriminator expects %d", ErrShapeMismatch, rs[2], d.inputSize)
	}

	steps := rs[1]

	var total *grad.Var
	for s := 0; s < steps; s++ {
		phiReR, phiImR := d.charFn(real, s)
		phiReF, phiImF := d.charFn(fake, s)

		diff := grad.Add(grad.Square(grad.Sub(phiReR, phiReF)), grad.Square(grad.Sub(phiImR, phiImF)))
		stepDist := grad.Mean(diff)

		if lambda != 0 {
			meanR := grad.MeanAxis0(grad.Reshape(grad.SliceAxis(real, 1, s, s+1), rs[0], rs[2]))
			meanF := grad.MeanAxis0(grad.Reshape(grad.SliceAxis(fake, 1, s, s+1), fs[0], fs[2]))
			stepDist = grad.Add(stepDist, grad.Scale(grad.MSE(meanR, meanF), lambda))
		}

		if total == nil {
			total = stepDist
		} else {
			total = grad.Add(total, stepDist)
		}
	}
	return grad.Scale(total, 1/float64(steps)), nil
}

// charFn returns the real and imaginary parts of the empirical characteristic
// function of step s under the frequency bank: batch means of cos/sin of the
// projections.
func (d *Discriminator) charFn(paths *grad.Var, s int) (*grad.Var, *grad.Var) {
	shape := paths.Value.Shape
	x := grad.Reshape(grad.SliceAxis(paths, 1, s, s+1), shape[0], shape[2])
	proj := grad.MatMul(x, grad.Transpose01(d.W)) // (batch, m)
	return grad.MeanAxis0(grad.Cos(proj)), grad.MeanAxis0(grad.Sin(proj))
}
