package grad

import "math"

// Adam implements the Adam optimizer with bias correction over a fixed
// parameter group.
//
// Update rule:
//
//	m[i] = β1·m[i] + (1-β1)·g[i]
//	v[i] = β2·v[i] + (1-β2)·g[i]²
//	w[i] = w[i] - lr · m̂[i] / (√v̂[i] + ε)
type Adam struct {
	params       []*Var
	lr           float64
	beta1, beta2 float64
	eps          float64
	m, v         [][]float64
	step         int
}

// NewAdam creates an optimizer over params with the given moment decay rates.
// Pass (0.9, 0.999) for the usual defaults.
func NewAdam(params []*Var, lr, beta1, beta2 float64) *Adam {
	a := &Adam{
		params: params,
		lr:     lr,
		beta1:  beta1,
		beta2:  beta2,
		eps:    1e-8,
		m:      make([][]float64, len(params)),
		v:      make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, p.Value.Numel())
		a.v[i] = make([]float64, p.Value.Numel())
	}
	return a
}

// ZeroGrad clears the gradients of every parameter in the group. Called at
// the start of each optimization phase so gradients from the other phase
// never accumulate here.
func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		p.ZeroGrad()
	}
}

// Step applies one Adam update to every parameter with a gradient.
func (a *Adam) Step() {
	a.step++
	c1 := 1 - math.Pow(a.beta1, float64(a.step))
	c2 := 1 - math.Pow(a.beta2, float64(a.step))
	for i, p := range a.params {
		if p.Grad == nil {
			continue
		}
		for j := range p.Value.Data {
			g := p.Grad.Data[j]
			a.m[i][j] = a.beta1*a.m[i][j] + (1-a.beta1)*g
			a.v[i][j] = a.beta2*a.v[i][j] + (1-a.beta2)*g*g
			mHat := a.m[i][j] / c1
			vHat := a.v[i][j] / c2
			p.Value.Data[j] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}
