package grad

import (
	"fmt"
	"math"

	"diffpcfgan/tensor"
)

// --- Element-wise arithmetic ---

// Add computes a + b. dC/dA = dC/dB = 1.
func Add(a, b *Var) *Var {
	if !tensor.SameShape(a.Value, b.Value) {
		panic(fmt.Sprintf("grad: add shape mismatch %v vs %v", a.Value.Shape, b.Value.Shape))
	}
	return newOp(tensor.Add(a.Value, b.Value), []*Var{a, b}, func(out *tensor.Tensor) {
		if a.requiresGrad {
			a.accumulate(out)
		}
		if b.requiresGrad {
			b.accumulate(out)
		}
	})
}

// Sub computes a - b.
func Sub(a, b *Var) *Var {
	if !tensor.SameShape(a.Value, b.Value) {
		panic(fmt.Sprintf("grad: sub shape mismatch %v vs %v", a.Value.Shape, b.Value.Shape))
	}
	return newOp(tensor.Sub(a.Value, b.Value), []*Var{a, b}, func(out *tensor.Tensor) {
		if a.requiresGrad {
			a.accumulate(out)
		}
		if b.requiresGrad {
			b.accumulate(tensor.Scale(out, -1))
		}
	})
}

// Mul computes the element-wise product. dC/dA = B, dC/dB = A.
func Mul(a, b *Var) *Var {
	if !tensor.SameShape(a.Value, b.Value) {
		panic(fmt.Sprintf("grad: mul shape mismatch %v vs %v", a.Value.Shape, b.Value.Shape))
	}
	return newOp(tensor.Mul(a.Value, b.Value), []*Var{a, b}, func(out *tensor.Tensor) {
		if a.requiresGrad {
			a.accumulate(tensor.Mul(out, b.Value))
		}
		if b.requiresGrad {
			b.accumulate(tensor.Mul(out, a.Value))
		}
	})
}

// Scale computes s * a for a scalar constant s.
func Scale(a *Var, s float64) *Var {
	return newOp(tensor.Scale(a.Value, s), []*Var{a}, func(out *tensor.Tensor) {
		a.accumulate(tensor.Scale(out, s))
	})
}

// Square computes a^2 element-wise.
func Square(a *Var) *Var {
	return newOp(tensor.Mul(a.Value, a.Value), []*Var{a}, func(out *tensor.Tensor) {
		g := tensor.New(out.Shape...)
		for i := range g.Data {
			g.Data[i] = 2 * a.Value.Data[i] * out.Data[i]
		}
		a.accumulate(g)
	})
}

// --- Activations and trigonometry ---

func unary(a *Var, f, df func(float64) float64) *Var {
	return newOp(tensor.Apply(a.Value, f), []*Var{a}, func(out *tensor.Tensor) {
		g := tensor.New(out.Shape...)
		for i := range g.Data {
			g.Data[i] = df(a.Value.Data[i]) * out.Data[i]
		}
		a.accumulate(g)
	})
}

func Tanh(a *Var) *Var {
	return unary(a, math.Tanh, func(x float64) float64 {
		t := math.Tanh(x)
		return 1 - t*t
	})
}

func Sigmoid(a *Var) *Var {
	sig := func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
	return unary(a, sig, func(x float64) float64 {
		s := sig(x)
		return s * (1 - s)
	})
}

// LeakyReLU with slope 0.01 on the negative side.
func LeakyReLU(a *Var) *Var {
	return unary(a,
		func(x float64) float64 {
			if x > 0 {
				return x
			}
			return 0.01 * x
		},
		func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return 0.01
		})
}

func Sin(a *Var) *Var { return unary(a, math.Sin, math.Cos) }

func Cos(a *Var) *Var {
	return unary(a, math.Cos, func(x float64) float64 { return -math.Sin(x) })
}

// --- Matrix operations ---

// MatMul computes c = a @ b, a: [m, k], b: [k, n].
// Backward: dA = dC @ B^T, dB = A^T @ dC.
func MatMul(a, b *Var) *Var {
	return newOp(tensor.MatMul(a.Value, b.Value), []*Var{a, b}, func(out *tensor.Tensor) {
		if a.requiresGrad {
			a.accumulate(tensor.MatMul(out, tensor.Transpose(b.Value)))
		}
		if b.requiresGrad {
			b.accumulate(tensor.MatMul(tensor.Transpose(a.Value), out))
		}
	})
}

// AddBias adds a bias row vector b [f] to every row of x [n, f].
// Backward for the bias sums the upstream gradient over rows.
func AddBias(x, b *Var) *Var {
	n, f := x.Value.Shape[0], x.Value.Shape[1]
	val := tensor.New(n, f)
	for i := 0; i < n; i++ {
		for j := 0; j < f; j++ {
			val.Data[i*f+j] = x.Value.Data[i*f+j] + b.Value.Data[j]
		}
	}
	return newOp(val, []*Var{x, b}, func(out *tensor.Tensor) {
		if x.requiresGrad {
			x.accumulate(out)
		}
		if b.requiresGrad {
			g := tensor.New(f)
			for i := 0; i < n; i++ {
				for j := 0; j < f; j++ {
					g.Data[j] += out.Data[i*f+j]
				}
			}
			b.accumulate(g)
		}
	})
}

// --- Reductions ---

// Sum reduces to a scalar of shape [1].
func Sum(a *Var) *Var {
	val := tensor.From([]float64{tensor.Sum(a.Value)}, 1)
	return newOp(val, []*Var{a}, func(out *tensor.Tensor) {
		g := tensor.New(a.Value.Shape...)
		for i := range g.Data {
			g.Data[i] = out.Data[0]
		}
		a.accumulate(g)
	})
}

// Mean reduces to a scalar of shape [1].
func Mean(a *Var) *Var {
	n := float64(a.Value.Numel())
	val := tensor.From([]float64{tensor.Sum(a.Value) / n}, 1)
	return newOp(val, []*Var{a}, func(out *tensor.Tensor) {
		g := tensor.New(a.Value.Shape...)
		for i := range g.Data {
			g.Data[i] = out.Data[0] / n
		}
		a.accumulate(g)
	})
}

// MeanAxis0 averages over the leading axis: [n, ...] -> [1, ...].
func MeanAxis0(a *Var) *Var {
	n := a.Value.Shape[0]
	inner := a.Value.Numel() / n
	outShape := append([]int{}, a.Value.Shape...)
	outShape[0] = 1
	val := tensor.New(outShape...)
	for i := 0; i < n; i++ {
		for j := 0; j < inner; j++ {
			val.Data[j] += a.Value.Data[i*inner+j] / float64(n)
		}
	}
	return newOp(val, []*Var{a}, func(out *tensor.Tensor) {
		g := tensor.New(a.Value.Shape...)
		for i := 0; i < n; i++ {
			for j := 0; j < inner; j++ {
				g.Data[i*inner+j] = out.Data[j] / float64(n)
			}
		}
		a.accumulate(g)
	})
}

// MSE is the mean squared error between two same-shaped vars.
func MSE(a, b *Var) *Var {
	return Mean(Square(Sub(a, b)))
}

// --- Structural operations ---

// Reshape changes the shape without touching data order.
func Reshape(a *Var, shape ...int) *Var {
	return newOp(a.Value.Reshape(shape...), []*Var{a}, func(out *tensor.Tensor) {
		a.accumulate(out.Reshape(a.Value.Shape...))
	})
}

// Concat joins vars along the given axis; gradients are split back out.
func Concat(axis int, vs ...*Var) *Var {
	if len(vs) == 1 {
		return vs[0]
	}
	out := vs[0]
	for _, v := range vs[1:] {
		out = concat2(axis, out, v)
	}
	return out
}

func concat2(axis int, a, b *Var) *Var {
	val := tensor.ConcatAxis(axis, a.Value, b.Value)
	na := a.Value.Shape[axis]
	return newOp(val, []*Var{a, b}, func(out *tensor.Tensor) {
		if a.requiresGrad {
			a.accumulate(tensor.SliceAxis(out, axis, 0, na))
		}
		if b.requiresGrad {
			b.accumulate(tensor.SliceAxis(out, axis, na, val.Shape[axis]))
		}
	})
}

// SliceAxis takes the [from, to) range along axis; the backward pass scatters
// the gradient into a zero tensor of the original shape.
func SliceAxis(a *Var, axis, from, to int) *Var {
	val := tensor.SliceAxis(a.Value, axis, from, to)
	return newOp(val, []*Var{a}, func(out *tensor.Tensor) {
		g := tensor.New(a.Value.Shape...)
		outer := 1
		for i := 0; i < axis; i++ {
			outer *= a.Value.Shape[i]
		}
		inner := 1
		for i := axis + 1; i < len(a.Value.Shape); i++ {
			inner *= a.Value.Shape[i]
		}
		srcBlock := (to - from) * inner
		dstBlock := a.Value.Shape[axis] * inner
		for o := 0; o < outer; o++ {
			copy(g.Data[o*dstBlock+from*inner:o*dstBlock+to*inner], out.Data[o*srcBlock:(o+1)*srcBlock])
		}
		a.accumulate(g)
	})
}

// Transpose01 swaps the two leading axes; its backward is itself.
func Transpose01(a *Var) *Var {
	return newOp(tensor.Transpose01(a.Value), []*Var{a}, func(out *tensor.Tensor) {
		a.accumulate(tensor.Transpose01(out))
	})
}
