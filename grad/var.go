// Package grad is a small reverse-mode automatic differentiation engine over
// tensors. Operations build a computation graph during the forward pass;
// Backward walks it in reverse topological order and accumulates gradients
// with the chain rule.
package grad

import (
	"diffpcfgan/tensor"
)

// Var is a tensor node in the computation graph. Grad is allocated lazily on
// the first accumulation and holds dLoss/dValue after Backward.
type Var struct {
	Value *tensor.Tensor
	Grad  *tensor.Tensor

	requiresGrad bool
	parents      []*Var
	backward     func(out *tensor.Tensor)
}

// Param wraps a tensor as a trainable leaf: gradients accumulate into it.
func Param(t *tensor.Tensor) *Var {
	return &Var{Value: t, requiresGrad: true}
}

// Const wraps a tensor as a non-trainable leaf; no gradient flows into it.
func Const(t *tensor.Tensor) *Var {
	return &Var{Value: t}
}

// Detach returns a constant view of the value, cut off from the graph.
// The equivalent of computing under no-grad.
func (v *Var) Detach() *Var {
	return Const(v.Value)
}

// RequiresGrad reports whether any ancestor of v is a trainable parameter.
func (v *Var) RequiresGrad() bool { return v.requiresGrad }

// Scalar returns the single element of a scalar Var.
func (v *Var) Scalar() float64 {
	if v.Value.Numel() != 1 {
		panic("grad: Scalar on non-scalar var")
	}
	return v.Value.Data[0]
}

// ZeroGrad clears the accumulated gradient.
func (v *Var) ZeroGrad() { v.Grad = nil }

func (v *Var) accumulate(g *tensor.Tensor) {
	if v.Grad == nil {
		v.Grad = g.Clone()
		return
	}
	for i := range v.Grad.Data {
		v.Grad.Data[i] += g.Data[i]
	}
}

// newOp builds an interior node. When no parent requires a gradient the node
// degenerates to a constant, so untracked subgraphs are pruned as they form.
func newOp(value *tensor.Tensor, parents []*Var, backward func(out *tensor.Tensor)) *Var {
	tracked := false
	for _, p := range parents {
		if p.requiresGrad {
			tracked = true
			break
		}
	}
	if !tracked {
		return Const(value)
	}
	return &Var{Value: value, requiresGrad: true, parents: parents, backward: backward}
}

// Backward runs reverse-mode differentiation from a scalar output, seeding
// dOut/dOut = 1 and visiting nodes in reverse topological order.
func (v *Var) Backward() {
	if v.Value.Numel() != 1 {
		panic("grad: Backward requires a scalar output")
	}

	var topo []*Var
	visited := make(map[*Var]bool)
	var build func(n *Var)
	build = func(n *Var) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, p := range n.parents {
			build(p)
		}
		topo = append(topo, n)
	}
	build(v)

	seed := tensor.New(v.Value.Shape...)
	seed.Data[0] = 1
	v.accumulate(seed)

	for i := len(topo) - 1; i >= 0; i-- {
		n := topo[i]
		if n.backward != nil && n.Grad != nil {
			n.backward(n.Grad)
		}
	}
}
