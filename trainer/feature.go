package trainer

import (
	"diffpcfgan/grad"
	"diffpcfgan/tensor"
)

// pathFeatures turns a clean-first trajectory of S+1 states, each of shape
// (batch, seqLen, dim), into the discriminator feature tensor of shape
// (batch, S+2, seqLen*dim + 1):
//
//   - each state is flattened over (seqLen, dim),
//   - a zero row is prepended as a synthetic "time 0, zero state" anchor,
//   - a linspace(0, 1) time channel is appended over the step axis.
//
// The step axis ends up innermost-but-one so slices over it compare whole
// batches of states.
func pathFeatures(traj []*grad.Var) *grad.Var {
	batch := traj[0].Value.Shape[0]
	flatDim := traj[0].Value.Numel() / batch
	rows := len(traj) + 1

	parts := make([]*grad.Var, 0, rows)
	parts = append(parts, grad.Const(tensor.New(batch, 1, flatDim)))
	for _, state := range traj {
		parts = append(parts, grad.Reshape(state, batch, 1, flatDim))
	}
	steps := grad.Concat(1, parts...) // (batch, rows, flatDim)

	times := tensor.Linspace(0, 1, rows)
	timeChannel := tensor.New(batch, rows, 1)
	for b := 0; b < batch; b++ {
		copy(timeChannel.Data[b*rows:(b+1)*rows], times.Data)
	}
	return grad.Concat(2, steps, grad.Const(timeChannel))
}

// constTrajectory wraps a forward (tensor-valued) trajectory as graph
// constants so it can share the feature transform with generated paths.
func constTrajectory(traj []*tensor.Tensor) []*grad.Var {
	out := make([]*grad.Var, len(traj))
	for i, t := range traj {
		out[i] = grad.Const(t)
	}
	return out
}

// detachTrajectory cuts a generated trajectory off the autograd graph, the
// no-grad boundary of the discriminator phase.
func detachTrajectory(traj []*grad.Var) []*grad.Var {
	out := make([]*grad.Var, len(traj))
	for i, v := range traj {
		out[i] = v.Detach()
	}
	return out
}

// reverseTrajectory flips a noisiest-first trajectory into clean-first order.
func reverseTrajectory(traj []*grad.Var) []*grad.Var {
	out := make([]*grad.Var, len(traj))
	for i, v := range traj {
		out[len(traj)-1-i] = v
	}
	return out
}
