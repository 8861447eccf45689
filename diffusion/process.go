package diffusion

import (
	"fmt"
	"math"
	"math/rand"

	"diffpcfgan/grad"
	"diffpcfgan/tensor"
)

// Denoiser estimates the score (negative noise over std) present in a noisy
// state at a given diffusion step. Implementations carry their own trainable
// parameters; the process only queries them.
type Denoiser interface {
	Score(x *grad.Var, step int) *grad.Var
}

// Config describes an immutable diffusion process.
type Config struct {
	TotalSteps int          `json:"total_steps"`
	Schedule   ScheduleKind `json:"schedule"`
	SDE        SDEType      `json:"sde_type"`
}

// Process is a discrete-step view of a continuous diffusion SDE. The schedule
// is computed once at construction and never mutated.
type Process struct {
	cfg      Config
	schedule *Schedule
}

// NewProcess validates the config and precomputes the schedule.
func NewProcess(cfg Config) (*Process, error) {
	if cfg.SDE != SDETypeVP {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSDE, cfg.SDE)
	}
	sched, err := ComputeSchedule(cfg.TotalSteps, cfg.Schedule)
	if err != nil {
		return nil, err
	}
	return &Process{cfg: cfg, schedule: sched}, nil
}

func (p *Process) TotalSteps() int { return p.cfg.TotalSteps }

func (p *Process) Schedule() *Schedule { return p.schedule }

// PerturbationKernel returns the marginal noising distribution of step t
// given clean data: mean = sqrt(cum(t)) * x0, std = sqrt(1 - cum(t)).
// std is zero only at the t=0 anchor, which samplers never request.
func (p *Process) PerturbationKernel(x0 *tensor.Tensor, t int) (*tensor.Tensor, float64) {
	cum := p.schedule.alphasCumprod[t]
	mean := tensor.Scale(x0, math.Sqrt(cum))
	std := math.Sqrt(1 - cum)
	return mean, std
}

// DriftAndDiffusion returns the SDE coefficients at step t. For the VP SDE:
// drift = -beta(t)/2 * x, diffusion = sqrt(beta(t)).
func (p *Process) DriftAndDiffusion(x *tensor.Tensor, t int) (*tensor.Tensor, float64) {
	beta := p.schedule.betas[t]
	drift := tensor.Scale(x, -0.5*beta)
	return drift, math.Sqrt(beta)
}

// ForwardSample noises clean data into a trajectory of totalSteps+1 states.
// State 0 is the input itself; state t is drawn from the marginal
// perturbation kernel with noise sampled independently per step, so the last
// state approaches a standard normal as cum(T) -> 0.
func (p *Process) ForwardSample(clean *tensor.Tensor, rng *rand.Rand) []*tensor.Tensor {
	traj := make([]*tensor.Tensor, p.cfg.TotalSteps+1)
	traj[0] = clean.Clone()
	for t := 1; t <= p.cfg.TotalSteps; t++ {
		mean, std := p.PerturbationKernel(clean, t)
		noise := tensor.Randn(rng, clean.Shape...)
		traj[t] = tensor.AddScaled(mean, std, noise)
	}
	return traj
}

// BackwardOptions tunes the reverse sampler.
type BackwardOptions struct {
	// ProbaTeacherForcing is the independent per-step probability of
	// substituting the true forward state for the sampled one.
	ProbaTeacherForcing float64
	// ForcingTrajectory is the forward trajectory (clean-first, length T+1)
	// the substitutions are taken from. Required when the probability is > 0.
	ForcingTrajectory []*tensor.Tensor
	// Rng drives both the reverse transition noise and the forcing draws.
	Rng *rand.Rand
}

// BackwardSample denoises a terminal state through the reverse transitions
// t = T..1, querying the denoiser at every step:
//
//	x_{t-1} = (x_t + beta(t)*score(x_t, t)) / sqrt(alpha(t)) + sqrt(beta(t))*z
//
// Convention: the final transition (t=1 -> 0) is deterministic (z = 0); all
// earlier transitions are stochastic. The returned trajectory has length T+1
// in generation order, noisiest first; callers reverse it when a clean-first
// ordering is needed. The whole pass runs through the autograd graph so the
// adversarial loss can backpropagate into the denoiser parameters.
func (p *Process) BackwardSample(terminal *grad.Var, denoiser Denoiser, opts BackwardOptions) []*grad.Var {
	rng := opts.Rng
	traj := make([]*grad.Var, 0, p.cfg.TotalSteps+1)
	cur := terminal
	traj = append(traj, cur)

	for t := p.cfg.TotalSteps; t >= 1; t-- {
		score := denoiser.Score(cur, t)
		beta := p.schedule.betas[t]
		alpha := p.schedule.alphas[t]

		next := grad.Scale(grad.Add(cur, grad.Scale(score, beta)), 1/math.Sqrt(alpha))
		if t > 1 {
			z := tensor.Randn(rng, cur.Value.Shape...)
			next = grad.Add(next, grad.Const(tensor.Scale(z, math.Sqrt(beta))))
		}

		if opts.ProbaTeacherForcing > 0 && opts.ForcingTrajectory != nil &&
			rng.Float64() < opts.ProbaTeacherForcing {
			// Expose the denoiser to the ground-truth state instead of its
			// own sample. The substitution is a constant, so gradients stop
			// here, exactly like substituting a detached tensor.
			next = grad.Const(opts.ForcingTrajectory[t-1].Clone())
		}

		traj = append(traj, next)
		cur = next
	}
	return traj
}
