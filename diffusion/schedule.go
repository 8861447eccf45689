// Package diffusion implements the continuous-time diffusion machinery used
// for training: a cosine noise schedule, the forward (noising) sampler, and
// the backward (denoising) sampler driven by a score network.
package diffusion

import (
	"errors"
	"math"
)

var (
	// ErrNonPositiveSteps indicates a schedule was requested with total_steps <= 0.
	ErrNonPositiveSteps = errors.New("diffusion: total steps must be positive")
	// ErrUnknownSchedule indicates an unrecognized schedule kind.
	ErrUnknownSchedule = errors.New("diffusion: unknown schedule kind")
	// ErrUnknownSDE indicates an unrecognized SDE type.
	ErrUnknownSDE = errors.New("diffusion: unknown SDE type")
)

// ScheduleKind selects how the diffusion coefficients are laid out over time.
type ScheduleKind string

// ScheduleCosine is the squared-cosine schedule with offset s=0.008.
const ScheduleCosine ScheduleKind = "cosine"

// SDEType selects the stochastic differential equation the process follows.
type SDEType string

// SDETypeVP is the variance-preserving SDE.
const SDETypeVP SDEType = "VP"

const cosineOffset = 0.008

// Betas above this are clipped so the reverse transition 1/sqrt(alpha)
// stays finite at the noisiest step.
const maxBeta = 0.999

// Schedule holds the diffusion coefficients, indexed by step t in [0, T].
// Index 0 is the clean anchor: alphasCumprod[0] = 1 and betas[0] = 0, so the
// perturbation kernel is degenerate only at t = 0 and every t >= 1 has a
// strictly positive noise level.
type Schedule struct {
	alphas        []float64
	betas         []float64
	alphasCumprod []float64
}

// ComputeSchedule derives (alphas, betas, cumulative alphas) for the given
// step count, each of length totalSteps+1 including the t=0 anchor.
//
// Cosine schedule:
//
//	raw(t)  = cos((t/T + s)/(1+s) * pi/2)^2
//	cum(t)  = raw(t)/raw(0)            -> cum(0) = 1
//	beta(t) = 1 - cum(t)/cum(t-1)      -> beta(0) = 0 by convention
//	alpha(t) = 1 - beta(t)
//
// Pure function of its inputs; Process computes it once at construction.
func ComputeSchedule(totalSteps int, kind ScheduleKind) (*Schedule, error) {
	if totalSteps <= 0 {
		return nil, ErrNonPositiveSteps
	}
	if kind != ScheduleCosine {
		return nil, ErrUnknownSchedule
	}

	raw := func(t int) float64 {
		x := (float64(t)/float64(totalSteps) + cosineOffset) / (1 + cosineOffset) * math.Pi / 2
		c := math.Cos(x)
		return c * c
	}

	n := totalSteps + 1
	s := &Schedule{
		alphas:        make([]float64, n),
		betas:         make([]float64, n),
		alphasCumprod: make([]float64, n),
	}
	raw0 := raw(0)
	for t := 0; t < n; t++ {
		s.alphasCumprod[t] = raw(t) / raw0
	}
	for t := 0; t < n; t++ {
		// beta(0) has no predecessor; dividing by cum(0) itself yields 0.
		prev := s.alphasCumprod[t]
		if t > 0 {
			prev = s.alphasCumprod[t-1]
		}
		beta := 1 - s.alphasCumprod[t]/prev
		if beta > maxBeta {
			beta = maxBeta
		}
		s.betas[t] = beta
		s.alphas[t] = 1 - beta
	}
	return s, nil
}

// Alphas returns the per-step retained-signal fractions 1 - beta(t).
func (s *Schedule) Alphas() []float64 { return s.alphas }

// Betas returns the per-step noise fractions.
func (s *Schedule) Betas() []float64 { return s.betas }

// AlphasCumprod returns the cumulative retained-signal products, monotonically
// non-increasing from 1.
func (s *Schedule) AlphasCumprod() []float64 { return s.alphasCumprod }
