package trainer

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"diffpcfgan/diffusion"
	"diffpcfgan/grad"
	"diffpcfgan/pcf"
	"diffpcfgan/tensor"
)

// The distance metric's discriminative power degrades over long horizons, so
// only the first steps of the diffusion axis are compared: 8 diffusion steps
// plus the prepended zero row.
const defaultNumStepsCompared = 8 + 1

// defaultWeight resolves a configured loss weight: zero means the default,
// negative means the term is disabled.
func defaultWeight(w, def float64) float64 {
	switch {
	case w == 0:
		return def
	case w < 0:
		return 0
	default:
		return w
	}
}

// ScoreNetwork is the denoiser collaborator together with its trainable
// parameters (the generator side of the optimizer pair).
type ScoreNetwork interface {
	diffusion.Denoiser
	Parameters() []*grad.Var
}

// DistanceMeasurer is the discriminator-distance collaborator. The scalar it
// returns must be differentiable with respect to both the fake paths and its
// own parameters.
type DistanceMeasurer interface {
	DistanceMeasure(real, fake *grad.Var, lambda float64) (*grad.Var, error)
	Parameters() []*grad.Var
}

// DiffPCFGANConfig is the configuration surface of the diffusion trainer.
type DiffPCFGANConfig struct {
	InputDim int `json:"input_dim"`
	SeqLen   int `json:"n_lags"`

	LearningRateGen  float64 `json:"learning_rate_gen"`
	LearningRateDisc float64 `json:"learning_rate_disc"`

	NumDStepsPerGStep int `json:"num_d_steps_per_g_step"`
	NumSamplesPCF     int `json:"num_samples_pcf"`
	HiddenDimPCF      int `json:"hidden_dim_pcf"`
	NumDiffusionSteps int `json:"num_diffusion_steps"`

	// NumStepsCompared truncates the adversarial distance to the first rows
	// of the diffusion axis. Zero selects the default window.
	NumStepsCompared int `json:"num_steps_compared"`

	// ReconstructionWeight and ScoreMatchingWeight weigh the auxiliary loss
	// terms. Zero selects the 0.1 default; a negative value disables the term.
	ReconstructionWeight float64 `json:"reconstruction_weight"`
	ScoreMatchingWeight  float64 `json:"score_matching_weight"`
	UseScoreMatching     bool    `json:"use_score_matching"`

	// UseFixedMeasureDiscriminator freezes the discriminator: the D phase is
	// skipped entirely and the distance is measured under the initial bank.
	UseFixedMeasureDiscriminator bool `json:"use_fixed_measure_discriminator"`

	MaxEpochs       int    `json:"max_epochs"`
	PlotEveryEpochs int    `json:"plot_every_epochs"`
	OutputDir       string `json:"exp_dir"`
}

// DiffPCFGAN trains a diffusion score network adversarially against the PCF
// distance. Automatic optimization is deliberately absent: each phase zeroes
// its own gradients, runs its own backward pass and steps its own optimizer.
type DiffPCFGAN struct {
	Trainer

	cfg           DiffPCFGANConfig
	scoreNetwork  ScoreNetwork
	discriminator DistanceMeasurer
	process       *diffusion.Process

	optimGen  *grad.Adam
	optimDisc *grad.Adam

	trainHisto *HistogramLoss
	valHisto   *HistogramLoss

	rng *rand.Rand
}

// NewDiffPCFGAN validates the configuration, precomputes the diffusion
// schedule and sets up the optimizer pair. When disc is nil a PCF
// discriminator over the flattened time-augmented paths is created.
// dataTrain and dataVal, both (num, seqLen, dim), seed the histogram
// monitoring losses.
func NewDiffPCFGAN(
	cfg DiffPCFGANConfig,
	scoreNetwork ScoreNetwork,
	disc DistanceMeasurer,
	dataTrain, dataVal *tensor.Tensor,
	log *logrus.Logger,
	eval Evaluator,
	rng *rand.Rand,
) (*DiffPCFGAN, error) {
	process, err := diffusion.NewProcess(diffusion.Config{
		TotalSteps: cfg.NumDiffusionSteps,
		Schedule:   diffusion.ScheduleCosine,
		SDE:        diffusion.SDETypeVP,
	})
	if err != nil {
		return nil, err
	}

	if cfg.NumStepsCompared == 0 {
		cfg.NumStepsCompared = defaultNumStepsCompared
	}
	cfg.ReconstructionWeight = defaultWeight(cfg.ReconstructionWeight, 0.1)
	cfg.ScoreMatchingWeight = defaultWeight(cfg.ScoreMatchingWeight, 0.1)

	if disc == nil {
		disc = pcf.NewDiscriminator(cfg.NumSamplesPCF, cfg.HiddenDimPCF, cfg.InputDim*cfg.SeqLen+1, rng)
	}

	t := &DiffPCFGAN{
		Trainer:       newTrainer(log, eval, cfg.OutputDir, cfg.MaxEpochs),
		cfg:           cfg,
		scoreNetwork:  scoreNetwork,
		discriminator: disc,
		process:       process,
		// The generator runs with betas (0, 0.9); the discriminator with the
		// Adam defaults.
		optimGen:   grad.NewAdam(scoreNetwork.Parameters(), cfg.LearningRateGen, 0, 0.9),
		optimDisc:  grad.NewAdam(disc.Parameters(), cfg.LearningRateDisc, 0.9, 0.999),
		trainHisto: NewHistogramLoss(dataTrain.Data, DefaultBins(dataTrain.Shape[0])),
		valHisto:   NewHistogramLoss(dataVal.Data, DefaultBins(dataVal.Shape[0])),
		rng:        rng,
	}
	return t, nil
}

// GenerateOptions selects exactly one of two input modes: a shape triple
// from which terminal noise is synthesized, or an explicit terminal state.
type GenerateOptions struct {
	NumSeq int
	SeqLen int
	DimSeq int

	// NoiseStart is the terminal (noisiest) state to denoise from, e.g. the
	// last state of a real forward trajectory for reconstruction training.
	NoiseStart *tensor.Tensor

	ProbaTeacherForcing float64
	// ForcingInputs is the clean-first forward trajectory substituted into
	// the reverse recursion when teacher forcing fires.
	ForcingInputs []*tensor.Tensor
}

// BackwardPath denoises to generate new samples, returning the full
// trajectory in clean-first order: index 0 is the generated data, the last
// index the terminal noise.
func (t *DiffPCFGAN) BackwardPath(opts GenerateOptions) ([]*grad.Var, error) {
	if opts.NoiseStart == nil {
		if opts.NumSeq <= 0 || opts.SeqLen <= 0 || opts.DimSeq <= 0 {
			return nil, ErrMissingGenerationInput
		}
		opts.NoiseStart = tensor.Randn(t.rng, opts.NumSeq, opts.SeqLen, opts.DimSeq)
	}

	traj := t.process.BackwardSample(grad.Const(opts.NoiseStart), t.scoreNetwork, diffusion.BackwardOptions{
		ProbaTeacherForcing: opts.ProbaTeacherForcing,
		ForcingTrajectory:   opts.ForcingInputs,
		Rng:                 t.rng,
	})
	return reverseTrajectory(traj), nil
}

// ForwardPath noises a real batch (num, seqLen, dim) into the full clean-first
// trajectory. Feature indices listed in indicesNotDiffused are excluded from
// diffusion and copied unchanged into every state (negative indices count
// from the end).
func (t *DiffPCFGAN) ForwardPath(targets *tensor.Tensor, indicesNotDiffused []int) []*tensor.Tensor {
	traj := t.process.ForwardSample(targets, t.rng)

	if len(indicesNotDiffused) > 0 {
		num, seqLen, dim := targets.Shape[0], targets.Shape[1], targets.Shape[2]
		for _, idx := range indicesNotDiffused {
			if idx < 0 {
				idx += dim
			}
			for s := 1; s < len(traj); s++ {
				for n := 0; n < num; n++ {
					for l := 0; l < seqLen; l++ {
						traj[s].Data[(n*seqLen+l)*dim+idx] = targets.Data[(n*seqLen+l)*dim+idx]
					}
				}
			}
		}
	}
	return traj
}

// ProbaTeacherForcing is cosine-annealed over training: 1 at epoch 0, 0 at
// half of MaxEpochs.
func (t *DiffPCFGAN) ProbaTeacherForcing() float64 {
	half := t.MaxEpochs / 2
	if half <= 0 {
		return 0
	}
	return 0.5 * (1 + math.Cos(float64(t.CurrentEpoch)*math.Pi/float64(half)))
}

// TrainStep runs one full optimization round on a real batch: the generator
// phase exactly once, then the discriminator phase NumDStepsPerGStep times
// (skipped under a fixed-measure discriminator). Returns the generator-phase
// losses; the discriminator shares the same distance so it is not reported
// twice.
func (t *DiffPCFGAN) TrainStep(targets *tensor.Tensor) (map[string]float64, error) {
	losses, err := t.trainingStepGen(targets)
	if err != nil {
		return nil, err
	}

	if !t.cfg.UseFixedMeasureDiscriminator {
		for i := 0; i < t.cfg.NumDStepsPerGStep; i++ {
			if _, err := t.trainingStepDisc(targets); err != nil {
				return nil, err
			}
		}
	}

	for name, v := range losses {
		t.RecordLoss(name, v)
	}
	return losses, nil
}

func (t *DiffPCFGAN) trainingStepGen(targets *tensor.Tensor) (map[string]float64, error) {
	t.optimGen.ZeroGrad()

	forward := t.ForwardPath(targets, nil)
	backward, err := t.BackwardPath(GenerateOptions{
		NoiseStart:          forward[len(forward)-1],
		ProbaTeacherForcing: t.ProbaTeacherForcing(),
		ForcingInputs:       forward,
	})
	if err != nil {
		return nil, err
	}

	realFeat := pathFeatures(constTrajectory(forward))
	fakeFeat := pathFeatures(backward)

	dist, err := t.discriminator.DistanceMeasure(
		t.truncateSteps(realFeat), t.truncateSteps(fakeFeat), 0)
	if err != nil {
		return nil, fmt.Errorf("trainer: generator phase: %w", err)
	}

	// Reconstruction on the cleanest generated state against the real batch,
	// time channel excluded.
	reconst := grad.MSE(featureRow(realFeat, 1), featureRow(fakeFeat, 1))

	total := grad.Add(dist, grad.Scale(reconst, t.cfg.ReconstructionWeight))
	scoreMatching := t.scoreMatchingLoss(targets)
	if t.cfg.UseScoreMatching {
		total = grad.Add(total, grad.Scale(scoreMatching, t.cfg.ScoreMatchingWeight))
	}

	total.Backward()
	t.optimGen.Step()

	epdf := t.trainHisto.Loss(featureRow(fakeFeat, 1).Value.Data)
	return map[string]float64{
		"train_pcfd":           dist.Scalar(),
		"train_reconst":        reconst.Scalar(),
		"train_score_matching": scoreMatching.Scalar(),
		"train_epdf":           epdf,
	}, nil
}

func (t *DiffPCFGAN) trainingStepDisc(targets *tensor.Tensor) (float64, error) {
	t.optimDisc.ZeroGrad()

	// Fresh stochastic trajectories, detached: the discriminator maximizes
	// the distance, so no gradient may reach the score network from here.
	forward := t.ForwardPath(targets, nil)
	backward, err := t.BackwardPath(GenerateOptions{
		NoiseStart:          forward[len(forward)-1],
		ProbaTeacherForcing: t.ProbaTeacherForcing(),
		ForcingInputs:       forward,
	})
	if err != nil {
		return 0, err
	}

	realFeat := pathFeatures(constTrajectory(forward))
	fakeFeat := pathFeatures(detachTrajectory(backward))

	dist, err := t.discriminator.DistanceMeasure(
		t.truncateSteps(realFeat), t.truncateSteps(fakeFeat), 0)
	if err != nil {
		return 0, fmt.Errorf("trainer: discriminator phase: %w", err)
	}

	loss := grad.Scale(dist, -1)
	loss.Backward()
	t.optimDisc.Step()
	return loss.Scalar(), nil
}

// scoreMatchingLoss is the NCSN denoising score-matching objective at a step
// drawn uniformly from [1, T]: the predicted score regressed on -noise/std,
// scaled by the squared diffusion coefficient. t=0 is never drawn, so the
// kernel std is strictly positive.
func (t *DiffPCFGAN) scoreMatchingLoss(targets *tensor.Tensor) *grad.Var {
	step := 1 + t.rng.Intn(t.cfg.NumDiffusionSteps)

	_, diffCoef := t.process.DriftAndDiffusion(targets, step)
	mean, std := t.process.PerturbationKernel(targets, step)
	noise := tensor.Randn(t.rng, targets.Shape...)
	perturbed := tensor.AddScaled(mean, std, noise)

	pred := t.scoreNetwork.Score(grad.Const(perturbed), step)
	target := grad.Const(tensor.Scale(noise, -1/std))
	return grad.Scale(grad.MSE(pred, target), diffCoef*diffCoef)
}

// ValidationStep computes the monitoring losses with teacher forcing disabled
// and no parameter updates, and periodically renders the comparison plots.
func (t *DiffPCFGAN) ValidationStep(targets *tensor.Tensor) (map[string]float64, error) {
	forward := t.ForwardPath(targets, nil)
	backward, err := t.BackwardPath(GenerateOptions{
		NoiseStart: forward[len(forward)-1],
	})
	if err != nil {
		return nil, err
	}

	realFeat := pathFeatures(constTrajectory(forward))
	fakeFeat := pathFeatures(detachTrajectory(backward))

	dist, err := t.discriminator.DistanceMeasure(
		t.truncateSteps(realFeat), t.truncateSteps(fakeFeat), 0)
	if err != nil {
		return nil, fmt.Errorf("trainer: validation: %w", err)
	}

	losses := map[string]float64{
		"val_pcfd":           dist.Scalar(),
		"val_reconst":        grad.MSE(featureRow(realFeat, 1), featureRow(fakeFeat, 1)).Scalar(),
		"val_score_matching": t.scoreMatchingLoss(targets).Scalar(),
		"val_epdf":           t.valHisto.Loss(featureRow(fakeFeat, 1).Value.Data),
	}
	for name, v := range losses {
		t.RecordLoss(name, v)
	}

	if t.cfg.PlotEveryEpochs > 0 && (t.CurrentEpoch+1)%t.cfg.PlotEveryEpochs == 0 {
		base := fmt.Sprintf("%spred_vs_true_epoch_%d.png", t.OutputDir, t.CurrentEpoch+1)
		// All feature channels of the cleanest generated row against the full
		// real batch.
		t.Evaluate(featureRow(fakeFeat, 1).Value.Data, targets.Data, base)
		t.PlotTrajectories(
			stepSeries(realFeat), stepSeries(fakeFeat),
			fmt.Sprintf("%strajectories_%d.png", t.OutputDir, t.CurrentEpoch+1),
		)
	}
	return losses, nil
}

// truncateSteps drops the trailing (noisiest) step row, then keeps the first
// NumStepsCompared rows of the feature tensor.
func (t *DiffPCFGAN) truncateSteps(feat *grad.Var) *grad.Var {
	rows := feat.Value.Shape[1]
	out := grad.SliceAxis(feat, 1, 0, rows-1)
	k := t.cfg.NumStepsCompared
	if k > rows-1 {
		k = rows - 1
	}
	return grad.SliceAxis(out, 1, 0, k)
}

// featureRow extracts one step row of a feature tensor without its time
// channel, as (batch, flatDim).
func featureRow(feat *grad.Var, row int) *grad.Var {
	shape := feat.Value.Shape
	r := grad.SliceAxis(feat, 1, row, row+1)
	r = grad.SliceAxis(r, 2, 0, shape[2]-1)
	return grad.Reshape(r, shape[0], shape[2]-1)
}

// firstLagValues collects channel 0 of the first lag of a real batch.
func firstLagValues(targets *tensor.Tensor) []float64 {
	num, seqLen, dim := targets.Shape[0], targets.Shape[1], targets.Shape[2]
	out := make([]float64, num)
	for n := 0; n < num; n++ {
		out[n] = targets.Data[n*seqLen*dim]
	}
	return out
}

// stepSeries extracts, per sample, feature channel 0 across the step axis.
func stepSeries(feat *grad.Var) [][]float64 {
	shape := feat.Value.Shape
	out := make([][]float64, shape[0])
	for n := 0; n < shape[0]; n++ {
		s := make([]float64, shape[1])
		for r := 0; r < shape[1]; r++ {
			s[r] = feat.Value.Data[(n*shape[1]+r)*shape[2]]
		}
		out[n] = s
	}
	return out
}
