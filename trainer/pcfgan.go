package trainer

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"diffpcfgan/grad"
	"diffpcfgan/pcf"
	"diffpcfgan/tensor"
)

// Generator is the sampling collaborator of the plain GAN variant: it draws a
// batch of synthetic sequences of shape (batch, seqLen, dim) through the
// autograd graph.
type Generator interface {
	Generate(batch, seqLen int, rng *rand.Rand) *grad.Var
	Parameters() []*grad.Var
}

// PCFGANConfig is the configuration surface of the plain GAN trainer.
type PCFGANConfig struct {
	InputDim int `json:"input_dim"`

	LearningRateGen  float64 `json:"learning_rate_gen"`
	LearningRateDisc float64 `json:"learning_rate_disc"`

	NumDStepsPerGStep int `json:"num_d_steps_per_g_step"`
	NumSamplesPCF     int `json:"num_samples_pcf"`
	HiddenDimPCF      int `json:"hidden_dim_pcf"`

	// Lambda weighs the expected-path term of the distance. Zero selects the
	// 0.1 default; a negative value disables the term.
	Lambda float64 `json:"lambda"`

	MaxEpochs       int    `json:"max_epochs"`
	PlotEveryEpochs int    `json:"plot_every_epochs"`
	OutputDir       string `json:"exp_dir"`
}

// PCFGAN is the basic PCF-GAN without the diffusion process: the generator
// maps noise straight to sequences, which are compared to real batches under
// the PCF distance. Same alternation and manual optimization as the
// diffusion trainer.
type PCFGAN struct {
	Trainer

	cfg           PCFGANConfig
	generator     Generator
	discriminator DistanceMeasurer

	optimGen  *grad.Adam
	optimDisc *grad.Adam

	rng *rand.Rand
}

// NewPCFGAN sets up the optimizer pair; a nil disc gets a PCF discriminator
// over the raw sequences.
func NewPCFGAN(
	cfg PCFGANConfig,
	generator Generator,
	disc DistanceMeasurer,
	log *logrus.Logger,
	eval Evaluator,
	rng *rand.Rand,
) *PCFGAN {
	cfg.Lambda = defaultWeight(cfg.Lambda, 0.1)
	if disc == nil {
		disc = pcf.NewDiscriminator(cfg.NumSamplesPCF, cfg.HiddenDimPCF, cfg.InputDim, rng)
	}
	return &PCFGAN{
		Trainer:       newTrainer(log, eval, cfg.OutputDir, cfg.MaxEpochs),
		cfg:           cfg,
		generator:     generator,
		discriminator: disc,
		optimGen:      grad.NewAdam(generator.Parameters(), cfg.LearningRateGen, 0, 0.9),
		optimDisc:     grad.NewAdam(disc.Parameters(), cfg.LearningRateDisc, 0.9, 0.999),
		rng:           rng,
	}
}

// TrainStep runs one generator update and NumDStepsPerGStep discriminator
// updates on the batch. The two phases share the same loss, so only the
// generator's is reported.
func (t *PCFGAN) TrainStep(targets *tensor.Tensor) (float64, error) {
	lossGen, err := t.trainingStepGen(targets)
	if err != nil {
		return 0, err
	}
	for i := 0; i < t.cfg.NumDStepsPerGStep; i++ {
		if _, err := t.trainingStepDisc(targets); err != nil {
			return 0, err
		}
	}
	t.RecordLoss("train_pcfd", lossGen)
	return lossGen, nil
}

func (t *PCFGAN) trainingStepGen(targets *tensor.Tensor) (float64, error) {
	t.optimGen.ZeroGrad()

	fake := t.generator.Generate(targets.Shape[0], targets.Shape[1], t.rng)
	loss, err := t.discriminator.DistanceMeasure(grad.Const(targets), fake, t.cfg.Lambda)
	if err != nil {
		return 0, fmt.Errorf("trainer: generator phase: %w", err)
	}

	loss.Backward()
	t.optimGen.Step()
	return loss.Scalar(), nil
}

func (t *PCFGAN) trainingStepDisc(targets *tensor.Tensor) (float64, error) {
	t.optimDisc.ZeroGrad()

	fake := t.generator.Generate(targets.Shape[0], targets.Shape[1], t.rng).Detach()
	dist, err := t.discriminator.DistanceMeasure(grad.Const(targets), fake, t.cfg.Lambda)
	if err != nil {
		return 0, fmt.Errorf("trainer: discriminator phase: %w", err)
	}

	loss := grad.Scale(dist, -1)
	loss.Backward()
	t.optimDisc.Step()
	return loss.Scalar(), nil
}

// ValidationStep computes the monitoring distance and periodically renders
// the histogram comparison.
func (t *PCFGAN) ValidationStep(targets *tensor.Tensor) (float64, error) {
	fake := t.generator.Generate(targets.Shape[0], targets.Shape[1], t.rng).Detach()
	loss, err := t.discriminator.DistanceMeasure(grad.Const(targets), fake, t.cfg.Lambda)
	if err != nil {
		return 0, fmt.Errorf("trainer: validation: %w", err)
	}
	t.RecordLoss("val_pcfd", loss.Scalar())

	if t.cfg.PlotEveryEpochs > 0 && (t.CurrentEpoch+1)%t.cfg.PlotEveryEpochs == 0 {
		path := fmt.Sprintf("%spred_vs_true_epoch_%d.png", t.OutputDir, t.CurrentEpoch+1)
		t.Evaluate(firstLagValues(fake.Value), firstLagValues(targets), path)
	}
	return loss.Scalar(), nil
}
