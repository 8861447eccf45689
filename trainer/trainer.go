// Package trainer implements the adversarial training loops: the general
// diffusion variant (teacher forcing + score matching + configurable
// fixed-measure discriminator) and the plain PCF-GAN variant. Both alternate
// one generator update with a configurable number of discriminator updates
// per batch, each phase owning its optimizer and its gradient zeroing.
package trainer

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrMissingGenerationInput indicates a generation call supplied neither the
// (count, length, dim) shape triple nor an explicit terminal-noise tensor.
var ErrMissingGenerationInput = errors.New(
	"trainer: either the shape triple (num, len, dim) or a terminal noise tensor must be given")

// Evaluator renders periodic real-vs-generated comparison artifacts. Failures
// are logged and swallowed; visualization must never abort training.
type Evaluator interface {
	CompareHistograms(real, fake []float64, path string) error
	Trajectories(forward, backward [][]float64, path string) error
}

// Trainer is the shared base of the concrete trainers: loss bookkeeping,
// epoch counters and the best-effort evaluation hooks.
type Trainer struct {
	Log  *logrus.Logger
	Eval Evaluator

	// LossHistory accumulates every logged metric plus wall-clock marks
	// under the "time" key.
	LossHistory map[string][]float64

	OutputDir    string
	CurrentEpoch int
	MaxEpochs    int

	initTime time.Time
}

func newTrainer(log *logrus.Logger, eval Evaluator, outputDir string, maxEpochs int) Trainer {
	if log == nil {
		log = logrus.New()
	}
	return Trainer{
		Log:         log,
		Eval:        eval,
		LossHistory: make(map[string][]float64),
		OutputDir:   outputDir,
		MaxEpochs:   maxEpochs,
		initTime:    time.Now(),
	}
}

// OnEpochStart advances the epoch counter the teacher-forcing and plotting
// schedules read.
func (t *Trainer) OnEpochStart(epoch int) { t.CurrentEpoch = epoch }

// RecordLoss appends a metric value to the history and logs it.
func (t *Trainer) RecordLoss(name string, value float64) {
	t.LossHistory[name] = append(t.LossHistory[name], value)
	t.Log.WithFields(logrus.Fields{"epoch": t.CurrentEpoch, name: value}).Debug("loss")
}

// Evaluate writes a histogram comparison of generated vs. real values.
// Best effort: errors are logged, not propagated.
func (t *Trainer) Evaluate(fake, real []float64, path string) {
	t.LossHistory["time"] = append(t.LossHistory["time"], time.Since(t.initTime).Seconds())
	if t.Eval == nil {
		return
	}
	if err := t.Eval.CompareHistograms(real, fake, path); err != nil {
		t.Log.WithError(err).Warn("evaluation plot failed, continuing")
	}
}

// PlotTrajectories writes the forward/backward trajectory panels.
// Best effort, like Evaluate.
func (t *Trainer) PlotTrajectories(forward, backward [][]float64, path string) {
	if t.Eval == nil {
		return
	}
	if err := t.Eval.Trajectories(forward, backward, path); err != nil {
		t.Log.WithError(err).Warn("trajectory plot failed, continuing")
	}
}
