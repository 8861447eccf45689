package trainer

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diffpcfgan/diffusion"
	"diffpcfgan/nets"
	"diffpcfgan/pcf"
	"diffpcfgan/tensor"
)

func testConfig() DiffPCFGANConfig {
	return DiffPCFGANConfig{
		InputDim:          1,
		SeqLen:            4,
		LearningRateGen:   1e-3,
		LearningRateDisc:  1e-3,
		NumDStepsPerGStep: 1,
		NumSamplesPCF:     2,
		HiddenDimPCF:      3,
		NumDiffusionSteps: 3,
		MaxEpochs:         10,
	}
}

func newTestDiffTrainer(t *testing.T, cfg DiffPCFGANConfig, disc DistanceMeasurer) *DiffPCFGAN {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	score := nets.NewScoreMLP(cfg.SeqLen, cfg.InputDim, 8, cfg.NumDiffusionSteps, rng)
	data := tensor.Randn(rng, 16, cfg.SeqLen, cfg.InputDim)
	tr, err := NewDiffPCFGAN(cfg, score, disc, data, data, nil, nil, rng)
	require.NoError(t, err)
	return tr
}

func TestNewDiffPCFGANPropagatesScheduleErrors(t *testing.T) {
	cfg := testConfig()
	cfg.NumDiffusionSteps = 0
	rng := rand.New(rand.NewSource(1))
	score := nets.NewScoreMLP(cfg.SeqLen, cfg.InputDim, 8, 1, rng)
	data := tensor.Randn(rng, 4, cfg.SeqLen, cfg.InputDim)

	_, err := NewDiffPCFGAN(cfg, score, nil, data, data, nil, nil, rng)
	assert.ErrorIs(t, err, diffusion.ErrNonPositiveSteps)
}

func TestBackwardPathFromShapeTriple(t *testing.T) {
	cfg := testConfig()
	cfg.SeqLen = 16
	cfg.InputDim = 3
	cfg.NumDiffusionSteps = 4
	// The default bank needs numSamples*hiddenDim >= seqLen*dim + 1 rows.
	cfg.NumSamplesPCF = 7
	cfg.HiddenDimPCF = 7
	tr := newTestDiffTrainer(t, cfg, nil)

	traj, err := tr.BackwardPath(GenerateOptions{NumSeq: 8, SeqLen: 16, DimSeq: 3})
	require.NoError(t, err)
	require.Len(t, traj, 5, "4 diffusion steps give 5 states")
	for _, state := range traj {
		assert.Equal(t, []int{8, 16, 3}, state.Value.Shape)
	}
}

func TestBackwardPathRequiresAnInputMode(t *testing.T) {
	tr := newTestDiffTrainer(t, testConfig(), nil)

	_, err := tr.BackwardPath(GenerateOptions{})
	assert.ErrorIs(t, err, ErrMissingGenerationInput)

	_, err = tr.BackwardPath(GenerateOptions{NumSeq: 8, SeqLen: 16})
	assert.ErrorIs(t, err, ErrMissingGenerationInput, "partial shape triple")
}

func TestBackwardPathFromExplicitNoise(t *testing.T) {
	cfg := testConfig()
	tr := newTestDiffTrainer(t, cfg, nil)
	noise := tensor.Randn(rand.New(rand.NewSource(2)), 4, cfg.SeqLen, cfg.InputDim)

	traj, err := tr.BackwardPath(GenerateOptions{NoiseStart: noise})
	require.NoError(t, err)
	assert.Equal(t, noise.Data, traj[len(traj)-1].Value.Data, "clean-first: the terminal noise is last")
}

func TestForwardPathKeepsExcludedChannels(t *testing.T) {
	cfg := testConfig()
	cfg.InputDim = 3
	cfg.NumSamplesPCF = 4
	cfg.HiddenDimPCF = 4
	tr := newTestDiffTrainer(t, cfg, nil)
	targets := tensor.Randn(rand.New(rand.NewSource(3)), 4, cfg.SeqLen, 3)

	traj := tr.ForwardPath(targets, []int{-1})
	require.Len(t, traj, cfg.NumDiffusionSteps+1)

	num, seqLen, dim := 4, cfg.SeqLen, 3
	for s, state := range traj {
		for n := 0; n < num; n++ {
			for l := 0; l < seqLen; l++ {
				base := (n*seqLen + l) * dim
				assert.Equal(t, targets.Data[base+2], state.Data[base+2], "state %d: excluded channel", s)
				if s > 0 {
					assert.NotEqual(t, targets.Data[base], state.Data[base], "state %d: diffused channel", s)
				}
			}
		}
	}
}

func TestProbaTeacherForcingAnneal(t *testing.T) {
	tr := newTestDiffTrainer(t, testConfig(), nil)

	tr.OnEpochStart(0)
	assert.InDelta(t, 1.0, tr.ProbaTeacherForcing(), 1e-12)

	tr.OnEpochStart(tr.MaxEpochs / 2)
	assert.InDelta(t, 0.0, tr.ProbaTeacherForcing(), 1e-12)

	prev := 1.0
	for epoch := 1; epoch <= tr.MaxEpochs/2; epoch++ {
		tr.OnEpochStart(epoch)
		p := tr.ProbaTeacherForcing()
		assert.Less(t, p, prev, "epoch %d", epoch)
		prev = p
	}
}

func TestTrainStepReportsFiniteLosses(t *testing.T) {
	cfg := testConfig()
	cfg.UseScoreMatching = true
	tr := newTestDiffTrainer(t, cfg, nil)
	targets := tensor.Randn(rand.New(rand.NewSource(4)), 8, cfg.SeqLen, cfg.InputDim)

	losses, err := tr.TrainStep(targets)
	require.NoError(t, err)

	for _, name := range []string{"train_pcfd", "train_reconst", "train_score_matching", "train_epdf"} {
		v, ok := losses[name]
		require.True(t, ok, "missing %s", name)
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s = %v", name, v)
		assert.Len(t, tr.LossHistory[name], 1)
	}
	assert.GreaterOrEqual(t, losses["train_pcfd"], 0.0)
	assert.GreaterOrEqual(t, losses["train_reconst"], 0.0)
}

func TestTrainStepUpdatesBothSides(t *testing.T) {
	cfg := testConfig()
	rng := rand.New(rand.NewSource(5))
	disc := pcf.NewDiscriminator(cfg.NumSamplesPCF, cfg.HiddenDimPCF, cfg.InputDim*cfg.SeqLen+1, rng)
	tr := newTestDiffTrainer(t, cfg, disc)
	// Past the anneal half-life teacher forcing is off, so the paths are
	// genuinely generated and the distance is positive.
	tr.OnEpochStart(cfg.MaxEpochs / 2)
	targets := tensor.Randn(rng, 8, cfg.SeqLen, cfg.InputDim)

	genBefore := tr.scoreNetwork.Parameters()[0].Value.Clone()
	discBefore := disc.W.Value.Clone()

	_, err := tr.TrainStep(targets)
	require.NoError(t, err)

	assert.NotEqual(t, genBefore.Data, tr.scoreNetwork.Parameters()[0].Value.Data, "generator must step")
	assert.NotEqual(t, discBefore.Data, disc.W.Value.Data, "discriminator must step")
}

func TestFixedMeasureDiscriminatorNeverSteps(t *testing.T) {
	cfg := testConfig()
	cfg.UseFixedMeasureDiscriminator = true
	cfg.NumDStepsPerGStep = 3
	rng := rand.New(rand.NewSource(6))
	disc := pcf.NewDiscriminator(cfg.NumSamplesPCF, cfg.HiddenDimPCF, cfg.InputDim*cfg.SeqLen+1, rng)
	tr := newTestDiffTrainer(t, cfg, disc)
	// Forcing off, so an unfrozen discriminator would actually move.
	tr.OnEpochStart(cfg.MaxEpochs / 2)
	targets := tensor.Randn(rng, 8, cfg.SeqLen, cfg.InputDim)

	before := disc.W.Value.Clone()
	for i := 0; i < 3; i++ {
		_, err := tr.TrainStep(targets)
		require.NoError(t, err)
	}
	assert.Equal(t, before.Data, disc.W.Value.Data, "the frozen bank must stay at its initialization")
}

func TestValidationStepRecordsWithoutUpdating(t *testing.T) {
	cfg := testConfig()
	tr := newTestDiffTrainer(t, cfg, nil)
	targets := tensor.Randn(rand.New(rand.NewSource(7)), 8, cfg.SeqLen, cfg.InputDim)

	genBefore := tr.scoreNetwork.Parameters()[0].Value.Clone()

	losses, err := tr.ValidationStep(targets)
	require.NoError(t, err)

	for _, name := range []string{"val_pcfd", "val_reconst", "val_score_matching", "val_epdf"} {
		_, ok := losses[name]
		assert.True(t, ok, "missing %s", name)
		assert.Len(t, tr.LossHistory[name], 1)
	}
	assert.Equal(t, genBefore.Data, tr.scoreNetwork.Parameters()[0].Value.Data,
		"validation must not touch parameters")
}

func TestDiscriminatorPhaseNegatesDistance(t *testing.T) {
	cfg := testConfig()
	tr := newTestDiffTrainer(t, cfg, nil)
	tr.OnEpochStart(cfg.MaxEpochs / 2)
	targets := tensor.Randn(rand.New(rand.NewSource(11)), 8, cfg.SeqLen, cfg.InputDim)

	genLosses, err := tr.trainingStepGen(targets)
	require.NoError(t, err)
	discLoss, err := tr.trainingStepDisc(targets)
	require.NoError(t, err)

	require.Greater(t, genLosses["train_pcfd"], 0.0)
	assert.LessOrEqual(t, discLoss, 0.0, "the discriminator minimizes the negated distance")

	// Fresh trajectories on both sides, same distance functional: the two
	// phases must see losses of the same scale with opposite signs.
	ratio := -discLoss / genLosses["train_pcfd"]
	assert.Greater(t, ratio, 0.1)
	assert.Less(t, ratio, 10.0)
}

func TestLossWeightDefaultsAndDisable(t *testing.T) {
	tr := newTestDiffTrainer(t, testConfig(), nil)
	assert.Equal(t, 0.1, tr.cfg.ReconstructionWeight)
	assert.Equal(t, 0.1, tr.cfg.ScoreMatchingWeight)

	cfg := testConfig()
	cfg.ReconstructionWeight = -1
	cfg.ScoreMatchingWeight = -1
	tr = newTestDiffTrainer(t, cfg, nil)
	assert.Zero(t, tr.cfg.ReconstructionWeight, "negative disables the term")
	assert.Zero(t, tr.cfg.ScoreMatchingWeight, "negative disables the term")

	cfg = testConfig()
	cfg.ReconstructionWeight = 0.25
	tr = newTestDiffTrainer(t, cfg, nil)
	assert.Equal(t, 0.25, tr.cfg.ReconstructionWeight)
}

// recordingEvaluator captures the artifact paths and sample sizes it was
// asked to render.
type recordingEvaluator struct {
	histPaths []string
	trajPaths []string
	realLens  []int
	fakeLens  []int
	fail      error
}

func (e *recordingEvaluator) CompareHistograms(real, fake []float64, path string) error {
	e.histPaths = append(e.histPaths, path)
	e.realLens = append(e.realLens, len(real))
	e.fakeLens = append(e.fakeLens, len(fake))
	return e.fail
}

func (e *recordingEvaluator) Trajectories(forward, backward [][]float64, path string) error {
	e.trajPaths = append(e.trajPaths, path)
	return e.fail
}

func TestValidationStepPlotsOnSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.PlotEveryEpochs = 2
	cfg.OutputDir = "out/"
	rng := rand.New(rand.NewSource(8))
	score := nets.NewScoreMLP(cfg.SeqLen, cfg.InputDim, 8, cfg.NumDiffusionSteps, rng)
	data := tensor.Randn(rng, 16, cfg.SeqLen, cfg.InputDim)
	eval := &recordingEvaluator{}
	tr, err := NewDiffPCFGAN(cfg, score, nil, data, data, nil, eval, rng)
	require.NoError(t, err)
	targets := tensor.Randn(rng, 8, cfg.SeqLen, cfg.InputDim)

	tr.OnEpochStart(0) // epoch 1 of 2: off schedule
	_, err = tr.ValidationStep(targets)
	require.NoError(t, err)
	assert.Empty(t, eval.histPaths)

	tr.OnEpochStart(1) // epoch 2 of 2: on schedule
	_, err = tr.ValidationStep(targets)
	require.NoError(t, err)
	require.Len(t, eval.histPaths, 1)
	require.Len(t, eval.trajPaths, 1)
	assert.Equal(t, "out/pred_vs_true_epoch_2.png", eval.histPaths[0])
	assert.Equal(t, "out/trajectories_2.png", eval.trajPaths[0])
	// The histogram compares every real value against every generated feature
	// channel, not a single channel slice.
	assert.Equal(t, 8*cfg.SeqLen*cfg.InputDim, eval.realLens[0])
	assert.Equal(t, 8*cfg.SeqLen*cfg.InputDim, eval.fakeLens[0])
}

func TestEvaluationFailureDoesNotAbortTraining(t *testing.T) {
	cfg := testConfig()
	cfg.PlotEveryEpochs = 1
	rng := rand.New(rand.NewSource(9))
	score := nets.NewScoreMLP(cfg.SeqLen, cfg.InputDim, 8, cfg.NumDiffusionSteps, rng)
	data := tensor.Randn(rng, 16, cfg.SeqLen, cfg.InputDim)
	eval := &recordingEvaluator{fail: assert.AnError}
	tr, err := NewDiffPCFGAN(cfg, score, nil, data, data, nil, eval, rng)
	require.NoError(t, err)

	_, err = tr.ValidationStep(tensor.Randn(rng, 8, cfg.SeqLen, cfg.InputDim))
	assert.NoError(t, err, "plotting errors are logged, never propagated")
}

func TestTruncateStepsWindow(t *testing.T) {
	cfg := testConfig()
	cfg.NumStepsCompared = 2
	tr := newTestDiffTrainer(t, cfg, nil)

	rng := rand.New(rand.NewSource(10))
	traj := make([]*tensor.Tensor, cfg.NumDiffusionSteps+1)
	for i := range traj {
		traj[i] = tensor.Randn(rng, 2, cfg.SeqLen, cfg.InputDim)
	}
	feat := pathFeatures(constTrajectory(traj)) // (2, 6, 5)

	got := tr.truncateSteps(feat)
	require.Equal(t, []int{2, 2, 5}, got.Value.Shape)
	// Rows come from the clean end: the zero anchor and the first state.
	assert.Equal(t, feat.Value.Data[:2*5], got.Value.Data[:2*5])
}
