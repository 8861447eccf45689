package main

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"diffpcfgan/dataset"
	"diffpcfgan/evaluate"
	"diffpcfgan/nets"
	"diffpcfgan/tensor"
	"diffpcfgan/trainer"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("diffpcfgan - time-series generation with a PCF discriminator distance")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  diffpcfgan diff [epochs] [batch] [diffusion_steps] [seed] [out_dir]")
		fmt.Println("  diffpcfgan gan  [epochs] [batch] [d_steps] [seed] [out_dir]")
		fmt.Println("  diffpcfgan sample <model.onnx> [num_seq] [diffusion_steps] [seed] [out_dir]")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  diffpcfgan diff 300 64 32 42 ./out/")
		fmt.Println("  diffpcfgan gan 500 64 2 42 ./out/")
		fmt.Println("  diffpcfgan sample score.onnx 64 32 42 ./out/   (needs a -tags ort build)")
		os.Exit(0)
	}

	mode := os.Args[1]
	if mode == "sample" {
		runSamplingMode(os.Args[2:])
		return
	}
	epochs := 300
	batchSize := 64
	steps := 32
	seed := int64(42)
	outDir := "./out/"

	if len(os.Args) > 2 {
		fmt.Sscanf(os.Args[2], "%d", &epochs)
	}
	if len(os.Args) > 3 {
		fmt.Sscanf(os.Args[3], "%d", &batchSize)
	}
	if len(os.Args) > 4 {
		fmt.Sscanf(os.Args[4], "%d", &steps)
	}
	if len(os.Args) > 5 {
		fmt.Sscanf(os.Args[5], "%d", &seed)
	}
	if len(os.Args) > 6 {
		outDir = os.Args[6]
	}
	if !strings.HasSuffix(outDir, "/") {
		outDir += "/"
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fatal("output dir: %v", err)
	}

	switch mode {
	case "diff":
		runDiffusionTraining(epochs, batchSize, steps, seed, outDir)
	case "gan":
		runGANTraining(epochs, batchSize, steps, seed, outDir)
	default:
		fatal("unknown mode %q (want diff, gan or sample)", mode)
	}
}

// runSampling is installed by the onnxruntime build (see ort_sampling.go);
// without the ort tag the sample mode is unavailable.
var runSampling func(modelPath string, num, steps int, seed int64, outDir string)

func runSamplingMode(args []string) {
	if runSampling == nil {
		fatal("sample mode needs an onnxruntime build: go build -tags ort")
	}
	if len(args) < 1 {
		fatal("sample mode needs a model path")
	}
	modelPath := args[0]
	num := 64
	steps := 32
	seed := int64(42)
	outDir := "./out/"

	if len(args) > 1 {
		fmt.Sscanf(args[1], "%d", &num)
	}
	if len(args) > 2 {
		fmt.Sscanf(args[2], "%d", &steps)
	}
	if len(args) > 3 {
		fmt.Sscanf(args[3], "%d", &seed)
	}
	if len(args) > 4 {
		outDir = args[4]
	}
	if !strings.HasSuffix(outDir, "/") {
		outDir += "/"
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fatal("output dir: %v", err)
	}
	runSampling(modelPath, num, steps, seed, outDir)
}

const (
	numSequences = 512
	seqLen       = 16
	dimSeq       = 2
)

func runDiffusionTraining(epochs, batchSize, diffusionSteps int, seed int64, outDir string) {
	fmt.Printf("Mode: diffusion | epochs=%d batch=%d steps=%d seed=%d\n", epochs, batchSize, diffusionSteps, seed)

	rng := rand.New(rand.NewSource(seed))
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	// ===== Phase 1: Data =====
	fmt.Print("Sampling Ornstein-Uhlenbeck paths... ")
	start := time.Now()
	data := dataset.Normalize(dataset.OrnsteinUhlenbeck(numSequences, seqLen, dimSeq, 1.0, 0.0, 0.5, rng))
	train, val := dataset.Split(data, 0.8)
	fmt.Printf("done (%v), train=%d val=%d\n", time.Since(start), train.Shape[0], val.Shape[0])

	// ===== Phase 2: Model =====
	scoreNet := nets.NewScoreMLP(seqLen, dimSeq, 64, diffusionSteps, rng)
	cfg := trainer.DiffPCFGANConfig{
		InputDim:          dimSeq,
		SeqLen:            seqLen,
		LearningRateGen:   1e-3,
		LearningRateDisc:  1e-3,
		NumDStepsPerGStep: 2,
		NumSamplesPCF:     8,
		HiddenDimPCF:      8,
		NumDiffusionSteps: diffusionSteps,
		UseScoreMatching:  true,
		MaxEpochs:         epochs,
		PlotEveryEpochs:   100,
		OutputDir:         outDir,
	}
	tr, err := trainer.NewDiffPCFGAN(cfg, scoreNet, nil, train, val, log, evaluate.NewPlotter(), rng)
	if err != nil {
		fatal("trainer: %v", err)
	}

	// ===== Phase 3: Training =====
	runEpochs(epochs, batchSize, train, val, func(batch *tensor.Tensor) (float64, error) {
		losses, err := tr.TrainStep(batch)
		if err != nil {
			return 0, err
		}
		return losses["train_pcfd"], nil
	}, func(val *tensor.Tensor) error {
		_, err := tr.ValidationStep(val)
		return err
	}, tr.OnEpochStart)
}

func runGANTraining(epochs, batchSize, dSteps int, seed int64, outDir string) {
	fmt.Printf("Mode: gan | epochs=%d batch=%d d_steps=%d seed=%d\n", epochs, batchSize, dSteps, seed)

	rng := rand.New(rand.NewSource(seed))
	log := logrus.New()

	data := dataset.Normalize(dataset.Sine(numSequences, seqLen, dimSeq, rng))
	train, val := dataset.Split(data, 0.8)

	generator := nets.NewSingleStateRecurrent(4, 32, dimSeq, rng)
	cfg := trainer.PCFGANConfig{
		InputDim:          dimSeq,
		LearningRateGen:   1e-3,
		LearningRateDisc:  1e-3,
		NumDStepsPerGStep: dSteps,
		NumSamplesPCF:     8,
		HiddenDimPCF:      8,
		MaxEpochs:         epochs,
		PlotEveryEpochs:   50,
		OutputDir:         outDir,
	}
	tr := trainer.NewPCFGAN(cfg, generator, nil, log, evaluate.NewPlotter(), rng)

	runEpochs(epochs, batchSize, train, val, func(batch *tensor.Tensor) (float64, error) {
		return tr.TrainStep(batch)
	}, func(val *tensor.Tensor) error {
		_, err := tr.ValidationStep(val)
		return err
	}, tr.OnEpochStart)
}

// runEpochs drives the strict phase sequence: for each epoch, every training
// batch in order, then one validation pass.
func runEpochs(
	epochs, batchSize int,
	train, val *tensor.Tensor,
	trainStep func(*tensor.Tensor) (float64, error),
	validate func(*tensor.Tensor) error,
	onEpochStart func(int),
) {
	numBatches := (train.Shape[0] + batchSize - 1) / batchSize
	start := time.Now()

	for epoch := 0; epoch < epochs; epoch++ {
		onEpochStart(epoch)

		var lastLoss float64
		for b := 0; b < numBatches; b++ {
			batch := dataset.Batch(train, b, batchSize)
			loss, err := trainStep(batch)
			if err != nil {
				fatal("train step (epoch %d, batch %d): %v", epoch, b, err)
			}
			lastLoss = loss
		}

		if err := validate(val); err != nil {
			fatal("validation (epoch %d): %v", epoch, err)
		}

		if (epoch+1)%10 == 0 {
			fmt.Printf("epoch %4d/%d  train_pcfd=%.6f  (%.1fs)\n",
				epoch+1, epochs, lastLoss, time.Since(start).Seconds())
		}
	}
	fmt.Printf("Training finished in %v\n", time.Since(start))
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
