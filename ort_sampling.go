//go:build ort

package main

import (
	"fmt"
	"math/rand"

	"diffpcfgan/diffusion"
	"diffpcfgan/evaluate"
	"diffpcfgan/grad"
	"diffpcfgan/nets"
	"diffpcfgan/tensor"
)

func init() { runSampling = runSamplingORT }

// runSamplingORT denoises fresh terminal noise through an exported ONNX score
// network and renders the generated sequences. Inference only, no training
// state.
func runSamplingORT(modelPath string, num, steps int, seed int64, outDir string) {
	fmt.Printf("Mode: sample | model=%s num=%d steps=%d seed=%d\n", modelPath, num, steps, seed)

	den, err := nets.NewONNXDenoiser(modelPath)
	if err != nil {
		fatal("onnx score network: %v", err)
	}
	defer den.Destroy()

	process, err := diffusion.NewProcess(diffusion.Config{
		TotalSteps: steps,
		Schedule:   diffusion.ScheduleCosine,
		SDE:        diffusion.SDETypeVP,
	})
	if err != nil {
		fatal("diffusion process: %v", err)
	}

	rng := rand.New(rand.NewSource(seed))
	noise := tensor.Randn(rng, num, seqLen, dimSeq)
	traj := process.BackwardSample(grad.Const(noise), den, diffusion.BackwardOptions{Rng: rng})
	clean := traj[len(traj)-1].Value

	series := make([][]float64, num)
	for n := 0; n < num; n++ {
		s := make([]float64, seqLen)
		for l := 0; l < seqLen; l++ {
			s[l] = clean.Data[(n*seqLen+l)*dimSeq]
		}
		series[n] = s
	}

	path := outDir + "samples.png"
	if err := evaluate.NewPlotter().Sequences(series, path); err != nil {
		fatal("sample plot: %v", err)
	}
	fmt.Printf("Wrote %d sequences to %s\n", num, path)
}
