//go:build ort

package nets

import (
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"

	"diffpcfgan/grad"
	"diffpcfgan/tensor"
)

// ONNXDenoiser wraps an exported score network as a diffusion.Denoiser for
// sampling. Inference only: the returned scores are constants, so it cannot
// be trained, but it plugs into BackwardSample for unconditional generation.
type ONNXDenoiser struct {
	session *ort.DynamicAdvancedSession
}

// NewONNXDenoiser loads the model. The expected graph takes a float32 sample
// of shape (batch, seq_len, dim) and an int64 step, and returns the score
// with the sample's shape.
func NewONNXDenoiser(modelPath string) (*ONNXDenoiser, error) {
	if !ort.IsInitialized() {
		lib := findORTLibrary()
		if lib == "" {
			return nil, fmt.Errorf("nets: libonnxruntime not found")
		}
		ort.SetSharedLibraryPath(lib)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("nets: ORT init: %w", err)
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("nets: session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll)

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"sample", "step"},
		[]string{"score"},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("nets: score session: %w", err)
	}
	return &ONNXDenoiser{session: session}, nil
}

// Score runs the ONNX graph on x. Panics on session failure, matching how an
// unrecoverable inference-backend fault should surface mid-sampling.
func (d *ONNXDenoiser) Score(x *grad.Var, step int) *grad.Var {
	shape := make([]int64, len(x.Value.Shape))
	data := make([]float32, len(x.Value.Data))
	for i, s := range x.Value.Shape {
		shape[i] = int64(s)
	}
	for i, v := range x.Value.Data {
		data[i] = float32(v)
	}

	sampleTensor, err := ort.NewTensor(ort.NewShape(shape...), data)
	if err != nil {
		panic(fmt.Sprintf("nets: sample tensor: %v", err))
	}
	defer sampleTensor.Destroy()

	stepTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(step)})
	if err != nil {
		panic(fmt.Sprintf("nets: step tensor: %v", err))
	}
	defer stepTensor.Destroy()

	// Run with nil outputs so ORT allocates them.
	outputs := []ort.Value{nil}
	if err := d.session.Run([]ort.Value{sampleTensor, stepTensor}, outputs); err != nil {
		panic(fmt.Sprintf("nets: score inference: %v", err))
	}
	defer outputs[0].Destroy()

	raw := outputs[0].(*ort.Tensor[float32]).GetData()
	out := tensor.New(x.Value.Shape...)
	for i, v := range raw {
		out.Data[i] = float64(v)
	}
	return grad.Const(out)
}

// Destroy releases the session.
func (d *ONNXDenoiser) Destroy() {
	if d.session != nil {
		d.session.Destroy()
	}
}

// findORTLibrary looks for libonnxruntime in common locations.
func findORTLibrary() string {
	candidates := []string{
		"/usr/local/lib/libonnxruntime.dylib",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
	}
	if env := os.Getenv("ORT_LIB"); env != "" {
		return env
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}
