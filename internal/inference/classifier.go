package inference

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// Classifier is a loaded binary classifier with fixed, preallocated input and
// output buffers. Input returns the flat [1, H, W, 3] float buffer the caller
// fills before Run; Output returns the [1, 2] score vector Run overwrites.
// Implementations are not safe for concurrent Run calls.
type Classifier interface {
	Run() error
	Input() []float32
	Output() []float32
	Close() error
}

// outputClasses is the fixed width of the score vector: [fake, real].
const outputClasses = 2

// ONNXClassifier runs a file-backed ONNX model through onnxruntime with
// persistent tensors, so steady-state inference allocates nothing.
type ONNXClassifier struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// InitRuntime points onnxruntime at its shared library and initializes the
// environment. Must be called once before NewONNXClassifier.
func InitRuntime(libraryPath string) error {
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	return nil
}

// DestroyRuntime tears down the onnxruntime environment.
func DestroyRuntime() error {
	return ort.DestroyEnvironment()
}

// NewONNXClassifier memory-maps the model at modelPath and validates its
// declared tensor shapes against inputWidth x inputHeight x 3 floats in and a
// 2-element float vector out. A mismatch is a fatal load error: starting the
// pipeline against the wrong model geometry would only fail later, per frame.
func NewONNXClassifier(modelPath string, inputWidth, inputHeight int) (*ONNXClassifier, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect model %s: %w", modelPath, err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("model must have exactly one input and one output, got %d/%d",
			len(inputs), len(outputs))
	}

	inputSize := int64(inputWidth) * int64(inputHeight) * 3
	if n := elementCount(inputs[0].Dimensions); n != inputSize {
		return nil, fmt.Errorf("model input %v does not match %dx%dx3 floats",
			inputs[0].Dimensions, inputWidth, inputHeight)
	}
	if n := elementCount(outputs[0].Dimensions); n != outputClasses {
		return nil, fmt.Errorf("model output %v is not a %d-element vector",
			outputs[0].Dimensions, outputClasses)
	}

	inputData := make([]float32, inputSize)
	outputData := make([]float32, outputClasses)

	inputTensor, err := ort.NewTensor([]int64{1, int64(inputHeight), int64(inputWidth), 3}, inputData)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewTensor([]int64{1, outputClasses}, outputData)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	sessionOptions, err := ort.NewSessionOptions()
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer sessionOptions.Destroy()

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		sessionOptions,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &ONNXClassifier{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

// Run executes one inference against the persistent tensors.
func (c *ONNXClassifier) Run() error {
	if err := c.session.Run(); err != nil {
		return fmt.Errorf("inference failed: %w", err)
	}
	return nil
}

// Input returns the persistent input buffer. Contents are consumed by the
// next Run call.
func (c *ONNXClassifier) Input() []float32 {
	return c.inputTensor.GetData()
}

// Output returns the persistent [fake, real] score vector, overwritten by
// every Run call.
func (c *ONNXClassifier) Output() []float32 {
	return c.outputTensor.GetData()
}

// Close releases the session and tensors.
func (c *ONNXClassifier) Close() error {
	if c.session != nil {
		c.session.Destroy()
	}
	if c.inputTensor != nil {
		c.inputTensor.Destroy()
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
	}
	return nil
}

func elementCount(dims []int64) int64 {
	n := int64(1)
	for _, d := range dims {
		if d > 0 {
			n *= d
		}
	}
	return n
}
