// Package detectors - ONNX Runtime object detectors.
package detectors

import (
	"fmt"

	"github.com/nvr-ai/go-detect/inference/providers"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// Config represents the configuration of a YOLO-style ONNX detector.
type Config struct {
	// ModelPath is the path to the .onnx file.
	ModelPath string `json:"model_path" yaml:"model_path"`

	// SharedLibPath overrides the onnxruntime shared library location.
	SharedLibPath string `json:"shared_lib_path" yaml:"shared_lib_path"`

	// InputSize is the square model input edge in pixels.
	InputSize int `json:"input_size" yaml:"input_size"`

	// NumClasses is the number of class scores per anchor.
	NumClasses int `json:"num_classes" yaml:"num_classes"`

	// InputName and OutputName are the model tensor names.
	InputName  string `json:"input_name"  yaml:"input_name"`
	OutputName string `json:"output_name" yaml:"output_name"`

	// NMS controls Non-Maximum Suppression.
	NMS postprocess.NMSConfig `json:"nms" yaml:"nms"`

	// Provider selects the execution provider.
	Provider providers.Config `json:"provider" yaml:"provider"`
}

// DefaultConfig returns the configuration for a 640x640 YOLOv8 export.
//
// Arguments:
//   - modelPath: The path to the model.
//   - numClasses: The number of classes the model was trained on.
//
// Returns:
//   - Config: The configuration.
func DefaultConfig(modelPath string, numClasses int) Config {
	return Config{
		ModelPath:  modelPath,
		InputSize:  640,
		NumClasses: numClasses,
		InputName:  "images",
		OutputName: "output0",
		NMS: postprocess.NMSConfig{
			IoUThreshold: postprocess.DefaultIoUThreshold,
			ClassAware:   true,
		},
		Provider: providers.DefaultConfig(),
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch {
	case c.ModelPath == "":
		return fmt.Errorf("model path is required")
	case c.InputSize < 32 || c.InputSize%32 != 0:
		return fmt.Errorf("input size must be a positive multiple of 32, got %d", c.InputSize)
	case c.NumClasses < 1:
		return fmt.Errorf("num classes must be at least 1, got %d", c.NumClasses)
	case c.InputName == "" || c.OutputName == "":
		return fmt.Errorf("input and output tensor names are required")
	case c.NMS.IoUThreshold <= 0 || c.NMS.IoUThreshold > 1:
		return fmt.Errorf("nms iou threshold must be in (0, 1], got %v", c.NMS.IoUThreshold)
	}
	return nil
}

// Anchors returns the number of prediction anchors a YOLOv8 head emits for
// a square input of the given size (strides 8, 16 and 32).
func Anchors(inputSize int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		side := inputSize / stride
		n += side * side
	}
	return n
}
