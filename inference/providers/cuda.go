package providers

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"device_id" yaml:"device_id"`
	// The size limit of the device memory arena in bytes. Zero leaves the runtime default.
	GPUMemLimit int64 `json:"gpu_mem_limit" yaml:"gpu_mem_limit"`
	// The strategy for extending the device memory arena.
	// 0: kNextPowerOfTwo, 1: kSameAsRequested.
	ArenaExtendStrategy int `json:"arena_extend_strategy" yaml:"arena_extend_strategy"`
	// The type of search done for cuDNN convolution algorithms.
	// 0: EXHAUSTIVE, 1: HEURISTIC, 2: DEFAULT.
	CudnnConvAlgoSearch int `json:"cudnn_conv_algo_search" yaml:"cudnn_conv_algo_search"`
}

// ToMap converts the options to the key/value form ONNX Runtime accepts.
func (o CUDAOptions) ToMap() map[string]string {
	m := map[string]string{
		"device_id":              strconv.Itoa(o.DeviceID),
		"arena_extend_strategy":  arenaStrategies[o.ArenaExtendStrategy&1],
		"cudnn_conv_algo_search": convAlgoSearches[min(max(o.CudnnConvAlgoSearch, 0), 2)],
	}
	if o.GPUMemLimit > 0 {
		m["gpu_mem_limit"] = strconv.FormatInt(o.GPUMemLimit, 10)
	}
	return m
}

var (
	arenaStrategies  = [...]string{"kNextPowerOfTwo", "kSameAsRequested"}
	convAlgoSearches = [...]string{"EXHAUSTIVE", "HEURISTIC", "DEFAULT"}
)

func appendCUDA(options *ort.SessionOptions, o CUDAOptions) error {
	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return errors.Wrap(err, "error creating CUDA provider options")
	}
	defer cudaOptions.Destroy()

	if err := cudaOptions.Update(o.ToMap()); err != nil {
		return errors.Wrap(err, "error updating CUDA provider options")
	}
	if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
		return errors.Wrap(err, "error enabling CUDA")
	}
	return nil
}
