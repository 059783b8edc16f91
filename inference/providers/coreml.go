package providers

// CoreML provider flags.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
const (
	CoreMLFlagUseCPUOnly                 uint32 = 0x001
	CoreMLFlagEnableOnSubgraph           uint32 = 0x002
	CoreMLFlagOnlyEnableDeviceWithANE    uint32 = 0x004
	CoreMLFlagOnlyAllowStaticInputShapes uint32 = 0x008
	CoreMLFlagCreateMLProgram            uint32 = 0x010
)

// CoreMLOptions contains arguments for the CoreML provider.
type CoreMLOptions struct {
	// Flags is a bitwise OR of the CoreMLFlag constants.
	Flags uint32 `json:"flags" yaml:"flags"`
}
