package inference

import (
	"runtime"

	"github.com/nvr-ai/go-yolov5/config"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// GetSharedLibPath returns the path to the onnxruntime shared library for the
// current platform.
//
// Returns:
//   - string: The path to the shared library, empty if the platform has none.
func GetSharedLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "./third_party/onnxruntime.dll"
	case "darwin":
		return "./third_party/libonnxruntime.dylib"
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so"
		}
		return "./third_party/onnxruntime.so"
	}
	return ""
}

// newSessionOptions builds the onnxruntime session options for args.
//
// The caller must Destroy the returned options.
func newSessionOptions(args EngineArgs) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}

	intra, inter := args.IntraOpThreads, args.InterOpThreads
	// Sequential runs are single threaded so repeated runs match bit for bit.
	if args.ExecutionMode != config.ExecutionParallel {
		if intra == 0 {
			intra = 1
		}
		inter = 1
	}
	if err := options.SetIntraOpNumThreads(intra); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "set intra-op threads")
	}
	if err := options.SetInterOpNumThreads(inter); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "set inter-op threads")
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		options.Destroy()
		return nil, errors.Wrap(err, "set graph optimization level")
	}

	if err := appendProvider(options, args.Provider); err != nil {
		options.Destroy()
		return nil, err
	}
	return options, nil
}

// appendProvider enables the execution provider on top of the default CPU
// provider.
func appendProvider(options *ort.SessionOptions, provider config.Provider) error {
	switch provider {
	case config.ProviderCPU, "":
		return nil
	case config.ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return errors.Wrap(err, "enable CoreML")
		}
	case config.ProviderOpenVINO:
		// See:
		// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
		if err := options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
			"precision":   "FP32",
		}); err != nil {
			return errors.Wrap(err, "enable OpenVINO")
		}
	case config.ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "create CUDA options")
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": "0"}); err != nil {
			return errors.Wrap(err, "update CUDA options")
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return errors.Wrap(err, "enable CUDA")
		}
	default:
		return errors.Errorf("unsupported provider: %s", provider)
	}
	return nil
}
