// Package config - Run configuration for the detection pipeline.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Engine selects the runtime that executes the model.
type Engine string

const (
	// EngineONNXRuntime runs the model with the onnxruntime shared library.
	EngineONNXRuntime Engine = "onnxruntime"
	// EngineOpenCV runs the model with the OpenCV DNN module.
	EngineOpenCV Engine = "opencv"
)

// Provider is an ONNX Runtime execution provider.
type Provider string

const (
	// ProviderCPU uses the default CPU execution provider.
	ProviderCPU Provider = "cpu"
	// ProviderCoreML uses Apple CoreML for macOS acceleration.
	ProviderCoreML Provider = "coreml"
	// ProviderCUDA uses NVIDIA CUDA for GPU acceleration.
	ProviderCUDA Provider = "cuda"
	// ProviderOpenVINO uses Intel OpenVINO.
	ProviderOpenVINO Provider = "openvino"
)

// OutputType describes how the model lays out its detection head.
type OutputType string

const (
	// OutputAuto infers the layout from the model's output shapes.
	OutputAuto OutputType = "auto"
	// OutputBox is a single decoded [1, N, 5+C] output.
	OutputBox OutputType = "box"
	// OutputAnchor is three raw [1, 3, H, W, 5+C] head outputs.
	OutputAnchor OutputType = "anchor"
)

// ExecutionMode mirrors the onnxruntime execution modes.
type ExecutionMode string

const (
	// ExecutionSequential runs graph nodes one after another. Output is
	// reproducible run to run.
	ExecutionSequential ExecutionMode = "sequential"
	// ExecutionParallel runs independent graph nodes concurrently.
	ExecutionParallel ExecutionMode = "parallel"
)

// Config holds everything one detection run needs.
type Config struct {
	// ModelPath is the path to the exported YOLOv5 ONNX model.
	ModelPath string `json:"model_path" yaml:"model_path"`

	// LabelsPath optionally points at a text file with one label per line.
	// When set it replaces Labels.
	LabelsPath string `json:"labels_path" yaml:"labels_path"`

	// Labels is the order-sensitive label set the model was trained with.
	Labels []string `json:"labels" yaml:"labels"`

	// InputSize is the square model input resolution in pixels.
	InputSize int `json:"input_size" yaml:"input_size"`

	// ConfidenceThreshold drops detections scoring below this value.
	ConfidenceThreshold float32 `json:"confidence_threshold" yaml:"confidence_threshold"`

	// NMSThreshold is the IoU above which overlapping boxes of the same class
	// are suppressed. Zero disables suppression.
	NMSThreshold float32 `json:"nms_threshold" yaml:"nms_threshold"`

	// OutputType selects the YOLOv5 head layout.
	OutputType OutputType `json:"output_type" yaml:"output_type"`

	// Engine selects the inference runtime.
	Engine Engine `json:"engine" yaml:"engine"`

	// Provider selects the onnxruntime execution provider.
	Provider Provider `json:"provider" yaml:"provider"`

	// IntraOpThreads parallelizes work inside graph nodes, 0 = runtime default.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`

	// InterOpThreads parallelizes independent graph nodes, 0 = runtime default.
	InterOpThreads int `json:"inter_op_threads" yaml:"inter_op_threads"`

	// ExecutionMode controls sequential vs parallel graph execution.
	ExecutionMode ExecutionMode `json:"execution_mode" yaml:"execution_mode"`

	// SharedLibraryPath overrides the platform default onnxruntime library.
	SharedLibraryPath string `json:"shared_library_path" yaml:"shared_library_path"`

	// OutputPath is where the annotated PNG is written.
	OutputPath string `json:"output_path" yaml:"output_path"`
}

// DefaultLabels is the label set of the bundled card-game model.
var DefaultLabels = []string{
	"HeartBreak", "octoberTreat", "PiercingSound", "baobao", "PeaceTreaty",
	"chuchangshunxu", "binsizhuangtai", "kapaijinyong", "SurgarRush", "Singlecombat",
	"duimiankapai", "CarrotHammer", "kapajinyongSurgarRush", "wofangshengyukapai", "GasUnleash",
	"IvoryStab", "siwangzhuangtai", "nengliangshumu", "All-outshot", "Surpriseinvasion",
	"Insectivore", "Endturn",
}

const (
	// DefaultModelPath is where the exported model is expected.
	DefaultModelPath = "./models/best.onnx"
	// DefaultOutputPath is where the annotated image is written.
	DefaultOutputPath = "build/output/yolov5.png"
	// DefaultInputSize is the YOLOv5 training resolution.
	DefaultInputSize = 640
	// DefaultConfidenceThreshold is the minimum score a detection needs.
	DefaultConfidenceThreshold = 0.3
	// DefaultNMSThreshold matches the usual YOLOv5 translator default.
	DefaultNMSThreshold = 0.4
)

// Default returns the configuration the program runs with when nothing is
// overridden.
//
// Returns:
//   - Config: The default configuration.
func Default() Config {
	labels := make([]string, len(DefaultLabels))
	copy(labels, DefaultLabels)

	return Config{
		ModelPath:           DefaultModelPath,
		Labels:              labels,
		InputSize:           DefaultInputSize,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		NMSThreshold:        DefaultNMSThreshold,
		OutputType:          OutputAuto,
		Engine:              EngineONNXRuntime,
		Provider:            ProviderCPU,
		ExecutionMode:       ExecutionSequential,
		OutputPath:          DefaultOutputPath,
	}
}

// Load reads a YAML configuration file on top of the defaults. Keys missing
// from the file keep their default values. The result is not validated, so
// callers can apply overrides first and call Validate on the final value.
//
// Arguments:
//   - path: The path to the YAML file.
//
// Returns:
//   - Config: The merged configuration.
//   - error: An error if the file cannot be read or parsed.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Validate checks that every field holds a usable value.
//
// Returns:
//   - error: The first problem found, nil if the configuration is usable.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model_path is required")
	}
	if c.OutputPath == "" {
		return errors.New("output_path is required")
	}
	if c.LabelsPath == "" && len(c.Labels) == 0 {
		return errors.New("labels or labels_path is required")
	}
	if c.InputSize <= 0 || c.InputSize%32 != 0 {
		return errors.Errorf("input_size must be a positive multiple of 32, got %d", c.InputSize)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return errors.Errorf("confidence_threshold must be within [0, 1], got %v", c.ConfidenceThreshold)
	}
	if c.NMSThreshold < 0 || c.NMSThreshold > 1 {
		return errors.Errorf("nms_threshold must be within [0, 1], got %v", c.NMSThreshold)
	}
	if c.IntraOpThreads < 0 || c.InterOpThreads < 0 {
		return errors.New("thread counts must not be negative")
	}

	switch c.OutputType {
	case OutputAuto, OutputBox, OutputAnchor:
	default:
		return errors.Errorf("unsupported output_type: %q", c.OutputType)
	}
	switch c.Engine {
	case EngineONNXRuntime, EngineOpenCV:
	default:
		return errors.Errorf("unsupported engine: %q", c.Engine)
	}
	switch c.Provider {
	case ProviderCPU, ProviderCoreML, ProviderCUDA, ProviderOpenVINO:
	default:
		return errors.Errorf("unsupported provider: %q", c.Provider)
	}
	switch c.ExecutionMode {
	case ExecutionSequential, ExecutionParallel:
	default:
		return errors.Errorf("unsupported execution_mode: %q", c.ExecutionMode)
	}

	return nil
}
