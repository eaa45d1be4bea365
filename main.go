// Package main is the yolov5 command: detect objects in one image and save an
// annotated copy.
package main

import (
	"fmt"
	"os"

	"github.com/nvr-ai/go-yolov5/config"
	"github.com/nvr-ai/go-yolov5/pipeline"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	// Flags.
	flagImage      = "image"
	flagConfig     = "config"
	flagModel      = "model"
	flagLabels     = "labels"
	flagConfidence = "confidence"
	flagNMS        = "nms"
	flagOutput     = "output"
	flagEngine     = "engine"
	flagProvider   = "provider"
	flagJSON       = "json"
	flagDebug      = "debug"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:            "yolov5",
		Usage:           "detect objects in an image with a YOLOv5 ONNX model",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:     flagImage,
				Aliases:  []string{"i"},
				Required: true,
				Usage:    "input image `FILE` (jpg, jpeg, png, bmp, webp)",
			},
			&cli.PathFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from YAML `FILE`",
			},
			&cli.PathFlag{
				Name:  flagModel,
				Usage: "ONNX model `FILE`",
				Value: config.DefaultModelPath,
			},
			&cli.PathFlag{
				Name:  flagLabels,
				Usage: "labels `FILE` with one label per line",
			},
			&cli.Float64Flag{
				Name:  flagConfidence,
				Usage: "minimum detection confidence",
				Value: config.DefaultConfidenceThreshold,
			},
			&cli.Float64Flag{
				Name:  flagNMS,
				Usage: "IoU threshold for non-maximum suppression, 0 disables it",
				Value: config.DefaultNMSThreshold,
			},
			&cli.PathFlag{
				Name:    flagOutput,
				Aliases: []string{"o"},
				Usage:   "annotated PNG output `FILE`",
				Value:   config.DefaultOutputPath,
			},
			&cli.StringFlag{
				Name:  flagEngine,
				Usage: "inference runtime: onnxruntime or opencv",
				Value: string(config.EngineONNXRuntime),
			},
			&cli.StringFlag{
				Name:  flagProvider,
				Usage: "onnxruntime execution provider: cpu, coreml, cuda or openvino",
				Value: string(config.ProviderCPU),
			},
			&cli.BoolFlag{
				Name:  flagJSON,
				Usage: "log in JSON",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	logger, err := newLogger(c.Bool(flagJSON), c.Bool(flagDebug))
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	_, err = pipeline.Run(c.Context, cfg, c.Path(flagImage), logger)
	return err
}

// newLogger builds the development console logger, or the production JSON
// logger when asJSON is set.
func newLogger(asJSON, debug bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if asJSON {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
		if !debug {
			cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		}
	}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return logger.Sugar(), nil
}

// loadConfig starts from the defaults or the --config file and applies every
// flag the user set explicitly.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.Path(flagConfig); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}

	if c.IsSet(flagModel) {
		cfg.ModelPath = c.Path(flagModel)
	}
	if c.IsSet(flagLabels) {
		cfg.LabelsPath = c.Path(flagLabels)
	}
	if c.IsSet(flagConfidence) {
		cfg.ConfidenceThreshold = float32(c.Float64(flagConfidence))
	}
	if c.IsSet(flagNMS) {
		cfg.NMSThreshold = float32(c.Float64(flagNMS))
	}
	if c.IsSet(flagOutput) {
		cfg.OutputPath = c.Path(flagOutput)
	}
	if c.IsSet(flagEngine) {
		cfg.Engine = config.Engine(c.String(flagEngine))
	}
	if c.IsSet(flagProvider) {
		cfg.Provider = config.Provider(c.String(flagProvider))
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}
