package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full deepcheck configuration.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	ONNX     ONNXConfig     `yaml:"onnx"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Detector DetectorConfig `yaml:"detector"`
	Logging  LoggingConfig  `yaml:"logging"`
	Source   SourceConfig   `yaml:"source"`
}

type ModelConfig struct {
	Path        string `yaml:"path"`
	InputWidth  int    `yaml:"input_width"`
	InputHeight int    `yaml:"input_height"`
}

type ONNXConfig struct {
	LibraryPath string `yaml:"library_path"`
}

type PipelineConfig struct {
	MinIntervalMs int     `yaml:"min_interval_ms"`
	LowMax        float32 `yaml:"low_max"`
	HighMin       float32 `yaml:"high_min"`
	ScoreWindow   int     `yaml:"score_window"`
}

type DetectorConfig struct {
	CascadePath string `yaml:"cascade_path"`
	MinFaceSize int    `yaml:"min_face_size"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Diagnostics bool   `yaml:"diagnostics"`
	SampleRate  int    `yaml:"sample_rate"` // 0 = every frame, N = 1 in N
}

// SourceConfig describes the file-simulated frame source used by the CLI:
// raw planar YUV420 frames, tightly packed, read at the given rate.
type SourceConfig struct {
	Path   string `yaml:"path"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
}

// Load reads configuration from a YAML file. Environment variables
// DEEPCHECK_MODEL_PATH and DEEPCHECK_ONNX_LIBRARY override the file values;
// a .env file next to the binary is honored if present.
//
// Defaults are seeded before unmarshalling, so an explicitly-configured zero
// (e.g. low_max: 0) survives; only absent keys take the default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Config{
		Model: ModelConfig{
			InputWidth:  224,
			InputHeight: 224,
		},
		Pipeline: PipelineConfig{
			MinIntervalMs: 200,
			LowMax:        0.35,
			HighMin:       0.65,
			ScoreWindow:   64,
		},
		Detector: DetectorConfig{
			MinFaceSize: 40,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Source: SourceConfig{
			FPS: 30,
		},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	_ = godotenv.Load()
	if v := os.Getenv("DEEPCHECK_MODEL_PATH"); v != "" {
		cfg.Model.Path = v
	}
	if v := os.Getenv("DEEPCHECK_ONNX_LIBRARY"); v != "" {
		cfg.ONNX.LibraryPath = v
	}

	// The frame ticker divides by FPS.
	if cfg.Source.FPS <= 0 {
		cfg.Source.FPS = 30
	}

	if cfg.Model.Path == "" {
		return nil, fmt.Errorf("model.path is required")
	}

	return &cfg, nil
}
