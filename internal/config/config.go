package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Quality selects the target bitrate tier for recordings.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

type CaptureConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Display int  `mapstructure:"display" yaml:"display"`
}

type OutputConfig struct {
	Directory   string  `mapstructure:"directory" yaml:"directory"`
	ImageFormat string  `mapstructure:"image_format" yaml:"image_format"`
	Quality     Quality `mapstructure:"quality" yaml:"quality"`
}

// BridgeConfig describes the optional remote broadcast-tool bridge.
type BridgeConfig struct {
	Address  string `mapstructure:"address" yaml:"address"`
	Password string `mapstructure:"password" yaml:"password"`
}

// HotkeyConfig names the two hotkeys an always-running external capture
// utility listens for. They are used only by the input-simulation fallback.
type HotkeyConfig struct {
	Screenshot string `mapstructure:"screenshot" yaml:"screenshot"`
	Record     string `mapstructure:"record" yaml:"record"`
}

type ToolsConfig struct {
	FFmpeg         string `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	ScreenshotTool string `mapstructure:"screenshot_tool" yaml:"screenshot_tool"`
}

type Config struct {
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Bridge  BridgeConfig  `mapstructure:"bridge" yaml:"bridge"`
	Hotkeys HotkeyConfig  `mapstructure:"hotkeys" yaml:"hotkeys"`
	Tools   ToolsConfig   `mapstructure:"tools" yaml:"tools"`
}

var defaultConfig = Config{
	Capture: CaptureConfig{
		Enabled: true,
		Display: 0,
	},
	Output: OutputConfig{
		Directory:   filepath.Join("~", "Videos", "Clipdeck"),
		ImageFormat: "png",
		Quality:     QualityMedium,
	},
	Bridge: BridgeConfig{
		Address: "ws://127.0.0.1:4455",
	},
	Hotkeys: HotkeyConfig{
		Screenshot: "F11",
		Record:     "F12",
	},
	Tools: ToolsConfig{
		FFmpeg: "ffmpeg",
	},
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	cfg := defaultConfig
	return &cfg
}

// Load reads the YAML config file, applies defaults for missing fields and
// validates the result. Environment variables with the CLIPDECK_ prefix
// override file values.
func Load(configFile string) (*Config, error) {
	cfg := Default()
	if configFile == "" {
		cfg.Output.Directory = ExpandPath(cfg.Output.Directory)
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetEnvPrefix("CLIPDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			cfg.Output.Directory = ExpandPath(cfg.Output.Directory)
			return cfg, nil
		}
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	applyDefaults(cfg)
	cfg.Output.Directory = ExpandPath(cfg.Output.Directory)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Output.Directory == "" {
		cfg.Output.Directory = defaultConfig.Output.Directory
	}
	if cfg.Output.ImageFormat == "" {
		cfg.Output.ImageFormat = defaultConfig.Output.ImageFormat
	}
	if cfg.Output.Quality == "" {
		cfg.Output.Quality = defaultConfig.Output.Quality
	}
	if cfg.Bridge.Address == "" {
		cfg.Bridge.Address = defaultConfig.Bridge.Address
	}
	if cfg.Tools.FFmpeg == "" {
		cfg.Tools.FFmpeg = defaultConfig.Tools.FFmpeg
	}
	if cfg.Hotkeys.Screenshot == "" {
		cfg.Hotkeys.Screenshot = defaultConfig.Hotkeys.Screenshot
	}
	if cfg.Hotkeys.Record == "" {
		cfg.Hotkeys.Record = defaultConfig.Hotkeys.Record
	}
}

// Validate checks field values that a typo in the YAML would break.
func Validate(cfg *Config) error {
	if cfg.Capture.Display < 0 {
		return fmt.Errorf("capture.display must be >= 0, got: %d", cfg.Capture.Display)
	}

	switch strings.ToLower(cfg.Output.ImageFormat) {
	case "png", "jpg", "jpeg":
	default:
		return fmt.Errorf("output.image_format must be 'png', 'jpg' or 'jpeg', got: %s", cfg.Output.ImageFormat)
	}

	switch Quality(strings.ToLower(string(cfg.Output.Quality))) {
	case QualityLow, QualityMedium, QualityHigh:
	default:
		return fmt.Errorf("output.quality must be 'low', 'medium' or 'high', got: %s", cfg.Output.Quality)
	}

	if cfg.Output.Directory == "" {
		return fmt.Errorf("output.directory must not be empty")
	}

	if cfg.Bridge.Address != "" {
		if !strings.HasPrefix(cfg.Bridge.Address, "ws://") && !strings.HasPrefix(cfg.Bridge.Address, "wss://") {
			return fmt.Errorf("bridge.address must be a ws:// or wss:// URL, got: %s", cfg.Bridge.Address)
		}
	}

	return nil
}

// ImageExtension returns the file extension for still images, without dot.
func (c *Config) ImageExtension() string {
	format := strings.ToLower(c.Output.ImageFormat)
	if format == "jpeg" {
		return "jpg"
	}
	if format == "" {
		return "png"
	}
	return format
}

// ExpandPath expands a leading "~/" and any environment variables in a path.
func ExpandPath(path string) string {
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~"+string(filepath.Separator)) || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			if path == "~" {
				return homeDir
			}
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
