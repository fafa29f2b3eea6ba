package config

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// LogLevel defines the minimum severity for log output.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// Default engine tuning values. The queue watermarks only influence the
// producer-side backpressure hint; they never cause data to be dropped.
const (
	DefaultQueueLowWatermark  = 8
	DefaultQueueHighWatermark = 16

	// DefaultPriorityWeight is the wire value (0-255). The effective weight
	// is this value + 1, i.e. 16, matching the protocol default.
	DefaultPriorityWeight = 15
)

// Config is the top-level configuration structure.
type Config struct {
	Engine  *EngineConfig  `json:"engine,omitempty" toml:"engine,omitempty"`
	Logging *LoggingConfig `json:"logging,omitempty" toml:"logging,omitempty"`
}

// EngineConfig holds per-stream engine tuning.
// All fields are optional; absent fields take the package defaults above.
type EngineConfig struct {
	// QueueLowWatermark / QueueHighWatermark bound the inbound queue's
	// "room available" signal used to hint producer-side backpressure.
	QueueLowWatermark  *int `json:"queue_low_watermark,omitempty" toml:"queue_low_watermark,omitempty"`
	QueueHighWatermark *int `json:"queue_high_watermark,omitempty" toml:"queue_high_watermark,omitempty"`

	// DefaultPriorityWeight is the wire-value weight (0-255) assigned to
	// streams that never negotiated a priority.
	DefaultPriorityWeight *int `json:"default_priority_weight,omitempty" toml:"default_priority_weight,omitempty"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	LogLevel LogLevel `json:"log_level,omitempty" toml:"log_level,omitempty"`
	// Target is "stdout", "stderr", or an absolute file path.
	Target string `json:"target,omitempty" toml:"target,omitempty"`
}

// IsFilePath reports whether a log target refers to a file rather than a
// standard stream.
func IsFilePath(target string) bool {
	return target != "stdout" && target != "stderr" && target != ""
}

// LoadConfig reads, parses, defaults and validates a configuration file.
// The format is detected from the file extension (.toml / .json); files
// without a recognized extension are tried as JSON first, then TOML.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}

	cfg := &Config{}
	switch {
	case strings.HasSuffix(path, ".toml"):
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing TOML config %s", path)
		}
	case strings.HasSuffix(path, ".json"):
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing JSON config %s", path)
		}
	default:
		jsonErr := json.Unmarshal(data, cfg)
		if jsonErr != nil {
			*cfg = Config{}
			if tomlErr := toml.Unmarshal(data, cfg); tomlErr != nil {
				return nil, errors.Errorf("config %s is neither valid JSON (%v) nor valid TOML (%v)", path, jsonErr, tomlErr)
			}
		}
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, errors.Wrapf(err, "validating config %s", path)
	}
	return cfg, nil
}

// ApplyDefaults fills in any absent optional fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Engine == nil {
		cfg.Engine = &EngineConfig{}
	}
	if cfg.Engine.QueueLowWatermark == nil {
		v := DefaultQueueLowWatermark
		cfg.Engine.QueueLowWatermark = &v
	}
	if cfg.Engine.QueueHighWatermark == nil {
		v := DefaultQueueHighWatermark
		cfg.Engine.QueueHighWatermark = &v
	}
	if cfg.Engine.DefaultPriorityWeight == nil {
		v := DefaultPriorityWeight
		cfg.Engine.DefaultPriorityWeight = &v
	}
	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.LogLevel == "" {
		cfg.Logging.LogLevel = LogLevelInfo
	}
	if cfg.Logging.Target == "" {
		cfg.Logging.Target = "stderr"
	}
}

// Validate checks range constraints. It assumes ApplyDefaults has run.
func Validate(cfg *Config) error {
	eng := cfg.Engine
	if *eng.QueueLowWatermark < 0 {
		return errors.Errorf("queue_low_watermark must be >= 0, got %d", *eng.QueueLowWatermark)
	}
	if *eng.QueueHighWatermark < 1 {
		return errors.Errorf("queue_high_watermark must be >= 1, got %d", *eng.QueueHighWatermark)
	}
	if *eng.QueueLowWatermark > *eng.QueueHighWatermark {
		return errors.Errorf("queue_low_watermark (%d) must not exceed queue_high_watermark (%d)",
			*eng.QueueLowWatermark, *eng.QueueHighWatermark)
	}
	if w := *eng.DefaultPriorityWeight; w < 0 || w > 255 {
		return errors.Errorf("default_priority_weight must be in [0,255], got %d", w)
	}
	switch cfg.Logging.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return errors.Errorf("unknown log_level %q", cfg.Logging.LogLevel)
	}
	return nil
}
