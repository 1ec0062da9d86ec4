// Package config loads and validates the controller's YAML
// configuration, with environment-variable overrides for
// deployment-dependent fields.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chuyangliu/dcell/internal/logger"
)

// FileLoggerConfig configures lumberjack-backed file rotation, used
// when LoggerConfig.Mode == "file".
type FileLoggerConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

// LoggerConfig configures the zap-backed structured logger.
type LoggerConfig struct {
	Active   bool             `yaml:"active"`
	Level    string           `yaml:"level"`
	Encoding string           `yaml:"encoding"`
	Mode     string           `yaml:"mode"`
	File     FileLoggerConfig `yaml:"file"`
}

// TracingConfig configures the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// TelemetryConfig groups the optional tracing configuration.
type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// DCellConfig fixes the DCell geometry and the host-addressing scheme,
// per spec.md §6: k, n, link_bw, link_timeout, ip_base, ip_mask.
type DCellConfig struct {
	K                 int           `yaml:"k"`
	N                 int           `yaml:"n"`
	LinkBandwidthMbps int           `yaml:"linkBandwidthMbps"`
	LinkTimeout       time.Duration `yaml:"linkTimeout"`
	IPBase            int           `yaml:"ipBase"`
	IPMask            int           `yaml:"ipMask"`
}

// ControllerConfig configures the OpenFlow listener, mirroring the
// "openflow.of_01 --port=%d" argument of the original POX launch
// string (original_source/pox/ext/main.py).
type ControllerConfig struct {
	ListenPort int `yaml:"listenPort"`
}

// Config is the root configuration document.
type Config struct {
	Logger     LoggerConfig     `yaml:"logger"`
	DCell      DCellConfig      `yaml:"dcell"`
	Controller ControllerConfig `yaml:"controller"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// LoadConfig reads and parses the YAML configuration file at path.
//
// This performs only syntactic parsing; call ValidateConfig afterward
// to check structural correctness.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides for fields
// that are commonly deployment-dependent:
//
//	DCELL_K                 -> cfg.DCell.K
//	DCELL_N                 -> cfg.DCell.N
//	DCELL_LINK_BW           -> cfg.DCell.LinkBandwidthMbps
//	DCELL_LINK_TIMEOUT      -> cfg.DCell.LinkTimeout (duration string, e.g. "1s")
//	DCELL_IP_BASE           -> cfg.DCell.IPBase
//	DCELL_IP_MASK           -> cfg.DCell.IPMask
//	CONTROLLER_LISTEN_PORT  -> cfg.Controller.ListenPort
//	TRACE_ENABLED           -> cfg.Telemetry.Tracing.Enabled
//	TRACE_EXPORTER          -> cfg.Telemetry.Tracing.Exporter
//	LOGGER_ENABLED          -> cfg.Logger.Active
//	LOGGER_LEVEL            -> cfg.Logger.Level
//	LOGGER_ENCODING         -> cfg.Logger.Encoding
//	LOGGER_MODE             -> cfg.Logger.Mode
//	LOGGER_FILE_PATH        -> cfg.Logger.File.Path
func (cfg *Config) ApplyEnvOverrides() {
	if v := os.Getenv("DCELL_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.DCell.K = k
		}
	}
	if v := os.Getenv("DCELL_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DCell.N = n
		}
	}
	if v := os.Getenv("DCELL_LINK_BW"); v != "" {
		if bw, err := strconv.Atoi(v); err == nil {
			cfg.DCell.LinkBandwidthMbps = bw
		}
	}
	if v := os.Getenv("DCELL_LINK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DCell.LinkTimeout = d
		}
	}
	if v := os.Getenv("DCELL_IP_BASE"); v != "" {
		if ipb, err := strconv.Atoi(v); err == nil {
			cfg.DCell.IPBase = ipb
		}
	}
	if v := os.Getenv("DCELL_IP_MASK"); v != "" {
		if mask, err := strconv.Atoi(v); err == nil {
			cfg.DCell.IPMask = mask
		}
	}
	if v := os.Getenv("CONTROLLER_LISTEN_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Controller.ListenPort = port
		}
	}
	if v := os.Getenv("TRACE_ENABLED"); v != "" {
		v = strings.ToLower(v)
		cfg.Telemetry.Tracing.Enabled = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("TRACE_EXPORTER"); v != "" {
		cfg.Telemetry.Tracing.Exporter = v
	}
	if v := os.Getenv("LOGGER_ENABLED"); v != "" {
		v = strings.ToLower(v)
		cfg.Logger.Active = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LOGGER_ENCODING"); v != "" {
		cfg.Logger.Encoding = v
	}
	if v := os.Getenv("LOGGER_MODE"); v != "" {
		cfg.Logger.Mode = v
	}
	if v := os.Getenv("LOGGER_FILE_PATH"); v != "" {
		cfg.Logger.File.Path = v
	}
}

// ValidateConfig performs structural validation of the loaded
// configuration. All detected issues are accumulated and returned as a
// single error.
func (cfg *Config) ValidateConfig() error {
	var errs []string

	switch cfg.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.level: %s", cfg.Logger.Level))
	}
	switch cfg.Logger.Encoding {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.encoding: %s", cfg.Logger.Encoding))
	}
	switch cfg.Logger.Mode {
	case "stdout":
	case "file":
		if cfg.Logger.File.Path == "" {
			errs = append(errs, "logger.file.path is required when mode=file")
		}
		if cfg.Logger.File.MaxSize < 0 || cfg.Logger.File.MaxBackups < 0 || cfg.Logger.File.MaxAge < 0 {
			errs = append(errs, "logger.file.* values must be non-negative")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid logger.mode: %s", cfg.Logger.Mode))
	}

	if cfg.DCell.K < 0 {
		errs = append(errs, "dcell.k must be >= 0")
	}
	if cfg.DCell.N < 2 {
		errs = append(errs, "dcell.n must be >= 2")
	}
	if cfg.DCell.LinkTimeout <= 0 {
		errs = append(errs, "dcell.linkTimeout must be > 0")
	}
	if cfg.DCell.IPMask <= 0 || cfg.DCell.IPMask > 32 {
		errs = append(errs, "dcell.ipMask must be in (0,32]")
	}

	if cfg.Controller.ListenPort <= 0 || cfg.Controller.ListenPort > 65535 {
		errs = append(errs, fmt.Sprintf("controller.listenPort must be in [1,65535], got %d", cfg.Controller.ListenPort))
	}

	if cfg.Telemetry.Tracing.Enabled {
		switch cfg.Telemetry.Tracing.Exporter {
		case "stdout":
		default:
			errs = append(errs, fmt.Sprintf("invalid telemetry.tracing.exporter: %s", cfg.Telemetry.Tracing.Exporter))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// LogConfig emits the loaded configuration at DEBUG level, useful for
// diagnosing startup issues.
func (cfg *Config) LogConfig(lgr logger.Logger) {
	lgr.Debug("loaded configuration",
		logger.F("logger.active", cfg.Logger.Active),
		logger.F("logger.level", cfg.Logger.Level),
		logger.F("logger.encoding", cfg.Logger.Encoding),
		logger.F("logger.mode", cfg.Logger.Mode),
		logger.F("logger.file.path", cfg.Logger.File.Path),

		logger.F("dcell.k", cfg.DCell.K),
		logger.F("dcell.n", cfg.DCell.N),
		logger.F("dcell.linkBandwidthMbps", cfg.DCell.LinkBandwidthMbps),
		logger.F("dcell.linkTimeout", cfg.DCell.LinkTimeout.String()),
		logger.F("dcell.ipBase", cfg.DCell.IPBase),
		logger.F("dcell.ipMask", cfg.DCell.IPMask),

		logger.F("controller.listenPort", cfg.Controller.ListenPort),

		logger.F("telemetry.tracing.enabled", cfg.Telemetry.Tracing.Enabled),
		logger.F("telemetry.tracing.exporter", cfg.Telemetry.Tracing.Exporter),
	)
}
