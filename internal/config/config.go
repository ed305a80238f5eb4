package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// AppConfig represents the complete application configuration.
type AppConfig struct {
	// HTTP server configuration
	Server ServerConfig `toml:"server"`

	// Profiler core configuration
	Profiler ProfilerConfig `toml:"profiler"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Listen address (default: ":9177")
	ListenAddress string `toml:"listen_address"`

	// Metrics endpoint path (default: "/metrics")
	MetricsPath string `toml:"metrics_path"`

	// Enable pprof endpoint for debugging (default: true)
	PprofEnabled bool `toml:"pprof_enabled"`
}

// ProfilerConfig contains the profiler initialization parameters. Every field
// is optional; zero values are replaced by the documented defaults when the
// profiler is constructed.
type ProfilerConfig struct {
	// Hint for the number of instrumented worker threads (default: 4).
	// Only sizes pre-allocated bookkeeping; registration beyond the hint
	// still works.
	ThreadPoolSizeHint int `toml:"thread_pool_size_hint"`

	// Per-thread event buffer size in bytes (default: 16 MiB)
	EventBufferSize int64 `toml:"event_buffer_size"`

	// Total recording buffer size in bytes (default: 64 MiB)
	RecordingBufferSize int64 `toml:"recording_buffer_size"`

	// Enable GPU timer correlation (default: false)
	GPUProfiling bool `toml:"gpu_profiling"`

	// Enable network packet recording (default: false)
	NetworkProfiling bool `toml:"network_profiling"`

	// Network packet buffer size in bytes (default: 8 MiB)
	NetworkBufferSize int64 `toml:"network_buffer_size"`

	// Enable memory allocation tracking (default: true)
	MemoryTracking bool `toml:"memory_tracking"`

	// Allocations older than this many frames are reported as leak
	// candidates (default: 600, ten seconds at 60 FPS)
	LeakThresholdFrames uint64 `toml:"leak_threshold_frames"`

	// Background aggregator tick rate in Hz (default: 60)
	AggregatorHz int `toml:"aggregator_hz"`

	// Number of frames kept in the circular history (default: 240)
	FrameHistorySize int `toml:"frame_history_size"`

	// Advisory target for profiler overhead as a percentage of total
	// runtime (default: 1.0). Not enforced; exposed for dashboards.
	TargetOverheadPercent float64 `toml:"target_overhead_percent"`

	// File the one-shot single-frame capture exports to
	// (default: "profile_capture.json")
	CaptureExportPath string `toml:"capture_export_path"`
}

// LoggingConfig contains the complete logging configuration.
type LoggingConfig struct {
	// Default logging settings applied to all loggers
	Defaults LogDefaults `toml:"defaults"`

	// Output configurations - can have multiple outputs
	Outputs []LogOutput `toml:"outputs"`
}

// LogDefaults contains default logger settings.
type LogDefaults struct {
	// Log level (default: "info")
	Level string `toml:"level"`

	// Include caller information (default: 0)
	Caller int `toml:"caller"`

	// Time field name (default: "time")
	TimeField string `toml:"time_field"`

	// Time format (default: "" = RFC3339 with milliseconds)
	TimeFormat string `toml:"time_format"`

	// Time zone (default: "Local")
	TimeLocation string `toml:"time_location"`
}

// LogOutput represents a single output configuration.
type LogOutput struct {
	// Output type: "console", "file", "syslog"
	Type string `toml:"type"`

	// Enable this output (default: true)
	Enabled bool `toml:"enabled"`

	// Configuration specific to the output type
	Console *ConsoleConfig `toml:"console,omitempty"`
	File    *FileConfig    `toml:"file,omitempty"`
	Syslog  *SyslogConfig  `toml:"syslog,omitempty"`
}

// ConsoleConfig contains console/terminal output settings.
type ConsoleConfig struct {
	// Use fast JSON output (default: false)
	FastIO bool `toml:"fast_io"`

	// Output format when fast_io=false (default: "auto")
	Format string `toml:"format"`

	// Enable colored output (default: true)
	ColorOutput bool `toml:"color_output"`

	// Quote string values (default: true)
	QuoteString bool `toml:"quote_string"`

	// Output destination (default: "stderr")
	Writer string `toml:"writer"`

	// Use asynchronous writing (default: false)
	Async bool `toml:"async"`
}

// FileConfig contains file output settings.
type FileConfig struct {
	// Log file path (required)
	Filename string `toml:"filename"`

	// Maximum file size in megabytes (default: 10)
	MaxSize int64 `toml:"max_size"`

	// Maximum number of old log files to keep (default: 7)
	MaxBackups int `toml:"max_backups"`

	// Time format for rotated filenames (default: "2006-01-02T15-04-05")
	TimeFormat string `toml:"time_format"`

	// Use local time for rotation timestamps (default: true)
	LocalTime bool `toml:"local_time"`

	// Include hostname in filename (default: true)
	HostName bool `toml:"host_name"`

	// Include process ID in filename (default: true)
	ProcessID bool `toml:"process_id"`

	// Create directory if it doesn't exist (default: true)
	EnsureFolder bool `toml:"ensure_folder"`

	// Use asynchronous writing (default: true)
	Async bool `toml:"async"`
}

// SyslogConfig contains syslog output settings.
type SyslogConfig struct {
	// Network protocol (default: "udp")
	Network string `toml:"network"`

	// Syslog server address (default: "localhost:514")
	Address string `toml:"address"`

	// Hostname for syslog messages (default: system hostname)
	Hostname string `toml:"hostname"`

	// Syslog tag/program name (default: "frameprof")
	Tag string `toml:"tag"`

	// Message prefix marker (default: "@cee:")
	Marker string `toml:"marker"`

	// Use asynchronous writing (default: true)
	Async bool `toml:"async"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			ListenAddress: ":9177",
			MetricsPath:   "/metrics",
			PprofEnabled:  true,
		},
		Profiler: ProfilerConfig{
			ThreadPoolSizeHint:    4,
			EventBufferSize:       16 * 1024 * 1024,
			RecordingBufferSize:   64 * 1024 * 1024,
			GPUProfiling:          false,
			NetworkProfiling:      false,
			NetworkBufferSize:     8 * 1024 * 1024,
			MemoryTracking:        true,
			LeakThresholdFrames:   600,
			AggregatorHz:          60,
			FrameHistorySize:      240,
			TargetOverheadPercent: 1.0,
			CaptureExportPath:     "profile_capture.json",
		},
		Logging: LoggingConfig{
			Defaults: LogDefaults{
				Level:        "info",
				Caller:       0,
				TimeField:    "time",
				TimeFormat:   "",
				TimeLocation: "Local",
			},
			Outputs: []LogOutput{
				{
					Type:    "console",
					Enabled: true,
					Console: &ConsoleConfig{
						FastIO:      false,
						Format:      "auto",
						ColorOutput: true,
						QuoteString: true,
						Writer:      "stderr",
						Async:       false,
					},
				},
				{
					Type:    "file",
					Enabled: false,
					File: &FileConfig{
						Filename:     "logs/frameprof.log",
						MaxSize:      10, // MB
						MaxBackups:   7,
						TimeFormat:   "2006-01-02T15-04-05",
						LocalTime:    true,
						HostName:     true,
						ProcessID:    true,
						EnsureFolder: true,
						Async:        true,
					},
				},
				{
					Type:    "syslog",
					Enabled: false,
					Syslog: &SyslogConfig{
						Network:  "udp",
						Address:  "localhost:514",
						Tag:      "frameprof",
						Hostname: "",
						Marker:   "@cee:",
						Async:    true,
					},
				},
			},
		},
	}
}

// LoadConfig loads configuration from a TOML file, falling back to defaults.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if configPath == "" {
		return config, nil
	}

	if _, err := os.Stat(configPath); errors.Is(err, fs.ErrNotExist) {
		return config, fmt.Errorf("config file not found: %s", configPath)
	}

	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	return config, nil
}

// SaveConfig saves the configuration to a TOML file.
func SaveConfig(configPath string, config *AppConfig) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file %s: %w", configPath, err)
	}
	defer file.Close()

	if err := toml.NewEncoder(file).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// GenerateExampleConfig generates a TOML configuration file with default
// values.
func GenerateExampleConfig(outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	header := `# frameprof Example Configuration
# This file is auto-generated and serves as an example configuration.
# Copy this file to create your own configuration and modify as needed.
#
# Format: TOML (Tom's Obvious, Minimal Language)

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	config := DefaultConfig()
	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *AppConfig) Validate() error {
	if c.Server.ListenAddress == "" {
		return fmt.Errorf("server.listen_address cannot be empty")
	}
	if c.Server.MetricsPath == "" {
		return fmt.Errorf("server.metrics_path cannot be empty")
	}

	p := &c.Profiler
	if p.EventBufferSize < 0 {
		return fmt.Errorf("profiler.event_buffer_size cannot be negative")
	}
	if p.RecordingBufferSize < 0 {
		return fmt.Errorf("profiler.recording_buffer_size cannot be negative")
	}
	if p.NetworkBufferSize < 0 {
		return fmt.Errorf("profiler.network_buffer_size cannot be negative")
	}
	if p.AggregatorHz < 0 || p.AggregatorHz > 1000 {
		return fmt.Errorf("profiler.aggregator_hz must be between 0 and 1000, got %d", p.AggregatorHz)
	}
	if p.FrameHistorySize < 0 {
		return fmt.Errorf("profiler.frame_history_size cannot be negative")
	}
	if p.TargetOverheadPercent < 0 || p.TargetOverheadPercent > 100 {
		return fmt.Errorf("profiler.target_overhead_percent must be between 0 and 100")
	}

	hasEnabledOutput := false
	for _, output := range c.Logging.Outputs {
		if output.Enabled {
			hasEnabledOutput = true
			break
		}
	}
	if !hasEnabledOutput {
		return fmt.Errorf("at least one logging output must be enabled")
	}

	return nil
}

// Flags holds the command-line flags.
type Flags struct {
	ListenAddress  string
	MetricsPath    string
	ConfigPath     string
	GenerateConfig string
	SelfProfile    string
}

// NewConfig creates a new configuration by parsing flags and loading the
// config file. A nil config with a nil error signals a clean exit
// (-generate-config mode).
func NewConfig() (*AppConfig, *Flags, error) {
	flags := &Flags{}

	flag.StringVar(&flags.ListenAddress,
		"web.listen-address",
		":9177",
		"Address to listen on for web interface and telemetry.")
	flag.StringVar(&flags.MetricsPath,
		"web.telemetry-path",
		"/metrics",
		"Path under which to expose metrics.")
	flag.StringVar(&flags.ConfigPath,
		"config",
		"",
		"Path to configuration file (optional).")
	flag.StringVar(&flags.GenerateConfig,
		"generate-config",
		"",
		"Generate example config file to specified path and exit.")
	flag.StringVar(&flags.SelfProfile,
		"self-profile",
		"",
		"Profile the profiler itself (cpu, mem, block, mutex, goroutine, trace).")
	flag.Parse()

	if flags.GenerateConfig != "" {
		if err := GenerateExampleConfig(flags.GenerateConfig); err != nil {
			return nil, nil, fmt.Errorf("error generating example config: %w", err)
		}
		fmt.Printf("Generated %s successfully\n", flags.GenerateConfig)
		return nil, nil, nil
	}

	config := DefaultConfig()

	if flags.ConfigPath != "" {
		var err error
		config, err = LoadConfig(flags.ConfigPath)
		if err != nil {
			return nil, nil, err
		}
	}

	// Override config with command-line flags if they were set by the user.
	if isFlagPassed("web.listen-address") {
		config.Server.ListenAddress = flags.ListenAddress
	}
	if isFlagPassed("web.telemetry-path") {
		config.Server.MetricsPath = flags.MetricsPath
	}

	if err := config.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, flags, nil
}

// isFlagPassed checks if a flag was explicitly set on the command line.
func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
