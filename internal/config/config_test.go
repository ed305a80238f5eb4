package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestConfigData tests configuration data, defaults, edge cases, and
// validation.
func TestConfigData(t *testing.T) {
	tests := []struct {
		name       string
		config     *AppConfig
		configTOML string
		setupFunc  func(*AppConfig)
		expectErr  bool
		validate   func(*testing.T, *AppConfig)
	}{
		{
			name:   "default config",
			config: DefaultConfig(),
			validate: func(t *testing.T, c *AppConfig) {
				if c.Server.ListenAddress != ":9177" {
					t.Errorf("Expected ListenAddress ':9177', got %s", c.Server.ListenAddress)
				}
				if c.Logging.Defaults.Level != "info" {
					t.Errorf("Expected default log level 'info', got %s", c.Logging.Defaults.Level)
				}
				if c.Profiler.LeakThresholdFrames != 600 {
					t.Errorf("Expected leak threshold 600, got %d", c.Profiler.LeakThresholdFrames)
				}
				if c.Profiler.AggregatorHz != 60 {
					t.Errorf("Expected aggregator rate 60, got %d", c.Profiler.AggregatorHz)
				}
				if c.Profiler.FrameHistorySize != 240 {
					t.Errorf("Expected frame history 240, got %d", c.Profiler.FrameHistorySize)
				}
				if !c.Profiler.MemoryTracking {
					t.Error("Expected memory tracking enabled by default")
				}
				if c.Profiler.GPUProfiling || c.Profiler.NetworkProfiling {
					t.Error("Expected GPU and network profiling disabled by default")
				}
			},
		},
		{
			name: "custom profiler config",
			configTOML: `
[profiler]
event_buffer_size = 1048576
gpu_profiling = true
leak_threshold_frames = 120
aggregator_hz = 30
`,
			validate: func(t *testing.T, c *AppConfig) {
				if c.Profiler.EventBufferSize != 1048576 {
					t.Errorf("Expected event buffer 1048576, got %d", c.Profiler.EventBufferSize)
				}
				if !c.Profiler.GPUProfiling {
					t.Error("Expected GPU profiling enabled")
				}
				if c.Profiler.LeakThresholdFrames != 120 {
					t.Errorf("Expected leak threshold 120, got %d", c.Profiler.LeakThresholdFrames)
				}
				if c.Profiler.AggregatorHz != 30 {
					t.Errorf("Expected aggregator rate 30, got %d", c.Profiler.AggregatorHz)
				}
			},
		},
		{
			name: "custom logging config",
			configTOML: `
[logging.defaults]
level = "debug"

[[logging.outputs]]
type = "console"
enabled = true

[[logging.outputs]]
type = "file"
enabled = true
[logging.outputs.file]
filename = "app.log"
`,
			validate: func(t *testing.T, c *AppConfig) {
				if c.Logging.Defaults.Level != "debug" {
					t.Errorf("Expected debug level, got %s", c.Logging.Defaults.Level)
				}
				if len(c.Logging.Outputs) != 2 {
					t.Errorf("Expected 2 outputs, got %d", len(c.Logging.Outputs))
				}
				if c.Logging.Outputs[0].Type != "console" {
					t.Errorf("Expected first output 'console', got %s", c.Logging.Outputs[0].Type)
				}
			},
		},
		{
			name:   "invalid empty listen address",
			config: DefaultConfig(),
			setupFunc: func(c *AppConfig) {
				c.Server.ListenAddress = ""
			},
			expectErr: true,
		},
		{
			name:   "invalid negative event buffer",
			config: DefaultConfig(),
			setupFunc: func(c *AppConfig) {
				c.Profiler.EventBufferSize = -1
			},
			expectErr: true,
		},
		{
			name:   "invalid aggregator rate",
			config: DefaultConfig(),
			setupFunc: func(c *AppConfig) {
				c.Profiler.AggregatorHz = 100000
			},
			expectErr: true,
		},
		{
			name:   "invalid overhead target",
			config: DefaultConfig(),
			setupFunc: func(c *AppConfig) {
				c.Profiler.TargetOverheadPercent = 150
			},
			expectErr: true,
		},
		{
			name:   "invalid no outputs enabled",
			config: DefaultConfig(),
			setupFunc: func(c *AppConfig) {
				for i := range c.Logging.Outputs {
					c.Logging.Outputs[i].Enabled = false
				}
			},
			expectErr: true,
		},
		{
			name: "valid custom server config",
			configTOML: `
[server]
listen_address = ":8080"
metrics_path = "/custom"
`,
			validate: func(t *testing.T, c *AppConfig) {
				if c.Server.ListenAddress != ":8080" {
					t.Errorf("Expected :8080, got %s", c.Server.ListenAddress)
				}
				if c.Server.MetricsPath != "/custom" {
					t.Errorf("Expected /custom, got %s", c.Server.MetricsPath)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg *AppConfig

			if tt.config != nil {
				cfg = tt.config
				if tt.setupFunc != nil {
					tt.setupFunc(cfg)
				}
			} else {
				tmpDir := t.TempDir()
				path := filepath.Join(tmpDir, "test.toml")
				os.WriteFile(path, []byte(tt.configTOML), 0644)
				var err error
				cfg, err = LoadConfig(path)
				if err != nil {
					t.Fatalf("Failed to load config: %v", err)
				}
			}

			err := cfg.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected validation error but got none")
			} else if !tt.expectErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}

			if !tt.expectErr && tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

// TestLoadConfig tests loading configurations with fallbacks and validation.
func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name       string
		configTOML string
		setupFunc  func() string // Returns config path
		expectErr  bool
	}{
		{
			name: "non-existent file returns error",
			setupFunc: func() string {
				return "nonexistent.toml"
			},
			expectErr: true,
		},
		{
			name: "empty path returns defaults",
			setupFunc: func() string {
				return ""
			},
			expectErr: false,
		},
		{
			name: "valid config loads correctly",
			configTOML: `
[server]
listen_address = ":8080"
metrics_path = "/test"

[profiler]
memory_tracking = false

[logging.defaults]
level = "debug"

[[logging.outputs]]
type = "console"
enabled = true
`,
			expectErr: false,
		},
		{
			name: "invalid TOML returns error",
			configTOML: `
[server]
listen_address = ":8080"
invalid_syntax [
`,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var configPath string

			if tt.configTOML != "" {
				tmpDir := t.TempDir()
				configPath = filepath.Join(tmpDir, "test.toml")
				err := os.WriteFile(configPath, []byte(tt.configTOML), 0644)
				if err != nil {
					t.Fatalf("Failed to create test config: %v", err)
				}
			} else if tt.setupFunc != nil {
				configPath = tt.setupFunc()
			}

			config, err := LoadConfig(configPath)

			if tt.expectErr {
				if err == nil {
					t.Fatal("Expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if tt.name == "valid config loads correctly" {
				if config.Server.ListenAddress != ":8080" {
					t.Errorf("Expected :8080, got %s", config.Server.ListenAddress)
				}
				if config.Profiler.MemoryTracking {
					t.Error("Expected memory tracking to be disabled")
				}
				if config.Logging.Defaults.Level != "debug" {
					t.Errorf("Expected debug level, got %s", config.Logging.Defaults.Level)
				}
			}

			if err := config.Validate(); err != nil {
				t.Errorf("Config validation failed: %v", err)
			}
		})
	}
}

// TestSaveConfig tests saving configurations.
func TestSaveConfig(t *testing.T) {
	t.Run("save and load roundtrip", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "subdir", "test.toml")

		original := DefaultConfig()
		original.Server.ListenAddress = ":7777"
		original.Profiler.LeakThresholdFrames = 300
		original.Logging.Defaults.Level = "debug"

		err := SaveConfig(configPath, original)
		if err != nil {
			t.Fatalf("Failed to save: %v", err)
		}

		loaded, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("Failed to load: %v", err)
		}

		if loaded.Server.ListenAddress != ":7777" {
			t.Errorf("Expected :7777, got %s", loaded.Server.ListenAddress)
		}
		if loaded.Profiler.LeakThresholdFrames != 300 {
			t.Errorf("Expected leak threshold 300, got %d", loaded.Profiler.LeakThresholdFrames)
		}
		if loaded.Logging.Defaults.Level != "debug" {
			t.Errorf("Expected debug, got %s", loaded.Logging.Defaults.Level)
		}
	})

	t.Run("invalid path", func(t *testing.T) {
		config := DefaultConfig()
		err := SaveConfig("\x00invalid", config)
		if err == nil {
			t.Error("Expected error for invalid path")
		}
	})
}

// TestConfigGenerator tests configuration generation.
func TestConfigGenerator(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "example.toml")

	err := GenerateExampleConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to generate config: %v", err)
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Generated config is invalid: %v", err)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Generated config validation failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read generated file: %v", err)
	}

	if !strings.Contains(string(content), "frameprof Example Configuration") {
		t.Error("Generated config missing expected header")
	}
}
