// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"peakbeat/internal/analysis"
	"peakbeat/internal/domain"
	"peakbeat/internal/fft"
	applog "peakbeat/internal/log"
	"peakbeat/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"` // "debug", "info", "warn" or "error".
	Audio     AudioConfig     `yaml:"audio"`
	Spectrum  SpectrumConfig  `yaml:"spectrum"`
	Transport TransportConfig `yaml:"transport"`
}

// AudioConfig holds playback and analysis settings.
type AudioConfig struct {
	OutputDevice    int    `yaml:"output_device"`    // PortAudio device index (-1 for default).
	FFTSize         int    `yaml:"fft_size"`         // Transform size; also the device buffer size in frames.
	FFTWindow       string `yaml:"fft_window"`       // Window function name, e.g. "Hann", "Hamming".
	LowLatency      bool   `yaml:"low_latency"`      // Request low latency settings from PortAudio.
	AssetDir        string `yaml:"asset_dir"`        // Base directory for relative track handles.
	PrefetchBuffers int    `yaml:"prefetch_buffers"` // Decoded buffers kept ahead of the device.
	QueueDepth      int    `yaml:"queue_depth"`      // Spectra that may wait for the mapper.
}

// SpectrumConfig holds the spectrum mapper settings.
type SpectrumConfig struct {
	BarCount           int           `yaml:"bar_count"`
	DBWindow           float64       `yaml:"db_window"`
	FallSpeed          float64       `yaml:"fall_speed"`
	Gamma              float64       `yaml:"gamma"`
	HighFrequencyBoost float64       `yaml:"high_frequency_boost"`
	MinPeakFraction    float64       `yaml:"min_peak_fraction"`
	EmissionInterval   time.Duration `yaml:"emission_interval"`
	ReferenceDB        float64       `yaml:"reference_db"`
	Width              float64       `yaml:"width"`
	Height             float64       `yaml:"height"`
}

// TransportConfig holds settings for sending events over the network.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Broadcast peak events over WebSocket.
	WebSocketAddr    string        `yaml:"websocket_addr"`     // Listen address for the WebSocket server.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Stream bar heights over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090".
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	mapper := analysis.DefaultMapperConfig()
	return &Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			OutputDevice:    DefaultOutputDevice,
			FFTSize:         DefaultFFTSize,
			FFTWindow:       DefaultFFTWindow,
			LowLatency:      DefaultLowLatency,
			AssetDir:        DefaultAssetDir,
			PrefetchBuffers: DefaultPrefetchBuffers,
			QueueDepth:      DefaultQueueDepth,
		},
		Spectrum: SpectrumConfig{
			BarCount:           mapper.BarCount,
			DBWindow:           mapper.DBWindow,
			FallSpeed:          mapper.FallSpeed,
			Gamma:              mapper.Gamma,
			HighFrequencyBoost: mapper.HighFrequencyBoost,
			MinPeakFraction:    mapper.MinPeakFraction,
			EmissionInterval:   mapper.EmissionInterval,
			ReferenceDB:        mapper.ReferenceDB,
			Width:              mapper.Width,
			Height:             mapper.Height,
		},
		Transport: TransportConfig{
			WebSocketEnabled: DefaultWebSocketEnabled,
			WebSocketAddr:    DefaultWebSocketAddr,
			UDPEnabled:       DefaultUDPEnabled,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
	}
}

// LoadConfig loads configuration from the YAML file at path. An empty path
// tries DefaultFile and falls back to built-in defaults when it does not
// exist. Environment overrides are applied last, then the result is
// validated; invalid values wrap domain.ErrMalformedConfiguration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse config file: %v", domain.ErrMalformedConfiguration, err)
		}
		applog.Debugf("Config: Loaded %s", path)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every field and joins all problems found.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, domain.Malformed("unknown log_level '%s'", c.LogLevel))
	}

	a := c.Audio
	if a.OutputDevice < MinDeviceID {
		errs = append(errs, domain.Malformed("audio.output_device must be >= %d, got %d", MinDeviceID, a.OutputDevice))
	}
	if !bitint.IsPowerOfTwo(a.FFTSize) || a.FFTSize < fft.MinSize || a.FFTSize > MaxFFTSize {
		errs = append(errs, domain.Malformed("audio.fft_size must be a power of two in [%d, %d], got %d",
			fft.MinSize, MaxFFTSize, a.FFTSize))
	}
	if _, err := fft.ParseWindowFunc(a.FFTWindow); err != nil {
		errs = append(errs, domain.Malformed("audio.fft_window: %v", err))
	}
	if a.PrefetchBuffers < 2 {
		errs = append(errs, domain.Malformed("audio.prefetch_buffers must be at least 2, got %d", a.PrefetchBuffers))
	}
	if a.QueueDepth < 1 {
		errs = append(errs, domain.Malformed("audio.queue_depth must be at least 1, got %d", a.QueueDepth))
	}

	if err := c.Spectrum.MapperConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("spectrum: %w", err))
	}

	t := c.Transport
	if t.WebSocketEnabled {
		if _, _, err := net.SplitHostPort(t.WebSocketAddr); err != nil {
			errs = append(errs, domain.Malformed("transport.websocket_addr '%s': %v", t.WebSocketAddr, err))
		}
	}
	if t.UDPEnabled {
		if _, _, err := net.SplitHostPort(t.UDPTargetAddress); err != nil {
			errs = append(errs, domain.Malformed("transport.udp_target_address '%s': %v", t.UDPTargetAddress, err))
		}
		if t.UDPSendInterval <= 0 {
			errs = append(errs, domain.Malformed("transport.udp_send_interval must be positive when UDP is enabled"))
		}
	}

	return errors.Join(errs...)
}

// MapperConfig converts the spectrum section for analysis.NewMapper.
func (s SpectrumConfig) MapperConfig() analysis.MapperConfig {
	return analysis.MapperConfig{
		BarCount:           s.BarCount,
		DBWindow:           s.DBWindow,
		FallSpeed:          s.FallSpeed,
		Gamma:              s.Gamma,
		HighFrequencyBoost: s.HighFrequencyBoost,
		MinPeakFraction:    s.MinPeakFraction,
		EmissionInterval:   s.EmissionInterval,
		ReferenceDB:        s.ReferenceDB,
		Width:              s.Width,
		Height:             s.Height,
	}
}

// Window returns the parsed analysis window. Validate has already rejected
// unknown names.
func (a AudioConfig) Window() fft.WindowFunc {
	w, _ := fft.ParseWindowFunc(a.FFTWindow)
	return w
}

// applyEnvOverrides reads ENV_* variables. Unparseable values are
// configuration errors.
func (c *Config) applyEnvOverrides() error {
	var errs []error
	str := func(name string, dst *string) {
		if val, ok := os.LookupEnv(name); ok {
			*dst = strings.TrimSpace(val)
			applog.Infof("Config: Overriding %s from env: %s", name, *dst)
		}
	}
	boolean := func(name string, dst *bool) {
		if val, ok := os.LookupEnv(name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(val))
			if err != nil {
				errs = append(errs, domain.Malformed("%s: %v", name, err))
				return
			}
			*dst = b
			applog.Infof("Config: Overriding %s from env: %v", name, b)
		}
	}
	integer := func(name string, dst *int) {
		if val, ok := os.LookupEnv(name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(val))
			if err != nil {
				errs = append(errs, domain.Malformed("%s: %v", name, err))
				return
			}
			*dst = n
			applog.Infof("Config: Overriding %s from env: %d", name, n)
		}
	}
	duration := func(name string, dst *time.Duration) {
		if val, ok := os.LookupEnv(name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(val))
			if err != nil {
				errs = append(errs, domain.Malformed("%s: %v", name, err))
				return
			}
			*dst = d
			applog.Infof("Config: Overriding %s from env: %s", name, d)
		}
	}

	str("ENV_LOG_LEVEL", &c.LogLevel)

	integer("ENV_OUTPUT_DEVICE", &c.Audio.OutputDevice)
	integer("ENV_FFT_SIZE", &c.Audio.FFTSize)
	str("ENV_FFT_WINDOW", &c.Audio.FFTWindow)
	str("ENV_ASSET_DIR", &c.Audio.AssetDir)

	boolean("ENV_WS_ENABLED", &c.Transport.WebSocketEnabled)
	str("ENV_WS_ADDR", &c.Transport.WebSocketAddr)
	boolean("ENV_UDP_ENABLED", &c.Transport.UDPEnabled)
	str("ENV_UDP_TARGET_ADDRESS", &c.Transport.UDPTargetAddress)
	duration("ENV_UDP_SEND_INTERVAL", &c.Transport.UDPSendInterval)

	return errors.Join(errs...)
}
