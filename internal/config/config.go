// Package config loads the bridge configuration: devices.yaml for the
// device roster and environment variables for the platform connection.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"smartcastbridge/internal/apps"
)

// DeviceConfig is one entry of devices.yaml.
type DeviceConfig struct {
	Name        string `yaml:"name"`
	Host        string `yaml:"host"`
	AccessToken string `yaml:"access_token"`
	// DeviceClass is "tv" or "speaker"; soundbars have no apps and a
	// 0..31 volume range.
	DeviceClass string `yaml:"device_class"`
	// VolumeStep is the number of key presses per volume up/down, default 1.
	VolumeStep int `yaml:"volume_step"`
	// TimeoutSeconds bounds each device request, default 8.
	TimeoutSeconds int        `yaml:"timeout"`
	Apps           AppsConfig `yaml:"apps"`
}

// AppsConfig filters and extends the app catalog for one device. Include
// and Exclude are mutually exclusive; Include wins when both are set.
type AppsConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
	// AdditionalConfigs are apps absent from the public catalog, for example
	// regional or beta apps.
	AdditionalConfigs []AdditionalApp `yaml:"additional_configs"`
}

// AdditionalApp is one manually-configured app.
type AdditionalApp struct {
	Name   string      `yaml:"name"`
	Config apps.Config `yaml:"config"`
}

// Timeout returns the per-request timeout as a duration.
func (d DeviceConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// AdditionalApps converts the configured extras to catalog entries.
func (d DeviceConfig) AdditionalApps() []apps.App {
	out := make([]apps.App, 0, len(d.Apps.AdditionalConfigs))
	for _, a := range d.Apps.AdditionalConfigs {
		out = append(out, apps.App{Name: a.Name, Config: []apps.Config{a.Config}})
	}
	return out
}

// DevicesFile is the devices.yaml structure.
type DevicesFile struct {
	Devices []DeviceConfig `yaml:"devices"`
}

// LoadDevices reads and validates devices.yaml from configDir.
func LoadDevices(configDir string, logger *zap.Logger) ([]DeviceConfig, error) {
	path := filepath.Join(configDir, "devices.yaml")
	logger.Debug("Loading device config", zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device config: %w", err)
	}

	var file DevicesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse device config: %w", err)
	}
	if len(file.Devices) == 0 {
		return nil, fmt.Errorf("device config %s lists no devices", path)
	}

	seen := make(map[string]bool, len(file.Devices))
	for i := range file.Devices {
		d := &file.Devices[i]
		if d.Name == "" {
			return nil, fmt.Errorf("device %d: name is required", i)
		}
		if d.Host == "" {
			return nil, fmt.Errorf("device %q: host is required", d.Name)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("duplicate device name %q", d.Name)
		}
		seen[d.Name] = true

		switch d.DeviceClass {
		case "":
			d.DeviceClass = "tv"
		case "tv", "speaker":
		default:
			return nil, fmt.Errorf("device %q: unknown device_class %q", d.Name, d.DeviceClass)
		}
		if d.VolumeStep <= 0 {
			d.VolumeStep = 1
		}
		if d.TimeoutSeconds <= 0 {
			d.TimeoutSeconds = 8
		}
		if len(d.Apps.Include) > 0 && len(d.Apps.Exclude) > 0 {
			logger.Warn("device has both app include and exclude lists; exclude is ignored",
				zap.String("device", d.Name))
		}
	}

	logger.Info("Device config loaded", zap.Int("devices", len(file.Devices)))
	return file.Devices, nil
}

// Env is the process environment configuration.
type Env struct {
	PlatformURL   string
	PlatformToken string
	ConfigDir     string
	DiagPort      int
	PollInterval  time.Duration
}

// LoadEnv reads the environment. PLATFORM_URL and PLATFORM_TOKEN are
// required; the rest have defaults.
func LoadEnv() (Env, error) {
	env := Env{
		PlatformURL:   os.Getenv("PLATFORM_URL"),
		PlatformToken: os.Getenv("PLATFORM_TOKEN"),
		ConfigDir:     os.Getenv("CONFIG_DIR"),
		DiagPort:      8099,
		PollInterval:  30 * time.Second,
	}

	if env.PlatformURL == "" {
		return env, fmt.Errorf("PLATFORM_URL is required")
	}
	if env.PlatformToken == "" {
		return env, fmt.Errorf("PLATFORM_TOKEN is required")
	}
	if env.ConfigDir == "" {
		env.ConfigDir = "config"
	}

	if v := os.Getenv("DIAG_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return env, fmt.Errorf("invalid DIAG_PORT %q: %w", v, err)
		}
		env.DiagPort = port
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return env, fmt.Errorf("invalid POLL_INTERVAL %q: %w", v, err)
		}
		env.PollInterval = d
	}

	return env, nil
}
