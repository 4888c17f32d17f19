// Package config loads the application configuration from YAML.
package config

import (
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "30s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", raw)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the top-level application configuration.
type Config struct {
	Collaboration Collaboration `yaml:"collaboration"`
	Sync          Sync          `yaml:"sync"`
	Auth          Auth          `yaml:"auth"`
	Storage       Storage       `yaml:"storage"`
	LogLevel      string        `yaml:"log_level"`
}

// Collaboration configures the real-time channel.
type Collaboration struct {
	Endpoint             string   `yaml:"endpoint"`
	BaseDelay            Duration `yaml:"base_delay"`
	MaxDelay             Duration `yaml:"max_delay"`
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts"`
}

// Sync configures the remote workspace store and reachability probe.
type Sync struct {
	RemoteURL     string   `yaml:"remote_url"`
	ProbeInterval Duration `yaml:"probe_interval"`
	ProbeTimeout  Duration `yaml:"probe_timeout"`
}

// Auth configures the browser authentication flow.
type Auth struct {
	BaseURL      string   `yaml:"base_url"`
	PollInterval Duration `yaml:"poll_interval"`
	PollTimeout  Duration `yaml:"poll_timeout"`
}

// Storage configures local persistence.
type Storage struct {
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Collaboration: Collaboration{
			BaseDelay:            Duration(time.Second),
			MaxDelay:             Duration(30 * time.Second),
			MaxReconnectAttempts: 5,
		},
		Sync: Sync{
			ProbeInterval: Duration(30 * time.Second),
			ProbeTimeout:  Duration(5 * time.Second),
		},
		Auth: Auth{
			PollInterval: Duration(2 * time.Second),
			PollTimeout:  Duration(300 * time.Second),
		},
		Storage: Storage{
			Path: "modelsync.db",
		},
		LogLevel: "info",
	}
}

// Load reads a YAML config from r on top of the defaults.
func Load(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(c); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return c, nil
}

// LoadFile reads a YAML config file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open config file")
	}
	defer f.Close()
	return Load(f)
}
