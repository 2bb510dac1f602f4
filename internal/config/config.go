// Package config loads the arbor.yaml host configuration consumed by the
// CLI. The file is optional: every setting has a built-in default, and
// command-line flags override whatever the file says.
package config

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "arbor.yaml"

// Storage drivers accepted by Config.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
)

// Config is the full arbor.yaml document.
type Config struct {
	LogLevel string  `yaml:"log_level"`
	Storage  Storage `yaml:"storage"`
	Auth     Auth    `yaml:"auth"`
	Server   Server  `yaml:"server"`
}

// Storage selects and tunes the state backend.
type Storage struct {
	// Driver is "memory", "file" or "redis".
	Driver string `yaml:"driver"`
	File   File   `yaml:"file"`
	Redis  Redis  `yaml:"redis"`
	// EncryptionKeys are base64 encoded 32-byte AES keys. The first entry
	// seals new writes, the rest still open records sealed before a
	// rotation. Empty means state is stored in the clear.
	EncryptionKeys []string `yaml:"encryption_keys"`
	// RedactPatterns are regular expressions whose matches are masked out
	// of persisted state before it reaches the backend.
	RedactPatterns []string `yaml:"redact_patterns"`
}

// File carries settings for the file driver.
type File struct {
	// Dir is the directory state files live in. Empty picks the adapter's
	// default next to the working directory.
	Dir string `yaml:"dir"`
}

// Redis carries connection settings for the redis driver.
type Redis struct {
	Address  string   `yaml:"address"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	Prefix   string   `yaml:"prefix"`
	// TTL expires idle conversation records. Zero keeps them forever.
	TTL Duration `yaml:"ttl"`
	// Lock serializes turns through a redis lock instead of the in-process
	// one. Required when several replicas share the database.
	Lock bool `yaml:"lock"`
}

// Auth configures the token service used for OAuth sign-in. An empty
// Endpoint disables sign-in entirely.
type Auth struct {
	Endpoint    string       `yaml:"endpoint"`
	AppID       string       `yaml:"app_id"`
	Connections []Connection `yaml:"connections"`
}

// Connection describes one OAuth connection registered with the token
// service.
type Connection struct {
	// ID names the sign-in handler. Defaults to Name.
	ID string `yaml:"id"`
	// Name is the connection name at the token service.
	Name  string `yaml:"name"`
	Title string `yaml:"title"`
	Text  string `yaml:"text"`
	// Timeout bounds how long a started sign-in stays answerable.
	Timeout Duration `yaml:"timeout"`
}

// HandlerID returns the sign-in handler id for this connection.
func (c Connection) HandlerID() string {
	if c.ID != "" {
		return c.ID
	}
	return c.Name
}

// Server holds the listener settings for arbor serve.
type Server struct {
	Addr string `yaml:"addr"`
}

// Duration wraps time.Duration so YAML can say "45m" or "12h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration: info logging, in-memory
// storage and the serve listener on :8979.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Storage: Storage{
			Driver: DriverMemory,
			Redis:  Redis{Address: "localhost:6379"},
		},
		Server: Server{Addr: ":8979"},
	}
}

// Load reads the configuration at path. An empty path tries DefaultPath
// and treats a missing file as no file at all; a path given explicitly
// must exist. Settings absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that would only fail later, at wiring time.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverFile, DriverRedis:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, _, err := c.Storage.Keys(); err != nil {
		return err
	}
	for _, pattern := range c.Storage.RedactPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("config: redact pattern %q: %w", pattern, err)
		}
	}
	seen := make(map[string]struct{}, len(c.Auth.Connections))
	for _, conn := range c.Auth.Connections {
		if conn.Name == "" {
			return fmt.Errorf("config: auth connection without a name")
		}
		id := conn.HandlerID()
		if _, dup := seen[id]; dup {
			return fmt.Errorf("config: duplicate auth connection id %q", id)
		}
		seen[id] = struct{}{}
	}
	if len(c.Auth.Connections) > 0 && c.Auth.Endpoint == "" {
		return fmt.Errorf("config: auth connections need an endpoint")
	}
	return nil
}

// Level parses LogLevel into a slog level.
func (c *Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", c.LogLevel)
}

// Keys decodes EncryptionKeys into the active key and its fallbacks.
// A nil active key means encryption is off.
func (s *Storage) Keys() (active []byte, fallbacks [][]byte, err error) {
	for i, encoded := range s.EncryptionKeys {
		key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return nil, nil, fmt.Errorf("config: encryption key %d: %w", i, err)
		}
		if len(key) != 32 {
			return nil, nil, fmt.Errorf("config: encryption key %d: got %d bytes, want 32", i, len(key))
		}
		if i == 0 {
			active = key
		} else {
			fallbacks = append(fallbacks, key)
		}
	}
	return active, fallbacks, nil
}
