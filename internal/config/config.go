// Package config loads the server configuration from YAML and the
// environment, and sets up logging.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"soundscape/pkg/spec"
)

// Environment overrides.
const (
	EnvConfig   = "SOUNDSCAPE_CONFIG"
	EnvSongsDir = "SOUNDSCAPE_SONGS_DIR"
	EnvSocket   = "SOUNDSCAPE_SOCKET"
)

const (
	DefaultSongsDir         = "songs"
	DefaultMetadataFile     = "metadata.csv"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultCrossfade        = 500 * time.Millisecond
	DefaultCrossfadeSteps   = 50
	DefaultSubscriberBuffer = 64

	MaxCrossfade        = 10 * time.Second
	MaxCrossfadeSteps   = 1000
	MaxSubscriberBuffer = 4096
)

type Config struct {
	SongsDir string `yaml:"songs_dir"`
	// Metadata defaults to metadata.csv inside SongsDir.
	Metadata string `yaml:"metadata"`
	Socket   string `yaml:"socket"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Crossfade      time.Duration `yaml:"crossfade"`
	CrossfadeSteps int           `yaml:"crossfade_steps"`

	// Headless plays through silent simulated decks.
	Headless         bool `yaml:"headless"`
	WatchMetadata    bool `yaml:"watch_metadata"`
	SubscriberBuffer int  `yaml:"subscriber_buffer"`
}

func Default() Config {
	return Config{
		SongsDir:         DefaultSongsDir,
		Socket:           spec.DefaultSocket,
		LogLevel:         DefaultLogLevel,
		LogFormat:        DefaultLogFormat,
		Crossfade:        DefaultCrossfade,
		CrossfadeSteps:   DefaultCrossfadeSteps,
		WatchMetadata:    true,
		SubscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Load reads path over the defaults, applies the environment and clamps.
// An empty path falls back to $SOUNDSCAPE_CONFIG; with neither, only the
// defaults and environment apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse %s", path)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Normalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvSongsDir); v != "" {
		c.SongsDir = v
	}
	if v := os.Getenv(EnvSocket); v != "" {
		c.Socket = v
	}
}

// Normalize fills blanks with defaults, clamps ranges and rejects values
// that cannot be repaired.
func (c *Config) Normalize() error {
	if c.SongsDir == "" {
		c.SongsDir = DefaultSongsDir
	}
	if c.Metadata == "" {
		c.Metadata = filepath.Join(c.SongsDir, DefaultMetadataFile)
	}
	if c.Socket == "" {
		c.Socket = spec.DefaultSocket
	}

	switch {
	case c.Crossfade <= 0:
		c.Crossfade = DefaultCrossfade
	case c.Crossfade > MaxCrossfade:
		c.Crossfade = MaxCrossfade
	}
	switch {
	case c.CrossfadeSteps < 1:
		c.CrossfadeSteps = DefaultCrossfadeSteps
	case c.CrossfadeSteps > MaxCrossfadeSteps:
		c.CrossfadeSteps = MaxCrossfadeSteps
	}
	switch {
	case c.SubscriberBuffer < 1:
		c.SubscriberBuffer = DefaultSubscriberBuffer
	case c.SubscriberBuffer > MaxSubscriberBuffer:
		c.SubscriberBuffer = MaxSubscriberBuffer
	}

	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	c.LogFormat = strings.ToLower(c.LogFormat)
	switch c.LogFormat {
	case "":
		c.LogFormat = DefaultLogFormat
	case "text", "json":
	default:
		return errors.Errorf("log_format %q: want text or json", c.LogFormat)
	}
	return nil
}

// Logger configures a logrus logger from c.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
