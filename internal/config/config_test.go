package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"soundscape/pkg/spec"
)

func clearEnv(t *testing.T) {
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvSongsDir, "")
	t.Setenv(EnvSocket, "")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SongsDir != DefaultSongsDir || cfg.Socket != spec.DefaultSocket {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Metadata != filepath.Join(DefaultSongsDir, DefaultMetadataFile) {
		t.Fatalf("metadata should default inside the songs dir, got %q", cfg.Metadata)
	}
	if cfg.Crossfade != DefaultCrossfade || !cfg.WatchMetadata {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "soundscape.yaml")
	yml := `songs_dir: /srv/music
log_level: debug
log_format: JSON
crossfade: 2s
crossfade_steps: 0
subscriber_buffer: 100000
headless: true
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfig, path)
	t.Setenv(EnvSocket, "/run/ss.sock")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SongsDir != "/srv/music" || cfg.Metadata != "/srv/music/metadata.csv" {
		t.Fatalf("songs dir not read: %+v", cfg)
	}
	if cfg.Socket != "/run/ss.sock" {
		t.Fatalf("env should override socket, got %q", cfg.Socket)
	}
	if cfg.Crossfade != 2*time.Second {
		t.Fatalf("crossfade %v", cfg.Crossfade)
	}
	if cfg.CrossfadeSteps != DefaultCrossfadeSteps {
		t.Fatalf("zero steps should fall back to default, got %d", cfg.CrossfadeSteps)
	}
	if cfg.SubscriberBuffer != MaxSubscriberBuffer {
		t.Fatalf("buffer should clamp, got %d", cfg.SubscriberBuffer)
	}
	if !cfg.Headless || cfg.LogFormat != "json" {
		t.Fatalf("unexpected %+v", cfg)
	}

	log := cfg.Logger()
	if log.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level %v", log.GetLevel())
	}
	if _, ok := log.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected json formatter, got %T", log.Formatter)
	}
}

func TestEnvSongsDirWinsOverFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "c.yaml")
	os.WriteFile(path, []byte("songs_dir: a\n"), 0o644)
	t.Setenv(EnvSongsDir, "b")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SongsDir != "b" {
		t.Fatalf("expected env songs dir, got %q", cfg.SongsDir)
	}
}

func TestLoadRejects(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cases := map[string]string{
		"level":  "log_level: loud\n",
		"format": "log_format: xml\n",
		"yaml":   "songs_dir: [\n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name+".yaml")
		os.WriteFile(path, []byte(body), 0o644)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestNormalizeClampsCrossfade(t *testing.T) {
	c := Default()
	c.Crossfade = time.Hour
	c.CrossfadeSteps = 1 << 20
	if err := c.Normalize(); err != nil {
		t.Fatal(err)
	}
	if c.Crossfade != MaxCrossfade || c.CrossfadeSteps != MaxCrossfadeSteps {
		t.Fatalf("not clamped: %+v", c)
	}
}
