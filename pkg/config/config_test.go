package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"octrecon/pkg/reconstruction"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"octrecon.yaml", "octrecon.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			want := DefaultConfig()
			want.Processing.NumCores = 3
			want.Recon.NSplits = 2
			want.Recon.Contrast = 1.5
			want.Recon.AdditionalOffset = -12
			want.Export.SaveImages = true
			want.Export.Catalog = "frames.db"
			want.Display.SnapshotEvery = 5

			if err := SaveConfig(want, path); err != nil {
				t.Fatalf("SaveConfig failed: %v", err)
			}
			got, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "octrecon.yaml")
	data := "recon:\n  contrast: 2.5\noutput:\n  logLevel: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	want := DefaultConfig()
	want.Recon.Contrast = 2.5
	want.Output.LogLevel = "debug"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "octrecon.toml")
	require.NoError(t, os.WriteFile(path, []byte("[recon\ncontrast = "), 0644))

	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected a parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"negative cores", func(c *Config) { c.Processing.NumCores = -1 }},
		{"tiny A-line", func(c *Config) { c.Processing.ALineSize = 1 }},
		{"no buffer", func(c *Config) { c.Processing.BufferCapacity = 0 }},
		{"no background frames", func(c *Config) { c.Calibration.BackgroundFrames = 0 }},
		{"negative interval", func(c *Config) { c.Replay.IntervalMs = -5 }},
		{"export without dir", func(c *Config) { c.Export.SaveImages = true; c.Export.Dir = "" }},
		{"negative snapshot period", func(c *Config) { c.Display.SnapshotEvery = -1 }},
		{"bad recon", func(c *Config) { c.Recon.NSplits = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "octrecon.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParamsWatcherAppliesValidChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "octrecon.yaml")
	require.NoError(t, CreateDefaultConfigFile(path))

	got := make(chan reconstruction.Params, 4)
	w := NewParamsWatcher(path, func(p reconstruction.Params) { got <- p })
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	select {
	case <-w.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not start")
	}

	// Unrelated files and invalid parameters are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x: 1\n"), 0644))
	require.NoError(t, os.WriteFile(path, []byte("recon:\n  nSplits: 0\n"), 0644))
	select {
	case p := <-got:
		t.Fatalf("unexpected update %+v", p)
	case <-time.After(200 * time.Millisecond):
	}

	cfg := DefaultConfig()
	cfg.Recon.Brightness = 42
	require.NoError(t, SaveConfig(cfg, path))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case p := <-got:
			if cmp.Equal(cfg.Recon, p) {
				return
			}
		case <-deadline:
			t.Fatal("no update after a valid write")
		}
	}
}
