package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/finpace/internal/pacing"
	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Worker.InitialBatchSize != 5 {
		t.Errorf("Worker.InitialBatchSize = %d, want 5", cfg.Worker.InitialBatchSize)
	}
	if cfg.Worker.MinBatchSize != 1 || cfg.Worker.MaxBatchSize != 50 {
		t.Errorf("Worker batch bounds = [%d, %d], want [1, 50]", cfg.Worker.MinBatchSize, cfg.Worker.MaxBatchSize)
	}
	if got := cfg.Worker.BaseInterval(); got != 5*time.Second {
		t.Errorf("Worker.BaseInterval() = %v, want 5s", got)
	}
	if cfg.Worker.RequestTimeout() != 0 {
		t.Errorf("Worker.RequestTimeout() = %v, want 0", cfg.Worker.RequestTimeout())
	}
	if got := cfg.Sync.DismissAfter(); got != 3*time.Second {
		t.Errorf("Sync.DismissAfter() = %v, want 3s", got)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if errs := Default().Validate(); len(errs) != 0 {
		t.Errorf("Default().Validate() = %v, want no errors", ValidationErrors(errs))
	}
}

func TestLoadFromUsesDefaultsAndOverrides(t *testing.T) {
	v := viper.New()
	SetDefaultsOn(v)
	v.Set("worker.max_batch_size", 25)
	v.Set("api.base_url", "https://finance.example.com")

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Worker.MaxBatchSize != 25 {
		t.Errorf("Worker.MaxBatchSize = %d, want 25", cfg.Worker.MaxBatchSize)
	}
	if cfg.Worker.BatchStep != 2 {
		t.Errorf("Worker.BatchStep = %d, want default 2", cfg.Worker.BatchStep)
	}
	if cfg.API.BaseURL != "https://finance.example.com" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
}

func TestLoadFromReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "worker:\n  initial_batch_size: 8\n  stall_threshold: 0\nlogging:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	SetDefaultsOn(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Worker.InitialBatchSize != 8 {
		t.Errorf("Worker.InitialBatchSize = %d, want 8", cfg.Worker.InitialBatchSize)
	}
	if cfg.Worker.StallThreshold != 0 {
		t.Errorf("Worker.StallThreshold = %d, want 0", cfg.Worker.StallThreshold)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadFromRejectsInvalid(t *testing.T) {
	v := viper.New()
	SetDefaultsOn(v)
	v.Set("worker.min_batch_size", 10)
	v.Set("worker.max_batch_size", 5)

	_, err := LoadFrom(v)
	if err == nil {
		t.Fatal("LoadFrom() error = nil, want validation error")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("error type = %T, want ValidationErrors", err)
	}
	if !strings.Contains(verrs.Error(), "worker.max_batch_size") {
		t.Errorf("error %q does not mention worker.max_batch_size", verrs.Error())
	}
}

func TestResolveDataDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	tests := []struct {
		name string
		dir  string
		want string
	}{
		{"absolute", "/var/lib/finpace", "/var/lib/finpace"},
		{"tilde", "~/finpace", filepath.Join(home, "finpace")},
		{"bare tilde", "~", home},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PathsConfig{DataDir: tt.dir}
			if got := p.ResolveDataDir(); got != tt.want {
				t.Errorf("ResolveDataDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveDataDirDefaultUsesXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")
	p := PathsConfig{}
	if got := p.ResolveDataDir(); got != filepath.Join("/tmp/xdg-data", "finpace") {
		t.Errorf("ResolveDataDir() = %q", got)
	}
}

func TestConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	if got := ConfigDir(); got != "/tmp/xdg-config/finpace" {
		t.Errorf("ConfigDir() = %q, want /tmp/xdg-config/finpace", got)
	}
	if got := ConfigFile(); got != "/tmp/xdg-config/finpace/config.yaml" {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func TestControllerOptions(t *testing.T) {
	cfg := Default()
	cfg.Worker.InitialBatchSize = 7
	cfg.Worker.BaseIntervalMs = 9000
	cfg.Worker.MaxBatchSize = 30

	c := pacing.NewController(cfg.Worker.ControllerOptions()...)
	s := c.Initial()
	if s.BatchSize != 7 || s.Interval != 9*time.Second {
		t.Errorf("Initial() = %v, want batch 7 at 9s", s)
	}
	if _, hi := c.BatchBounds(); hi != 30 {
		t.Errorf("max batch = %d, want 30", hi)
	}
}
