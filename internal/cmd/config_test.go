package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/finpace/internal/config"
)

func TestParseConfigValue(t *testing.T) {
	v := viper.New()
	config.SetDefaultsOn(v)

	tests := []struct {
		key     string
		raw     string
		want    any
		wantErr bool
	}{
		{key: "worker.max_batch_size", raw: "25", want: 25},
		{key: "worker.max_batch_size", raw: "lots", wantErr: true},
		{key: "worker.backoff_factor", raw: "1.75", want: 1.75},
		{key: "worker.backoff_factor", raw: "x", wantErr: true},
		{key: "logging.enabled", raw: "false", want: false},
		{key: "logging.enabled", raw: "maybe", wantErr: true},
		{key: "api.base_url", raw: "https://budget.example.com", want: "https://budget.example.com"},
		{key: "worker.unknown", raw: "1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.raw, func(t *testing.T) {
			got, err := parseConfigValue(v, tt.key, tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseConfigValue() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseConfigValue() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("parseConfigValue() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestPrintConfigHidesToken(t *testing.T) {
	cfg := config.Default()
	cfg.API.Token = "secret-token"

	var buf bytes.Buffer
	printConfig(&buf, cfg)
	out := buf.String()

	if strings.Contains(out, "secret-token") {
		t.Error("printConfig() printed the API token")
	}
	for _, want := range []string{"token: (set)", "max_batch_size: 50", "dismiss_after_ms: 3000", "rate_per_minute: 120"} {
		if !strings.Contains(out, want) {
			t.Errorf("printConfig() output missing %q", want)
		}
	}
}

func TestDefaultConfigFileIsValid(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(defaultConfigFile)); err != nil {
		t.Fatalf("ReadConfig(defaultConfigFile) error = %v", err)
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom(defaultConfigFile) error = %v", err)
	}
	if cfg.Worker.MaxBatchSize != config.Default().Worker.MaxBatchSize {
		t.Errorf("Worker.MaxBatchSize = %d, want the default %d", cfg.Worker.MaxBatchSize, config.Default().Worker.MaxBatchSize)
	}
	if cfg.Sync.DismissAfterMs != config.Default().Sync.DismissAfterMs {
		t.Errorf("Sync.DismissAfterMs = %d, want the default %d", cfg.Sync.DismissAfterMs, config.Default().Sync.DismissAfterMs)
	}
}
