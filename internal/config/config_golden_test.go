package config

import (
	"os"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// TestConfigDefaultsGoldenFile tests that our defaults match the golden file
func TestConfigDefaultsGoldenFile(t *testing.T) {
	SetLogger(zerolog.Nop())

	goldenData, err := os.ReadFile("testdata/defaults.yaml")
	if err != nil {
		t.Fatalf("Failed to read golden defaults file: %v", err)
	}

	var goldenConfig Config
	if err := yaml.Unmarshal(goldenData, &goldenConfig); err != nil {
		t.Fatalf("Failed to parse golden config: %v", err)
	}

	if got := Default(); !reflect.DeepEqual(*got, goldenConfig) {
		t.Errorf("Defaults drifted from testdata/defaults.yaml:\n got  %+v\n want %+v", *got, goldenConfig)
	}
}

// TestGeneratedExampleLoads checks that the marshalled defaults load back
// unchanged, which is what cmd/generate-config relies on.
func TestGeneratedExampleLoads(t *testing.T) {
	SetLogger(zerolog.Nop())
	clearEnv(t)

	data, err := yaml.Marshal(Default())
	if err != nil {
		t.Fatal(err)
	}
	path := t.TempDir() + "/config.yaml"
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Errorf("Expected generated example to round trip, got %+v", cfg)
	}
}
