// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
api:
  port: 9000
  host: "127.0.0.1"
log:
  level: "debug"
pipeline:
  min_valid_sources: 3
  per_source_timeout: "2s"
  overall_deadline: "15s"
circuit:
  failure_threshold: 4
  recovery_timeout: "1m"
cache:
  ttl: "60s"
  max_entries: 50
tiers:
  quick:
    max_sources: 2
sources:
  - name: gpt
    kind: openai
    class: knowledge
    api_key: "${VERIFY_TEST_OPENAI_KEY}"
    options:
      temperature: "0.1"
`
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	t.Setenv("VERIFY_TEST_OPENAI_KEY", "sk-test")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port: got %d", cfg.API.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q", cfg.Log.Level)
	}
	if cfg.Pipeline.MinValidSources != 3 {
		t.Errorf("MinValidSources: got %d", cfg.Pipeline.MinValidSources)
	}
	if cfg.Pipeline.PerSourceTimeout != 2*time.Second {
		t.Errorf("PerSourceTimeout: got %v", cfg.Pipeline.PerSourceTimeout)
	}
	if cfg.Circuit.RecoveryTimeout != time.Minute {
		t.Errorf("RecoveryTimeout: got %v", cfg.Circuit.RecoveryTimeout)
	}
	if cfg.Cache.TTL != 60*time.Second || cfg.Cache.MaxEntries != 50 {
		t.Errorf("Cache: got %+v", cfg.Cache)
	}
	// 未配置的字段取默认值
	if cfg.Circuit.HalfOpenMaxCalls != 2 {
		t.Errorf("HalfOpenMaxCalls default: got %d", cfg.Circuit.HalfOpenMaxCalls)
	}
	if q := cfg.Tiers[TierQuick]; q.MaxSources != 2 || q.Deadline != 10*time.Second {
		t.Errorf("quick tier: got %+v", q)
	}
	if len(cfg.Sources) != 1 {
		t.Fatalf("Sources: got %d", len(cfg.Sources))
	}
	src := cfg.Sources[0]
	if src.APIKey != "sk-test" {
		t.Errorf("APIKey env substitution: got %q", src.APIKey)
	}
	if !src.IsEnabled() {
		t.Error("source should default to enabled")
	}
	if src.Options["temperature"] != "0.1" {
		t.Errorf("Options: got %v", src.Options)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Pipeline.MinValidSources != 2 || cfg.Pipeline.MaxConcurrentCalls != 16 {
		t.Errorf("pipeline defaults: %+v", cfg.Pipeline)
	}
	if cfg.RateLimit.Capacity != 5 || cfg.RateLimit.RefillPerSec != 1 {
		t.Errorf("rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Cache.Type != "memory" || cfg.History.Type != "memory" {
		t.Errorf("storage defaults: cache=%s history=%s", cfg.Cache.Type, cfg.History.Type)
	}
	for _, name := range []string{TierQuick, TierStandard, TierDeep} {
		if _, ok := cfg.Tiers[name]; !ok {
			t.Errorf("missing default tier %s", name)
		}
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfig_BundledFiles(t *testing.T) {
	for _, name := range []string{"api.yaml", "worker.yaml"} {
		cfg, err := LoadConfig(filepath.Join("..", "..", "configs", name))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(cfg.Sources) != 5 {
			t.Errorf("%s: sources = %d, want 5", name, len(cfg.Sources))
		}
		if cfg.Sources[0].Options["verdict"] != "TRUE" {
			t.Errorf("%s: static verdict = %q", name, cfg.Sources[0].Options["verdict"])
		}
		if cfg.Sources[2].IsEnabled() {
			t.Errorf("%s: openai source should be disabled", name)
		}
		if got := cfg.History.Retention.MaxAgeFor("ERROR"); got != 24*time.Hour {
			t.Errorf("%s: ERROR retention = %v", name, got)
		}
		if cfg.RateLimit.Sources["factcheck"].Capacity != 10 {
			t.Errorf("%s: factcheck bucket = %+v", name, cfg.RateLimit.Sources["factcheck"])
		}
	}
}
