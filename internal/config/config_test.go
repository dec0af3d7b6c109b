package config_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fellanH/context-vault/internal/config"
	"github.com/fellanH/context-vault/internal/errcode"
)

func writeConfigFile(t *testing.T, dataDir string, body map[string]any) {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dataDir, "config.json"), data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func Test_Resolve_UsesBuiltInDefaults_When_NoOtherLayerPresent(t *testing.T) {
	t.Parallel()

	cfg, layers, err := config.Resolve(nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if cfg.EventDecayDays != config.DefaultEventDecayDays {
		t.Fatalf("event_decay_days = %d, want %d", cfg.EventDecayDays, config.DefaultEventDecayDays)
	}

	if layers["event_decay_days"] != config.LayerDefault {
		t.Fatalf("layer = %v, want default", layers["event_decay_days"])
	}
}

func Test_Resolve_FileOverridesDefaults(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	writeConfigFile(t, dataDir, map[string]any{
		"data_dir":         dataDir,
		"vault_dir":        filepath.Join(dataDir, "vault"),
		"event_decay_days": 7,
	})

	env := map[string]string{"CV_DATA_DIR": dataDir}

	cfg, layers, err := config.Resolve(nil, env)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if cfg.EventDecayDays != 7 {
		t.Fatalf("event_decay_days = %d, want 7", cfg.EventDecayDays)
	}

	if layers["event_decay_days"] != config.LayerFile {
		t.Fatalf("layer = %v, want file", layers["event_decay_days"])
	}
}

func Test_Resolve_EnvOverridesFile(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	writeConfigFile(t, dataDir, map[string]any{
		"data_dir":         dataDir,
		"event_decay_days": 7,
	})

	env := map[string]string{
		"CV_DATA_DIR":         dataDir,
		"CV_EVENT_DECAY_DAYS": "14",
	}

	cfg, layers, err := config.Resolve(nil, env)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if cfg.EventDecayDays != 14 {
		t.Fatalf("event_decay_days = %d, want 14", cfg.EventDecayDays)
	}

	if layers["event_decay_days"] != config.LayerEnv {
		t.Fatalf("layer = %v, want env", layers["event_decay_days"])
	}
}

func Test_Resolve_LegacyCMPrefixAppliesOnlyWhenCVAbsent(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"CM_EVENT_DECAY_DAYS": "5",
	}

	cfg, layers, err := config.Resolve(nil, env)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if cfg.EventDecayDays != 5 {
		t.Fatalf("event_decay_days = %d, want 5", cfg.EventDecayDays)
	}

	if layers["event_decay_days"] != config.LayerEnv {
		t.Fatalf("layer = %v, want env", layers["event_decay_days"])
	}

	env = map[string]string{
		"CV_EVENT_DECAY_DAYS": "9",
		"CM_EVENT_DECAY_DAYS": "5",
	}

	cfg, _, err = config.Resolve(nil, env)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if cfg.EventDecayDays != 9 {
		t.Fatalf("event_decay_days = %d, want CV_ value 9 to win over CM_", cfg.EventDecayDays)
	}
}

func Test_Resolve_FlagsOverrideEnv(t *testing.T) {
	t.Parallel()

	env := map[string]string{"CV_EVENT_DECAY_DAYS": "14"}
	args := []string{"--event-decay-days=0"}

	cfg, layers, err := config.Resolve(args, env)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if cfg.EventDecayDays != 0 {
		t.Fatalf("event_decay_days = %d, want 0 (zero must be accepted, not coerced to default)", cfg.EventDecayDays)
	}

	if layers["event_decay_days"] != config.LayerFlag {
		t.Fatalf("layer = %v, want flag", layers["event_decay_days"])
	}
}

func Test_Resolve_ReturnsConfigInvalid_When_FileIsMalformedJSON(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, "config.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	env := map[string]string{"CV_DATA_DIR": dataDir}

	_, _, err := config.Resolve(nil, env)
	if err == nil {
		t.Fatal("expected error for malformed config file")
	}

	var codeErr *errcode.Error
	if !errors.As(err, &codeErr) || codeErr.Code != errcode.ConfigInvalid {
		t.Fatalf("expected CONFIG_INVALID, got %v", err)
	}
}

func Test_Resolve_MissingFileIsNotAnError(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	env := map[string]string{"CV_DATA_DIR": dataDir}

	if _, _, err := config.Resolve(nil, env); err != nil {
		t.Fatalf("resolve: %v", err)
	}
}
