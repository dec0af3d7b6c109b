// Package config resolves the effective context-vault configuration from
// four layers - built-in defaults, the on-disk config file, environment
// variables, and command-line flags - tracking which layer produced each
// resolved key.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/fellanH/context-vault/internal/errcode"
)

// Layer identifies which resolution layer produced a config value.
type Layer int

const (
	LayerDefault Layer = iota
	LayerFile
	LayerEnv
	LayerFlag
)

func (l Layer) String() string {
	switch l {
	case LayerDefault:
		return "default"
	case LayerFile:
		return "file"
	case LayerEnv:
		return "env"
	case LayerFlag:
		return "flag"
	default:
		return "unknown"
	}
}

// DefaultEventDecayDays is the built-in default for event_decay_days.
const DefaultEventDecayDays = 30

// Config is the resolved, effective configuration (spec §4.1, §6.4).
type Config struct {
	VaultDir       string
	DataDir        string
	DBPath         string
	EventDecayDays int
}

// fileConfig mirrors the on-disk config.json shape (spec §6.4). Pointer
// fields distinguish "absent" from the zero value, since event_decay_days=0
// is a legitimate, meaningfully different setting from "not present".
type fileConfig struct {
	VaultDir       *string `json:"vault_dir"`
	DataDir        *string `json:"data_dir"`
	DBPath         *string `json:"db_path"`
	EventDecayDays *int    `json:"event_decay_days"`
}

// Resolve builds the effective Config from defaults, the config file under
// the resolved data directory, env (env takes args as the process
// environment in map form, the same shape cmd/contextvaultd builds from
// os.Environ()), and CLI args, returning per-key provenance for diagnostics
// (context_status).
func Resolve(args []string, env map[string]string) (Config, map[string]Layer, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	cfg := Config{
		VaultDir:       filepath.Join(home, ".context-vault", "vault"),
		DataDir:        filepath.Join(home, ".context-vault"),
		EventDecayDays: DefaultEventDecayDays,
	}
	cfg.DBPath = filepath.Join(cfg.DataDir, "vault.db")

	layers := map[string]Layer{
		"vault_dir":        LayerDefault,
		"data_dir":         LayerDefault,
		"db_path":          LayerDefault,
		"event_decay_days": LayerDefault,
	}

	// The file lives at <data-dir>/config.json, but data_dir is itself a
	// resolvable key with env/flag layers above the file. Bootstrap just
	// that one key from env/flags first so the file is read from wherever
	// the higher-priority layers actually point, then recompute the
	// derived defaults (vault_dir, db_path) against it before the file
	// layer runs.
	bootstrapDataDir(&cfg, layers, env, args)

	if err := applyFile(&cfg, layers); err != nil {
		return Config{}, nil, err
	}

	applyEnv(&cfg, layers, env)

	if err := applyFlags(&cfg, layers, args); err != nil {
		return Config{}, nil, err
	}

	return cfg, layers, nil
}

// bootstrapDataDir resolves data_dir alone from env then flags (flags
// parsed with a throwaway, error-tolerant set; a genuine flag error
// surfaces again, identically, from the real applyFlags pass later) so
// the config file can be located before anything else is applied.
func bootstrapDataDir(cfg *Config, layers map[string]Layer, env map[string]string, args []string) {
	original := cfg.DataDir

	for _, prefix := range []string{"CM_", "CV_"} {
		if v, ok := env[prefix+"DATA_DIR"]; ok && v != "" {
			cfg.DataDir = v
			layers["data_dir"] = LayerEnv
		}
	}

	fs := pflag.NewFlagSet("contextvaultd-bootstrap", pflag.ContinueOnError)
	fs.Usage = func() {}

	// Register every flag applyFlags knows about, not just --data-dir, so
	// an unrelated flag earlier in args doesn't make pflag stop parsing
	// before it reaches --data-dir.
	fs.String("vault-dir", "", "vault directory")
	dataDir := fs.String("data-dir", "", "data directory")
	fs.String("db-path", "", "index database path")
	fs.Int("event-decay-days", -1, "event decay window in days")
	_ = fs.Parse(args)

	if fs.Changed("data-dir") {
		cfg.DataDir = *dataDir
		layers["data_dir"] = LayerFlag
	}

	if cfg.DataDir != original {
		cfg.VaultDir = filepath.Join(cfg.DataDir, "vault")
		cfg.DBPath = filepath.Join(cfg.DataDir, "vault.db")
	}
}

// applyFile reads <data-dir>/config.json, using whatever data_dir the
// defaults/earlier layers have resolved so far. A missing file is not an
// error; a malformed one is CONFIG_INVALID (spec §4.1 step 2).
func applyFile(cfg *Config, layers map[string]Layer) error {
	path := filepath.Join(cfg.DataDir, "config.json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return errcode.New(errcode.ConfigInvalid, fmt.Errorf("reading %s: %w", path, err))
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return errcode.New(errcode.ConfigInvalid, fmt.Errorf("parsing %s: %w", path, err))
	}

	if fc.VaultDir != nil {
		cfg.VaultDir = *fc.VaultDir
		layers["vault_dir"] = LayerFile
	}

	if fc.DataDir != nil {
		cfg.DataDir = *fc.DataDir
		layers["data_dir"] = LayerFile
	}

	if fc.DBPath != nil {
		cfg.DBPath = *fc.DBPath
		layers["db_path"] = LayerFile
	}

	if fc.EventDecayDays != nil {
		cfg.EventDecayDays = *fc.EventDecayDays
		layers["event_decay_days"] = LayerFile
	}

	return nil
}

// applyEnv overlays the lower-priority legacy CM_* prefix, then CV_*
// (primary), so a key set under both prefixes takes the CV_* value (spec
// §6.5).
func applyEnv(cfg *Config, layers map[string]Layer, env map[string]string) {
	applyEnvPrefix(cfg, layers, env, "CM_")
	applyEnvPrefix(cfg, layers, env, "CV_")
}

func applyEnvPrefix(cfg *Config, layers map[string]Layer, env map[string]string, prefix string) {
	if v, ok := env[prefix+"VAULT_DIR"]; ok && v != "" {
		cfg.VaultDir = v
		layers["vault_dir"] = LayerEnv
	}

	if v, ok := env[prefix+"DATA_DIR"]; ok && v != "" {
		cfg.DataDir = v
		layers["data_dir"] = LayerEnv
	}

	if v, ok := env[prefix+"DB_PATH"]; ok && v != "" {
		cfg.DBPath = v
		layers["db_path"] = LayerEnv
	}

	if v, ok := env[prefix+"EVENT_DECAY_DAYS"]; ok && v != "" {
		days, err := strconv.Atoi(v)
		if err == nil && days >= 0 {
			cfg.EventDecayDays = days
			layers["event_decay_days"] = LayerEnv
		}
	}
}

// applyFlags parses the small, out-of-scope-limited CLI surface with
// pflag, the way the teacher's CLI does (spec §4.1 step 4, highest
// priority). Unset flags leave the prior layer's value untouched.
func applyFlags(cfg *Config, layers map[string]Layer, args []string) error {
	fs := pflag.NewFlagSet("contextvaultd", pflag.ContinueOnError)

	vaultDir := fs.String("vault-dir", "", "vault directory")
	dataDir := fs.String("data-dir", "", "data directory")
	dbPath := fs.String("db-path", "", "index database path")
	eventDecayDays := fs.Int("event-decay-days", -1, "event decay window in days")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	if fs.Changed("vault-dir") {
		cfg.VaultDir = *vaultDir
		layers["vault_dir"] = LayerFlag
	}

	if fs.Changed("data-dir") {
		cfg.DataDir = *dataDir
		layers["data_dir"] = LayerFlag
	}

	if fs.Changed("db-path") {
		cfg.DBPath = *dbPath
		layers["db_path"] = LayerFlag
	}

	if fs.Changed("event-decay-days") && *eventDecayDays >= 0 {
		cfg.EventDecayDays = *eventDecayDays
		layers["event_decay_days"] = LayerFlag
	}

	return nil
}
