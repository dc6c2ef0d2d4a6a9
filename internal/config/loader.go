// internal/config/loader.go
//
// Configuration loader and hot-reloader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers
(highest precedence last):

  1. Optional `.env` at `<root>/conf/.env`.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `RECORDAPI_`, with `__` mapping to
     “.” (e.g., `RECORDAPI_HTTP__LISTEN_ADDR → http.listen_addr`).

After merging, the tree is unmarshalled into the typed model, any
`vault:` references are resolved, the result is validated and enriched
with the runtime root path, then cached in an `atomic.Pointer` for
lock-free reads.  `Reload()` calls `Load()` again and swaps the pointer.

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/global.yaml`,
    so `go run ./cmd/web` works from any sub-directory.
  • Logs use the global sugared logger so early boot issues surface on
    the bootstrap console.
*/
package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/yanizio/recordapi/internal/vault"
)

var current atomic.Pointer[Config]

// rootDir resolves RECORDAPI_ROOT or climbs directories until
// conf/global.yaml is found, falling back to the executable heuristic
// for the production layout.
func rootDir() string {
	if r := os.Getenv("RECORDAPI_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

// Load reads .env, YAML, env overrides, resolves secrets, validates,
// and caches the Config.
func Load() (*Config, error) {
	root := rootDir()
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}

	// Env overrides: RECORDAPI_HTTP__LISTEN_ADDR → http.listen_addr
	if err := k.Load(env.Provider("RECORDAPI_", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(&cfg); err != nil {
		zap.S().Errorw("config secret resolution failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"env", cfg.Env,
		"listen_addr", cfg.HTTP.ListenAddr,
		"store_driver", cfg.Store.Driver,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// resolveSecrets replaces vault: references with their secret values.
// The Vault client is only constructed when a reference is present, so
// development boxes without a Vault server never pay for one.
func resolveSecrets(cfg *Config) error {
	if !strings.HasPrefix(cfg.Store.DSNPassword, vault.Prefix) {
		return nil
	}
	cli, err := vault.New()
	if err != nil {
		return err
	}
	pw, err := cli.Resolve(context.Background(), cfg.Store.DSNPassword)
	if err != nil {
		return err
	}
	cfg.Store.DSNPassword = pw
	return nil
}

func Get() *Config  { return current.Load() }
func Reload() error { _, err := Load(); return err }
