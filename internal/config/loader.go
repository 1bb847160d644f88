// internal/config/loader.go
//
// Configuration loader and hot-reloader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `.env` file at `<root>/conf/.env`.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `MEETGATE_`, where `__` maps to “.”
     (e.g., `MEETGATE_HTTP__LISTEN_ADDR → http.listen_addr`).

String leaves that start with `vault:` are then swapped for the secret
they name.  The merged tree is unmarshalled into typed structs, validated,
and enriched with the runtime root path.  Callers own the returned
*Config; nothing is cached package-wide.

Instrumentation
---------------
  • DEBUG spans : root discovery, YAML read, env overlay, vault lookups.
  • ERROR spans : YAML parse, env overlay, vault, unmarshal, validation.
  • INFO  span  : final “config loaded” with key highlights (no secrets).
  • Logs use the global *sugared* logger (`zap.S()`) so early boot issues
    surface before the file logger is installed.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/yanizio/meetgate/internal/vault"
)

const (
	envPrefix   = "MEETGATE_"
	vaultPrefix = "vault:"

	// secretTTL caches each Vault lookup so repeated references hit Vault
	// once.
	secretTTL = time.Minute
)

// SecretSource resolves one key of a KV-v2 secret.
type SecretSource interface {
	GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error)
}

// newSecretSource is only called when the tree holds a vault: reference.
var newSecretSource = func(ctx context.Context) (SecretSource, error) {
	return vault.New(ctx, zap.S())
}

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves MEETGATE_ROOT or climbs directories until
// conf/global.yaml is found.  Falls back to the executable layout.
func rootDir() string {
	if r := os.Getenv(envPrefix + "ROOT"); r != "" {
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

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads .env, YAML, env overrides, resolves vault: values, validates,
// and caches Config.
func Load(ctx context.Context) (*Config, error) {
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
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// Env overrides: MEETGATE_HTTP__LISTEN_ADDR → http.listen_addr
	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(ctx, k); err != nil {
		zap.S().Errorw("config vault resolution failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"force_https", cfg.HTTP.ForceHTTPS,
		"social", cfg.SocialEnabled(),
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// envKey maps MEETGATE_HTTP__LISTEN_ADDR to http.listen_addr.
func envKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ToLower(strings.ReplaceAll(s, "__", "."))
}

/*──────────────────────────── vault values ────────────────────────────────*/

// resolveSecrets replaces every `vault:<path>#<key>` leaf in place.  The
// Vault client is created on first use so installs without Vault never
// need VAULT_ADDR.
func resolveSecrets(ctx context.Context, k *koanf.Koanf) error {
	var src SecretSource
	for key, val := range k.All() {
		s, ok := val.(string)
		if !ok || !strings.HasPrefix(s, vaultPrefix) {
			continue
		}
		path, field, err := parseVaultRef(s)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if src == nil {
			if src, err = newSecretSource(ctx); err != nil {
				return fmt.Errorf("vault client: %w", err)
			}
		}
		secret, err := src.GetKV(ctx, path, field, secretTTL)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if err := k.Set(key, secret); err != nil {
			return err
		}
		zap.S().Debugw("config value resolved from vault", "key", key, "path", path)
	}
	return nil
}

// parseVaultRef splits "vault:secret/meetgate#api_key".
func parseVaultRef(ref string) (path, key string, err error) {
	body := strings.TrimPrefix(ref, vaultPrefix)
	path, key, ok := strings.Cut(body, "#")
	if !ok || path == "" || key == "" {
		return "", "", fmt.Errorf("vault reference %q must look like vault:<path>#<key>", ref)
	}
	return path, key, nil
}
