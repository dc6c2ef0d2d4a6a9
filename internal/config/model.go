// internal/config/model.go
//
// Typed configuration model.
//
// Context
// -------
// These structs shape the tree loader.go builds from three overlay
// layers: an optional `.env`, `conf/global.yaml`, and
// `RECORDAPI_`-prefixed environment overrides.  A string value written
// as `vault:<path>#<key>` is resolved through the Vault client before
// validation, so the model only ever holds plain strings.
//
// Notes
// -----
// • Struct tags use `koanf:"…"`; Koanf ignores `yaml` tags.
// • The Paths block is filled at runtime; YAML must not set it.
package config

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
}

// Store selects and parameterizes the document-store backend.
//
// The DSN template stays in YAML so operators can tweak host or flags
// without touching Vault; the password is a Vault reference injected at
// runtime.  Both are ignored by the memory driver.
type Store struct {
	Driver      string `koanf:"driver" validate:"required,oneof=memory mysql"`
	DSN         string `koanf:"dsn"          validate:"required_if=Driver mysql"`
	DSNPassword string `koanf:"dsn_password"`
}

// RateLimit bounds per-client request throughput.
type RateLimit struct {
	RPS   float64 `koanf:"rps"   validate:"gt=0"`
	Burst int     `koanf:"burst" validate:"gte=1"`
}

// Geo points at an optional GeoLite2 database for access-log
// enrichment.  Empty disables geolocation.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

// Paths is resolved at runtime, never from YAML or env.
type Paths struct {
	Root string
}

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	Env       string    `koanf:"env" validate:"required,oneof=development production"`
	HTTP      HTTP      `koanf:"http"`
	Store     Store     `koanf:"store"`
	RateLimit RateLimit `koanf:"rate_limit"`
	Geo       Geo       `koanf:"geo"`
	Paths     Paths     `koanf:"-"`
}

// Development reports whether the process runs with development-mode
// diagnostics enabled.
func (c *Config) Development() bool { return c.Env == "development" }
