// internal/config/model.go
//
// Typed configuration model for the gate.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                            – dotenv values,
//   • `conf/global.yaml`                         – primary static file,
//   • `MEETGATE_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with `vault:` is resolved through the Vault
// client *before* unmarshalling, so the model never stores Vault URIs, only
// plain strings.  The reference format is `vault:<mount>/<path>#<key>`.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Durations accept Go syntax ("2s", "10h").

package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
	ForceHTTPS bool   `koanf:"force_https"`
}

//
// Identity provider sections
//

// Firebase holds the project's Web API settings.  The API key is public
// by Firebase's design but still commonly kept in Vault.
type Firebase struct {
	APIKey     string        `koanf:"api_key"     validate:"required"`
	RequestURI string        `koanf:"request_uri" validate:"omitempty,url"`
	RetryMax   int           `koanf:"retry_max"   validate:"gte=0,lte=10"`
	Timeout    time.Duration `koanf:"timeout"`
}

// Google configures social sign-in.  An empty ClientID disables it.
type Google struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret" validate:"required_with=ClientID"`
	RedirectURL  string `koanf:"redirect_url"  validate:"required_with=ClientID"`
}

//
// Session section
//

// Session holds the keys protecting cookies and forms.
//
// CookieKey seals the provider credential cookie and must decode to
// exactly 32 bytes.  CSRFKey signs form tokens.
type Session struct {
	CookieKey string `koanf:"cookie_key" validate:"required,base64"`
	CSRFKey   string `koanf:"csrf_key"   validate:"required,min=32"`
}

//
// Guard section
//

// Guard tunes how long a protected request waits for the provider.
type Guard struct {
	SettleTimeout time.Duration `koanf:"settle_timeout"`
	PollAfter     time.Duration `koanf:"poll_after"`
}

//
// Ambient sections
//

// Log selects where the JSON log lands.  Empty Dir means <root>/logs.
type Log struct {
	Dir string `koanf:"dir"`
}

// GeoIP points at an optional MaxMind City database.
type GeoIP struct {
	DBPath string `koanf:"db_path" validate:"omitempty,file"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // MEETGATE_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Firebase Firebase `koanf:"firebase"`
	Google   Google   `koanf:"google"`
	Session  Session  `koanf:"session"`
	Guard    Guard    `koanf:"guard"`
	Log      Log      `koanf:"log"`
	GeoIP    GeoIP    `koanf:"geoip"`
	Paths    Paths    `koanf:"-"`
}

// SocialEnabled reports whether Google sign-in is configured.
func (c *Config) SocialEnabled() bool { return c.Google.ClientID != "" }

// LogDir returns the configured log directory or <root>/logs.
func (c *Config) LogDir() string {
	if c.Log.Dir != "" {
		return c.Log.Dir
	}
	return c.Paths.Root + "/logs"
}
