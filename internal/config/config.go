// Package config loads Spadina's YAML configuration, one struct tree per
// concern exactly as the teacher's config.LoginServer/config.Rates do: plain
// exported fields, yaml:"snake_case" tags, a Load that reads, unmarshals,
// and fills in defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration tree for the spadina process.
type Config struct {
	Server       Server         `yaml:"server"`
	Database     DatabaseConfig `yaml:"database"`
	Auth         Auth           `yaml:"auth"`
	Peers        Peers          `yaml:"peers"`
	DefaultRealm DefaultRealm   `yaml:"default_realm"`
	Assets       Assets         `yaml:"assets"`
	LogLevel     string         `yaml:"log_level"` // debug, info, warn, error (default: info)
}

// Server holds this node's own identity and network bind parameters
// (spec.md §4.7 "every peer is identified by its server name").
type Server struct {
	Name        string `yaml:"name"`
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// TLS is optional; both paths empty means plain HTTP (local/dev use,
	// or TLS terminated by a reverse proxy in front of this process).
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	// Connection pool parameters (optional, defaults from pgxpool apply if not set)
	MaxConns          int32  `yaml:"max_conns"`           // default: max(4, NumCPU)
	MinConns          int32  `yaml:"min_conns"`           // default: 0
	MaxConnLifetime   string `yaml:"max_conn_lifetime"`   // duration, e.g. "1h"
	MaxConnIdleTime   string `yaml:"max_conn_idle_time"`  // duration, e.g. "30m"
	HealthCheckPeriod string `yaml:"health_check_period"` // duration, e.g. "1m"
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	base := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)

	var params []string
	if d.MaxConns > 0 {
		params = append(params, fmt.Sprintf("pool_max_conns=%d", d.MaxConns))
	}
	if d.MinConns > 0 {
		params = append(params, fmt.Sprintf("pool_min_conns=%d", d.MinConns))
	}
	if d.MaxConnLifetime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_lifetime=%s", d.MaxConnLifetime))
	}
	if d.MaxConnIdleTime != "" {
		params = append(params, fmt.Sprintf("pool_max_conn_idle_time=%s", d.MaxConnIdleTime))
	}
	if d.HealthCheckPeriod != "" {
		params = append(params, fmt.Sprintf("pool_health_check_period=%s", d.HealthCheckPeriod))
	}

	if len(params) > 0 {
		return base + "&" + strings.Join(params, "&")
	}
	return base
}

// AuthBackend selects which login surface is active (spec.md §6
// "AuthScheme ∈ {Password, Kerberos, OpenIdConnect}"; only Password and
// PublicKey are implemented, see internal/auth).
type AuthBackend string

const (
	AuthBackendPassword  AuthBackend = "password"
	AuthBackendPublicKey AuthBackend = "publickey"
)

// Auth configures login: which backend answers GET /api/auth/method, and
// the per-backend knobs each needs.
type Auth struct {
	Backend            AuthBackend `yaml:"backend"`
	AutoCreateAccounts bool        `yaml:"auto_create_accounts"`

	// JWTSecret seeds the HS256 TokenIssuer. Left empty, a random secret is
	// generated at startup (single-process deployments only — a cluster
	// needs a shared secret configured explicitly so tokens validate across
	// instances).
	JWTSecret string `yaml:"jwt_secret"`

	// Flood protection on the client WS upgrade endpoint, generalized from
	// the teacher's LoginServer.FloodProtection family from a raw-TCP login
	// socket to the single GET /api/client/v1 upgrade this server exposes.
	FloodProtection      bool `yaml:"flood_protection"`
	FastConnectionLimit  int  `yaml:"fast_connection_limit"`
	NormalConnectionTime int  `yaml:"normal_connection_time"` // ms
	FastConnectionTime   int  `yaml:"fast_connection_time"`   // ms
	MaxConnectionPerIP   int  `yaml:"max_connection_per_ip"`

	// Superusers bypass every ACL everywhere (spec.md §4.5 step 3
	// "controller.try_add(key, principal, is_superuser)"); names are local
	// player names, matched case-insensitively.
	Superusers []string `yaml:"superusers"`
}

// PeerEntry names one other Spadina server this node bootstraps a
// federation link to at startup (spec.md §4.7 handshake).
type PeerEntry struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// Peers configures federation bootstrap and the peer ban list location.
type Peers struct {
	Bootstrap   []PeerEntry `yaml:"bootstrap"`
	BanListPath string      `yaml:"ban_list_path"`
}

// DefaultRealm names the asset hash offered to a player on first login
// (spec.md §3 "a new player needs somewhere to arrive"), before they've
// bookmarked anything of their own.
type DefaultRealm struct {
	AssetHash string `yaml:"asset_hash"`
}

// Assets configures the local content-addressed asset store (spec.md §6
// "Asset store: content-addressed").
type Assets struct {
	Dir          string   `yaml:"dir"`
	Capabilities []string `yaml:"capabilities"`
}

// Default returns Config with sensible defaults for local/dev use.
func Default() Config {
	return Config{
		Server: Server{
			Name:        "spadina",
			BindAddress: "0.0.0.0",
			Port:        8080,
		},
		Database: DatabaseConfig{
			Host:    "127.0.0.1",
			Port:    5432,
			User:    "spadina",
			Password: "spadina",
			DBName:  "spadina",
			SSLMode: "disable",
		},
		Auth: Auth{
			Backend:              AuthBackendPassword,
			AutoCreateAccounts:   true,
			FloodProtection:      true,
			FastConnectionLimit:  15,
			NormalConnectionTime: 700,
			FastConnectionTime:   350,
			MaxConnectionPerIP:   50,
		},
		Assets: Assets{
			Dir:          "./assets",
			Capabilities: []string{"puzzle", "navigation"},
		},
		LogLevel: "info",
	}
}

// Load reads and parses the YAML config at path, applying defaults for any
// field the file doesn't set. A missing file is not an error: it returns
// Default() unchanged, the same posture as the teacher's LoadLoginServer.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if cfg.Server.Name == "" {
		return nil, fmt.Errorf("config: server.name must not be empty")
	}

	return &cfg, nil
}
