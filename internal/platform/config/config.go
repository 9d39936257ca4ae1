// Package config loads process configuration from an optional .env file
// overlaid by the environment.
package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"thgate/pkg/secrets"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config is the full process configuration.
type Config struct {
	Environment     string
	Addr            string
	LogLevel        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	JWT       JWT
	Firebase  Firebase
	RateLimit RateLimit
	Kafka     Kafka
	DemoUser  DemoUser

	AllowedOrigins []string
	TrustedProxies []netip.Prefix
	RedisURL       string
	DatabaseURL    string
}

type JWT struct {
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	Audience      string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Firebase is the public web client configuration handed to browsers.
type Firebase struct {
	APIKey            string `json:"apiKey"`
	AuthDomain        string `json:"authDomain"`
	ProjectID         string `json:"projectId"`
	StorageBucket     string `json:"storageBucket"`
	MessagingSenderID string `json:"messagingSenderId"`
	AppID             string `json:"appId"`
	MeasurementID     string `json:"measurementId"`
}

// Missing returns the names of required Firebase variables that are unset,
// in a fixed order. MeasurementID is optional.
func (f Firebase) Missing() []string {
	required := []struct {
		name  string
		value string
	}{
		{"FIREBASE_API_KEY", f.APIKey},
		{"FIREBASE_AUTH_DOMAIN", f.AuthDomain},
		{"FIREBASE_PROJECT_ID", f.ProjectID},
		{"FIREBASE_STORAGE_BUCKET", f.StorageBucket},
		{"FIREBASE_MESSAGING_SENDER_ID", f.MessagingSenderID},
		{"FIREBASE_APP_ID", f.AppID},
	}
	missing := []string{}
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}
	return missing
}

type RateLimit struct {
	RequestsPerWindow int
	Window            time.Duration
	LoginMaxAttempts  int
	LoginLockout      time.Duration
	CleanupInterval   time.Duration
}

type Kafka struct {
	Brokers []string
	Topic   string
}

type DemoUser struct {
	Email    string
	Password string
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Load reads envPath when it exists, then the process environment. A missing
// file is not an error.
func Load(envPath string) (*Config, error) {
	k := koanf.New(".")
	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := k.Load(file.Provider(envPath), dotenv.Parser()); err != nil {
				return nil, fmt.Errorf("load %s: %w", envPath, err)
			}
		}
	}
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	return fromKoanf(k)
}

func fromKoanf(k *koanf.Koanf) (*Config, error) {
	p := parser{k: k}
	cfg := &Config{
		Environment:     p.str("NODE_ENV", EnvDevelopment),
		Addr:            p.str("ADDR", ":8080"),
		LogLevel:        p.str("LOG_LEVEL", "info"),
		RequestTimeout:  p.duration("REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		JWT: JWT{
			AccessSecret:  p.str("JWT_SECRET", ""),
			RefreshSecret: p.str("JWT_REFRESH_SECRET", ""),
			Issuer:        p.str("JWT_ISSUER", "netlify-auth"),
			Audience:      p.str("JWT_AUDIENCE", "web-app"),
			AccessTTL:     p.duration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTTL:    p.duration("JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		Firebase: Firebase{
			APIKey:            p.str("FIREBASE_API_KEY", ""),
			AuthDomain:        p.str("FIREBASE_AUTH_DOMAIN", ""),
			ProjectID:         p.str("FIREBASE_PROJECT_ID", ""),
			StorageBucket:     p.str("FIREBASE_STORAGE_BUCKET", ""),
			MessagingSenderID: p.str("FIREBASE_MESSAGING_SENDER_ID", ""),
			AppID:             p.str("FIREBASE_APP_ID", ""),
			MeasurementID:     p.str("FIREBASE_MEASUREMENT_ID", ""),
		},
		RateLimit: RateLimit{
			RequestsPerWindow: p.integer("RATE_LIMIT_REQUESTS", 60),
			Window:            p.duration("RATE_LIMIT_WINDOW", time.Minute),
			LoginMaxAttempts:  p.integer("LOGIN_MAX_ATTEMPTS", 5),
			LoginLockout:      p.duration("LOGIN_LOCKOUT", 15*time.Minute),
			CleanupInterval:   p.duration("RATE_LIMIT_CLEANUP_INTERVAL", time.Minute),
		},
		Kafka: Kafka{
			Brokers: p.list("KAFKA_BROKERS"),
			Topic:   p.str("KAFKA_TOPIC", "thgate.security-events"),
		},
		DemoUser: DemoUser{
			Email:    p.str("DEMO_USER_EMAIL", "demo@themehackers.com"),
			Password: p.str("DEMO_USER_PASSWORD", "ThemeHackers2024!"),
		},
		AllowedOrigins: p.list("ALLOWED_ORIGINS"),
		TrustedProxies: p.prefixes("TRUSTED_PROXIES"),
		RedisURL:       p.str("REDIS_URL", ""),
		DatabaseURL:    p.str("DATABASE_URL", ""),
	}
	if p.err != nil {
		return nil, p.err
	}
	if cfg.IsProduction() && len(cfg.AllowedOrigins) == 0 {
		return nil, fmt.Errorf("ALLOWED_ORIGINS is required in production")
	}
	return cfg, nil
}

// EnsureSecrets fills missing signing secrets. Production refuses to start
// without them; development generates throwaway secrets, so tokens do not
// survive a restart.
func (c *Config) EnsureSecrets(logger *slog.Logger) error {
	if c.JWT.AccessSecret != "" && c.JWT.RefreshSecret != "" {
		return nil
	}
	if c.IsProduction() {
		return fmt.Errorf("JWT_SECRET and JWT_REFRESH_SECRET are required in production")
	}
	for _, s := range []struct {
		name  string
		value *string
	}{
		{"JWT_SECRET", &c.JWT.AccessSecret},
		{"JWT_REFRESH_SECRET", &c.JWT.RefreshSecret},
	} {
		if *s.value != "" {
			continue
		}
		generated, err := secrets.Generate()
		if err != nil {
			return err
		}
		*s.value = generated
		logger.Warn("signing secret not configured, using a generated one", "variable", s.name)
	}
	return nil
}

// parser collects the first conversion error so fromKoanf reads linearly.
type parser struct {
	k   *koanf.Koanf
	err error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.k.String(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		p.fail(key, raw)
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		p.fail(key, raw)
		return def
	}
	return d
}

// list splits a comma separated value, dropping empty items.
func (p *parser) list(key string) []string {
	var out []string
	for item := range strings.SplitSeq(p.str(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// prefixes accepts CIDRs or bare addresses.
func (p *parser) prefixes(key string) []netip.Prefix {
	var out []netip.Prefix
	for _, item := range p.list(key) {
		if prefix, err := netip.ParsePrefix(item); err == nil {
			out = append(out, prefix)
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			p.fail(key, item)
			continue
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}

func (p *parser) fail(key, raw string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid value %q for %s", raw, key)
	}
}
