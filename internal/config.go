package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Domain        DomainConfig        `mapstructure:"domain"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	Protocol          string        `mapstructure:"protocol" validate:"oneof=http https"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	CertFile          string        `mapstructure:"cert_file"`
	KeyFile           string        `mapstructure:"key_file"`
}

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=postgres mongo"`
	Source          string        `mapstructure:"source"`
	MongoDatabase   string        `mapstructure:"mongo_database"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
}

type CacheConfig struct {
	Addr      string        `mapstructure:"addr" validate:"required"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

// TokenConfig is the policy of one token kind.
type TokenConfig struct {
	Secret         string        `mapstructure:"secret" validate:"required,min=16"`
	Algorithm      string        `mapstructure:"algorithm" validate:"oneof=HS256 HS384 HS512"`
	ExpiresIn      time.Duration `mapstructure:"expires_in"`
	CachePrefix    string        `mapstructure:"cache_prefix"`
	AllowRenew     bool          `mapstructure:"allow_renew"`
	RenewThreshold time.Duration `mapstructure:"renew_threshold"`
}

type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

// Configured reports whether both admin credentials are present.
func (c AdminConfig) Configured() bool {
	return c.Username != "" && c.PasswordHash != ""
}

type SecurityConfig struct {
	AccessToken  TokenConfig `mapstructure:"access_token"`
	RefreshToken TokenConfig `mapstructure:"refresh_token"`
	BCryptCost   int         `mapstructure:"bcrypt_cost" validate:"required,min=4,max=15"`
	Admin        AdminConfig `mapstructure:"admin"`
}

type DomainConfig struct {
	MaxPageSize int      `mapstructure:"max_page_size"`
	NodeTypes   []string `mapstructure:"node_types"`
	GenderTypes []string `mapstructure:"gender_types"`
}

// RateLimitConfig keys buckets on the connection address. TrustProxy lets
// X-Forwarded-For and X-Real-IP replace it, which is only safe behind a
// proxy that overwrites those headers.
type RateLimitConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	PerSecond  int  `mapstructure:"per_second"`
	Burst      int  `mapstructure:"burst"`
	TrustProxy bool `mapstructure:"trust_proxy"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- DEFAULTS -----------------

// SetDefaults fills every zero value with the documented default.
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Protocol == "" {
		c.Server.Protocol = "http"
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = 5 * time.Second
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if c.Database.ConnMaxIdleTime == 0 {
		c.Database.ConnMaxIdleTime = 5 * time.Minute
	}

	if c.Cache.OpTimeout == 0 {
		c.Cache.OpTimeout = 2 * time.Second
	}

	c.Security.AccessToken.setDefaults(30*time.Minute, "access_token:", 5*time.Minute)
	c.Security.RefreshToken.setDefaults(60*24*time.Hour, "refresh_token:", 24*time.Hour)
	if c.Security.BCryptCost == 0 {
		c.Security.BCryptCost = 12
	}

	if c.Domain.MaxPageSize == 0 {
		c.Domain.MaxPageSize = 20
	}
	if len(c.Domain.NodeTypes) == 0 {
		c.Domain.NodeTypes = []string{"office", "store"}
	}
	if len(c.Domain.GenderTypes) == 0 {
		c.Domain.GenderTypes = []string{"male", "female", "other"}
	}

	if c.RateLimit.PerSecond == 0 {
		c.RateLimit.PerSecond = 5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 10
	}

	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "json"
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = "/metrics"
	}
}

func (t *TokenConfig) setDefaults(expiresIn time.Duration, prefix string, threshold time.Duration) {
	if t.Algorithm == "" {
		t.Algorithm = "HS384"
	}
	if t.ExpiresIn == 0 {
		t.ExpiresIn = expiresIn
	}
	if t.CachePrefix == "" {
		t.CachePrefix = prefix
	}
	if t.RenewThreshold == 0 {
		t.RenewThreshold = threshold
	}
}

// ----------------- ENV -----------------

// LoadConfigFromEnv builds the configuration from plain environment variables.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", ""),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Protocol:       getEnv("SERVER_PROTOCOL", "http"),
			BaseURL:        getEnv("BASE_URL", ""),
			AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),
			CertFile:       getEnv("TLS_CERT_FILE", ""),
			KeyFile:        getEnv("TLS_KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:        getEnv("DB_DRIVER", DriverPostgres),
			Source:        getEnv("DB_SOURCE", ""),
			MongoDatabase: getEnv("MONGO_DATABASE", "orgtree"),
			MaxOpenConns:  getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Cache: CacheConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			OpTimeout: getEnvAsDuration("REDIS_OP_TIMEOUT", 2*time.Second),
		},
		Security: SecurityConfig{
			AccessToken: TokenConfig{
				Secret:         getEnv("JWT_ACCESS_SECRET", ""),
				Algorithm:      getEnv("JWT_ACCESS_ALGORITHM", "HS384"),
				ExpiresIn:      getEnvAsDuration("JWT_ACCESS_EXPIRES_IN", 30*time.Minute),
				CachePrefix:    getEnv("JWT_ACCESS_CACHE_PREFIX", "access_token:"),
				AllowRenew:     getEnvAsBool("JWT_ACCESS_ALLOW_RENEW", false),
				RenewThreshold: getEnvAsDuration("JWT_ACCESS_RENEW_THRESHOLD", 5*time.Minute),
			},
			RefreshToken: TokenConfig{
				Secret:         getEnv("JWT_REFRESH_SECRET", ""),
				Algorithm:      getEnv("JWT_REFRESH_ALGORITHM", "HS384"),
				ExpiresIn:      getEnvAsDuration("JWT_REFRESH_EXPIRES_IN", 60*24*time.Hour),
				CachePrefix:    getEnv("JWT_REFRESH_CACHE_PREFIX", "refresh_token:"),
				AllowRenew:     getEnvAsBool("JWT_REFRESH_ALLOW_RENEW", false),
				RenewThreshold: getEnvAsDuration("JWT_REFRESH_RENEW_THRESHOLD", 24*time.Hour),
			},
			BCryptCost: getEnvAsInt("BCRYPT_COST", 12),
			Admin: AdminConfig{
				Username:     getEnv("ADMIN_USER", ""),
				PasswordHash: getEnv("ADMIN_PASS", ""),
			},
		},
		Domain: DomainConfig{
			MaxPageSize: getEnvAsInt("MAX_PAGE_SIZE", 20),
			NodeTypes:   getEnvAsList("NODE_TYPES", []string{"office", "store"}),
			GenderTypes: getEnvAsList("GENDER_TYPES", []string{"male", "female", "other"}),
		},
		RateLimit: RateLimitConfig{
			Enabled:    getEnvAsBool("RATE_LIMIT_ENABLED", true),
			PerSecond:  getEnvAsInt("RATE_LIMIT_PER_SECOND", 5),
			Burst:      getEnvAsInt("RATE_LIMIT_BURST", 10),
			TrustProxy: getEnvAsBool("RATE_LIMIT_TRUST_PROXY", false),
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: getEnvAsBool("METRICS_ENABLED", true),
				Path:    getEnv("METRICS_PATH", "/metrics"),
			},
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
	cfg.SetDefaults()
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Cache.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("cache config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Domain.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("domain config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	if c.Protocol != "http" && c.Protocol != "https" {
		return fmt.Errorf("unsupported protocol %q", c.Protocol)
	}
	if c.Protocol == "https" && (c.CertFile == "" || c.KeyFile == "") {
		return errors.New("cert_file and key_file are required for https")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.Driver != DriverPostgres && c.Driver != DriverMongo {
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.Driver == DriverMongo && c.MongoDatabase == "" {
		return errors.New("mongo_database is required for the mongo driver")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *CacheConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.OpTimeout <= 0 {
		return errors.New("op_timeout must be positive")
	}
	return nil
}

func (c *SecurityConfig) Validate() error {
	if err := c.AccessToken.Validate(); err != nil {
		return fmt.Errorf("access_token: %w", err)
	}
	if err := c.RefreshToken.Validate(); err != nil {
		return fmt.Errorf("refresh_token: %w", err)
	}
	if c.AccessToken.Secret == c.RefreshToken.Secret {
		return errors.New("access and refresh secrets must differ")
	}
	if c.AccessToken.CachePrefix == c.RefreshToken.CachePrefix {
		return errors.New("access and refresh cache prefixes must differ")
	}
	if c.BCryptCost < 4 || c.BCryptCost > 15 {
		return fmt.Errorf("bcrypt_cost %d out of range [4, 15]", c.BCryptCost)
	}
	return nil
}

func (t *TokenConfig) Validate() error {
	if len(t.Secret) < 16 {
		return errors.New("secret must be at least 16 characters")
	}
	switch t.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("unsupported algorithm %q", t.Algorithm)
	}
	if t.ExpiresIn <= 0 {
		return errors.New("expires_in must be positive")
	}
	if t.CachePrefix == "" {
		return errors.New("cache_prefix is required")
	}
	if t.RenewThreshold < 0 || t.RenewThreshold > t.ExpiresIn {
		return errors.New("renew_threshold must be between 0 and expires_in")
	}
	return nil
}

func (c *DomainConfig) Validate() error {
	if c.MaxPageSize < 1 {
		return errors.New("max_page_size must be at least 1")
	}
	if len(c.NodeTypes) == 0 {
		return errors.New("node_types must not be empty")
	}
	if len(c.GenderTypes) == 0 {
		return errors.New("gender_types must not be empty")
	}
	return nil
}
