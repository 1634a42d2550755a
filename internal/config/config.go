package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/receipt-pipeline/internal/application"
	"github.com/bryanwahyu/receipt-pipeline/internal/application/auth"
	"github.com/bryanwahyu/receipt-pipeline/internal/domain/identity"
	"github.com/bryanwahyu/receipt-pipeline/internal/middleware"
)

// DefaultReferenceDate anchors the fallback rule: any date after 2025 is
// treated as a future-date extraction error.
const DefaultReferenceDate = "2025-12-06"

// SystemReferenceDate makes the fallback compare against the wall clock.
const SystemReferenceDate = "system"

type Config struct {
	Server struct {
		Port           int      `yaml:"port"`
		ReflectorPort  int      `yaml:"reflectorPort"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		RateLimit      struct {
			Capacity   int `yaml:"capacity"`
			RefillRate int `yaml:"refillRate"`
		} `yaml:"rateLimit"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Auth struct {
		Identities []IdentityConfig `yaml:"identities"`
	} `yaml:"auth"`

	Reflection struct {
		URL             string `yaml:"url"`
		ServiceKeyEnv   string `yaml:"serviceKeyEnv"`
		TimeoutSeconds  int    `yaml:"timeoutSeconds"`
		ValidationRules string `yaml:"validationRules"`
		// ReferenceDate pins "now" for the deterministic fallback (YYYY-MM-DD),
		// or "system" to follow the wall clock.
		ReferenceDate string `yaml:"referenceDate"`
	} `yaml:"reflection"`

	AI struct {
		APIKeyEnv        string `yaml:"apiKeyEnv"`
		Model            string `yaml:"model"`
		BaseURL          string `yaml:"baseURL"`
		VisionExtraction bool   `yaml:"visionExtraction"`
	} `yaml:"ai"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | "" (disabled)
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`
}

// IdentityConfig describes one pre-shared credential. The secret itself is
// never in the file, only the name of the env var holding it.
type IdentityConfig struct {
	KeyEnv   string   `yaml:"keyEnv"`
	UserID   string   `yaml:"userId"`
	ClientID string   `yaml:"clientId"`
	Roles    []string `yaml:"roles"`
	TenantID string   `yaml:"tenantId"`
}

// Load baca file config.yaml. A missing file yields the defaults so both
// services can run from the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}
	cfg.applyDefaults()
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ReflectorPort == 0 {
		c.Server.ReflectorPort = 8001
	}
	if c.Server.RateLimit.Capacity == 0 {
		c.Server.RateLimit.Capacity = 60
	}
	if c.Server.RateLimit.RefillRate == 0 {
		c.Server.RateLimit.RefillRate = 1
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if len(c.Auth.Identities) == 0 {
		c.Auth.Identities = []IdentityConfig{
			{KeyEnv: "ADMIN_API_KEY", UserID: "u_admin", ClientID: "platform_admin", Roles: []string{identity.RoleAdmin}, TenantID: "TENANT_01"},
			{KeyEnv: "WORKER_API_KEY", UserID: "u_bot_01", ClientID: "automation_worker", Roles: []string{identity.RoleWorker}, TenantID: "TENANT_02"},
		}
	}
	if c.Reflection.URL == "" {
		c.Reflection.URL = "http://localhost:8001/reflect"
	}
	if c.Reflection.ServiceKeyEnv == "" {
		c.Reflection.ServiceKeyEnv = "ADMIN_API_KEY"
	}
	if c.Reflection.TimeoutSeconds == 0 {
		c.Reflection.TimeoutSeconds = 30
	}
	if c.Reflection.ReferenceDate == "" {
		c.Reflection.ReferenceDate = DefaultReferenceDate
	}
	if c.AI.APIKeyEnv == "" {
		c.AI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.AI.Model == "" {
		c.AI.Model = "gpt-4o"
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("REFLECTION_URL"); v != "" {
		c.Reflection.URL = v
	}
	if v := getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := getenv("MINIO_SECRET_KEY"); v != "" {
		c.Minio.SecretKey = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate rejects configurations that would weaken authentication or
// cannot be served.
func (c *Config) Validate() error {
	for i, id := range c.Auth.Identities {
		if strings.TrimSpace(id.KeyEnv) == "" {
			return fmt.Errorf("auth.identities[%d]: keyEnv is required", i)
		}
		if id.UserID == "" {
			return fmt.Errorf("auth.identities[%d]: userId is required", i)
		}
		if len(id.Roles) == 0 {
			return fmt.Errorf("auth.identities[%d] (%s): at least one role is required", i, id.UserID)
		}
		if id.TenantID != "" {
			if err := middleware.ValidateTenantID(id.TenantID); err != nil {
				return fmt.Errorf("auth.identities[%d] (%s): %w", i, id.UserID, err)
			}
		}
	}
	if c.Reflection.TimeoutSeconds < 0 {
		return fmt.Errorf("reflection.timeoutSeconds must be positive")
	}
	if _, _, err := c.ReferenceTime(); err != nil {
		return err
	}
	switch c.Database.Driver {
	case "", "mysql", "postgres":
	default:
		return fmt.Errorf("database.driver %q is not supported (mysql, postgres)", c.Database.Driver)
	}
	return nil
}

// IdentityEntries resolves every configured identity's secret from the
// environment. Unset secrets produce empty credentials, which the resolver
// drops.
func (c *Config) IdentityEntries(getenv func(string) string) []auth.Entry {
	entries := make([]auth.Entry, 0, len(c.Auth.Identities))
	for _, id := range c.Auth.Identities {
		entries = append(entries, auth.Entry{
			Credential: getenv(id.KeyEnv),
			Identity: identity.Identity{
				UserID:   id.UserID,
				ClientID: id.ClientID,
				Roles:    append([]string(nil), id.Roles...),
				TenantID: id.TenantID,
			},
		})
	}
	return entries
}

// ServiceKey is the credential the processor presents to the reflection service.
func (c *Config) ServiceKey(getenv func(string) string) string {
	return getenv(c.Reflection.ServiceKeyEnv)
}

// OpenAIKey is the generative backend credential, empty when not configured.
func (c *Config) OpenAIKey(getenv func(string) string) string {
	return getenv(c.AI.APIKeyEnv)
}

func (c *Config) ReflectionTimeout() time.Duration {
	return time.Duration(c.Reflection.TimeoutSeconds) * time.Second
}

// ReferenceTime returns the pinned fallback time. pinned is false when the
// fallback follows the wall clock.
func (c *Config) ReferenceTime() (t time.Time, pinned bool, err error) {
	if c.Reflection.ReferenceDate == "" || strings.EqualFold(c.Reflection.ReferenceDate, SystemReferenceDate) {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(time.DateOnly, c.Reflection.ReferenceDate)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reflection.referenceDate: %w", err)
	}
	return t, true, nil
}

// FallbackClock is the clock the deterministic reflection strategy compares
// dates against.
func (c *Config) FallbackClock() (application.Clock, error) {
	t, pinned, err := c.ReferenceTime()
	if err != nil {
		return nil, err
	}
	if !pinned {
		return application.SystemClock{}, nil
	}
	return application.FixedClock{T: t}, nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	mc := mysql.NewConfig()
	mc.User = c.Database.User
	mc.Passwd = c.Database.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Database.Host, strconv.Itoa(c.Database.Port))
	mc.DBName = c.Database.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// PostgresDSN builds a lib/pq connection string.
func (c *Config) PostgresDSN() string {
	ssl := c.Database.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		ssl,
	)
}
