package server

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PlatformConfig is the server configuration. Values come from the
// yaml file first; a few deployment-specific fields can be overridden
// through the environment.
type PlatformConfig struct {
	HTTPAddr   string `yaml:"http_addr"`
	BaseDomain string `yaml:"base_domain"`

	DB struct {
		PlatformDSN       string `yaml:"platform_dsn"`
		TenantDSNTemplate string `yaml:"tenant_dsn_template"`
		MaxPerTenant      int64  `yaml:"max_per_tenant"`
		AcquireTimeout    string `yaml:"acquire_timeout"`
		IdleAfter         string `yaml:"idle_after"`
	} `yaml:"db"`

	Cache struct {
		TTL string `yaml:"ttl"`
	} `yaml:"cache"`

	Executor struct {
		MaxRetries  int    `yaml:"max_retries"`
		TaskTimeout string `yaml:"task_timeout"`
		BackoffBase string `yaml:"backoff_base"`
		BackoffCap  string `yaml:"backoff_cap"`
	} `yaml:"executor"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	AllowlistPath   string `yaml:"allowlist_path"`
	AuthzModelPath  string `yaml:"authz_model_path"`
	AuthzPolicyPath string `yaml:"authz_policy_path"`
}

func LoadConfig(path string) (PlatformConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return PlatformConfig{}, err
	}
	var cfg PlatformConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return PlatformConfig{}, err
	}
	cfg.applyEnv()
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.BaseDomain == "" {
		return PlatformConfig{}, errors.New("config: base_domain is required")
	}
	return cfg, nil
}

func (c *PlatformConfig) applyEnv() {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("BASE_DOMAIN"); v != "" {
		c.BaseDomain = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		c.DB.PlatformDSN = v
	}
	if v := os.Getenv("TENANT_DB_DSN_TEMPLATE"); v != "" {
		c.DB.TenantDSNTemplate = v
	}
	if v := os.Getenv("ALLOWLIST_PATH"); v != "" {
		c.AllowlistPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// TenantDSN expands the tenant DSN template for one tenant.
func (c PlatformConfig) TenantDSN(tenantID string) string {
	return strings.ReplaceAll(c.DB.TenantDSNTemplate, "{tenant_id}", tenantID)
}

func (c PlatformConfig) CacheTTL() time.Duration     { return durationOr(c.Cache.TTL, 5*time.Minute) }
func (c PlatformConfig) AcquireTimeout() time.Duration {
	return durationOr(c.DB.AcquireTimeout, 5*time.Second)
}
func (c PlatformConfig) IdleAfter() time.Duration { return durationOr(c.DB.IdleAfter, 10*time.Minute) }
func (c PlatformConfig) TaskTimeout() time.Duration {
	return durationOr(c.Executor.TaskTimeout, 300*time.Second)
}
func (c PlatformConfig) BackoffBase() time.Duration {
	return durationOr(c.Executor.BackoffBase, time.Second)
}
func (c PlatformConfig) BackoffCap() time.Duration {
	return durationOr(c.Executor.BackoffCap, 30*time.Second)
}

func durationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// DefaultConfigPath walks up from the working directory looking for
// config/config.yaml, so binaries run from any directory in the repo.
func DefaultConfigPath() (string, error) {
	if p := os.Getenv("PLATFORM_CONFIG_PATH"); p != "" {
		return p, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, "config", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("server: config.yaml not found")
}
