package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "cloudlaunch.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CLOUDLAUNCH_PORT")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CLOUDLAUNCH_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CLOUDLAUNCH_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CLOUDLAUNCH_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CLOUDLAUNCH_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "CLOUDLAUNCH_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "CLOUDLAUNCH_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CLOUDLAUNCH_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CLOUDLAUNCH_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "CLOUDLAUNCH_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CLOUDLAUNCH_BREAKER_TIMEOUT")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "CLOUDLAUNCH_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "CLOUDLAUNCH_CACHE_L1_TTL")
	setString(&cfg.Cache.L2Bucket, "CLOUDLAUNCH_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "CLOUDLAUNCH_CACHE_L2_TTL")

	// OTEL
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "CLOUDLAUNCH_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRatio, "CLOUDLAUNCH_OTEL_SAMPLE_RATIO")

	// Cloud
	setString(&cfg.Cloud.DefaultProvider, "CLOUDLAUNCH_DEFAULT_PROVIDER")
	setStrings(&cfg.Cloud.GCPRegions, "CLOUDLAUNCH_GCP_REGIONS")
	setString(&cfg.Cloud.SecretName, "CLOUDLAUNCH_SECRET_NAME")
	setString(&cfg.Cloud.SecretBackend, "CLOUDLAUNCH_SECRET_BACKEND")

	// Azure
	setString(&cfg.Azure.TenantID, "AZURE_TENANT_ID")
	setString(&cfg.Azure.ClientID, "AZURE_CLIENT_ID")
	setString(&cfg.Azure.ClientSecret, "AZURE_CLIENT_SECRET")
	setString(&cfg.Azure.Subscription, "AZURE_SUBSCRIPTION_ID")
	setDuration(&cfg.Azure.ProbeTimeout, "CLOUDLAUNCH_AZURE_PROBE_TIMEOUT")

	// Kubernetes
	setString(&cfg.Kubernetes.BaseURL, "CLOUDLAUNCH_K8S_BASE_URL")
	setString(&cfg.Kubernetes.Namespace, "CLOUDLAUNCH_K8S_NAMESPACE")
	setString(&cfg.Kubernetes.Token, "CLOUDLAUNCH_K8S_TOKEN")
	setBool(&cfg.Kubernetes.Insecure, "CLOUDLAUNCH_K8S_INSECURE")
	setString(&cfg.Kubernetes.ServiceAccount, "CLOUDLAUNCH_K8S_SERVICE_ACCOUNT")

	// Crypto
	setString(&cfg.Crypto.KeyDir, "CLOUDLAUNCH_CREDENTIALS_KEY_DIR")

	// Auth
	setString(&cfg.Auth.Issuer, "CLOUDLAUNCH_OIDC_ISSUER")
	setString(&cfg.Auth.ClientID, "CLOUDLAUNCH_OIDC_CLIENT_ID")
	setString(&cfg.Auth.AdminRole, "CLOUDLAUNCH_ADMIN_ROLE")

	// Launch
	setString(&cfg.Launch.CapabilitiesFile, "CLOUDLAUNCH_CAPABILITIES_FILE")
	setStrings(&cfg.Launch.AllowedInstanceTypes, "CLOUDLAUNCH_ALLOWED_INSTANCE_TYPES")
	setStrings(&cfg.Launch.AllowedPriceTypes, "CLOUDLAUNCH_ALLOWED_PRICE_TYPES")
	setInt(&cfg.Launch.DefaultDiskGB, "CLOUDLAUNCH_DEFAULT_DISK_GB")

	// Shift
	setBool(&cfg.Shift.Enabled, "CLOUDLAUNCH_SHIFT_ENABLED")
	setFloat64(&cfg.Shift.MaxPerSecond, "CLOUDLAUNCH_SHIFT_MAX_PER_SECOND")
	setInt(&cfg.Shift.Burst, "CLOUDLAUNCH_SHIFT_BURST")

	setString(&cfg.Crypto.KeyEnv, "CLOUDLAUNCH_CRYPTO_KEY_ENV")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	switch strings.ToUpper(cfg.Cloud.DefaultProvider) {
	case "AWS", "AZURE", "GCP", "LOCAL":
	default:
		return fmt.Errorf("cloud.default_provider %q is not a known provider", cfg.Cloud.DefaultProvider)
	}
	if cfg.Cloud.SecretName == "" {
		return errors.New("cloud.secret_name is required")
	}
	if cfg.Cloud.SecretBackend != "kubernetes" && cfg.Cloud.SecretBackend != "natskv" {
		return fmt.Errorf("cloud.secret_backend must be kubernetes or natskv, got %q", cfg.Cloud.SecretBackend)
	}
	for _, pt := range cfg.Launch.AllowedPriceTypes {
		if pt != "spot" && pt != "on_demand" {
			return fmt.Errorf("launch.allowed_price_types: unknown price type %q", pt)
		}
	}
	if cfg.Launch.DefaultDiskGB < 0 {
		return errors.New("launch.default_disk_gb must be >= 0")
	}
	if cfg.Shift.MaxPerSecond <= 0 {
		return errors.New("shift.max_per_second must be > 0")
	}
	if cfg.Shift.Burst < 1 {
		return errors.New("shift.burst must be >= 1")
	}
	if cfg.Crypto.KeyEnv == "" {
		return errors.New("crypto.key_env is required")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setStrings splits a comma-separated env value.
func setStrings(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
