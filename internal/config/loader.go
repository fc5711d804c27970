package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "modforge.yaml"

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
	setString(&cfg.Server.Port, "MODFORGE_PORT")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "MODFORGE_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "MODFORGE_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "MODFORGE_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "MODFORGE_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "MODFORGE_PG_HEALTH_CHECK")
	setInt(&cfg.Postgres.RetentionDays, "MODFORGE_PG_RETENTION_DAYS")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.KVBucket, "MODFORGE_KV_BUCKET")
	setString(&cfg.Reddit.Token, "MODFORGE_REDDIT_TOKEN")
	setString(&cfg.Reddit.UserAgent, "MODFORGE_REDDIT_USER_AGENT")

	setString(&cfg.Community.Subreddit, "MODFORGE_SUBREDDIT")
	setString(&cfg.Community.AppUser, "MODFORGE_APP_USER")
	setDuration(&cfg.Community.EventDeadline, "MODFORGE_EVENT_DEADLINE")

	setBool(&cfg.Layer1.Enabled, "MODFORGE_L1_ENABLED")
	setInt(&cfg.Layer1.AccountAgeDays, "MODFORGE_L1_ACCOUNT_AGE_DAYS")
	setInt(&cfg.Layer1.KarmaThreshold, "MODFORGE_L1_KARMA_THRESHOLD")
	setString(&cfg.Layer1.Action, "MODFORGE_L1_ACTION")
	setString(&cfg.Layer1.Message, "MODFORGE_L1_MESSAGE")

	setBool(&cfg.Classifier.Enabled, "MODFORGE_L2_ENABLED")
	setString(&cfg.Classifier.APIKey, "MODFORGE_L2_API_KEY")
	setFloat64(&cfg.Classifier.Threshold, "MODFORGE_L2_THRESHOLD")
	setString(&cfg.Classifier.Action, "MODFORGE_L2_ACTION")
	setDuration(&cfg.Classifier.Timeout, "MODFORGE_L2_TIMEOUT")

	setBool(&cfg.RuleEngine.Enabled, "MODFORGE_L3_ENABLED")
	setString(&cfg.RuleEngine.RulesJSON, "MODFORGE_RULES_JSON")

	setString(&cfg.LLM.Primary.Kind, "MODFORGE_LLM_PRIMARY_KIND")
	setString(&cfg.LLM.Primary.APIKey, "MODFORGE_LLM_PRIMARY_KEY")
	setString(&cfg.LLM.Primary.BaseURL, "MODFORGE_LLM_PRIMARY_BASE_URL")
	setString(&cfg.LLM.Primary.Model, "MODFORGE_LLM_PRIMARY_MODEL")
	setString(&cfg.LLM.Fallback.Kind, "MODFORGE_LLM_FALLBACK_KIND")
	setString(&cfg.LLM.Fallback.APIKey, "MODFORGE_LLM_FALLBACK_KEY")
	setString(&cfg.LLM.Fallback.BaseURL, "MODFORGE_LLM_FALLBACK_BASE_URL")
	setString(&cfg.LLM.Fallback.Model, "MODFORGE_LLM_FALLBACK_MODEL")
	setDuration(&cfg.LLM.Timeout, "MODFORGE_LLM_TIMEOUT")
	setInt(&cfg.LLM.MaxTokens, "MODFORGE_LLM_MAX_TOKENS")

	setFloat64(&cfg.Budget.DailyLimitUSD, "MODFORGE_BUDGET_DAILY_USD")
	setFloat64(&cfg.Budget.MonthlyLimitUSD, "MODFORGE_BUDGET_MONTHLY_USD")
	setBool(&cfg.Budget.AlertsEnabled, "MODFORGE_BUDGET_ALERTS")

	setInt(&cfg.Trust.MinSubmissions, "MODFORGE_TRUST_MIN_SUBMISSIONS")
	setFloat64(&cfg.Trust.MinApprovalRate, "MODFORGE_TRUST_MIN_APPROVAL_RATE")
	setFloat64(&cfg.Trust.DecayPerMonth, "MODFORGE_TRUST_DECAY_PER_MONTH")

	setInt(&cfg.Cache.SettingsVersion, "MODFORGE_SETTINGS_VERSION")
	setInt64(&cfg.Cache.L1MaxSizeMB, "MODFORGE_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "MODFORGE_CACHE_L1_TTL")
	setDuration(&cfg.Cache.ProfileTTL, "MODFORGE_CACHE_PROFILE_TTL")
	setDuration(&cfg.Cache.HistoryTTL, "MODFORGE_CACHE_HISTORY_TTL")
	setDuration(&cfg.Cache.AnswerBaseTTL, "MODFORGE_CACHE_ANSWER_BASE_TTL")
	setDuration(&cfg.Cache.AnswerMaxTTL, "MODFORGE_CACHE_ANSWER_MAX_TTL")

	setBool(&cfg.DryRun.Enabled, "MODFORGE_DRY_RUN")
	setBool(&cfg.DryRun.LogDetails, "MODFORGE_DRY_RUN_DETAILS")

	setDuration(&cfg.Rate.Window, "MODFORGE_RATE_WINDOW")
	setInt(&cfg.Rate.MaxRequests, "MODFORGE_RATE_MAX_REQUESTS")
	setInt(&cfg.Rate.MaxRetries, "MODFORGE_RATE_MAX_RETRIES")

	setInt(&cfg.Breaker.MaxFailures, "MODFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "MODFORGE_BREAKER_TIMEOUT")

	setString(&cfg.Logging.Level, "MODFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "MODFORGE_LOG_SERVICE")

	setBool(&cfg.Telemetry.Enabled, "MODFORGE_OTEL_ENABLED")
	setString(&cfg.Telemetry.Endpoint, "MODFORGE_OTEL_ENDPOINT")
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
	if cfg.Community.Subreddit == "" {
		return errors.New("community.subreddit is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Cache.SettingsVersion < 1 {
		return errors.New("cache.settings_version must be >= 1")
	}
	if cfg.Classifier.Threshold < 0 || cfg.Classifier.Threshold > 1 {
		return errors.New("classifier.threshold must be in [0,1]")
	}
	if cfg.Trust.MinSubmissions < 1 {
		return errors.New("trust.min_submissions must be >= 1")
	}
	if cfg.Rate.MaxRequests < 1 {
		return errors.New("rate.max_requests must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
