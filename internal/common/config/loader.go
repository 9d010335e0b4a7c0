package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml over it
// and lets environment variables override individual keys.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up from the working directory looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string values, including
// strings nested in lists such as transports.tiers.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)
		if expanded, changed := expandValue(val); changed {
			v.Set(key, expanded)
		}
	}
}

func expandValue(val interface{}) (interface{}, bool) {
	switch typed := val.(type) {
	case string:
		if strings.Contains(typed, "${") || (strings.HasPrefix(typed, "$") && len(typed) > 1) {
			return os.ExpandEnv(typed), true
		}
		return typed, false
	case []interface{}:
		changed := false
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			var c bool
			out[i], c = expandValue(item)
			changed = changed || c
		}
		return out, changed
	case map[string]interface{}:
		changed := false
		out := make(map[string]interface{}, len(typed))
		for k, item := range typed {
			var c bool
			out[k], c = expandValue(item)
			changed = changed || c
		}
		return out, changed
	default:
		return val, false
	}
}

// overrideEmptyConfig fills secrets that deployments provide only through the environment.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Integrations.SMTP.Password == "" {
		if val := os.Getenv("SMTP_PASSWORD"); val != "" {
			cfg.Integrations.SMTP.Password = val
		}
	}
	if cfg.Integrations.AWS.Region == "" {
		if val := os.Getenv("AWS_REGION"); val != "" {
			cfg.Integrations.AWS.Region = val
		}
	}
	for i := range cfg.Transports.Tiers {
		tier := &cfg.Transports.Tiers[i]
		if tier.APIKey == "" {
			envKey := "RELAY_" + strings.ToUpper(strings.ReplaceAll(tier.Name, "-", "_")) + "_API_KEY"
			if val := os.Getenv(envKey); val != "" {
				tier.APIKey = val
			}
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "notification-dispatch"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "require"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}

	n := &cfg.Notifications
	if n.PlatformName == "" {
		n.PlatformName = "Platform"
	}
	if n.PlatformNameAr == "" {
		n.PlatformNameAr = n.PlatformName
	}
	if n.DefaultLanguage == "" {
		n.DefaultLanguage = "ar"
	}
	if len(n.SupportedLanguages) == 0 {
		n.SupportedLanguages = []string{"ar", "en"}
	}
	if n.Timezone == "" {
		n.Timezone = "UTC"
	}
	if len(n.TimestampVariables) == 0 {
		n.TimestampVariables = []string{"timestamp"}
	}
	if n.BatchConcurrency == 0 {
		n.BatchConcurrency = 8
	}
	if n.DeliveryLog.Table == "" {
		n.DeliveryLog.Table = "email_logs"
	}
	if n.DeliveryLog.ElasticsearchIndex == "" {
		n.DeliveryLog.ElasticsearchIndex = "email-delivery-log"
	}
	if n.StoreTimeout == 0 {
		n.StoreTimeout = 5000
	}
	if n.DeliveryLog.WriteTimeout == 0 {
		n.DeliveryLog.WriteTimeout = 5000
	}
	if cfg.Database.Elasticsearch.Timeout == 0 {
		cfg.Database.Elasticsearch.Timeout = 3000
	}

	if cfg.Transports.DefaultTimeout == 0 {
		cfg.Transports.DefaultTimeout = 3000
	}
	for i := range cfg.Transports.Tiers {
		tier := &cfg.Transports.Tiers[i]
		if tier.Name == "" {
			tier.Name = fmt.Sprintf("tier-%d", i+1)
		}
		if tier.Timeout == 0 {
			tier.Timeout = cfg.Transports.DefaultTimeout
		}
		b := &tier.Breaker
		if b.MaxRequests == 0 {
			b.MaxRequests = 3
		}
		if b.Interval == 0 {
			b.Interval = 60000
		}
		if b.Timeout == 0 {
			b.Timeout = 60000
		}
		if b.MinRequests == 0 {
			b.MinRequests = 3
		}
		if b.FailureRatio == 0 {
			b.FailureRatio = 0.6
		}
	}

	if cfg.Integrations.SMTP.Port == 0 {
		cfg.Integrations.SMTP.Port = 587
	}
	if cfg.Integrations.SMTP.Timeout == 0 {
		cfg.Integrations.SMTP.Timeout = 10000
	}

	if cfg.RabbitMQ.Exchange == "" {
		cfg.RabbitMQ.Exchange = "notifications"
	}
	if cfg.RabbitMQ.Queue == "" {
		cfg.RabbitMQ.Queue = "notifications.email"
	}
	if cfg.RabbitMQ.FailedQueue == "" {
		cfg.RabbitMQ.FailedQueue = "notifications.email.failed"
	}
	if cfg.RabbitMQ.Prefetch == 0 {
		cfg.RabbitMQ.Prefetch = 10
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = cfg.App.Name
	}
	if cfg.Observability.SampleRatio == 0 {
		cfg.Observability.SampleRatio = 1.0
	}

	if cfg.Server.HealthPort == 0 {
		cfg.Server.HealthPort = 8080
	}
	if cfg.Server.RelayPort == 0 {
		cfg.Server.RelayPort = 3001
	}
}

var validKinds = map[string]bool{
	TransportKindDynamicRelay: true,
	TransportKindLegacyRelay:  true,
	TransportKindSES:          true,
	TransportKindSMTP:         true,
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Elasticsearch.Enabled && len(cfg.Database.Elasticsearch.GetAddresses()) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses or url is required when elasticsearch is enabled")
	}
	if cfg.Database.Redis.Enabled && cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required when redis is enabled")
	}
	if cfg.RabbitMQ.Enabled && cfg.RabbitMQ.URL == "" {
		return fmt.Errorf("rabbitmq.url is required when rabbitmq is enabled")
	}

	if len(cfg.Transports.Tiers) == 0 {
		return fmt.Errorf("transports.tiers must list at least one tier")
	}
	for i, tier := range cfg.Transports.Tiers {
		if !validKinds[tier.Kind] {
			return fmt.Errorf("transports.tiers[%d].kind %q is not supported", i, tier.Kind)
		}
		if (tier.Kind == TransportKindDynamicRelay || tier.Kind == TransportKindLegacyRelay) && tier.URL == "" {
			return fmt.Errorf("transports.tiers[%d].url is required for %s", i, tier.Kind)
		}
		if tier.Timeout <= 0 {
			return fmt.Errorf("transports.tiers[%d].timeout must be positive", i)
		}
		if tier.Kind == TransportKindSMTP && cfg.Integrations.SMTP.Host == "" {
			return fmt.Errorf("integrations.smtp.host is required for smtp tier %q", tier.Name)
		}
	}

	if _, err := time.LoadLocation(cfg.Notifications.Timezone); err != nil {
		return fmt.Errorf("notifications.timezone: %w", err)
	}

	return nil
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetWorkerConfig retrieves worker-specific configuration with fallback to defaults
func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

// IsWorkerEnabled checks if a specific worker is enabled
func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
