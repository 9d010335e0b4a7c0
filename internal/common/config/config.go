package config

import "fmt"

// Config is the single injected configuration object for every process in
// the repository.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Integrations  IntegrationConfig       `mapstructure:"integrations"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Transports    TransportsConfig        `mapstructure:"transports"`
	RabbitMQ      RabbitMQConfig          `mapstructure:"rabbitmq"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
	Server        ServerConfig            `mapstructure:"server"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"`
	// Timeout bounds each index request, in milliseconds.
	Timeout int `mapstructure:"timeout"`
}

// GetAddresses returns Addresses, or URL as a single address.
func (e ElasticsearchConfig) GetAddresses() []string {
	if len(e.Addresses) > 0 {
		return e.Addresses
	}
	if e.URL != "" {
		return []string{e.URL}
	}
	return nil
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// IntegrationConfig holds settings for AWS and direct SMTP.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled          bool   `mapstructure:"enabled"`
			FromEmail        string `mapstructure:"from_email"`
			ConfigurationSet string `mapstructure:"configuration_set"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled       bool   `mapstructure:"enabled"`
			AlertTopicARN string `mapstructure:"alert_topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`

	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig is shared by the SMTP transport and the relay server.
type SMTPConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	UseTLS      bool   `mapstructure:"use_tls"`
	DefaultFrom string `mapstructure:"default_from"`
	Timeout     int    `mapstructure:"timeout"` // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// NotificationConfig drives template selection, sender identity and rendering.
type NotificationConfig struct {
	PlatformName       string   `mapstructure:"platform_name"`
	PlatformNameAr     string   `mapstructure:"platform_name_ar"`
	DefaultFromAddress string   `mapstructure:"default_from_address"`
	DefaultReplyTo     string   `mapstructure:"default_reply_to"`
	DefaultLanguage    string   `mapstructure:"default_language"`
	SupportedLanguages []string `mapstructure:"supported_languages"`
	Timezone           string   `mapstructure:"timezone"`
	TimestampVariables []string `mapstructure:"timestamp_variables"`
	BatchConcurrency   int      `mapstructure:"batch_concurrency"`
	TemplateCacheTTL   int      `mapstructure:"template_cache_ttl"` // milliseconds, 0 disables
	StoreTimeout       int      `mapstructure:"store_timeout"`      // milliseconds
	LanguageFallback   bool     `mapstructure:"language_fallback"`

	// TypeTemplates maps a notification type to its template family name.
	TypeTemplates map[string]string `mapstructure:"type_templates"`

	// Senders is keyed by notification type, then language.
	Senders map[string]map[string]SenderEntry `mapstructure:"senders"`

	DeliveryLog DeliveryLogConfig `mapstructure:"delivery_log"`
}

type SenderEntry struct {
	DisplayName string `mapstructure:"display_name"`
	Address     string `mapstructure:"address"`
	ReplyTo     string `mapstructure:"reply_to"`
}

type DeliveryLogConfig struct {
	Table              string `mapstructure:"table"`
	ElasticsearchIndex string `mapstructure:"elasticsearch_index"`
	MirrorToSearch     bool   `mapstructure:"mirror_to_search"`
	AlertOnFailure     bool   `mapstructure:"alert_on_failure"`
	WriteTimeout       int    `mapstructure:"write_timeout"` // milliseconds
}

// TransportsConfig lists the fallback chain in the order tiers are attempted.
type TransportsConfig struct {
	DefaultTimeout int          `mapstructure:"default_timeout"` // milliseconds
	Tiers          []TierConfig `mapstructure:"tiers"`
}

// Transport kinds.
const (
	TransportKindDynamicRelay = "dynamic-relay"
	TransportKindLegacyRelay  = "legacy-relay"
	TransportKindSES          = "ses"
	TransportKindSMTP         = "smtp"
)

type TierConfig struct {
	Name       string        `mapstructure:"name"`
	Kind       string        `mapstructure:"kind"`
	URL        string        `mapstructure:"url"`
	HealthURL  string        `mapstructure:"health_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    int           `mapstructure:"timeout"` // milliseconds
	MaxRetries int           `mapstructure:"max_retries"`
	Breaker    BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	MaxRequests  uint32  `mapstructure:"max_requests"`
	Interval     int     `mapstructure:"interval"` // milliseconds
	Timeout      int     `mapstructure:"timeout"`  // milliseconds
	MinRequests  uint32  `mapstructure:"min_requests"`
	FailureRatio float64 `mapstructure:"failure_ratio"`
}

type RabbitMQConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	URL         string `mapstructure:"url"`
	Exchange    string `mapstructure:"exchange"`
	Queue       string `mapstructure:"queue"`
	FailedQueue string `mapstructure:"failed_queue"`
	Prefetch    int    `mapstructure:"prefetch"`
}

type ObservabilityConfig struct {
	ServiceName    string  `mapstructure:"service_name"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

type ServerConfig struct {
	HealthPort  int    `mapstructure:"health_port"`
	RelayPort   int    `mapstructure:"relay_port"`
	RelayAPIKey string `mapstructure:"relay_api_key"`
}
