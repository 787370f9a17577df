package conf

import (
	"os"
	"time"

	pkgconfig "adengine/pkg/config"
)

// Config 应用配置
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Provider      ProviderConfig      `mapstructure:"provider"`
	Inventory     InventoryConfig     `mapstructure:"inventory"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Targeting     TargetingConfig     `mapstructure:"targeting"`
	Experiment    ExperimentConfig    `mapstructure:"experiment"`
	PostHog       PostHogConfig       `mapstructure:"posthog"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	MetricsPort     int           `mapstructure:"metrics_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// ProviderConfig 信号提供商配置
type ProviderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// InventoryConfig 库存服务配置
type InventoryConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// TargetingConfig 定向引擎配置
type TargetingConfig struct {
	EnhancementTimeout    time.Duration `mapstructure:"enhancement_timeout"`
	FallbackEnabled       bool          `mapstructure:"fallback_enabled"`
	SlowFallbackThreshold time.Duration `mapstructure:"slow_fallback_threshold"`
	MaxSignalsPerRequest  int           `mapstructure:"max_signals_per_request"`
	MaxBudgetPerRequest   float64       `mapstructure:"max_budget_per_request"`
	MinSignalScore        float64       `mapstructure:"min_signal_score"`
	ActivationTTLSeconds  int           `mapstructure:"activation_ttl_seconds"`
	ActivationRetries     int           `mapstructure:"activation_retries"`
	CacheTTL              time.Duration `mapstructure:"cache_ttl"`
}

// ExperimentConfig 实验配置
type ExperimentConfig struct {
	Enabled               bool    `mapstructure:"enabled"`
	ID                    string  `mapstructure:"id"`
	Name                  string  `mapstructure:"name"`
	TreatmentPercentage   int     `mapstructure:"treatment_percentage"`
	SignificanceThreshold float64 `mapstructure:"significance_threshold"`
}

// PostHogConfig PostHog 配置
type PostHogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	Host    string `mapstructure:"host"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	OTELEndpoint   string `mapstructure:"otel_endpoint"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"`
	EnableTrace    bool   `mapstructure:"enable_trace"`
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	m := pkgconfig.NewManager()
	setDefaults(m)

	if configPath == "" {
		configPath = "configs/ad-engine.yaml"
	}
	if err := m.LoadConfig(configPath, "AD_ENGINE"); err != nil {
		return nil, err
	}

	var config Config
	if err := m.Unmarshal(&config); err != nil {
		return nil, err
	}

	// 从环境变量覆盖敏感配置
	if key := os.Getenv("PROVIDER_API_KEY"); key != "" {
		config.Provider.APIKey = key
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		config.Redis.Password = password
	}
	if key := os.Getenv("POSTHOG_API_KEY"); key != "" {
		config.PostHog.APIKey = key
	}
	if endpoint := os.Getenv("OTEL_ENDPOINT"); endpoint != "" {
		config.Observability.OTELEndpoint = endpoint
	}

	return &config, nil
}

// setDefaults 设置默认值
func setDefaults(m *pkgconfig.Manager) {
	m.SetDefault("server.http_port", 8080)
	m.SetDefault("server.metrics_port", 9090)
	m.SetDefault("server.shutdown_timeout", "10s")
	m.SetDefault("server.read_timeout", "10s")
	m.SetDefault("server.write_timeout", "10s")

	m.SetDefault("provider.timeout", "5s")
	m.SetDefault("inventory.timeout", "3s")

	m.SetDefault("targeting.enhancement_timeout", "200ms")
	m.SetDefault("targeting.fallback_enabled", true)
	m.SetDefault("targeting.slow_fallback_threshold", "50ms")
	m.SetDefault("targeting.max_signals_per_request", 5)
	m.SetDefault("targeting.max_budget_per_request", 5.0)
	m.SetDefault("targeting.min_signal_score", 0.5)
	m.SetDefault("targeting.activation_ttl_seconds", 300)
	m.SetDefault("targeting.activation_retries", 1)
	m.SetDefault("targeting.cache_ttl", "1m")

	m.SetDefault("experiment.treatment_percentage", 50)
	m.SetDefault("experiment.significance_threshold", 0.05)

	m.SetDefault("observability.service_name", "ad-engine")
	m.SetDefault("observability.service_version", "1.0.0")
	m.SetDefault("observability.environment", "development")
	m.SetDefault("observability.log_level", "info")
	m.SetDefault("observability.log_format", "json")
}
