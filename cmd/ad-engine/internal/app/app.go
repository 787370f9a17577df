package app

import (
	"time"

	kratoslog "github.com/go-kratos/kratos/v2/log"
	"go.uber.org/zap"

	"adengine/cmd/ad-engine/internal/application"
	"adengine/cmd/ad-engine/internal/conf"
	"adengine/cmd/ad-engine/internal/data"
	"adengine/cmd/ad-engine/internal/domain"
	"adengine/cmd/ad-engine/internal/infrastructure"
	"adengine/cmd/ad-engine/internal/server"
	"adengine/pkg/cache"
	"adengine/pkg/events"
	"adengine/pkg/health"
)

// App 应用程序
type App struct {
	Logger     *zap.Logger
	HTTPServer *server.HTTPServer
	Targeting  *application.EnhancedTargeting
	PostHog    *application.PostHogTracker
	Redis      *cache.RedisCache
	Publisher  events.Publisher
}

// NewApp 手动装配应用依赖
func NewApp(config *conf.Config, logger *zap.Logger) (*App, error) {
	klogger := kratoslog.With(kratoslog.NewStdLogger(zapWriter{logger}),
		"service", config.Observability.ServiceName,
	)

	// 可选组件：Redis 缓存
	var redisCache *cache.RedisCache
	var signalCache domain.SignalCache
	if config.Redis.Enabled {
		redisCache = cache.NewRedisCache(config.Redis.Addr, config.Redis.Password, config.Redis.DB, &cache.CacheOptions{
			KeyPrefix:  "ad-engine",
			DefaultTTL: config.Targeting.CacheTTL,
		})
		signalCache = data.NewRedisSignalCache(redisCache, klogger)
	}

	// 可选组件：Kafka 决策事件
	var publisher events.Publisher
	if config.Kafka.Enabled {
		pubConfig := events.DefaultPublisherConfig()
		if len(config.Kafka.Brokers) > 0 {
			pubConfig.Brokers = config.Kafka.Brokers
		}
		if config.Kafka.Topic != "" {
			pubConfig.Topic = config.Kafka.Topic
		}
		kafkaPublisher, err := events.NewKafkaPublisher(pubConfig)
		if err != nil {
			return nil, err
		}
		publisher = kafkaPublisher
	}

	// 可选组件：PostHog 上报
	posthog, err := application.NewPostHogTracker(application.PostHogConfig{
		APIKey:  config.PostHog.APIKey,
		Host:    config.PostHog.Host,
		Enabled: config.PostHog.Enabled,
	}, klogger)
	if err != nil {
		return nil, err
	}

	// 可选组件：实验框架
	var experiment *application.ExperimentFramework
	if config.Experiment.Enabled {
		experiment = application.NewExperimentFramework(&domain.ExperimentConfig{
			ID:                    config.Experiment.ID,
			Name:                  config.Experiment.Name,
			Active:                true,
			TreatmentPercentage:   config.Experiment.TreatmentPercentage,
			SignificanceThreshold: config.Experiment.SignificanceThreshold,
			StartDate:             time.Now(),
		}, posthog, klogger)
	}

	// 外部依赖客户端
	provider := infrastructure.NewSignalProviderClient(&infrastructure.SignalProviderConfig{
		BaseURL: config.Provider.BaseURL,
		APIKey:  config.Provider.APIKey,
		Timeout: config.Provider.Timeout,
	})
	inventory := infrastructure.NewInventoryClient(&infrastructure.InventoryConfig{
		BaseURL: config.Inventory.BaseURL,
		Timeout: config.Inventory.Timeout,
	})

	// 应用层
	analyzer := application.NewContextAnalyzer(nil)
	signalScorer := application.NewSignalScorer(nil, klogger)
	relevanceScorer := application.NewRelevanceScorer(klogger)

	targeting := application.NewEnhancedTargeting(
		&application.TargetingConfig{
			EnhancementTimeout:    config.Targeting.EnhancementTimeout,
			FallbackEnabled:       config.Targeting.FallbackEnabled,
			SlowFallbackThreshold: config.Targeting.SlowFallbackThreshold,
			MaxSignalsPerRequest:  config.Targeting.MaxSignalsPerRequest,
			MaxBudgetPerRequest:   config.Targeting.MaxBudgetPerRequest,
			MinSignalScore:        config.Targeting.MinSignalScore,
			ActivationTTLSeconds:  config.Targeting.ActivationTTLSeconds,
			ActivationRetries:     config.Targeting.ActivationRetries,
			CacheTTL:              config.Targeting.CacheTTL,
		},
		analyzer,
		signalScorer,
		relevanceScorer,
		experiment,
		provider,
		inventory,
		signalCache,
		publisher,
		klogger,
	)

	// 健康检查
	checker := health.NewHealthChecker()
	if redisCache != nil {
		checker.Register(health.NewPingChecker("redis", redisCache.Ping))
	}

	httpServer := server.NewHTTPServer(targeting, relevanceScorer, checker, logger)

	return &App{
		Logger:     logger,
		HTTPServer: httpServer,
		Targeting:  targeting,
		PostHog:    posthog,
		Redis:      redisCache,
		Publisher:  publisher,
	}, nil
}

// Cleanup 清理资源
func (a *App) Cleanup() {
	a.Logger.Info("Cleaning up resources...")

	if err := a.Targeting.Destroy(); err != nil {
		a.Logger.Error("Failed to destroy targeting engine", zap.Error(err))
	}
	if err := a.PostHog.Close(); err != nil {
		a.Logger.Error("Failed to close PostHog client", zap.Error(err))
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.Error("Failed to close event publisher", zap.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("Failed to close Redis client", zap.Error(err))
		}
	}
}

// zapWriter 把 kratos 标准日志写入 zap
type zapWriter struct {
	logger *zap.Logger
}

func (w zapWriter) Write(p []byte) (int, error) {
	w.logger.Info(string(p))
	return len(p), nil
}
