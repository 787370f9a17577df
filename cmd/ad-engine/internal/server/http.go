package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	kratoserrors "github.com/go-kratos/kratos/v2/errors"

	"adengine/cmd/ad-engine/internal/application"
	"adengine/cmd/ad-engine/internal/domain"
	pkgerrors "adengine/pkg/errors"
	"adengine/pkg/health"
	"adengine/pkg/monitoring"
)

// Logger 日志接口
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// HTTPServer HTTP 服务器
type HTTPServer struct {
	engine    *gin.Engine
	targeting *application.EnhancedTargeting
	relevance *application.RelevanceScorer
	checker   *health.HealthChecker
	logger    Logger
}

// NewHTTPServer 创建 HTTP 服务器
func NewHTTPServer(targeting *application.EnhancedTargeting, relevance *application.RelevanceScorer, checker *health.HealthChecker, logger Logger) *HTTPServer {
	// 设置 Gin 模式
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()

	s := &HTTPServer{
		engine:    engine,
		targeting: targeting,
		relevance: relevance,
		checker:   checker,
		logger:    logger,
	}

	// 注册中间件
	s.registerMiddlewares()

	// 注册路由
	s.registerRoutes()

	return s
}

// registerMiddlewares 注册中间件
func (s *HTTPServer) registerMiddlewares() {
	// Recovery 中间件
	s.engine.Use(gin.Recovery())

	// 请求日志中间件
	s.engine.Use(s.requestLogger())

	// 指标中间件
	s.engine.Use(s.metricsMiddleware())

	// CORS 中间件
	s.engine.Use(s.corsMiddleware())
}

// requestLogger 请求日志中间件
func (s *HTTPServer) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// metricsMiddleware 指标中间件
func (s *HTTPServer) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		monitoring.RequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status()),
		).Inc()
		monitoring.RequestDuration.WithLabelValues(
			c.Request.Method, path,
		).Observe(time.Since(start).Seconds())
	}
}

// corsMiddleware CORS 中间件
func (s *HTTPServer) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// registerRoutes 注册路由
func (s *HTTPServer) registerRoutes() {
	api := s.engine.Group("/api/v1")

	// 广告决策接口
	ads := api.Group("/ads")
	{
		ads.POST("/select", s.selectAds)
		ads.POST("/track", s.trackPerformance)
	}

	// 定向条件接口
	targeting := api.Group("/targeting")
	{
		targeting.POST("/validate", s.validateTargeting)
		targeting.POST("/optimize", s.optimizeTargeting)
	}

	// 实验接口
	experiment := api.Group("/experiment")
	{
		experiment.GET("/results", s.getExperimentResults)
		experiment.POST("/reset", s.resetExperiment)
	}

	// 运行统计
	api.GET("/stats", s.getStats)

	// 健康检查
	s.engine.GET("/health", s.healthCheck)
	s.engine.GET("/ready", s.readinessCheck)
}

// selectAdsRequest 广告选择请求
type selectAdsRequest struct {
	Placement *domain.Placement           `json:"placement" binding:"required"`
	Context   *domain.ConversationContext `json:"context" binding:"required"`
	Profile   *domain.UserProfile         `json:"profile,omitempty"`
	Criteria  *domain.TargetingCriteria   `json:"criteria,omitempty"`
}

// selectAds 为一次会话选择广告
func (s *HTTPServer) selectAds(c *gin.Context) {
	var req selectAdsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	ads, err := s.targeting.SelectAds(c.Request.Context(), req.Placement, req.Context, req.Profile, req.Criteria)
	if err != nil {
		s.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ads":   ads,
		"count": len(ads),
	})
}

// trackRequest 投放结果上报请求
type trackRequest struct {
	Identity string               `json:"identity" binding:"required"`
	Delta    *domain.MetricsDelta `json:"delta" binding:"required"`
}

// trackPerformance 上报投放结果
func (s *HTTPServer) trackPerformance(c *gin.Context) {
	var req trackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	s.targeting.TrackAdPerformance(req.Identity, req.Delta)
	c.JSON(http.StatusOK, gin.H{"tracked": true})
}

// validateTargeting 校验定向条件
func (s *HTTPServer) validateTargeting(c *gin.Context) {
	var criteria domain.TargetingCriteria
	if err := c.ShouldBindJSON(&criteria); err != nil {
		s.respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, s.relevance.ValidateTargeting(&criteria))
}

// optimizeRequest 权重优化请求
type optimizeRequest struct {
	Performance *domain.PerformanceSnapshot `json:"performance" binding:"required"`
}

// optimizeTargeting 按历史表现给出权重优化建议
func (s *HTTPServer) optimizeTargeting(c *gin.Context) {
	var req optimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, s.relevance.OptimizeTargeting(req.Performance))
}

// getExperimentResults 获取实验结果
func (s *HTTPServer) getExperimentResults(c *gin.Context) {
	results := s.targeting.GetExperimentResults()
	if results == nil {
		s.respondError(c, http.StatusNotFound, domain.ErrNoExperiment.Error())
		return
	}
	c.JSON(http.StatusOK, results)
}

// resetExperiment 重置实验状态
func (s *HTTPServer) resetExperiment(c *gin.Context) {
	if err := s.targeting.ResetExperiment(); err != nil {
		s.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

// getStats 获取运行统计
func (s *HTTPServer) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.targeting.GetStats())
}

// Engine 返回 Gin 引擎
func (s *HTTPServer) Engine() *gin.Engine {
	return s.engine
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    int    `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// respondError 响应错误
func (s *HTTPServer) respondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, ErrorResponse{
		Code:    statusCode,
		Message: message,
	})
}

// respondKratosError 以统一错误模型响应
func (s *HTTPServer) respondKratosError(c *gin.Context, e *kratoserrors.Error) {
	c.JSON(int(e.Code), ErrorResponse{
		Code:    int(e.Code),
		Reason:  e.Reason,
		Message: e.Message,
	})
}

// handleServiceError 处理服务层错误
func (s *HTTPServer) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidPlacement):
		s.respondKratosError(c, pkgerrors.NewBadRequest("INVALID_PLACEMENT", err.Error()))
	case errors.Is(err, domain.ErrNoExperiment):
		s.respondKratosError(c, pkgerrors.NewNotFound("NO_EXPERIMENT", err.Error()))
	case errors.Is(err, domain.ErrEnhancementTimeout):
		s.respondKratosError(c, pkgerrors.ErrSelectionTimeout)
	case errors.Is(err, domain.ErrProviderUnavailable), errors.Is(err, domain.ErrInventoryUnavailable):
		s.respondKratosError(c, pkgerrors.NewServiceUnavailable("UPSTREAM_UNAVAILABLE", err.Error()))
	default:
		s.logger.Error("Service error", zap.Error(err))
		s.respondKratosError(c, pkgerrors.ErrInternalServerError)
	}
}

// healthCheck 健康检查
func (s *HTTPServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "ad-engine",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// readinessCheck 就绪检查
func (s *HTTPServer) readinessCheck(c *gin.Context) {
	if s.checker == nil {
		c.JSON(http.StatusOK, gin.H{"ready": true})
		return
	}

	status := s.checker.GetStatus(c.Request.Context())
	code := http.StatusOK
	if status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"ready":  status != health.StatusUnhealthy,
		"status": status,
		"checks": s.checker.Check(c.Request.Context()),
		"time":   time.Now().Format(time.RFC3339),
	})
}
