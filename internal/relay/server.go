package relay

import (
	"fmt"
	"time"

	"chat-relay/internal/config"
	"chat-relay/internal/logger"
	"chat-relay/internal/upstream"
	"chat-relay/internal/utils"
	"chat-relay/internal/web"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Server struct {
	config       *config.Config
	logger       *logger.Logger
	upstream     *upstream.Client
	adminServer  *web.AdminServer
	router       *gin.Engine
	pollTimeout  time.Duration
	pollInterval time.Duration
}

func NewServer(cfg *config.Config) (*Server, error) {
	logConfig := logger.LogConfig{
		Level:           cfg.Logging.Level,
		LogRequestTypes: cfg.Logging.LogRequestTypes,
		LogResponseBody: cfg.Logging.LogResponseBody,
		LogDirectory:    cfg.Logging.LogDirectory,
	}

	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %v", err)
	}

	tokenTTL, err := utils.ParseTimeoutWithDefault(cfg.Upstream.TokenTTL, "token_ttl", 50*time.Minute)
	if err != nil {
		return nil, err
	}
	pollTimeout, err := utils.ParseTimeoutWithDefault(cfg.Poll.Timeout, "poll timeout", 60*time.Second)
	if err != nil {
		return nil, err
	}
	pollInterval, err := utils.ParseTimeoutWithDefault(cfg.Poll.Interval, "poll interval", 700*time.Millisecond)
	if err != nil {
		return nil, err
	}

	upstreamClient := upstream.NewClient(upstream.Config{
		TokenEndpoint:   cfg.Upstream.TokenEndpoint,
		ThreadEndpoint:  cfg.Upstream.ThreadEndpoint,
		APIKey:          cfg.Upstream.APIKey,
		TokenTTL:        tokenTTL,
		StreamTimeoutMS: cfg.Upstream.StreamTimeoutMS,
	}, utils.GetRelayClient(), utils.GetTriggerClient())

	adminServer := web.NewAdminServer(log)

	server := &Server{
		config:       cfg,
		logger:       log,
		upstream:     upstreamClient,
		adminServer:  adminServer,
		pollTimeout:  pollTimeout,
		pollInterval: pollInterval,
	}

	server.setupRoutes()
	return server, nil
}

func (s *Server) setupRoutes() {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()
	s.router.Use(gin.Recovery())

	// 浏览器前端直接调用中继，放开跨域
	s.router.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	}))

	// 注册管理接口路由（不需要认证）
	s.adminServer.RegisterRoutes(s.router)

	chatGroup := s.router.Group("/")
	chatGroup.Use(s.loggingMiddleware())
	{
		chatGroup.GET("/chat", s.handleChat)
		chatGroup.GET("/chat/v2", s.handleChatV2)
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.logger.Info(fmt.Sprintf("Starting relay server on %s", addr))
	return s.router.Run(addr)
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

func (s *Server) GetLogger() *logger.Logger {
	return s.logger
}
