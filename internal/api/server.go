package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/dwbridge/internal/client"
	"github.com/yourusername/dwbridge/internal/entity"
)

// Server는 HTTP API 서버입니다
type Server struct {
	logger     *zap.Logger
	httpServer *http.Server
	router     *gin.Engine
	port       int

	// 핸들러
	healthHandler    func() map[string]interface{}
	cameras          *entity.Cameras
	users            *entity.Users
	sensors          *entity.Sensors
	licensesHandler  func() map[string]interface{}
	statusHandler    func(cameraID string) (map[string]interface{}, bool)
	websocketHandler func(http.ResponseWriter, *http.Request)
}

// ServerConfig는 API 서버 설정
type ServerConfig struct {
	Port             int
	Production       bool
	Logger           *zap.Logger
	HealthHandler    func() map[string]interface{}
	Cameras          *entity.Cameras
	Users            *entity.Users
	Sensors          *entity.Sensors
	LicensesHandler  func() map[string]interface{}
	StatusHandler    func(cameraID string) (map[string]interface{}, bool)
	WebSocketHandler func(http.ResponseWriter, *http.Request)
}

// NewServer는 새로운 API 서버를 생성합니다
func NewServer(config ServerConfig) *Server {
	if !config.Production {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(loggerMiddleware(config.Logger))

	server := &Server{
		logger:           config.Logger,
		router:           router,
		port:             config.Port,
		healthHandler:    config.HealthHandler,
		cameras:          config.Cameras,
		users:            config.Users,
		sensors:          config.Sensors,
		licensesHandler:  config.LicensesHandler,
		statusHandler:    config.StatusHandler,
		websocketHandler: config.WebSocketHandler,
	}

	server.setupRoutes()

	return server
}

// setupRoutes는 라우트를 설정합니다
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/cameras", s.handleCameras)
		v1.GET("/cameras/:id", s.handleCamera)
		v1.GET("/cameras/:id/snapshot", s.handleSnapshot)
		v1.GET("/cameras/:id/status", s.handleCameraStatus)
		v1.POST("/cameras/:id/stream-block", s.handleStreamBlock)
		v1.POST("/cameras/:id/recording-mode", s.handleRecordingMode)
		v1.POST("/cameras/:id/recording-disabled", s.handleRecordingDisabled)

		v1.GET("/users", s.handleUsers)
		v1.POST("/users/:id/enabled", s.handleUserEnabled)

		v1.GET("/licenses", s.handleLicenses)
		v1.GET("/sensors", s.handleSensors)
	}

	// WebSocket event feed
	if s.websocketHandler != nil {
		s.router.GET("/ws", gin.WrapF(s.websocketHandler))
	}
}

// Start는 API 서버를 시작합니다
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // 쓰기 경로는 재시도 백오프를 포함함
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting API server",
		zap.String("addr", addr),
	)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop은 API 서버를 종료합니다
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	if s.httpServer != nil {
		return s.httpServer.Close()
	}

	return nil
}

// handleHealth는 헬스 체크를 처리합니다
func (s *Server) handleHealth(c *gin.Context) {
	var health map[string]interface{}

	if s.healthHandler != nil {
		health = s.healthHandler()
	} else {
		health = map[string]interface{}{
			"status": "ok",
			"time":   time.Now().UTC(),
		}
	}

	c.JSON(http.StatusOK, health)
}

// handleCameras는 카메라 목록을 반환합니다
func (s *Server) handleCameras(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"cameras": s.cameras.States(),
	})
}

// handleCamera는 단일 카메라 상태를 반환합니다
func (s *Server) handleCamera(c *gin.Context) {
	state, ok := s.cameras.State(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// handleSnapshot은 카메라 스냅샷 이미지를 반환합니다.
// 스트림이 차단된 카메라는 204를 반환합니다.
func (s *Server) handleSnapshot(c *gin.Context) {
	image, err := s.cameras.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if len(image) == 0 {
		c.Status(http.StatusNoContent)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", image)
}

// handleCameraStatus는 서버가 보고한 카메라 상세 상태를 반환합니다
func (s *Server) handleCameraStatus(c *gin.Context) {
	if s.statusHandler == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "status polling disabled"})
		return
	}

	status, ok := s.statusHandler(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no status for camera"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// handleStreamBlock은 스트림 차단 플래그를 변경합니다
func (s *Server) handleStreamBlock(c *gin.Context) {
	var req struct {
		Blocked bool `json:"blocked"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.cameras.SetStreamBlocked(c.Param("id"), req.Blocked); err != nil {
		writeError(c, err)
		return
	}

	state, _ := s.cameras.State(c.Param("id"))
	c.JSON(http.StatusOK, state)
}

// handleRecordingMode는 녹화 모드를 변경합니다
func (s *Server) handleRecordingMode(c *gin.Context) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	mode := client.RecordingMode(req.Mode)
	if !client.ValidRecordingMode(mode) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown recording mode: " + req.Mode})
		return
	}

	if err := s.cameras.SetRecordingMode(c.Request.Context(), c.Param("id"), mode); err != nil {
		writeError(c, err)
		return
	}

	state, _ := s.cameras.State(c.Param("id"))
	c.JSON(http.StatusOK, state)
}

// handleRecordingDisabled는 녹화를 중지/재개합니다
func (s *Server) handleRecordingDisabled(c *gin.Context) {
	var req struct {
		Disabled bool `json:"disabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.cameras.SetRecordingDisabled(c.Request.Context(), c.Param("id"), req.Disabled); err != nil {
		writeError(c, err)
		return
	}

	state, _ := s.cameras.State(c.Param("id"))
	c.JSON(http.StatusOK, state)
}

// handleUsers는 사용자 목록을 반환합니다
func (s *Server) handleUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"users": s.users.States(),
	})
}

// handleUserEnabled는 사용자 계정을 활성화/비활성화합니다
func (s *Server) handleUserEnabled(c *gin.Context) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.users.SetEnabled(c.Request.Context(), c.Param("id"), req.Enabled); err != nil {
		writeError(c, err)
		return
	}

	state, _ := s.users.State(c.Param("id"))
	c.JSON(http.StatusOK, state)
}

// handleLicenses는 라이선스 요약을 반환합니다
func (s *Server) handleLicenses(c *gin.Context) {
	var summary map[string]interface{}
	if s.licensesHandler != nil {
		summary = s.licensesHandler()
	}
	if summary == nil {
		summary = map[string]interface{}{}
	}
	c.JSON(http.StatusOK, summary)
}

// handleSensors는 센서 값을 반환합니다
func (s *Server) handleSensors(c *gin.Context) {
	c.JSON(http.StatusOK, s.sensors.Values())
}

// writeError는 클라이언트 오류 타입을 HTTP 상태로 매핑합니다
func writeError(c *gin.Context, err error) {
	var notFound *client.NotFoundError
	if errors.As(err, &notFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	// 인증/전송 실패 모두 상류 서버 문제로 취급
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}

// corsMiddleware는 CORS 미들웨어입니다
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// loggerMiddleware는 로깅 미들웨어입니다
func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
