package handlers

import (
	"net/http"

	"water_timer/internal/logger"
	"water_timer/internal/service"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services    *service.Service
	log         *logger.Logger
	metrics     http.Handler
	logLevel    http.Handler
	authEnabled bool
}

type Option func(*Handler)

// WithMetrics exposes h on GET /metrics.
func WithMetrics(h http.Handler) Option { return func(hd *Handler) { hd.metrics = h } }

// WithLogLevel exposes h on GET and PUT /api/v1/log/level for operators.
func WithLogLevel(h http.Handler) Option { return func(hd *Handler) { hd.logLevel = h } }

// WithAuth toggles the bearer token check on the write and log endpoints.
func WithAuth(enabled bool) Option { return func(hd *Handler) { hd.authEnabled = enabled } }

// NewHandler constructs a new HTTP handler with dependencies. Auth is on unless disabled.
func NewHandler(services *service.Service, log *logger.Logger, opts ...Option) *Handler {
	h := &Handler{services: services, log: log, authEnabled: true}
	for _, o := range opts {
		o(h)
	}
	return h
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}

	// Device polling endpoints, kept at the root for existing clients
	router.GET("/", h.ping)
	router.GET("/health", h.health)
	router.GET("/time_left", h.getTimeLeft)
	router.GET("/watering_interval", h.getWateringInterval)
	router.POST("/update_data", h.authMiddleware(), h.updateSchedule)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// Status stream (HTTP upgrade) on the same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	api.GET("/status", h.getStatus)

	protected := api.Group("", h.authMiddleware())
	{
		// Body example: {"interval":{"days":1,"hours":0},"duration":30}
		protected.PUT("/schedule", h.updateSchedule)
		protected.POST("/valve/stop", h.stopValve)
		protected.GET("/logs", h.getLogs)
		if h.logLevel != nil {
			protected.GET("/log/level", gin.WrapH(h.logLevel))
			protected.PUT("/log/level", gin.WrapH(h.logLevel))
		}
	}
}

func (h *Handler) authMiddleware() gin.HandlerFunc {
	if !h.authEnabled {
		return func(c *gin.Context) { c.Next() }
	}
	return h.operatorMiddleware
}
