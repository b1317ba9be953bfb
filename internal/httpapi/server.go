package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/safari/pkg/safari"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP facade over safari.Service.
type Server struct {
	cfg     Config
	logger  *zap.Logger
	handler *httpHandler
	router  *gin.Engine
}

// NewServer validates cfg and builds the router.
func NewServer(service *safari.Service, clock func() time.Time, logger *zap.Logger, cfg Config) (*Server, error) {
	if service == nil || clock == nil {
		return nil, fmt.Errorf("%w: service and clock are required", safari.ErrInvalidServiceConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := registerValidations(); err != nil {
		return nil, err
	}
	handler := &httpHandler{
		logger:  logger,
		service: service,
		clock:   clock,
		cfg:     cfg,
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		router:  setupRouter(cfg, handler, logger),
	}, nil
}

// Handler exposes the router, mainly for tests.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Run serves until ctx ends, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              server.cfg.ListenAddr,
		Handler:           server.router,
		ReadHeaderTimeout: server.cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("safari api listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	api.GET("/slots", handler.handleSlots)
	api.GET("/availability", handler.handleAvailability)

	api.POST("/reservations", handler.handleCreateHold)
	api.GET("/reservations", handler.handleListReservations)
	api.GET("/reservations/:reservationID", handler.handleGetReservation)
	api.POST("/reservations/:reservationID/confirm", handler.handleConfirm)
	api.POST("/reservations/:reservationID/cancel", handler.handleCancel)
	api.POST("/reservations/:reservationID/assignments", handler.handleAssign)
	api.GET("/tokens/:date/:token", handler.handleGetByToken)
	api.GET("/archived", handler.handleListArchived)

	api.GET("/vehicles", handler.handleListVehicles)
	api.POST("/vehicles", handler.handleCreateVehicle)
	api.PUT("/vehicles/:vehicleID", handler.handleUpdateVehicle)
	api.GET("/drivers", handler.handleListDrivers)
	api.POST("/drivers", handler.handleCreateDriver)
	api.PUT("/drivers/:driverID", handler.handleUpdateDriver)
	api.GET("/available/vehicles", handler.handleAvailableVehicles)
	api.GET("/available/drivers", handler.handleAvailableDrivers)

	api.GET("/runs", handler.handleListRuns)
	api.GET("/runs/:runID", handler.handleGetRun)
	api.DELETE("/runs/:runID/passengers/:token", handler.handleUnassign)
	api.PUT("/runs/:runID/driver", handler.handleSetDriver)
	api.POST("/runs/:runID/move", handler.handleMoveToGate)
	api.POST("/runs/:runID/gate/start", handler.handleGateStart)
	api.POST("/runs/:runID/gate/complete", handler.handleGateComplete)
	api.GET("/gate-logs", handler.handleGateLogs)

	api.POST("/maintenance/sweep", handler.handleSweep)
	api.POST("/maintenance/reconcile", handler.handleReconcile)

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		started := time.Now()
		ctx.Next()
		fields := []zap.Field{
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Int("status", ctx.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
		}
		if ctx.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("http request", fields...)
			return
		}
		logger.Debug("http request", fields...)
	}
}
