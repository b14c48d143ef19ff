package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adserve-lab/chargecounter/internal/core/counter"
	httperr "github.com/adserve-lab/chargecounter/internal/core/errors"
	"github.com/adserve-lab/chargecounter/internal/core/limits"
	"github.com/adserve-lab/chargecounter/internal/core/storage"
)

type Server struct {
	Engine *gin.Engine
	Addr   string
	db     *sql.DB
}

func New(addr string, db *sql.DB, mode string) *Server {
	// Set Gin mode based on configuration
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	s := &Server{
		Engine: r,
		Addr:   addr,
		db:     db,
	}

	// Health check endpoint with database connectivity verification
	r.GET("/health", s.healthHandler)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return s
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	// Check database connectivity when a durable store is configured
	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			slog.Error("Health check failed: database unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database unreachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

// RegisterCounterInspection mounts a read-only view of counter state for
// operators: GET /v1/counters?entity_id=&kind=&control= returns the current
// window's record without mutating anything.
func (s *Server) RegisterCounterInspection(store storage.CounterStore, src limits.Source) {
	s.Engine.GET("/v1/counters", func(c *gin.Context) {
		entityID := c.Query("entity_id")
		if entityID == "" {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidInputError,
				Message:   "entity_id is required",
			})
			return
		}

		kind := counter.Kind(c.DefaultQuery("kind", string(counter.KindBudget)))
		if kind != counter.KindBudget && kind != counter.KindDelivery {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpInvalidInputError,
				Message:   "kind must be budget or delivery",
			})
			return
		}

		control, err := counter.ParseControlType(c.DefaultQuery("control", "total"))
		if err != nil {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpUnknownControlTypeError,
				Message:   err.Error(),
			})
			return
		}

		key := counter.Key{
			EntityID:    entityID,
			Kind:        kind,
			Control:     control,
			WindowStart: control.WindowStart(time.Now(), src.Location()),
		}
		rec, err := store.Get(c.Request.Context(), key)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, httperr.ErrorResponse{
				ErrorType: httperr.HttpUnavailableError,
				Message:   "counter store unavailable",
			})
			return
		}

		resp := gin.H{
			"key":   key.String(),
			"value": rec.Value.String(),
			"limit": rec.Limit.String(),
		}
		if !key.WindowStart.IsZero() {
			resp["window_start"] = key.WindowStart
		}
		c.JSON(http.StatusOK, resp)
	})
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Addr,
		Handler: s.Engine,
	}

	slog.Info("Starting HTTP Server...", "address", s.Addr)

	go func() {
		<-ctx.Done()
		slog.Info("Stopping HTTP Server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP Server forced to shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
