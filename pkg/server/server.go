// pkg/server/server.go
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kpolley/PIIDetective/pkg/decision"
	"github.com/kpolley/PIIDetective/pkg/store"
)

// ScanRunner triggers scan runs and reports their status
type ScanRunner interface {
	Start(ctx context.Context) (*store.ScanStatus, error)
	Status(ctx context.Context) (*store.ScanStatus, error)
}

// PendingLister returns the human review queue
type PendingLister interface {
	PendingColumns(ctx context.Context) ([]store.PendingColumn, error)
}

// DecisionRecorder applies and persists reviewer decisions
type DecisionRecorder interface {
	Record(ctx context.Context, columnID int64, d decision.Decision) error
}

// Sampler fetches sample rows from the data platform
type Sampler interface {
	SampleRows(ctx context.Context, datasetID, tableName string, limit int) ([]map[string]any, error)
}

// Server hosts the HTTP surface consumed by the review UI
type Server struct {
	runner     ScanRunner
	pending    PendingLister
	recorder   DecisionRecorder
	sampler    Sampler
	sampleRows int
	logger     *zap.Logger
	httpServer *http.Server
}

// NewServer creates the HTTP server and registers its routes
func NewServer(addr string, runner ScanRunner, pending PendingLister, recorder DecisionRecorder,
	sampler Sampler, sampleRows int, logger *zap.Logger) *Server {
	s := &Server{
		runner:     runner,
		pending:    pending,
		recorder:   recorder,
		sampler:    sampler,
		sampleRows: sampleRows,
		logger:     logger.Named("server"),
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Router builds the gin engine with all routes registered
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())

	router.GET("/healthcheck", s.handleHealthcheck)
	router.GET("/scan", s.handleScan)
	router.GET("/scan/status", s.handleScanStatus)
	router.GET("/columns", s.handleColumns)
	router.POST("/decision", s.handleDecision)
	router.GET("/sample", s.handleSample)

	return router
}

// Start begins serving requests. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server, bounded by the given context
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info("Handled request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}
