// pkg/server/handlers.go
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kpolley/PIIDetective/pkg/decision"
	"github.com/kpolley/PIIDetective/pkg/scan"
	"github.com/kpolley/PIIDetective/pkg/store"
)

func (s *Server) handleHealthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleScan triggers a scan run asynchronously and returns immediately
func (s *Server) handleScan(c *gin.Context) {
	status, err := s.runner.Start(c.Request.Context())
	if errors.Is(err, scan.ErrScanInProgress) {
		c.JSON(http.StatusOK, gin.H{"message": "Scan in progress"})
		return
	}
	if err != nil {
		s.logger.Error("Failed to start scan", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, status)
}

// handleScanStatus returns the most recently started scan run
func (s *Server) handleScanStatus(c *gin.Context) {
	status, err := s.runner.Status(c.Request.Context())
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	if err != nil {
		s.logger.Error("Failed to query scan status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, status)
}

// handleColumns returns classifications awaiting a reviewer decision
func (s *Server) handleColumns(c *gin.Context) {
	pending, err := s.pending.PendingColumns(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to query pending columns", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, pending)
}

type decisionRequest struct {
	ColumnID *int64  `json:"columnId"`
	Decision *string `json:"decision"`
}

// handleDecision records a reviewer's accept/reject verdict. The payload
// is fully validated before the recorder or the platform is touched.
func (s *Server) handleDecision(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.ColumnID == nil || req.Decision == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "columnId and decision are required"})
		return
	}

	verdict := decision.Decision(*req.Decision)
	if !verdict.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "decision must be \"accept\" or \"reject\""})
		return
	}

	err := s.recorder.Record(c.Request.Context(), *req.ColumnID, verdict)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "column not found"})
		return
	}
	if err != nil {
		s.logger.Error("Failed to record decision",
			zap.Int64("columnId", *req.ColumnID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Decision recorded",
		"columnId": *req.ColumnID,
	})
}

// handleSample proxies a sample-rows fetch to the data platform
func (s *Server) handleSample(c *gin.Context) {
	datasetID := c.Query("datasetId")
	tableName := c.Query("tableName")
	if datasetID == "" || tableName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "datasetId and tableName are required"})
		return
	}

	rows, err := s.sampler.SampleRows(c.Request.Context(), datasetID, tableName, s.sampleRows)
	if err != nil {
		s.logger.Error("Failed to fetch sample rows",
			zap.String("dataset", datasetID),
			zap.String("table", tableName),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, rows)
}
