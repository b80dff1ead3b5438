// Package server exposes the bulk intake endpoint and health probe over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pennywhistle/tally-ho/internal/ingest"
	"github.com/pennywhistle/tally-ho/internal/model"
	"github.com/pennywhistle/tally-ho/internal/service"
)

// Server wraps the gin router and its HTTP listener.
type Server struct {
	gate *ingest.Gate
	http *http.Server
}

// New creates the HTTP server bound to addr.
func New(addr string, gate *ingest.Gate) *Server {
	s := &Server{gate: gate}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", s.handleHealth)
	router.POST("/api/v1/expenses/ingest", s.handleIngest)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	slog.Info("HTTP server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// expensePayload is the wire shape of one submitted claim.
type expensePayload struct {
	ClaimID         string  `json:"claim_id" binding:"required"`
	ClaimDate       string  `json:"claim_date" binding:"required"`
	Amount          float64 `json:"amount"`
	Payee           string  `json:"payee"`
	Category        string  `json:"category"`
	JurisdictionTag string  `json:"jurisdiction_tag"`
	Instrument      string  `json:"instrument"`
	ReceiptRef      string  `json:"receipt_ref"`
	EventRelated    bool    `json:"event_related"`
	HumanApproved   bool    `json:"human_approved"`
}

type ingestRequest struct {
	Expenses []expensePayload `json:"expenses" binding:"required"`
}

type rejectedPayload struct {
	ClaimID string `json:"claim_id"`
	Reason  string `json:"reason"`
}

type ingestResponse struct {
	Inserted   int               `json:"inserted"`
	Duplicates int               `json:"duplicates"`
	Rejected   []rejectedPayload `json:"rejected,omitempty"`
}

func (s *Server) handleIngest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	records := make([]model.ExpenseRecord, 0, len(req.Expenses))
	var rejected []rejectedPayload
	for _, p := range req.Expenses {
		claimDate, err := ingest.ParseClaimDate(p.ClaimDate)
		if err != nil {
			rejected = append(rejected, rejectedPayload{ClaimID: p.ClaimID, Reason: err.Error()})
			continue
		}
		records = append(records, model.ExpenseRecord{
			ClaimID:         p.ClaimID,
			ClaimDate:       claimDate,
			Amount:          p.Amount,
			Payee:           p.Payee,
			Category:        p.Category,
			JurisdictionTag: p.JurisdictionTag,
			Instrument:      p.Instrument,
			ReceiptRef:      p.ReceiptRef,
			EventRelated:    p.EventRelated,
			HumanApproved:   p.HumanApproved,
		})
	}

	result, err := s.gate.Ingest(c.Request.Context(), records)
	if err != nil {
		slog.Error("Ingest failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue expenses"})
		return
	}

	c.JSON(http.StatusOK, ingestResponse{
		Inserted:   result.Inserted,
		Duplicates: result.Duplicates,
		Rejected:   append(rejected, toRejectedPayloads(result.Rejected)...),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func toRejectedPayloads(rejected []service.RejectedRecord) []rejectedPayload {
	out := make([]rejectedPayload, 0, len(rejected))
	for _, r := range rejected {
		out = append(out, rejectedPayload{ClaimID: r.ClaimID, Reason: r.Reason})
	}
	return out
}

// requestLogger logs each request the way the rest of the engine logs: slog
// with structured attrs, no payload bodies.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
