// Package server exposes ingestion over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agenthands/intabular/internal/config"
	"github.com/agenthands/intabular/internal/core"
	"github.com/agenthands/intabular/internal/core/model"
	"github.com/agenthands/intabular/internal/schema"
	"github.com/agenthands/intabular/internal/source"
	"github.com/agenthands/intabular/internal/store"
)

// DefaultMaxUpload bounds each multipart part.
const DefaultMaxUpload = 32 << 20

var (
	errMissingPart    = errors.New("missing file")
	errUploadTooLarge = errors.New("upload too large")
)

type Server struct {
	Ingestor *core.Ingestor
	// Store is used when a request names a table instead of uploading a target.
	Store  config.StoreConfig
	Logger *slog.Logger
	// MaxUpload is the size limit of one uploaded file; larger files are
	// rejected with 413 rather than truncated.
	MaxUpload int64
}

func NewServer(ingestor *core.Ingestor, storeCfg config.StoreConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Ingestor: ingestor, Store: storeCfg, Logger: logger, MaxUpload: DefaultMaxUpload}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.MaxMultipartMemory = DefaultMaxUpload

	r.GET("/healthz", s.Health)
	r.POST("/ingest", s.Ingest)
	r.POST("/analyze", s.Analyze)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.Logger.Info("request",
			"method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status())
	}
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// IngestResponse carries the run report and the resulting target table.
type IngestResponse struct {
	Report   *model.Report    `json:"report"`
	Strategy *model.Strategy  `json:"strategy"`
	Table    *model.Table     `json:"table,omitempty"`
	Warnings []source.Warning `json:"warnings,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Ingest takes multipart parts schema and source, plus either an uploaded
// target CSV or a table form value naming a table in the configured store.
// An optional strategy part skips strategy building.
func (s *Server) Ingest(c *gin.Context) {
	ctx := c.Request.Context()

	schemaData, err := s.formFile(c, "schema")
	if err != nil {
		c.JSON(uploadStatus(err), gin.H{"error": err.Error()})
		return
	}
	ts, err := schema.Parse(schemaData)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	src, ok := s.readSource(c)
	if !ok {
		return
	}

	var target *model.Table
	var persist store.TableStore
	targetData, err := s.formFile(c, "target")
	switch {
	case err == nil:
		target, err = store.ParseCSV(targetData, ts.ColumnNames())
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
	case !errors.Is(err, errMissingPart):
		c.JSON(uploadStatus(err), gin.H{"error": err.Error()})
		return
	case c.PostForm("table") != "":
		persist, err = store.Open(ctx, s.Store, c.PostForm("table"))
		if err != nil {
			s.Logger.Error("failed to open store", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open store"})
			return
		}
		defer persist.Close(ctx)
		target, err = persist.Load(ctx, ts.ColumnNames())
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
	default:
		target = model.NewTable(ts.ColumnNames())
	}

	var strat *model.Strategy
	strategyData, err := s.formFile(c, "strategy")
	switch {
	case err == nil:
		strat = &model.Strategy{}
		if err := json.Unmarshal(strategyData, strat); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid strategy: %v", err)})
			return
		}
	case !errors.Is(err, errMissingPart):
		c.JSON(uploadStatus(err), gin.H{"error": err.Error()})
		return
	default:
		strat, err = s.Ingestor.BuildStrategy(ctx, ts, src.Table)
		if err != nil {
			s.Logger.Error("failed to build strategy", "error", err)
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
	}

	report, err := s.Ingestor.Ingest(ctx, ts, strat, src.Table, target)
	resp := IngestResponse{Report: report, Strategy: strat, Warnings: src.Warnings}
	if err != nil {
		resp.Error = err.Error()
		c.JSON(statusFor(err), resp)
		return
	}
	if persist != nil {
		if err := store.SaveDetached(ctx, persist, target); err != nil {
			s.Logger.Error("failed to save target", "error", err)
			resp.Error = "failed to save target"
			c.JSON(http.StatusInternalServerError, resp)
			return
		}
	} else {
		resp.Table = target
	}
	c.JSON(http.StatusOK, resp)
}

// Analyze returns the column classification of an uploaded source.
func (s *Server) Analyze(c *gin.Context) {
	src, ok := s.readSource(c)
	if !ok {
		return
	}
	analysis, err := s.Ingestor.Analyze(c.Request.Context(), nil, src.Table)
	if err != nil {
		s.Logger.Error("failed to analyze", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to analyze source"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analysis": analysis, "warnings": src.Warnings})
}

func (s *Server) readSource(c *gin.Context) (*source.Result, bool) {
	data, err := s.formFile(c, "source")
	if err != nil {
		c.JSON(uploadStatus(err), gin.H{"error": err.Error()})
		return nil, false
	}
	src, err := source.Parse(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return src, true
}

// formFile reads one uploaded file whole. A file over the size limit is an
// error, never a truncated read.
func (s *Server) formFile(c *gin.Context, name string) ([]byte, error) {
	fh, err := c.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, fmt.Errorf("%w: %s", errMissingPart, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	limit := s.MaxUpload
	if limit <= 0 {
		limit = DefaultMaxUpload
	}
	if fh.Size > limit {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit is %d", errUploadTooLarge, name, fh.Size, limit)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", errUploadTooLarge, name, limit)
	}
	return data, nil
}

func uploadStatus(err error) int {
	if errors.Is(err, errUploadTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func statusFor(err error) int {
	var se *model.StrategyError
	switch {
	case errors.Is(err, store.ErrColumnMismatch):
		return http.StatusConflict
	case errors.As(err, &se), errors.Is(err, model.ErrInvalidMapping), errors.Is(err, model.ErrMissingRule):
		return http.StatusUnprocessableEntity
	case errors.Is(err, schema.ErrInvalidSchema), errors.Is(err, schema.ErrLegacyColumns), errors.Is(err, store.ErrReservedColumn):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
