// Package server exposes the analyzer over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/menta2k/proofpulse/pkg/processing"
	"github.com/menta2k/proofpulse/pkg/types"
)

// DefaultMaxBodyBytes bounds a /scan request body.
const DefaultMaxBodyBytes = 15 << 20

// Assessor turns an image into a verdict. detection.Detector implements it.
type Assessor interface {
	Assess(ctx context.Context, pageURL string, image []byte, mimeType string) (types.Verdict, error)
}

// Options configures the server.
type Options struct {
	Assessor     Assessor
	Logger       *slog.Logger
	MaxBodyBytes int64
	Debug        bool
}

// Server is the analyzer HTTP service.
type Server struct {
	engine   *gin.Engine
	assessor Assessor
	logger   *slog.Logger
	maxBody  int64
	started  time.Time
}

// New builds the gin engine with recovery, request ids, logging and CORS.
func New(opts Options) (*Server, error) {
	if opts.Assessor == nil {
		return nil, errors.New("server requires an assessor")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		assessor: opts.Assessor,
		logger:   logger,
		maxBody:  maxBody,
		started:  processStart(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(loggingMiddleware(logger))
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins:           true,
		AllowMethods:              []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:              []string{"Content-Type"},
		ExposeHeaders:             []string{RequestIDHeader},
		OptionsResponseStatusCode: http.StatusNoContent,
		MaxAge:                    12 * time.Hour,
	}))

	engine.GET("/health", s.handleHealth)
	engine.POST("/scan", s.handleScan)
	// Preflight for any path is answered by the CORS middleware; this keeps
	// a bare OPTIONS without Origin from falling through to 404.
	engine.NoRoute(func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusNotFound, types.ErrorBody{Error: "not found"})
	})

	s.engine = engine
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("analyzer listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("analyzer server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("analyzer shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, types.HealthStatus{
		OK:     true,
		Uptime: time.Since(s.started).Seconds(),
	})
}

func (s *Server) handleScan(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBody)

	var req types.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, types.ErrorBody{
				Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		c.JSON(http.StatusBadRequest, types.ErrorBody{Error: "invalid JSON body"})
		return
	}

	if req.PageURL == "" || req.ScreenshotDataURL == "" {
		c.JSON(http.StatusBadRequest, types.ErrorBody{Error: "page_url and screenshot_data_url required"})
		return
	}

	du, err := processing.ParseDataURL(req.ScreenshotDataURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorBody{Error: "screenshot_data_url must be a base64 data URL"})
		return
	}
	image, err := du.Bytes()
	if err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorBody{Error: "screenshot_data_url payload is not valid base64"})
		return
	}

	v, err := s.assessor.Assess(c.Request.Context(), req.PageURL, image, du.MimeType)
	if err != nil {
		s.logger.Error("scan failed", "request_id", c.GetString(requestIDKey), "error", err)
		c.JSON(http.StatusInternalServerError, types.ErrorBody{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, v)
}

// processStart returns when this process started, falling back to now.
func processStart() time.Time {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return time.Now()
	}
	ms, err := p.CreateTime()
	if err != nil || ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
