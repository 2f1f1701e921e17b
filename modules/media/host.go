package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-monolith/mono/pkg/types"
)

// Host serves uploaded assets over HTTP so that the URLs returned by
// ObjectStoreUploader resolve.
type Host struct {
	store  ObjectStore
	addr   string
	engine *gin.Engine
	server *http.Server
	logger types.Logger
}

// NewHost creates a host for store listening on addr.
func NewHost(store ObjectStore, addr string, logger types.Logger) *Host {
	gin.SetMode(gin.ReleaseMode)

	h := &Host{
		store:  store,
		addr:   addr,
		engine: gin.New(),
		logger: logger,
	}
	h.engine.Use(gin.Recovery())
	h.engine.Use(h.loggingMiddleware())
	h.registerRoutes()
	return h
}

func (h *Host) registerRoutes() {
	h.engine.GET("/health", h.handleHealth)
	h.engine.GET("/media/:id/:name", h.handleGetAsset)
}

// Handler returns the HTTP handler.
func (h *Host) Handler() http.Handler {
	return h.engine
}

// Start listens in the background. It fails when the server stops within
// the first moments, e.g. because the address is taken.
func (h *Host) Start() error {
	h.server = &http.Server{
		Addr:              h.addr,
		Handler:           h.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("Asset host starting", "addr", h.addr)
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("Asset host error", "error", err)
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("asset host failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Shutdown stops the server.
func (h *Host) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	h.logger.Info("Shutting down asset host")
	return h.server.Shutdown(ctx)
}

func (h *Host) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Host) handleGetAsset(c *gin.Context) {
	id := c.Param("id")
	name := c.Param("name")

	if err := validateAssetID(id); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, info, err := h.store.Get(c.Request.Context(), objectName(id, sanitizeName(name)))
	if err != nil {
		if errors.Is(err, ErrAssetNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
			return
		}
		h.logger.Error("Failed to read asset", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read asset"})
		return
	}

	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Header("Content-Length", fmt.Sprintf("%d", len(data)))
	c.Data(http.StatusOK, info.ContentType, data)
}

func (h *Host) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("Asset request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds())
	}
}
