// Package bridge exposes per-tab mailboxes to page-side clients over
// WebSocket. Each connection owns one tab: it receives relay messages and
// sends either pointer events, which drive a selection session here, or
// ready-made PROCESS_CROP messages.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/menta2k/proofpulse/pkg/protocol"
	"github.com/menta2k/proofpulse/pkg/selector"
	"github.com/menta2k/proofpulse/pkg/types"
)

// Pointer and page frames sent by clients in addition to protocol messages.
const (
	FramePointerDown = "POINTER_DOWN"
	FramePointerMove = "POINTER_MOVE"
	FramePointerUp   = "POINTER_UP"
	FrameCancel      = "CANCEL"
	FramePageInfo    = "PAGE_INFO"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxFrame   = 64 << 10
	snipWait   = 2 * time.Second
)

// inbound is any frame a client may send.
type inbound struct {
	protocol.Message
	X                float64 `json:"x"`
	Y                float64 `json:"y"`
	URL              string  `json:"url,omitempty"`
	DevicePixelRatio float64 `json:"devicePixelRatio,omitempty"`
}

// Bridge serves the page-facing WebSocket and control endpoints.
type Bridge struct {
	hub      *protocol.Hub
	sessions *selector.Registry
	upgrader websocket.Upgrader
	logger   *slog.Logger
	engine   *gin.Engine
}

// New creates a bridge over hub.
func New(hub *protocol.Hub, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		hub:      hub,
		sessions: selector.NewRegistry(),
		upgrader: websocket.Upgrader{
			// Page clients run on arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/ws", b.handleWS)
	engine.POST("/snip", b.handleSnip)
	engine.GET("/tabs", b.handleTabs)
	b.engine = engine
	return b
}

// Handler returns the HTTP handler.
func (b *Bridge) Handler() http.Handler { return b.engine }

// Sessions exposes the selection registry.
func (b *Bridge) Sessions() *selector.Registry { return b.sessions }

// ListenAndServe serves on addr until ctx is cancelled.
func (b *Bridge) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: b.engine, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		b.logger.Info("bridge listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (b *Bridge) handleSnip(c *gin.Context) {
	tab := c.Query("tab")
	if tab == "" {
		c.JSON(http.StatusBadRequest, types.ErrorBody{Error: "tab query parameter required"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), snipWait)
	defer cancel()

	err := b.hub.Deliver(ctx, tab, protocol.NewStartSnip(tab))
	switch {
	case errors.Is(err, protocol.ErrUnknownTab):
		c.JSON(http.StatusNotFound, types.ErrorBody{Error: "no client connected for tab " + tab})
	case err != nil:
		c.JSON(http.StatusConflict, types.ErrorBody{Error: "tab is busy: " + err.Error()})
	default:
		c.Status(http.StatusAccepted)
	}
}

func (b *Bridge) handleTabs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tabs": b.hub.Tabs()})
}

func (b *Bridge) handleWS(c *gin.Context) {
	tab := c.Query("tab")
	if tab == "" {
		c.JSON(http.StatusBadRequest, types.ErrorBody{Error: "tab query parameter required"})
		return
	}
	dpr, _ := strconv.ParseFloat(c.Query("dpr"), 64)
	page := selector.Page{URL: c.Query("url"), DevicePixelRatio: dpr}

	mb, err := b.hub.OpenExclusive(tab)
	switch {
	case errors.Is(err, protocol.ErrTabBusy):
		c.JSON(http.StatusConflict, types.ErrorBody{Error: "tab " + tab + " already has a client"})
		return
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, types.ErrorBody{Error: err.Error()})
		return
	}

	conn, err := b.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		b.hub.Close(tab)
		b.logger.Warn("websocket upgrade failed", "tab", tab, "error", err)
		return
	}

	s := &session{
		id:      uuid.NewString(),
		conn:    conn,
		mailbox: mb,
		sel:     b.sessions.Session(tab, page),
		replies: make(chan protocol.Message, 1),
		logger:  b.logger.With("tab", tab),
	}
	s.logger.Info("page client connected", "session", s.id)

	go s.writeLoop()
	s.readLoop()

	b.hub.Close(tab)
	b.sessions.Remove(tab)
	s.logger.Info("page client disconnected", "session", s.id)
}
