package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/page"
	"github.com/gorilla/websocket"
	"github.com/mailru/easyjson"
)

// DefaultCaptureTimeout bounds a screenshot when the caller's context has
// no deadline.
const DefaultCaptureTimeout = 15 * time.Second

// PageInfo is one entry of the DevTools /json/list endpoint.
type PageInfo struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Chrome captures tabs of a running Chrome through the DevTools protocol.
// Tab ids are DevTools target ids.
//
// Chrome only ever opens debugger websockets to existing pages. It never
// creates or closes targets, so dropping a connection leaves the tab as
// the user had it.
type Chrome struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer

	mu     sync.Mutex
	conns  map[string]*pageConn
	closed bool
	logger *slog.Logger
}

type pageConn struct {
	mu     sync.Mutex
	ws     *websocket.Conn
	nextID int64
}

// NewChrome connects to the browser listening at devtoolsURL
// (e.g. http://127.0.0.1:9222 or ws://127.0.0.1:9222/devtools/browser/...).
func NewChrome(ctx context.Context, devtoolsURL string, logger *slog.Logger) (*Chrome, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := devtoolsBase(devtoolsURL)
	if err != nil {
		return nil, err
	}
	c := &Chrome{
		baseURL: base,
		http:    &http.Client{Timeout: 10 * time.Second},
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		conns:   make(map[string]*pageConn),
		logger:  logger,
	}

	var version struct {
		Browser  string `json:"Browser"`
		Protocol string `json:"Protocol-Version"`
	}
	if err := c.getJSON(ctx, "/json/version", &version); err != nil {
		return nil, fmt.Errorf("failed to connect to browser at %s: %w", devtoolsURL, err)
	}
	logger.Info("connected to browser", "browser", version.Browser, "protocol", version.Protocol)
	return c, nil
}

// devtoolsBase reduces any DevTools URL to its http scheme and host.
func devtoolsBase(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid devtools url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("invalid devtools url %q: unsupported scheme", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid devtools url %q: missing host", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

func (c *Chrome) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned %d", path, resp.StatusCode)
	}
	return sonic.ConfigDefault.NewDecoder(resp.Body).Decode(v)
}

// Pages lists the page targets currently open in the browser.
func (c *Chrome) Pages(ctx context.Context) ([]PageInfo, error) {
	var infos []PageInfo
	if err := c.getJSON(ctx, "/json/list", &infos); err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	pages := make([]PageInfo, 0, len(infos))
	for _, info := range infos {
		if info.Type == "page" {
			pages = append(pages, info)
		}
	}
	return pages, nil
}

// CaptureVisible returns a PNG of the tab's current viewport.
func (c *Chrome) CaptureVisible(ctx context.Context, tabID string) ([]byte, error) {
	pc, err := c.conn(ctx, tabID)
	if err != nil {
		return nil, err
	}

	params := page.CaptureScreenshot().
		WithFormat(page.CaptureScreenshotFormatPng).
		WithFromSurface(true)
	var res page.CaptureScreenshotReturns
	if err := pc.call(ctx, page.CommandCaptureScreenshot, params, &res); err != nil {
		c.drop(tabID, pc)
		return nil, fmt.Errorf("screenshot of tab %s failed: %w", tabID, err)
	}
	buf, err := base64.StdEncoding.DecodeString(res.Data)
	if err != nil {
		return nil, fmt.Errorf("screenshot of tab %s is not base64: %w", tabID, err)
	}
	c.logger.Debug("captured tab", "tab", tabID, "bytes", len(buf))
	return buf, nil
}

func (c *Chrome) conn(ctx context.Context, tabID string) (*pageConn, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if pc, ok := c.conns[tabID]; ok {
		c.mu.Unlock()
		return pc, nil
	}
	c.mu.Unlock()

	pages, err := c.Pages(ctx)
	if err != nil {
		return nil, err
	}
	var wsURL string
	for _, p := range pages {
		if p.ID == tabID {
			wsURL = p.WebSocketDebuggerURL
			break
		}
	}
	if wsURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTab, tabID)
	}

	ws, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to attach to tab %s: %w", tabID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		ws.Close()
		return nil, ErrClosed
	}
	if pc, ok := c.conns[tabID]; ok {
		ws.Close()
		return pc, nil
	}
	pc := &pageConn{ws: ws}
	c.conns[tabID] = pc
	return pc, nil
}

// drop forgets a broken connection. Closing a debugger websocket detaches
// from the page and leaves the tab open.
func (c *Chrome) drop(tabID string, pc *pageConn) {
	c.mu.Lock()
	if cur, ok := c.conns[tabID]; ok && cur == pc {
		delete(c.conns, tabID)
	}
	c.mu.Unlock()
	pc.ws.Close()
}

// call sends one command and waits for its reply, skipping events.
func (pc *pageConn) call(ctx context.Context, method cdproto.MethodType, params easyjson.Marshaler, result easyjson.Unmarshaler) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCaptureTimeout)
		defer cancel()
	}
	deadline, _ := ctx.Deadline()
	pc.ws.SetWriteDeadline(deadline)
	pc.ws.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		pc.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	pc.nextID++
	req := &cdproto.Message{ID: pc.nextID, Method: method}
	if params != nil {
		buf, err := easyjson.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = buf
	}
	msg, err := easyjson.Marshal(req)
	if err != nil {
		return err
	}
	if err := pc.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
		return err
	}

	for {
		_, data, err := pc.ws.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		resp := new(cdproto.Message)
		if err := easyjson.Unmarshal(data, resp); err != nil {
			return fmt.Errorf("malformed devtools message: %w", err)
		}
		if resp.ID != req.ID {
			continue
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil || len(resp.Result) == 0 {
			return nil
		}
		return easyjson.Unmarshal(resp.Result, result)
	}
}

// Close drops every debugger connection. Tabs stay open.
func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	var errs []error
	for id, pc := range c.conns {
		if err := pc.ws.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.conns, id)
	}
	return errors.Join(errs...)
}
