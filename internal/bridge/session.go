package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/menta2k/proofpulse/pkg/protocol"
	"github.com/menta2k/proofpulse/pkg/selector"
)

// session pumps one WebSocket connection. Only writeLoop writes to conn.
type session struct {
	id      string
	conn    *websocket.Conn
	mailbox *protocol.Mailbox
	sel     *selector.Session
	replies chan protocol.Message
	logger  *slog.Logger
}

func (s *session) readLoop() {
	defer s.conn.Close()

	s.conn.SetReadLimit(maxFrame)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inbound
		if err := s.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("read failed", "error", err)
			}
			return
		}
		s.handle(in)
	}
}

func (s *session) handle(in inbound) {
	switch in.Type {
	case FramePageInfo:
		s.sel.SetPage(selector.Page{URL: in.URL, DevicePixelRatio: in.DevicePixelRatio})
	case protocol.StartSnip:
		s.sel.Start()
	case FramePointerDown:
		s.sel.PointerDown(in.X, in.Y)
	case FramePointerMove:
		s.sel.PointerMove(in.X, in.Y)
	case FrameCancel:
		s.sel.Cancel()
	case FramePointerUp:
		req, ok := s.sel.PointerUp(in.X, in.Y)
		if !ok {
			return
		}
		s.submit(protocol.NewProcessCrop(req))
	case protocol.ProcessCrop:
		// Client-side selection: apply the same size floor and the same
		// one-scan-in-flight rule.
		if in.Area == nil || in.Area.TooSmall() {
			return
		}
		if !s.sel.Claim() {
			s.logger.Debug("scan already pending, ignoring selection")
			return
		}
		s.submit(in.Message)
	default:
		s.logger.Debug("ignoring frame", "type", in.Type)
	}
}

func (s *session) submit(msg protocol.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), snipWait)
	defer cancel()
	if err := s.mailbox.SendToRelay(ctx, msg); err != nil {
		s.sel.Resolve()
		s.reply(protocol.NewScanError(s.mailbox.TabID(), "Could not submit the selection: "+err.Error()))
	}
}

// reply queues a locally generated message for the client.
func (s *session) reply(msg protocol.Message) {
	select {
	case s.replies <- msg:
	default:
		s.logger.Warn("dropping local reply", "type", msg.Type)
	}
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.mailbox.Page():
			switch msg.Type {
			case protocol.StartSnip:
				// Already armed or scanning: the overlay stays as it is.
				if !s.sel.Start() {
					continue
				}
			case protocol.ScanResult, protocol.ScanError:
				s.sel.Resolve()
			}
			if !s.write(msg) {
				return
			}
		case msg := <-s.replies:
			if !s.write(msg) {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.mailbox.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (s *session) write(msg protocol.Message) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Warn("write failed", "type", msg.Type, "error", err)
		return false
	}
	return true
}
