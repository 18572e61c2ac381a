package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/lingualive/internal/broadcast"
	"github.com/MrWong99/lingualive/internal/observe"
	"github.com/MrWong99/lingualive/pkg/types"
)

// Control commands accepted on the WebSocket.
const (
	CommandStart       = "start-listening"
	CommandStop        = "stop-listening"
	CommandSetLanguage = "set-language"
)

// command is one inbound control message.
type command struct {
	Command string `json:"command"`
	Lang    string `json:"lang,omitempty"`
}

// wsClient adapts a WebSocket connection to [broadcast.Client].
type wsClient struct {
	id   string
	conn *websocket.Conn
}

var _ broadcast.Client = (*wsClient)(nil)

func (c *wsClient) ID() string { return c.id }

func (c *wsClient) Send(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsClient) Close(reason string) error {
	return c.conn.Close(websocket.StatusGoingAway, reason)
}

// reply writes msg to this client only. coder/websocket allows writes
// concurrent with the broadcaster's writer goroutine.
func (c *wsClient) reply(ctx context.Context, msg types.OutboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("lang")
	if lang != "" && !s.SupportsLanguage(lang) {
		http.Error(w, fmt.Sprintf("unsupported language %q", lang), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		// Accept has already written the HTTP error.
		s.logger.Warn("server: websocket handshake failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	c := &wsClient{id: observe.NewCorrelationID(), conn: conn}
	log := s.logger.With("client", c.id, "remote", r.RemoteAddr)

	if lang != "" {
		s.cfg.Controller.SetLanguage(lang)
	}
	if err := s.cfg.Hub.Register(c, s.cfg.Controller.StatusMessage()); err != nil {
		log.Warn("server: register client", "err", err)
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer s.cfg.Hub.Unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	s.metrics.RecordClients(ctx, 1)
	defer s.metrics.RecordClients(context.Background(), -1)
	log.Info("server: client connected", "lang", lang)

	if s.cfg.PingInterval > 0 {
		go s.keepalive(ctx, cancel, c)
	}

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Info("server: client disconnected")
			default:
				log.Info("server: client connection ended", "err", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		s.handleCommand(ctx, c, data)
	}
}

// keepalive pings c until ctx ends and cancels the connection on a missed pong.
func (s *Server) keepalive(ctx context.Context, cancel context.CancelFunc, c *wsClient) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, pcancel := context.WithTimeout(ctx, pingTimeout)
			err := c.conn.Ping(pctx)
			pcancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Info("server: client missed ping", "client", c.id, "err", err)
				}
				cancel()
				return
			}
		}
	}
}

// handleCommand applies one control message. Failures of start are published
// to every client by the controller; protocol errors go to the sender only.
func (s *Server) handleCommand(ctx context.Context, c *wsClient, data []byte) {
	log := s.logger.With("client", c.id)

	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		log.Warn("server: invalid control message", "err", err)
		s.replyError(ctx, c, "invalid control message: expected JSON like {\"command\":\"start-listening\"}")
		return
	}
	log.Debug("server: command received", "command", cmd.Command, "lang", cmd.Lang)

	switch cmd.Command {
	case CommandStart, "start":
		if err := s.cfg.Controller.Start(ctx); err != nil {
			log.Warn("server: start listening", "err", err)
		}
	case CommandStop, "stop":
		if err := s.cfg.Controller.Stop(ctx); err != nil {
			log.Warn("server: stop listening", "err", err)
		}
	case CommandSetLanguage:
		if !s.SupportsLanguage(cmd.Lang) {
			s.replyError(ctx, c, fmt.Sprintf("unsupported language %q", cmd.Lang))
			return
		}
		s.cfg.Controller.SetLanguage(cmd.Lang)
	default:
		s.replyError(ctx, c, fmt.Sprintf("unknown command %q", cmd.Command))
	}
}

func (s *Server) replyError(ctx context.Context, c *wsClient, text string) {
	if err := c.reply(ctx, types.ErrorMessage(text)); err != nil {
		s.logger.Debug("server: reply failed", "client", c.id, "err", err)
	}
}
