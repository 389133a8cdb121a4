// Package ws provides the WebSocket endpoint for live chat clients.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/supportchat/internal/auth"
	"github.com/xiaot623/gogo/supportchat/internal/config"
	"github.com/xiaot623/gogo/supportchat/internal/domain"
	"github.com/xiaot623/gogo/supportchat/internal/hub"
	"github.com/xiaot623/gogo/supportchat/internal/protocol"
	"github.com/xiaot623/gogo/supportchat/internal/service"
)

// Server handles WebSocket connections.
type Server struct {
	cfg       *config.Config
	hub       *hub.Hub
	service   *service.Service
	validator auth.Validator
	upgrader  websocket.Upgrader
}

// NewServer creates a new WebSocket server.
func NewServer(cfg *config.Config, h *hub.Hub, svc *service.Service, validator auth.Validator) *Server {
	allowed := make(map[string]bool)
	for _, o := range cfg.Origins() {
		allowed[o] = true
	}
	return &Server{
		cfg:       cfg,
		hub:       h,
		service:   svc,
		validator: validator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
	}
}

// HandleWebSocket handles WebSocket upgrade and connection lifecycle.
// GET /api/chat/ws
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		return nil
	}

	conn := s.hub.NewConnection(ws)
	s.hub.Register(conn)

	ws.SetReadLimit(s.cfg.WSMaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads messages from the WebSocket connection.
func (s *Server) readPump(conn *hub.Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(s.cfg.WSReadTimeout()))
	conn.Conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.WSReadTimeout()))
		return nil
	})

	for {
		_, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		s.handleMessage(conn, message)
	}
}

// writePump writes messages to the WebSocket connection.
func (s *Server) writePump(conn *hub.Connection) {
	ticker := time.NewTicker(s.cfg.WSPingInterval())
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WSWriteTimeout()))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WSWriteTimeout()))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches incoming messages to appropriate handlers.
func (s *Server) handleMessage(conn *hub.Connection, data []byte) {
	var baseMsg protocol.BaseMessage
	if err := json.Unmarshal(data, &baseMsg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid JSON message")
		return
	}

	if baseMsg.Type != protocol.TypeHello && conn.OwnerID == "" {
		s.sendError(conn, baseMsg.RequestID, protocol.ErrorCodeHelloRequired, "must send hello first")
		return
	}

	switch baseMsg.Type {
	case protocol.TypeHello:
		s.handleHello(conn, data)
	case protocol.TypeCreateSession:
		s.handleCreateSession(conn, data)
	case protocol.TypeSendMessage:
		s.handleSendMessage(conn, data)
	default:
		s.sendError(conn, baseMsg.RequestID, protocol.ErrorCodeInvalidMessage, "unknown message type: "+baseMsg.Type)
	}
}

// handleHello authenticates the connection and binds it to its owner.
func (s *Server) handleHello(conn *hub.Connection, data []byte) {
	var msg protocol.HelloMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid hello message")
		return
	}

	ownerID, err := s.validator.Validate(msg.Token)
	if err != nil {
		s.sendError(conn, msg.RequestID, protocol.ErrorCodeUnauthorized, auth.MsgTokenInvalid)
		return
	}

	s.hub.BindOwner(conn, ownerID)

	ack := protocol.HelloAckMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeHelloAck,
			Ts:        time.Now().UnixMilli(),
			RequestID: msg.RequestID,
		},
		OwnerID: ownerID,
	}
	s.hub.SendJSONToConnection(conn, ack)

	log.Printf("Hello handshake completed for connection %s", conn.ID)
}

func (s *Server) handleCreateSession(conn *hub.Connection, data []byte) {
	var msg protocol.CreateSessionMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid create_session message")
		return
	}

	session, err := s.service.CreateSession(context.Background(), conn.OwnerID, msg.Title)
	if err != nil {
		s.sendServiceError(conn, msg.RequestID, err)
		return
	}
	s.hub.SendJSONToConnection(conn, protocol.SessionResultMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeSessionResult,
			Ts:        time.Now().UnixMilli(),
			RequestID: msg.RequestID,
			SessionID: session.SessionID,
		},
		Session: session,
	})
}

// handleSendMessage runs the exchange off the read loop so the connection
// keeps answering pings while the assistant replies.
func (s *Server) handleSendMessage(conn *hub.Connection, data []byte) {
	var msg protocol.SendMessageMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(conn, "", protocol.ErrorCodeInvalidMessage, "invalid send_message message")
		return
	}
	ownerID := conn.OwnerID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LLMTimeout()+30*time.Second)
		defer cancel()

		result, err := s.service.SendMessage(ctx, msg.SessionID, ownerID, msg.Message)
		if err != nil {
			s.sendServiceError(conn, msg.RequestID, err)
			return
		}
		s.hub.SendJSONToConnection(conn, protocol.MessageResultMessage{
			BaseMessage: protocol.BaseMessage{
				Type:      protocol.TypeMessageResult,
				Ts:        time.Now().UnixMilli(),
				RequestID: msg.RequestID,
				SessionID: msg.SessionID,
			},
			Result: result,
		})
	}()
}

func (s *Server) sendServiceError(conn *hub.Connection, requestID string, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		s.sendError(conn, requestID, protocol.ErrorCodeValidation, ve.Reason)
	case errors.Is(err, domain.ErrNotFound):
		s.sendError(conn, requestID, protocol.ErrorCodeNotFound, "Chat not found")
	default:
		log.Printf("WARN: websocket request %s failed: %v", requestID, err)
		s.sendError(conn, requestID, protocol.ErrorCodeInternalError, "Internal server error")
	}
}

// sendError sends an error message to a connection.
func (s *Server) sendError(conn *hub.Connection, requestID, code, message string) {
	errMsg := protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeError,
			Ts:        time.Now().UnixMilli(),
			RequestID: requestID,
		},
		Code:    code,
		Message: message,
	}
	s.hub.SendJSONToConnection(conn, errMsg)
}
