package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/helion/internal/events"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Frame types sent on /v1/chat/ws.
const (
	frameToken = "token"
	frameEnd   = "end"
	frameError = "error"
)

// chatFrame is one server-to-client message on /v1/chat/ws.
type chatFrame struct {
	Type      string `json:"type"`
	ThreadID  string `json:"thread_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Answer    string `json:"answer,omitempty"`
	Guardrail string `json:"guardrail,omitempty"`
	Error     string `json:"error,omitempty"`
}

// wsInbound is a decoded client frame, or the reason it could not be
// decoded.
type wsInbound struct {
	req ChatRequest
	err error
}

// readLoop decodes client frames until the connection fails, then
// cancels the connection context.
func readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, in chan<- wsInbound) {
	defer cancel()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wsInbound
		msg.err = json.Unmarshal(data, &msg.req)
		select {
		case in <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}

// handleChatWebSocket runs turns over a websocket. Each client frame
// is a [ChatRequest]; turns on one connection run one at a time. If the
// client goes away mid-turn the turn still completes and is
// checkpointed.
func (s *Server) handleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("chat websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	user := userID(r)
	connCtx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	in := make(chan wsInbound)
	go readLoop(connCtx, cancel, conn, in)

	s.bus.Emit(events.SourceAPI, events.KindClientConnected, map[string]any{
		"transport": "websocket",
		"user":      user,
	})

	for {
		var msg wsInbound
		select {
		case <-connCtx.Done():
			return
		case msg = <-in:
		}

		if msg.err != nil {
			writeFrame(conn, chatFrame{Type: frameError, Error: "invalid JSON: " + msg.err.Error()})
			continue
		}
		turn, ok := msg.req.turn(user)
		if !ok {
			writeFrame(conn, chatFrame{Type: frameError, Error: "message is required"})
			continue
		}

		res, err := s.runTurn(connCtx, connCtx, turn, func(tok string) {
			if err := writeFrame(conn, chatFrame{Type: frameToken, ThreadID: turn.ThreadID, Text: tok}); err != nil {
				cancel()
			}
		})
		if err != nil {
			s.logger.Error("websocket turn failed", "thread_id", turn.ThreadID, "error", err)
			writeFrame(conn, chatFrame{Type: frameError, ThreadID: turn.ThreadID, Error: err.Error()})
			continue
		}
		writeFrame(conn, chatFrame{
			Type:      frameEnd,
			ThreadID:  res.ThreadID,
			RequestID: res.RequestID,
			Answer:    res.Answer,
			Guardrail: res.Guardrail,
		})
	}
}

// handleEvents streams bus events to a websocket client as JSON until
// the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "event feed not configured")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("events websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	// Inbound frames are discarded; the read loop only notices the
	// client leaving.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ch := s.bus.Subscribe(events.DefaultBuffer)
	defer s.bus.Unsubscribe(ch)

	s.bus.Emit(events.SourceAPI, events.KindClientConnected, map[string]any{
		"transport": "events",
		"user":      userID(r),
	})

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := writeFrame(conn, e); err != nil {
				s.logger.Debug("events websocket write failed", "error", err)
				return
			}
		}
	}
}
