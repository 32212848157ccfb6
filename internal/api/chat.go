package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nugget/helion/internal/agent"
)

// Stream terminators for POST /v1/chat/send.
const (
	streamEnd         = "[END]\n"
	streamErrorPrefix = "[ERROR]: "
)

// ThreadHeader carries the thread ID back to the caller, which matters
// when the server assigned one.
const ThreadHeader = "X-Thread-ID"

// ChatRequest is the body of POST /v1/chat/send and of each websocket
// chat frame.
type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

// turn validates req and builds the turn for user. A missing thread ID
// starts a new thread.
func (req ChatRequest) turn(user string) (agent.Turn, bool) {
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return agent.Turn{}, false
	}
	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = uuid.NewString()
	}
	return agent.Turn{ThreadID: threadID, UserID: user, Input: msg}, true
}

// runTurn runs turn to completion and passes each answer chunk to emit.
//
// The turn is detached from parent's cancellation so it always reaches
// a checkpoint. consumer scopes delivery only: once it is done the
// scheduler stops forwarding and emit sees nothing more.
func (s *Server) runTurn(parent, consumer context.Context, turn agent.Turn, emit func(string)) (*agent.Result, error) {
	ctx := agent.WithConsumer(context.WithoutCancel(parent), consumer)

	type outcome struct {
		res *agent.Result
		err error
	}
	out := make(chan string, 32)
	done := make(chan outcome, 1)
	go func() {
		res, err := s.runner.Run(ctx, turn, out)
		close(out)
		done <- outcome{res, err}
	}()

	for tok := range out {
		emit(tok)
	}
	o := <-done
	return o.res, o.err
}

// handleChatSend streams one turn as chunked plain text. The stream
// ends with [END] on success or an [ERROR]: line on failure.
func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	turn, ok := req.turn(userID(r))
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set(ThreadHeader, turn.ThreadID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	log := s.logger.With("thread_id", turn.ThreadID, "user", turn.UserID)

	writeErr := false
	emit := func(tok string) {
		if writeErr {
			return
		}
		if _, err := io.WriteString(w, tok); err != nil {
			log.Debug("chat stream write failed", "error", err)
			writeErr = true
			return
		}
		flusher.Flush()
	}

	res, err := s.runTurn(r.Context(), r.Context(), turn, emit)
	if err != nil {
		log.Error("chat turn failed", "error", err)
		emit(streamErrorPrefix + err.Error() + "\n")
		return
	}
	log.Info("chat turn complete",
		"request_id", res.RequestID,
		"steps", res.Steps,
		"guardrail", res.Guardrail,
		"elapsed", res.Elapsed,
	)
	emit(streamEnd)
}
