package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nugget/helion/internal/checkpoint"
	"github.com/nugget/helion/internal/conversation"
)

func (s *Server) handleThreadList(w http.ResponseWriter, r *http.Request) {
	threads, err := s.threads.Threads(r.Context(), userID(r))
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "list threads: "+err.Error())
		return
	}
	if threads == nil {
		threads = []checkpoint.Thread{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"threads": threads,
		"count":   len(threads),
	}, s.logger)
}

// handleThreadHistory returns the thread's most recent checkpoints,
// newest first.
func (s *Server) handleThreadHistory(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("id")
	limit := parseIntParam(r, "limit", checkpoint.DefaultListLimit)

	rows, err := s.threads.ListRecent(r.Context(), threadID, limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "list checkpoints: "+err.Error())
		return
	}
	if rows == nil {
		rows = []checkpoint.Row{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"thread_id":   threadID,
		"checkpoints": rows,
		"count":       len(rows),
	}, s.logger)
}

// loadThread fetches the latest checkpoint or writes a 404.
func (s *Server) loadThread(w http.ResponseWriter, r *http.Request) (*checkpoint.Checkpoint, bool) {
	threadID := r.PathValue("id")
	cp, found, err := s.threads.LoadLatest(r.Context(), threadID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "load thread: "+err.Error())
		return nil, false
	}
	if !found {
		s.errorResponse(w, http.StatusNotFound, "thread not found: "+threadID)
		return nil, false
	}
	return cp, true
}

func (s *Server) handleThreadMessages(w http.ResponseWriter, r *http.Request) {
	cp, ok := s.loadThread(w, r)
	if !ok {
		return
	}

	raw, err := conversation.Marshal(cp.Messages)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "encode messages: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"thread_id":     cp.ThreadID,
		"checkpoint_id": cp.ID,
		"messages":      json.RawMessage(raw),
	}, s.logger)
}

// handleCheckpoint returns one checkpoint by id, message log included,
// so any step of a thread can be replayed.
func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid checkpoint id")
		return
	}

	cp, err := s.threads.Get(r.Context(), id)
	if errors.Is(err, checkpoint.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, "checkpoint not found: "+id.String())
		return
	}
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "load checkpoint: "+err.Error())
		return
	}

	raw, err := conversation.Marshal(cp.Messages)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "encode messages: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"checkpoint": cp.Row,
		"messages":   json.RawMessage(raw),
	}, s.logger)
}

// handleThreadTranscript renders the thread as HTML, or as markdown
// with ?format=markdown. ?reasoning=true includes tool steps.
func (s *Server) handleThreadTranscript(w http.ResponseWriter, r *http.Request) {
	cp, ok := s.loadThread(w, r)
	if !ok {
		return
	}
	opts := conversation.TranscriptOptions{Reasoning: parseBoolParam(r, "reasoning")}

	if r.URL.Query().Get("format") == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(conversation.Markdown(cp.Messages, opts)))
		return
	}

	page, err := conversation.HTML("Thread "+cp.ThreadID, cp.Messages, opts)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(page))
}
