package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nugget/helion/internal/memory"
)

// MemoryCreateRequest is the body of POST /v1/memories.
type MemoryCreateRequest struct {
	Content    string `json:"content"`
	Importance string `json:"importance,omitempty"`
}

// Defaults for POST /v1/memories/search. They differ from the
// retrieve_memory tool's defaults.
const (
	DefaultSearchTopK      = 5
	DefaultSearchThreshold = 0.75
)

// MemorySearchRequest is the body of POST /v1/memories/search.
type MemorySearchRequest struct {
	SearchText          string   `json:"search_text"`
	TopK                int      `json:"top_k,omitempty"`
	SimilarityThreshold *float32 `json:"similarity_threshold,omitempty"`
}

// requireMemories writes a 503 when no memory store is configured.
func (s *Server) requireMemories(w http.ResponseWriter) bool {
	if s.memories == nil || s.embedder == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "memory not configured")
		return false
	}
	return true
}

func (s *Server) handleMemoryCreate(w http.ResponseWriter, r *http.Request) {
	if !s.requireMemories(w) {
		return
	}

	var req MemoryCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		s.errorResponse(w, http.StatusBadRequest, "content is required")
		return
	}
	importance := strings.ToLower(strings.TrimSpace(req.Importance))
	if importance == "" {
		importance = memory.ImportanceMedium
	}
	if !memory.ValidImportance(importance) {
		s.errorResponse(w, http.StatusBadRequest, "importance must be low, medium or high")
		return
	}

	vec, err := s.embedder.Embed(r.Context(), content, false)
	if err != nil {
		s.errorResponse(w, http.StatusBadGateway, "embed: "+err.Error())
		return
	}
	m, err := s.memories.Add(r.Context(), userID(r), content, importance, vec)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "store memory: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, m, s.logger)
}

func (s *Server) handleMemoryList(w http.ResponseWriter, r *http.Request) {
	if !s.requireMemories(w) {
		return
	}

	list, err := s.memories.List(r.Context(), userID(r))
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "list memories: "+err.Error())
		return
	}
	if list == nil {
		list = []*memory.Memory{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"memories": list,
		"count":    len(list),
	}, s.logger)
}

func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireMemories(w) {
		return
	}

	var req MemorySearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	query := strings.TrimSpace(req.SearchText)
	if query == "" {
		s.errorResponse(w, http.StatusBadRequest, "search_text is required")
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultSearchTopK
	}
	threshold := float32(DefaultSearchThreshold)
	if req.SimilarityThreshold != nil {
		threshold = *req.SimilarityThreshold
	}
	if threshold < 0 || threshold > 1 {
		s.errorResponse(w, http.StatusBadRequest, "similarity_threshold must be between 0.0 and 1.0")
		return
	}

	vec, err := s.embedder.Embed(r.Context(), query, true)
	if err != nil {
		s.errorResponse(w, http.StatusBadGateway, "embed: "+err.Error())
		return
	}
	matches, err := s.memories.Search(r.Context(), vec, userID(r), threshold, topK)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "search memories: "+err.Error())
		return
	}
	if matches == nil {
		matches = []memory.Match{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"query":   query,
		"matches": matches,
		"count":   len(matches),
	}, s.logger)
}

func (s *Server) handleMemoryCount(w http.ResponseWriter, r *http.Request) {
	if !s.requireMemories(w) {
		return
	}

	n, err := s.memories.Count(r.Context(), userID(r))
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "count memories: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]int{"count": n}, s.logger)
}
