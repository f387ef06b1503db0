package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gridmon/gridmon/internal/domain"
	"github.com/gridmon/gridmon/internal/query"
	"github.com/gridmon/gridmon/internal/stats"
)

// ─── Status ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": s.health.Statuses()})
}

type instanceStatus struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
	Objects int    `json:"objects"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out := make([]instanceStatus, 0)
	for _, name := range s.instanceNames() {
		inst, err := s.instance(name)
		if err != nil {
			continue
		}
		out = append(out, instanceStatus{
			Name:    name,
			Members: len(inst.Source.Members()),
			Objects: len(inst.Source.Objects()),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "running",
		"version":   s.version,
		"history":   s.history != nil,
		"instances": out,
	})
}

// ─── Cluster ────────────────────────────────────────────────────────────────

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	inst, err := s.instance(chi.URLParam(r, "instance"))
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := stats.NewSummaryProducer(inst.Source).Produce(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	inst, err := s.instance(chi.URLParam(r, "instance"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": inst.Source.Members()})
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	inst, err := s.instance(chi.URLParam(r, "instance"))
	if err != nil {
		writeError(w, err)
		return
	}
	kind, err := domain.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		writeError(w, err)
		return
	}
	size, err := intParam(q.Get("page_size"), 0)
	if err != nil {
		writeError(w, err)
		return
	}

	listing, err := stats.ListObjects(inst.Source, kind, q.Get("filter"), page, size)
	if err != nil {
		writeError(w, badRequest("%v", err))
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// ─── Statistics ─────────────────────────────────────────────────────────────

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	inst, err := s.instance(chi.URLParam(r, "instance"))
	if err != nil {
		writeError(w, err)
		return
	}
	kind, err := domain.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	timeout := inst.MemberTimeout
	if v := r.URL.Query().Get("timeout"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, badRequest("invalid timeout %q", v))
			return
		}
		timeout = d
	}

	opts := []stats.Option{stats.WithLogger(s.logger)}
	if timeout > 0 {
		opts = append(opts, stats.WithMemberTimeout(timeout))
	}
	p, err := stats.NewProducer(inst.Stats, inst.Source.Name(), kind, chi.URLParam(r, "name"), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	product, err := p.Produce(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// ─── Queries ────────────────────────────────────────────────────────────────

type queryRequest struct {
	Predicate    string `json:"predicate"`
	PartitionKey string `json:"partition_key,omitempty"`
}

type queryResponse struct {
	Kind       domain.ObjectKind `json:"kind"`
	Collection string            `json:"collection"`
	Predicate  string            `json:"predicate"`
	Count      int               `json:"count"`
	Results    []any             `json:"results"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	inst, err := s.instance(chi.URLParam(r, "instance"))
	if err != nil {
		writeError(w, err)
		return
	}
	kind, err := domain.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, err)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("invalid request body: %v", err))
		return
	}
	if req.Predicate == "" {
		writeError(w, badRequest("predicate is required"))
		return
	}
	p, err := query.Compile(req.Predicate)
	if err != nil {
		writeError(w, badRequest("%v", err))
		return
	}

	ref := domain.NewObjectRef(inst.Source.Name(), kind, chi.URLParam(r, "name"))
	if req.PartitionKey != "" {
		ref.PartitionKey = req.PartitionKey
	}

	results, err := inst.Query.Query(r.Context(), ref, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Kind:       kind,
		Collection: ref.Name,
		Predicate:  p.Source(),
		Count:      len(results),
		Results:    results,
	})
}

// ─── History ────────────────────────────────────────────────────────────────

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, domain.NewErrorMessage("history is disabled"))
		return
	}
	kind, err := domain.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), 50)
	if err != nil {
		writeError(w, err)
		return
	}
	instance := q.Get("instance")
	if instance == "" {
		s.mu.RLock()
		instance = s.defaultName
		s.mu.RUnlock()
	}

	records, err := s.history.ListProducts(instance, kind, chi.URLParam(r, "name"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instance": instance,
		"kind":     kind,
		"object":   chi.URLParam(r, "name"),
		"products": records,
	})
}

func intParam(s string, fallback int) (int, error) {
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, badRequest("invalid number %q", s)
	}
	return n, nil
}
