package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	ngerrors "github.com/notegraph/notegraph/internal/errors"
	"github.com/notegraph/notegraph/internal/search"
	"github.com/notegraph/notegraph/internal/store"
	"github.com/notegraph/notegraph/internal/synthesis"
	"github.com/notegraph/notegraph/internal/workflow"
)

// answerRelatedCap bounds the related-paths list on /answer.
const answerRelatedCap = 5

// parseSearchRequest maps query parameters onto a retrieval request.
func parseSearchRequest(r *http.Request) (search.Request, error) {
	q := r.URL.Query()

	req := search.Request{
		Query:          strings.TrimSpace(q.Get("q")),
		Since:          q.Get("since"),
		Until:          q.Get("until"),
		PathPrefix:     q.Get("path_prefix"),
		RequireAllTags: parseBool(q.Get("require_all_tags")),
		PreferSemantic: parseBool(q.Get("prefer_semantic")),
		PreferGraph:    parseBool(q.Get("prefer_graph")),
	}
	if req.Query == "" {
		return req, ngerrors.InvalidInput("query parameter q is required")
	}

	if raw := q.Get("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil || k < 1 {
			return req, ngerrors.InvalidInput("k must be a positive integer")
		}
		req.K = k
	}

	req.Tags = splitTags(q.Get("tags"))

	switch field := q.Get("date_field"); field {
	case "", string(store.DateFieldAuto):
		req.DateField = store.DateFieldAuto
	case string(store.DateFieldCreated):
		req.DateField = store.DateFieldCreated
	case string(store.DateFieldModified):
		req.DateField = store.DateFieldModified
	default:
		return req, ngerrors.InvalidInput("date_field must be auto, created, or modified")
	}

	switch sort := q.Get("sort"); sort {
	case "", search.SortScore, search.SortDateDesc, search.SortDateAsc:
		req.Sort = sort
	default:
		return req, ngerrors.InvalidInput("sort must be score, date_desc, or date_asc")
	}
	return req, nil
}

// splitTags splits a tag list on commas and semicolons, dropping empties.
func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func parseBool(raw string) bool {
	b, err := strconv.ParseBool(raw)
	return err == nil && b
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.searcher.Search(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":            resp.Query,
		"query_type":       resp.Class,
		"strategy":         resp.Strategy,
		"applied_filters":  resp.AppliedFilters,
		"total_candidates": resp.TotalCandidates,
		"results":          resp.Results,
		"generated_at":     resp.GeneratedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	question := strings.TrimSpace(q.Get("q"))
	if question == "" {
		writeError(w, ngerrors.InvalidInput("query parameter q is required"))
		return
	}

	k := 0
	if raw := q.Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, ngerrors.InvalidInput("k must be a positive integer"))
			return
		}
		k = n
	}

	out, err := s.assembler.AnswerQuestion(r.Context(), question, k)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"answer":     answerBullets(out.Content),
		"citations":  citations(out.Sources),
		"related":    relatedPaths(out.Sources),
		"confidence": out.Confidence,
	})
}

// answerBullets splits the assembled markdown list back into bullet strings.
func answerBullets(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		if b, ok := strings.CutPrefix(line, "- "); ok {
			out = append(out, b)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// citations formats the bullet-contributing sources as path#heading refs.
func citations(sources []synthesis.Source) []map[string]string {
	out := make([]map[string]string, 0, len(sources))
	for i, src := range sources {
		if i == synthesis.AnswerSourceCount {
			break
		}
		out = append(out, map[string]string{"ref": src.Ref()})
	}
	return out
}

// relatedPaths lists distinct source paths beyond the cited ones.
func relatedPaths(sources []synthesis.Source) []string {
	out := []string{}
	seen := map[string]bool{}
	for i, src := range sources {
		if i < synthesis.AnswerSourceCount || seen[src.Path] {
			continue
		}
		seen[src.Path] = true
		out = append(out, src.Path)
		if len(out) == answerRelatedCap {
			break
		}
	}
	return out
}

func (s *Server) handleFacets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := time.Now().UTC()

	var since, until *time.Time
	if raw := q.Get("since"); raw != "" {
		ts, err := search.ParseTimeSpec(raw, now)
		if err != nil {
			writeError(w, err)
			return
		}
		since = &ts
	}
	if raw := q.Get("until"); raw != "" {
		ts, err := search.ParseTimeSpec(raw, now)
		if err != nil {
			writeError(w, err)
			return
		}
		until = &ts
	}

	facets, err := s.store.FetchFacets(r.Context(), since, until, q.Get("path_prefix"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"top_tags":       facets.TopTags,
		"time_histogram": facets.TimeHistogram,
	})
}

// pendingView is the JSON shape of one pending link.
type pendingView struct {
	ID           string  `json:"id"`
	SourceID     string  `json:"source_id"`
	TargetID     string  `json:"target_id"`
	Relationship string  `json:"relationship"`
	Strength     float64 `json:"strength"`
	Rationale    string  `json:"rationale"`
	Status       string  `json:"status"`
}

func (s *Server) handlePendingList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = store.PendingStatusPending
	}

	links, err := s.store.ListPendingLinks(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]pendingView, 0, len(links))
	for _, p := range links {
		views = append(views, pendingView{
			ID:           p.ID,
			SourceID:     p.SourceID,
			TargetID:     p.TargetID,
			Relationship: p.Relationship,
			Strength:     p.Strength,
			Rationale:    p.Rationale,
			Status:       p.Status,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending_links": views})
}

func (s *Server) handlePendingApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.linker.ApprovePending(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": store.PendingStatusApproved})
}

func (s *Server) handlePendingReject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.linker.RejectPending(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": store.PendingStatusRejected})
}

// workflowCreateRequest is the POST /workflows body.
type workflowCreateRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Steps       []workflow.StepSpec `json:"steps"`
	CreatedBy   string              `json:"created_by"`
}

func (s *Server) handleWorkflowCreate(w http.ResponseWriter, r *http.Request) {
	var body workflowCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, ngerrors.Wrap(ngerrors.KindInvalidInput, "decode workflow body", err))
		return
	}

	id, err := s.workflows.Create(r.Context(), body.Name, body.Description, body.Steps, body.CreatedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "status": workflow.StatusPending})
}

func (s *Server) handleWorkflowList(w http.ResponseWriter, r *http.Request) {
	workflows, err := s.workflows.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]map[string]any, 0, len(workflows))
	for _, wf := range workflows {
		views = append(views, map[string]any{
			"id":         wf.ID,
			"name":       wf.Name,
			"status":     wf.Status,
			"created_at": wf.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": views})
}

func (s *Server) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.workflows.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflow": status})
}

func (s *Server) handleWorkflowStart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.workflows.Start(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": workflow.StatusRunning})
}

func (s *Server) handleWorkflowCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.workflows.Cancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": workflow.StatusCancelled})
}
