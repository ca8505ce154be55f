package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/engine"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/segment"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/store"
)

type listResponse struct {
	Segments []store.Segment `json:"segments"`
	Count    int             `json:"count"`
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

type membersResponse struct {
	SegmentID  string            `json:"segmentId"`
	Members    []string          `json:"members"`
	Count      int               `json:"count"`
	Total      int               `json:"total"`
	Mismatches []engine.Mismatch `json:"mismatches,omitempty"`
}

// handleListSegments handles GET /v1/segments?search=&tag=&activeOnly=
func (s *Server) handleListSegments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := segment.ListFilter{
		Search: q.Get("search"),
		Tag:    q.Get("tag"),
	}
	if raw := q.Get("activeOnly"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			ValidationError(w, r, "invalid query parameter", map[string]string{"activeOnly": "must be true or false"})
			return
		}
		filter.ActiveOnly = active
	}

	segs, err := s.reg.List(r.Context(), filter)
	if err != nil {
		RegistryError(w, r, err)
		return
	}
	writeJSONWithETag(w, r, listResponse{Segments: segs, Count: len(segs)})
}

// handleCreateSegment handles POST /v1/segments
func (s *Server) handleCreateSegment(w http.ResponseWriter, r *http.Request) {
	var req segment.CreateParams
	if !decodeJSON(w, r, &req) {
		return
	}
	seg, err := s.reg.Create(r.Context(), req)
	if err != nil {
		RegistryError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/segments/"+seg.ID)
	writeJSON(w, http.StatusCreated, seg)
}

// handleGetSegment handles GET /v1/segments/{id}
func (s *Server) handleGetSegment(w http.ResponseWriter, r *http.Request) {
	seg, err := s.reg.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seg)
}

// handleUpdateSegment handles PATCH /v1/segments/{id}
func (s *Server) handleUpdateSegment(w http.ResponseWriter, r *http.Request) {
	var patch segment.Patch
	if !decodeJSON(w, r, &patch) {
		return
	}
	seg, err := s.reg.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		RegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seg)
}

// handleDeleteSegment handles DELETE /v1/segments/{id}
func (s *Server) handleDeleteSegment(w http.ResponseWriter, r *http.Request) {
	if err := s.reg.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		RegistryError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDuplicateSegment handles POST /v1/segments/{id}/duplicate
func (s *Server) handleDuplicateSegment(w http.ResponseWriter, r *http.Request) {
	seg, err := s.reg.Duplicate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RegistryError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/segments/"+seg.ID)
	writeJSON(w, http.StatusCreated, seg)
}

// handleSetActive handles PUT /v1/segments/{id}/active
func (s *Server) handleSetActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Active == nil {
		ValidationError(w, r, "active is required", map[string]string{"active": "Active is required"})
		return
	}
	seg, err := s.reg.SetActive(r.Context(), chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		RegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seg)
}

// handleRecount handles POST /v1/segments/{id}/recount
func (s *Server) handleRecount(w http.ResponseWriter, r *http.Request) {
	seg, err := s.reg.Recount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seg)
}

// handleMembers handles GET /v1/segments/{id}/members
func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.reg.Members(r.Context(), id)
	if err != nil {
		RegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, membersResponse{
		SegmentID:  id,
		Members:    res.Members,
		Count:      res.Count(),
		Total:      res.Total,
		Mismatches: res.Mismatches,
	})
}
