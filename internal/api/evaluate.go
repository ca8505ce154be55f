package api

import (
	"net/http"
	"time"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/engine"
	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/rules"
)

// evaluateRequest represents the request body for POST /v1/evaluate
type evaluateRequest struct {
	Filter rules.ConditionSet `json:"filter"`
	Record map[string]any     `json:"record"`
}

// evaluateResponse represents the response for /v1/evaluate
type evaluateResponse struct {
	Matched     bool              `json:"matched"`
	Mismatches  []engine.Mismatch `json:"mismatches,omitempty"`
	EvaluatedAt string            `json:"evaluatedAt"`
}

type fieldInfo struct {
	rules.FieldDescriptor
	Operators []rules.Operator `json:"operators"`
}

type fieldsResponse struct {
	Fields []fieldInfo `json:"fields"`
}

// handleFields handles GET /v1/fields
func (s *Server) handleFields(w http.ResponseWriter, _ *http.Request) {
	descs := s.reg.Fields().Fields()
	out := make([]fieldInfo, 0, len(descs))
	for _, d := range descs {
		out = append(out, fieldInfo{FieldDescriptor: d, Operators: d.AllowedOperators()})
	}
	writeJSON(w, http.StatusOK, fieldsResponse{Fields: out})
}

// handleEvaluate handles POST /v1/evaluate. The filter is validated strictly
// before the record is tested so rule authors see problems up front.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Record == nil {
		ValidationError(w, r, "record is required", map[string]string{"record": "Record is required"})
		return
	}
	if err := s.reg.Fields().Validate(req.Filter); err != nil {
		errResp := NewErrorResponse(http.StatusBadRequest, ErrCodeInvalidFilter, err.Error()).
			WithFields(map[string]string{"filter": err.Error()})
		writeErrorResponse(w, r, http.StatusBadRequest, errResp)
		return
	}

	matched, mismatches := s.reg.Evaluator().EvaluateDetailed(engine.Record(req.Record), req.Filter)
	writeJSON(w, http.StatusOK, evaluateResponse{
		Matched:     matched,
		Mismatches:  mismatches,
		EvaluatedAt: time.Now().UTC().Format(time.RFC3339),
	})
}
