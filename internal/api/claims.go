package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/claimd/internal/claim"
)

// tokenRequest is the body of validate and claim requests.
type tokenRequest struct {
	Token string `json:"token"`
}

// validateResponse is the body returned by validate.
type validateResponse struct {
	Valid bool `json:"valid"`
}

// decodeJSON decodes the request body into v, writing a 400 or 413 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return false
		}
		writeBadRequest(w, "invalid JSON body")
		return false
	}
	return true
}

// handleIssue generates a claim token. Nothing is stored until the device
// is registered.
func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request) {
	tok, err := s.service.Issue(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tok)
}

// handleRegister persists an unclaimed device.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req claim.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	rec, err := s.service.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// handleValidate reports whether a token belongs to a registered device.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	valid, err := s.service.Validate(r.Context(), req.Token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: valid})
}

// handleClaim claims the device behind a token from a JSON body.
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.claim(w, r, req.Token)
}

// handleClaimLink claims via the issued claim URL (?token=...).
func (s *Server) handleClaimLink(w http.ResponseWriter, r *http.Request) {
	s.claim(w, r, r.URL.Query().Get("token"))
}

func (s *Server) claim(w http.ResponseWriter, r *http.Request, raw string) {
	rec, err := s.service.Claim(r.Context(), raw)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleListDevices returns one page of registered devices, newest first.
//
// Query parameters: claimed (true/false), limit, offset.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter claim.ListFilter

	if raw := q.Get("claimed"); raw != "" {
		claimed, err := strconv.ParseBool(raw)
		if err != nil {
			writeBadRequest(w, "claimed must be true or false")
			return
		}
		filter.Claimed = &claimed
	}

	var ok bool
	if filter.Limit, ok = queryInt(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = queryInt(w, q.Get("offset"), "offset"); !ok {
		return
	}

	page, err := s.service.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// queryInt parses an optional non-negative integer parameter.
func queryInt(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeBadRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
