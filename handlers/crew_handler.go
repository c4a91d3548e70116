package handlers

import (
	"errors"
	"net/http"

	"github.com/DiFlector/kgb-pulse/services"
)

type CrewHandler struct {
	crewService services.CrewService
}

func NewCrewHandler(cs services.CrewService) *CrewHandler {
	return &CrewHandler{crewService: cs}
}

// ListByEventHandler обрабатывает GET /events/{eventID}/crews
func (h *CrewHandler) ListByEventHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	crews, err := h.crewService.ListByEvent(r.Context(), eventID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"crews": crews}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// MergeHandler обрабатывает POST /crews/merge
func (h *CrewHandler) MergeHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		TargetID  int   `json:"target_id"`
		SourceIDs []int `json:"source_ids"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.TargetID <= 0 || len(input.SourceIDs) == 0 {
		badRequestResponse(w, r, errors.New("target_id and at least one source_id are required"))
		return
	}

	crew, err := h.crewService.Merge(r.Context(), input.TargetID, input.SourceIDs)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"crew": crew}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RemoveMemberHandler обрабатывает DELETE /registrations/{registrationID}/crew
func (h *CrewHandler) RemoveMemberHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "registrationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.crewService.RemoveMember(r.Context(), id); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
