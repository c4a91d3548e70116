package handlers

import (
	"net/http"

	"github.com/DiFlector/kgb-pulse/services"
	"github.com/go-chi/chi/v5"
)

type ProtocolHandler struct {
	protocolService services.ProtocolService
}

func NewProtocolHandler(ps services.ProtocolService) *ProtocolHandler {
	return &ProtocolHandler{protocolService: ps}
}

// BuildHandler обрабатывает POST /events/{eventID}/protocols
func (h *ProtocolHandler) BuildHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	report, err := h.protocolService.BuildEventProtocols(r.Context(), eventID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"report": report}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListByEventHandler обрабатывает GET /events/{eventID}/protocols
func (h *ProtocolHandler) ListByEventHandler(w http.ResponseWriter, r *http.Request) {
	eventID, err := getIDFromURL(r, "eventID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	protocols, err := h.protocolService.ListEventProtocols(r.Context(), eventID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"protocols": protocols}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByKeyHandler обрабатывает GET /protocols/{key}
func (h *ProtocolHandler) GetByKeyHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		badRequestResponse(w, r, errMissingProtocolKey)
		return
	}

	protocol, err := h.protocolService.GetProtocol(r.Context(), key)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"protocol": protocol}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UpdateLaneHandler обрабатывает PATCH /protocols/{key}/lanes/{lane}
func (h *ProtocolHandler) UpdateLaneHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		badRequestResponse(w, r, errMissingProtocolKey)
		return
	}
	lane, err := getIDFromURL(r, "lane")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		Field    string      `json:"field"`
		Value    interface{} `json:"value"`
		Override bool        `json:"override"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	protocol, err := h.protocolService.UpdateLaneField(r.Context(), key, lane, input.Field, input.Value, input.Override)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"protocol": protocol}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
