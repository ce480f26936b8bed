package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/time-estimator/internal/apperror"
	"github.com/sakif/time-estimator/internal/service"
)

// MemberHandler serves the member-detail page and its history.
type MemberHandler struct {
	members *service.MemberService
	logger  *slog.Logger
}

func NewMemberHandler(members *service.MemberService, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{members: members, logger: logger}
}

// HandleDetail returns the member, its history (newest first) and stats.
//
// HTTP: GET /detalle-de-miembro/{id}
func (h *MemberHandler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.members.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type addRegistryRequest struct {
	TaskDificulty                 int `json:"taskDificulty"`
	TaskCompletitionTimeInMinutes int `json:"taskCompletitionTimeInMinutes"`
}

// HandleAddRegistry records a finished task for the member.
//
// HTTP: POST /detalle-de-miembro/{id}/history
// REQUEST BODY: {"taskDificulty": 3, "taskCompletitionTimeInMinutes": 90}
//
// The response is the stored registry, including its id and the createdAt
// the store assigned.
func (h *MemberHandler) HandleAddRegistry(w http.ResponseWriter, r *http.Request) {
	var req addRegistryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	registry, err := h.members.AddRegistry(r.Context(), chi.URLParam(r, "id"),
		req.TaskDificulty, req.TaskCompletitionTimeInMinutes)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registry)
}

// HandleDeleteRegistry removes one registry of the member.
//
// HTTP: DELETE /detalle-de-miembro/{id}/history/{registryID}
func (h *MemberHandler) HandleDeleteRegistry(w http.ResponseWriter, r *http.Request) {
	err := h.members.DeleteRegistry(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "registryID"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEstimate predicts the member's time for a task.
//
// HTTP: GET /detalle-de-miembro/{id}/estimate?difficulty=3
func (h *MemberHandler) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	difficulty, err := strconv.Atoi(r.URL.Query().Get("difficulty"))
	if err != nil {
		writeError(w, h.logger, r, apperror.ValidationFailed("difficulty", "difficulty must be a whole number"))
		return
	}

	estimate, err := h.members.Estimate(r.Context(), chi.URLParam(r, "id"), difficulty)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}
