package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/time-estimator/internal/router"
	"github.com/sakif/time-estimator/internal/service"
)

// TeamHandler serves the my-team page.
//
// By the time a request gets here the navigation middleware has already
// checked that someone is signed in; the service checks it again, since a
// session can end between the two.
type TeamHandler struct {
	team   *service.TeamService
	logger *slog.Logger
}

func NewTeamHandler(team *service.TeamService, logger *slog.Logger) *TeamHandler {
	return &TeamHandler{team: team, logger: logger}
}

// HandleHome sends the bare layout route to its default page.
//
// HTTP: GET /
func (h *TeamHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, router.To(router.MyTeam).Path(), http.StatusSeeOther)
}

// HandleOverview returns the user's members and their history.
//
// HTTP: GET /mi-equipo
//
// RESPONSE FORMAT:
//
//	{"members": [{"id":"...","name":"Ana","authorId":"..."}],
//	 "history": [{"id":"...","taskDificulty":3, ... ,"createdAt":"..."}]}
func (h *TeamHandler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.team.Overview(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

type createMemberRequest struct {
	Name string `json:"name"`
}

// HandleCreateMember adds a member to the user's team.
//
// HTTP: POST /mi-equipo/members
// REQUEST BODY: {"name": "Ana"}
func (h *TeamHandler) HandleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req createMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	member, err := h.team.CreateMember(r.Context(), req.Name)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

// HandleDeleteMember removes a member.
//
// HTTP: DELETE /mi-equipo/members/{id}
func (h *TeamHandler) HandleDeleteMember(w http.ResponseWriter, r *http.Request) {
	if err := h.team.DeleteMember(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
