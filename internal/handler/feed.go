package handler

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/sakif/time-estimator/internal/apperror"
	"github.com/sakif/time-estimator/internal/feed"
	"github.com/sakif/time-estimator/internal/repository"
)

// FeedHandler upgrades /ws requests and hands the connection to the hub.
type FeedHandler struct {
	hub      *feed.Hub
	session  repository.CurrentUser
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewFeedHandler accepts connections from allowedOrigins while session has
// a user. An empty list keeps gorilla's default same-origin check; "*"
// allows any origin.
func NewFeedHandler(hub *feed.Hub, session repository.CurrentUser, allowedOrigins []string, logger *slog.Logger) *FeedHandler {
	h := &FeedHandler{
		hub:     hub,
		session: session,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		}
	}
	return h
}

// Serve handles the WebSocket connection request.
//
// HTTP: GET /ws
//
// Events carry member ids, so only a signed-in client may subscribe. A
// connection that is already open keeps receiving events after sign-out:
// the redirect to login is the event it is waiting for.
func (h *FeedHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if h.session.User() == nil {
		writeError(w, h.logger, r, apperror.Unauthenticated("sign in to follow navigation"))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	h.hub.Attach(conn)
}
