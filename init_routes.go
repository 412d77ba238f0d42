// Package main: HTTP route registration.
//
// Middleware chain helpers:
//   - auth: bearer token
//   - authRoom: auth + {roomId} must exist
package main

import (
	"net/http"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/middleware"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/services"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/ws"
)

// initRoutes wires the middleware chains and every endpoint.
func initRoutes(
	mux *http.ServeMux,
	h *Handlers,
	tokens services.TokenService,
	rooms services.RoomGetter,
	hub *ws.Hub,
) {
	// ─── Middleware ───
	authMw := middleware.NewAuthMiddleware(tokens)
	roomMw := middleware.NewRoomMiddleware(rooms)

	auth := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(handler)
	}
	authRoom := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(roomMw.Require(handler))
	}

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		pkg.JSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"connections": hub.ConnectionCount(),
		})
	})

	// ─── Rooms ───
	mux.Handle("POST /api/rooms", auth(h.Room.Create))
	mux.Handle("GET /api/rooms/{roomId}", authRoom(h.Room.Get))
	mux.Handle("POST /api/rooms/{roomId}/join", authRoom(h.Room.Join))
	mux.Handle("POST /api/rooms/{roomId}/leave", authRoom(h.Room.Leave))
	mux.Handle("GET /api/rooms/{roomId}/participants", authRoom(h.Room.Participants))
	mux.Handle("POST /api/rooms/{roomId}/bans", authRoom(h.Room.Ban))
	mux.Handle("DELETE /api/rooms/{roomId}/bans/{userId}", authRoom(h.Room.Unban))

	// ─── Mic ───
	mux.Handle("GET /api/rooms/{roomId}/mic/queue", authRoom(h.Mic.Queue))
	mux.Handle("GET /api/rooms/{roomId}/mic/speakers", authRoom(h.Mic.Speakers))
	mux.Handle("POST /api/rooms/{roomId}/mic/raise", authRoom(h.Mic.Raise))
	mux.Handle("POST /api/rooms/{roomId}/mic/cancel", authRoom(h.Mic.Cancel))
	mux.Handle("POST /api/rooms/{roomId}/mic/grant", authRoom(h.Mic.Grant))
	mux.Handle("POST /api/rooms/{roomId}/mic/grant-next", authRoom(h.Mic.GrantNext))
	mux.Handle("POST /api/rooms/{roomId}/mic/deny", authRoom(h.Mic.Deny))
	mux.Handle("POST /api/rooms/{roomId}/mic/revoke", authRoom(h.Mic.Revoke))
	mux.Handle("GET /api/rooms/{roomId}/role", authRoom(h.Mic.Role))

	// ─── Voice ───
	mux.Handle("POST /api/rooms/{roomId}/voice/token", authRoom(h.Voice.Token))

	// ─── Agencies ───
	mux.Handle("POST /api/agencies", auth(h.Agency.Create))
	mux.Handle("PUT /api/agencies/{agencyId}/members/{userId}", auth(h.Agency.SetMember))
	mux.Handle("DELETE /api/agencies/{agencyId}/members/{userId}", auth(h.Agency.RemoveMember))

	// Websocket: browsers can not send headers on the handshake, the
	// handler checks ?token= itself.
	mux.HandleFunc("GET /ws", h.WS.HandleConnection)
}
