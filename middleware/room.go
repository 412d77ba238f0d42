package middleware

import (
	"context"
	"net/http"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/handlers"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/services"
)

// RoomMiddleware resolves the {roomId} path parameter.
//
// Runs after AuthMiddleware. An unknown room ends the request with 404;
// otherwise the room is put in the context for handlers.RoomFrom.
type RoomMiddleware struct {
	rooms services.RoomGetter
}

// NewRoomMiddleware creates the room middleware.
func NewRoomMiddleware(rooms services.RoomGetter) *RoomMiddleware {
	return &RoomMiddleware{rooms: rooms}
}

// Require loads the room named in the path.
func (m *RoomMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		roomID := r.PathValue("roomId")
		if roomID == "" {
			pkg.ErrorWithMessage(w, http.StatusBadRequest, "roomId is required")
			return
		}

		room, err := m.rooms.GetByID(r.Context(), roomID)
		if err != nil {
			pkg.Error(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), handlers.RoomContextKey, room)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
