// Package main: handler layer setup.
package main

import (
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/handlers"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/ws"
)

// Handlers holds every handler instance.
type Handlers struct {
	Room   *handlers.RoomHandler
	Mic    *handlers.MicHandler
	Agency *handlers.AgencyHandler
	Voice  *handlers.VoiceHandler
	WS     *ws.Handler
}

// initHandlers creates the handlers from the services.
func initHandlers(svcs *Services, hub *ws.Hub) *Handlers {
	return &Handlers{
		Room:   handlers.NewRoomHandler(svcs.Room, svcs.Mic),
		Mic:    handlers.NewMicHandler(svcs.Mic),
		Agency: handlers.NewAgencyHandler(svcs.Agency),
		Voice:  handlers.NewVoiceHandler(svcs.Voice),
		WS:     ws.NewHandler(hub, svcs.Tokens),
	}
}
