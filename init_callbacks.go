// Package main: hub callback wire-up.
//
// The hub lives in ws and knows nothing of services; main connects them.
// Callbacks run in their own goroutine, off the hub loop.
package main

import (
	"context"
	"log"
	"time"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/services"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/ws"
)

// disconnectCleanupTimeout bounds leaving every room after a disconnect.
const disconnectCleanupTimeout = 15 * time.Second

// registerHubCallbacks sets the hub's callbacks.
func registerHubCallbacks(hub *ws.Hub, mic services.MicService) {
	// A user whose last connection dropped leaves every room, releasing
	// their mic and their place in the queue.
	hub.OnUserFullyDisconnected(func(userID string) {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectCleanupTimeout)
		defer cancel()

		// reconnected in the meantime (page reload): keep them in
		if hub.IsOnline(userID) {
			return
		}
		mic.LeaveAll(ctx, userID)
		log.Printf("[ws] cleaned up rooms of disconnected user %s", userID)
	})
}
