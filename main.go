// Package main is the entry point of the mic arbitration server.
//
// main only wires things together:
//  1. Config
//  2. Database (embedded migrations)
//  3. Change feed, optionally relayed over Redis
//  4. Mic bus, repositories, services
//  5. WebSocket hub and its callbacks
//  6. LiveKit permission sync
//  7. Handlers, routes, CORS
//  8. HTTP server and graceful shutdown
//
// No globals: everything is created here and passed down.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/config"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/database"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg/changefeed"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/services"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/ws"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] failed to load config: %v", err)
	}

	// `server token <userID> <username>` prints a development token signed
	// with JWT_SECRET and exits.
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := printToken(cfg, os.Args[2:]); err != nil {
			log.Fatalf("[main] %v", err)
		}
		return
	}

	log.Println("[main] mic arbitration server starting...")
	log.Printf("[main] config loaded (port=%d)", cfg.Server.Port)

	// ─── 1. Database ───
	db, err := database.New(cfg.Database.Path, database.Migrations())
	if err != nil {
		log.Fatalf("[main] failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── 2. Change Feed ───
	feed := changefeed.New()

	var relay *changefeed.RedisRelay
	if cfg.Redis.URL != "" {
		relay, err = changefeed.NewRedisRelay(cfg.Redis.URL, cfg.Redis.Channel, feed)
		if err != nil {
			log.Fatalf("[main] failed to connect change feed relay: %v", err)
		}
		feed.SetForwarder(relay)
		go relay.Run(ctx)
		log.Printf("[main] change feed relayed on redis channel %q", cfg.Redis.Channel)
	} else {
		log.Println("[main] redis not configured, change feed is process-local")
	}

	// ─── 3. Mic Bus, Repositories, Services ───
	bus := services.NewMicBus(feed)
	repos := initRepositories(db.Conn, feed)
	svcs, limiters := initServices(repos, bus, cfg)
	unwatchMemberships := services.WatchMembershipChanges(feed, svcs.Permissions)

	// ─── 4. WebSocket Hub ───
	hub := ws.NewHub(bus, svcs.Mic)
	registerHubCallbacks(hub, svcs.Mic)
	go hub.Run()

	// ─── 5. LiveKit Permission Sync ───
	var voiceSync *services.VoiceTransportSync
	if cfg.LiveKit.Enabled() {
		voiceSync = services.NewVoiceTransportSync(bus, services.NewLiveKitPermissionUpdater(cfg.LiveKit))
		go voiceSync.Run(ctx)
		log.Printf("[main] livekit permission sync enabled (%s)", cfg.LiveKit.URL)
	} else {
		log.Println("[main] livekit not configured, voice tokens disabled")
	}

	// ─── 6. Handlers & Routes ───
	h := initHandlers(svcs, hub)

	mux := http.NewServeMux()
	initRoutes(mux, h, svcs.Tokens, svcs.Room, hub)

	// ─── 7. CORS ───
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
	})

	// ─── 8. HTTP Server ───
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      corsHandler.Handler(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("[main] server listening on %s", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] server error: %v", err)
		}
	}()

	<-done
	log.Println("[main] shutting down...")

	// Connections first, so no subscription outlives the bus. Participants
	// stay in their rooms: a restart is not a disconnect.
	hub.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] forced shutdown: %v", err)
	}

	cancel()
	if voiceSync != nil {
		voiceSync.Stop()
	}
	limiters.RaiseHand.Stop()
	unwatchMemberships()
	svcs.Speakers.Close()
	bus.Close()
	if relay != nil {
		if err := relay.Close(); err != nil {
			log.Printf("[main] failed to close relay: %v", err)
		}
	}

	log.Println("[main] server stopped gracefully")
}

func printToken(cfg *config.Config, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: server token <userID> <username>")
	}
	tokens := services.NewTokenService(cfg.JWT.Secret)
	token, err := tokens.Issue(args[0], args[1], 24*time.Hour)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Println(token)
	return nil
}
