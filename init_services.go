// Package main: service layer setup.
//
// Order matters: the permission resolver and the speaker cache come before
// the mic facade, which the room service then wraps.
package main

import (
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/config"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg/ratelimit"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/services"
)

// Services holds every service instance.
type Services struct {
	Tokens      services.TokenService
	Permissions services.PermissionService
	Speakers    services.SpeakerCache
	Mic         services.MicService
	Room        services.RoomService
	Agency      services.AgencyService
	Voice       services.VoiceService
}

// RateLimiters holds the limiters, so main can stop their cleanup loops.
type RateLimiters struct {
	RaiseHand *ratelimit.CooldownLimiter
}

// initServices creates the services. bus feeds the speaker cache.
func initServices(repos *Repositories, bus services.MicBus, cfg *config.Config) (*Services, *RateLimiters) {
	limiters := &RateLimiters{
		RaiseHand: ratelimit.NewCooldownLimiter(cfg.Mic.RaiseHandLimit, cfg.Mic.RaiseHandWindow, cfg.Mic.RaiseHandCooldown),
	}

	perms := services.NewPermissionService(repos.Agency, cfg.Mic.RoleCacheTTL)
	speakers := services.NewSpeakerCache(repos.Participant, bus, cfg.Mic.SpeakerCacheRooms)

	mic := services.NewMicService(
		repos.Room,
		repos.Agency,
		repos.Vip,
		repos.Participant,
		perms,
		speakers,
		limiters.RaiseHand,
	)

	return &Services{
		Tokens:      services.NewTokenService(cfg.JWT.Secret),
		Permissions: perms,
		Speakers:    speakers,
		Mic:         mic,
		Room:        services.NewRoomService(repos.Room, repos.Agency, repos.RoomBan, perms, mic),
		Agency:      services.NewAgencyService(repos.Agency, perms),
		Voice:       services.NewVoiceService(repos.Participant, cfg.LiveKit),
	}, limiters
}
