// Package config loads the application configuration from environment
// variables. A .env file is loaded first when present (development).
//
// Each sub-struct covers a single concern so that constructors can take only
// the slice of configuration they need (e.g. NewVoiceService takes LiveKitConfig).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every configuration value of the server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	LiveKit  LiveKitConfig
	Redis    RedisConfig
	Mic      MicConfig
}

// ServerConfig, HTTP server settings.
type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

// DatabaseConfig, SQLite settings.
type DatabaseConfig struct {
	Path string // e.g. ./data/rooms.db
}

// JWTConfig, identity provider settings. Tokens are issued elsewhere;
// this server only verifies them.
type JWTConfig struct {
	Secret string
}

// LiveKitConfig, LiveKit SFU settings. An empty APIKey disables token
// issuance and live permission sync.
type LiveKitConfig struct {
	URL       string // e.g. ws://localhost:7880
	APIKey    string
	APISecret string
}

// Enabled reports whether LiveKit credentials were provided.
func (c LiveKitConfig) Enabled() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// RedisConfig, change feed relay settings. An empty URL keeps the feed
// process-local (single instance deploy).
type RedisConfig struct {
	URL     string
	Channel string
}

// MicConfig, mic arbitration tuning.
type MicConfig struct {
	RoleCacheTTL      time.Duration // membership lookups cache lifetime
	SpeakerCacheRooms int           // max rooms kept in the speaker cache
	RaiseHandLimit    int           // raises allowed per window
	RaiseHandWindow   time.Duration
	RaiseHandCooldown time.Duration
}

// Load builds a Config from the environment.
func Load() (*Config, error) {
	// Missing .env is not an error; production uses real env vars.
	_ = godotenv.Load()

	port, err := getInt("SERVER_PORT", 9090)
	if err != nil {
		return nil, err
	}

	roleTTL, err := getInt("ROLE_CACHE_TTL_SECONDS", 30)
	if err != nil {
		return nil, err
	}

	speakerRooms, err := getInt("SPEAKER_CACHE_ROOMS", 1024)
	if err != nil {
		return nil, err
	}
	if speakerRooms <= 0 {
		return nil, fmt.Errorf("invalid SPEAKER_CACHE_ROOMS: must be positive")
	}

	raiseLimit, err := getInt("RAISE_HAND_LIMIT", 5)
	if err != nil {
		return nil, err
	}

	raiseWindow, err := getInt("RAISE_HAND_WINDOW_SECONDS", 10)
	if err != nil {
		return nil, err
	}

	raiseCooldown, err := getInt("RAISE_HAND_COOLDOWN_SECONDS", 30)
	if err != nil {
		return nil, err
	}

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        port,
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./data/rooms.db"),
		},
		JWT: JWTConfig{
			Secret: jwtSecret,
		},
		LiveKit: LiveKitConfig{
			URL:       getEnv("LIVEKIT_URL", "ws://localhost:7880"),
			APIKey:    getEnv("LIVEKIT_API_KEY", ""),
			APISecret: getEnv("LIVEKIT_API_SECRET", ""),
		},
		Redis: RedisConfig{
			URL:     getEnv("REDIS_URL", ""),
			Channel: getEnv("REDIS_FEED_CHANNEL", "mic:changes"),
		},
		Mic: MicConfig{
			RoleCacheTTL:      time.Duration(roleTTL) * time.Second,
			SpeakerCacheRooms: speakerRooms,
			RaiseHandLimit:    raiseLimit,
			RaiseHandWindow:   time.Duration(raiseWindow) * time.Second,
			RaiseHandCooldown: time.Duration(raiseCooldown) * time.Second,
		},
	}

	return cfg, nil
}

// Addr returns the listen address, e.g. "0.0.0.0:9090".
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv reads an environment variable, falling back when unset.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
