package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/config"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/database"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/handlers"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/middleware"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg/changefeed"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/repository"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/services"
)

type api struct {
	t      *testing.T
	mux    *http.ServeMux
	tokens services.TokenService
}

func newAPI(t *testing.T) *api {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "api.db"), database.Migrations())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	feed := changefeed.New()
	bus := services.NewMicBus(feed)
	t.Cleanup(bus.Close)

	rooms := repository.NewSQLiteRoomRepo(db.Conn)
	agencies := repository.NewSQLiteAgencyRepo(db.Conn, feed)
	participants := repository.NewSQLiteParticipantRepo(db.Conn, feed)
	perms := services.NewPermissionService(agencies, time.Minute)
	speakers := services.NewSpeakerCache(participants, bus, 16)
	t.Cleanup(speakers.Close)

	mic := services.NewMicService(rooms, agencies, repository.NewSQLiteVipRepo(db.Conn), participants, perms, speakers, nil)
	roomSvc := services.NewRoomService(rooms, agencies, repository.NewSQLiteRoomBanRepo(db.Conn), perms, mic)
	agencySvc := services.NewAgencyService(agencies, perms)
	tokens := services.NewTokenService("test-secret")

	roomH := handlers.NewRoomHandler(roomSvc, mic)
	micH := handlers.NewMicHandler(mic)
	agencyH := handlers.NewAgencyHandler(agencySvc)
	voiceH := handlers.NewVoiceHandler(services.NewVoiceService(participants, config.LiveKitConfig{}))

	authMw := middleware.NewAuthMiddleware(tokens)
	roomMw := middleware.NewRoomMiddleware(rooms)
	auth := func(h http.HandlerFunc) http.Handler { return authMw.Require(h) }
	authRoom := func(h http.HandlerFunc) http.Handler { return authMw.Require(roomMw.Require(h)) }

	mux := http.NewServeMux()
	mux.Handle("POST /api/rooms", auth(roomH.Create))
	mux.Handle("GET /api/rooms/{roomId}", authRoom(roomH.Get))
	mux.Handle("POST /api/rooms/{roomId}/join", authRoom(roomH.Join))
	mux.Handle("POST /api/rooms/{roomId}/leave", authRoom(roomH.Leave))
	mux.Handle("GET /api/rooms/{roomId}/participants", authRoom(roomH.Participants))
	mux.Handle("POST /api/rooms/{roomId}/bans", authRoom(roomH.Ban))
	mux.Handle("POST /api/rooms/{roomId}/mic/raise", authRoom(micH.Raise))
	mux.Handle("POST /api/rooms/{roomId}/mic/grant", authRoom(micH.Grant))
	mux.Handle("GET /api/rooms/{roomId}/mic/queue", authRoom(micH.Queue))
	mux.Handle("GET /api/rooms/{roomId}/mic/speakers", authRoom(micH.Speakers))
	mux.Handle("GET /api/rooms/{roomId}/role", authRoom(micH.Role))
	mux.Handle("POST /api/rooms/{roomId}/voice/token", authRoom(voiceH.Token))
	mux.Handle("POST /api/agencies", auth(agencyH.Create))
	mux.Handle("PUT /api/agencies/{agencyId}/members/{userId}", auth(agencyH.SetMember))

	return &api{t: t, mux: mux, tokens: tokens}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (a *api) do(method, path, userID string, body any) (int, envelope) {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		token, err := a.tokens.Issue(userID, userID, time.Hour)
		require.NoError(a.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	a.mux.ServeHTTP(rec, req)

	var env envelope
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec.Code, env
}

func (a *api) decode(env envelope, v any) {
	a.t.Helper()
	require.NoError(a.t, json.Unmarshal(env.Data, v))
}

func TestMicFlowOverHTTP(t *testing.T) {
	a := newAPI(t)

	code, env := a.do(http.MethodPost, "/api/agencies", "boss", map[string]string{"name": "Stars"})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var agency struct{ ID string }
	a.decode(env, &agency)

	code, env = a.do(http.MethodPut, "/api/agencies/"+agency.ID+"/members/host", "boss", map[string]string{"role": "host"})
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = a.do(http.MethodPost, "/api/rooms", "boss", map[string]any{"name": "Evening", "agency_id": agency.ID})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var room struct{ ID string }
	a.decode(env, &room)
	base := "/api/rooms/" + room.ID

	code, _ = a.do(http.MethodPost, base+"/mic/raise", "u1", nil)
	assert.Equal(t, http.StatusForbidden, code, "not in room yet")

	code, _ = a.do(http.MethodPost, base+"/join", "u1", nil)
	require.Equal(t, http.StatusOK, code)

	code, env = a.do(http.MethodPost, base+"/mic/raise", "u1", nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var p struct {
		MicStatus  string `json:"mic_status"`
		HandRaised bool   `json:"hand_raised"`
	}
	a.decode(env, &p)
	assert.Equal(t, "requested", p.MicStatus)
	assert.True(t, p.HandRaised)

	code, env = a.do(http.MethodPost, base+"/mic/grant", "u1", map[string]string{"user_id": "u1"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.False(t, env.Success)

	code, env = a.do(http.MethodPost, base+"/mic/grant", "host", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = a.do(http.MethodPost, base+"/mic/grant", "host", map[string]string{"user_id": "u1"})
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = a.do(http.MethodGet, base+"/mic/speakers", "u2", nil)
	require.Equal(t, http.StatusOK, code)
	var speakers []struct {
		UserID string `json:"user_id"`
	}
	a.decode(env, &speakers)
	require.Len(t, speakers, 1)
	assert.Equal(t, "u1", speakers[0].UserID)

	code, env = a.do(http.MethodGet, base+"/role", "host", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"is_authority":true`)
}

func TestErrorsOverHTTP(t *testing.T) {
	a := newAPI(t)

	code, env := a.do(http.MethodGet, "/api/rooms/missing", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)

	code, _ = a.do(http.MethodGet, "/api/rooms/missing", "u1", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = a.do(http.MethodPost, "/api/rooms", "u1", map[string]string{"name": "Open"})
	require.Equal(t, http.StatusCreated, code)
	var room struct{ ID string }
	a.decode(env, &room)
	base := "/api/rooms/" + room.ID

	code, _ = a.do(http.MethodPost, base+"/join", "u2", nil)
	require.Equal(t, http.StatusOK, code)

	code, env = a.do(http.MethodPost, base+"/bans", "u1", map[string]string{"user_id": "u2"})
	require.Equal(t, http.StatusCreated, code, env.Error)

	code, env = a.do(http.MethodPost, base+"/mic/raise", "u2", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "no permission for this action", env.Error)

	code, env = a.do(http.MethodPost, base+"/voice/token", "u2", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "something went wrong", env.Error)
}
