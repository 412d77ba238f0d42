package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/handlers"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/services"
)

func TestAuthMiddleware(t *testing.T) {
	tokens := services.NewTokenService("secret")
	mw := NewAuthMiddleware(tokens)

	var seen *models.Identity
	h := mw.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = handlers.IdentityFrom(r)
		w.WriteHeader(http.StatusNoContent)
	}))

	valid, err := tokens.Issue("u1", "alice", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.UserID)
}

type roomMap map[string]*models.Room

func (m roomMap) GetByID(_ context.Context, id string) (*models.Room, error) {
	if r, ok := m[id]; ok {
		return r, nil
	}
	return nil, pkg.ErrNotFound
}

func TestRoomMiddleware(t *testing.T) {
	mw := NewRoomMiddleware(roomMap{"r1": {ID: "r1", Name: "Evening"}})

	mux := http.NewServeMux()
	mux.Handle("GET /rooms/{roomId}", mw.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		room, ok := handlers.RoomFrom(r)
		require.True(t, ok)
		pkg.JSON(w, http.StatusOK, room)
	})))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/r1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Evening"`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
