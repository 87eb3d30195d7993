package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notunoflip/notunoflip.github.io/internal/apperrors"
	"github.com/notunoflip/notunoflip.github.io/internal/config"
	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
	"github.com/notunoflip/notunoflip.github.io/internal/protocol"
	"github.com/notunoflip/notunoflip.github.io/internal/server/storage"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// newTestServer 使用 miniredis，不连接 Postgres 和 NATS
func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := config.Default()
	cfg.Redis.Addr = mr.Addr()
	cfg.Postgres.DSN = ""
	cfg.NATS.URL = ""
	cfg.Auth.JWTSecret = ""
	cfg.Security.AllowedOrigins = []string{"*"}
	cfg.Security.BlockedIPs = nil
	cfg.Security.RateLimit.MaxPerSecond = 1000
	cfg.Security.RateLimit.MaxPerMinute = 10000
	cfg.Security.MessageLimit.MaxPerSecond = 1000
	if mutate != nil {
		mutate(cfg)
	}

	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

type response struct {
	*httptest.ResponseRecorder
}

func (r response) errorCode(t *testing.T) int {
	t.Helper()
	var payload protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(r.Body.Bytes(), &payload), r.Body.String())
	return payload.Code
}

func (r response) view(t *testing.T) engine.PlayerView {
	t.Helper()
	require.Equal(t, http.StatusOK, r.Code, r.Body.String())
	var view engine.PlayerView
	require.NoError(t, json.Unmarshal(r.Body.Bytes(), &view))
	return view
}

func do(s *Server, method, path string, body any, header ...string) response {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.10:4321"
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return response{rec}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	res := do(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `"status":"ok"`)
}

func TestRoomLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	view := do(s, http.MethodPost, "/rooms/R1/join", playerRequest{PlayerID: "alice"}).view(t)
	assert.Equal(t, "alice", view.HostID)
	assert.Equal(t, engine.PhaseLobby, view.Phase)
	do(s, http.MethodPost, "/rooms/R1/join", playerRequest{PlayerID: "bob"}).view(t)

	res := do(s, http.MethodPost, "/rooms/R1/start", startRequest{PlayerID: "bob"})
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, protocol.ErrCodeNotHost, res.errorCode(t))

	view = do(s, http.MethodPost, "/rooms/R1/start", startRequest{PlayerID: "alice", CardsPerPlayer: 5}).view(t)
	assert.Equal(t, engine.PhaseInProgress, view.Phase)
	assert.Len(t, view.Hand, 5)
	require.NotEmpty(t, view.ActivePlayerID)

	active := view.ActivePlayerID
	idle := "alice"
	if active == "alice" {
		idle = "bob"
	}

	res = do(s, http.MethodPost, "/rooms/R1/draw", playerRequest{PlayerID: idle})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, protocol.ErrCodeNotYourTurn, res.errorCode(t))

	res = do(s, http.MethodPost, "/rooms/R1/play", playRequest{PlayerID: active, RoomCardID: "no-such-card"})
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, protocol.ErrCodeCardNotInHand, res.errorCode(t))

	res = do(s, http.MethodPost, "/rooms/R1/leave", playerRequest{PlayerID: "bob"})
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, protocol.ErrCodeRoomAlreadyStarted, res.errorCode(t))

	preview := do(s, http.MethodGet, "/rooms/R1/preview", nil)
	assert.Equal(t, http.StatusOK, preview.Code)
	var drawTop engine.DrawPreview
	require.NoError(t, json.Unmarshal(preview.Body.Bytes(), &drawTop))
	assert.NotEmpty(t, drawTop.Value)

	res = do(s, http.MethodPost, "/rooms/R1/timeout", nil)
	assert.Equal(t, http.StatusConflict, res.Code)
	assert.Equal(t, protocol.ErrCodeTurnNotExpired, res.errorCode(t))

	res = do(s, http.MethodPost, "/rooms/R1/timeout", timeoutRequest{Turn: 999})
	assert.Equal(t, http.StatusAccepted, res.Code)
	assert.Equal(t, protocol.ErrCodeStaleTimeout, res.errorCode(t))

	state := do(s, http.MethodGet, "/rooms/R1/state?player_id="+idle, nil).view(t)
	assert.Len(t, state.Hand, 5)
	watcher := do(s, http.MethodGet, "/rooms/R1/state", nil).view(t)
	assert.Empty(t, watcher.Hand)

	after := do(s, http.MethodPost, "/rooms/R1/draw", playerRequest{PlayerID: active}).view(t)
	assert.Len(t, after.Hand, 6)
	assert.Equal(t, idle, after.ActivePlayerID)

	res = do(s, http.MethodDelete, "/rooms/R1", nil)
	assert.Equal(t, http.StatusNoContent, res.Code)

	res = do(s, http.MethodGet, "/rooms/R1/state", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
	assert.Equal(t, protocol.ErrCodeRoomNotFound, res.errorCode(t))
}

func TestRequestValidation(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	res := do(s, http.MethodPost, "/rooms/R1/join", nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Equal(t, protocol.ErrCodeInvalidMsg, res.errorCode(t))

	res = do(s, http.MethodPost, "/rooms/R1/play", playRequest{PlayerID: "alice"})
	assert.Equal(t, http.StatusBadRequest, res.Code)

	res = do(s, http.MethodPost, "/rooms/nowhere/draw", playerRequest{PlayerID: "alice"})
	assert.Equal(t, http.StatusNotFound, res.Code)

	res = do(s, http.MethodGet, "/rooms/nowhere/preview", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestRoomRestoredFromRedis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	mutate := func(cfg *config.Config) { cfg.Redis.Addr = mr.Addr() }

	first := newTestServer(t, mutate)
	do(first, http.MethodPost, "/rooms/R1/join", playerRequest{PlayerID: "alice"}).view(t)
	do(first, http.MethodPost, "/rooms/R1/join", playerRequest{PlayerID: "bob"}).view(t)
	first.Shutdown(context.Background())

	// 新实例启动时从 Redis 恢复
	second := newTestServer(t, mutate)
	view := do(second, http.MethodGet, "/rooms/R1/state?player_id=alice", nil).view(t)
	assert.Equal(t, "alice", view.HostID)
	assert.Len(t, view.Seats, 2)
}

func TestLeaderboardAndStats(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	res := do(s, http.MethodGet, "/leaderboard", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `[]`, res.Body.String())

	require.NoError(t, s.tally.RecordGameResult(context.Background(), "m1", "bob", []string{"alice", "bob"}))

	res = do(s, http.MethodGet, "/leaderboard?limit=5", nil)
	var entries []storage.LeaderboardEntry
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "bob", entries[0].PlayerID)

	res = do(s, http.MethodGet, "/players/alice/stats", nil)
	assert.Equal(t, http.StatusOK, res.Code)
	var stats storage.PlayerStats
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Games)
	assert.Zero(t, stats.Wins)

	res = do(s, http.MethodGet, "/players/ghost/stats", nil)
	assert.Equal(t, http.StatusNotFound, res.Code)
}

func TestGuard(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Security.BlockedIPs = []string{"203.0.113.7"}
		cfg.Security.RateLimit.MaxPerSecond = 2
	})

	res := do(s, http.MethodGet, "/leaderboard", nil, "X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, http.StatusForbidden, res.Code)

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/leaderboard", nil).Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/leaderboard", nil).Code)
	res = do(s, http.MethodGet, "/leaderboard", nil)
	assert.Equal(t, http.StatusTooManyRequests, res.Code)
	assert.Equal(t, protocol.ErrCodeRateLimit, res.errorCode(t))

	// 健康检查不限流
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health", nil).Code)
}

func TestMaintenanceMode(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	do(s, http.MethodPost, "/rooms/R1/join", playerRequest{PlayerID: "alice"}).view(t)

	s.EnterMaintenanceMode()
	assert.True(t, s.IsMaintenanceMode())

	res := do(s, http.MethodPost, "/rooms/R2/join", playerRequest{PlayerID: "carol"})
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	assert.Equal(t, protocol.ErrCodeMaintenance, res.errorCode(t))

	do(s, http.MethodPost, "/rooms/R1/join", playerRequest{PlayerID: "bob"}).view(t)

	res = do(s, http.MethodGet, "/ws?room=R1&player_id=bob", nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err    error
		status int
	}{
		{errMissingPlayer, http.StatusBadRequest},
		{errImpersonation, http.StatusForbidden},
		{apperrors.ErrNotYourTurn, http.StatusBadRequest},
		{apperrors.ErrNotHost, http.StatusConflict},
		{apperrors.ErrRoomNotFound, http.StatusNotFound},
		{apperrors.ErrRoomBusy, http.StatusTooManyRequests},
		{apperrors.ErrDeckExhausted, http.StatusServiceUnavailable},
		{apperrors.ErrStaleTimeout, http.StatusAccepted},
		{fmt.Errorf("load: %w", apperrors.ErrRoomNotFound), http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusFor(tt.err), tt.err.Error())
	}
}
