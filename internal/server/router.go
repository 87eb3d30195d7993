package server

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/notunoflip/notunoflip.github.io/internal/apperrors"
	"github.com/notunoflip/notunoflip.github.io/internal/game/card"
	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
	"github.com/notunoflip/notunoflip.github.io/internal/protocol"
	"github.com/notunoflip/notunoflip.github.io/internal/protocol/codec"
	"github.com/notunoflip/notunoflip.github.io/internal/server/storage"
)

// commandTimeout 单个请求等待房间处理的最长时间
const commandTimeout = 5 * time.Second

var (
	errMissingPlayer = errors.New("player_id is required")
	errImpersonation = errors.New("cannot act for another player")
)

type playerRequest struct {
	PlayerID string `json:"player_id"`
}

type startRequest struct {
	PlayerID       string `json:"player_id"`
	CardsPerPlayer int    `json:"cards_per_player"`
}

type playRequest struct {
	PlayerID    string `json:"player_id"`
	RoomCardID  string `json:"room_card_id"`
	ChosenColor string `json:"chosen_color"`
}

type timeoutRequest struct {
	Turn uint64 `json:"turn"` // 0 表示当前回合
}

// setupRouter 注册路由
func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)

	ws := r.Group("/ws", s.guard())
	if s.auth != nil {
		ws.Use(s.auth.Middleware(true))
	}
	ws.GET("", s.handleWebSocket)

	api := r.Group("", s.guard())
	if s.auth != nil {
		api.Use(s.auth.Middleware(false))
	}
	{
		rooms := api.Group("/rooms/:room")
		rooms.POST("/join", s.handleJoin)
		rooms.POST("/leave", s.handleLeave)
		rooms.POST("/start", s.handleStart)
		rooms.POST("/play", s.handlePlay)
		rooms.POST("/draw", s.handleDraw)
		rooms.POST("/timeout", s.handleTimeout)
		rooms.GET("/preview", s.handlePreview)
		rooms.GET("/state", s.handleState)
		rooms.DELETE("", s.handleCloseRoom)

		api.GET("/leaderboard", s.handleLeaderboard)
		api.GET("/players/:id/stats", s.handlePlayerStats)
	}
	return r
}

// guard IP 黑名单 + 请求限流
func (s *Server) guard() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := GetClientIP(c.Request)
		if !s.ipFilter.IsAllowed(ip) {
			log.Printf("🚫 IP %s 被过滤器拒绝", ip)
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody(protocol.ErrCodeUnauthorize))
			return
		}
		if !s.rateLimiter.Allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody(protocol.ErrCodeRateLimit))
			return
		}
		c.Next()
	}
}

func errorBody(code int) protocol.ErrorPayload {
	return protocol.ErrorPayload{Code: code, Message: protocol.ErrorMessages[code]}
}

func abortUnauthorized(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, protocol.ErrorPayload{
		Code:    protocol.ErrCodeUnauthorize,
		Message: err.Error(),
	})
}

// statusFor 错误到 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, errMissingPlayer):
		return http.StatusBadRequest
	case errors.Is(err, errImpersonation):
		return http.StatusForbidden
	case errors.Is(err, apperrors.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrRoomBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, apperrors.ErrDeckExhausted):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindPrecondition:
		return http.StatusConflict
	case apperrors.KindResource:
		return http.StatusServiceUnavailable
	case apperrors.KindStale:
		return http.StatusAccepted
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)

	var gameErr *apperrors.GameError
	switch {
	case errors.As(err, &gameErr):
		c.JSON(status, protocol.ErrorPayload{Code: gameErr.Code, Message: gameErr.Message})
	case errors.Is(err, errMissingPlayer):
		c.JSON(status, protocol.ErrorPayload{Code: protocol.ErrCodeInvalidMsg, Message: err.Error()})
	case errors.Is(err, errImpersonation):
		c.JSON(status, protocol.ErrorPayload{Code: protocol.ErrCodeUnauthorize, Message: err.Error()})
	default:
		c.JSON(status, protocol.ErrorPayload{Code: protocol.ErrCodeUnknown, Message: err.Error()})
	}
}

// bind 解析可选的 JSON 请求体
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, protocol.ErrorPayload{Code: protocol.ErrCodeInvalidMsg, Message: err.Error()})
		return false
	}
	return true
}

// viewer 查询视图的玩家，未启用鉴权时可以为空（旁观）
func viewer(c *gin.Context, claimed string) (string, error) {
	authed := authenticatedPlayer(c)
	if authed == "" {
		return claimed, nil
	}
	if claimed != "" && claimed != authed {
		return "", errImpersonation
	}
	return authed, nil
}

// submit 提交命令并返回操作者的视图
func (s *Server) submit(c *gin.Context, playerID string, cmd engine.Command) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()

	snap, err := s.registry.Submit(ctx, c.Param("room"), cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap.View(playerID))
}

func (s *Server) handleJoin(c *gin.Context) {
	var req playerRequest
	if !bind(c, &req) {
		return
	}
	playerID, err := actingPlayer(c, req.PlayerID)
	if err != nil {
		respondError(c, err)
		return
	}
	// 维护模式下只能加入已有房间
	if s.IsMaintenanceMode() && s.registry.Get(c.Param("room")) == nil {
		c.JSON(http.StatusServiceUnavailable, errorBody(protocol.ErrCodeMaintenance))
		return
	}
	s.submit(c, playerID, engine.Join{PlayerID: playerID})
}

func (s *Server) handleLeave(c *gin.Context) {
	var req playerRequest
	if !bind(c, &req) {
		return
	}
	playerID, err := actingPlayer(c, req.PlayerID)
	if err != nil {
		respondError(c, err)
		return
	}
	s.submit(c, playerID, engine.Leave{PlayerID: playerID})
}

func (s *Server) handleStart(c *gin.Context) {
	var req startRequest
	if !bind(c, &req) {
		return
	}
	playerID, err := actingPlayer(c, req.PlayerID)
	if err != nil {
		respondError(c, err)
		return
	}
	s.submit(c, playerID, engine.StartGame{HostID: playerID, CardsPerPlayer: req.CardsPerPlayer})
}

func (s *Server) handlePlay(c *gin.Context) {
	var req playRequest
	if !bind(c, &req) {
		return
	}
	playerID, err := actingPlayer(c, req.PlayerID)
	if err != nil {
		respondError(c, err)
		return
	}
	if req.RoomCardID == "" {
		c.JSON(http.StatusBadRequest, protocol.ErrorPayload{Code: protocol.ErrCodeInvalidMsg, Message: "room_card_id is required"})
		return
	}
	s.submit(c, playerID, engine.PlayCard{
		PlayerID:    playerID,
		RoomCardID:  req.RoomCardID,
		ChosenColor: card.Color(req.ChosenColor),
	})
}

func (s *Server) handleDraw(c *gin.Context) {
	var req playerRequest
	if !bind(c, &req) {
		return
	}
	playerID, err := actingPlayer(c, req.PlayerID)
	if err != nil {
		respondError(c, err)
		return
	}
	s.submit(c, playerID, engine.DrawCard{PlayerID: playerID})
}

// handleTimeout 任何人都可以触发，引擎自己判断回合是否真的超时
func (s *Server) handleTimeout(c *gin.Context) {
	var req timeoutRequest
	if !bind(c, &req) {
		return
	}
	s.submit(c, authenticatedPlayer(c), engine.AdvanceOnTimeout{Turn: req.Turn})
}

func (s *Server) handlePreview(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()

	r, err := s.registry.Lookup(ctx, c.Param("room"))
	if err != nil {
		respondError(c, err)
		return
	}
	preview, err := r.PreviewDrawTop()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (s *Server) handleState(c *gin.Context) {
	playerID, err := viewer(c, c.Query("player_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()

	r, err := s.registry.Lookup(ctx, c.Param("room"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r.Snapshot().View(playerID))
}

// handleCloseRoom 启用鉴权时只有房主可以关闭
func (s *Server) handleCloseRoom(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()

	roomID := c.Param("room")
	r, err := s.registry.Lookup(ctx, roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	if authed := authenticatedPlayer(c); authed != "" && r.Snapshot().HostID != authed {
		respondError(c, apperrors.ErrNotHost)
		return
	}
	if err := s.registry.CloseRoom(ctx, roomID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	if s.tally == nil {
		c.JSON(http.StatusOK, []storage.LeaderboardEntry{})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := s.tally.GetLeaderboard(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if entries == nil {
		entries = []storage.LeaderboardEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) handlePlayerStats(c *gin.Context) {
	var stats *storage.PlayerStats
	if s.tally != nil {
		var err error
		stats, err = s.tally.GetPlayerStats(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
	}
	if stats == nil {
		c.JSON(http.StatusNotFound, protocol.ErrorPayload{Code: protocol.ErrCodeUnknown, Message: "暂无战绩"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleHealth 健康检查接口
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"rooms":        len(s.registry.RoomIDs()),
		"active_games": s.registry.GetActiveGamesCount(),
		"online":       s.hub.OnlineCount(),
		"maintenance":  s.IsMaintenanceMode(),
	})
}

// handleWebSocket 订阅房间推送：/ws?room=&player_id=
func (s *Server) handleWebSocket(c *gin.Context) {
	clientIP := GetClientIP(c.Request)

	// 维护模式检查（最优先）
	if s.IsMaintenanceMode() {
		log.Printf("🔧 维护模式，拒绝新连接: %s", clientIP)
		c.JSON(http.StatusServiceUnavailable, errorBody(protocol.ErrCodeMaintenance))
		return
	}

	roomID := c.Query("room")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, protocol.ErrorPayload{Code: protocol.ErrCodeInvalidMsg, Message: "room is required"})
		return
	}
	playerID, err := viewer(c, c.Query("player_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	// 连接数限制检查，名额在断开时归还
	select {
	case s.semaphore <- struct{}{}:
	default:
		log.Printf("🚫 达到最大连接数限制 (%d), IP: %s", s.maxConnections, clientIP)
		c.String(http.StatusServiceUnavailable, "Server Full")
		return
	}
	release := sync.OnceFunc(func() { <-s.semaphore })

	// 来源验证
	if !s.originChecker.Check(c.Request) {
		release()
		log.Printf("🚫 来源验证失败: %s (IP: %s)", c.GetHeader("Origin"), clientIP)
		c.String(http.StatusForbidden, "Origin not allowed")
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		release()
		log.Printf("WebSocket 升级失败: %v", err)
		return
	}

	client := NewClient(s, conn, playerID, roomID, clientIP)
	client.release = release
	s.hub.Register(client)

	client.SendMessage(codec.MustNewMessage(protocol.MsgConnected, protocol.ConnectedPayload{
		ConnectionID: client.ID(),
		PlayerID:     playerID,
		RoomID:       roomID,
	}))

	// 房间已存在时先推一次当前视图
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	if r, err := s.registry.Lookup(ctx, roomID); err == nil {
		client.SendMessage(codec.MustNewMessage(protocol.MsgState, r.Snapshot().View(playerID)))
	}
	cancel()

	log.Printf("✅ 玩家 %s 订阅房间 %s (IP: %s)", playerID, roomID, clientIP)

	go client.WritePump()
	go client.ReadPump()
}
