package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/notunoflip/notunoflip.github.io/internal/config"
	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
	"github.com/notunoflip/notunoflip.github.io/internal/game/room"
	"github.com/notunoflip/notunoflip.github.io/internal/game/rule"
	"github.com/notunoflip/notunoflip.github.io/internal/game/timer"
	"github.com/notunoflip/notunoflip.github.io/internal/notify"
	"github.com/notunoflip/notunoflip.github.io/internal/server/handler"
	"github.com/notunoflip/notunoflip.github.io/internal/server/storage"
)

// connectTimeout 启动时连接外部服务的超时
const connectTimeout = 5 * time.Second

// Server HTTP 命令接口 + WebSocket 推送
type Server struct {
	config *config.Config

	// 外部服务，未配置时为 nil
	redis    *redis.Client
	postgres *pgxpool.Pool
	nats     *nats.Conn

	registry  *room.Registry
	scheduler *timer.Scheduler
	tally     *storage.WinTally
	hub       *Hub
	handler   *handler.Handler
	auth      *Authenticator

	// 安全组件
	rateLimiter    *RateLimiter
	originChecker  *OriginChecker
	messageLimiter *MessageRateLimiter
	ipFilter       *IPFilter
	upgrader       websocket.Upgrader

	// 连接控制
	maxConnections int
	semaphore      chan struct{} // 信号量控制并发连接数

	// 维护模式
	maintenanceMode bool
	maintenanceMu   sync.RWMutex

	router       *gin.Engine
	httpServer   *http.Server
	stopMonitor  chan struct{}
	shutdownOnce sync.Once
}

// NewServer 按配置连接外部服务并组装房间注册表
func NewServer(cfg *config.Config) (*Server, error) {
	stacking, err := rule.ParseStackingPolicy(cfg.Game.Stacking)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config: cfg,
		hub:    NewHub(),
		auth:   NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		rateLimiter: NewRateLimiter(
			cfg.Security.RateLimit.MaxPerSecond,
			cfg.Security.RateLimit.MaxPerMinute,
			cfg.Security.RateLimit.BanDurationTime(),
		),
		originChecker:  NewOriginChecker(cfg.Security.AllowedOrigins),
		messageLimiter: NewMessageRateLimiter(cfg.Security.MessageLimit.MaxPerSecond),
		ipFilter:       NewIPFilter(cfg.Security.BlockedIPs),
		maxConnections: cfg.Server.MaxConnections,
		semaphore:      make(chan struct{}, cfg.Server.MaxConnections),
		stopMonitor:    make(chan struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// 来源在升级前已经校验过
		CheckOrigin: func(*http.Request) bool { return true },
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		s.closeBackends()
		s.rateLimiter.Stop()
		return nil, err
	}
	store, err := s.buildStore(ctx)
	if err != nil {
		s.closeBackends()
		s.rateLimiter.Stop()
		return nil, err
	}

	s.scheduler = timer.New(cfg.Game.TurnTimeoutDuration())
	notifiers := notify.Multi{s.scheduler, s.hub}
	if s.redis != nil {
		s.tally = storage.NewWinTally(s.redis)
		notifiers = append(notifiers, s.tally, notify.NewRedisPublisher(s.redis, cfg.Redis.ChannelPrefix))
	}
	if s.nats != nil {
		notifiers = append(notifiers, notify.NewNATSPublisher(s.nats, cfg.NATS.SubjectPrefix))
	}

	opts := engine.DefaultOptions()
	opts.Stacking = stacking
	opts.AllowActionOpener = cfg.Game.ActionOpenerAllowed()
	opts.TurnTimeout = cfg.Game.TurnTimeoutDuration()
	if cfg.Game.CardsPerPlayer > 0 {
		opts.CardsPerPlayer = cfg.Game.CardsPerPlayer
	}
	if cfg.Game.MaxPlayers > 0 {
		opts.MaxPlayers = cfg.Game.MaxPlayers
	}
	if cfg.Game.QueueDepth > 0 {
		opts.QueueDepth = cfg.Game.QueueDepth
	}
	opts.Store = store
	opts.Notifier = notifiers

	s.registry = room.NewRegistry(opts, cfg.Game.RoomTimeoutDuration())
	s.scheduler.Bind(s.registry)

	deps := handler.HandlerDeps{Rooms: s.registry}
	if s.tally != nil {
		deps.Leaderboard = s.tally
	}
	s.handler = handler.NewHandler(deps)

	if _, err := s.registry.RestoreAll(ctx); err != nil {
		log.Printf("⚠️  恢复房间失败: %v", err)
	}

	s.router = s.setupRouter()

	log.Printf("🔒 安全配置: 连接限制=%d/s, 消息限制=%d/s, 最大连接数=%d, 鉴权=%v",
		cfg.Security.RateLimit.MaxPerSecond, cfg.Security.MessageLimit.MaxPerSecond,
		cfg.Server.MaxConnections, s.auth != nil)

	return s, nil
}

// connect 连接已配置的 Redis / Postgres / NATS
func (s *Server) connect(ctx context.Context) error {
	cfg := s.config

	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis 连接失败: %w", err)
		}
	}

	if cfg.Postgres.DSN != "" {
		pool, err := storage.OpenPostgres(ctx, storage.PostgresConfig{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        int32(cfg.Postgres.MaxConns),
			MinConns:        int32(cfg.Postgres.MinConns),
			MaxConnLifetime: cfg.Postgres.ConnMaxLifetimeDuration(),
		})
		if err != nil {
			return fmt.Errorf("postgres 连接失败: %w", err)
		}
		s.postgres = pool
	}

	if cfg.NATS.URL != "" {
		nc, err := notify.ConnectNATS(notify.NATSConfig{
			URL:           cfg.NATS.URL,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWaitDuration(),
		})
		if err != nil {
			return fmt.Errorf("nats 连接失败: %w", err)
		}
		s.nats = nc
	}
	return nil
}

// buildStore Redis 做缓存、Postgres 做持久层；只配置一个时直接使用
func (s *Server) buildStore(ctx context.Context) (engine.Store, error) {
	var cache, durable engine.Store
	if s.redis != nil {
		cache = storage.NewRedisStore(s.redis, s.config.Redis.MatchTTLDuration())
	}
	if s.postgres != nil {
		pg := storage.NewPostgresStore(s.postgres)
		if s.config.Postgres.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("postgres 建表失败: %w", err)
			}
		}
		durable = pg
	}

	switch {
	case cache != nil && durable != nil:
		return storage.NewTieredStore(cache, durable), nil
	case durable != nil:
		return durable, nil
	default:
		// 都没配置时为 nil，房间只在内存中
		return cache, nil
	}
}

// Handler 返回 HTTP 处理器
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动服务器，阻塞直到关闭
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	// 启动监控 goroutine
	go s.monitorStats()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second, // 防止 Slowloris 攻击
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("🚀 服务器启动在 http://%s (WebSocket: /ws, CPU核心数: %d)", addr, runtime.NumCPU())
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// closeBackends 关闭外部连接
func (s *Server) closeBackends() {
	if s.nats != nil {
		if err := s.nats.Drain(); err != nil {
			s.nats.Close()
		}
	}
	if s.postgres != nil {
		s.postgres.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
}
