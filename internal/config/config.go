package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 默认值
const (
	defaultHost           = "0.0.0.0"
	defaultPort           = 1780
	defaultMaxConnections = 10000
	defaultRedisAddr      = "localhost:6379"
	defaultTurnTimeout    = 30
	defaultRoomTimeout    = 10
	defaultStacking       = "equal_or_greater"
)

// Config 服务端配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	NATS     NATSConfig     `yaml:"nats"`
	Auth     AuthConfig     `yaml:"auth"`
	Security SecurityConfig `yaml:"security"`
	Game     GameConfig     `yaml:"game"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig HTTP / WebSocket 服务器配置
type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	MaxConnections  int    `yaml:"max_connections"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // 优雅关闭等待（秒）
}

// RedisConfig Redis 配置，addr 为空时不启用
type RedisConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	MatchTTL      int    `yaml:"match_ttl"`      // 房间数据过期时间（分钟）
	ChannelPrefix string `yaml:"channel_prefix"` // 房间事件频道前缀
}

// PostgresConfig Postgres 配置，dsn 为空时不启用
type PostgresConfig struct {
	DSN             string `yaml:"dsn"`
	MaxConns        int    `yaml:"max_conns"`
	MinConns        int    `yaml:"min_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // 连接最长存活（分钟）
	Migrate         bool   `yaml:"migrate"`           // 启动时建表
}

// NATSConfig NATS 配置，url 为空时不启用
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	MaxReconnects int    `yaml:"max_reconnects"`
	ReconnectWait int    `yaml:"reconnect_wait"` // 重连间隔（秒）
}

// AuthConfig 鉴权配置，jwt_secret 为空时不校验
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins"`
	BlockedIPs     []string        `yaml:"blocked_ips"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	MessageLimit   MessageLimit    `yaml:"message_limit"`
}

// RateLimitConfig 按 IP 的请求限流
type RateLimitConfig struct {
	MaxPerSecond int `yaml:"max_per_second"`
	MaxPerMinute int `yaml:"max_per_minute"`
	BanDuration  int `yaml:"ban_duration"` // 封禁时长（秒）
}

// MessageLimit 单个 WebSocket 连接的消息限流
type MessageLimit struct {
	MaxPerSecond int `yaml:"max_per_second"`
}

// GameConfig 游戏配置
type GameConfig struct {
	TurnTimeout       int    `yaml:"turn_timeout"`        // 出牌超时（秒）
	RoomTimeout       int    `yaml:"room_timeout"`        // 房间空闲超时（分钟）
	CardsPerPlayer    int    `yaml:"cards_per_player"`    // 默认发牌数
	MaxPlayers        int    `yaml:"max_players"`         // 房间人数上限
	QueueDepth        int    `yaml:"queue_depth"`         // 每个房间的命令队列长度
	Stacking          string `yaml:"stacking"`            // none / same_value / equal_or_greater
	AllowActionOpener *bool  `yaml:"allow_action_opener"` // 功能牌能否作为首张弃牌
}

// LogConfig 日志配置，dir 为空时只输出到标准错误
type LogConfig struct {
	Dir string `yaml:"dir"`
}

// TurnTimeoutDuration 返回出牌超时时长
func (c *GameConfig) TurnTimeoutDuration() time.Duration {
	return time.Duration(c.TurnTimeout) * time.Second
}

// RoomTimeoutDuration 返回房间空闲超时时长
func (c *GameConfig) RoomTimeoutDuration() time.Duration {
	return time.Duration(c.RoomTimeout) * time.Minute
}

// ActionOpenerAllowed 未配置时默认允许
func (c *GameConfig) ActionOpenerAllowed() bool {
	return c.AllowActionOpener == nil || *c.AllowActionOpener
}

// ShutdownTimeoutDuration 返回优雅关闭等待时长
func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Second
}

// MatchTTLDuration 返回房间数据过期时间
func (c *RedisConfig) MatchTTLDuration() time.Duration {
	return time.Duration(c.MatchTTL) * time.Minute
}

// ConnMaxLifetimeDuration 返回连接最长存活时间
func (c *PostgresConfig) ConnMaxLifetimeDuration() time.Duration {
	return time.Duration(c.ConnMaxLifetime) * time.Minute
}

// ReconnectWaitDuration 返回重连间隔
func (c *NATSConfig) ReconnectWaitDuration() time.Duration {
	return time.Duration(c.ReconnectWait) * time.Second
}

// BanDurationTime 返回封禁时长
func (c *RateLimitConfig) BanDurationTime() time.Duration {
	return time.Duration(c.BanDuration) * time.Second
}

// Load 加载配置文件，环境变量优先于文件，未填写的字段使用默认值
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// Default 返回默认配置（环境变量仍然生效）
func Default() *Config {
	cfg := &Config{
		Redis: RedisConfig{Addr: defaultRedisAddr},
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

// applyEnv 用环境变量覆盖配置，方便容器部署
func (cfg *Config) applyEnv() {
	envString("SERVER_HOST", &cfg.Server.Host)
	envInt("SERVER_PORT", &cfg.Server.Port)
	envString("REDIS_ADDR", &cfg.Redis.Addr)
	envString("REDIS_PASSWORD", &cfg.Redis.Password)
	envString("POSTGRES_DSN", &cfg.Postgres.DSN)
	envString("NATS_URL", &cfg.NATS.URL)
	envString("AUTH_JWT_SECRET", &cfg.Auth.JWTSecret)
	envInt("GAME_TURN_TIMEOUT", &cfg.Game.TurnTimeout)
	envString("GAME_STACKING", &cfg.Game.Stacking)
	envString("LOG_DIR", &cfg.Log.Dir)
	if v := os.Getenv("SECURITY_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Security.AllowedOrigins = origins
	}
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.MaxConnections == 0 {
		cfg.Server.MaxConnections = defaultMaxConnections
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10
	}

	if cfg.Redis.MatchTTL == 0 {
		cfg.Redis.MatchTTL = 120
	}

	if cfg.Postgres.MaxConns == 0 {
		cfg.Postgres.MaxConns = 10
	}
	if cfg.Postgres.ConnMaxLifetime == 0 {
		cfg.Postgres.ConnMaxLifetime = 60
	}

	if cfg.NATS.MaxReconnects == 0 {
		cfg.NATS.MaxReconnects = 10
	}
	if cfg.NATS.ReconnectWait == 0 {
		cfg.NATS.ReconnectWait = 2
	}

	if len(cfg.Security.AllowedOrigins) == 0 {
		cfg.Security.AllowedOrigins = []string{"*"}
	}
	if cfg.Security.RateLimit.MaxPerSecond == 0 {
		cfg.Security.RateLimit.MaxPerSecond = 20
	}
	if cfg.Security.RateLimit.MaxPerMinute == 0 {
		cfg.Security.RateLimit.MaxPerMinute = 600
	}
	if cfg.Security.RateLimit.BanDuration == 0 {
		cfg.Security.RateLimit.BanDuration = 60
	}
	if cfg.Security.MessageLimit.MaxPerSecond == 0 {
		cfg.Security.MessageLimit.MaxPerSecond = 20
	}

	if cfg.Game.TurnTimeout == 0 {
		cfg.Game.TurnTimeout = defaultTurnTimeout
	}
	if cfg.Game.RoomTimeout == 0 {
		cfg.Game.RoomTimeout = defaultRoomTimeout
	}
	if cfg.Game.CardsPerPlayer == 0 {
		cfg.Game.CardsPerPlayer = 7
	}
	if cfg.Game.MaxPlayers == 0 {
		cfg.Game.MaxPlayers = 10
	}
	if cfg.Game.QueueDepth == 0 {
		cfg.Game.QueueDepth = 32
	}
	if cfg.Game.Stacking == "" {
		cfg.Game.Stacking = defaultStacking
	}
}
