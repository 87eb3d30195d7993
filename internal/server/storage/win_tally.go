package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
)

const (
	// Redis key
	playerStatsKey = "uno:stats:"
	leaderboardKey = "uno:leaderboard:wins"
	tallyKeyPrefix = "uno:tally:"

	// 同一局只记一次，标记保留一天
	tallyMarkExpiration = 24 * time.Hour

	// DefaultLeaderboardLimit 默认返回的条目数
	DefaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// PlayerStats 玩家统计数据
type PlayerStats struct {
	PlayerID string  `json:"player_id"`
	Games    int     `json:"games"`
	Wins     int     `json:"wins"`
	WinRate  float64 `json:"win_rate"`
	Rank     int     `json:"rank"` // 0 表示未上榜
}

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	Rank     int     `json:"rank"`
	PlayerID string  `json:"player_id"`
	Wins     int     `json:"wins"`
	Games    int     `json:"games"`
	WinRate  float64 `json:"win_rate"`
}

// WinTally 胜场统计。作为 Notifier 挂在房间上，对局结束时记一次
type WinTally struct {
	redis redis.UniversalClient
}

// NewWinTally 创建胜场统计
func NewWinTally(client redis.UniversalClient) *WinTally {
	return &WinTally{redis: client}
}

// Publish 只处理已结束的快照
func (wt *WinTally) Publish(ctx context.Context, snap engine.Snapshot) error {
	if snap.Phase != engine.PhaseFinished || snap.WinnerID == "" {
		return nil
	}
	// 同一房间号可能开多局，用创建时间区分
	matchID := snap.RoomID + ":" + strconv.FormatInt(snap.CreatedAt.UnixNano(), 10)
	return wt.RecordGameResult(ctx, matchID, snap.WinnerID, snap.TurnOrder)
}

// RoomClosed 无需处理
func (wt *WinTally) RoomClosed(string) {}

// RecordGameResult 记录一局结果。matchID 相同的结果只记一次
func (wt *WinTally) RecordGameResult(ctx context.Context, matchID, winnerID string, players []string) error {
	first, err := wt.redis.SetNX(ctx, tallyKeyPrefix+matchID, winnerID, tallyMarkExpiration).Result()
	if err != nil {
		return fmt.Errorf("mark match %s: %w", matchID, err)
	}
	if !first {
		return nil
	}

	_, err = wt.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range players {
			pipe.HIncrBy(ctx, playerStatsKey+id, "games", 1)
		}
		pipe.HIncrBy(ctx, playerStatsKey+winnerID, "wins", 1)
		pipe.ZIncrBy(ctx, leaderboardKey, 1, winnerID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record match %s: %w", matchID, err)
	}
	log.Printf("🏆 %s 获胜，已计入排行榜", winnerID)
	return nil
}

// GetPlayerStats 获取玩家统计，没有记录时返回 nil
func (wt *WinTally) GetPlayerStats(ctx context.Context, playerID string) (*PlayerStats, error) {
	data, err := wt.redis.HGetAll(ctx, playerStatsKey+playerID).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	stats := &PlayerStats{PlayerID: playerID}
	stats.Games, _ = strconv.Atoi(data["games"])
	stats.Wins, _ = strconv.Atoi(data["wins"])
	stats.WinRate = winRate(stats.Wins, stats.Games)

	rank, err := wt.redis.ZRevRank(ctx, leaderboardKey, playerID).Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, err
	default:
		stats.Rank = int(rank) + 1 // Redis 排名从 0 开始
	}
	return stats, nil
}

// GetLeaderboard 按胜场从高到低
func (wt *WinTally) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	limit = min(limit, maxLeaderboardLimit)

	results, err := wt.redis.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	pipe := wt.redis.Pipeline()
	games := make([]*redis.StringCmd, len(results))
	for i, z := range results {
		games[i] = pipe.HGet(ctx, playerStatsKey+z.Member.(string), "games")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(results))
	for i, z := range results {
		played, _ := games[i].Int()
		wins := int(z.Score)
		entries = append(entries, LeaderboardEntry{
			Rank:     i + 1,
			PlayerID: z.Member.(string),
			Wins:     wins,
			Games:    played,
			WinRate:  winRate(wins, played),
		})
	}
	return entries, nil
}

func winRate(wins, games int) float64 {
	if games == 0 {
		return 0
	}
	return float64(wins) / float64(games) * 100
}
