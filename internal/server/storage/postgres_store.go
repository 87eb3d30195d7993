package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/notunoflip/notunoflip.github.io/internal/game/card"
	"github.com/notunoflip/notunoflip.github.io/internal/game/engine"
	"github.com/notunoflip/notunoflip.github.io/internal/game/turn"
)

// Schema 房间行 + 每张牌一行
const Schema = `
CREATE TABLE IF NOT EXISTS uno_rooms (
	room_id             TEXT PRIMARY KEY,
	phase               TEXT        NOT NULL,
	host_id             TEXT        NOT NULL DEFAULT '',
	players             TEXT[]      NOT NULL DEFAULT '{}',
	current_side        TEXT        NOT NULL,
	active_wild_color   TEXT        NOT NULL DEFAULT '',
	draw_stack          INTEGER     NOT NULL DEFAULT 0,
	draw_until_color    TEXT        NOT NULL DEFAULT '',
	direction           SMALLINT    NOT NULL DEFAULT 1,
	turn_order          TEXT[]      NOT NULL DEFAULT '{}',
	active_player_index INTEGER     NOT NULL DEFAULT 0,
	winner_id           TEXT        NOT NULL DEFAULT '',
	turn_started_at     TIMESTAMPTZ NOT NULL,
	turn                BIGINT      NOT NULL DEFAULT 0,
	version             BIGINT      NOT NULL DEFAULT 0,
	seed                BIGINT      NOT NULL DEFAULT 0,
	reshuffles          INTEGER     NOT NULL DEFAULT 0,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS uno_room_cards (
	room_id    TEXT    NOT NULL REFERENCES uno_rooms (room_id) ON DELETE CASCADE,
	card_id    TEXT    NOT NULL,
	catalog_id INTEGER NOT NULL,
	owner_id   TEXT,
	zone       TEXT    NOT NULL,
	position   INTEGER NOT NULL,
	PRIMARY KEY (room_id, card_id)
);

CREATE INDEX IF NOT EXISTS idx_uno_room_cards_zone ON uno_room_cards (room_id, zone, position);
`

const (
	// 版本号只增不减：晚到的旧版本不会覆盖新数据
	upsertRoomSQL = `
		INSERT INTO uno_rooms (room_id, phase, host_id, players, current_side, active_wild_color,
			draw_stack, draw_until_color, direction, turn_order, active_player_index, winner_id,
			turn_started_at, turn, version, seed, reshuffles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (room_id) DO UPDATE SET
			phase = EXCLUDED.phase,
			host_id = EXCLUDED.host_id,
			players = EXCLUDED.players,
			current_side = EXCLUDED.current_side,
			active_wild_color = EXCLUDED.active_wild_color,
			draw_stack = EXCLUDED.draw_stack,
			draw_until_color = EXCLUDED.draw_until_color,
			direction = EXCLUDED.direction,
			turn_order = EXCLUDED.turn_order,
			active_player_index = EXCLUDED.active_player_index,
			winner_id = EXCLUDED.winner_id,
			turn_started_at = EXCLUDED.turn_started_at,
			turn = EXCLUDED.turn,
			version = EXCLUDED.version,
			seed = EXCLUDED.seed,
			reshuffles = EXCLUDED.reshuffles,
			updated_at = EXCLUDED.updated_at
		WHERE uno_rooms.version <= EXCLUDED.version
	`

	deleteCardsSQL = `DELETE FROM uno_room_cards WHERE room_id = $1`

	insertCardSQL = `
		INSERT INTO uno_room_cards (room_id, card_id, catalog_id, owner_id, zone, position)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	selectRoomSQL = `
		SELECT phase, host_id, players, current_side, active_wild_color, draw_stack, draw_until_color,
			direction, turn_order, active_player_index, winner_id, turn_started_at, turn, version,
			seed, reshuffles, created_at, updated_at
		FROM uno_rooms WHERE room_id = $1
	`

	selectCardsSQL = `
		SELECT card_id, catalog_id, owner_id, zone, position
		FROM uno_room_cards WHERE room_id = $1
		ORDER BY zone, position
	`

	deleteRoomSQL = `DELETE FROM uno_rooms WHERE room_id = $1`

	listRoomsSQL = `SELECT room_id FROM uno_rooms ORDER BY created_at`
)

// PostgresConfig 连接池配置
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// OpenPostgres 创建连接池并确认可以连通
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// pgxDB *pgxpool.Pool 满足的最小接口
type pgxDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore 持久化房间行和牌行，每条命令一个事务
type PostgresStore struct {
	db pgxDB
}

// NewPostgresStore 创建 Postgres 存储
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate 建表
func (ps *PostgresStore) Migrate(ctx context.Context) error {
	_, err := ps.db.Exec(ctx, Schema)
	return err
}

// SaveMatch 在一个事务中写入房间行并重写全部牌行
func (ps *PostgresStore) SaveMatch(ctx context.Context, rec *engine.MatchRecord) error {
	if rec == nil {
		return nil
	}

	tx, err := ps.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, upsertRoomSQL, roomArgs(rec)...)
	if err != nil {
		return fmt.Errorf("upsert room %s: %w", rec.RoomID, err)
	}
	if tag.RowsAffected() == 0 {
		// 库里已经是更新的版本
		return nil
	}

	if _, err := tx.Exec(ctx, deleteCardsSQL, rec.RoomID); err != nil {
		return fmt.Errorf("delete cards %s: %w", rec.RoomID, err)
	}

	batch := cardBatch(rec)
	br := tx.SendBatch(ctx, batch)
	for range batch.Len() {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert cards %s: %w", rec.RoomID, err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// LoadMatch 读取房间，不存在时返回 nil, nil
func (ps *PostgresStore) LoadMatch(ctx context.Context, roomID string) (*engine.MatchRecord, error) {
	rec := &engine.MatchRecord{RoomID: roomID}
	var (
		phase, side, wild, drawUntil string
		direction                    int16
		turnNo, version, seed        int64
	)
	err := ps.db.QueryRow(ctx, selectRoomSQL, roomID).Scan(
		&phase,
		&rec.HostID,
		&rec.Players,
		&side,
		&wild,
		&rec.DrawStack,
		&drawUntil,
		&direction,
		&rec.TurnOrder,
		&rec.ActiveIndex,
		&rec.WinnerID,
		&rec.TurnStartedAt,
		&turnNo,
		&version,
		&seed,
		&rec.Reshuffles,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.Phase = engine.Phase(phase)
	rec.Side = card.Side(side)
	rec.WildColor = card.Color(wild)
	rec.DrawUntil = card.Color(drawUntil)
	rec.Direction = turn.Direction(direction)
	rec.Turn = uint64(turnNo)
	rec.Version = uint64(version)
	rec.Seed = uint64(seed)

	rows, err := ps.db.Query(ctx, selectCardsSQL, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			row   engine.CardRow
			owner *string
			zone  string
		)
		if err := rows.Scan(&row.CardID, &row.CatalogID, &owner, &zone, &row.Position); err != nil {
			return nil, err
		}
		if owner != nil {
			row.OwnerID = *owner
		}
		row.Zone = engine.Zone(zone)
		rec.Cards = append(rec.Cards, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteMatch 删除房间，牌行级联删除
func (ps *PostgresStore) DeleteMatch(ctx context.Context, roomID string) error {
	_, err := ps.db.Exec(ctx, deleteRoomSQL, roomID)
	return err
}

// ListRoomIDs 获取所有房间号
func (ps *PostgresStore) ListRoomIDs(ctx context.Context) ([]string, error) {
	rows, err := ps.db.Query(ctx, listRoomsSQL)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// roomArgs 房间行参数，顺序与 upsertRoomSQL 一致
func roomArgs(rec *engine.MatchRecord) []any {
	players := rec.Players
	if players == nil {
		players = []string{}
	}
	order := rec.TurnOrder
	if order == nil {
		order = []string{}
	}
	return []any{
		rec.RoomID,
		string(rec.Phase),
		rec.HostID,
		players,
		string(rec.Side),
		string(rec.WildColor),
		rec.DrawStack,
		string(rec.DrawUntil),
		int16(rec.Direction),
		order,
		rec.ActiveIndex,
		rec.WinnerID,
		rec.TurnStartedAt,
		int64(rec.Turn),
		int64(rec.Version),
		int64(rec.Seed), // 按位保存
		rec.Reshuffles,
		rec.CreatedAt,
		rec.UpdatedAt,
	}
}

// cardBatch 每张牌一条插入语句
func cardBatch(rec *engine.MatchRecord) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, row := range rec.Cards {
		var owner any
		if row.OwnerID != "" {
			owner = row.OwnerID
		}
		batch.Queue(insertCardSQL,
			rec.RoomID,
			row.CardID,
			row.CatalogID,
			owner,
			string(row.Zone),
			row.Position,
		)
	}
	return batch
}
