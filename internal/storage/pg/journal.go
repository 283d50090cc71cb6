package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Direction 帧方向
type Direction int16

const (
	DirectionDown Direction = 1 // 主机 -> 模块
	DirectionUp   Direction = 2 // 模块 -> 主机
)

// FrameRecord 帧日志记录
type FrameRecord struct {
	ID         int64     `json:"id"`
	ExchangeID uuid.UUID `json:"exchange_id"`
	Direction  Direction `json:"direction"`
	Address    string    `json:"address"`
	PacketType byte      `json:"packet_type"`
	Code       byte      `json:"code"` // 下行为指令码，上行为确认码
	Raw        []byte    `json:"raw"`
	Valid      bool      `json:"valid"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// FrameJournal 帧日志仓储（zw_frame_log）
type FrameJournal struct {
	Pool *pgxpool.Pool
}

// InsertFrame 写入一条帧日志，回填 ID 与时间
func (j *FrameJournal) InsertFrame(ctx context.Context, rec *FrameRecord) error {
	const q = `INSERT INTO zw_frame_log (exchange_id, direction, address, packet_type, code, raw, valid, error_kind)
               VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''))
               RETURNING id, created_at`
	err := j.Pool.QueryRow(ctx, q,
		rec.ExchangeID, int16(rec.Direction), rec.Address, int16(rec.PacketType), int16(rec.Code),
		rec.Raw, rec.Valid, rec.ErrorKind,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert frame log: %w", err)
	}
	return nil
}

// FramesByExchange 查询一次收发的全部帧（按写入顺序）
func (j *FrameJournal) FramesByExchange(ctx context.Context, exchangeID uuid.UUID) ([]FrameRecord, error) {
	const q = `SELECT id, exchange_id, direction, address, packet_type, code, raw, valid, COALESCE(error_kind,''), created_at
               FROM zw_frame_log WHERE exchange_id=$1 ORDER BY id`
	rows, err := j.Pool.Query(ctx, q, exchangeID)
	if err != nil {
		return nil, fmt.Errorf("query frame log: %w", err)
	}
	return scanFrames(rows)
}

// RecentFrames 最近 limit 条帧日志（新的在前）
func (j *FrameJournal) RecentFrames(ctx context.Context, limit int) ([]FrameRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	const q = `SELECT id, exchange_id, direction, address, packet_type, code, raw, valid, COALESCE(error_kind,''), created_at
               FROM zw_frame_log ORDER BY id DESC LIMIT $1`
	rows, err := j.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query frame log: %w", err)
	}
	return scanFrames(rows)
}

func scanFrames(rows pgx.Rows) ([]FrameRecord, error) {
	defer rows.Close()
	out := make([]FrameRecord, 0, 8)
	for rows.Next() {
		var (
			r                     FrameRecord
			dir, packetType, code int16
		)
		if err := rows.Scan(&r.ID, &r.ExchangeID, &dir, &r.Address, &packetType, &code, &r.Raw, &r.Valid, &r.ErrorKind, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Direction = Direction(dir)
		r.PacketType = byte(packetType)
		r.Code = byte(code)
		out = append(out, r)
	}
	return out, rows.Err()
}
