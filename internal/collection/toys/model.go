package toys

import (
	"database/sql"
	"time"

	"toybox-backend/internal/collection/situation"
)

// Toy は toys テーブルの1行を表す
type Toy struct {
	ToyID        int64
	ToyULID      string
	Name         string
	TagID        string
	Memo         sql.NullString
	IsSleeping   bool
	CheckedOutAt sql.NullTime
	CheckInAt    sql.NullTime
	ScannedAt    sql.NullTime
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    sql.NullTime
}

// Snapshot は状況判定エンジンへ渡す断面を切り出す。
// ゼロ値タイムスタンプの正規化はエンジン側で行う。
func (t *Toy) Snapshot() situation.Snapshot {
	return situation.Snapshot{
		CheckInAt:    nullTimePtr(t.CheckInAt),
		CheckedOutAt: nullTimePtr(t.CheckedOutAt),
		ScannedAt:    nullTimePtr(t.ScannedAt),
		CreatedAt:    t.CreatedAt,
		IsSleeping:   t.IsSleeping,
	}
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time
	return &v
}

func nullStrPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
