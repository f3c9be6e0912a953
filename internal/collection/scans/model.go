package scans

import (
	"database/sql"
	"time"

	"toybox-backend/internal/collection/situation"
)

// ScanEvent は scan_events テーブルの1行を表す。
// タグが実物として読まれた事実の記録。未登録タグのスキャンは記録しない
// （未登録パスは書き込みゼロの契約のため）。
type ScanEvent struct {
	ScanID    int64
	ScanULID  string
	TagID     string
	Matched   int  // マッチしたトイ件数
	Duplicate bool // 2件以上マッチ＝データ不整合の警告
	ScannedBy sql.NullString
	ScannedAt time.Time
}

// ToyAction は toy_actions テーブルの1行を表す（操作履歴）
type ToyAction struct {
	ActionID    int64
	ActionULID  string
	ToyID       int64
	Action      situation.Action
	Situation   situation.Situation // 適用時点の状況（適用前）
	PerformedBy sql.NullString
	PerformedAt time.Time
}
