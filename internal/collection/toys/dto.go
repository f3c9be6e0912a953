package toys

import (
	"time"

	"toybox-backend/internal/collection/situation"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// トイ登録リクエスト
// 未登録タグのスキャン後、名前を付けて確定する際に使う。
// tag_id はスキャン結果をそのまま渡す想定（アプリ側で加工しない）。
type CreateToyRequest struct {
	Name  string  `json:"name" binding:"required"`
	TagID string  `json:"tag_id" binding:"required"`
	Memo  *string `json:"memo,omitempty"`
}

// 名前・メモの編集リクエスト（部分更新）
type UpdateToyRequest struct {
	Name *string `json:"name,omitempty"`
	Memo *string `json:"memo,omitempty"`
}

// タグ付け替えリクエスト（タグ紛失・破損時の再発行用）
type RetagRequest struct {
	TagID string `json:"tag_id" binding:"required"`
}

// トイレスポンス
// situation / actions は保存値ではなく、応答時点で毎回導出する。
type ToyResponse struct {
	ToyID        int64              `json:"toy_id"`
	ToyULID      string             `json:"toy_ulid"`
	Name         string             `json:"name"`
	TagID        string             `json:"tag_id"`
	Memo         *string            `json:"memo,omitempty"`
	IsSleeping   bool               `json:"is_sleeping"`
	CheckedOutAt *time.Time         `json:"checked_out_at,omitempty"`
	CheckInAt    *time.Time         `json:"check_in_at,omitempty"`
	ScannedAt    *time.Time         `json:"scanned_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	Situation    situation.Situation `json:"situation"`
	Actions      []situation.Action  `json:"actions"`
}

// 一覧の検索条件
type ListQuery struct {
	TagID     *string
	Sleeping  *bool
	Situation *situation.Situation // 導出値なのでSQLでは絞れない（読み出し後に適用）
}

type Page struct {
	Limit  int
	Offset int
	Order  string // "asc" / "desc"（created_at基準）
}

// ToResponse はトイ1件をレスポンス形に写す。状況は now 時点で導出。
func ToResponse(t *Toy, now time.Time) ToyResponse {
	st := situation.Derive(t.Snapshot(), now)
	return ToyResponse{
		ToyID:        t.ToyID,
		ToyULID:      t.ToyULID,
		Name:         t.Name,
		TagID:        t.TagID,
		Memo:         nullStrPtr(t.Memo),
		IsSleeping:   t.IsSleeping,
		CheckedOutAt: nullTimePtr(t.CheckedOutAt),
		CheckInAt:    nullTimePtr(t.CheckInAt),
		ScannedAt:    nullTimePtr(t.ScannedAt),
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
		Situation:    st,
		Actions:      situation.EligibleActions(st),
	}
}
