package scans

import (
	"time"

	"toybox-backend/internal/collection/situation"
	"toybox-backend/internal/collection/toys"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// NFC読み取り1回分のリクエスト。tag_id は端末が読んだ値をそのまま渡す。
type HandleScanRequest struct {
	TagID     string  `json:"tag_id" binding:"required"`
	ScannedBy *string `json:"scanned_by,omitempty"` // 家族アカウントID
}

type ScanResult string

const (
	ResultFound        ScanResult = "FOUND"
	ResultUnregistered ScanResult = "UNREGISTERED"
)

// ScanOutcome はスキャン1回の結果。
// UNREGISTERED のときは toys は空で、アプリは tag_id を初期値に登録画面へ進む。
// FOUND のときは各トイにスキャン前断面で導出した situation / actions が付く。
type ScanOutcome struct {
	Result       ScanResult         `json:"result"`
	TagID        string             `json:"tag_id"`
	DuplicateTag bool               `json:"duplicate_tag,omitempty"` // 同一タグ複数トイ（警告のみ、登録はブロックしない）
	Toys         []toys.ToyResponse `json:"toys,omitempty"`
}

// 操作適用リクエスト
type ApplyActionRequest struct {
	Action      situation.Action `json:"action" binding:"required"`
	PerformedBy *string          `json:"performed_by,omitempty"`
}

type ScanEventResponse struct {
	ScanID    int64     `json:"scan_id"`
	ScanULID  string    `json:"scan_ulid"`
	TagID     string    `json:"tag_id"`
	Matched   int       `json:"matched"`
	Duplicate bool      `json:"duplicate,omitempty"`
	ScannedBy *string   `json:"scanned_by,omitempty"`
	ScannedAt time.Time `json:"scanned_at"`
}

type ToyActionResponse struct {
	ActionID    int64               `json:"action_id"`
	ActionULID  string              `json:"action_ulid"`
	ToyID       int64               `json:"toy_id"`
	Action      situation.Action    `json:"action"`
	Situation   situation.Situation `json:"situation"` // 適用前の状況
	PerformedBy *string             `json:"performed_by,omitempty"`
	PerformedAt time.Time           `json:"performed_at"`
}

// スキャン履歴の検索条件
type ScanFilter struct {
	TagID         *string
	DuplicateOnly bool
	From          *time.Time
	To            *time.Time
}

type Page struct {
	Limit  int
	Offset int
	Order  string
}

func (e *ScanEvent) toDTO() ScanEventResponse {
	r := ScanEventResponse{
		ScanID:    e.ScanID,
		ScanULID:  e.ScanULID,
		TagID:     e.TagID,
		Matched:   e.Matched,
		Duplicate: e.Duplicate,
		ScannedAt: e.ScannedAt,
	}
	if e.ScannedBy.Valid {
		v := e.ScannedBy.String
		r.ScannedBy = &v
	}
	return r
}

func (a *ToyAction) toDTO() ToyActionResponse {
	r := ToyActionResponse{
		ActionID:    a.ActionID,
		ActionULID:  a.ActionULID,
		ToyID:       a.ToyID,
		Action:      a.Action,
		Situation:   a.Situation,
		PerformedAt: a.PerformedAt,
	}
	if a.PerformedBy.Valid {
		v := a.PerformedBy.String
		r.PerformedBy = &v
	}
	return r
}
