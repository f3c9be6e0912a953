// おもちゃの「いまどこ」判定エンジン
//
// トイレコードのタイムスタンプ群から状況（おうち/おでかけ/まいご/おやすみ）を
// 導出する純粋関数。DBアクセスも可変状態も持たない。
// 状況はDBに保存しない：読み取りのたびにここで計算する。
package situation

import (
	"log"
	"time"
)

// Situation はトイ1台の導出状況。4値のいずれかちょうど1つ。
type Situation string

const (
	Home     Situation = "HOME"     // おうちにある
	Out      Situation = "OUT"      // 持ち出し中
	Lost     Situation = "LOST"     // 48時間スキャンなし
	Sleeping Situation = "SLEEPING" // ユーザーが明示的にお休み指定
)

// Action はスキャン後にユーザーへ提示する操作。
type Action string

const (
	ActionCheckOut    Action = "CHECK_OUT"    // 持ち出し登録 → OUT
	ActionCheckIn     Action = "CHECK_IN"     // 帰宅登録 → HOME
	ActionToggleSleep Action = "TOGGLE_SLEEP" // おやすみフラグ反転
)

// LostAfter: 最終スキャン（なければ登録）からこの時間を超えると LOST 扱い。
const LostAfter = 48 * time.Hour

// Snapshot は判定に必要なフィールドだけを切り出したトイレコードの断面。
// nil は「未設定」。CheckInAt と CheckedOutAt は互いに独立で、
// どちらか一方だけが入っていることも両方入っていることもある。
type Snapshot struct {
	CheckInAt    *time.Time
	CheckedOutAt *time.Time
	ScannedAt    *time.Time
	CreatedAt    time.Time
	IsSleeping   bool
}

// Derive は now 時点の状況を返す。全域関数：どんな断面でも必ず4値のどれかを返す。
//
// タイムスタンプから LOST/HOME/OUT を先に計算し、IsSleeping が立っていれば
// 最後に SLEEPING で上書きする（表示・操作可否とも SLEEPING が優先）。
func Derive(s Snapshot, now time.Time) Situation {
	st := FromTimestamps(s, now)
	if s.IsSleeping {
		return Sleeping
	}
	return st
}

// FromTimestamps はおやすみフラグを無視してタイムスタンプだけで判定する。
func FromTimestamps(s Snapshot, now time.Time) Situation {
	// 1. LOST判定（最優先）：基準時刻は最終スキャン、未スキャンなら登録時刻
	ref := s.CreatedAt
	if t := Normalize(s.ScannedAt); t != nil {
		ref = *t
	}
	if now.Sub(ref) >= LostAfter {
		return Lost
	}

	// 2. HOME/OUT判定
	in := Normalize(s.CheckInAt)
	out := Normalize(s.CheckedOutAt)
	if in == nil {
		return Out
	}
	if out == nil {
		return Home
	}
	if in.After(*out) {
		return Home
	}
	// 同時刻はOUT扱い
	return Out
}

// Normalize はDB由来の壊れたタイムスタンプ（ゼロ値）を未設定として扱う。
// データ品質の問題であってアプリエラーではないので、ログだけ残して続行する。
func Normalize(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	if t.IsZero() {
		log.Printf("[WARN] situation: zero timestamp treated as unset (data quality)")
		return nil
	}
	return t
}

// EligibleActions は状況ごとに許可される操作の一覧を返す。
//
// HOME/OUT からは状態が変わる操作だけを出す（UI経由の無駄な書き込み防止）。
// LOST と SLEEPING からは CheckOut/CheckIn 両方を許す：実物をスキャンした
// という事実が正なので、古い状態をどちらの方向にも解消できる必要がある。
func EligibleActions(st Situation) []Action {
	switch st {
	case Home:
		return []Action{ActionCheckOut, ActionToggleSleep}
	case Out:
		return []Action{ActionCheckIn, ActionToggleSleep}
	case Lost, Sleeping:
		return []Action{ActionCheckOut, ActionCheckIn, ActionToggleSleep}
	default:
		return nil
	}
}

// Allowed は操作 a が状況 st から実行可能かを返す。
func Allowed(st Situation, a Action) bool {
	for _, x := range EligibleActions(st) {
		if x == a {
			return true
		}
	}
	return false
}

// Valid は a が既知の操作かどうかを返す（リクエスト検証用）。
func (a Action) Valid() bool {
	switch a {
	case ActionCheckOut, ActionCheckIn, ActionToggleSleep:
		return true
	}
	return false
}
