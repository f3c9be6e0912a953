package scans

import (
	"context"
	"crypto/rand"
	"database/sql"
	"log"
	"strconv"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"toybox-backend/internal/collection/situation"
	"toybox-backend/internal/collection/toys"
)

// ===== Clock & ID =====

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// ===== Service =====

type Service struct {
	store ScanStore
	clock Clock
	id    IDGen
}

func NewService(db *sql.DB) *Service {
	return &Service{store: NewStore(db), clock: realClock{}, id: ulidGen{}}
}

// テスト用に依存を差し替えるコンストラクタ
func NewServiceWith(store ScanStore, clock Clock, id IDGen) *Service {
	return &Service{store: store, clock: clock, id: id}
}

// HandleScan: NFC読み取り1回をアプリが行動できる結果に変換する。
//
// 読み取り → タグでトイ照会 → 0件なら未登録（書き込みゼロ）、
// 1件以上ならスキャン前断面で situation / actions を導出してから
// 全マッチの scanned_at を更新する。scanned_at の更新がスキャン中の
// トイをLOSTタイマーから守る。状態遷移（チェックイン等）はここでは
// 一切行わない：どの操作を適用するかはアプリ側の判断。
func (s *Service) HandleScan(ctx context.Context, in HandleScanRequest) (*ScanOutcome, error) {
	tag := strings.TrimSpace(in.TagID)
	if tag == "" {
		return nil, ErrInvalid("tag_id is required")
	}

	matched, err := s.store.FindActiveByTag(ctx, tag)
	if err != nil {
		// 照会に失敗したら何も書かずに返す（アプリは再試行を促す）
		return nil, ErrUnavailable("tag lookup failed")
	}

	now := s.clock.Now()

	if len(matched) == 0 {
		// 未登録タグ：書き込みゼロで登録導線へ
		return &ScanOutcome{Result: ResultUnregistered, TagID: tag}, nil
	}

	// 同一クエリ内の重複行をIDで除去（発見順は維持）
	seen := make(map[int64]bool, len(matched))
	uniq := matched[:0]
	for _, t := range matched {
		if seen[t.ToyID] {
			continue
		}
		seen[t.ToyID] = true
		uniq = append(uniq, t)
	}

	dup := len(uniq) > 1
	if dup {
		// タグ一意性の不整合（付け替え競合など）。警告のみで処理は続行する。
		log.Printf("[WARN] scans: tag %s matches %d toys", tag, len(uniq))
	}

	ev := &ScanEvent{
		ScanULID:  s.id.NewULID(now),
		TagID:     tag,
		Matched:   len(uniq),
		Duplicate: dup,
		ScannedAt: now,
	}
	if in.ScannedBy != nil && *in.ScannedBy != "" {
		ev.ScannedBy = sql.NullString{String: *in.ScannedBy, Valid: true}
	}

	ids := make([]int64, 0, len(uniq))
	for _, t := range uniq {
		ids = append(ids, t.ToyID)
	}
	if err := s.store.ExecTouchScanned(ctx, ev, ids, now); err != nil {
		return nil, err
	}

	// situation / actions はスキャン前の断面で導出する：
	// LOST のトイは LOST のまま提示し、両方向の操作で解消させる
	items := make([]toys.ToyResponse, 0, len(uniq))
	for i := range uniq {
		resp := toys.ToResponse(&uniq[i], now)
		resp.ScannedAt = &now // 書き込み済みの値を反映
		items = append(items, resp)
	}

	return &ScanOutcome{Result: ResultFound, TagID: tag, DuplicateTag: dup, Toys: items}, nil
}

// ApplyAction: スキャン後にアプリが選んだ操作を適用する。
//
// 状況は提示時の値を信用せず適用時に再導出する。提示からタップまでの間に
// 48時間境界を越えたり他端末が状態を変えている可能性があるため。
func (s *Service) ApplyAction(ctx context.Context, key string, in ApplyActionRequest) (*toys.ToyResponse, error) {
	if !in.Action.Valid() {
		return nil, ErrInvalid("action must be CHECK_OUT, CHECK_IN or TOGGLE_SLEEP")
	}

	t, err := s.resolveToy(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	cur := situation.Derive(t.Snapshot(), now)
	if !situation.Allowed(cur, in.Action) {
		return nil, ErrIneligible(in.Action, cur)
	}

	set := ActionFields{ToyID: t.ToyID, UpdatedAt: now}
	switch in.Action {
	case situation.ActionCheckOut:
		set.CheckedOutAt = &now // check_in_at はそのまま
	case situation.ActionCheckIn:
		set.CheckInAt = &now // checked_out_at はそのまま
	case situation.ActionToggleSleep:
		b := !t.IsSleeping
		set.IsSleeping = &b
	}

	act := &ToyAction{
		ActionULID:  s.id.NewULID(now),
		ToyID:       t.ToyID,
		Action:      in.Action,
		Situation:   cur,
		PerformedAt: now,
	}
	if in.PerformedBy != nil && *in.PerformedBy != "" {
		act.PerformedBy = sql.NullString{String: *in.PerformedBy, Valid: true}
	}

	if err := s.store.ExecApplyAction(ctx, act, set); err != nil {
		return nil, err
	}

	updated, err := s.store.GetToyByID(ctx, t.ToyID)
	if err != nil {
		return nil, err
	}
	resp := toys.ToResponse(updated, now)
	return &resp, nil
}

// スキャン履歴一覧
func (s *Service) ListScans(ctx context.Context, f ScanFilter, p Page) ([]ScanEventResponse, int64, error) {
	events, total, err := s.store.ListScanEvents(ctx, f, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ScanEventResponse, 0, len(events))
	for i := range events {
		out = append(out, events[i].toDTO())
	}
	return out, total, nil
}

// トイ1台の操作履歴一覧
func (s *Service) ListToyHistory(ctx context.Context, key string, p Page) ([]ToyActionResponse, int64, error) {
	t, err := s.resolveToy(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	actions, total, err := s.store.ListToyActions(ctx, t.ToyID, p)
	if err != nil {
		return nil, 0, err
	}
	out := make([]ToyActionResponse, 0, len(actions))
	for i := range actions {
		out = append(out, actions[i].toDTO())
	}
	return out, total, nil
}

// resolveToy: 数値ならID、それ以外はULIDとして検索
func (s *Service) resolveToy(ctx context.Context, key string) (*toys.Toy, error) {
	if key == "" {
		return nil, ErrInvalid("id or ulid is required")
	}
	if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > 0 {
		return s.store.GetToyByID(ctx, id)
	}
	return s.store.GetToyByULID(ctx, key)
}
