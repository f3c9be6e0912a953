package toys

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	ulid "github.com/oklog/ulid/v2"
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
	store ToyStore
	clock Clock
	id    IDGen
}

func NewService(db *sql.DB) *Service {
	return &Service{store: NewStore(db), clock: realClock{}, id: ulidGen{}}
}

// テスト用に依存を差し替えるコンストラクタ
func NewServiceWith(store ToyStore, clock Clock, id IDGen) *Service {
	return &Service{store: store, clock: clock, id: id}
}

// 登録：未登録タグのスキャン → 名前を付けて新規トイ確定
func (s *Service) Register(ctx context.Context, in CreateToyRequest) (*ToyResponse, error) {
	name := strings.TrimSpace(in.Name)
	tag := strings.TrimSpace(in.TagID)
	if name == "" {
		return nil, ErrInvalid("name is required")
	}
	if tag == "" {
		return nil, ErrInvalid("tag_id is required")
	}

	// 未削除レコード内でのタグ一意性はアプリ側でも確認する
	// （UNIQUE制約は削除済み行と衝突するためDBだけでは張れない）
	used, err := s.store.TagInUse(ctx, tag, 0)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, ErrConflict("tag_id is already bound to another toy")
	}

	now := s.clock.Now()
	t := &Toy{
		ToyULID:   s.id.NewULID(now),
		Name:      name,
		TagID:     tag,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Memo != nil && *in.Memo != "" {
		t.Memo = sql.NullString{String: *in.Memo, Valid: true}
	}

	if err := s.store.Insert(ctx, t); err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return nil, ErrConflict("tag_id is already bound to another toy")
		}
		return nil, err
	}

	resp := ToResponse(t, now)
	return &resp, nil
}

// 単一取得（ID or ULID）
func (s *Service) GetByKey(ctx context.Context, key string) (*ToyResponse, error) {
	t, err := s.resolve(ctx, key)
	if err != nil {
		return nil, err
	}
	resp := ToResponse(t, s.clock.Now())
	return &resp, nil
}

// 一覧。situation フィルタは導出値なので読み出し後に適用する。
func (s *Service) List(ctx context.Context, q ListQuery, p Page) ([]ToyResponse, int64, error) {
	items, total, err := s.store.List(ctx, q, p)
	if err != nil {
		return nil, 0, err
	}

	now := s.clock.Now()
	out := make([]ToyResponse, 0, len(items))
	for i := range items {
		resp := ToResponse(&items[i], now)
		if q.Situation != nil && resp.Situation != *q.Situation {
			continue
		}
		out = append(out, resp)
	}
	if q.Situation != nil {
		// 導出値フィルタ時はSQLの総数が使えないのでページ内件数を返す
		total = int64(len(out))
	}
	return out, total, nil
}

// 名前・メモ編集
func (s *Service) Update(ctx context.Context, key string, in UpdateToyRequest) (*ToyResponse, error) {
	if in.Name == nil && in.Memo == nil {
		return nil, ErrInvalid("nothing to update")
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return nil, ErrInvalid("name must not be empty")
	}

	t, err := s.resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if _, err := s.store.UpdateFields(ctx, t.ToyID, FieldSet{
		Name:      in.Name,
		Memo:      in.Memo,
		UpdatedAt: now,
	}); err != nil {
		return nil, err
	}

	updated, err := s.store.GetByID(ctx, t.ToyID)
	if err != nil {
		return nil, err
	}
	resp := ToResponse(updated, now)
	return &resp, nil
}

// タグ付け替え（タグ紛失・再発行）
func (s *Service) Retag(ctx context.Context, key string, in RetagRequest) (*ToyResponse, error) {
	tag := strings.TrimSpace(in.TagID)
	if tag == "" {
		return nil, ErrInvalid("tag_id is required")
	}

	t, err := s.resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	used, err := s.store.TagInUse(ctx, tag, t.ToyID)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, ErrConflict("tag_id is already bound to another toy")
	}

	now := s.clock.Now()
	if _, err := s.store.UpdateFields(ctx, t.ToyID, FieldSet{
		TagID:     &tag,
		UpdatedAt: now,
	}); err != nil {
		return nil, err
	}

	updated, err := s.store.GetByID(ctx, t.ToyID)
	if err != nil {
		return nil, err
	}
	resp := ToResponse(updated, now)
	return &resp, nil
}

// 論理削除。物理削除はしない（履歴参照が残るため）。
func (s *Service) Delete(ctx context.Context, key string) error {
	t, err := s.resolve(ctx, key)
	if err != nil {
		return err
	}
	aff, err := s.store.SoftDelete(ctx, t.ToyID, s.clock.Now())
	if err != nil {
		return err
	}
	if aff == 0 {
		return ErrNotFound("toy not found")
	}
	return nil
}

// resolve: 数値ならID、それ以外はULIDとして検索
func (s *Service) resolve(ctx context.Context, key string) (*Toy, error) {
	if key == "" {
		return nil, ErrInvalid("id or ulid is required")
	}
	if id, err := strconv.ParseInt(key, 10, 64); err == nil && id > 0 {
		return s.store.GetByID(ctx, id)
	}
	return s.store.GetByULID(ctx, key)
}
