package toys

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"
	"time"

	"toybox-backend/internal/collection/situation"
)

// ===== fakes =====

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDGen struct{ n int }

func (g *seqIDGen) NewULID(time.Time) string {
	g.n++
	return fmt.Sprintf("01TESTULID%016d", g.n)
}

type memStore struct {
	toys   map[int64]*Toy
	nextID int64
}

func newMemStore() *memStore { return &memStore{toys: map[int64]*Toy{}, nextID: 1} }

func (m *memStore) Insert(_ context.Context, t *Toy) error {
	t.ToyID = m.nextID
	m.nextID++
	cp := *t
	m.toys[t.ToyID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*Toy, error) {
	t, ok := m.toys[id]
	if !ok || t.DeletedAt.Valid {
		return nil, ErrNotFound("toy not found")
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) GetByULID(_ context.Context, ulid string) (*Toy, error) {
	for _, t := range m.toys {
		if t.ToyULID == ulid && !t.DeletedAt.Valid {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound("toy not found")
}

func (m *memStore) List(_ context.Context, q ListQuery, _ Page) ([]Toy, int64, error) {
	var out []Toy
	for id := int64(1); id < m.nextID; id++ {
		t, ok := m.toys[id]
		if !ok || t.DeletedAt.Valid {
			continue
		}
		if q.TagID != nil && t.TagID != *q.TagID {
			continue
		}
		if q.Sleeping != nil && t.IsSleeping != *q.Sleeping {
			continue
		}
		out = append(out, *t)
	}
	return out, int64(len(out)), nil
}

func (m *memStore) TagInUse(_ context.Context, tagID string, excludeID int64) (bool, error) {
	for _, t := range m.toys {
		if t.TagID == tagID && !t.DeletedAt.Valid && t.ToyID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) UpdateFields(_ context.Context, id int64, set FieldSet) (int64, error) {
	t, ok := m.toys[id]
	if !ok || t.DeletedAt.Valid {
		return 0, nil
	}
	if set.Name != nil {
		t.Name = *set.Name
	}
	if set.Memo != nil {
		t.Memo = sql.NullString{String: *set.Memo, Valid: true}
	}
	if set.TagID != nil {
		t.TagID = *set.TagID
	}
	t.UpdatedAt = set.UpdatedAt
	return 1, nil
}

func (m *memStore) SoftDelete(_ context.Context, id int64, now time.Time) (int64, error) {
	t, ok := m.toys[id]
	if !ok || t.DeletedAt.Valid {
		return 0, nil
	}
	t.DeletedAt = sql.NullTime{Time: now, Valid: true}
	t.UpdatedAt = now
	return 1, nil
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(store ToyStore) *Service {
	return NewServiceWith(store, fixedClock{t: testNow}, &seqIDGen{})
}

// ===== tests =====

func TestRegisterNewToy(t *testing.T) {
	svc := newTestService(newMemStore())
	memo := "青いやつ"
	res, err := svc.Register(context.Background(), CreateToyRequest{
		Name: "ハチロク", TagID: "nfc-abc123", Memo: &memo,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.ToyID == 0 || res.ToyULID == "" {
		t.Error("expected assigned id and ulid")
	}
	// 登録直後はチェックイン履歴なし → OUT
	if res.Situation != situation.Out {
		t.Errorf("expected OUT right after registration, got %s", res.Situation)
	}
	if res.CreatedAt != testNow || res.UpdatedAt != testNow {
		t.Error("created_at/updated_at should be set to now")
	}
}

func TestRegisterRequiresNameAndTag(t *testing.T) {
	svc := newTestService(newMemStore())
	if _, err := svc.Register(context.Background(), CreateToyRequest{Name: " ", TagID: "x"}); err == nil {
		t.Error("expected error for blank name")
	}
	if _, err := svc.Register(context.Background(), CreateToyRequest{Name: "x", TagID: ""}); err == nil {
		t.Error("expected error for empty tag_id")
	}
}

func TestRegisterDuplicateTagConflicts(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()
	if _, err := svc.Register(ctx, CreateToyRequest{Name: "A", TagID: "tag-1"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(ctx, CreateToyRequest{Name: "B", TagID: "tag-1"})
	api, ok := err.(*APIError)
	if !ok || api.Code != CodeConflict {
		t.Errorf("expected CONFLICT, got %v", err)
	}
}

func TestRegisterAllowsReusingDeletedTag(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()
	res, _ := svc.Register(ctx, CreateToyRequest{Name: "A", TagID: "tag-1"})
	if err := svc.Delete(ctx, strconv.FormatInt(res.ToyID, 10)); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// 論理削除後は同じタグで再登録できる
	if _, err := svc.Register(ctx, CreateToyRequest{Name: "B", TagID: "tag-1"}); err != nil {
		t.Errorf("expected re-registration after soft delete, got %v", err)
	}
}

func TestGetByKeyResolvesULID(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()
	created, _ := svc.Register(ctx, CreateToyRequest{Name: "A", TagID: "tag-1"})

	byID, err := svc.GetByKey(ctx, strconv.FormatInt(created.ToyID, 10))
	if err != nil || byID.ToyID != created.ToyID {
		t.Fatalf("get by id: %v", err)
	}
	byULID, err := svc.GetByKey(ctx, created.ToyULID)
	if err != nil || byULID.ToyID != created.ToyID {
		t.Fatalf("get by ulid: %v", err)
	}
}

func TestRetag(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()
	a, _ := svc.Register(ctx, CreateToyRequest{Name: "A", TagID: "tag-a"})
	svc.Register(ctx, CreateToyRequest{Name: "B", TagID: "tag-b"})

	// 他トイのタグへの付け替えは409
	_, err := svc.Retag(ctx, a.ToyULID, RetagRequest{TagID: "tag-b"})
	api, ok := err.(*APIError)
	if !ok || api.Code != CodeConflict {
		t.Errorf("expected CONFLICT, got %v", err)
	}

	// 自分の現タグへの「付け替え」は許容（自分自身は除外される）
	if _, err := svc.Retag(ctx, a.ToyULID, RetagRequest{TagID: "tag-a"}); err != nil {
		t.Errorf("retag to own tag: %v", err)
	}

	// 新しいタグへの付け替え
	res, err := svc.Retag(ctx, a.ToyULID, RetagRequest{TagID: "tag-c"})
	if err != nil {
		t.Fatalf("Retag: %v", err)
	}
	if res.TagID != "tag-c" {
		t.Errorf("expected tag-c, got %s", res.TagID)
	}
}

func TestUpdateNameAndMemo(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()
	a, _ := svc.Register(ctx, CreateToyRequest{Name: "A", TagID: "tag-a"})

	name := "パトカー"
	memo := "タイヤ交換済み"
	res, err := svc.Update(ctx, a.ToyULID, UpdateToyRequest{Name: &name, Memo: &memo})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.Name != name || res.Memo == nil || *res.Memo != memo {
		t.Errorf("unexpected result: %+v", res)
	}

	if _, err := svc.Update(ctx, a.ToyULID, UpdateToyRequest{}); err == nil {
		t.Error("expected error for empty update")
	}
}

func TestDeleteHidesToy(t *testing.T) {
	svc := newTestService(newMemStore())
	ctx := context.Background()
	a, _ := svc.Register(ctx, CreateToyRequest{Name: "A", TagID: "tag-a"})

	if err := svc.Delete(ctx, a.ToyULID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.GetByKey(ctx, a.ToyULID); err == nil {
		t.Error("deleted toy should not be found")
	}
	if err := svc.Delete(ctx, a.ToyULID); err == nil {
		t.Error("double delete should fail")
	}
}

func TestListSituationFilter(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	ctx := context.Background()
	svc.Register(ctx, CreateToyRequest{Name: "A", TagID: "tag-a"})
	b, _ := svc.Register(ctx, CreateToyRequest{Name: "B", TagID: "tag-b"})

	// Bをチェックイン済みにする（HOME）
	store.toys[b.ToyID].CheckInAt = sql.NullTime{Time: testNow, Valid: true}
	store.toys[b.ToyID].ScannedAt = sql.NullTime{Time: testNow, Valid: true}

	home := situation.Home
	items, total, err := svc.List(ctx, ListQuery{Situation: &home}, Page{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ToyID != b.ToyID {
		t.Errorf("expected only toy B, got %+v", items)
	}
}
