package toys

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"time"
)

// Service から見た永続化の窓口。テストではメモリ実装に差し替える。
type ToyStore interface {
	Insert(ctx context.Context, t *Toy) error
	GetByID(ctx context.Context, id int64) (*Toy, error)
	GetByULID(ctx context.Context, ulid string) (*Toy, error)
	List(ctx context.Context, q ListQuery, p Page) ([]Toy, int64, error)
	TagInUse(ctx context.Context, tagID string, excludeID int64) (bool, error)
	UpdateFields(ctx context.Context, id int64, set FieldSet) (int64, error)
	SoftDelete(ctx context.Context, id int64, now time.Time) (int64, error)
}

// UpdateFields 用の部分更新セット。nil のフィールドは触らない。
type FieldSet struct {
	Name      *string
	Memo      *string
	TagID     *string
	UpdatedAt time.Time
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const toyColumns = `
	toy_id, toy_ulid, name, tag_id, memo, is_sleeping,
	checked_out_at, check_in_at, scanned_at, created_at, updated_at, deleted_at`

func scanToy(row interface{ Scan(...any) error }) (*Toy, error) {
	var t Toy
	err := row.Scan(
		&t.ToyID, &t.ToyULID, &t.Name, &t.TagID, &t.Memo, &t.IsSleeping,
		&t.CheckedOutAt, &t.CheckInAt, &t.ScannedAt, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) Insert(ctx context.Context, t *Toy) error {
	const q = `
	INSERT INTO toys
	(toy_ulid, name, tag_id, memo, is_sleeping, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q,
		t.ToyULID, t.Name, t.TagID, nullStrOrNil(t.Memo), t.IsSleeping, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	t.ToyID = id
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Toy, error) {
	q := `SELECT` + toyColumns + ` FROM toys WHERE toy_id = ? AND deleted_at IS NULL`
	t, err := scanToy(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound("toy not found")
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) GetByULID(ctx context.Context, ulid string) (*Toy, error) {
	q := `SELECT` + toyColumns + ` FROM toys WHERE toy_ulid = ? AND deleted_at IS NULL`
	t, err := scanToy(s.db.QueryRowContext(ctx, q, ulid))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound("toy not found")
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// List: 動的WHERE + ORDER + LIMIT/OFFSET（削除済みは常に除外）
func (s *Store) List(ctx context.Context, q ListQuery, p Page) ([]Toy, int64, error) {
	var (
		buf    bytes.Buffer
		args   []any
		wheres = []string{"deleted_at IS NULL"}
	)
	buf.WriteString(`SELECT` + toyColumns + ` FROM toys`)

	if q.TagID != nil && *q.TagID != "" {
		wheres = append(wheres, "tag_id = ?")
		args = append(args, *q.TagID)
	}
	if q.Sleeping != nil {
		wheres = append(wheres, "is_sleeping = ?")
		args = append(args, *q.Sleeping)
	}
	buf.WriteString(" WHERE " + strings.Join(wheres, " AND "))

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	buf.WriteString(" ORDER BY created_at " + order + ", toy_id " + order)

	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	buf.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.QueryContext(ctx, buf.String(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Toy
	for rows.Next() {
		t, err := scanToy(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// 件数（同条件・ページング抜き）
	cq := `SELECT COUNT(*) FROM toys WHERE ` + strings.Join(wheres, " AND ")
	var total int64
	if err := s.db.QueryRowContext(ctx, cq, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// TagInUse: 未削除レコードの中でタグが既に使われているか。
// 付け替え時は自分自身を除外するため excludeID を渡す（新規登録時は0）。
func (s *Store) TagInUse(ctx context.Context, tagID string, excludeID int64) (bool, error) {
	const q = `
	SELECT 1 FROM toys
	WHERE tag_id = ? AND deleted_at IS NULL AND toy_id <> ?
	LIMIT 1`
	var one int
	err := s.db.QueryRowContext(ctx, q, tagID, excludeID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpdateFields: 指定フィールドだけをSETする部分更新。updated_at は常に更新。
func (s *Store) UpdateFields(ctx context.Context, id int64, set FieldSet) (int64, error) {
	var (
		sets = []string{"updated_at = ?"}
		args = []any{set.UpdatedAt}
	)
	if set.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *set.Name)
	}
	if set.Memo != nil {
		sets = append(sets, "memo = ?")
		args = append(args, *set.Memo)
	}
	if set.TagID != nil {
		sets = append(sets, "tag_id = ?")
		args = append(args, *set.TagID)
	}
	q := `UPDATE toys SET ` + strings.Join(sets, ", ") + ` WHERE toy_id = ? AND deleted_at IS NULL`
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}

func (s *Store) SoftDelete(ctx context.Context, id int64, now time.Time) (int64, error) {
	const q = `UPDATE toys SET deleted_at = ?, updated_at = ? WHERE toy_id = ? AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, q, now, now, id)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}

func nullStrOrNil(ns sql.NullString) any {
	if ns.Valid {
		return ns.String
	}
	return nil
}
