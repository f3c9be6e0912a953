package scans

import (
	"bytes"
	"context"
	"database/sql"
	"strings"
	"time"

	"toybox-backend/internal/collection/toys"
	"toybox-backend/internal/platform/db"
)

// Service から見た永続化の窓口。テストではメモリ実装に差し替える。
type ScanStore interface {
	FindActiveByTag(ctx context.Context, tagID string) ([]toys.Toy, error)
	GetToyByID(ctx context.Context, id int64) (*toys.Toy, error)
	GetToyByULID(ctx context.Context, ulid string) (*toys.Toy, error)
	ExecTouchScanned(ctx context.Context, ev *ScanEvent, toyIDs []int64, now time.Time) error
	ExecApplyAction(ctx context.Context, act *ToyAction, set ActionFields) error
	ListScanEvents(ctx context.Context, f ScanFilter, p Page) ([]ScanEvent, int64, error)
	ListToyActions(ctx context.Context, toyID int64, p Page) ([]ToyAction, int64, error)
}

// ExecApplyAction 用の部分更新セット。nil のフィールドは触らない。
// 無条件SET（last-write-wins）：端末間の競合はスキャンという物理行為を
// 正として解消する設計なので、CASはかけない。
type ActionFields struct {
	ToyID        int64
	CheckedOutAt *time.Time
	CheckInAt    *time.Time
	IsSleeping   *bool
	UpdatedAt    time.Time
}

type Store struct{ db *sql.DB }

func NewStore(d *sql.DB) *Store { return &Store{db: d} }

const toyColumns = `
	toy_id, toy_ulid, name, tag_id, memo, is_sleeping,
	checked_out_at, check_in_at, scanned_at, created_at, updated_at, deleted_at`

func scanToyRow(row interface{ Scan(...any) error }) (*toys.Toy, error) {
	var t toys.Toy
	err := row.Scan(
		&t.ToyID, &t.ToyULID, &t.Name, &t.TagID, &t.Memo, &t.IsSleeping,
		&t.CheckedOutAt, &t.CheckInAt, &t.ScannedAt, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindActiveByTag: 未削除でタグが一致するトイを発見順（toy_id昇順）で返す。
// 一意性はデータモデル上の建前だが、付け替え競合で複数返ることがあるので
// 呼び出し側は複数件を前提に処理する。
func (s *Store) FindActiveByTag(ctx context.Context, tagID string) ([]toys.Toy, error) {
	q := `SELECT` + toyColumns + ` FROM toys WHERE tag_id = ? AND deleted_at IS NULL ORDER BY toy_id ASC`
	rows, err := s.db.QueryContext(ctx, q, tagID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []toys.Toy
	for rows.Next() {
		t, err := scanToyRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) GetToyByID(ctx context.Context, id int64) (*toys.Toy, error) {
	q := `SELECT` + toyColumns + ` FROM toys WHERE toy_id = ? AND deleted_at IS NULL`
	t, err := scanToyRow(s.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound("toy not found")
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) GetToyByULID(ctx context.Context, ulid string) (*toys.Toy, error) {
	q := `SELECT` + toyColumns + ` FROM toys WHERE toy_ulid = ? AND deleted_at IS NULL`
	t, err := scanToyRow(s.db.QueryRowContext(ctx, q, ulid))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound("toy not found")
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ExecTouchScanned: マッチした全トイの scanned_at を更新し、
// スキャンイベントを1行追加する（1トランザクション）。
// scanned_at 以外のトイフィールドには触らない。
func (s *Store) ExecTouchScanned(ctx context.Context, ev *ScanEvent, toyIDs []int64, now time.Time) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		ph := make([]string, len(toyIDs))
		args := []any{now}
		for i, id := range toyIDs {
			ph[i] = "?"
			args = append(args, id)
		}
		uq := `UPDATE toys SET scanned_at = ? WHERE toy_id IN (` + strings.Join(ph, ",") + `)`
		if _, err := tx.ExecContext(ctx, uq, args...); err != nil {
			return err
		}

		const iq = `
		INSERT INTO scan_events (scan_ulid, tag_id, matched, duplicate, scanned_by, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?)`
		res, err := tx.ExecContext(ctx, iq,
			ev.ScanULID, ev.TagID, ev.Matched, ev.Duplicate, nullStrOrNil(ev.ScannedBy), ev.ScannedAt,
		)
		if err != nil {
			return err
		}
		id, _ := res.LastInsertId()
		ev.ScanID = id
		return nil
	})
}

// ExecApplyAction: トイの対象フィールド更新と操作履歴の追加を1トランザクションで行う
func (s *Store) ExecApplyAction(ctx context.Context, act *ToyAction, set ActionFields) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		var (
			sets = []string{"updated_at = ?"}
			args = []any{set.UpdatedAt}
		)
		if set.CheckedOutAt != nil {
			sets = append(sets, "checked_out_at = ?")
			args = append(args, *set.CheckedOutAt)
		}
		if set.CheckInAt != nil {
			sets = append(sets, "check_in_at = ?")
			args = append(args, *set.CheckInAt)
		}
		if set.IsSleeping != nil {
			sets = append(sets, "is_sleeping = ?")
			args = append(args, *set.IsSleeping)
		}
		uq := `UPDATE toys SET ` + strings.Join(sets, ", ") + ` WHERE toy_id = ? AND deleted_at IS NULL`
		args = append(args, set.ToyID)

		res, err := tx.ExecContext(ctx, uq, args...)
		if err != nil {
			return err
		}
		if aff, _ := res.RowsAffected(); aff == 0 {
			return ErrNotFound("toy not found")
		}

		const iq = `
		INSERT INTO toy_actions (action_ulid, toy_id, action, situation, performed_by, performed_at)
		VALUES (?, ?, ?, ?, ?, ?)`
		r2, err := tx.ExecContext(ctx, iq,
			act.ActionULID, act.ToyID, string(act.Action), string(act.Situation),
			nullStrOrNil(act.PerformedBy), act.PerformedAt,
		)
		if err != nil {
			return err
		}
		id, _ := r2.LastInsertId()
		act.ActionID = id
		return nil
	})
}

// ListScanEvents: 動的WHERE + ORDER + LIMIT/OFFSET
func (s *Store) ListScanEvents(ctx context.Context, f ScanFilter, p Page) ([]ScanEvent, int64, error) {
	var (
		buf    bytes.Buffer
		args   []any
		wheres []string
	)
	buf.WriteString(`
	SELECT scan_id, scan_ulid, tag_id, matched, duplicate, scanned_by, scanned_at
	FROM scan_events`)

	if f.TagID != nil && *f.TagID != "" {
		wheres = append(wheres, "tag_id = ?")
		args = append(args, *f.TagID)
	}
	if f.DuplicateOnly {
		wheres = append(wheres, "duplicate = 1")
	}
	if f.From != nil {
		wheres = append(wheres, "scanned_at >= ?")
		args = append(args, *f.From)
	}
	if f.To != nil {
		wheres = append(wheres, "scanned_at < ?")
		args = append(args, *f.To)
	}
	if len(wheres) > 0 {
		buf.WriteString(" WHERE " + strings.Join(wheres, " AND "))
	}

	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	buf.WriteString(" ORDER BY scanned_at " + order + ", scan_id " + order)

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

	var out []ScanEvent
	for rows.Next() {
		var e ScanEvent
		if err := rows.Scan(&e.ScanID, &e.ScanULID, &e.TagID, &e.Matched, &e.Duplicate, &e.ScannedBy, &e.ScannedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	cq := `SELECT COUNT(*) FROM scan_events`
	if len(wheres) > 0 {
		cq += " WHERE " + strings.Join(wheres, " AND ")
	}
	var total int64
	if err := s.db.QueryRowContext(ctx, cq, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (s *Store) ListToyActions(ctx context.Context, toyID int64, p Page) ([]ToyAction, int64, error) {
	order := "DESC"
	if strings.ToLower(p.Order) == "asc" {
		order = "ASC"
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	q := `
	SELECT action_id, action_ulid, toy_id, action, situation, performed_by, performed_at
	FROM toy_actions WHERE toy_id = ? ORDER BY performed_at ` + order + `, action_id ` + order + ` LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, q, toyID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []ToyAction
	for rows.Next() {
		var a ToyAction
		if err := rows.Scan(&a.ActionID, &a.ActionULID, &a.ToyID, &a.Action, &a.Situation, &a.PerformedBy, &a.PerformedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM toy_actions WHERE toy_id = ?`, toyID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func nullStrOrNil(ns sql.NullString) any {
	if ns.Valid {
		return ns.String
	}
	return nil
}
