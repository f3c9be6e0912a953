// タグラベル用CSV出力
//
// ラベルプリンタ（テプラ等）の流し込み印刷ソフトは cp932 のCSVしか
// 受け付けないものが多いので、コレクション一覧を Shift_JIS で書き出す。
// 印刷自体はPC側のソフトに任せる。
package labels

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"toybox-backend/internal/collection/situation"
	"toybox-backend/internal/collection/toys"
)

// ===== Error model (toys/scans と同型・最小限) =====
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) && api.Code == CodeInvalidArgument {
		return 400
	}
	return 500
}

// ===== Service =====

// トイ一覧の読み出しだけできればよい（*toys.Store がそのまま満たす）
type ToyLister interface {
	List(ctx context.Context, q toys.ListQuery, p toys.Page) ([]toys.Toy, int64, error)
}

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type Service struct {
	store ToyLister
	clock Clock
}

func NewService(store ToyLister) *Service {
	return &Service{store: store, clock: realClock{}}
}

func NewServiceWith(store ToyLister, clock Clock) *Service {
	return &Service{store: store, clock: clock}
}

const (
	CharsetCP932 = "cp932"
	CharsetUTF8  = "utf-8"

	// 1回の出力上限。ラベル印刷ソフト側の流し込み行数の都合。
	maxExportRows = 500
)

var csvHeader = []string{"toy_ulid", "name", "tag_id", "situation", "memo"}

// ExportCSV はコレクション全体（未削除）のラベル用CSVを返す。
// charset は cp932（既定）または utf-8。
func (s *Service) ExportCSV(ctx context.Context, charset string) ([]byte, error) {
	if charset == "" {
		charset = CharsetCP932
	}
	if charset != CharsetCP932 && charset != CharsetUTF8 {
		return nil, ErrInvalid("charset must be cp932 or utf-8")
	}

	items, _, err := s.store.List(ctx, toys.ListQuery{}, toys.Page{Limit: maxExportRows, Order: "asc"})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	records := [][]string{csvHeader}
	for i := range items {
		t := &items[i]
		memo := ""
		if t.Memo.Valid {
			memo = t.Memo.String
		}
		st := situation.Derive(t.Snapshot(), now)
		records = append(records, []string{t.ToyULID, t.Name, t.TagID, string(st), memo})
	}

	var buf bytes.Buffer
	var w *csv.Writer
	if charset == CharsetCP932 {
		enc := transform.NewWriter(&buf, japanese.ShiftJIS.NewEncoder())
		w = csv.NewWriter(enc)
		w.UseCRLF = true // Windowsの印刷ソフト向け
		if err := w.WriteAll(records); err != nil {
			return nil, ErrInternal("csv encode failed: " + err.Error())
		}
		if err := enc.Close(); err != nil {
			return nil, ErrInternal("cp932 encode failed: " + err.Error())
		}
	} else {
		w = csv.NewWriter(&buf)
		if err := w.WriteAll(records); err != nil {
			return nil, ErrInternal("csv encode failed: " + err.Error())
		}
	}
	return buf.Bytes(), nil
}
