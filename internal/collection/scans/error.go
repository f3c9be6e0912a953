package scans

import (
	"errors"
	"fmt"

	"toybox-backend/internal/collection/situation"
)

// ===== Error model (toys と同型 + 操作拒否の詳細付き) =====
type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeUnavailable     Code = "UNAVAILABLE"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string

	// 操作拒否（CONFLICT）のとき、クライアントが再描画できるよう
	// 拒否された操作と適用時点の状況を添える
	Action           situation.Action
	CurrentSituation situation.Situation
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError { return &APIError{Code: CodeConflict, Message: msg} }
func ErrUnavailable(msg string) *APIError {
	return &APIError{Code: CodeUnavailable, Message: msg}
}
func ErrInternal(msg string) *APIError { return &APIError{Code: CodeInternal, Message: msg} }

// ErrIneligible: 表示時点と適用時点の状況ズレ（48時間境界越え等）や
// 他端末との競合で、操作がもう許可されない場合
func ErrIneligible(a situation.Action, cur situation.Situation) *APIError {
	return &APIError{
		Code:             CodeConflict,
		Message:          fmt.Sprintf("action %s is not allowed from situation %s", a, cur),
		Action:           a,
		CurrentSituation: cur,
	}
}

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
		case CodeConflict:
			return 409
		case CodeUnavailable:
			return 503
		default:
			return 500
		}
	}
	return 500
}
