// Package rpc は型付きRPCのプロシージャ定義、ディスパッチ、
// リクエストコンテキスト解決を提供する。
package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Code はRPCエラーの種別を表すワイヤコード。
type Code string

const (
	// CodeBadRequest は入力が契約を満たさない場合のエラー。
	CodeBadRequest Code = "BAD_REQUEST"
	// CodeUnauthorized は保護プロシージャが未認証で呼ばれた場合のエラー。
	CodeUnauthorized Code = "UNAUTHORIZED"
	// CodeForbidden は認証済みだが権限が足りない場合のエラー。
	CodeForbidden Code = "FORBIDDEN"
	// CodeNotFound はエンティティまたはプロシージャが存在しない場合のエラー。
	// 入力不正（BAD_REQUEST）とは区別し、クライアントが文字列照合なしで
	// 不在を判定できるようにする。
	CodeNotFound Code = "NOT_FOUND"
	// CodeMethodNotSupported はプロシージャ種別とHTTPメソッドの不一致。
	CodeMethodNotSupported Code = "METHOD_NOT_SUPPORTED"
	// CodeTooManyRequests はレート制限超過。
	CodeTooManyRequests Code = "TOO_MANY_REQUESTS"
	// CodeInternal はサーバー内部エラー。詳細はログのみに記録する。
	CodeInternal Code = "INTERNAL_SERVER_ERROR"
)

// HTTPStatus はエラーコードに対応するHTTPステータスコードを返す。
func (c Code) HTTPStatus() int {
	switch c {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotSupported:
		return http.StatusMethodNotAllowed
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error は型付きRPCの構造化エラー。
// バリデーションエラーの場合はフィールドごとのメッセージを保持する。
type Error struct {
	Code        Code
	Message     string
	FieldErrors map[string][]string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// NewBadRequest は入力不正エラーを生成する。
func NewBadRequest(message string) *Error {
	return &Error{
		Code:    CodeBadRequest,
		Message: message,
	}
}

// NewValidationError はフィールドごとの詳細を保持するバリデーションエラーを生成する。
// メッセージはフィールド名順に全違反を連結したもの。
func NewValidationError(fieldErrors map[string][]string) *Error {
	fields := make([]string, 0, len(fieldErrors))
	for field := range fieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var messages []string
	for _, field := range fields {
		messages = append(messages, fieldErrors[field]...)
	}

	return &Error{
		Code:        CodeBadRequest,
		Message:     strings.Join(messages, ", "),
		FieldErrors: fieldErrors,
	}
}

// NewUnauthorized は未認証エラーを生成する。
func NewUnauthorized() *Error {
	return &Error{
		Code:    CodeUnauthorized,
		Message: "認証が必要です。サインインしてください。",
	}
}

// NewNotFound はエンティティ不在エラーを生成する。
func NewNotFound(message string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: message,
	}
}

// NewInternal は内部エラーを生成する。詳細はログのみに記録し、
// 呼び出し側には一般的なメッセージを返す。
func NewInternal() *Error {
	return &Error{
		Code:    CodeInternal,
		Message: "内部エラーが発生しました。しばらく待ってから再度お試しください。",
	}
}

// --- ワイヤ表現 ---
// ルーターとクライアントプロキシが同じ型を共有することで、
// 送受信の契約を二重管理しない。

// ResultEnvelope はRPCレスポンスのトップレベル構造。
// 成功時はResult、失敗時はErrorのどちらか一方だけが設定される。
type ResultEnvelope struct {
	Result *ResultData `json:"result,omitempty"`
	Error  *ErrorShape `json:"error,omitempty"`
}

// ResultData は成功レスポンスのデータ部。コーデックのエンベロープを保持する。
type ResultData struct {
	Data json.RawMessage `json:"data"`
}

// ErrorShape はエラーレスポンスのワイヤ表現。
type ErrorShape struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    ErrorShapeData `json:"data"`
}

// ErrorShapeData はエラーの付随情報。
type ErrorShapeData struct {
	HTTPStatus  int                 `json:"httpStatus"`
	FieldErrors map[string][]string `json:"fieldErrors,omitempty"`
}

// ToError はワイヤ表現を構造化エラーに戻す。クライアントプロキシが使用する。
func (s *ErrorShape) ToError() *Error {
	return &Error{
		Code:        Code(s.Code),
		Message:     s.Message,
		FieldErrors: s.Data.FieldErrors,
	}
}
