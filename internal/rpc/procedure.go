package rpc

import (
	"context"
	"encoding/json"
)

// Kind はプロシージャの呼び出し種別。
type Kind string

const (
	// KindQuery は読み取り専用プロシージャ。HTTP GETで呼び出す。
	KindQuery Kind = "query"
	// KindMutation は状態変更プロシージャ。HTTP POSTで呼び出す。
	KindMutation Kind = "mutation"
)

// Visibility はプロシージャの公開区分。
type Visibility string

const (
	// VisibilityPublic は未認証の呼び出しを許可する。
	// ハンドラーには未認証コンテキスト（User == nil）がそのまま渡る。
	VisibilityPublic Visibility = "public"
	// VisibilityProtected は認証済みユーザーを必須とする。
	// 未認証の場合はハンドラー本体の実行前に拒否する。
	VisibilityProtected Visibility = "protected"
)

// Validator はプロシージャの入力契約。
// バリデーション違反はフィールドごとの詳細を持つ*Errorとして返す。
type Validator interface {
	Validate() *Error
}

// Handler は型付きプロシージャハンドラー。
type Handler[In Validator, Out any] func(ctx context.Context, rc *Context, in In) (Out, *Error)

// requireUser は認証済みユーザーを要求するハンドラー合成。
// ベースハンドラーを受け取り、コンテキスト検査を前置した新しいハンドラーを
// 返す純粋な関数合成であり、共有状態を変更しない。
func requireUser[In Validator, Out any](h Handler[In, Out]) Handler[In, Out] {
	return func(ctx context.Context, rc *Context, in In) (Out, *Error) {
		if rc.User == nil {
			var zero Out
			return zero, NewUnauthorized()
		}
		return h(ctx, rc, in)
	}
}

// Procedure は名前・種別・公開区分・ハンドラーを束ねたプロシージャ定義。
// 生の入力のデコードとバリデーションは型付きコンストラクタが閉じ込める。
type Procedure struct {
	name       string
	kind       Kind
	visibility Visibility
	invoke     func(ctx context.Context, rc *Context, raw json.RawMessage) (interface{}, *Error)
}

// Name はプロシージャ名を返す。
func (p *Procedure) Name() string { return p.name }

// Kind は呼び出し種別を返す。
func (p *Procedure) Kind() Kind { return p.kind }

// Visibility は公開区分を返す。
func (p *Procedure) Visibility() Visibility { return p.visibility }

// newProcedure は型付きハンドラーからプロシージャ定義を構築する。
// 実行順序は固定: 入力デコード → バリデーション → ハンドラー。
// 保護プロシージャの認証検査はrequireUserの合成でハンドラー側に含まれる。
func newProcedure[In Validator, Out any](name string, kind Kind, visibility Visibility, h Handler[In, Out]) *Procedure {
	return &Procedure{
		name:       name,
		kind:       kind,
		visibility: visibility,
		invoke: func(ctx context.Context, rc *Context, raw json.RawMessage) (interface{}, *Error) {
			var in In
			if len(raw) > 0 {
				if err := Decode(raw, &in); err != nil {
					return nil, NewBadRequest("入力のJSON解析に失敗しました。")
				}
			}
			if verr := in.Validate(); verr != nil {
				return nil, verr
			}
			out, herr := h(ctx, rc, in)
			if herr != nil {
				return nil, herr
			}
			return out, nil
		},
	}
}

// PublicQuery は公開の読み取りプロシージャを定義する。
func PublicQuery[In Validator, Out any](name string, h Handler[In, Out]) *Procedure {
	return newProcedure(name, KindQuery, VisibilityPublic, h)
}

// ProtectedQuery は認証必須の読み取りプロシージャを定義する。
func ProtectedQuery[In Validator, Out any](name string, h Handler[In, Out]) *Procedure {
	return newProcedure(name, KindQuery, VisibilityProtected, requireUser(h))
}

// PublicMutation は公開の状態変更プロシージャを定義する。
func PublicMutation[In Validator, Out any](name string, h Handler[In, Out]) *Procedure {
	return newProcedure(name, KindMutation, VisibilityPublic, h)
}

// ProtectedMutation は認証必須の状態変更プロシージャを定義する。
func ProtectedMutation[In Validator, Out any](name string, h Handler[In, Out]) *Procedure {
	return newProcedure(name, KindMutation, VisibilityProtected, requireUser(h))
}
