package rpc

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
)

// maxInputBytes はmutation入力ボディの最大サイズ。
const maxInputBytes = 1 << 20 // 1MiB

// MetricsRecorder はディスパッチのメトリクス記録インターフェース。
// nilを渡すと記録をスキップする。
type MetricsRecorder interface {
	RecordRPCRequest(procedure, code string, duration time.Duration)
}

// Router はプロシージャ名からハンドラーへのマッピングと、
// 単一のトランスポートエンドポイント上でのディスパッチを提供する。
// 登録は起動時に完了し、以降は読み取り専用（プロセス内で共有して安全）。
type Router struct {
	procedures map[string]*Procedure
	builder    *ContextBuilder
	metrics    MetricsRecorder
}

// NewRouter はRouterを生成する。metricsにはnilを渡せる。
func NewRouter(builder *ContextBuilder, metrics MetricsRecorder) *Router {
	return &Router{
		procedures: make(map[string]*Procedure),
		builder:    builder,
		metrics:    metrics,
	}
}

// Register はプロシージャを登録する。名前の重複はプログラミングエラーの
// ため、http.ServeMuxと同様にpanicする。起動時にのみ呼び出すこと。
func (rt *Router) Register(p *Procedure) {
	if _, exists := rt.procedures[p.name]; exists {
		panic(fmt.Sprintf("rpc: duplicate procedure registration: %s", p.name))
	}
	rt.procedures[p.name] = p
}

// ProcedureNames は登録済みプロシージャ名を昇順で返す。
func (rt *Router) ProcedureNames() []string {
	names := make([]string, 0, len(rt.procedures))
	for name := range rt.procedures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServeHTTP は GET|POST /api/rpc/{procedure} のディスパッチを行う。
//
// 1リクエスト内の実行順序は固定:
//
//	コンテキスト解決 → 入力バリデーション → 可視性検査 → ハンドラー実行 → エンコード
//
// バリデーションと可視性検査はProcedure.invokeに閉じ込められている。
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	name := chi.URLParam(r, "procedure")

	proc, ok := rt.procedures[name]
	if !ok {
		rt.writeError(w, name, start, NewNotFound(fmt.Sprintf("プロシージャが見つかりません: %s", name)))
		return
	}

	if rpcErr := checkMethod(proc, r.Method); rpcErr != nil {
		rt.writeError(w, name, start, rpcErr)
		return
	}

	raw, rpcErr := readInput(proc, r)
	if rpcErr != nil {
		rt.writeError(w, name, start, rpcErr)
		return
	}

	// コンテキスト解決は必ずバリデーション・可視性検査に先行する
	rc := rt.builder.Build(r.Context(), r.Header)

	out, rpcErr := proc.invoke(r.Context(), rc, raw)
	if rpcErr != nil {
		rt.writeError(w, name, start, rpcErr)
		return
	}

	data, err := Encode(out)
	if err != nil {
		slog.Error("failed to encode rpc result",
			slog.String("procedure", name),
			slog.String("error", err.Error()),
		)
		rt.writeError(w, name, start, NewInternal())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(ResultEnvelope{
		Result: &ResultData{Data: data},
	})

	rt.record(name, "OK", start)
}

// checkMethod はプロシージャ種別とHTTPメソッドの対応を検証する。
func checkMethod(proc *Procedure, method string) *Error {
	switch proc.kind {
	case KindQuery:
		if method != http.MethodGet {
			return &Error{
				Code:    CodeMethodNotSupported,
				Message: fmt.Sprintf("%s はqueryのためGETで呼び出してください。", proc.name),
			}
		}
	case KindMutation:
		if method != http.MethodPost {
			return &Error{
				Code:    CodeMethodNotSupported,
				Message: fmt.Sprintf("%s はmutationのためPOSTで呼び出してください。", proc.name),
			}
		}
	}
	return nil
}

// readInput はリクエストから生の入力を取り出す。
// queryは?input=クエリパラメータ、mutationはリクエストボディ。
func readInput(proc *Procedure, r *http.Request) (json.RawMessage, *Error) {
	if proc.kind == KindQuery {
		input := r.URL.Query().Get("input")
		return json.RawMessage(input), nil
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxInputBytes))
	if err != nil {
		return nil, NewBadRequest("リクエストボディの読み取りに失敗しました。")
	}
	return json.RawMessage(body), nil
}

// writeError は構造化エラーレスポンスを書き込む。
// エラーはRouter境界を不透明な失敗として越えない。
func (rt *Router) writeError(w http.ResponseWriter, procedure string, start time.Time, rpcErr *Error) {
	status := rpcErr.Code.HTTPStatus()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ResultEnvelope{
		Error: &ErrorShape{
			Code:    string(rpcErr.Code),
			Message: rpcErr.Message,
			Data: ErrorShapeData{
				HTTPStatus:  status,
				FieldErrors: rpcErr.FieldErrors,
			},
		},
	})

	rt.record(procedure, string(rpcErr.Code), start)
}

func (rt *Router) record(procedure, code string, start time.Time) {
	if rt.metrics != nil {
		rt.metrics.RecordRPCRequest(procedure, code, time.Since(start))
	}
}
