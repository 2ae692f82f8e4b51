// Package client はtaskdeckサーバーの型付きクライアントプロキシを提供する。
// サーバーと同じプロシージャ名・入出力型・コーデックを共有するため、
// プロシージャ追加時にクライアント側のスタブを別途保守する必要はない。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/hitoshi/taskdeck/internal/model"
	"github.com/hitoshi/taskdeck/internal/rpc"
	"github.com/hitoshi/taskdeck/internal/todo"
)

// retryMaxAttempts はネットワークエラー・一時的エラー時の最大試行回数。
const retryMaxAttempts = 2

// Options はクライアントの生成オプション。
type Options struct {
	BaseURL string        // サーバーのベースURL（例: http://localhost:3035）
	Timeout time.Duration // HTTPタイムアウト。0の場合は30秒
}

// Client はセッションCookieを保持する型付きRPCクライアント。
// 生成後の内部状態はCookieジャーのみで、設定は変更できない。
// 複数ゴルーチンから同時に使用できる。
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New はClientを生成する。セッションCookieは自動的に保存・送信される。
func New(opts Options) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
	}, nil
}

// --- Todoプロシージャ ---

// TodoAll は全Todoを作成日時の降順で取得する。要認証。
func (c *Client) TodoAll(ctx context.Context) ([]todo.TodoView, error) {
	return doQuery[todo.EmptyInput, []todo.TodoView](ctx, c, todo.ProcAll, todo.EmptyInput{})
}

// TodoByID は指定IDのTodoを作成者情報付きで取得する。
// 不在の場合はNOT_FOUNDの*rpc.Errorを返す。
func (c *Client) TodoByID(ctx context.Context, id string) (*todo.TodoDetail, error) {
	return doQuery[todo.IDInput, *todo.TodoDetail](ctx, c, todo.ProcByID, todo.IDInput{ID: id})
}

// TodoCreate はTodoを作成する。所有者はサーバー側でセッションから決定される。
func (c *Client) TodoCreate(ctx context.Context, in todo.CreateInput) (*todo.TodoRecord, error) {
	return doMutation[todo.CreateInput, *todo.TodoRecord](ctx, c, todo.ProcCreate, in)
}

// TodoUpdate はTodoを部分更新する。不在の場合はnilを返す（エラーにしない）。
func (c *Client) TodoUpdate(ctx context.Context, in todo.UpdateInput) (*todo.TodoRecord, error) {
	return doMutation[todo.UpdateInput, *todo.TodoRecord](ctx, c, todo.ProcUpdate, in)
}

// TodoDelete はTodoを削除する。不在の場合はnilを返す（エラーにしない）。
func (c *Client) TodoDelete(ctx context.Context, id string) (*todo.TodoRecord, error) {
	return doMutation[todo.IDInput, *todo.TodoRecord](ctx, c, todo.ProcDelete, todo.IDInput{ID: id})
}

// --- 認証エンドポイント ---

// SessionInfo は認証エンドポイントが返すセッション情報。
type SessionInfo struct {
	User    model.PublicUser `json:"user"`
	Session struct {
		ExpiresAt time.Time `json:"expiresAt"`
	} `json:"session"`
}

// SignUpRequest はサインアップのリクエスト。
type SignUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Image    string `json:"image,omitempty"`
}

// SignUp は新規ユーザーを登録する。成功するとセッションCookieが保存される。
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*SessionInfo, error) {
	return c.doAuth(ctx, "/api/auth/sign-up", req)
}

// SignIn はサインインする。成功するとセッションCookieが保存される。
func (c *Client) SignIn(ctx context.Context, email, password string) (*SessionInfo, error) {
	return c.doAuth(ctx, "/api/auth/sign-in", map[string]string{
		"email":    email,
		"password": password,
	})
}

// SignOut はサインアウトする。セッションCookieがない場合も成功する。
func (c *Client) SignOut(ctx context.Context) error {
	body, err := json.Marshal(struct{}{})
	if err != nil {
		return err
	}

	resp, err := c.doWithRetry(ctx, http.MethodPost, "/api/auth/sign-out", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAuthError(resp)
	}
	return nil
}

// Session は現在のセッションを取得する。未認証の場合は(nil, nil)を返す。
func (c *Client) Session(ctx context.Context) (*SessionInfo, error) {
	resp, err := c.doWithRetry(ctx, http.MethodGet, "/api/auth/get-session", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAuthError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, nil
	}

	var info SessionInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	return &info, nil
}

// doAuth は認証エンドポイントへのPOSTとレスポンス解析を共通化する。
func (c *Client) doAuth(ctx context.Context, path string, reqBody interface{}) (*SessionInfo, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	resp, err := c.doWithRetry(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAuthError(resp)
	}

	var info SessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	return &info, nil
}

// readAuthError は認証エンドポイントのエラーレスポンスをmodel.APIErrorに復元する。
func readAuthError(resp *http.Response) error {
	var body struct {
		Code     string `json:"code"`
		Message  string `json:"message"`
		Category string `json:"category"`
		Action   string `json:"action"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Code == "" {
		return fmt.Errorf("auth request failed with status %d", resp.StatusCode)
	}
	return &model.APIError{
		Code:     body.Code,
		Message:  body.Message,
		Category: body.Category,
		Action:   body.Action,
	}
}

// --- RPCディスパッチ ---

// doQuery はqueryプロシージャを呼び出す。入力は?input=クエリパラメータで送る。
func doQuery[In any, Out any](ctx context.Context, c *Client, procedure string, in In) (Out, error) {
	var zero Out

	encoded, err := rpc.Encode(in)
	if err != nil {
		return zero, fmt.Errorf("failed to encode input: %w", err)
	}

	path := "/api/rpc/" + procedure + "?input=" + url.QueryEscape(string(encoded))
	resp, err := c.doWithRetry(ctx, http.MethodGet, path, nil)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	return parseRPCResponse[Out](resp)
}

// doMutation はmutationプロシージャを呼び出す。入力はリクエストボディで送る。
func doMutation[In any, Out any](ctx context.Context, c *Client, procedure string, in In) (Out, error) {
	var zero Out

	encoded, err := rpc.Encode(in)
	if err != nil {
		return zero, fmt.Errorf("failed to encode input: %w", err)
	}

	resp, err := c.doWithRetry(ctx, http.MethodPost, "/api/rpc/"+procedure, encoded)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	return parseRPCResponse[Out](resp)
}

// parseRPCResponse はRPCレスポンスのエンベロープを解析する。
// エラーレスポンスは*rpc.Errorとして返すため、呼び出し側はコードで分岐できる。
func parseRPCResponse[Out any](resp *http.Response) (Out, error) {
	var zero Out

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("failed to read response body: %w", err)
	}

	var envelope rpc.ResultEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return zero, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}

	if envelope.Error != nil {
		return zero, envelope.Error.ToError()
	}
	if envelope.Result == nil {
		return zero, fmt.Errorf("response has neither result nor error (status %d)", resp.StatusCode)
	}

	var out Out
	if err := rpc.Decode(envelope.Result.Data, &out); err != nil {
		return zero, fmt.Errorf("failed to decode result: %w", err)
	}
	return out, nil
}

// doWithRetry はHTTPリクエストを実行する。ネットワークエラー、429、
// 5xxの場合のみ1回だけ再試行する。4xx（429を除く）は呼び出し側の
// 問題であり再試行しても結果は変わらないため即座に返す。
func (c *Client) doWithRetry(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		resp, err := c.do(ctx, method, path, body)
		if err != nil {
			lastErr = err
			continue
		}

		if shouldRetryStatus(resp.StatusCode) && attempt < retryMaxAttempts-1 {
			resp.Body.Close()
			lastErr = fmt.Errorf("request failed with status %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// do は単発のHTTPリクエストを実行する。
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// shouldRetryStatus は再試行対象のステータスコードかどうかを判定する。
func shouldRetryStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}
