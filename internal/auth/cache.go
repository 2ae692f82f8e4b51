package auth

import (
	"sync"
	"time"

	"github.com/hitoshi/taskdeck/internal/model"
)

// cacheEntry はセッション読み取りキャッシュの1エントリ。
type cacheEntry struct {
	session  *model.Session
	user     *model.User
	cachedAt time.Time
}

// sessionCache はセッション読み取りのTTL付きキャッシュ。
// セッションIDをキーとし、DBへのセッション読み取り負荷を抑える。
// サインアウトで明示的に無効化されるが、キャッシュ判定を通過済みの
// リクエストまでは巻き戻さない（結果整合で許容する）。
type sessionCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	stopCh  chan struct{}
}

// newSessionCache は新しいsessionCacheを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func newSessionCache(ttl time.Duration) *sessionCache {
	c := &sessionCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get はキャッシュからセッション/ユーザーの組を取得する。
// TTL超過またはセッション自体の期限切れはミスとして扱う。
func (c *sessionCache) Get(sessionID string) (*model.Session, *model.User, bool) {
	c.mu.RLock()
	entry, ok := c.entries[sessionID]
	c.mu.RUnlock()

	if !ok {
		return nil, nil, false
	}

	now := time.Now()
	if now.Sub(entry.cachedAt) > c.ttl || now.After(entry.session.ExpiresAt) {
		return nil, nil, false
	}

	return entry.session, entry.user, true
}

// Set はセッション/ユーザーの組をキャッシュに格納する。
func (c *sessionCache) Set(sessionID string, session *model.Session, user *model.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sessionID] = &cacheEntry{
		session:  session,
		user:     user,
		cachedAt: time.Now(),
	}
}

// Delete は指定セッションのキャッシュエントリを削除する。
// サインアウト時に呼び出す。
func (c *sessionCache) Delete(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}

// Stop はクリーンアップgoroutineを停止する。
func (c *sessionCache) Stop() {
	close(c.stopCh)
}

// cleanupLoop はTTL超過エントリを定期的に削除する。
func (c *sessionCache) cleanupLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCh:
			return
		}
	}
}

// cleanup はTTL超過エントリをまとめて削除する。
func (c *sessionCache) cleanup() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, entry := range c.entries {
		if now.Sub(entry.cachedAt) > c.ttl {
			delete(c.entries, id)
		}
	}
}
