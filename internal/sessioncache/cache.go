// Package sessioncache はセッション検索結果をプロセス内に保持するキャッシュを提供する。
//
// キャッシュはグローバル変数ではなく、生成したハンドルを明示的に受け渡して使う。
// アカウント削除時はClearUserで対象ユーザーのエントリを破棄する。
package sessioncache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/hitoshi/talkbox/internal/model"
)

// SessionFinder はキャッシュミス時にセッションを取得する検索元。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// Cache はセッションIDをキーとするexpirable LRU。
type Cache struct {
	finder SessionFinder
	lru    *expirable.LRU[string, model.Session]
	now    func() time.Time
}

// New はCacheを生成する。sizeはエントリ数の上限、ttlは1エントリの保持期間。
func New(finder SessionFinder, size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 1024
	}
	return &Cache{
		finder: finder,
		lru:    expirable.NewLRU[string, model.Session](size, nil, ttl),
		now:    time.Now,
	}
}

// FindByID はキャッシュからセッションを返す。ミス時は検索元から取得して保持する。
// 見つからない・期限切れのセッションはキャッシュしない。
func (c *Cache) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if s, ok := c.lru.Get(id); ok {
		if !s.IsExpired(c.now()) {
			return &s, nil
		}
		c.lru.Remove(id)
	}

	session, err := c.finder.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	c.lru.Add(id, *session)
	return session, nil
}

// Invalidate は指定セッションのエントリを破棄する。
func (c *Cache) Invalidate(sessionID string) {
	c.lru.Remove(sessionID)
}

// ClearUser は指定ユーザーの全セッションのエントリを破棄し、破棄した件数を返す。
// 何度呼んでも結果は同じになる。
func (c *Cache) ClearUser(userID string) int {
	removed := 0
	for _, key := range c.lru.Keys() {
		s, ok := c.lru.Peek(key)
		if ok && s.UserID == userID {
			if c.lru.Remove(key) {
				removed++
			}
		}
	}
	return removed
}

// Purge は全エントリを破棄する。
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Len は保持しているエントリ数を返す。
func (c *Cache) Len() int {
	return c.lru.Len()
}
