// Package model はドメインモデルを定義する。
package model

import "time"

// Account はIDプロバイダが保持する認証情報を表す。
// PasswordHashはbcryptハッシュで、平文パスワードは保持しない。
type Account struct {
	UserID       string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// AuthenticatedAtはパスワードを最後に検証した時刻で、
// 再認証が必要な操作（アカウント削除など）の鮮度判定に使う。
type Session struct {
	ID              string
	UserID          string
	Email           string
	AuthenticatedAt time.Time
	ExpiresAt       time.Time
	CreatedAt       time.Time
}

// IsExpired はセッションが期限切れかどうかを返す。
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// AuthenticatedWithin はセッションの最終認証時刻がmaxAge以内かどうかを返す。
func (s *Session) AuthenticatedWithin(now time.Time, maxAge time.Duration) bool {
	if s.AuthenticatedAt.IsZero() {
		return false
	}
	return now.Sub(s.AuthenticatedAt) <= maxAge
}

// Profile はユーザーの公開プロフィールを表す。
// ドキュメントIDはユーザーIDと同一。
type Profile struct {
	UserID      string
	DisplayName string
	CreatedAt   time.Time
}
