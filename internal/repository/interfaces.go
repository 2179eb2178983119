// Package repository はIDプロバイダのデータ永続化インターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/talkbox/internal/model"
)

var (
	// ErrEmailTaken はメールアドレスが既に登録済みの場合のエラー。
	ErrEmailTaken = errors.New("email already registered")
	// ErrNotFound は更新・削除対象が存在しない場合のエラー。
	ErrNotFound = errors.New("record not found")
)

// CredentialRepository は認証情報の永続化インターフェース。
type CredentialRepository interface {
	// Create は認証情報を作成する。メールアドレス重複時はErrEmailTakenを返す。
	Create(ctx context.Context, account *model.Account) error

	// FindByEmail はメールアドレスで認証情報を検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindByUserID はユーザーIDで認証情報を検索する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Account, error)

	// DeleteByUserID は認証情報と全セッションを同一トランザクションで削除する。
	// 認証情報が存在しない場合はErrNotFoundを返す。
	DeleteByUserID(ctx context.Context, userID string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// UpdateAuthenticatedAt はセッションの最終認証時刻を更新する。
	// セッションが存在しない場合はErrNotFoundを返す。
	UpdateAuthenticatedAt(ctx context.Context, id string, at time.Time) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
