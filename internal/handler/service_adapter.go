package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/hitoshi/talkbox/internal/auth"
	"github.com/hitoshi/talkbox/internal/model"
	"github.com/hitoshi/talkbox/internal/user"
)

// SessionInvalidator はログアウト時に破棄するセッションキャッシュ。
type SessionInvalidator interface {
	Invalidate(sessionID string)
}

// AuthServiceAdapter は auth.Service を AuthServiceInterface に適合させるアダプタ。
// IDプロバイダのエラーをAPIErrorに変換する。
type AuthServiceAdapter struct {
	svc   *auth.Service
	cache SessionInvalidator
}

// NewAuthServiceAdapter はAuthServiceAdapterを生成する。cacheはnilでもよい。
func NewAuthServiceAdapter(svc *auth.Service, cache SessionInvalidator) *AuthServiceAdapter {
	return &AuthServiceAdapter{svc: svc, cache: cache}
}

// SignUp はアカウントを登録する。
func (a *AuthServiceAdapter) SignUp(ctx context.Context, email, password, displayName string) (*model.Session, error) {
	session, err := a.svc.SignUp(ctx, email, password, displayName)
	if err != nil {
		return nil, toAuthAPIError(err)
	}
	return session, nil
}

// Login はログインする。
func (a *AuthServiceAdapter) Login(ctx context.Context, email, password string) (*model.Session, error) {
	session, err := a.svc.Login(ctx, email, password)
	if err != nil {
		return nil, toAuthAPIError(err)
	}
	return session, nil
}

// Logout はセッションを破棄し、キャッシュからも取り除く。
func (a *AuthServiceAdapter) Logout(ctx context.Context, sessionID string) error {
	if a.cache != nil {
		defer a.cache.Invalidate(sessionID)
	}
	return a.svc.Logout(ctx, sessionID)
}

// CurrentSession は有効なセッションを返す。
func (a *AuthServiceAdapter) CurrentSession(ctx context.Context, sessionID string) (*model.Session, error) {
	session, err := a.svc.CurrentSession(ctx, sessionID)
	if err != nil {
		return nil, toAuthAPIError(err)
	}
	return session, nil
}

// toAuthAPIError はIDプロバイダのエラーをAPIErrorに変換する。
// 対応しないエラーはそのまま返し、500として扱わせる。
func toAuthAPIError(err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidCredential):
		return model.NewInvalidLoginError()
	case errors.Is(err, auth.ErrEmailTaken):
		return model.NewEmailAlreadyExistsError()
	case errors.Is(err, auth.ErrInvalidSignup):
		reason := strings.TrimPrefix(err.Error(), auth.ErrInvalidSignup.Error()+": ")
		return model.NewInvalidSignupError(reason)
	case errors.Is(err, auth.ErrSessionExpired):
		return model.NewNotAuthenticatedError()
	case errors.Is(err, auth.ErrUserNotFound):
		return model.NewUserNotFoundError()
	default:
		return err
	}
}

// AccountServiceAdapter は user.Service を AccountServiceInterface に適合させるアダプタ。
type AccountServiceAdapter struct {
	svc *user.Service
}

// NewAccountServiceAdapter はAccountServiceAdapterを生成する。
func NewAccountServiceAdapter(svc *user.Service) *AccountServiceAdapter {
	return &AccountServiceAdapter{svc: svc}
}

// DeleteAccount はアカウントを削除し、遷移先を返す。
func (a *AccountServiceAdapter) DeleteAccount(ctx context.Context, session *model.Session, password string) (string, error) {
	outcome, err := a.svc.DeleteAccount(ctx, session, password)
	if err != nil {
		return "", toDeletionAPIError(err)
	}
	return outcome.RedirectTo, nil
}

// toDeletionAPIError は削除エラーの種別をAPIErrorに変換する。
func toDeletionAPIError(err error) error {
	if kind, ok := user.KindOf(err); ok {
		return kind.APIError()
	}
	return err
}

// --- compile-time interface checks ---

var _ AuthServiceInterface = (*AuthServiceAdapter)(nil)
var _ AccountServiceInterface = (*AccountServiceAdapter)(nil)
