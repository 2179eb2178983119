// Package auth はパスワード認証によるIDプロバイダ（登録、ログイン、
// セッション管理、再認証、アカウント認証情報の削除）を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/talkbox/internal/docstore"
	"github.com/hitoshi/talkbox/internal/model"
	"github.com/hitoshi/talkbox/internal/repository"
)

// IDプロバイダが返すエラー
var (
	// ErrWrongPassword は再認証時にパスワードが一致しない場合のエラー。
	ErrWrongPassword = errors.New("wrong password")
	// ErrUserMismatch は再認証に使ったメールアドレスがセッションのユーザーと異なる場合のエラー。
	ErrUserMismatch = errors.New("credential does not belong to session user")
	// ErrUserNotFound はセッションのユーザーの認証情報が存在しない場合のエラー。
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredential はログイン時にメールアドレスまたはパスワードが誤っている場合のエラー。
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrSessionExpired はセッションが存在しないか期限切れの場合のエラー。
	ErrSessionExpired = errors.New("session expired")
	// ErrRequiresRecentLogin は直近の認証が古すぎて機微な操作を許可できない場合のエラー。
	ErrRequiresRecentLogin = errors.New("requires recent login")
	// ErrEmailTaken はメールアドレスが登録済みの場合のエラー。
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidSignup は登録内容が要件を満たさない場合のエラー。
	ErrInvalidSignup = errors.New("invalid signup")
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 8

// NameSanitizer は表示名のサニタイズを行う。
type NameSanitizer interface {
	Sanitize(raw string) string
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge    int           // セッション有効期間（秒）
	RecentAuthWindow time.Duration // 機微な操作を許可する最終認証からの経過時間
	BcryptCost       int           // 0の場合はbcrypt.DefaultCost
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	credRepo    repository.CredentialRepository
	sessionRepo repository.SessionRepository
	store       docstore.Store
	sanitizer   NameSanitizer
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
// storeは新規登録時のプロフィール作成に使用する。
func NewService(
	credRepo repository.CredentialRepository,
	sessionRepo repository.SessionRepository,
	store docstore.Store,
	sanitizer NameSanitizer,
	config ServiceConfig,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.RecentAuthWindow == 0 {
		config.RecentAuthWindow = 5 * time.Minute
	}
	return &Service{
		credRepo:    credRepo,
		sessionRepo: sessionRepo,
		store:       store,
		sanitizer:   sanitizer,
		config:      config,
		now:         time.Now,
	}
}

// SignUp は認証情報とプロフィールを作成し、ログイン済みセッションを発行する。
// プロフィールの作成に失敗した場合は作成した認証情報を削除して元に戻す。
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (*model.Session, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email address is malformed", ErrInvalidSignup)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidSignup, MinPasswordLength)
	}
	name := s.sanitizer.Sanitize(displayName)
	if name == "" {
		return nil, fmt.Errorf("%w: display name is empty", ErrInvalidSignup)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	account := &model.Account{
		UserID:       uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.credRepo.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create credential: %w", err)
	}

	batch := s.store.OpenBatch()
	batch.StageSet(docstore.Doc(model.CollectionProfiles, account.UserID), map[string]any{
		model.FieldDisplayName: name,
		model.FieldCreatedAt:   now,
	})
	if err := batch.Commit(ctx); err != nil {
		if delErr := s.credRepo.DeleteByUserID(ctx, account.UserID); delErr != nil {
			slog.Error("プロフィール作成失敗後の認証情報の削除に失敗しました",
				slog.String("user_id", account.UserID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	session, err := s.createSession(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("new user created", slog.String("user_id", account.UserID))
	return session, nil
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
// メールアドレス未登録とパスワード不一致はどちらもErrInvalidCredentialを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, error) {
	account, err := s.credRepo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	if account == nil {
		return nil, ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredential
	}

	session, err := s.createSession(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in", slog.String("user_id", account.UserID))
	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// CurrentSession は有効なセッションを返す。存在しないか期限切れの場合はErrSessionExpired。
func (s *Service) CurrentSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionExpired
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionExpired
	}
	return session, nil
}

// Reauthenticate はセッションのユーザーとしてパスワードを再検証し、
// 成功した場合はセッションの最終認証時刻を現在時刻に更新する。
func (s *Service) Reauthenticate(ctx context.Context, sess *model.Session, email, password string) (*model.Session, error) {
	live, err := s.CurrentSession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	if normalizeEmail(email) != normalizeEmail(live.Email) {
		return nil, ErrUserMismatch
	}

	account, err := s.credRepo.FindByUserID(ctx, live.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	if account == nil {
		return nil, ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrWrongPassword
	}

	now := s.now()
	if err := s.sessionRepo.UpdateAuthenticatedAt(ctx, live.ID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	live.AuthenticatedAt = now

	slog.Info("user reauthenticated", slog.String("user_id", live.UserID))
	return live, nil
}

// DeleteIdentity はセッションのユーザーの認証情報と全セッションを削除する。
// 最終認証がRecentAuthWindowより古い場合はErrRequiresRecentLoginを返す。
func (s *Service) DeleteIdentity(ctx context.Context, sess *model.Session) error {
	live, err := s.CurrentSession(ctx, sess.ID)
	if err != nil {
		return err
	}
	if !live.AuthenticatedWithin(s.now(), s.config.RecentAuthWindow) {
		return ErrRequiresRecentLogin
	}

	if err := s.credRepo.DeleteByUserID(ctx, live.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	slog.Info("identity deleted", slog.String("user_id", live.UserID))
	return nil
}

// createSession はセッションを作成し永続化する。
// 作成直後のセッションはパスワード検証済みのため、AuthenticatedAtを現在時刻とする。
func (s *Service) createSession(ctx context.Context, account *model.Account) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:              sessionID,
		UserID:          account.UserID,
		Email:           account.Email,
		AuthenticatedAt: now,
		ExpiresAt:       now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt:       now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
