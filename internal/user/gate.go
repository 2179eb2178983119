package user

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/talkbox/internal/model"
)

// IdentityProvider はアカウント削除で使う認証基盤の操作。
type IdentityProvider interface {
	// Reauthenticate はセッションのユーザーとしてパスワードを再検証し、更新後のセッションを返す。
	Reauthenticate(ctx context.Context, sess *model.Session, email, password string) (*model.Session, error)
	// DeleteIdentity はセッションのユーザーの認証情報を削除する。直近の再認証が必要。
	DeleteIdentity(ctx context.Context, sess *model.Session) error
}

// CredentialProof は直前にパスワードを再検証できたことの証明。
// VerifyRecentCredentialだけが生成でき、PurgeAccountDataはこれを要求する。
type CredentialProof struct {
	session    *model.Session
	verifiedAt time.Time
}

// UserID は証明済みのユーザーIDを返す。
func (p *CredentialProof) UserID() string {
	if p == nil || p.session == nil {
		return ""
	}
	return p.session.UserID
}

// VerifiedAt は再認証した時刻を返す。
func (p *CredentialProof) VerifiedAt() time.Time {
	if p == nil {
		return time.Time{}
	}
	return p.verifiedAt
}

func (p *CredentialProof) valid() bool {
	return p != nil && p.session != nil && p.session.UserID != ""
}

// VerifyRecentCredential はセッションのメールアドレスと入力されたパスワードで再認証する。
// セッションがなければIDプロバイダを呼ばずにKindNotAuthenticatedを返す。
func (s *Service) VerifyRecentCredential(ctx context.Context, sess *model.Session, password string) (*CredentialProof, error) {
	if sess == nil || sess.UserID == "" {
		return nil, &DeletionError{Kind: KindNotAuthenticated, Stage: StageGate}
	}

	refreshed, err := s.provider.Reauthenticate(ctx, sess, sess.Email, password)
	if err != nil {
		kind := classify(reauthErrorTable, err, KindStaleSession)
		slog.Warn("再認証に失敗しました",
			slog.String("user_id", sess.UserID),
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()),
		)
		return nil, &DeletionError{Kind: kind, Stage: StageGate, Err: err}
	}
	if refreshed == nil {
		refreshed = sess
	}

	return &CredentialProof{session: refreshed, verifiedAt: s.now()}, nil
}
