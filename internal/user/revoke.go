package user

import (
	"context"
	"log/slog"
)

// SessionCacheClearer はプロセス内のセッションキャッシュ。
type SessionCacheClearer interface {
	ClearUser(userID string) int
}

// Outcome はアカウント削除完了後に呼び出し側が行う遷移。
type Outcome struct {
	UserID     string
	RedirectTo string
}

// LoggedOutEntryPoint は削除完了後の遷移先。
const LoggedOutEntryPoint = "/"

// FinalizeDeletion はデータ削除済みのユーザーの認証情報を削除し、ローカルのセッション状態を破棄する。
// PurgeAccountDataが成功した結果を受け取った場合だけ認証情報の削除に進む。
func (s *Service) FinalizeDeletion(ctx context.Context, report *PurgeReport) (*Outcome, error) {
	if report == nil || !report.proof.valid() {
		return nil, &DeletionError{Kind: KindNotAuthenticated, Stage: StageRevoke}
	}
	userID := report.proof.UserID()

	if err := s.provider.DeleteIdentity(ctx, report.proof.session); err != nil {
		// 再認証からの経過時間が再認証の有効期間を超えていれば、プロバイダ障害ではなく期限切れ
		slog.Error("データ削除後の認証情報の削除に失敗しました。手動での削除が必要です",
			slog.String("user_id", userID),
			slog.Int("mutations_committed", report.TotalMutations),
			slog.Duration("since_verified", s.now().Sub(report.proof.VerifiedAt())),
			slog.Duration("purge_duration", report.Duration),
			slog.String("error", err.Error()),
		)
		return nil, &DeletionError{
			Kind:               KindRevocationFailed,
			Stage:              StageRevoke,
			BatchesCommitted:   report.BatchesCommitted,
			MutationsCommitted: report.TotalMutations,
			Err:                err,
		}
	}

	s.teardownSessions(userID)

	slog.Info("アカウントを削除しました", slog.String("user_id", userID))
	return &Outcome{UserID: userID, RedirectTo: LoggedOutEntryPoint}, nil
}

// teardownSessions はキャッシュ済みセッションを破棄する。何度呼んでもよい。
func (s *Service) teardownSessions(userID string) {
	if s.cache == nil {
		return
	}
	n := s.cache.ClearUser(userID)
	slog.Debug("セッションキャッシュを破棄しました",
		slog.String("user_id", userID),
		slog.Int("entries", n),
	)
}
