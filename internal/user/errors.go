package user

import (
	"errors"
	"fmt"

	"github.com/hitoshi/talkbox/internal/auth"
	"github.com/hitoshi/talkbox/internal/model"
)

// Kind はアカウント削除が失敗した理由の分類。
type Kind int

const (
	// KindNotAuthenticated は有効なセッションがない。ログインが必要。
	KindNotAuthenticated Kind = iota + 1
	// KindInvalidCredential はパスワードが誤っている。正しいパスワードで再試行できる。
	KindInvalidCredential
	// KindStaleSession はセッションが古く再認証できない。再ログイン後に再試行する。
	KindStaleSession
	// KindPartialFailure はデータ削除の途中で失敗した。認証情報は残っており全体を再試行できる。
	KindPartialFailure
	// KindRevocationFailed はデータ削除後の認証情報削除に失敗した。
	// データは消えているが認証情報が残っているため、運用側での対応が必要になりうる。
	KindRevocationFailed
)

// String はメトリクスのラベルやログに使う名前を返す。
func (k Kind) String() string {
	switch k {
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindInvalidCredential:
		return "invalid_credential"
	case KindStaleSession:
		return "stale_session"
	case KindPartialFailure:
		return "partial_failure"
	case KindRevocationFailed:
		return "revocation_failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// APIError はエラー種別に対応するユーザー向けエラーを返す。
func (k Kind) APIError() *model.APIError {
	switch k {
	case KindNotAuthenticated:
		return model.NewNotAuthenticatedError()
	case KindInvalidCredential:
		return model.NewInvalidCredentialError()
	case KindStaleSession:
		return model.NewStaleSessionError()
	case KindRevocationFailed:
		return model.NewRevocationFailedError()
	default:
		return model.NewPartialDeletionError()
	}
}

// Stage は処理が失敗した段階。
type Stage string

const (
	StageGate           Stage = "credential"
	StageProfile        Stage = "profile"
	StageNotifications  Stage = "notifications"
	StageFollowRequests Stage = "follow_requests"
	StageDirectThreads  Stage = "direct_threads"
	StageGroups         Stage = "groups"
	StageCommit         Stage = "commit"
	StageRevoke         Stage = "revoke"
)

// DeletionError はアカウント削除の失敗を表す。
// 呼び出し側にはKindとStageだけを見せ、Errは運用ログ用に保持する。
type DeletionError struct {
	Kind               Kind
	Stage              Stage
	BatchesCommitted   int
	MutationsCommitted int
	Err                error
}

func (e *DeletionError) Error() string {
	msg := fmt.Sprintf("account deletion failed at %s: %s", e.Stage, e.Kind)
	if e.Kind == KindPartialFailure {
		msg += fmt.Sprintf(" (%d batches, %d mutations committed)", e.BatchesCommitted, e.MutationsCommitted)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeletionError) Unwrap() error {
	return e.Err
}

// KindOf はerrに含まれるDeletionErrorの種別を返す。
func KindOf(err error) (Kind, bool) {
	var de *DeletionError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

// errorMapping はIDプロバイダのエラーと分類の対応。上から順に評価する。
type errorMapping struct {
	target error
	kind   Kind
}

// reauthErrorTable は再認証時のエラー対応表。
// 該当しないエラーはすべてKindStaleSessionとして扱う。
var reauthErrorTable = []errorMapping{
	{auth.ErrWrongPassword, KindInvalidCredential},
	{auth.ErrInvalidCredential, KindInvalidCredential},
	{auth.ErrUserMismatch, KindInvalidCredential},
	{auth.ErrUserNotFound, KindInvalidCredential},
	{auth.ErrSessionExpired, KindStaleSession},
	{auth.ErrRequiresRecentLogin, KindStaleSession},
}

func classify(table []errorMapping, err error, fallback Kind) Kind {
	for _, m := range table {
		if errors.Is(err, m.target) {
			return m.kind
		}
	}
	return fallback
}
