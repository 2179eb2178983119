// Package user はアカウント削除のドメインロジックを提供する。
//
// 削除は次の3段階を順に行い、いずれかが失敗した時点で中断する。
//
//  1. VerifyRecentCredential: パスワードで再認証する
//  2. PurgeAccountData: ユーザーを参照するデータを削除する
//  3. FinalizeDeletion: 認証情報を削除し、セッションを破棄する
//
// 後段は前段が返した値を引数に取るため、再認証なしに削除へ進むことはできない。
package user

import (
	"context"
	"time"

	"github.com/hitoshi/talkbox/internal/docstore"
	"github.com/hitoshi/talkbox/internal/model"
)

// MetricsRecorder はアカウント削除のメトリクス記録先。
type MetricsRecorder interface {
	RecordDeletion(outcome string)
	RecordDeletionLatency(duration time.Duration)
	RecordPurgedRecords(collection string, count int)
	RecordBatchesCommitted(count int)
}

// Service はアカウント削除のサービス層。
type Service struct {
	provider IdentityProvider
	store    docstore.Store
	cache    SessionCacheClearer
	recorder MetricsRecorder
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// cacheとrecorderはnilでもよい。
func NewService(
	provider IdentityProvider,
	store docstore.Store,
	cache SessionCacheClearer,
	recorder MetricsRecorder,
) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		provider: provider,
		store:    store,
		cache:    cache,
		recorder: recorder,
		now:      time.Now,
	}
}

// DeleteAccount はパスワードで再認証したうえで、ユーザーのデータと認証情報を削除する。
// 失敗時は*DeletionErrorを返す。内部で再試行はしない。
func (s *Service) DeleteAccount(ctx context.Context, sess *model.Session, password string) (outcome *Outcome, err error) {
	start := s.now()
	defer func() {
		label := "success"
		if kind, ok := KindOf(err); ok {
			label = kind.String()
		} else if err != nil {
			label = "error"
		}
		s.recorder.RecordDeletion(label)
		s.recorder.RecordDeletionLatency(s.now().Sub(start))
	}()

	proof, err := s.VerifyRecentCredential(ctx, sess, password)
	if err != nil {
		return nil, err
	}

	report, err := s.PurgeAccountData(ctx, proof)
	if err != nil {
		return nil, err
	}

	return s.FinalizeDeletion(ctx, report)
}

type nopRecorder struct{}

func (nopRecorder) RecordDeletion(string) {}
func (nopRecorder) RecordDeletionLatency(time.Duration) {}
func (nopRecorder) RecordPurgedRecords(string, int) {}
func (nopRecorder) RecordBatchesCommitted(int) {}
