package user

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/talkbox/internal/docstore"
)

// PurgeReport はデータ削除の結果。FinalizeDeletionに渡す。
type PurgeReport struct {
	UserID           string
	Counts           map[string]int // コレクション別の操作数
	TotalMutations   int
	BatchesCommitted int
	Duration         time.Duration

	proof *CredentialProof
}

// PurgeAccountData は証明済みユーザーを参照する全データを削除する。
//
// 計画した操作をストアの上限ごとのバッチに分け、順にコミットする。
// 各バッチはアトミックだが、後のバッチが失敗しても先にコミットしたバッチは戻らない。
// その場合は進捗を含むKindPartialFailureを返し、再実行で残りを削除できる。
func (s *Service) PurgeAccountData(ctx context.Context, proof *CredentialProof) (*PurgeReport, error) {
	if !proof.valid() {
		return nil, &DeletionError{Kind: KindNotAuthenticated, Stage: StageGate}
	}
	userID := proof.UserID()
	start := s.now()

	plan, err := BuildPlan(ctx, s.store, userID)
	if err != nil {
		stage := StageProfile
		var pe *planError
		if errors.As(err, &pe) {
			stage = pe.stage
		}
		return nil, &DeletionError{Kind: KindPartialFailure, Stage: stage, Err: err}
	}

	report := &PurgeReport{
		UserID:         userID,
		Counts:         plan.Counts(),
		TotalMutations: len(plan.Mutations),
		proof:          proof,
	}

	committed := 0
	for _, chunk := range chunkMutations(plan.Mutations, s.store.MaxBatchSize()) {
		batch := s.store.OpenBatch()
		for _, m := range chunk {
			m.StageInto(batch)
		}
		if err := batch.Commit(ctx); err != nil {
			slog.Error("データ削除のバッチコミットに失敗しました",
				slog.String("user_id", userID),
				slog.Int("batches_committed", report.BatchesCommitted),
				slog.Int("mutations_committed", committed),
				slog.Int("mutations_total", report.TotalMutations),
				slog.String("error", err.Error()),
			)
			s.recordBatches(report.BatchesCommitted)
			return nil, &DeletionError{
				Kind:               KindPartialFailure,
				Stage:              StageCommit,
				BatchesCommitted:   report.BatchesCommitted,
				MutationsCommitted: committed,
				Err:                err,
			}
		}
		report.BatchesCommitted++
		committed += len(chunk)
	}

	report.Duration = s.now().Sub(start)
	s.recordBatches(report.BatchesCommitted)
	for collection, n := range report.Counts {
		s.recorder.RecordPurgedRecords(collection, n)
	}

	slog.Info("アカウントデータを削除しました",
		slog.String("user_id", userID),
		slog.Int("mutations", report.TotalMutations),
		slog.Int("batches", report.BatchesCommitted),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

// chunkMutations は操作列を順序を保ったままsize件ずつに分割する。
func chunkMutations(muts []docstore.Mutation, size int) [][]docstore.Mutation {
	if size <= 0 {
		size = docstore.DefaultMaxBatchSize
	}
	var chunks [][]docstore.Mutation
	for len(muts) > 0 {
		n := min(size, len(muts))
		chunks = append(chunks, muts[:n])
		muts = muts[n:]
	}
	return chunks
}

func (s *Service) recordBatches(n int) {
	if n > 0 {
		s.recorder.RecordBatchesCommitted(n)
	}
}
