// Package memstore はプロセス内メモリ上のドキュメントストアを提供する。
// ローカル開発とテストで使用し、呼び出し回数の記録とコミット失敗の注入ができる。
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hitoshi/talkbox/internal/docstore"
)

// Store はインメモリのdocstore.Store実装。
type Store struct {
	mu       sync.Mutex
	docs     map[string]docstore.Record
	maxBatch int

	getCalls    int
	queryCalls  int
	commitCalls int
	applied     int

	// failCommitAt はN回目（1始まり）のCommitを失敗させる。0なら無効。
	failCommitAt  int
	failCommitErr error
	queryErrs     map[string]error
}

var _ docstore.Store = (*Store)(nil)

// New は空のStoreを生成する。maxBatchが0以下の場合はDefaultMaxBatchSizeを使用する。
func New(maxBatch int) *Store {
	if maxBatch <= 0 {
		maxBatch = docstore.DefaultMaxBatchSize
	}
	return &Store{
		docs:      make(map[string]docstore.Record),
		maxBatch:  maxBatch,
		queryErrs: make(map[string]error),
	}
}

// Put はバッチを経由せずにドキュメントを書き込む。シードデータ投入用。
func (s *Store) Put(ref docstore.DocRef, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[ref.Path()] = docstore.Record{Ref: ref, Fields: copyFields(fields)}
}

// Get は指定ドキュメントを取得する。
func (s *Store) Get(ctx context.Context, ref docstore.DocRef) (*docstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++

	rec, ok := s.docs[ref.Path()]
	if !ok {
		return nil, nil
	}
	out := docstore.Record{Ref: rec.Ref, Fields: copyFields(rec.Fields)}
	return &out, nil
}

// Query は条件に一致するドキュメントをパス順で返す。
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryCalls++

	if err, ok := s.queryErrs[q.Collection]; ok {
		return nil, err
	}

	var out []docstore.Record
	for _, rec := range s.docs {
		if q.Matches(rec) {
			out = append(out, docstore.Record{Ref: rec.Ref, Fields: copyFields(rec.Fields)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.Path() < out[j].Ref.Path() })
	return out, nil
}

// OpenBatch は新しいバッチを返す。
func (s *Store) OpenBatch() docstore.Batch {
	return &batch{store: s}
}

// MaxBatchSize はバッチの操作数上限を返す。
func (s *Store) MaxBatchSize() int {
	return s.maxBatch
}

// FailCommitAt はこれ以降n回目のCommitをerrで失敗させる。
func (s *Store) FailCommitAt(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommitAt = s.commitCalls + n
	s.failCommitErr = err
}

// FailQuery は指定コレクションへのQueryをerrで失敗させる。
func (s *Store) FailQuery(collection string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryErrs[collection] = err
}

// Calls はGet/Query/Commitの呼び出し回数の合計を返す。
func (s *Store) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls + s.queryCalls + s.commitCalls
}

// CommitCalls はCommitの呼び出し回数を返す。
func (s *Store) CommitCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitCalls
}

// AppliedMutations はコミット済みの操作数の累計を返す。
func (s *Store) AppliedMutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied
}

// Len は格納されているドキュメント数を返す。
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// All は全ドキュメントをパス順で返す。
func (s *Store) All() []docstore.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]docstore.Record, 0, len(s.docs))
	for _, rec := range s.docs {
		out = append(out, docstore.Record{Ref: rec.Ref, Fields: copyFields(rec.Fields)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.Path() < out[j].Ref.Path() })
	return out
}

type batch struct {
	store *Store
	ops   []docstore.Mutation
}

func (b *batch) StageDelete(ref docstore.DocRef) {
	b.ops = append(b.ops, docstore.DeleteOf(ref))
}

func (b *batch) StageFieldUpdate(ref docstore.DocRef, guard []docstore.Filter, changes ...docstore.FieldChange) {
	b.ops = append(b.ops, docstore.UpdateOf(ref, guard, changes...))
}

func (b *batch) StageSet(ref docstore.DocRef, fields map[string]any) {
	b.ops = append(b.ops, docstore.SetOf(ref, copyFields(fields)))
}

func (b *batch) Len() int {
	return len(b.ops)
}

// Commit は全操作を作業用コピーに適用し、成功した場合のみ差し替える。
func (b *batch) Commit(ctx context.Context) error {
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitCalls++

	if err := ctx.Err(); err != nil {
		return &docstore.CommitError{Size: len(b.ops), Err: err}
	}
	if s.failCommitAt > 0 && s.commitCalls == s.failCommitAt {
		return &docstore.CommitError{Size: len(b.ops), Err: s.failCommitErr}
	}
	if len(b.ops) > s.maxBatch {
		return &docstore.CommitError{Size: len(b.ops), Err: docstore.ErrBatchTooLarge}
	}

	next := make(map[string]docstore.Record, len(s.docs))
	for k, v := range s.docs {
		next[k] = v
	}
	for _, op := range b.ops {
		if err := applyOp(next, op); err != nil {
			return &docstore.CommitError{Size: len(b.ops), Err: err}
		}
	}
	s.docs = next
	s.applied += len(b.ops)
	return nil
}

func applyOp(docs map[string]docstore.Record, op docstore.Mutation) error {
	key := op.Ref.Path()
	switch op.Kind {
	case docstore.MutationDelete:
		delete(docs, key)
	case docstore.MutationSet:
		docs[key] = docstore.Record{Ref: op.Ref, Fields: copyFields(op.Fields)}
	case docstore.MutationUpdate:
		rec, ok := docs[key]
		if !ok {
			return nil
		}
		for _, g := range op.Guard {
			if !g.Matches(rec.Fields) {
				return nil
			}
		}
		fields := rec.Fields
		for _, c := range op.Changes {
			var err error
			fields, err = c.Apply(fields)
			if err != nil {
				return fmt.Errorf("update %s: %w", key, err)
			}
		}
		docs[key] = docstore.Record{Ref: rec.Ref, Fields: fields}
	default:
		return fmt.Errorf("unknown mutation kind %s", op.Kind)
	}
	return nil
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch arr := v.(type) {
		case []string:
			out[k] = append([]string(nil), arr...)
		case []any:
			out[k] = append([]any(nil), arr...)
		default:
			out[k] = v
		}
	}
	return out
}
