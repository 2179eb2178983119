// Package surrealstore はSurrealDB上にドキュメントストアを実装する。
// コレクションはテーブル、サブコレクションは親パスを持つレコードとして格納し、
// バッチは BEGIN/COMMIT TRANSACTION で囲んだ1回のクエリとして送信する。
package surrealstore

import (
	"context"
	"fmt"

	surrealdb "github.com/surrealdb/surrealdb.go"

	"github.com/hitoshi/talkbox/internal/docstore"
)

// Config はSurrealDB接続設定。
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	MaxBatch  int
}

// executor はSurrealQLの実行を抽象化する。
type executor interface {
	// rows は単一のSELECT文を実行し、結果行を返す。
	rows(ctx context.Context, q surrealQuery) ([]map[string]any, error)
	// exec は複数文を実行し、いずれかの文が失敗した場合はエラーを返す。
	exec(ctx context.Context, q surrealQuery) error
	close(ctx context.Context) error
}

// Store はSurrealDBを使用したdocstore.Store実装。
type Store struct {
	exec     executor
	maxBatch int
}

var _ docstore.Store = (*Store)(nil)

// Connect はSurrealDBに接続し、サインインと名前空間の選択を行う。
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if cfg.Username != "" && cfg.Password != "" {
		if _, err := db.SignIn(ctx, surrealdb.Auth{
			Username: cfg.Username,
			Password: cfg.Password,
		}); err != nil {
			db.Close(ctx)
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	return newStore(&sdkExecutor{db: db}, cfg.MaxBatch), nil
}

func newStore(exec executor, maxBatch int) *Store {
	if maxBatch <= 0 {
		maxBatch = docstore.DefaultMaxBatchSize
	}
	return &Store{exec: exec, maxBatch: maxBatch}
}

// Close は接続を閉じる。
func (s *Store) Close(ctx context.Context) error {
	return s.exec.close(ctx)
}

// Get は指定ドキュメントを取得する。見つからない場合はnilを返す。
func (s *Store) Get(ctx context.Context, ref docstore.DocRef) (*docstore.Record, error) {
	q, err := buildGet(ref)
	if err != nil {
		return nil, err
	}
	rows, err := s.exec.rows(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", ref.Path(), err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	rec := toRecord(ref.Collection, ref.Parent, rows[0])
	return &rec, nil
}

// Query は条件に一致するドキュメントをID順で返す。
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Record, error) {
	sq, err := buildSelect(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.exec.rows(ctx, sq)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q, err)
	}

	out := make([]docstore.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, toRecord(q.Collection, q.Parent, row))
	}
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
	b.ops = append(b.ops, docstore.SetOf(ref, fields))
}

func (b *batch) Len() int {
	return len(b.ops)
}

// Commit はバッチを1トランザクションとして実行する。
func (b *batch) Commit(ctx context.Context) error {
	size := len(b.ops)
	if size > b.store.maxBatch {
		return &docstore.CommitError{Size: size, Err: docstore.ErrBatchTooLarge}
	}
	q, err := buildTransaction(b.ops)
	if err != nil {
		return &docstore.CommitError{Size: size, Err: err}
	}
	if err := b.store.exec.exec(ctx, q); err != nil {
		return &docstore.CommitError{Size: size, Err: err}
	}
	return nil
}

// sdkExecutor はsurrealdb.goクライアントでクエリを実行する。
type sdkExecutor struct {
	db *surrealdb.DB
}

func (e *sdkExecutor) rows(ctx context.Context, q surrealQuery) ([]map[string]any, error) {
	results, err := surrealdb.Query[[]map[string]any](ctx, e.db, q.sql, q.vars)
	if err != nil {
		return nil, err
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	first := (*results)[0]
	if first.Status != "OK" {
		return nil, fmt.Errorf("query returned status %s", first.Status)
	}
	return first.Result, nil
}

func (e *sdkExecutor) exec(ctx context.Context, q surrealQuery) error {
	results, err := surrealdb.Query[any](ctx, e.db, q.sql, q.vars)
	if err != nil {
		return err
	}
	if results == nil {
		return nil
	}
	for i, r := range *results {
		if r.Status != "OK" {
			return fmt.Errorf("statement %d returned status %s", i, r.Status)
		}
	}
	return nil
}

func (e *sdkExecutor) close(ctx context.Context) error {
	return e.db.Close(ctx)
}
