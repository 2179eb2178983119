// Package pgstore はPostgreSQL上にドキュメントストアを実装する。
// コレクションは固定のテーブルに対応し、バッチは1トランザクションでコミットする。
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/talkbox/internal/docstore"
)

// Store はPostgreSQLを使用したdocstore.Store実装。
type Store struct {
	db       *sql.DB
	maxBatch int
}

var _ docstore.Store = (*Store)(nil)

// New はStoreを生成する。maxBatchが0以下の場合はDefaultMaxBatchSizeを使用する。
func New(db *sql.DB, maxBatch int) *Store {
	if maxBatch <= 0 {
		maxBatch = docstore.DefaultMaxBatchSize
	}
	return &Store{db: db, maxBatch: maxBatch}
}

// Get は指定ドキュメントを取得する。見つからない場合はnilを返す。
func (s *Store) Get(ctx context.Context, ref docstore.DocRef) (*docstore.Record, error) {
	stmt, err := buildGet(ref)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = s.db.QueryRowContext(ctx, stmt.sql, stmt.args...).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", ref.Path(), err)
	}

	rec, err := decodeRow(ref.Collection, ref.Parent, raw)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Query は条件に一致するドキュメントをID順で返す。
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Record, error) {
	stmt, err := buildSelect(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, stmt.sql, stmt.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q, err)
	}
	defer rows.Close()

	var out []docstore.Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", q.Collection, err)
		}
		rec, err := decodeRow(q.Collection, q.Parent, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", q.Collection, err)
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

// decodeRow はrow_to_jsonの結果をRecordに変換する。
// id列と親ID列はDocRefに移し、Fieldsには含めない。
func decodeRow(collection string, parent *docstore.DocRef, raw []byte) (docstore.Record, error) {
	t, err := lookupTable(collection)
	if err != nil {
		return docstore.Record{}, err
	}

	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return docstore.Record{}, fmt.Errorf("failed to decode %s row: %w", collection, err)
	}

	id, _ := fields["id"].(string)
	delete(fields, "id")

	ref := docstore.DocRef{Collection: collection, ID: id}
	if t.parent != "" && parent != nil {
		delete(fields, t.parent)
		p := *parent
		ref.Parent = &p
	}
	return docstore.Record{Ref: ref, Fields: fields}, nil
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

// Commit は全操作を1トランザクションで実行する。
func (b *batch) Commit(ctx context.Context) error {
	size := len(b.ops)
	if size > b.store.maxBatch {
		return &docstore.CommitError{Size: size, Err: docstore.ErrBatchTooLarge}
	}

	// SQL組み立てをトランザクション開始前に済ませ、不正な操作で接続を占有しない
	stmts := make([]statement, 0, size)
	for _, op := range b.ops {
		stmt, err := buildMutation(op)
		if err != nil {
			return &docstore.CommitError{Size: size, Err: err}
		}
		stmts = append(stmts, stmt)
	}

	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return &docstore.CommitError{Size: size, Err: fmt.Errorf("failed to begin transaction: %w", err)}
	}
	defer tx.Rollback()

	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt.sql, stmt.args...); err != nil {
			return &docstore.CommitError{Size: size, Err: fmt.Errorf("failed to apply %s %s: %w", b.ops[i].Kind, b.ops[i].Ref.Path(), err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &docstore.CommitError{Size: size, Err: fmt.Errorf("failed to commit transaction: %w", err)}
	}
	return nil
}
