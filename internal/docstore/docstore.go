// Package docstore はチャットデータを格納するドキュメントストアの抽象を定義する。
//
// コレクション単位のドキュメント（サブコレクションを含む）に対して、
// 単一ドキュメント取得・等価/配列包含フィルタによる検索・
// アトミックなバッチ書き込みを提供する。バックエンドはPostgreSQL、SurrealDB、
// インメモリの3種類を持つ。
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultMaxBatchSize は1バッチに含められる書き込み操作数の既定上限。
const DefaultMaxBatchSize = 500

var (
	// ErrBatchTooLarge はバッチの操作数が上限を超えた場合のエラー。
	ErrBatchTooLarge = errors.New("docstore: batch exceeds max size")
	// ErrUnknownCollection はバックエンドが扱えないコレクションを指定した場合のエラー。
	ErrUnknownCollection = errors.New("docstore: unknown collection")
	// ErrUnknownField はバックエンドが扱えないフィールドを指定した場合のエラー。
	ErrUnknownField = errors.New("docstore: unknown field")
)

// Reader はドキュメントの読み取り操作を提供する。
type Reader interface {
	// Get は指定ドキュメントを取得する。存在しない場合はnilを返す。
	Get(ctx context.Context, ref DocRef) (*Record, error)
	// Query は条件に一致するドキュメントをID順で返す。
	Query(ctx context.Context, q Query) ([]Record, error)
}

// Batch は複数の書き込みをまとめてアトミックにコミットする。
// Commitが成功すれば全操作が適用され、失敗すれば何も適用されない。
type Batch interface {
	StageDelete(ref DocRef)
	// StageFieldUpdate はguardの全条件を満たす場合のみフィールド変更を適用する。
	// ドキュメントが存在しない、またはguardを満たさない場合は何もしない。
	StageFieldUpdate(ref DocRef, guard []Filter, changes ...FieldChange)
	StageSet(ref DocRef, fields map[string]any)
	Len() int
	Commit(ctx context.Context) error
}

// Store はドキュメントストア本体。
type Store interface {
	Reader
	OpenBatch() Batch
	MaxBatchSize() int
}

// DocRef はドキュメントの位置を表す。Parentはサブコレクションの親ドキュメント。
type DocRef struct {
	Collection string
	ID         string
	Parent     *DocRef
}

// Doc はトップレベルコレクションのDocRefを生成する。
func Doc(collection, id string) DocRef {
	return DocRef{Collection: collection, ID: id}
}

// Child はこのドキュメント配下のサブコレクションのDocRefを生成する。
func (r DocRef) Child(collection, id string) DocRef {
	parent := r
	return DocRef{Collection: collection, ID: id, Parent: &parent}
}

// Path は "direct_threads/t1/messages/m1" 形式のパスを返す。
func (r DocRef) Path() string {
	if r.Parent == nil {
		return r.Collection + "/" + r.ID
	}
	return r.Parent.Path() + "/" + r.Collection + "/" + r.ID
}

// String はPathを返す。
func (r DocRef) String() string {
	return r.Path()
}

// ParentID は親ドキュメントのIDを返す。トップレベルの場合は空文字。
func (r DocRef) ParentID() string {
	if r.Parent == nil {
		return ""
	}
	return r.Parent.ID
}

// Record は取得したドキュメントを表す。
type Record struct {
	Ref    DocRef
	Fields map[string]any
}

// String は文字列フィールドを返す。存在しない場合は空文字。
func (r Record) String(field string) string {
	s, _ := r.Fields[field].(string)
	return s
}

// Strings は文字列配列フィールドを返す。
func (r Record) Strings(field string) []string {
	switch v := r.Fields[field].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Int は数値フィールドをintで返す。
func (r Record) Int(field string) int {
	n, _ := toInt64(r.Fields[field])
	return int(n)
}

// Op はフィルタの比較演算子。
type Op int

const (
	// OpEqual はフィールド値が等しいことを表す。
	OpEqual Op = iota
	// OpArrayContains は配列フィールドが値を含むことを表す。
	OpArrayContains
)

func (o Op) String() string {
	switch o {
	case OpEqual:
		return "=="
	case OpArrayContains:
		return "array-contains"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Filter はドキュメント検索条件の1項。
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Equal は等価フィルタを生成する。
func Equal(field string, value any) Filter {
	return Filter{Field: field, Op: OpEqual, Value: value}
}

// ArrayContains は配列包含フィルタを生成する。
func ArrayContains(field string, value any) Filter {
	return Filter{Field: field, Op: OpArrayContains, Value: value}
}

// Matches はフィールド集合がフィルタを満たすかを返す。
func (f Filter) Matches(fields map[string]any) bool {
	v, ok := fields[f.Field]
	if !ok {
		return false
	}
	switch f.Op {
	case OpEqual:
		return valueEqual(v, f.Value)
	case OpArrayContains:
		return arrayContains(v, f.Value)
	default:
		return false
	}
}

// Query はコレクション検索条件。Parentを指定するとサブコレクションを検索する。
type Query struct {
	Collection string
	Parent     *DocRef
	Filters    []Filter
}

// Where はトップレベルコレクションの検索条件を生成する。
func Where(collection string, filters ...Filter) Query {
	return Query{Collection: collection, Filters: filters}
}

// Under は親ドキュメント配下のサブコレクション全件の検索条件を生成する。
func Under(parent DocRef, collection string) Query {
	p := parent
	return Query{Collection: collection, Parent: &p}
}

// Matches はレコードが検索条件を満たすかを返す。
func (q Query) Matches(rec Record) bool {
	if rec.Ref.Collection != q.Collection {
		return false
	}
	if q.Parent == nil {
		if rec.Ref.Parent != nil {
			return false
		}
	} else if rec.Ref.Parent == nil || rec.Ref.Parent.Path() != q.Parent.Path() {
		return false
	}
	for _, f := range q.Filters {
		if !f.Matches(rec.Fields) {
			return false
		}
	}
	return true
}

// String はログ出力用の表現を返す。
func (q Query) String() string {
	var b strings.Builder
	if q.Parent != nil {
		b.WriteString(q.Parent.Path())
		b.WriteString("/")
	}
	b.WriteString(q.Collection)
	for _, f := range q.Filters {
		fmt.Fprintf(&b, " %s %s %v", f.Field, f.Op, f.Value)
	}
	return b.String()
}

// CommitError はバッチのコミット失敗を表す。
// Sizeは失敗したバッチの操作数で、いずれも適用されていない。
type CommitError struct {
	Size int
	Err  error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("docstore: commit of %d mutations failed: %v", e.Size, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}
