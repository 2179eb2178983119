package docstore

import (
	"fmt"
	"reflect"
)

// ChangeKind はフィールド変更の種類。
type ChangeKind int

const (
	// ChangeArrayRemove は配列フィールドから値を全て取り除く。
	ChangeArrayRemove ChangeKind = iota
	// ChangeIncrement は数値フィールドに値を加算する。
	ChangeIncrement
)

// FieldChange は1フィールドへの変更。
type FieldChange struct {
	Field string
	Kind  ChangeKind
	Value any
}

// ArrayRemove は配列フィールドから値を取り除く変更を生成する。
func ArrayRemove(field string, value any) FieldChange {
	return FieldChange{Field: field, Kind: ChangeArrayRemove, Value: value}
}

// Increment は数値フィールドにnを加算する変更を生成する。負数で減算。
func Increment(field string, n int) FieldChange {
	return FieldChange{Field: field, Kind: ChangeIncrement, Value: n}
}

// Apply はfieldsに変更を適用した新しいmapを返す。fields自体は変更しない。
func (c FieldChange) Apply(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	switch c.Kind {
	case ChangeArrayRemove:
		out[c.Field] = arrayRemove(out[c.Field], c.Value)
	case ChangeIncrement:
		cur, _ := toInt64(out[c.Field])
		n, ok := toInt64(c.Value)
		if !ok {
			return nil, fmt.Errorf("increment %s: non-numeric delta %v", c.Field, c.Value)
		}
		out[c.Field] = cur + n
	default:
		return nil, fmt.Errorf("unknown change kind %d", c.Kind)
	}
	return out, nil
}

// MutationKind は書き込み操作の種類。
type MutationKind int

const (
	MutationDelete MutationKind = iota
	MutationUpdate
	MutationSet
)

func (k MutationKind) String() string {
	switch k {
	case MutationDelete:
		return "delete"
	case MutationUpdate:
		return "update"
	case MutationSet:
		return "set"
	default:
		return fmt.Sprintf("MutationKind(%d)", int(k))
	}
}

// Mutation はバッチに積む前の書き込み操作。
// 計画と実行を分けるため、プランナーはMutationの列を返し、
// 実行側がBatchへ積み替えてコミットする。
type Mutation struct {
	Kind    MutationKind
	Ref     DocRef
	Guard   []Filter
	Changes []FieldChange
	Fields  map[string]any
}

// DeleteOf は削除操作を生成する。
func DeleteOf(ref DocRef) Mutation {
	return Mutation{Kind: MutationDelete, Ref: ref}
}

// UpdateOf はガード付きフィールド更新操作を生成する。
func UpdateOf(ref DocRef, guard []Filter, changes ...FieldChange) Mutation {
	return Mutation{Kind: MutationUpdate, Ref: ref, Guard: guard, Changes: changes}
}

// SetOf はドキュメントの作成/上書き操作を生成する。
func SetOf(ref DocRef, fields map[string]any) Mutation {
	return Mutation{Kind: MutationSet, Ref: ref, Fields: fields}
}

// StageInto はMutationをバッチに積む。
func (m Mutation) StageInto(b Batch) {
	switch m.Kind {
	case MutationDelete:
		b.StageDelete(m.Ref)
	case MutationUpdate:
		b.StageFieldUpdate(m.Ref, m.Guard, m.Changes...)
	case MutationSet:
		b.StageSet(m.Ref, m.Fields)
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	default:
		return 0, false
	}
}

func valueEqual(a, b any) bool {
	if ai, ok := toInt64(a); ok {
		if bi, ok := toInt64(b); ok {
			return ai == bi
		}
	}
	return reflect.DeepEqual(a, b)
}

func arrayContains(arr, value any) bool {
	switch v := arr.(type) {
	case []string:
		for _, e := range v {
			if valueEqual(e, value) {
				return true
			}
		}
	case []any:
		for _, e := range v {
			if valueEqual(e, value) {
				return true
			}
		}
	}
	return false
}

func arrayRemove(arr, value any) any {
	switch v := arr.(type) {
	case []string:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if !valueEqual(e, value) {
				out = append(out, e)
			}
		}
		return out
	case []any:
		out := make([]any, 0, len(v))
		for _, e := range v {
			if !valueEqual(e, value) {
				out = append(out, e)
			}
		}
		return out
	default:
		return arr
	}
}
