package surrealstore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hitoshi/talkbox/internal/docstore"
	"github.com/hitoshi/talkbox/internal/model"
)

// レコードに付与する管理用フィールド
const (
	fieldDocID      = "doc_id"
	fieldParentPath = "parent_path"
)

var collections = map[string]bool{
	model.CollectionProfiles:       true,
	model.CollectionNotifications:  true,
	model.CollectionFollowRequests: true,
	model.CollectionDirectThreads:  true,
	model.CollectionMessages:       true,
	model.CollectionGroups:         true,
}

// フィールド名はSurrealQLに直接埋め込むため識別子として安全な形式に限定する
var fieldNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// surrealQuery は組み立て済みのSurrealQLと変数。
type surrealQuery struct {
	sql  string
	vars map[string]any
}

func checkCollection(name string) error {
	if !collections[name] {
		return fmt.Errorf("%w: %s", docstore.ErrUnknownCollection, name)
	}
	return nil
}

func checkField(name string) error {
	if !fieldNamePattern.MatchString(name) || name == fieldDocID || name == fieldParentPath {
		return fmt.Errorf("%w: %s", docstore.ErrUnknownField, name)
	}
	return nil
}

// recordKey はSurrealDBのレコードIDに使うキーを返す。
// サブコレクションは親のパスを含めて、親が異なる同一IDの衝突を避ける。
func recordKey(ref docstore.DocRef) string {
	if ref.Parent == nil {
		return ref.ID
	}
	return ref.Parent.Path() + "/" + ref.ID
}

func parentPath(parent *docstore.DocRef) string {
	if parent == nil {
		return ""
	}
	return parent.Path()
}

func filterExpr(f docstore.Filter, name string) (string, error) {
	if err := checkField(f.Field); err != nil {
		return "", err
	}
	switch f.Op {
	case docstore.OpEqual:
		return fmt.Sprintf("%s = $%s", f.Field, name), nil
	case docstore.OpArrayContains:
		return fmt.Sprintf("$%s INSIDE %s", name, f.Field), nil
	default:
		return "", fmt.Errorf("surrealstore: unsupported operator %s", f.Op)
	}
}

func buildGet(ref docstore.DocRef) (surrealQuery, error) {
	if err := checkCollection(ref.Collection); err != nil {
		return surrealQuery{}, err
	}
	return surrealQuery{
		sql:  "SELECT * FROM type::thing($tb, $key)",
		vars: map[string]any{"tb": ref.Collection, "key": recordKey(ref)},
	}, nil
}

func buildSelect(q docstore.Query) (surrealQuery, error) {
	if err := checkCollection(q.Collection); err != nil {
		return surrealQuery{}, err
	}

	vars := map[string]any{"tb": q.Collection, "parent": parentPath(q.Parent)}
	conds := []string{fieldParentPath + " = $parent"}
	for i, f := range q.Filters {
		name := fmt.Sprintf("f%d", i)
		expr, err := filterExpr(f, name)
		if err != nil {
			return surrealQuery{}, err
		}
		conds = append(conds, expr)
		vars[name] = f.Value
	}

	return surrealQuery{
		sql:  "SELECT * FROM type::table($tb) WHERE " + strings.Join(conds, " AND ") + " ORDER BY " + fieldDocID,
		vars: vars,
	}, nil
}

// buildTransaction はバッチ全体を1つのトランザクションにまとめたSurrealQLを組み立てる。
func buildTransaction(ops []docstore.Mutation) (surrealQuery, error) {
	vars := map[string]any{}
	stmts := []string{"BEGIN TRANSACTION;"}

	for i, op := range ops {
		if err := checkCollection(op.Ref.Collection); err != nil {
			return surrealQuery{}, err
		}
		tb := fmt.Sprintf("tb%d", i)
		key := fmt.Sprintf("key%d", i)
		vars[tb] = op.Ref.Collection
		vars[key] = recordKey(op.Ref)
		target := fmt.Sprintf("type::thing($%s, $%s)", tb, key)

		switch op.Kind {
		case docstore.MutationDelete:
			stmts = append(stmts, "DELETE "+target+";")

		case docstore.MutationUpdate:
			if len(op.Changes) == 0 {
				return surrealQuery{}, fmt.Errorf("surrealstore: update of %s without changes", op.Ref.Path())
			}
			sets := make([]string, 0, len(op.Changes))
			for j, c := range op.Changes {
				if err := checkField(c.Field); err != nil {
					return surrealQuery{}, err
				}
				name := fmt.Sprintf("c%d_%d", i, j)
				vars[name] = c.Value
				switch c.Kind {
				case docstore.ChangeArrayRemove:
					sets = append(sets, fmt.Sprintf("%s -= $%s", c.Field, name))
				case docstore.ChangeIncrement:
					sets = append(sets, fmt.Sprintf("%s += $%s", c.Field, name))
				default:
					return surrealQuery{}, fmt.Errorf("surrealstore: unsupported change kind %d", c.Kind)
				}
			}
			stmt := "UPDATE " + target + " SET " + strings.Join(sets, ", ")
			if len(op.Guard) > 0 {
				conds := make([]string, 0, len(op.Guard))
				for j, g := range op.Guard {
					name := fmt.Sprintf("g%d_%d", i, j)
					expr, err := filterExpr(g, name)
					if err != nil {
						return surrealQuery{}, err
					}
					vars[name] = g.Value
					conds = append(conds, expr)
				}
				stmt += " WHERE " + strings.Join(conds, " AND ")
			}
			stmts = append(stmts, stmt+";")

		case docstore.MutationSet:
			content := make(map[string]any, len(op.Fields)+2)
			for k, v := range op.Fields {
				if err := checkField(k); err != nil {
					return surrealQuery{}, err
				}
				content[k] = v
			}
			content[fieldDocID] = op.Ref.ID
			content[fieldParentPath] = parentPath(op.Ref.Parent)
			name := fmt.Sprintf("content%d", i)
			vars[name] = content
			stmts = append(stmts, "UPSERT "+target+" CONTENT $"+name+";")

		default:
			return surrealQuery{}, fmt.Errorf("surrealstore: unknown mutation kind %s", op.Kind)
		}
	}

	stmts = append(stmts, "COMMIT TRANSACTION;")
	return surrealQuery{sql: strings.Join(stmts, "\n"), vars: vars}, nil
}

// toRecord はSELECT結果の1行をRecordに変換する。管理用フィールドはFieldsから除く。
func toRecord(collection string, parent *docstore.DocRef, row map[string]any) docstore.Record {
	fields := make(map[string]any, len(row))
	for k, v := range row {
		switch k {
		case "id", fieldDocID, fieldParentPath:
			continue
		}
		fields[k] = v
	}

	id, _ := row[fieldDocID].(string)
	ref := docstore.DocRef{Collection: collection, ID: id}
	if parent != nil {
		p := *parent
		ref.Parent = &p
	}
	return docstore.Record{Ref: ref, Fields: fields}
}
