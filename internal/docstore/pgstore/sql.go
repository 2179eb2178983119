package pgstore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/talkbox/internal/docstore"
)

// statement は組み立て済みのSQLとパラメータ。
type statement struct {
	sql  string
	args []any
}

// argList はプレースホルダ番号を払い出しながら引数を積む。
type argList struct {
	args []any
}

func (a *argList) add(v any) string {
	a.args = append(a.args, v)
	return fmt.Sprintf("$%d", len(a.args))
}

func refCondition(t table, ref docstore.DocRef, args *argList) (string, error) {
	if (ref.Parent != nil) != (t.parent != "") {
		return "", fmt.Errorf("pgstore: %s: parent mismatch for %s", t.name, ref.Path())
	}
	cond := "id = " + args.add(ref.ID)
	if t.parent != "" {
		cond += " AND " + t.parent + " = " + args.add(ref.Parent.ID)
	}
	return cond, nil
}

func filterCondition(t table, f docstore.Filter, args *argList) (string, error) {
	kind, err := t.column(f.Field)
	if err != nil {
		return "", err
	}
	switch f.Op {
	case docstore.OpEqual:
		if kind == colTextArray {
			return "", fmt.Errorf("pgstore: equality on array column %s", f.Field)
		}
		return f.Field + " = " + args.add(f.Value), nil
	case docstore.OpArrayContains:
		if kind != colTextArray {
			return "", fmt.Errorf("pgstore: array-contains on scalar column %s", f.Field)
		}
		return args.add(f.Value) + " = ANY(" + f.Field + ")", nil
	default:
		return "", fmt.Errorf("pgstore: unsupported operator %s", f.Op)
	}
}

func buildGet(ref docstore.DocRef) (statement, error) {
	t, err := lookupTable(ref.Collection)
	if err != nil {
		return statement{}, err
	}
	args := &argList{}
	cond, err := refCondition(t, ref, args)
	if err != nil {
		return statement{}, err
	}
	return statement{
		sql:  "SELECT row_to_json(t) FROM " + t.name + " t WHERE " + cond,
		args: args.args,
	}, nil
}

func buildSelect(q docstore.Query) (statement, error) {
	t, err := lookupTable(q.Collection)
	if err != nil {
		return statement{}, err
	}
	if (q.Parent != nil) != (t.parent != "") {
		return statement{}, fmt.Errorf("pgstore: %s: parent mismatch for query %s", t.name, q)
	}

	args := &argList{}
	var conds []string
	if q.Parent != nil {
		conds = append(conds, t.parent+" = "+args.add(q.Parent.ID))
	}
	for _, f := range q.Filters {
		c, err := filterCondition(t, f, args)
		if err != nil {
			return statement{}, err
		}
		conds = append(conds, c)
	}

	sql := "SELECT row_to_json(t) FROM " + t.name + " t"
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY id"
	return statement{sql: sql, args: args.args}, nil
}

func buildDelete(ref docstore.DocRef) (statement, error) {
	t, err := lookupTable(ref.Collection)
	if err != nil {
		return statement{}, err
	}
	args := &argList{}
	cond, err := refCondition(t, ref, args)
	if err != nil {
		return statement{}, err
	}
	return statement{sql: "DELETE FROM " + t.name + " WHERE " + cond, args: args.args}, nil
}

// buildUpdate はguard条件をWHERE句に含めたUPDATE文を組み立てる。
// 条件を満たす行がなければ0行更新となり、エラーにはしない。
func buildUpdate(ref docstore.DocRef, guard []docstore.Filter, changes []docstore.FieldChange) (statement, error) {
	t, err := lookupTable(ref.Collection)
	if err != nil {
		return statement{}, err
	}
	if len(changes) == 0 {
		return statement{}, fmt.Errorf("pgstore: update of %s without changes", ref.Path())
	}

	args := &argList{}
	sets := make([]string, 0, len(changes))
	for _, c := range changes {
		kind, err := t.column(c.Field)
		if err != nil {
			return statement{}, err
		}
		switch c.Kind {
		case docstore.ChangeArrayRemove:
			if kind != colTextArray {
				return statement{}, fmt.Errorf("pgstore: array-remove on scalar column %s", c.Field)
			}
			sets = append(sets, fmt.Sprintf("%s = array_remove(%s, %s)", c.Field, c.Field, args.add(c.Value)))
		case docstore.ChangeIncrement:
			if kind != colInteger {
				return statement{}, fmt.Errorf("pgstore: increment on non-integer column %s", c.Field)
			}
			sets = append(sets, fmt.Sprintf("%s = %s + %s", c.Field, c.Field, args.add(c.Value)))
		default:
			return statement{}, fmt.Errorf("pgstore: unsupported change kind %d", c.Kind)
		}
	}

	cond, err := refCondition(t, ref, args)
	if err != nil {
		return statement{}, err
	}
	conds := []string{cond}
	for _, f := range guard {
		c, err := filterCondition(t, f, args)
		if err != nil {
			return statement{}, err
		}
		conds = append(conds, c)
	}

	return statement{
		sql:  "UPDATE " + t.name + " SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(conds, " AND "),
		args: args.args,
	}, nil
}

// buildUpsert はINSERT ... ON CONFLICT DO UPDATE文を組み立てる。
// サブコレクションでは親IDも衝突判定に含め、別の親の同じIDを上書きしない。
func buildUpsert(ref docstore.DocRef, fields map[string]any) (statement, error) {
	t, err := lookupTable(ref.Collection)
	if err != nil {
		return statement{}, err
	}
	if (ref.Parent != nil) != (t.parent != "") {
		return statement{}, fmt.Errorf("pgstore: %s: parent mismatch for %s", t.name, ref.Path())
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if _, err := t.column(name); err != nil {
			return statement{}, err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	args := &argList{}
	cols := []string{"id"}
	vals := []string{args.add(ref.ID)}
	if t.parent != "" {
		cols = append(cols, t.parent)
		vals = append(vals, args.add(ref.Parent.ID))
	}
	var updates []string
	for _, name := range names {
		v := fields[name]
		if t.columns[name] == colTextArray {
			v = pq.Array(v)
		}
		cols = append(cols, name)
		vals = append(vals, args.add(v))
		updates = append(updates, name+" = EXCLUDED."+name)
	}

	sql := "INSERT INTO " + t.name + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ")"
	conflict := " ON CONFLICT (" + t.conflictKey() + ")"
	if len(updates) > 0 {
		sql += conflict + " DO UPDATE SET " + strings.Join(updates, ", ")
	} else {
		sql += conflict + " DO NOTHING"
	}
	return statement{sql: sql, args: args.args}, nil
}

func buildMutation(m docstore.Mutation) (statement, error) {
	switch m.Kind {
	case docstore.MutationDelete:
		return buildDelete(m.Ref)
	case docstore.MutationUpdate:
		return buildUpdate(m.Ref, m.Guard, m.Changes)
	case docstore.MutationSet:
		return buildUpsert(m.Ref, m.Fields)
	default:
		return statement{}, fmt.Errorf("pgstore: unknown mutation kind %s", m.Kind)
	}
}
