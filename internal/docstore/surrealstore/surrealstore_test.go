package surrealstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/talkbox/internal/docstore"
)

// mockExecutor はexecutorのテスト用モック。
type mockExecutor struct {
	rowsFn  func(ctx context.Context, q surrealQuery) ([]map[string]any, error)
	execFn  func(ctx context.Context, q surrealQuery) error
	queries []surrealQuery
}

func (m *mockExecutor) rows(ctx context.Context, q surrealQuery) ([]map[string]any, error) {
	m.queries = append(m.queries, q)
	if m.rowsFn != nil {
		return m.rowsFn(ctx, q)
	}
	return nil, nil
}

func (m *mockExecutor) exec(ctx context.Context, q surrealQuery) error {
	m.queries = append(m.queries, q)
	if m.execFn != nil {
		return m.execFn(ctx, q)
	}
	return nil
}

func (m *mockExecutor) close(ctx context.Context) error {
	return nil
}

func TestBuildSelect_ArrayContainsAndParent(t *testing.T) {
	q, err := buildSelect(docstore.Where("groups", docstore.ArrayContains("member_ids", "u1")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "SELECT * FROM type::table($tb) WHERE parent_path = $parent AND $f0 INSIDE member_ids ORDER BY doc_id"
	if q.sql != want {
		t.Errorf("sql = %q\nwant %q", q.sql, want)
	}
	if q.vars["tb"] != "groups" || q.vars["f0"] != "u1" || q.vars["parent"] != "" {
		t.Errorf("vars = %v", q.vars)
	}

	sub, err := buildSelect(docstore.Under(docstore.Doc("direct_threads", "t1"), "messages"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.vars["parent"] != "direct_threads/t1" {
		t.Errorf("parent var = %v", sub.vars["parent"])
	}
}

func TestBuildSelect_RejectsUnsafeFieldName(t *testing.T) {
	_, err := buildSelect(docstore.Where("notifications", docstore.Equal("x = 1 OR true", "u1")))
	if !errors.Is(err, docstore.ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestBuildTransaction_WrapsStatements(t *testing.T) {
	thread := docstore.Doc("direct_threads", "t1")
	q, err := buildTransaction([]docstore.Mutation{
		docstore.DeleteOf(thread.Child("messages", "m1")),
		docstore.DeleteOf(thread),
		docstore.UpdateOf(docstore.Doc("groups", "g1"),
			[]docstore.Filter{docstore.ArrayContains("member_ids", "u1")},
			docstore.ArrayRemove("member_ids", "u1"),
			docstore.Increment("member_count", -1),
		),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(q.sql, "\n")
	want := []string{
		"BEGIN TRANSACTION;",
		"DELETE type::thing($tb0, $key0);",
		"DELETE type::thing($tb1, $key1);",
		"UPDATE type::thing($tb2, $key2) SET member_ids -= $c2_0, member_count += $c2_1 WHERE $g2_0 INSIDE member_ids;",
		"COMMIT TRANSACTION;",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d:\n%s", len(lines), len(want), q.sql)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q\nwant %q", i, lines[i], want[i])
		}
	}
	if q.vars["key0"] != "direct_threads/t1/m1" {
		t.Errorf("message key = %v", q.vars["key0"])
	}
	if q.vars["key1"] != "t1" {
		t.Errorf("thread key = %v", q.vars["key1"])
	}
}

func TestBuildTransaction_SetAddsBookkeepingFields(t *testing.T) {
	q, err := buildTransaction([]docstore.Mutation{
		docstore.SetOf(docstore.Doc("profiles", "u1"), map[string]any{"display_name": "Alice"}),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content, ok := q.vars["content0"].(map[string]any)
	if !ok {
		t.Fatalf("content var missing: %v", q.vars)
	}
	if content["doc_id"] != "u1" || content["parent_path"] != "" || content["display_name"] != "Alice" {
		t.Errorf("content = %v", content)
	}
}

func TestStore_GetDecodesRow(t *testing.T) {
	exec := &mockExecutor{
		rowsFn: func(ctx context.Context, q surrealQuery) ([]map[string]any, error) {
			return []map[string]any{{
				"id":           "profiles:u1",
				"doc_id":       "u1",
				"parent_path":  "",
				"display_name": "Alice",
			}}, nil
		},
	}
	s := newStore(exec, 0)

	rec, err := s.Get(context.Background(), docstore.Doc("profiles", "u1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil || rec.Ref.ID != "u1" || rec.String("display_name") != "Alice" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if _, ok := rec.Fields["doc_id"]; ok {
		t.Error("bookkeeping field leaked into Fields")
	}
}

func TestStore_GetMissingReturnsNil(t *testing.T) {
	s := newStore(&mockExecutor{}, 0)

	rec, err := s.Get(context.Background(), docstore.Doc("profiles", "u1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil, got %+v", rec)
	}
}

func TestBatch_CommitWrapsExecutorError(t *testing.T) {
	exec := &mockExecutor{
		execFn: func(ctx context.Context, q surrealQuery) error {
			return errors.New("transaction cancelled")
		},
	}
	s := newStore(exec, 0)

	b := s.OpenBatch()
	b.StageDelete(docstore.Doc("notifications", "n1"))
	err := b.Commit(context.Background())

	var commitErr *docstore.CommitError
	if !errors.As(err, &commitErr) {
		t.Fatalf("expected *docstore.CommitError, got %v", err)
	}
	if commitErr.Size != 1 {
		t.Errorf("Size = %d, want 1", commitErr.Size)
	}
}

func TestBatch_OversizedBatchNeverReachesServer(t *testing.T) {
	exec := &mockExecutor{}
	s := newStore(exec, 1)

	b := s.OpenBatch()
	b.StageDelete(docstore.Doc("notifications", "n1"))
	b.StageDelete(docstore.Doc("notifications", "n2"))

	if err := b.Commit(context.Background()); !errors.Is(err, docstore.ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
	if len(exec.queries) != 0 {
		t.Errorf("expected no queries, got %d", len(exec.queries))
	}
}
