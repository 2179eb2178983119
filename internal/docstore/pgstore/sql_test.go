package pgstore

import (
	"errors"
	"reflect"
	"testing"

	"github.com/hitoshi/talkbox/internal/docstore"
)

func TestBuildSelect_ArrayContains(t *testing.T) {
	stmt, err := buildSelect(docstore.Where("direct_threads", docstore.ArrayContains("participant_ids", "u1")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "SELECT row_to_json(t) FROM direct_threads t WHERE $1 = ANY(participant_ids) ORDER BY id"
	if stmt.sql != want {
		t.Errorf("sql = %q\nwant %q", stmt.sql, want)
	}
	if !reflect.DeepEqual(stmt.args, []any{"u1"}) {
		t.Errorf("args = %v", stmt.args)
	}
}

func TestBuildSelect_Subcollection(t *testing.T) {
	stmt, err := buildSelect(docstore.Under(docstore.Doc("direct_threads", "t1"), "messages"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "SELECT row_to_json(t) FROM direct_messages t WHERE thread_id = $1 ORDER BY id"
	if stmt.sql != want {
		t.Errorf("sql = %q\nwant %q", stmt.sql, want)
	}
}

func TestBuildSelect_RejectsUnknownIdentifiers(t *testing.T) {
	_, err := buildSelect(docstore.Where("users; DROP TABLE x"))
	if !errors.Is(err, docstore.ErrUnknownCollection) {
		t.Errorf("expected ErrUnknownCollection, got %v", err)
	}

	_, err = buildSelect(docstore.Where("notifications", docstore.Equal("recipient_id = '' OR 1=1 --", "x")))
	if !errors.Is(err, docstore.ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestBuildSelect_RejectsMessagesWithoutParent(t *testing.T) {
	if _, err := buildSelect(docstore.Where("messages")); err == nil {
		t.Error("expected error for subcollection query without parent")
	}
}

func TestBuildUpdate_GuardedMembershipRemoval(t *testing.T) {
	stmt, err := buildUpdate(
		docstore.Doc("groups", "g1"),
		[]docstore.Filter{docstore.ArrayContains("member_ids", "u1")},
		[]docstore.FieldChange{
			docstore.ArrayRemove("member_ids", "u1"),
			docstore.Increment("member_count", -1),
		},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "UPDATE groups SET member_ids = array_remove(member_ids, $1), member_count = member_count + $2 WHERE id = $3 AND $4 = ANY(member_ids)"
	if stmt.sql != want {
		t.Errorf("sql = %q\nwant %q", stmt.sql, want)
	}
	if !reflect.DeepEqual(stmt.args, []any{"u1", -1, "g1", "u1"}) {
		t.Errorf("args = %v", stmt.args)
	}
}

func TestBuildUpdate_RejectsIncrementOnText(t *testing.T) {
	_, err := buildUpdate(docstore.Doc("groups", "g1"), nil, []docstore.FieldChange{docstore.Increment("name", 1)})
	if err == nil {
		t.Error("expected error for increment on text column")
	}
}

func TestBuildDelete_Message(t *testing.T) {
	ref := docstore.Doc("direct_threads", "t1").Child("messages", "m1")
	stmt, err := buildDelete(ref)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "DELETE FROM direct_messages WHERE id = $1 AND thread_id = $2"
	if stmt.sql != want {
		t.Errorf("sql = %q\nwant %q", stmt.sql, want)
	}
	if !reflect.DeepEqual(stmt.args, []any{"m1", "t1"}) {
		t.Errorf("args = %v", stmt.args)
	}
}

func TestBuildUpsert_SortsColumns(t *testing.T) {
	stmt, err := buildUpsert(docstore.Doc("follow_requests", "f1"), map[string]any{
		"target_id":    "u2",
		"requester_id": "u1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "INSERT INTO follow_requests (id, requester_id, target_id) VALUES ($1, $2, $3) ON CONFLICT (id) DO UPDATE SET requester_id = EXCLUDED.requester_id, target_id = EXCLUDED.target_id"
	if stmt.sql != want {
		t.Errorf("sql = %q\nwant %q", stmt.sql, want)
	}
}

func TestBuildUpsert_MessageConflictIncludesThread(t *testing.T) {
	ref := docstore.Doc("direct_threads", "t2").Child("messages", "m1")
	stmt, err := buildMutation(docstore.SetOf(ref, map[string]any{"body": "x"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "INSERT INTO direct_messages (id, thread_id, body) VALUES ($1, $2, $3) ON CONFLICT (thread_id, id) DO UPDATE SET body = EXCLUDED.body"
	if stmt.sql != want {
		t.Errorf("sql = %q\nwant %q", stmt.sql, want)
	}
	if !reflect.DeepEqual(stmt.args, []any{"m1", "t2", "x"}) {
		t.Errorf("args = %v", stmt.args)
	}
}

func TestDecodeRow_MovesIDsToRef(t *testing.T) {
	parent := docstore.Doc("direct_threads", "t1")
	rec, err := decodeRow("messages", &parent, []byte(`{"id":"m1","thread_id":"t1","body":"hi"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.Ref.Path() != "direct_threads/t1/messages/m1" {
		t.Errorf("ref = %s", rec.Ref.Path())
	}
	if _, ok := rec.Fields["id"]; ok {
		t.Error("id must not remain in fields")
	}
	if _, ok := rec.Fields["thread_id"]; ok {
		t.Error("thread_id must not remain in fields")
	}
	if rec.String("body") != "hi" {
		t.Errorf("body = %q", rec.String("body"))
	}
}

func TestStore_ImplementsInterface(t *testing.T) {
	var _ docstore.Store = (*Store)(nil)
}
