package docstore

import "testing"

func TestDocRef_Path(t *testing.T) {
	thread := Doc("direct_threads", "t1")
	msg := thread.Child("messages", "m1")

	if got := thread.Path(); got != "direct_threads/t1" {
		t.Errorf("thread.Path() = %q", got)
	}
	if got := msg.Path(); got != "direct_threads/t1/messages/m1" {
		t.Errorf("msg.Path() = %q", got)
	}
	if got := msg.ParentID(); got != "t1" {
		t.Errorf("msg.ParentID() = %q, want t1", got)
	}
}

func TestFilter_Matches(t *testing.T) {
	fields := map[string]any{
		"recipient_id":    "u1",
		"participant_ids": []any{"u1", "u2"},
		"member_count":    float64(3),
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"equal hit", Equal("recipient_id", "u1"), true},
		{"equal miss", Equal("recipient_id", "u2"), false},
		{"array contains hit", ArrayContains("participant_ids", "u2"), true},
		{"array contains miss", ArrayContains("participant_ids", "u9"), false},
		{"numeric equal across types", Equal("member_count", 3), true},
		{"missing field", Equal("target_id", "u1"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(fields); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestQuery_MatchesRespectsParent(t *testing.T) {
	thread := Doc("direct_threads", "t1")
	msg := Record{Ref: thread.Child("messages", "m1")}
	topLevel := Record{Ref: Doc("messages", "m1")}

	q := Under(thread, "messages")
	if !q.Matches(msg) {
		t.Error("expected subcollection record to match")
	}
	if q.Matches(topLevel) {
		t.Error("top-level record must not match a subcollection query")
	}
	if Where("messages").Matches(msg) {
		t.Error("subcollection record must not match a top-level query")
	}
}

func TestFieldChange_ApplyDoesNotMutateInput(t *testing.T) {
	fields := map[string]any{
		"member_ids":   []string{"u1", "u2"},
		"member_count": 2,
	}

	out, err := ArrayRemove("member_ids", "u1").Apply(fields)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err = Increment("member_count", -1).Apply(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := Record{Fields: out}
	if ids := rec.Strings("member_ids"); len(ids) != 1 || ids[0] != "u2" {
		t.Errorf("member_ids = %v, want [u2]", ids)
	}
	if n := rec.Int("member_count"); n != 1 {
		t.Errorf("member_count = %d, want 1", n)
	}
	if len(fields["member_ids"].([]string)) != 2 {
		t.Error("input fields were mutated")
	}
}
