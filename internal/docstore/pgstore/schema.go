package pgstore

import (
	"fmt"

	"github.com/hitoshi/talkbox/internal/docstore"
	"github.com/hitoshi/talkbox/internal/model"
)

type columnKind int

const (
	colScalar columnKind = iota
	colTextArray
	colInteger
)

// table はコレクションとテーブルの対応を表す。
// SQLに埋め込む識別子はここに列挙したものだけを使用する。
type table struct {
	name    string
	parent  string // サブコレクションの場合の親ID列
	columns map[string]columnKind
}

var tables = map[string]table{
	model.CollectionProfiles: {
		name: "profiles",
		columns: map[string]columnKind{
			model.FieldDisplayName: colScalar,
			model.FieldCreatedAt:   colScalar,
		},
	},
	model.CollectionNotifications: {
		name: "notifications",
		columns: map[string]columnKind{
			model.FieldRecipientID: colScalar,
			"kind":                 colScalar,
			model.FieldCreatedAt:   colScalar,
		},
	},
	model.CollectionFollowRequests: {
		name: "follow_requests",
		columns: map[string]columnKind{
			model.FieldRequesterID: colScalar,
			model.FieldTargetID:    colScalar,
			model.FieldCreatedAt:   colScalar,
		},
	},
	model.CollectionDirectThreads: {
		name: "direct_threads",
		columns: map[string]columnKind{
			model.FieldParticipantIDs: colTextArray,
			model.FieldCreatedAt:      colScalar,
		},
	},
	model.CollectionMessages: {
		name:   "direct_messages",
		parent: "thread_id",
		columns: map[string]columnKind{
			"sender_id":          colScalar,
			"body":               colScalar,
			model.FieldCreatedAt: colScalar,
		},
	},
	model.CollectionGroups: {
		name: "groups",
		columns: map[string]columnKind{
			"name":                 colScalar,
			model.FieldMemberIDs:   colTextArray,
			model.FieldMemberCount: colInteger,
			model.FieldCreatedAt:   colScalar,
		},
	},
}

func lookupTable(collection string) (table, error) {
	t, ok := tables[collection]
	if !ok {
		return table{}, fmt.Errorf("%w: %s", docstore.ErrUnknownCollection, collection)
	}
	return t, nil
}

// conflictKey はupsertのON CONFLICT対象列。サブコレクションは親IDとの組で一意になる。
func (t table) conflictKey() string {
	if t.parent != "" {
		return t.parent + ", id"
	}
	return "id"
}

func (t table) column(field string) (columnKind, error) {
	kind, ok := t.columns[field]
	if !ok {
		return 0, fmt.Errorf("%w: %s.%s", docstore.ErrUnknownField, t.name, field)
	}
	return kind, nil
}
