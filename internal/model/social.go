package model

// ドキュメントストアのコレクション名
const (
	CollectionProfiles       = "profiles"
	CollectionNotifications  = "notifications"
	CollectionFollowRequests = "follow_requests"
	CollectionDirectThreads  = "direct_threads"
	CollectionMessages       = "messages" // direct_threads配下のサブコレクション
	CollectionGroups         = "groups"
)

// ドキュメントのフィールド名
const (
	FieldDisplayName    = "display_name"
	FieldRecipientID    = "recipient_id"
	FieldRequesterID    = "requester_id"
	FieldTargetID       = "target_id"
	FieldParticipantIDs = "participant_ids"
	FieldMemberIDs      = "member_ids"
	FieldMemberCount    = "member_count"
	FieldCreatedAt      = "created_at"
)
