package user

import (
	"context"
	"fmt"

	"github.com/hitoshi/talkbox/internal/docstore"
	"github.com/hitoshi/talkbox/internal/model"
)

// planFunc はユーザーを参照するドキュメントを探し、必要な書き込み操作を返す。
// 読み取りだけを行い、書き込みはしない。
type planFunc func(ctx context.Context, r docstore.Reader, userID string) ([]docstore.Mutation, error)

type planStep struct {
	stage Stage
	plan  planFunc
}

// cascadeSteps は削除計画の手順。この順序でMutationを積む。
var cascadeSteps = []planStep{
	{StageProfile, planProfile},
	{StageNotifications, planNotifications},
	{StageFollowRequests, planFollowRequests},
	{StageDirectThreads, planDirectThreads},
	{StageGroups, planGroups},
}

// Plan はユーザーのデータ削除に必要な書き込み操作の一覧。
type Plan struct {
	UserID    string
	Mutations []docstore.Mutation
}

// Counts はコレクションごとの操作数を返す。
func (p *Plan) Counts() map[string]int {
	counts := make(map[string]int)
	for _, m := range p.Mutations {
		counts[m.Ref.Collection]++
	}
	return counts
}

// planError は計画作成中に失敗した手順を保持する。
type planError struct {
	stage Stage
	err   error
}

func (e *planError) Error() string {
	return fmt.Sprintf("plan %s: %v", e.stage, e.err)
}

func (e *planError) Unwrap() error {
	return e.err
}

// BuildPlan は全手順を順に実行して削除計画を作る。
// 既に削除済みのデータは計画に含まれないため、2回目の実行では空の計画になる。
func BuildPlan(ctx context.Context, r docstore.Reader, userID string) (*Plan, error) {
	plan := &Plan{UserID: userID}
	for _, step := range cascadeSteps {
		muts, err := step.plan(ctx, r, userID)
		if err != nil {
			return nil, &planError{stage: step.stage, err: err}
		}
		plan.Mutations = append(plan.Mutations, muts...)
	}
	return plan, nil
}

func planProfile(ctx context.Context, r docstore.Reader, userID string) ([]docstore.Mutation, error) {
	ref := docstore.Doc(model.CollectionProfiles, userID)
	rec, err := r.Get(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	return []docstore.Mutation{docstore.DeleteOf(ref)}, nil
}

func planNotifications(ctx context.Context, r docstore.Reader, userID string) ([]docstore.Mutation, error) {
	recs, err := r.Query(ctx, docstore.Where(model.CollectionNotifications,
		docstore.Equal(model.FieldRecipientID, userID)))
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	return deleteAll(recs), nil
}

// planFollowRequests は申請者側と対象者側の2回検索する。
func planFollowRequests(ctx context.Context, r docstore.Reader, userID string) ([]docstore.Mutation, error) {
	var muts []docstore.Mutation
	seen := make(map[string]bool)
	for _, field := range []string{model.FieldRequesterID, model.FieldTargetID} {
		recs, err := r.Query(ctx, docstore.Where(model.CollectionFollowRequests,
			docstore.Equal(field, userID)))
		if err != nil {
			return nil, fmt.Errorf("query follow requests by %s: %w", field, err)
		}
		for _, rec := range recs {
			if seen[rec.Ref.Path()] {
				continue
			}
			seen[rec.Ref.Path()] = true
			muts = append(muts, docstore.DeleteOf(rec.Ref))
		}
	}
	return muts, nil
}

// planDirectThreads はスレッドごとに全メッセージの削除を積んでから、スレッド自体の削除を積む。
func planDirectThreads(ctx context.Context, r docstore.Reader, userID string) ([]docstore.Mutation, error) {
	threads, err := r.Query(ctx, docstore.Where(model.CollectionDirectThreads,
		docstore.ArrayContains(model.FieldParticipantIDs, userID)))
	if err != nil {
		return nil, fmt.Errorf("query direct threads: %w", err)
	}

	var muts []docstore.Mutation
	for _, thread := range threads {
		messages, err := r.Query(ctx, docstore.Under(thread.Ref, model.CollectionMessages))
		if err != nil {
			return nil, fmt.Errorf("query messages of %s: %w", thread.Ref, err)
		}
		muts = append(muts, deleteAll(messages)...)
		muts = append(muts, docstore.DeleteOf(thread.Ref))
	}
	return muts, nil
}

// planGroups はグループを削除せず、メンバーから外して人数を1減らす。
// 更新はユーザーがまだメンバーである場合だけ適用されるため、再実行しても二重に減らない。
func planGroups(ctx context.Context, r docstore.Reader, userID string) ([]docstore.Mutation, error) {
	membership := docstore.ArrayContains(model.FieldMemberIDs, userID)
	groups, err := r.Query(ctx, docstore.Where(model.CollectionGroups, membership))
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}

	muts := make([]docstore.Mutation, 0, len(groups))
	for _, g := range groups {
		muts = append(muts, docstore.UpdateOf(g.Ref,
			[]docstore.Filter{membership},
			docstore.ArrayRemove(model.FieldMemberIDs, userID),
			docstore.Increment(model.FieldMemberCount, -1),
		))
	}
	return muts, nil
}

func deleteAll(recs []docstore.Record) []docstore.Mutation {
	muts := make([]docstore.Mutation, 0, len(recs))
	for _, rec := range recs {
		muts = append(muts, docstore.DeleteOf(rec.Ref))
	}
	return muts
}
