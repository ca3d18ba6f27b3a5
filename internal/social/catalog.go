package social

import (
	"context"

	"OpenAgent-Sim/internal/action"
)

// Action names understood by every Adapter.
const (
	ActionPost       = "post"
	ActionReply      = "reply"
	ActionLike       = "like"
	ActionBoost      = "boost"
	ActionDeletePost = "delete_post"
	ActionFollow     = "follow"
	ActionUnfollow   = "unfollow"
)

// Visibility literals accepted by post.
var Visibilities = []string{"public", "unlisted", "private"}

// Descriptors returns the social action descriptors in catalog order.
func Descriptors() []action.Descriptor {
	return []action.Descriptor{
		action.Define(ActionPost, "Publish a new status on the agent's own timeline.").
			Param("status", action.String(), "the text of the new post").
			Optional("media", action.ListOf(action.String()), "comma-separated media urls to attach").
			Optional("visibility", action.Enum(Visibilities...), "who can see the post").
			Descriptor(),
		action.Define(ActionReply, "Reply to an existing post with a new status.").
			Reference("target_id", "identifier of the post being replied to", true).
			Param("status", action.String(), "the text of the reply").
			Descriptor(),
		action.Define(ActionLike, "Like (favourite) an existing post.").
			Reference("target_id", "identifier of the post to like", true).
			Descriptor(),
		action.Define(ActionBoost, "Boost (re-share) an existing post to the agent's followers.").
			Reference("target_id", "identifier of the post to boost", true).
			Descriptor(),
		action.Define(ActionDeletePost, "Delete one of the agent's own posts.").
			Reference("target_id", "identifier of the post to delete", true).
			Descriptor(),
		action.Define(ActionFollow, "Start following another account.").
			Param("handle", action.String(), "handle of the account to follow, without @").
			Descriptor(),
		action.Define(ActionUnfollow, "Stop following an account.").
			Param("handle", action.String(), "handle of the account to unfollow, without @").
			Descriptor(),
	}
}

// NewCatalog builds the action catalog with every action bound to the adapter.
func NewCatalog(adapter Adapter) (*action.Catalog, error) {
	catalog := action.NewCatalog()
	for _, desc := range Descriptors() {
		if err := catalog.Register(desc, bind(adapter, desc.Name)); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

func bind(adapter Adapter, name string) action.Handler {
	return func(ctx context.Context, inv action.Invocation, args action.Arguments) (any, error) {
		account := inv.Account
		if account == "" {
			account = inv.Agent
		}
		return adapter.PerformAction(ctx, account, name, args.Values())
	}
}
