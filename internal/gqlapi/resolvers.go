package gqlapi

import (
	"context"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/hitoshi/deepthoughts/internal/auth"
	"github.com/hitoshi/deepthoughts/internal/model"
	"github.com/hitoshi/deepthoughts/internal/resolver"
)

// Resolver はQueryとMutationのルートリゾルバー。
// エラーはmodel.APIErrorのまま返し、errors[].extensionsに分類コードを載せる。
type Resolver struct {
	svc *resolver.Service
}

// --- Query ---

func (r *Resolver) Me(ctx context.Context) (*identityResolver, error) {
	identity, err := r.svc.GetSelf(ctx, auth.FromContext(ctx))
	if err != nil {
		return nil, err
	}
	return r.identity(identity), nil
}

func (r *Resolver) Identities(ctx context.Context) ([]*identityResolver, error) {
	identities, err := r.svc.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	return r.identityList(identities), nil
}

func (r *Resolver) Identity(ctx context.Context, args struct{ Username string }) (*identityResolver, error) {
	identity, err := r.svc.GetIdentity(ctx, args.Username)
	if err != nil {
		return nil, err
	}
	return r.identity(identity), nil
}

func (r *Resolver) Posts(ctx context.Context, args struct{ Username *string }) ([]*postResolver, error) {
	var username string
	if args.Username != nil {
		username = *args.Username
	}
	posts, err := r.svc.ListPosts(ctx, username)
	if err != nil {
		return nil, err
	}
	return postList(posts), nil
}

func (r *Resolver) Post(ctx context.Context, args struct{ ID graphql.ID }) (*postResolver, error) {
	post, err := r.svc.GetPost(ctx, string(args.ID))
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, nil
	}
	return &postResolver{p: post}, nil
}

// --- Mutation ---

type registerArgs struct {
	Username string
	Email    string
	Secret   string
}

func (r *Resolver) RegisterIdentity(ctx context.Context, args registerArgs) (*authResolver, error) {
	payload, err := r.svc.RegisterIdentity(ctx, args.Username, args.Email, args.Secret)
	if err != nil {
		return nil, err
	}
	return &authResolver{root: r, payload: payload}, nil
}

type authenticateArgs struct {
	Email  string
	Secret string
}

func (r *Resolver) Authenticate(ctx context.Context, args authenticateArgs) (*authResolver, error) {
	payload, err := r.svc.Authenticate(ctx, args.Email, args.Secret)
	if err != nil {
		return nil, err
	}
	return &authResolver{root: r, payload: payload}, nil
}

func (r *Resolver) AddPost(ctx context.Context, args struct{ Body string }) (*postResolver, error) {
	post, err := r.svc.AddPost(ctx, auth.FromContext(ctx), args.Body)
	if err != nil {
		return nil, err
	}
	return &postResolver{p: post}, nil
}

type addReactionArgs struct {
	PostID graphql.ID
	Body   string
}

func (r *Resolver) AddReaction(ctx context.Context, args addReactionArgs) (*postResolver, error) {
	post, err := r.svc.AddReaction(ctx, auth.FromContext(ctx), string(args.PostID), args.Body)
	if err != nil {
		return nil, err
	}
	return &postResolver{p: post}, nil
}

func (r *Resolver) AddFriend(ctx context.Context, args struct{ FriendID graphql.ID }) (*identityResolver, error) {
	identity, err := r.svc.AddFriend(ctx, auth.FromContext(ctx), string(args.FriendID))
	if err != nil {
		return nil, err
	}
	return r.identity(identity), nil
}

func (r *Resolver) identity(i *model.Identity) *identityResolver {
	if i == nil {
		return nil
	}
	return &identityResolver{root: r, i: i}
}

func (r *Resolver) identityList(identities []*model.Identity) []*identityResolver {
	out := make([]*identityResolver, len(identities))
	for n, i := range identities {
		out[n] = &identityResolver{root: r, i: i}
	}
	return out
}

func postList(posts []*model.Post) []*postResolver {
	out := make([]*postResolver, len(posts))
	for n, p := range posts {
		out[n] = &postResolver{p: p}
	}
	return out
}

// --- 型ごとのリゾルバー ---

type authResolver struct {
	root    *Resolver
	payload *model.AuthPayload
}

func (a *authResolver) Token() string { return a.payload.Token }

func (a *authResolver) Identity() *identityResolver {
	return a.root.identity(a.payload.Identity)
}

type identityResolver struct {
	root *Resolver
	i    *model.Identity
}

func (r *identityResolver) ID() graphql.ID          { return graphql.ID(r.i.ID) }
func (r *identityResolver) Username() string        { return r.i.Username }
func (r *identityResolver) Email() string           { return r.i.Email }
func (r *identityResolver) CreatedAt() graphql.Time { return graphql.Time{Time: r.i.CreatedAt} }
func (r *identityResolver) PostCount() int32        { return int32(r.i.PostCount()) }
func (r *identityResolver) FriendCount() int32      { return int32(r.i.FriendCount()) }

// Posts はフレンドとして参照された場合など未解決のときに遅延して結合する。
func (r *identityResolver) Posts(ctx context.Context) ([]*postResolver, error) {
	if err := r.root.svc.JoinPosts(ctx, r.i); err != nil {
		return nil, err
	}
	return postList(r.i.Posts), nil
}

func (r *identityResolver) Friends(ctx context.Context) ([]*identityResolver, error) {
	if err := r.root.svc.JoinFriends(ctx, r.i); err != nil {
		return nil, err
	}
	return r.root.identityList(r.i.Friends), nil
}

type postResolver struct {
	p *model.Post
}

func (r *postResolver) ID() graphql.ID          { return graphql.ID(r.p.ID) }
func (r *postResolver) Username() string        { return r.p.Username }
func (r *postResolver) Body() string            { return r.p.Body }
func (r *postResolver) CreatedAt() graphql.Time { return graphql.Time{Time: r.p.CreatedAt} }
func (r *postResolver) ReactionCount() int32    { return int32(r.p.ReactionCount()) }

func (r *postResolver) Reactions() []*reactionResolver {
	out := make([]*reactionResolver, len(r.p.Reactions))
	for n := range r.p.Reactions {
		out[n] = &reactionResolver{r: &r.p.Reactions[n]}
	}
	return out
}

type reactionResolver struct {
	r *model.Reaction
}

func (r *reactionResolver) ID() graphql.ID          { return graphql.ID(r.r.ID) }
func (r *reactionResolver) Username() string        { return r.r.Username }
func (r *reactionResolver) Body() string            { return r.r.Body }
func (r *reactionResolver) CreatedAt() graphql.Time { return graphql.Time{Time: r.r.CreatedAt} }
