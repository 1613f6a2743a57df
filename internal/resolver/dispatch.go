package resolver

import (
	"context"
	"sort"

	"github.com/hitoshi/deepthoughts/internal/model"
)

// 操作名
const (
	OpGetSelf          = "getSelf"
	OpListIdentities   = "listIdentities"
	OpGetIdentity      = "getIdentity"
	OpListPosts        = "listPosts"
	OpGetPost          = "getPost"
	OpRegisterIdentity = "registerIdentity"
	OpAuthenticate     = "authenticate"
	OpAddPost          = "addPost"
	OpAddReaction      = "addReaction"
	OpAddFriend        = "addFriend"
)

// Kind は操作の種別。
type Kind int

const (
	// Query は読み取り操作。
	Query Kind = iota
	// Mutation は書き込み操作。
	Mutation
)

func (k Kind) String() string {
	if k == Mutation {
		return "mutation"
	}
	return "query"
}

// Arguments は操作の引数。操作ごとに使用するフィールドが異なる。
type Arguments struct {
	ID       string  `json:"id"`
	Username *string `json:"username"`
	Email    string  `json:"email"`
	Secret   string  `json:"secret"`
	Body     string  `json:"body"`
	PostID   string  `json:"postId"`
	FriendID string  `json:"friendId"`
}

func (a Arguments) username() string {
	if a.Username == nil {
		return ""
	}
	return *a.Username
}

// Operation はディスパッチテーブルの1エントリ。
type Operation struct {
	Name string
	Kind Kind
	// Credential は資格情報を扱う操作（登録・認証）かどうか。
	// トランスポート層で追加のレート制限を適用する。
	Credential bool

	required []string
	call     func(ctx context.Context, s *Service, args Arguments, ac model.AuthContext) (any, error)
}

var operations = map[string]Operation{
	OpGetSelf: {
		Name: OpGetSelf, Kind: Query,
		call: func(ctx context.Context, s *Service, _ Arguments, ac model.AuthContext) (any, error) {
			return s.GetSelf(ctx, ac)
		},
	},
	OpListIdentities: {
		Name: OpListIdentities, Kind: Query,
		call: func(ctx context.Context, s *Service, _ Arguments, _ model.AuthContext) (any, error) {
			return s.ListIdentities(ctx)
		},
	},
	OpGetIdentity: {
		Name: OpGetIdentity, Kind: Query, required: []string{"username"},
		call: func(ctx context.Context, s *Service, args Arguments, _ model.AuthContext) (any, error) {
			return s.GetIdentity(ctx, args.username())
		},
	},
	OpListPosts: {
		Name: OpListPosts, Kind: Query,
		call: func(ctx context.Context, s *Service, args Arguments, _ model.AuthContext) (any, error) {
			return s.ListPosts(ctx, args.username())
		},
	},
	OpGetPost: {
		Name: OpGetPost, Kind: Query, required: []string{"id"},
		call: func(ctx context.Context, s *Service, args Arguments, _ model.AuthContext) (any, error) {
			return s.GetPost(ctx, args.ID)
		},
	},
	OpRegisterIdentity: {
		Name: OpRegisterIdentity, Kind: Mutation, Credential: true,
		required: []string{"username", "email", "secret"},
		call: func(ctx context.Context, s *Service, args Arguments, _ model.AuthContext) (any, error) {
			return s.RegisterIdentity(ctx, args.username(), args.Email, args.Secret)
		},
	},
	OpAuthenticate: {
		Name: OpAuthenticate, Kind: Mutation, Credential: true,
		required: []string{"email", "secret"},
		call: func(ctx context.Context, s *Service, args Arguments, _ model.AuthContext) (any, error) {
			return s.Authenticate(ctx, args.Email, args.Secret)
		},
	},
	OpAddPost: {
		Name: OpAddPost, Kind: Mutation, required: []string{"body"},
		call: func(ctx context.Context, s *Service, args Arguments, ac model.AuthContext) (any, error) {
			return s.AddPost(ctx, ac, args.Body)
		},
	},
	OpAddReaction: {
		Name: OpAddReaction, Kind: Mutation, required: []string{"postId", "body"},
		call: func(ctx context.Context, s *Service, args Arguments, ac model.AuthContext) (any, error) {
			return s.AddReaction(ctx, ac, args.PostID, args.Body)
		},
	},
	OpAddFriend: {
		Name: OpAddFriend, Kind: Mutation, required: []string{"friendId"},
		call: func(ctx context.Context, s *Service, args Arguments, ac model.AuthContext) (any, error) {
			return s.AddFriend(ctx, ac, args.FriendID)
		},
	},
}

// Lookup は操作名に対応する操作を返す。
func Lookup(name string) (Operation, bool) {
	op, ok := operations[name]
	return op, ok
}

// Operations は全操作を名前順で返す。
func Operations() []Operation {
	ops := make([]Operation, 0, len(operations))
	for _, op := range operations {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// missing は必須引数のうち未指定のものを返す。
func (op Operation) missing(args Arguments) string {
	for _, field := range op.required {
		var present bool
		switch field {
		case "id":
			present = args.ID != ""
		case "username":
			present = args.Username != nil
		case "email":
			present = args.Email != ""
		case "secret":
			present = args.Secret != ""
		case "body":
			present = args.Body != ""
		case "postId":
			present = args.PostID != ""
		case "friendId":
			present = args.FriendID != ""
		}
		if !present {
			return field
		}
	}
	return ""
}

// Dispatch は操作名で操作を呼び出す。
// 未定義の操作名はUNKNOWN_OPERATION、必須引数の欠落はINVALID_REQUESTを返す。
func (s *Service) Dispatch(ctx context.Context, name string, args Arguments, ac model.AuthContext) (any, error) {
	op, ok := Lookup(name)
	if !ok {
		return nil, model.NewUnknownOperationError(name)
	}
	if field := op.missing(args); field != "" {
		return nil, model.NewInvalidRequestError(field + " は必須です")
	}
	return op.call(ctx, s, args, ac)
}
