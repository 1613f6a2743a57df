// Package gqlapi はGraphQLトランスポートを提供する。
// スキーマの各フィールドをresolver.Serviceの操作に対応付け、
// 認可コンテキストはリクエストコンテキストから取り出して明示的に渡す。
package gqlapi

import (
	"net/http"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/hitoshi/deepthoughts/internal/resolver"
)

// Schema はGraphQLスキーマ定義。
const Schema = `
	schema {
		query: Query
		mutation: Mutation
	}

	scalar Time

	type Identity {
		id: ID!
		username: String!
		email: String!
		createdAt: Time!
		postCount: Int!
		friendCount: Int!
		posts: [Post!]!
		friends: [Identity!]!
	}

	type Reaction {
		id: ID!
		username: String!
		body: String!
		createdAt: Time!
	}

	type Post {
		id: ID!
		username: String!
		body: String!
		createdAt: Time!
		reactionCount: Int!
		reactions: [Reaction!]!
	}

	type Auth {
		token: String!
		identity: Identity!
	}

	type Query {
		me: Identity
		identities: [Identity!]!
		identity(username: String!): Identity
		posts(username: String): [Post!]!
		post(id: ID!): Post
	}

	type Mutation {
		registerIdentity(username: String!, email: String!, secret: String!): Auth!
		authenticate(email: String!, secret: String!): Auth!
		addPost(body: String!): Post!
		addReaction(postId: ID!, body: String!): Post!
		addFriend(friendId: ID!): Identity!
	}
`

// maxQueryDepth はネストしたフレンド参照による過大なクエリを防ぐ深さ上限。
const maxQueryDepth = 8

// NewSchema はServiceを解決先とするGraphQLスキーマを生成する。
func NewSchema(svc *resolver.Service) *graphql.Schema {
	return graphql.MustParseSchema(Schema, &Resolver{svc: svc},
		graphql.MaxDepth(maxQueryDepth),
	)
}

// NewHandler はPOST /graphql用のHTTPハンドラーを返す。
func NewHandler(svc *resolver.Service) http.Handler {
	return &relay.Handler{Schema: NewSchema(svc)}
}
