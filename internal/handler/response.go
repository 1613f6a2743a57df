package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/deepthoughts/internal/model"
)

// dataResponse は操作エンドポイントの成功レスポンス。
type dataResponse struct {
	Data interface{} `json:"data"`
}

// identitySummary は結合なしのIdentity。フレンドの要素として使う。
type identitySummary struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"createdAt"`
	PostIDs     []string  `json:"postIds"`
	FriendIDs   []string  `json:"friendIds"`
	PostCount   int       `json:"postCount"`
	FriendCount int       `json:"friendCount"`
}

// identityResponse は投稿とフレンドを結合したIdentity。結合結果が空でも[]を出力する。
type identityResponse struct {
	identitySummary
	Posts   []postResponse    `json:"posts"`
	Friends []identitySummary `json:"friends"`
}

type reactionResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

type postResponse struct {
	ID            string             `json:"id"`
	Username      string             `json:"username"`
	Body          string             `json:"body"`
	CreatedAt     time.Time          `json:"createdAt"`
	ReactionCount int                `json:"reactionCount"`
	Reactions     []reactionResponse `json:"reactions"`
}

type authResponse struct {
	Token    string            `json:"token"`
	Identity *identityResponse `json:"identity"`
}

// toIdentityResponse はmodel.IdentityからAPIレスポンスに変換する。
// 秘密情報はモデルに含まれないため出力されない。
func toIdentityResponse(identity *model.Identity) *identityResponse {
	if identity == nil {
		return nil
	}
	resp := &identityResponse{
		identitySummary: toIdentitySummary(identity),
		Posts:           make([]postResponse, 0, len(identity.Posts)),
		Friends:         make([]identitySummary, 0, len(identity.Friends)),
	}
	for _, p := range identity.Posts {
		resp.Posts = append(resp.Posts, *toPostResponse(p))
	}
	for _, f := range identity.Friends {
		resp.Friends = append(resp.Friends, toIdentitySummary(f))
	}
	return resp
}

func toIdentitySummary(identity *model.Identity) identitySummary {
	return identitySummary{
		ID:          identity.ID,
		Username:    identity.Username,
		Email:       identity.Email,
		CreatedAt:   identity.CreatedAt,
		PostIDs:     nonNil(identity.PostIDs),
		FriendIDs:   nonNil(identity.FriendIDs),
		PostCount:   identity.PostCount(),
		FriendCount: identity.FriendCount(),
	}
}

func toPostResponse(post *model.Post) *postResponse {
	if post == nil {
		return nil
	}
	resp := &postResponse{
		ID:            post.ID,
		Username:      post.Username,
		Body:          post.Body,
		CreatedAt:     post.CreatedAt,
		ReactionCount: post.ReactionCount(),
		Reactions:     make([]reactionResponse, 0, len(post.Reactions)),
	}
	for _, r := range post.Reactions {
		resp.Reactions = append(resp.Reactions, reactionResponse{
			ID:        r.ID,
			Username:  r.Username,
			Body:      r.Body,
			CreatedAt: r.CreatedAt,
		})
	}
	return resp
}

// toResponse は操作結果をレスポンス用の型に変換する。
// 見つからなかった単一レコード（型付きnil）はnullになる。
func toResponse(result interface{}) interface{} {
	switch v := result.(type) {
	case *model.Identity:
		if v == nil {
			return nil
		}
		return toIdentityResponse(v)
	case []*model.Identity:
		out := make([]*identityResponse, 0, len(v))
		for _, i := range v {
			out = append(out, toIdentityResponse(i))
		}
		return out
	case *model.Post:
		if v == nil {
			return nil
		}
		return toPostResponse(v)
	case []*model.Post:
		out := make([]*postResponse, 0, len(v))
		for _, p := range v {
			out = append(out, toPostResponse(p))
		}
		return out
	case *model.AuthPayload:
		if v == nil {
			return nil
		}
		return &authResponse{Token: v.Token, Identity: toIdentityResponse(v.Identity)}
	default:
		return v
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}
