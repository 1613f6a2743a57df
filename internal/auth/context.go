package auth

import (
	"context"

	"github.com/hitoshi/deepthoughts/internal/model"
)

type contextKey struct{}

// WithAuthContext はコンテキストに認可コンテキストを設定する。
func WithAuthContext(ctx context.Context, ac model.AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

// FromContext はコンテキストから認可コンテキストを取得する。
// 未設定の場合は匿名コンテキストを返す。
func FromContext(ctx context.Context) model.AuthContext {
	ac, ok := ctx.Value(contextKey{}).(model.AuthContext)
	if !ok {
		return model.Anonymous()
	}
	return ac
}
