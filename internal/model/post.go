package model

import "time"

// Post はユーザーの投稿（thought）を表す。
// Username は作成時点の投稿者名の非正規化コピーで、Identityへのライブ参照ではない。
type Post struct {
	ID        string
	Username  string
	Body      string
	CreatedAt time.Time
	Reactions []Reaction
}

// ReactionCount はリアクション数を返す。
func (p *Post) ReactionCount() int {
	return len(p.Reactions)
}

// Reaction は投稿に埋め込まれるリアクション。追記のみで、親の投稿の外では存在しない。
type Reaction struct {
	ID        string
	Username  string
	Body      string
	CreatedAt time.Time
}
