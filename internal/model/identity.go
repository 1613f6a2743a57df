package model

import "time"

// Identity はサービス利用者（アカウント）を表す。
// シークレットハッシュは保持しない。ハッシュはリポジトリ層と認証層の間でのみ受け渡される。
type Identity struct {
	ID       string
	Username string
	Email    string

	// PostIDs は所有する投稿の参照。作成順に並ぶ。
	PostIDs []string
	// FriendIDs はフレンドの参照。追加順に並び、重複を含まない。
	FriendIDs []string

	// Posts と Friends は結合（Populate）後にのみ設定される。
	Posts   []*Post
	Friends []*Identity

	CreatedAt time.Time
}

// PostCount は所有する投稿数を返す。
func (i *Identity) PostCount() int {
	return len(i.PostIDs)
}

// FriendCount はフレンド数を返す。
func (i *Identity) FriendCount() int {
	return len(i.FriendIDs)
}

// HasFriend は指定IDがフレンド集合に含まれるかを返す。
func (i *Identity) HasFriend(id string) bool {
	for _, f := range i.FriendIDs {
		if f == id {
			return true
		}
	}
	return false
}

// AuthPayload は資格情報を確立する操作（登録・認証）の戻り値。
type AuthPayload struct {
	Token    string
	Identity *Identity
}
