package model

// AuthContext はリクエスト単位の認可コンテキスト。
// 空の場合は匿名リクエストを表す。永続化されない。
type AuthContext struct {
	IdentityID string
	Username   string
}

// Anonymous は空の認可コンテキストを返す。
func Anonymous() AuthContext {
	return AuthContext{}
}

// IsAnonymous は呼び出し元が未認証かどうかを返す。
func (c AuthContext) IsAnonymous() bool {
	return c.IdentityID == ""
}
