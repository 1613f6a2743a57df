// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hitoshi/deepthoughts/internal/model"
)

var (
	// ErrDuplicate は一意制約（username, email）違反を表す。
	// DuplicateErrorでラップされて返る。
	ErrDuplicate = errors.New("duplicate key")

	// ErrNotFound は更新対象のレコードが存在しないことを表す。
	ErrNotFound = errors.New("record not found")
)

// DuplicateError は重複したフィールド名を保持する一意制約違反エラー。
type DuplicateError struct {
	Field string // "username", "email"。判別できない場合は空文字列
}

// Error はerrorインターフェースを実装する。
func (e *DuplicateError) Error() string {
	if e.Field == "" {
		return ErrDuplicate.Error()
	}
	return ErrDuplicate.Error() + ": " + e.Field
}

// Unwrap はErrDuplicateを返し、errors.Isでの判定を可能にする。
func (e *DuplicateError) Unwrap() error {
	return ErrDuplicate
}

// IdentityRepository はIdentityコレクションの永続化インターフェース。
// 返却されるIdentityにシークレットハッシュは含まれない。
type IdentityRepository interface {
	// FindByID は指定IDのIdentityを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Identity, error)

	// FindByUsername はユーザー名の完全一致（大文字小文字を区別）で検索する。
	// 見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.Identity, error)

	// FindByEmailWithSecret はメールアドレスで検索し、Identityとシークレットハッシュを返す。
	// 認証処理専用。見つからない場合はnilと空文字列を返す。
	FindByEmailWithSecret(ctx context.Context, email string) (*model.Identity, string, error)

	// List は全Identityを作成日時昇順（同時刻はID昇順）で返す。ページネーションは行わない。
	List(ctx context.Context) ([]*model.Identity, error)

	// Create はIdentityを作成する。
	// username、emailが既存と重複する場合は*DuplicateErrorを返し、レコードは作成しない。
	Create(ctx context.Context, identity *model.Identity, secretHash string) error

	// AddFriend はフレンド集合にfriendIDを追加する（集合和のセマンティクス）。
	// 既に含まれる場合は何もしない。friendIDの存在確認は行わない。
	// identityIDが存在しない場合はErrNotFoundを返す。
	AddFriend(ctx context.Context, identityID, friendID string) error

	// PopulatePosts は各IdentityのPostIDsを解決し、Postsに投稿（リアクション付き）を設定する。
	// 並び順はPostIDsの順序に従う。
	PopulatePosts(ctx context.Context, identities ...*model.Identity) error

	// PopulateFriends は各IdentityのFriendIDsを解決し、Friendsを設定する。
	// 存在しないIDは結果から除外する。
	PopulateFriends(ctx context.Context, identities ...*model.Identity) error
}

// PostRepository はPostコレクションの永続化インターフェース。
type PostRepository interface {
	// FindByID は指定IDの投稿をリアクション付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Post, error)

	// List は投稿をcreated_at降順（同時刻はID降順）で返す。
	// usernameが空文字列でない場合はその投稿者に絞り込む。ページネーションは行わない。
	List(ctx context.Context, username string) ([]*model.Post, error)

	// CreateForOwner は投稿を作成し、所有者の投稿参照リストに追加する。
	// 2つのステップは単一トランザクションで実行され、読み手が所有者に
	// 紐付かない投稿を観測することはない。
	// 所有者が存在しない場合はロールバックしてErrNotFoundを返す。
	CreateForOwner(ctx context.Context, post *model.Post, ownerID string) error

	// AddReaction は投稿にリアクションを追記し、更新後の投稿を返す。
	// 投稿が存在しない場合はnilを返し、何も作成しない。
	AddReaction(ctx context.Context, postID string, reaction *model.Reaction) (*model.Post, error)
}

// HealthChecker はストアの疎通確認インターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// querier は*sql.DBと*sql.Txの共通部分。
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
