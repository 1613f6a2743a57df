package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/deepthoughts/internal/model"
)

// identitySelect はIdentityと参照リスト（投稿、フレンド）を1行で取得するクエリ。
// secret_hashは選択しない。
const identitySelect = `
	SELECT i.id, i.username, i.email, i.created_at,
	       COALESCE((SELECT array_agg(ip.post_id ORDER BY ip.position)
	                   FROM identity_posts ip WHERE ip.identity_id = i.id), '{}'::text[]),
	       COALESCE((SELECT array_agg(f.friend_id ORDER BY f.position)
	                   FROM identity_friends f WHERE f.identity_id = i.id), '{}'::text[])
	  FROM identities i`

// PostgresIdentityRepo はPostgreSQLを使用したIdentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*model.Identity, error) {
	identity := &model.Identity{}
	err := row.Scan(
		&identity.ID, &identity.Username, &identity.Email, &identity.CreatedAt,
		pq.Array(&identity.PostIDs), pq.Array(&identity.FriendIDs),
	)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// FindByID は指定IDのIdentityを取得する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx, identitySelect+` WHERE i.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by ID: %w", err)
	}
	return identity, nil
}

// FindByUsername はユーザー名の完全一致で検索する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByUsername(ctx context.Context, username string) (*model.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx, identitySelect+` WHERE i.username = $1`, username))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by username: %w", err)
	}
	return identity, nil
}

// FindByEmailWithSecret はメールアドレスで検索し、Identityとシークレットハッシュを返す。
func (r *PostgresIdentityRepo) FindByEmailWithSecret(ctx context.Context, email string) (*model.Identity, string, error) {
	var id, secretHash string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, secret_hash FROM identities WHERE email = $1`,
		email,
	).Scan(&id, &secretHash)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to find identity by email: %w", err)
	}

	identity, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if identity == nil {
		return nil, "", nil
	}
	return identity, secretHash, nil
}

// List は全Identityを作成日時昇順で返す。
func (r *PostgresIdentityRepo) List(ctx context.Context) ([]*model.Identity, error) {
	return r.query(ctx, identitySelect+` ORDER BY i.created_at ASC, i.id ASC`)
}

func (r *PostgresIdentityRepo) query(ctx context.Context, query string, args ...any) ([]*model.Identity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	identities := []*model.Identity{}
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identities: %w", err)
	}
	return identities, nil
}

// Create はIdentityを作成する。一意制約違反の場合は*DuplicateErrorを返す。
func (r *PostgresIdentityRepo) Create(ctx context.Context, identity *model.Identity, secretHash string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (id, username, email, secret_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.Username, identity.Email, secretHash, identity.CreatedAt,
	)
	if dup := asDuplicateError(err); dup != nil {
		return dup
	}
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	return nil
}

// AddFriend はフレンド集合にfriendIDを追加する。
// ON CONFLICT DO NOTHINGにより重複追加は無視される。
func (r *PostgresIdentityRepo) AddFriend(ctx context.Context, identityID, friendID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identity_friends (identity_id, friend_id)
		 VALUES ($1, $2)
		 ON CONFLICT (identity_id, friend_id) DO NOTHING`,
		identityID, friendID,
	)
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to add friend: %w", err)
	}
	return nil
}

// PopulatePosts は各IdentityのPostsをPostIDsの順序で設定する。
func (r *PostgresIdentityRepo) PopulatePosts(ctx context.Context, identities ...*model.Identity) error {
	var ids []string
	for _, identity := range identities {
		ids = append(ids, identity.PostIDs...)
	}

	byID, err := loadPostsByIDs(ctx, r.db, ids)
	if err != nil {
		return err
	}

	for _, identity := range identities {
		identity.Posts = make([]*model.Post, 0, len(identity.PostIDs))
		for _, id := range identity.PostIDs {
			if p, ok := byID[id]; ok {
				identity.Posts = append(identity.Posts, p)
			}
		}
	}
	return nil
}

// PopulateFriends は各IdentityのFriendsをFriendIDsの順序で設定する。
// 存在しないIDは除外する。
func (r *PostgresIdentityRepo) PopulateFriends(ctx context.Context, identities ...*model.Identity) error {
	var ids []string
	for _, identity := range identities {
		ids = append(ids, identity.FriendIDs...)
	}

	byID := map[string]*model.Identity{}
	if len(ids) > 0 {
		friends, err := r.query(ctx, identitySelect+` WHERE i.id = ANY($1)`, pq.Array(ids))
		if err != nil {
			return err
		}
		for _, f := range friends {
			byID[f.ID] = f
		}
	}

	for _, identity := range identities {
		identity.Friends = make([]*model.Identity, 0, len(identity.FriendIDs))
		for _, id := range identity.FriendIDs {
			if f, ok := byID[id]; ok {
				identity.Friends = append(identity.Friends, f)
			}
		}
	}
	return nil
}

// PingContext はデータベースへの疎通を確認する。
func (r *PostgresIdentityRepo) PingContext(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
