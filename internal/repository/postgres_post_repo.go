package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/deepthoughts/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// FindByID は指定IDの投稿をリアクション付きで取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	return findPost(ctx, r.db, id)
}

func findPost(ctx context.Context, q querier, id string) (*model.Post, error) {
	post := &model.Post{}
	err := q.QueryRowContext(ctx,
		`SELECT id, username, body, created_at FROM posts WHERE id = $1`,
		id,
	).Scan(&post.ID, &post.Username, &post.Body, &post.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post by ID: %w", err)
	}

	if err := attachReactions(ctx, q, []*model.Post{post}); err != nil {
		return nil, err
	}
	return post, nil
}

// List は投稿をcreated_at降順で返す。usernameが空でない場合は投稿者で絞り込む。
func (r *PostgresPostRepo) List(ctx context.Context, username string) ([]*model.Post, error) {
	query := `SELECT id, username, body, created_at FROM posts`
	var args []any
	if username != "" {
		query += ` WHERE username = $1`
		args = append(args, username)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	posts, err := queryPosts(ctx, r.db, query, args...)
	if err != nil {
		return nil, err
	}
	if err := attachReactions(ctx, r.db, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// CreateForOwner は投稿の作成と所有者への紐付けを単一トランザクションで行う。
func (r *PostgresPostRepo) CreateForOwner(ctx context.Context, post *model.Post, ownerID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. 投稿を作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO posts (id, username, body, created_at) VALUES ($1, $2, $3, $4)`,
		post.ID, post.Username, post.Body, post.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}

	// 2. 所有者の投稿参照リストに追加
	_, err = tx.ExecContext(ctx,
		`INSERT INTO identity_posts (identity_id, post_id) VALUES ($1, $2)`,
		ownerID, post.ID,
	)
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to link post to owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AddReaction は投稿が存在する場合のみリアクションを追記する。
// 存在確認と追記は1文で行う。
func (r *PostgresPostRepo) AddReaction(ctx context.Context, postID string, reaction *model.Reaction) (*model.Post, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO reactions (id, post_id, username, body, created_at)
		 SELECT $1::text, $2::text, $3::text, $4::text, $5::timestamptz
		  WHERE EXISTS (SELECT 1 FROM posts WHERE id = $2::text)`,
		reaction.ID, postID, reaction.Username, reaction.Body, reaction.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert reaction: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, nil
	}

	return findPost(ctx, r.db, postID)
}

func queryPosts(ctx context.Context, q querier, query string, args ...any) ([]*model.Post, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	posts := []*model.Post{}
	for rows.Next() {
		p := &model.Post{}
		if err := rows.Scan(&p.ID, &p.Username, &p.Body, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}
	return posts, nil
}

// loadPostsByIDs はIDの集合に該当する投稿をリアクション付きで取得し、IDをキーとするマップで返す。
func loadPostsByIDs(ctx context.Context, q querier, ids []string) (map[string]*model.Post, error) {
	byID := make(map[string]*model.Post, len(ids))
	if len(ids) == 0 {
		return byID, nil
	}

	posts, err := queryPosts(ctx, q,
		`SELECT id, username, body, created_at FROM posts WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}
	if err := attachReactions(ctx, q, posts); err != nil {
		return nil, err
	}
	for _, p := range posts {
		byID[p.ID] = p
	}
	return byID, nil
}

// attachReactions は投稿にリアクションを追記順で設定する。
func attachReactions(ctx context.Context, q querier, posts []*model.Post) error {
	if len(posts) == 0 {
		return nil
	}

	ids := make([]string, len(posts))
	byID := make(map[string]*model.Post, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
		byID[p.ID] = p
		p.Reactions = []model.Reaction{}
	}

	rows, err := q.QueryContext(ctx,
		`SELECT post_id, id, username, body, created_at
		   FROM reactions
		  WHERE post_id = ANY($1)
		  ORDER BY position ASC`,
		pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to list reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var postID string
		var rx model.Reaction
		if err := rows.Scan(&postID, &rx.ID, &rx.Username, &rx.Body, &rx.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan reaction: %w", err)
		}
		if p, ok := byID[postID]; ok {
			p.Reactions = append(p.Reactions, rx)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate reactions: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
