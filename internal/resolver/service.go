// Package resolver は名前付き操作（クエリ・ミューテーション）の認可とストア遷移を提供する。
//
// 各操作は認可コンテキストを明示的に受け取り、ストアに対して単一の論理的な遷移を行い、
// 結果または分類済みのエラー（model.APIError）を返す。リゾルバー自体は状態を持たない。
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/deepthoughts/internal/auth"
	"github.com/hitoshi/deepthoughts/internal/metrics"
	"github.com/hitoshi/deepthoughts/internal/model"
	"github.com/hitoshi/deepthoughts/internal/repository"
	"github.com/hitoshi/deepthoughts/internal/security"
)

// Credentials は資格情報の発行とシークレット照合のインターフェース。
type Credentials interface {
	Sign(identity *model.Identity) (string, error)
	HashSecret(secret string) (string, error)
	CompareSecret(hash, secret string) error
}

// CredentialGuard は資格情報を扱う操作（登録・認証）の実行可否を判定する。
// トランスポート層がリクエスト元ごとのレート制限を実装する。
// CredentialRetryAfterは拒否時に返すRetry-Afterの値となる。
type CredentialGuard interface {
	AllowCredential(ctx context.Context) bool
	CredentialRetryAfter() time.Duration
}

// Service は全操作のリゾルバー。
type Service struct {
	identities repository.IdentityRepository
	posts      repository.PostRepository
	creds      Credentials
	sanitizer  security.TextSanitizer
	recorder   metrics.MetricsCollector
	guard      CredentialGuard

	now   func() time.Time
	newID func() string
}

// NewService はServiceを生成する。recorderがnilの場合はメトリクスを記録しない。
func NewService(
	identities repository.IdentityRepository,
	posts repository.PostRepository,
	creds Credentials,
	sanitizer security.TextSanitizer,
	recorder metrics.MetricsCollector,
) *Service {
	return &Service{
		identities: identities,
		posts:      posts,
		creds:      creds,
		sanitizer:  sanitizer,
		recorder:   recorder,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// SetCredentialGuard は登録・認証に適用するガードを設定する。
func (s *Service) SetCredentialGuard(guard CredentialGuard) {
	s.guard = guard
}

func (s *Service) allowCredential(ctx context.Context) error {
	if s.guard != nil && !s.guard.AllowCredential(ctx) {
		return model.NewRateLimitedError(s.guard.CredentialRetryAfter())
	}
	return nil
}

// observe は操作の結果をメトリクスとログに記録する。
func (s *Service) observe(ctx context.Context, op string, start time.Time, errp *error) {
	err := *errp
	code := model.CodeOf(err)
	if s.recorder != nil {
		s.recorder.RecordOperation(op, code, time.Since(start))
	}
	if err == nil {
		return
	}

	if code == model.ErrCodeInternal {
		attrs := []any{slog.String("operation", op), slog.String("error", err.Error())}
		if cause := errors.Unwrap(err); cause != nil {
			attrs = append(attrs, slog.String("cause", cause.Error()))
		}
		slog.ErrorContext(ctx, "operation failed", attrs...)
		return
	}
	slog.WarnContext(ctx, "operation rejected",
		slog.String("operation", op),
		slog.String("code", code),
	)
}

// internal はストア等の障害を内部エラーに分類する。
func internal(format string, err error) error {
	return model.NewInternalError(fmt.Errorf(format+": %w", err))
}

// join は各IdentityのPostsとFriendsを解決する。
func (s *Service) join(ctx context.Context, identities ...*model.Identity) error {
	if len(identities) == 0 {
		return nil
	}
	if err := s.identities.PopulatePosts(ctx, identities...); err != nil {
		return internal("投稿の結合に失敗しました", err)
	}
	if err := s.identities.PopulateFriends(ctx, identities...); err != nil {
		return internal("フレンドの結合に失敗しました", err)
	}
	return nil
}

// JoinFriends はFriendsが未解決のIdentityについてフレンドを解決する。
// ネストしたフレンドの遅延解決に使用する。
func (s *Service) JoinFriends(ctx context.Context, identity *model.Identity) error {
	if identity.Friends != nil {
		return nil
	}
	if err := s.identities.PopulateFriends(ctx, identity); err != nil {
		return internal("フレンドの結合に失敗しました", err)
	}
	return nil
}

// JoinPosts はPostsが未解決のIdentityについて投稿を解決する。
func (s *Service) JoinPosts(ctx context.Context, identity *model.Identity) error {
	if identity.Posts != nil {
		return nil
	}
	if err := s.identities.PopulatePosts(ctx, identity); err != nil {
		return internal("投稿の結合に失敗しました", err)
	}
	return nil
}

// --- 読み取り操作 ---

// GetSelf は呼び出し元のIdentityを投稿・フレンド付きで返す。
func (s *Service) GetSelf(ctx context.Context, ac model.AuthContext) (_ *model.Identity, err error) {
	defer s.observe(ctx, OpGetSelf, time.Now(), &err)

	if ac.IsAnonymous() {
		return nil, model.NewUnauthenticatedError()
	}

	identity, err := s.identities.FindByID(ctx, ac.IdentityID)
	if err != nil {
		return nil, internal("アカウントの取得に失敗しました", err)
	}
	if identity == nil {
		return nil, model.NewIdentityNotFoundError()
	}
	if err := s.join(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// ListIdentities は全Identityを作成日時昇順で返す。
func (s *Service) ListIdentities(ctx context.Context) (_ []*model.Identity, err error) {
	defer s.observe(ctx, OpListIdentities, time.Now(), &err)

	identities, err := s.identities.List(ctx)
	if err != nil {
		return nil, internal("アカウント一覧の取得に失敗しました", err)
	}
	if err := s.join(ctx, identities...); err != nil {
		return nil, err
	}
	return identities, nil
}

// GetIdentity はユーザー名の完全一致でIdentityを返す。見つからない場合はnilを返す。
func (s *Service) GetIdentity(ctx context.Context, username string) (_ *model.Identity, err error) {
	defer s.observe(ctx, OpGetIdentity, time.Now(), &err)

	identity, err := s.identities.FindByUsername(ctx, username)
	if err != nil {
		return nil, internal("アカウントの取得に失敗しました", err)
	}
	if identity == nil {
		return nil, nil
	}
	if err := s.join(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// ListPosts は投稿を新しい順に返す。usernameが空でない場合は投稿者で絞り込む。
func (s *Service) ListPosts(ctx context.Context, username string) (_ []*model.Post, err error) {
	defer s.observe(ctx, OpListPosts, time.Now(), &err)

	posts, err := s.posts.List(ctx, username)
	if err != nil {
		return nil, internal("投稿一覧の取得に失敗しました", err)
	}
	return posts, nil
}

// GetPost は投稿をリアクション付きで返す。見つからない場合はnilを返す。
func (s *Service) GetPost(ctx context.Context, id string) (_ *model.Post, err error) {
	defer s.observe(ctx, OpGetPost, time.Now(), &err)

	post, err := s.posts.FindByID(ctx, id)
	if err != nil {
		return nil, internal("投稿の取得に失敗しました", err)
	}
	return post, nil
}

// --- 書き込み操作 ---

// RegisterIdentity はIdentityを作成し、資格情報を発行する。
// username、emailの重複はCONFLICTとなり、レコードは作成されない。
func (s *Service) RegisterIdentity(ctx context.Context, username, email, secret string) (_ *model.AuthPayload, err error) {
	defer s.observe(ctx, OpRegisterIdentity, time.Now(), &err)

	if err := s.allowCredential(ctx); err != nil {
		return nil, err
	}

	hash, err := s.creds.HashSecret(secret)
	if errors.Is(err, auth.ErrSecretTooLong) {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("secret は%dバイト以内で指定してください", auth.MaxSecretBytes))
	}
	if err != nil {
		return nil, internal("シークレットのハッシュ化に失敗しました", err)
	}

	identity := &model.Identity{
		ID:        s.newID(),
		Username:  username,
		Email:     email,
		PostIDs:   []string{},
		FriendIDs: []string{},
		CreatedAt: s.timestamp(),
	}

	if err := s.identities.Create(ctx, identity, hash); err != nil {
		var dup *repository.DuplicateError
		if errors.As(err, &dup) {
			return nil, model.NewConflictError(dup.Field)
		}
		return nil, internal("アカウントの作成に失敗しました", err)
	}

	identity.Posts = []*model.Post{}
	identity.Friends = []*model.Identity{}
	return s.issue(identity)
}

// Authenticate はメールアドレスとシークレットを照合し、資格情報を発行する。
// メールアドレス未登録とシークレット不一致は同一のエラーを返す。
func (s *Service) Authenticate(ctx context.Context, email, secret string) (_ *model.AuthPayload, err error) {
	defer s.observe(ctx, OpAuthenticate, time.Now(), &err)

	if err := s.allowCredential(ctx); err != nil {
		return nil, err
	}

	identity, hash, err := s.identities.FindByEmailWithSecret(ctx, email)
	if err != nil {
		return nil, internal("アカウントの取得に失敗しました", err)
	}
	if identity == nil {
		// 未登録の場合もハッシュ照合を行い、応答時間から登録有無を推測させない
		_ = s.creds.CompareSecret("", secret)
		return nil, model.NewInvalidCredentialsError()
	}
	if err := s.creds.CompareSecret(hash, secret); err != nil {
		if errors.Is(err, auth.ErrSecretMismatch) {
			return nil, model.NewInvalidCredentialsError()
		}
		return nil, internal("シークレットの照合に失敗しました", err)
	}

	if err := s.join(ctx, identity); err != nil {
		return nil, err
	}
	return s.issue(identity)
}

// validateBody は本文に表示可能な文字が含まれることを確認する。本文自体は受け取ったまま保存する。
func (s *Service) validateBody(body string) error {
	if !s.sanitizer.HasVisibleText(body) {
		return model.NewInvalidRequestError("body に表示可能な文字がありません")
	}
	return nil
}

// timestamp はストアの精度（マイクロ秒）に丸めた現在時刻を返す。
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) issue(identity *model.Identity) (*model.AuthPayload, error) {
	token, err := s.creds.Sign(identity)
	if err != nil {
		return nil, internal("トークンの発行に失敗しました", err)
	}
	return &model.AuthPayload{Token: token, Identity: identity}, nil
}

// AddPost は呼び出し元を投稿者とする投稿を作成する。
// 投稿の作成と所有者への紐付けはストアの単一トランザクションで行う。
func (s *Service) AddPost(ctx context.Context, ac model.AuthContext, body string) (_ *model.Post, err error) {
	defer s.observe(ctx, OpAddPost, time.Now(), &err)

	if ac.IsAnonymous() {
		return nil, model.NewUnauthenticatedError()
	}
	if err := s.validateBody(body); err != nil {
		return nil, err
	}

	post := &model.Post{
		ID:        s.newID(),
		Username:  ac.Username,
		Body:      body,
		CreatedAt: s.timestamp(),
		Reactions: []model.Reaction{},
	}

	if err := s.posts.CreateForOwner(ctx, post, ac.IdentityID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewIdentityNotFoundError()
		}
		return nil, internal("投稿の作成に失敗しました", err)
	}
	return post, nil
}

// AddReaction は投稿にリアクションを追記し、全リアクションを含む投稿を返す。
func (s *Service) AddReaction(ctx context.Context, ac model.AuthContext, postID, body string) (_ *model.Post, err error) {
	defer s.observe(ctx, OpAddReaction, time.Now(), &err)

	if ac.IsAnonymous() {
		return nil, model.NewUnauthenticatedError()
	}
	if err := s.validateBody(body); err != nil {
		return nil, err
	}

	reaction := &model.Reaction{
		ID:        s.newID(),
		Username:  ac.Username,
		Body:      body,
		CreatedAt: s.timestamp(),
	}

	post, err := s.posts.AddReaction(ctx, postID, reaction)
	if err != nil {
		return nil, internal("リアクションの追加に失敗しました", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(postID)
	}
	return post, nil
}

// AddFriend は呼び出し元のフレンド集合にfriendIDを追加し、フレンド付きのIdentityを返す。
// friendIDの存在確認は行わない。存在しないIDは結合時に除外される。
func (s *Service) AddFriend(ctx context.Context, ac model.AuthContext, friendID string) (_ *model.Identity, err error) {
	defer s.observe(ctx, OpAddFriend, time.Now(), &err)

	if ac.IsAnonymous() {
		return nil, model.NewUnauthenticatedError()
	}

	if err := s.identities.AddFriend(ctx, ac.IdentityID, friendID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, model.NewIdentityNotFoundError()
		}
		return nil, internal("フレンドの追加に失敗しました", err)
	}

	identity, err := s.identities.FindByID(ctx, ac.IdentityID)
	if err != nil {
		return nil, internal("アカウントの取得に失敗しました", err)
	}
	if identity == nil {
		return nil, model.NewIdentityNotFoundError()
	}
	if err := s.join(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}
