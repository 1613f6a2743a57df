package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/deepthoughts/internal/auth"
	"github.com/hitoshi/deepthoughts/internal/model"
	"github.com/hitoshi/deepthoughts/internal/repository"
	"github.com/hitoshi/deepthoughts/internal/security"
)

// --- モック定義 ---

type mockRecorder struct {
	mu    sync.Mutex
	codes map[string][]string
}

func (m *mockRecorder) RecordOperation(operation, code string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = map[string][]string{}
	}
	m.codes[operation] = append(m.codes[operation], code)
}

func (m *mockRecorder) RecordHTTPStatus(int)                    {}
func (m *mockRecorder) RecordHTTPLatency(string, time.Duration) {}

type mockCredentials struct {
	signFn    func(identity *model.Identity) (string, error)
	compareFn func(hash, secret string) error
	compared  []string
}

func (m *mockCredentials) Sign(identity *model.Identity) (string, error) {
	if m.signFn != nil {
		return m.signFn(identity)
	}
	return "token-" + identity.ID, nil
}

func (m *mockCredentials) HashSecret(secret string) (string, error) {
	return "hashed:" + secret, nil
}

func (m *mockCredentials) CompareSecret(hash, secret string) error {
	m.compared = append(m.compared, hash)
	if m.compareFn != nil {
		return m.compareFn(hash, secret)
	}
	if hash != "hashed:"+secret {
		return auth.ErrSecretMismatch
	}
	return nil
}

// failingPostRepo は全操作でエラーを返すPostRepository。
type failingPostRepo struct {
	err error
}

func (r failingPostRepo) FindByID(context.Context, string) (*model.Post, error) { return nil, r.err }
func (r failingPostRepo) List(context.Context, string) ([]*model.Post, error)   { return nil, r.err }
func (r failingPostRepo) CreateForOwner(context.Context, *model.Post, string) error {
	return r.err
}
func (r failingPostRepo) AddReaction(context.Context, string, *model.Reaction) (*model.Post, error) {
	return nil, r.err
}

// --- テストヘルパー ---

type fixture struct {
	svc      *Service
	store    *repository.MemoryStore
	creds    *mockCredentials
	recorder *mockRecorder
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    repository.NewMemoryStore(),
		creds:    &mockCredentials{},
		recorder: &mockRecorder{},
		clock:    time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.store.Identities(), f.store.Posts(), f.creds, security.NewTextSanitizer(), f.recorder)

	var seq int
	f.svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%03d", seq)
	}
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	return f
}

func (f *fixture) register(t *testing.T, username string) model.AuthContext {
	t.Helper()
	payload, err := f.svc.RegisterIdentity(context.Background(), username, username+"@example.com", "secret-"+username)
	if err != nil {
		t.Fatalf("RegisterIdentity(%s): %v", username, err)
	}
	return model.AuthContext{IdentityID: payload.Identity.ID, Username: payload.Identity.Username}
}

func assertCode(t *testing.T, err error, want string) {
	t.Helper()
	if got := model.CodeOf(err); got != want {
		t.Fatalf("error code = %q (%v), want %q", got, err, want)
	}
}

// --- 登録・認証 ---

func TestRegisterIdentity_ReturnsTokenAndIdentity(t *testing.T) {
	f := newFixture(t)

	payload, err := f.svc.RegisterIdentity(context.Background(), "alice", "alice@example.com", "pw")
	if err != nil {
		t.Fatalf("RegisterIdentity: %v", err)
	}

	if payload.Token != "token-id-001" {
		t.Errorf("Token = %q, want token-id-001", payload.Token)
	}
	want := &model.Identity{
		ID:        "id-001",
		Username:  "alice",
		Email:     "alice@example.com",
		PostIDs:   []string{},
		FriendIDs: []string{},
		Posts:     []*model.Post{},
		Friends:   []*model.Identity{},
		CreatedAt: time.Date(2024, 5, 1, 9, 0, 1, 0, time.UTC),
	}
	if diff := cmp.Diff(want, payload.Identity); diff != "" {
		t.Errorf("Identity mismatch (-want +got):\n%s", diff)
	}

	_, hash, _ := f.store.Identities().FindByEmailWithSecret(context.Background(), "alice@example.com")
	if hash != "hashed:pw" {
		t.Errorf("stored hash = %q, want hashed secret", hash)
	}
}

func TestRegisterIdentity_DuplicateIsConflictAndCreatesNothing(t *testing.T) {
	tests := []struct {
		name      string
		username  string
		email     string
		wantField string
	}{
		{"重複したusername", "alice", "other@example.com", "このユーザー名は既に使用されています。"},
		{"重複したemail", "bob", "alice@example.com", "このメールアドレスは既に使用されています。"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.register(t, "alice")

			_, err := f.svc.RegisterIdentity(context.Background(), tt.username, tt.email, "pw")
			assertCode(t, err, model.ErrCodeConflict)

			var apiErr *model.APIError
			if errors.As(err, &apiErr) && apiErr.Message != tt.wantField {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantField)
			}

			list, _ := f.svc.ListIdentities(context.Background())
			if len(list) != 1 {
				t.Errorf("identities = %d, want 1", len(list))
			}
		})
	}
}

func TestAuthenticate_FailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")

	_, unknownErr := f.svc.Authenticate(context.Background(), "nobody@example.com", "secret-alice")
	_, wrongErr := f.svc.Authenticate(context.Background(), "alice@example.com", "wrong")

	assertCode(t, unknownErr, model.ErrCodeInvalidCredentials)
	assertCode(t, wrongErr, model.ErrCodeInvalidCredentials)
	if unknownErr.Error() != wrongErr.Error() {
		t.Errorf("errors differ: %q vs %q", unknownErr, wrongErr)
	}

	// 未登録メールアドレスでもハッシュ照合が行われる
	if diff := cmp.Diff([]string{"", "hashed:secret-alice"}, f.creds.compared); diff != "" {
		t.Errorf("compared hashes mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisterThenAuthenticate_WithRealCredentials(t *testing.T) {
	store := repository.NewMemoryStore()
	hasher, err := auth.NewBcryptHasher(4)
	if err != nil {
		t.Fatalf("NewBcryptHasher: %v", err)
	}
	tokens := auth.NewTokenService(auth.TokenConfig{Secret: []byte("s"), TTL: time.Hour, Issuer: "deepthoughts"})
	credentials := auth.NewService(tokens, hasher)
	svc := NewService(store.Identities(), store.Posts(), credentials, security.NewTextSanitizer(), nil)
	ctx := context.Background()

	registered, err := svc.RegisterIdentity(ctx, "alice", "a@x.io", "pw")
	if err != nil {
		t.Fatalf("RegisterIdentity: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "a@x.io", "nope"); model.CodeOf(err) != model.ErrCodeInvalidCredentials {
		t.Fatalf("Authenticate(wrong) error = %v, want INVALID_CREDENTIALS", err)
	}

	authed, err := svc.Authenticate(ctx, "a@x.io", "pw")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if authed.Identity.ID != registered.Identity.ID {
		t.Errorf("Authenticate identity = %q, want %q", authed.Identity.ID, registered.Identity.ID)
	}

	ac := credentials.Resolve(authed.Token)
	if ac.IdentityID != registered.Identity.ID || ac.Username != "alice" {
		t.Errorf("resolved context = %+v, want alice", ac)
	}
}

func TestRegisterIdentity_SecretTooLongIsInvalidRequest(t *testing.T) {
	store := repository.NewMemoryStore()
	hasher, err := auth.NewBcryptHasher(4)
	if err != nil {
		t.Fatalf("NewBcryptHasher: %v", err)
	}
	tokens := auth.NewTokenService(auth.TokenConfig{Secret: []byte("s"), TTL: time.Hour, Issuer: "deepthoughts"})
	svc := NewService(store.Identities(), store.Posts(), auth.NewService(tokens, hasher), security.NewTextSanitizer(), nil)
	ctx := context.Background()

	_, err = svc.RegisterIdentity(ctx, "alice", "a@x.io", strings.Repeat("p", auth.MaxSecretBytes+1))
	assertCode(t, err, model.ErrCodeInvalidRequest)

	if identity, _ := svc.GetIdentity(ctx, "alice"); identity != nil {
		t.Errorf("identity was created for a rejected secret: %+v", identity)
	}
	if _, err := svc.RegisterIdentity(ctx, "alice", "a@x.io", strings.Repeat("p", auth.MaxSecretBytes)); err != nil {
		t.Errorf("RegisterIdentity(72-byte secret): %v", err)
	}
}

func TestAuthenticate_CompareFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	f.creds.compareFn = func(string, string) error { return errors.New("crypto/bcrypt: hashedSecret too short") }

	_, err := f.svc.Authenticate(context.Background(), "alice@example.com", "secret-alice")
	assertCode(t, err, model.ErrCodeInternal)
}

func TestRegisterIdentity_SignFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	f.creds.signFn = func(*model.Identity) (string, error) { return "", errors.New("key unavailable") }

	_, err := f.svc.RegisterIdentity(context.Background(), "alice", "a@x.io", "pw")
	assertCode(t, err, model.ErrCodeInternal)
	if got := err.Error(); got != "[INTERNAL] 内部エラーが発生しました。" {
		t.Errorf("Error() = %q, must not leak cause", got)
	}
}

// --- 認可 ---

func TestMutations_AnonymousIsUnauthenticatedWithoutMutation(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	post, err := f.svc.AddPost(context.Background(), alice, "hello")
	if err != nil {
		t.Fatalf("AddPost: %v", err)
	}

	anon := model.Anonymous()
	ctx := context.Background()

	if _, err := f.svc.GetSelf(ctx, anon); model.CodeOf(err) != model.ErrCodeUnauthenticated {
		t.Errorf("GetSelf error = %v, want UNAUTHENTICATED", err)
	}
	if _, err := f.svc.AddPost(ctx, anon, "spam"); model.CodeOf(err) != model.ErrCodeUnauthenticated {
		t.Errorf("AddPost error = %v, want UNAUTHENTICATED", err)
	}
	if _, err := f.svc.AddReaction(ctx, anon, post.ID, "spam"); model.CodeOf(err) != model.ErrCodeUnauthenticated {
		t.Errorf("AddReaction error = %v, want UNAUTHENTICATED", err)
	}
	if _, err := f.svc.AddFriend(ctx, anon, alice.IdentityID); model.CodeOf(err) != model.ErrCodeUnauthenticated {
		t.Errorf("AddFriend error = %v, want UNAUTHENTICATED", err)
	}

	posts, _ := f.svc.ListPosts(ctx, "")
	if len(posts) != 1 || len(posts[0].Reactions) != 0 {
		t.Errorf("store was mutated by anonymous calls: %+v", posts)
	}
}

// --- 投稿 ---

func TestAddPost_VisibleInIdentityAndFirstInListPosts(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	ctx := context.Background()

	if _, err := f.svc.AddPost(ctx, bob, "older"); err != nil {
		t.Fatalf("AddPost: %v", err)
	}
	post, err := f.svc.AddPost(ctx, alice, "<b>newest</b>")
	if err != nil {
		t.Fatalf("AddPost: %v", err)
	}
	if post.Username != "alice" || post.Body != "<b>newest</b>" {
		t.Errorf("post = %+v, want author alice and body as sent", post)
	}

	identity, err := f.svc.GetIdentity(ctx, "alice")
	if err != nil {
		t.Fatalf("GetIdentity: %v", err)
	}
	if identity.PostCount() != 1 || identity.Posts[0].ID != post.ID {
		t.Errorf("alice posts = %+v, want [%s]", identity.PostIDs, post.ID)
	}

	all, err := f.svc.ListPosts(ctx, "")
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(all) != 2 || all[0].ID != post.ID {
		t.Errorf("ListPosts()[0] = %v, want newest post first", all)
	}

	filtered, err := f.svc.ListPosts(ctx, "bob")
	if err != nil {
		t.Fatalf("ListPosts: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Body != "older" {
		t.Errorf("ListPosts(bob) = %v, want [older]", filtered)
	}
}

func TestAddPost_BodyStoredAsSent(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	ctx := context.Background()

	tests := []string{
		"if a<b and c>d",
		"  leading and trailing  ",
		"Tom & Jerry <3",
		"<i>markup</i> is kept",
	}
	for _, body := range tests {
		post, err := f.svc.AddPost(ctx, alice, body)
		if err != nil {
			t.Fatalf("AddPost(%q): %v", body, err)
		}
		stored, err := f.svc.GetPost(ctx, post.ID)
		if err != nil {
			t.Fatalf("GetPost: %v", err)
		}
		if stored.Body != body {
			t.Errorf("stored body = %q, want %q", stored.Body, body)
		}

		reacted, err := f.svc.AddReaction(ctx, alice, post.ID, body)
		if err != nil {
			t.Fatalf("AddReaction(%q): %v", body, err)
		}
		if got := reacted.Reactions[len(reacted.Reactions)-1].Body; got != body {
			t.Errorf("reaction body = %q, want %q", got, body)
		}
	}
}

func TestAddPost_BodyWithoutVisibleTextIsInvalidRequest(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	ctx := context.Background()
	post, err := f.svc.AddPost(ctx, alice, "hello")
	if err != nil {
		t.Fatalf("AddPost: %v", err)
	}

	for _, body := range []string{"", "   ", "<b></b>", "<script>alert(1)</script>"} {
		_, err := f.svc.AddPost(ctx, alice, body)
		assertCode(t, err, model.ErrCodeInvalidRequest)

		_, err = f.svc.AddReaction(ctx, alice, post.ID, body)
		assertCode(t, err, model.ErrCodeInvalidRequest)
	}

	posts, _ := f.svc.ListPosts(ctx, "")
	if len(posts) != 1 || len(posts[0].Reactions) != 0 {
		t.Errorf("store was mutated by rejected bodies: %+v", posts)
	}
}

func TestCreatedAt_TruncatedToMicroseconds(t *testing.T) {
	f := newFixture(t)
	f.svc.now = func() time.Time {
		return time.Date(2024, 5, 1, 9, 0, 0, 123456789, time.FixedZone("JST", 9*60*60))
	}
	want := time.Date(2024, 5, 1, 0, 0, 0, 123456000, time.UTC)
	ctx := context.Background()

	payload, err := f.svc.RegisterIdentity(ctx, "alice", "a@x.io", "pw")
	if err != nil {
		t.Fatalf("RegisterIdentity: %v", err)
	}
	alice := model.AuthContext{IdentityID: payload.Identity.ID, Username: "alice"}
	post, err := f.svc.AddPost(ctx, alice, "hello")
	if err != nil {
		t.Fatalf("AddPost: %v", err)
	}
	reacted, err := f.svc.AddReaction(ctx, alice, post.ID, "nice")
	if err != nil {
		t.Fatalf("AddReaction: %v", err)
	}

	got := []time.Time{payload.Identity.CreatedAt, post.CreatedAt, reacted.Reactions[0].CreatedAt}
	if diff := cmp.Diff([]time.Time{want, want, want}, got); diff != "" {
		t.Errorf("CreatedAt mismatch (-want +got):\n%s", diff)
	}
}

func TestAddPost_VanishedOwnerIsNotFound(t *testing.T) {
	f := newFixture(t)
	ghost := model.AuthContext{IdentityID: "ghost", Username: "ghost"}

	_, err := f.svc.AddPost(context.Background(), ghost, "boo")
	assertCode(t, err, model.ErrCodeNotFound)

	posts, _ := f.svc.ListPosts(context.Background(), "")
	if len(posts) != 0 {
		t.Errorf("posts = %d, want 0", len(posts))
	}
}

func TestGetPost_MissingReturnsNil(t *testing.T) {
	f := newFixture(t)
	post, err := f.svc.GetPost(context.Background(), "missing")
	if err != nil || post != nil {
		t.Errorf("GetPost = (%v, %v), want (nil, nil)", post, err)
	}

	identity, err := f.svc.GetIdentity(context.Background(), "nobody")
	if err != nil || identity != nil {
		t.Errorf("GetIdentity = (%v, %v), want (nil, nil)", identity, err)
	}
}

// --- リアクション ---

func TestAddReaction_AppendsInOrder(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	ctx := context.Background()

	post, _ := f.svc.AddPost(ctx, alice, "hello")
	if _, err := f.svc.AddReaction(ctx, bob, post.ID, "first"); err != nil {
		t.Fatalf("AddReaction: %v", err)
	}
	got, err := f.svc.AddReaction(ctx, alice, post.ID, "second")
	if err != nil {
		t.Fatalf("AddReaction: %v", err)
	}

	var bodies, authors []string
	for _, r := range got.Reactions {
		bodies = append(bodies, r.Body)
		authors = append(authors, r.Username)
	}
	if diff := cmp.Diff([]string{"first", "second"}, bodies); diff != "" {
		t.Errorf("reaction bodies (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"bob", "alice"}, authors); diff != "" {
		t.Errorf("reaction authors (-want +got):\n%s", diff)
	}
	if got.ReactionCount() != 2 {
		t.Errorf("ReactionCount = %d, want 2", got.ReactionCount())
	}
}

func TestAddReaction_MissingPostIsNotFoundAndCreatesNothing(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")

	_, err := f.svc.AddReaction(context.Background(), alice, "missing", "hi")
	assertCode(t, err, model.ErrCodeNotFound)

	posts, _ := f.svc.ListPosts(context.Background(), "")
	if len(posts) != 0 {
		t.Errorf("posts = %d, want 0 (no upsert)", len(posts))
	}
}

// --- フレンド ---

func TestAddFriend_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	ctx := context.Background()

	first, err := f.svc.AddFriend(ctx, alice, bob.IdentityID)
	if err != nil {
		t.Fatalf("AddFriend: %v", err)
	}
	second, err := f.svc.AddFriend(ctx, alice, bob.IdentityID)
	if err != nil {
		t.Fatalf("AddFriend: %v", err)
	}

	if first.FriendCount() != 1 || second.FriendCount() != 1 {
		t.Errorf("friend counts = %d, %d, want 1, 1", first.FriendCount(), second.FriendCount())
	}
	if len(second.Friends) != 1 || second.Friends[0].Username != "bob" {
		t.Errorf("Friends = %+v, want [bob]", second.Friends)
	}
}

func TestAddFriend_UnknownFriendIsAcceptedButNotJoined(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")

	got, err := f.svc.AddFriend(context.Background(), alice, "does-not-exist")
	if err != nil {
		t.Fatalf("AddFriend: %v", err)
	}
	if got.FriendCount() != 1 || len(got.Friends) != 0 {
		t.Errorf("FriendIDs = %v, Friends = %v, want dangling ref skipped by join", got.FriendIDs, got.Friends)
	}
}

func TestAddFriend_VanishedCallerIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AddFriend(context.Background(), model.AuthContext{IdentityID: "ghost", Username: "ghost"}, "x")
	assertCode(t, err, model.ErrCodeNotFound)
}

func TestGetSelf_ReturnsJoinedIdentity(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")
	ctx := context.Background()

	f.svc.AddPost(ctx, alice, "hello")
	f.svc.AddFriend(ctx, alice, bob.IdentityID)

	self, err := f.svc.GetSelf(ctx, alice)
	if err != nil {
		t.Fatalf("GetSelf: %v", err)
	}
	if len(self.Posts) != 1 || len(self.Friends) != 1 {
		t.Errorf("GetSelf posts=%d friends=%d, want 1 and 1", len(self.Posts), len(self.Friends))
	}

	_, err = f.svc.GetSelf(ctx, model.AuthContext{IdentityID: "ghost", Username: "ghost"})
	assertCode(t, err, model.ErrCodeNotFound)
}

func TestListIdentities_OrderedByCreation(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"carol", "alice", "bob"} {
		f.register(t, name)
	}

	list, err := f.svc.ListIdentities(context.Background())
	if err != nil {
		t.Fatalf("ListIdentities: %v", err)
	}
	var names []string
	for _, i := range list {
		names = append(names, i.Username)
	}
	if diff := cmp.Diff([]string{"carol", "alice", "bob"}, names); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

// --- 障害分類とメトリクス ---

func TestStoreFailureIsInternal(t *testing.T) {
	store := repository.NewMemoryStore()
	cause := errors.New("connection refused")
	recorder := &mockRecorder{}
	svc := NewService(store.Identities(), failingPostRepo{err: cause}, &mockCredentials{}, security.NewTextSanitizer(), recorder)

	_, err := svc.ListPosts(context.Background(), "")
	assertCode(t, err, model.ErrCodeInternal)
	if !errors.Is(err, cause) {
		t.Error("expected cause to be wrapped")
	}

	if diff := cmp.Diff([]string{model.ErrCodeInternal}, recorder.codes[OpListPosts]); diff != "" {
		t.Errorf("recorded codes (-want +got):\n%s", diff)
	}
}

func TestOperationsAreRecorded(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice")
	f.svc.GetSelf(context.Background(), model.Anonymous())

	if diff := cmp.Diff([]string{""}, f.recorder.codes[OpRegisterIdentity]); diff != "" {
		t.Errorf("registerIdentity codes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{model.ErrCodeUnauthenticated}, f.recorder.codes[OpGetSelf]); diff != "" {
		t.Errorf("getSelf codes (-want +got):\n%s", diff)
	}
}

type denyGuard struct{ calls int }

func (g *denyGuard) AllowCredential(context.Context) bool {
	g.calls++
	return false
}

func (g *denyGuard) CredentialRetryAfter() time.Duration { return 6 * time.Second }

func TestCredentialGuard_RejectsRegisterAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	guard := &denyGuard{}
	f.svc.SetCredentialGuard(guard)
	ctx := context.Background()

	_, err := f.svc.RegisterIdentity(ctx, "alice", "a@x.io", "pw")
	assertCode(t, err, model.ErrCodeRateLimited)
	_, err = f.svc.Authenticate(ctx, "a@x.io", "pw")
	assertCode(t, err, model.ErrCodeRateLimited)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.RetryAfter != 6*time.Second {
		t.Errorf("RetryAfter = %v, want 6s", apiErr)
	}
	if guard.calls != 2 {
		t.Errorf("guard calls = %d, want 2", guard.calls)
	}
	list, _ := f.svc.ListIdentities(ctx)
	if len(list) != 0 {
		t.Errorf("identities = %d, want 0", len(list))
	}
}
