package repository

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/hitoshi/deepthoughts/internal/model"
)

// MemoryStore はプロセス内メモリ上のストア。
// IdentityとPostの両コレクションを1つのミューテックスで保護し、
// PostgreSQL実装と同じ振る舞いを提供する。
type MemoryStore struct {
	mu sync.RWMutex

	identities map[string]*memoryIdentity
	order      []string // 作成順のIdentity ID

	posts map[string]*model.Post
}

type memoryIdentity struct {
	identity   model.Identity
	secretHash string
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[string]*memoryIdentity),
		posts:      make(map[string]*model.Post),
	}
}

// Identities はIdentityRepositoryとしてのビューを返す。
func (s *MemoryStore) Identities() IdentityRepository {
	return memoryIdentityRepo{s}
}

// Posts はPostRepositoryとしてのビューを返す。
func (s *MemoryStore) Posts() PostRepository {
	return memoryPostRepo{s}
}

// PingContext は常に成功する。
func (s *MemoryStore) PingContext(ctx context.Context) error {
	return ctx.Err()
}

func cloneIdentity(i *model.Identity) *model.Identity {
	c := *i
	c.PostIDs = slices.Clone(i.PostIDs)
	c.FriendIDs = slices.Clone(i.FriendIDs)
	if c.PostIDs == nil {
		c.PostIDs = []string{}
	}
	if c.FriendIDs == nil {
		c.FriendIDs = []string{}
	}
	c.Posts = nil
	c.Friends = nil
	return &c
}

func clonePost(p *model.Post) *model.Post {
	c := *p
	c.Reactions = slices.Clone(p.Reactions)
	if c.Reactions == nil {
		c.Reactions = []model.Reaction{}
	}
	return &c
}

type memoryIdentityRepo struct {
	s *MemoryStore
}

func (r memoryIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if rec, ok := r.s.identities[id]; ok {
		return cloneIdentity(&rec.identity), nil
	}
	return nil, nil
}

func (r memoryIdentityRepo) FindByUsername(ctx context.Context, username string) (*model.Identity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, rec := range r.s.identities {
		if rec.identity.Username == username {
			return cloneIdentity(&rec.identity), nil
		}
	}
	return nil, nil
}

func (r memoryIdentityRepo) FindByEmailWithSecret(ctx context.Context, email string) (*model.Identity, string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, rec := range r.s.identities {
		if rec.identity.Email == email {
			return cloneIdentity(&rec.identity), rec.secretHash, nil
		}
	}
	return nil, "", nil
}

func (r memoryIdentityRepo) List(ctx context.Context) ([]*model.Identity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*model.Identity, 0, len(r.s.order))
	for _, id := range r.s.order {
		result = append(result, cloneIdentity(&r.s.identities[id].identity))
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r memoryIdentityRepo) Create(ctx context.Context, identity *model.Identity, secretHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, rec := range r.s.identities {
		if rec.identity.Username == identity.Username {
			return &DuplicateError{Field: "username"}
		}
		if rec.identity.Email == identity.Email {
			return &DuplicateError{Field: "email"}
		}
	}
	if _, ok := r.s.identities[identity.ID]; ok {
		return &DuplicateError{}
	}

	r.s.identities[identity.ID] = &memoryIdentity{
		identity:   *cloneIdentity(identity),
		secretHash: secretHash,
	}
	r.s.order = append(r.s.order, identity.ID)
	return nil
}

func (r memoryIdentityRepo) AddFriend(ctx context.Context, identityID, friendID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.identities[identityID]
	if !ok {
		return ErrNotFound
	}
	if !rec.identity.HasFriend(friendID) {
		rec.identity.FriendIDs = append(rec.identity.FriendIDs, friendID)
	}
	return nil
}

func (r memoryIdentityRepo) PopulatePosts(ctx context.Context, identities ...*model.Identity) error {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, identity := range identities {
		identity.Posts = make([]*model.Post, 0, len(identity.PostIDs))
		for _, id := range identity.PostIDs {
			if p, ok := r.s.posts[id]; ok {
				identity.Posts = append(identity.Posts, clonePost(p))
			}
		}
	}
	return nil
}

func (r memoryIdentityRepo) PopulateFriends(ctx context.Context, identities ...*model.Identity) error {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, identity := range identities {
		identity.Friends = make([]*model.Identity, 0, len(identity.FriendIDs))
		for _, id := range identity.FriendIDs {
			if rec, ok := r.s.identities[id]; ok {
				identity.Friends = append(identity.Friends, cloneIdentity(&rec.identity))
			}
		}
	}
	return nil
}

type memoryPostRepo struct {
	s *MemoryStore
}

func (r memoryPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if p, ok := r.s.posts[id]; ok {
		return clonePost(p), nil
	}
	return nil, nil
}

func (r memoryPostRepo) List(ctx context.Context, username string) ([]*model.Post, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := []*model.Post{}
	for _, p := range r.s.posts {
		if username != "" && p.Username != username {
			continue
		}
		result = append(result, clonePost(p))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (r memoryPostRepo) CreateForOwner(ctx context.Context, post *model.Post, ownerID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	owner, ok := r.s.identities[ownerID]
	if !ok {
		return ErrNotFound
	}
	if _, exists := r.s.posts[post.ID]; exists {
		return &DuplicateError{}
	}

	r.s.posts[post.ID] = clonePost(post)
	owner.identity.PostIDs = append(owner.identity.PostIDs, post.ID)
	return nil
}

func (r memoryPostRepo) AddReaction(ctx context.Context, postID string, reaction *model.Reaction) (*model.Post, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.posts[postID]
	if !ok {
		return nil, nil
	}
	p.Reactions = append(p.Reactions, *reaction)
	return clonePost(p), nil
}

// compile-time interface check
var (
	_ IdentityRepository = memoryIdentityRepo{}
	_ PostRepository     = memoryPostRepo{}
	_ HealthChecker      = (*MemoryStore)(nil)
)
