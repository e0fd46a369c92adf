package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
)

// Clock returns the current time. A nil Clock means time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

type memoryPostRepository struct {
	mu    sync.Mutex
	clock Clock
	posts map[string]*models.Post
}

// NewMemoryPostRepository returns a PostRepository backed by process memory
// with the same guarded-write semantics as the Postgres implementation.
func NewMemoryPostRepository(clock Clock) PostRepository {
	return &memoryPostRepository{clock: clock, posts: make(map[string]*models.Post)}
}

func (r *memoryPostRepository) Create(ctx context.Context, post *models.Post) (string, error) {
	if post.ID == "" {
		id, err := newID()
		if err != nil {
			return "", err
		}
		post.ID = id
	}
	if post.PublishResults == nil {
		post.PublishResults = make(map[models.Platform]models.PublishResult)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.posts[post.ID]; ok {
		return "", ErrConflict
	}
	now := r.clock.now()
	post.Version = 0
	post.CreatedAt = now
	post.UpdatedAt = now
	r.posts[post.ID] = post.Clone()
	return post.ID, nil
}

func (r *memoryPostRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, ok := r.posts[id]
	if !ok {
		return nil, ErrPostNotFound
	}
	return post.Clone(), nil
}

func (r *memoryPostRepository) List(ctx context.Context, filter PostFilter) ([]*models.Post, error) {
	r.mu.Lock()
	var out []*models.Post
	for _, p := range r.posts {
		if filter.UserID != "" && p.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if !filter.ScheduledFrom.IsZero() && (p.ScheduledAt.IsZero() || p.ScheduledAt.Before(filter.ScheduledFrom)) {
			continue
		}
		if !filter.ScheduledTo.IsZero() && (p.ScheduledAt.IsZero() || p.ScheduledAt.After(filter.ScheduledTo)) {
			continue
		}
		out = append(out, p.Clone())
	}
	r.mu.Unlock()

	switch filter.OrderBy {
	case OrderScheduledAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryPostRepository) UpdateContent(ctx context.Context, post *models.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.posts[post.ID]
	if !ok || stored.Version != post.Version {
		return ErrConflict
	}
	if stored.Status != models.PostStatusDraft && stored.Status != models.PostStatusScheduled {
		return ErrConflict
	}
	if stored.Dispatched() {
		return ErrConflict
	}

	update := post.Clone()
	stored.Content = update.Content
	stored.Media = update.Media
	stored.TargetPlatforms = update.TargetPlatforms
	stored.Version++
	stored.UpdatedAt = r.clock.now()

	post.Version = stored.Version
	post.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *memoryPostRepository) CompareAndSwap(ctx context.Context, post *models.Post, expected models.PostStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.posts[post.ID]
	if !ok || stored.Status != expected || stored.Version != post.Version {
		return ErrConflict
	}

	update := post.Clone()
	stored.Status = update.Status
	stored.PublishResults = update.PublishResults
	stored.RetryCount = update.RetryCount
	stored.ScheduledAt = update.ScheduledAt
	stored.DispatchTaskID = update.DispatchTaskID
	stored.Version++
	stored.UpdatedAt = r.clock.now()

	post.Version = stored.Version
	post.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *memoryPostRepository) Claim(ctx context.Context, id string, from models.PostStatus, version int64, staleBefore time.Time) (*models.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.posts[id]
	if !ok || stored.Status != from || stored.Version != version {
		return nil, ErrConflict
	}
	if !staleBefore.IsZero() && !stored.UpdatedAt.Before(staleBefore) {
		return nil, ErrConflict
	}

	stored.Status = models.PostStatusPublishing
	stored.Version++
	stored.UpdatedAt = r.clock.now()
	return stored.Clone(), nil
}

func (r *memoryPostRepository) SetPublishResult(ctx context.Context, id string, platform models.Platform, result models.PublishResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.posts[id]
	if !ok || stored.Status != models.PostStatusPublishing {
		return ErrConflict
	}
	stored.PublishResults[platform] = result
	stored.UpdatedAt = r.clock.now()
	return nil
}

func (r *memoryPostRepository) Heartbeat(ctx context.Context, id string, version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.posts[id]
	if !ok || stored.Status != models.PostStatusPublishing || stored.Version != version {
		return ErrConflict
	}
	stored.UpdatedAt = r.clock.now()
	return nil
}

func (r *memoryPostRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Post, error) {
	r.mu.Lock()
	var out []*models.Post
	for _, p := range r.posts {
		if p.Status == models.PostStatusScheduled && !p.ScheduledAt.IsZero() && !p.ScheduledAt.After(now) {
			out = append(out, p.Clone())
		}
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryPostRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]*models.Post, error) {
	r.mu.Lock()
	var out []*models.Post
	for _, p := range r.posts {
		if p.Status == models.PostStatusPublishing && p.UpdatedAt.Before(before) {
			out = append(out, p.Clone())
		}
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryPostRepository) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.posts[id]
	if !ok {
		return ErrPostNotFound
	}
	if stored.Status == models.PostStatusPublishing {
		return ErrConflict
	}
	delete(r.posts, id)
	return nil
}

type memoryMediaRepository struct {
	mu    sync.Mutex
	clock Clock
	media map[string]*models.Media
}

func NewMemoryMediaRepository(clock Clock) MediaRepository {
	return &memoryMediaRepository{clock: clock, media: make(map[string]*models.Media)}
}

func cloneMedia(m *models.Media) *models.Media {
	c := *m
	c.UsedInPosts = append([]string{}, m.UsedInPosts...)
	return &c
}

func (r *memoryMediaRepository) Create(ctx context.Context, m *models.Media) (string, error) {
	if m.ID == "" {
		id, err := newID()
		if err != nil {
			return "", err
		}
		m.ID = id
	}
	if m.UploadedAt.IsZero() {
		m.UploadedAt = r.clock.now()
	}
	if m.UsedInPosts == nil {
		m.UsedInPosts = []string{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.media[m.ID] = cloneMedia(m)
	return m.ID, nil
}

func (r *memoryMediaRepository) GetByID(ctx context.Context, id string) (*models.Media, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.media[id]
	if !ok {
		return nil, ErrMediaNotFound
	}
	return cloneMedia(m), nil
}

func (r *memoryMediaRepository) ListByUserID(ctx context.Context, userID string) ([]*models.Media, error) {
	r.mu.Lock()
	var out []*models.Media
	for _, m := range r.media {
		if m.UserID == userID {
			out = append(out, cloneMedia(m))
		}
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (r *memoryMediaRepository) AddUsage(ctx context.Context, mediaID, postID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.media[mediaID]
	if !ok {
		return ErrMediaNotFound
	}
	if !slices.Contains(m.UsedInPosts, postID) {
		m.UsedInPosts = append(m.UsedInPosts, postID)
	}
	return nil
}

func (r *memoryMediaRepository) RemoveUsage(ctx context.Context, mediaID, postID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.media[mediaID]
	if !ok {
		return ErrMediaNotFound
	}
	m.UsedInPosts = slices.DeleteFunc(m.UsedInPosts, func(id string) bool { return id == postID })
	return nil
}

func (r *memoryMediaRepository) Remove(ctx context.Context, id string, force bool) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.media[id]
	if !ok {
		return nil, ErrMediaNotFound
	}
	usedIn := append([]string{}, m.UsedInPosts...)
	if len(usedIn) > 0 && !force {
		return usedIn, ErrMediaInUse
	}
	delete(r.media, id)
	return usedIn, nil
}

type memoryUserRepository struct {
	mu    sync.Mutex
	clock Clock
	users map[string]*models.User
}

func NewMemoryUserRepository(clock Clock) UserRepository {
	return &memoryUserRepository{clock: clock, users: make(map[string]*models.User)}
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.Settings.DefaultPlatforms = append([]models.Platform{}, u.Settings.DefaultPlatforms...)
	return &c
}

func (r *memoryUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *memoryUserRepository) Upsert(ctx context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.now()
	stored, ok := r.users[u.ID]
	if !ok {
		c := cloneUser(u)
		c.CreatedAt = now
		c.UpdatedAt = now
		r.users[u.ID] = c
		return nil
	}

	stored.Email = u.Email
	if u.DisplayName != "" {
		stored.DisplayName = u.DisplayName
	}
	if u.PhotoURL != "" {
		stored.PhotoURL = u.PhotoURL
	}
	stored.UpdatedAt = now
	return nil
}

func (r *memoryUserRepository) UpdateSettings(ctx context.Context, id, displayName string, settings models.UserSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if displayName != "" {
		stored.DisplayName = displayName
	}
	stored.Settings.Timezone = settings.Timezone
	stored.Settings.DefaultPlatforms = append([]models.Platform{}, settings.DefaultPlatforms...)
	stored.UpdatedAt = r.clock.now()
	return nil
}

type memorySocialAccountRepository struct {
	mu       sync.Mutex
	clock    Clock
	accounts map[string]*models.SocialAccount
}

func NewMemorySocialAccountRepository(clock Clock) SocialAccountRepository {
	return &memorySocialAccountRepository{clock: clock, accounts: make(map[string]*models.SocialAccount)}
}

func cloneAccount(sa *models.SocialAccount) *models.SocialAccount {
	c := *sa
	c.Scopes = append([]string(nil), sa.Scopes...)
	return &c
}

func (r *memorySocialAccountRepository) Create(ctx context.Context, sa *models.SocialAccount) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, stored := range r.accounts {
		if stored.UserID == sa.UserID && stored.Platform == sa.Platform && stored.PlatformAccountID == sa.PlatformAccountID {
			stored.AccountName = sa.AccountName
			stored.ProfilePicURL = sa.ProfilePicURL
			stored.AccessToken = sa.AccessToken
			if sa.RefreshToken != "" {
				stored.RefreshToken = sa.RefreshToken
			}
			stored.TokenExpiresAt = sa.TokenExpiresAt
			stored.Scopes = append([]string(nil), sa.Scopes...)
			stored.IsActive = true
			sa.ID = stored.ID
			sa.IsActive = true
			return stored.ID, nil
		}
	}

	if sa.ID == "" {
		id, err := newID()
		if err != nil {
			return "", err
		}
		sa.ID = id
	}
	if sa.ConnectedAt.IsZero() {
		sa.ConnectedAt = r.clock.now()
	}
	sa.IsActive = true
	r.accounts[sa.ID] = cloneAccount(sa)
	return sa.ID, nil
}

func (r *memorySocialAccountRepository) GetByID(ctx context.Context, id string) (*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sa, ok := r.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return cloneAccount(sa), nil
}

func (r *memorySocialAccountRepository) GetActive(ctx context.Context, userID string, platform models.Platform) (*models.SocialAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found *models.SocialAccount
	for _, sa := range r.accounts {
		if sa.UserID != userID || sa.Platform != platform || !sa.IsActive {
			continue
		}
		if found == nil || sa.ConnectedAt.After(found.ConnectedAt) {
			found = sa
		}
	}
	if found == nil {
		return nil, ErrAccountNotFound
	}
	return cloneAccount(found), nil
}

func (r *memorySocialAccountRepository) ListByUserID(ctx context.Context, userID string) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	var out []*models.SocialAccount
	for _, sa := range r.accounts {
		if sa.UserID == userID {
			out = append(out, cloneAccount(sa))
		}
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].ConnectedAt.After(out[j].ConnectedAt) })
	return out, nil
}

func (r *memorySocialAccountRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.SocialAccount, error) {
	r.mu.Lock()
	var out []*models.SocialAccount
	for _, sa := range r.accounts {
		if sa.IsActive && !sa.TokenExpiresAt.IsZero() && sa.TokenExpiresAt.Before(before) {
			out = append(out, cloneAccount(sa))
		}
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].TokenExpiresAt.Before(out[j].TokenExpiresAt) })
	return out, nil
}

func (r *memorySocialAccountRepository) SetToken(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sa, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	if accessToken != "" {
		sa.AccessToken = accessToken
	}
	if refreshToken != "" {
		sa.RefreshToken = refreshToken
	}
	if !expiresAt.IsZero() {
		sa.TokenExpiresAt = expiresAt
	}
	sa.IsActive = true
	return nil
}

func (r *memorySocialAccountRepository) Deactivate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sa, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	sa.IsActive = false
	return nil
}

func (r *memorySocialAccountRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sa, ok := r.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	sa.LastUsedAt = at
	return nil
}

func (r *memorySocialAccountRepository) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[id]; !ok {
		return ErrAccountNotFound
	}
	delete(r.accounts, id)
	return nil
}
