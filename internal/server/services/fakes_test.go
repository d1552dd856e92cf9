package services

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/microblog/internal/common"
	"github.com/dmitrijs2005/microblog/internal/dbx"
	"github.com/dmitrijs2005/microblog/internal/server/config"
	"github.com/dmitrijs2005/microblog/internal/server/credentials"
	"github.com/dmitrijs2005/microblog/internal/server/mailer"
	"github.com/dmitrijs2005/microblog/internal/server/models"
	micropostsrepo "github.com/dmitrijs2005/microblog/internal/server/repositories/microposts"
	relationshipsrepo "github.com/dmitrijs2005/microblog/internal/server/repositories/relationships"
	usersrepo "github.com/dmitrijs2005/microblog/internal/server/repositories/users"
	"github.com/dmitrijs2005/microblog/internal/timex"
)

// memStore is an in-memory stand-in for the three tables, enforcing the
// same constraints the schema does.
type memStore struct {
	mu    sync.Mutex
	users map[string]models.User
	posts map[string]models.Micropost
	edges map[[2]string]int
	seq   int
}

func newMemStore() *memStore {
	return &memStore{
		users: map[string]models.User{},
		posts: map[string]models.Micropost{},
		edges: map[[2]string]int{},
	}
}

type fakeRepoManager struct{ s *memStore }

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) usersrepo.Repository          { return &memUsers{m.s} }
func (m *fakeRepoManager) Microposts(dbx.DBTX) micropostsrepo.Repository {
	return &memPosts{m.s}
}
func (m *fakeRepoManager) Relationships(dbx.DBTX) relationshipsrepo.Repository {
	return &memRelationships{m.s}
}

// --- users ---

type memUsers struct{ s *memStore }

func (r *memUsers) emailTaken(email, exceptID string) bool {
	for id, u := range r.s.users {
		if id != exceptID && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func (r *memUsers) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.emailTaken(user.Email, "") {
		return nil, usersrepo.ErrEmailTaken
	}
	user.UpdatedAt = user.CreatedAt
	r.s.users[user.ID] = *user
	return user, nil
}

func (r *memUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) List(ctx context.Context, page models.Page) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []models.User
	for _, u := range r.s.users {
		if u.Activated {
			all = append(all, u)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return paginate(all, page), nil
}

func (r *memUsers) update(id string, fn func(u *models.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(&u)
	r.s.users[id] = u
	return nil
}

func (r *memUsers) UpdateProfile(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	taken := r.emailTaken(user.Email, user.ID)
	r.s.mu.Unlock()
	if taken {
		return usersrepo.ErrEmailTaken
	}
	return r.update(user.ID, func(u *models.User) {
		u.Name, u.Email, u.Gender = user.Name, user.Email, user.Gender
	})
}

func (r *memUsers) UpdatePassword(ctx context.Context, id, digest string) error {
	return r.update(id, func(u *models.User) {
		u.PasswordDigest = digest
		u.ResetDigest = sql.NullString{}
		u.ResetSentAt = sql.NullTime{}
		u.RememberDigest = sql.NullString{}
	})
}

func (r *memUsers) SetRememberDigest(ctx context.Context, id string, digest sql.NullString) error {
	return r.update(id, func(u *models.User) { u.RememberDigest = digest })
}

func (r *memUsers) SetResetDigest(ctx context.Context, id, digest string, sentAt time.Time) error {
	return r.update(id, func(u *models.User) {
		u.ResetDigest = sql.NullString{String: digest, Valid: true}
		u.ResetSentAt = sql.NullTime{Time: sentAt, Valid: true}
	})
}

func (r *memUsers) Activate(ctx context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || u.Activated {
		return false, nil
	}
	u.Activated = true
	u.ActivationDigest = sql.NullString{}
	u.ActivatedAt = sql.NullTime{Time: at, Valid: true}
	r.s.users[id] = u
	return true, nil
}

func (r *memUsers) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.users, id)
	for pid, p := range r.s.posts {
		if p.UserID == id {
			delete(r.s.posts, pid)
		}
	}
	for e := range r.s.edges {
		if e[0] == id || e[1] == id {
			delete(r.s.edges, e)
		}
	}
	return nil
}

// --- microposts ---

type memPosts struct{ s *memStore }

func (r *memPosts) Create(ctx context.Context, post *models.Micropost) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[post.UserID]; !ok {
		return common.ErrorNotFound
	}
	post.UpdatedAt = post.CreatedAt
	r.s.posts[post.ID] = *post
	return nil
}

func (r *memPosts) GetByID(ctx context.Context, id string) (*models.Micropost, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.posts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &p, nil
}

func (r *memPosts) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.posts[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.posts, id)
	return nil
}

func (r *memPosts) selectPosts(page models.Page, keep func(p models.Micropost) bool) []models.Micropost {
	var out []models.Micropost
	for _, p := range r.s.posts {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, page)
}

func (r *memPosts) ListByUser(ctx context.Context, userID string, page models.Page) ([]models.Micropost, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.selectPosts(page, func(p models.Micropost) bool { return p.UserID == userID }), nil
}

func (r *memPosts) CountByUser(ctx context.Context, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, p := range r.s.posts {
		if p.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (r *memPosts) Feed(ctx context.Context, userID string, page models.Page) ([]models.Micropost, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.selectPosts(page, func(p models.Micropost) bool {
		if p.UserID == userID {
			return true
		}
		_, follows := r.s.edges[[2]string{userID, p.UserID}]
		return follows
	}), nil
}

// --- relationships ---

type memRelationships struct{ s *memStore }

func (r *memRelationships) Follow(ctx context.Context, followerID, followedID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if followerID == followedID {
		return false, relationshipsrepo.ErrSelfFollow
	}
	_, a := r.s.users[followerID]
	_, b := r.s.users[followedID]
	if !a || !b {
		return false, common.ErrorNotFound
	}
	key := [2]string{followerID, followedID}
	if _, ok := r.s.edges[key]; ok {
		return false, nil
	}
	r.s.seq++
	r.s.edges[key] = r.s.seq
	return true, nil
}

func (r *memRelationships) Unfollow(ctx context.Context, followerID, followedID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.edges, [2]string{followerID, followedID})
	return nil
}

func (r *memRelationships) Exists(ctx context.Context, followerID, followedID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.edges[[2]string{followerID, followedID}]
	return ok, nil
}

func (r *memRelationships) list(page models.Page, pick func(e [2]string) (string, bool)) []models.User {
	type item struct {
		u   models.User
		seq int
	}
	var items []item
	for e, seq := range r.s.edges {
		if id, ok := pick(e); ok {
			items = append(items, item{r.s.users[id], seq})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].seq > items[j].seq })
	out := make([]models.User, 0, len(items))
	for _, it := range items {
		out = append(out, it.u)
	}
	return paginate(out, page)
}

func (r *memRelationships) Following(ctx context.Context, userID string, page models.Page) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(page, func(e [2]string) (string, bool) { return e[1], e[0] == userID }), nil
}

func (r *memRelationships) Followers(ctx context.Context, userID string, page models.Page) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(page, func(e [2]string) (string, bool) { return e[0], e[1] == userID }), nil
}

func (r *memRelationships) Counts(ctx context.Context, userID string) (int, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var following, followers int
	for e := range r.s.edges {
		if e[0] == userID {
			following++
		}
		if e[1] == userID {
			followers++
		}
	}
	return following, followers, nil
}

func paginate[T any](all []T, page models.Page) []T {
	if page.Offset >= len(all) {
		return nil
	}
	end := page.Offset + page.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[page.Offset:end]
}

// --- collaborators ---

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []mailer.Message
}

func (n *recordingNotifier) Notify(msg mailer.Message) {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
}

func (n *recordingNotifier) last() mailer.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.msgs) == 0 {
		return mailer.Message{}
	}
	return n.msgs[len(n.msgs)-1]
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

type fixture struct {
	store    *memStore
	rm       *fakeRepoManager
	db       *sql.DB
	mock     sqlmock.Sqlmock
	clock    *timex.ManualClock
	notifier *recordingNotifier
	cfg      *config.Config
	users    *UserService
	social   *SocialService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.Environment = config.EnvTest
	cfg.HashCost = credentials.MinCost
	cfg.BaseURL = "https://blog.example"

	hasher, err := credentials.NewHasher(cfg.HashCost, false)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	f := &fixture{
		store:    newMemStore(),
		db:       db,
		mock:     mock,
		clock:    timex.NewManualClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)),
		notifier: &recordingNotifier{},
		cfg:      cfg,
	}
	f.rm = &fakeRepoManager{s: f.store}
	f.users = NewUserService(db, f.rm, cfg, hasher, WithClock(f.clock), WithNotifier(f.notifier))
	f.social = NewSocialService(db, f.rm, cfg, WithClock(f.clock))
	return f
}

// register creates a user and returns it with its activation token.
func (f *fixture) register(t *testing.T, name, email, password string) (*models.User, string) {
	t.Helper()
	res, err := f.users.Register(context.Background(), RegisterParams{Name: name, Email: email, Password: password})
	if err != nil {
		t.Fatalf("Register(%s) error: %v", email, err)
	}
	f.clock.Advance(time.Second)
	return res.User, res.ActivationToken
}

// activeUser registers and activates a user.
func (f *fixture) activeUser(t *testing.T, name, email string) *models.User {
	t.Helper()
	u, tok := f.register(t, name, email, "foobar")
	if _, err := f.users.Activate(context.Background(), email, tok); err != nil {
		t.Fatalf("Activate(%s) error: %v", email, err)
	}
	return u
}

func (f *fixture) makeAdmin(id string) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	u := f.store.users[id]
	u.Role = models.RoleAdmin
	f.store.users[id] = u
}
