package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/microblog/internal/common"
	"github.com/dmitrijs2005/microblog/internal/server/models"
	"github.com/dmitrijs2005/microblog/internal/server/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postIDs(posts []models.Micropost) []string {
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}

func userIDs(list []models.User) []string {
	ids := make([]string, 0, len(list))
	for _, u := range list {
		ids = append(ids, u.ID)
	}
	return ids
}

func TestFollow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.activeUser(t, "A", "a@x.io")
	b := f.activeUser(t, "B", "b@x.io")

	ok, err := f.social.IsFollowing(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.social.Follow(ctx, a.ID, b.ID))
	require.NoError(t, f.social.Follow(ctx, a.ID, b.ID), "following twice is not an error")
	assert.Len(t, f.store.edges, 1, "duplicate follow keeps a single edge")

	ok, _ = f.social.IsFollowing(ctx, a.ID, b.ID)
	assert.True(t, ok)
	ok, _ = f.social.IsFollowing(ctx, b.ID, a.ID)
	assert.False(t, ok, "edges are directed")

	followers, err := f.social.Followers(ctx, b.ID, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, userIDs(followers))

	following, err := f.social.Following(ctx, a.ID, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, userIDs(following))
}

func TestFollow_Self(t *testing.T) {
	f := newFixture(t)
	a := f.activeUser(t, "A", "a@x.io")

	err := f.social.Follow(context.Background(), a.ID, a.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrorValidation))
	assert.Equal(t, map[string][]string{"followed_id": {validation.MsgSelfFollow}}, fieldErrors(t, err))
	assert.Empty(t, f.store.edges)
}

func TestFollow_UnknownUser(t *testing.T) {
	f := newFixture(t)
	a := f.activeUser(t, "A", "a@x.io")

	err := f.social.Follow(context.Background(), a.ID, "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestUnfollow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.activeUser(t, "A", "a@x.io")
	b := f.activeUser(t, "B", "b@x.io")

	require.NoError(t, f.social.Unfollow(ctx, a.ID, b.ID), "unfollowing a non-edge is a no-op")

	require.NoError(t, f.social.Follow(ctx, a.ID, b.ID))
	require.NoError(t, f.social.Follow(ctx, b.ID, a.ID))
	require.NoError(t, f.social.Unfollow(ctx, a.ID, b.ID))

	ok, _ := f.social.IsFollowing(ctx, a.ID, b.ID)
	assert.False(t, ok)
	ok, _ = f.social.IsFollowing(ctx, b.ID, a.ID)
	assert.True(t, ok, "the reverse edge survives")
}

// post creates a micropost at the given offset from the fixture's start.
func (f *fixture) post(t *testing.T, start time.Time, at time.Duration, userID, content string) *models.Micropost {
	t.Helper()
	f.clock.Set(start.Add(at))
	p, err := f.social.CreatePost(context.Background(), userID, PostParams{Content: content})
	require.NoError(t, err)
	return p
}

func TestFeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.activeUser(t, "U", "u@x.io")
	v := f.activeUser(t, "V", "v@x.io")
	w := f.activeUser(t, "W", "w@x.io")
	require.NoError(t, f.social.Follow(ctx, u.ID, v.ID))

	start := f.clock.Now()
	p1 := f.post(t, start, 2*time.Second, u.ID, "P1")
	p2 := f.post(t, start, 3*time.Second, v.ID, "P2")
	f.post(t, start, 5*time.Second, w.ID, "P3")

	feed, err := f.social.Feed(ctx, u.ID, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{p2.ID, p1.ID}, postIDs(feed))

	feed, err = f.social.Feed(ctx, w.ID, models.Page{})
	require.NoError(t, err)
	assert.Len(t, feed, 1, "a user with no follows sees only their own posts")

	require.NoError(t, f.social.Unfollow(ctx, u.ID, v.ID))
	feed, err = f.social.Feed(ctx, u.ID, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{p1.ID}, postIDs(feed))
}

func TestFeed_Paging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.activeUser(t, "U", "u@x.io")

	start := f.clock.Now()
	var want []string
	for i := 0; i < 5; i++ {
		p := f.post(t, start, time.Duration(i)*time.Minute, u.ID, "post")
		want = append([]string{p.ID}, want...)
	}

	page1, err := f.social.Feed(ctx, u.ID, models.Page{Limit: 2})
	require.NoError(t, err)
	page2, err := f.social.Feed(ctx, u.ID, models.Page{Limit: 2, Offset: 2})
	require.NoError(t, err)
	page3, err := f.social.Feed(ctx, u.ID, models.Page{Limit: 2, Offset: 4})
	require.NoError(t, err)

	got := append(append(postIDs(page1), postIDs(page2)...), postIDs(page3)...)
	assert.Equal(t, want, got)
}

func TestCreatePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.activeUser(t, "U", "u@x.io")

	t.Run("markup is stripped", func(t *testing.T) {
		p, err := f.social.CreatePost(ctx, u.ID, PostParams{Content: "  <b>hello</b> <script>alert(1)</script>&amp; bye "})
		require.NoError(t, err)
		assert.Equal(t, "hello & bye", p.Content)
		assert.Equal(t, u.ID, p.UserID)
		assert.Len(t, p.ID, 26)
		assert.Equal(t, f.clock.Now(), p.CreatedAt)
	})

	t.Run("blank", func(t *testing.T) {
		_, err := f.social.CreatePost(ctx, u.ID, PostParams{Content: "<p> </p>"})
		assert.Equal(t, map[string][]string{"content": {validation.MsgBlank}}, fieldErrors(t, err))
	})

	t.Run("too long", func(t *testing.T) {
		_, err := f.social.CreatePost(ctx, u.ID, PostParams{Content: strings.Repeat("é", f.cfg.MicropostMaxLength+1)})
		assert.True(t, fieldErrorsHas(t, err, "content"))

		_, err = f.social.CreatePost(ctx, u.ID, PostParams{Content: strings.Repeat("é", f.cfg.MicropostMaxLength)})
		assert.NoError(t, err, "length is counted in characters")
	})

	t.Run("picture key", func(t *testing.T) {
		p, err := f.social.CreatePost(ctx, u.ID, PostParams{Content: "pic", PictureKey: PictureKeyPrefix(u.ID) + "2024/01/01/x"})
		require.NoError(t, err)
		assert.Equal(t, PictureKeyPrefix(u.ID)+"2024/01/01/x", p.PictureKey)

		_, err = f.social.CreatePost(ctx, u.ID, PostParams{Content: "pic", PictureKey: PictureKeyPrefix("someone-else") + "x"})
		assert.Equal(t, map[string][]string{"picture_key": {validation.MsgInvalid}}, fieldErrors(t, err))
	})

	t.Run("unknown author", func(t *testing.T) {
		_, err := f.social.CreatePost(ctx, "ghost", PostParams{Content: "boo"})
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}

func fieldErrorsHas(t *testing.T, err error, field string) bool {
	t.Helper()
	_, ok := fieldErrors(t, err)[field]
	return ok
}

func TestDeletePost(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*fixture, *models.User, *models.User, *models.Micropost) {
		f := newFixture(t)
		a := f.activeUser(t, "A", "a@x.io")
		b := f.activeUser(t, "B", "b@x.io")
		p, err := f.social.CreatePost(ctx, a.ID, PostParams{Content: "mine"})
		require.NoError(t, err)
		return f, a, b, p
	}

	t.Run("owner", func(t *testing.T) {
		f, a, _, p := setup(t)
		f.mock.ExpectBegin()
		f.mock.ExpectCommit()

		require.NoError(t, f.social.DeletePost(ctx, a.ID, p.ID))
		_, err := f.social.GetPost(ctx, p.ID)
		assert.ErrorIs(t, err, common.ErrorNotFound)
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("stranger", func(t *testing.T) {
		f, _, b, p := setup(t)
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()

		assert.ErrorIs(t, f.social.DeletePost(ctx, b.ID, p.ID), common.ErrorForbidden)
		_, err := f.social.GetPost(ctx, p.ID)
		assert.NoError(t, err)
		require.NoError(t, f.mock.ExpectationsWereMet())
	})

	t.Run("admin", func(t *testing.T) {
		f, _, b, p := setup(t)
		f.makeAdmin(b.ID)
		f.mock.ExpectBegin()
		f.mock.ExpectCommit()

		require.NoError(t, f.social.DeletePost(ctx, b.ID, p.ID))
	})

	t.Run("missing post", func(t *testing.T) {
		f, a, _, _ := setup(t)
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()

		assert.ErrorIs(t, f.social.DeletePost(ctx, a.ID, "nope"), common.ErrorNotFound)
	})
}

func TestProfileAndPostsByUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.activeUser(t, "A", "a@x.io")
	b := f.activeUser(t, "B", "b@x.io")
	c := f.activeUser(t, "C", "c@x.io")

	require.NoError(t, f.social.Follow(ctx, a.ID, b.ID))
	require.NoError(t, f.social.Follow(ctx, a.ID, c.ID))
	require.NoError(t, f.social.Follow(ctx, c.ID, a.ID))

	start := f.clock.Now()
	older := f.post(t, start, time.Second, a.ID, "one")
	newer := f.post(t, start, 2*time.Second, a.ID, "two")
	f.post(t, start, 3*time.Second, b.ID, "other")

	prof, err := f.social.Profile(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, prof.User.ID)
	assert.Equal(t, 2, prof.Following)
	assert.Equal(t, 1, prof.Followers)
	assert.Equal(t, 2, prof.Microposts)

	posts, err := f.social.PostsByUser(ctx, a.ID, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{newer.ID, older.ID}, postIDs(posts))

	_, err = f.social.Profile(ctx, "ghost")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}
