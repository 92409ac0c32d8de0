package feeds_test

import (
	"context"
	"nofuture/db"
	"nofuture/feeds"
	"nofuture/models"
	"nofuture/twitter"
	"path/filepath"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	profiles map[string]models.AuthorProfile
}

func (f *fakeSource) FetchAuthor(ctx context.Context, platformID int64) (models.AuthorProfile, error) {
	for _, p := range f.profiles {
		if p.PlatformId == platformID {
			return p, nil
		}
	}
	return models.AuthorProfile{}, twitter.ErrNotFound
}

func (f *fakeSource) FetchAuthorByHandle(ctx context.Context, handle string) (models.AuthorProfile, error) {
	if p, ok := f.profiles[handle]; ok {
		return p, nil
	}
	return models.AuthorProfile{}, twitter.ErrNotFound
}

func newService(t *testing.T) (*feeds.Service, *db.DB) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "feeds.db")
	require.NoError(t, db.Migrate(dsn))
	store, err := db.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	source := &fakeSource{profiles: map[string]models.AuthorProfile{
		"gopher": {PlatformId: 42, Name: "Gopher", Username: "gopher"},
	}}
	return feeds.NewService(store, source), store
}

func seedPost(t *testing.T, store *db.DB, authorID int64, platformID int64, attachments ...models.Attachment) (models.Post, []int64) {
	t.Helper()
	ctx := context.Background()
	post, created, err := store.InsertPost(ctx, models.Post{
		PlatformId: platformID, AuthorId: authorID, Text: "original text",
		SourceUrl: "https://twitter.com/gopher/status/1", SourceText: "Gopher",
	}, attachments)
	require.NoError(t, err)
	require.True(t, created)

	media, err := store.ListPostMedia(ctx, post.Id)
	require.NoError(t, err)
	return post, lo.Map(media, func(m models.Media, _ int) int64 { return m.Id })
}

func TestCreateScheduledPostExcludesMedia(t *testing.T) {
	ctx := context.Background()
	service, store := newService(t)

	author, err := service.Track(ctx, "gopher")
	require.NoError(t, err)
	post, ids := seedPost(t, store, author.Id, 1, models.Photo{Url: "a"}, models.Photo{Url: "b"}, models.Photo{Url: "c"})
	require.Len(t, ids, 3)

	scheduled, err := service.CreateScheduledPost(ctx, 100, post.Id, nil, []int64{ids[1]})
	require.NoError(t, err)
	assert.Equal(t, models.MediaIDs{ids[0], ids[2]}.String(), scheduled.MediaIds.String())
	assert.Equal(t, "original text", scheduled.PostText)
	assert.Equal(t, "Gopher", scheduled.PostSource)
	assert.Equal(t, post.SourceUrl, scheduled.PostSourceUrl)

	override := "my own words"
	scheduled, err = service.CreateScheduledPost(ctx, 100, post.Id, &override, nil)
	require.NoError(t, err)
	assert.Equal(t, "my own words", scheduled.PostText)

	views, err := service.ScheduledPosts(ctx, 100)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Len(t, views[0].Media, 2)
	assert.Len(t, views[1].Media, 3)

	require.NoError(t, service.CancelScheduledPost(ctx, 100, views[0].Id))
	assert.ErrorIs(t, service.CancelScheduledPost(ctx, 100, views[0].Id), feeds.ErrScheduledNotFound)
}

func TestCreateScheduledPostValidation(t *testing.T) {
	ctx := context.Background()
	service, _ := newService(t)

	_, err := service.CreateScheduledPost(ctx, 1, 999, nil, nil)
	assert.ErrorIs(t, err, feeds.ErrPostNotFound)

	_, err = service.CreateScheduledPost(ctx, 1, 999, nil, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	assert.ErrorIs(t, err, feeds.ErrTooManyExcluded)
}

func TestResolveAuthorRefs(t *testing.T) {
	ctx := context.Background()
	service, _ := newService(t)

	author, err := service.Track(ctx, "@gopher")
	require.NoError(t, err)

	tests := []struct {
		name string
		ref  string
	}{
		{name: "platform id", ref: "42"},
		{name: "internal id", ref: "-1"},
		{name: "handle", ref: "gopher"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := service.ResolveAuthor(ctx, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, author.Id, got.Id)
		})
	}

	_, err = service.ResolveAuthor(ctx, "nobody")
	assert.ErrorIs(t, err, feeds.ErrAuthorNotFound)
	_, err = service.Track(ctx, "nobody")
	assert.ErrorIs(t, err, feeds.ErrAuthorNotFound)
}

func TestTrackAuthorRequiresModerator(t *testing.T) {
	ctx := context.Background()
	service, store := newService(t)

	_, err := service.TrackAuthor(ctx, 5, "gopher")
	assert.ErrorIs(t, err, feeds.ErrSubscriberNotFound)

	_, err = service.Register(ctx, 5)
	require.NoError(t, err)
	_, err = service.TrackAuthor(ctx, 5, "gopher")
	assert.ErrorIs(t, err, feeds.ErrForbidden)

	require.NoError(t, store.SetPowerLevel(ctx, 5, models.PowerMod))
	author, err := service.TrackAuthor(ctx, 5, "gopher")
	require.NoError(t, err)
	assert.Equal(t, int64(42), author.PlatformId)
}

func TestFeedAndMarkRead(t *testing.T) {
	ctx := context.Background()
	service, store := newService(t)

	author, err := service.Track(ctx, "gopher")
	require.NoError(t, err)
	_, err = service.Follow(ctx, 7, "gopher")
	require.NoError(t, err)

	for _, platformID := range []int64{30, 10, 20} {
		seedPost(t, store, author.Id, platformID)
	}

	feed, err := service.Feed(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, lo.Map(feed.Feed, func(p models.PostWithMedia, _ int) int64 { return p.Post.PlatformId }))
	require.NotNil(t, feed.Cursor)

	require.NoError(t, service.MarkRead(ctx, 7, *feed.Cursor))
	feed, err = service.Feed(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, feed.Feed)
	assert.Nil(t, feed.Cursor)

	ok, err := service.Unfollow(ctx, 7, "gopher")
	require.NoError(t, err)
	assert.True(t, ok)
	authors, err := service.FollowedAuthors(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, authors)
}

func TestFeedPagesThroughBacklog(t *testing.T) {
	ctx := context.Background()
	service, store := newService(t)

	author, err := service.Track(ctx, "gopher")
	require.NoError(t, err)
	_, err = service.Follow(ctx, 7, "gopher")
	require.NoError(t, err)

	for platformID := int64(1); platformID <= 20; platformID++ {
		seedPost(t, store, author.Id, platformID)
	}

	var pages [][]int64
	for {
		feed, err := service.Feed(ctx, 7)
		require.NoError(t, err)
		if feed.Cursor == nil {
			break
		}
		pages = append(pages, lo.Map(feed.Feed, func(p models.PostWithMedia, _ int) int64 { return p.Post.PlatformId }))
		require.NoError(t, service.MarkRead(ctx, 7, *feed.Cursor))
		require.LessOrEqual(t, len(pages), 3, "feed never drains")
	}

	require.Len(t, pages, 2)
	assert.Len(t, pages[0], feeds.PostsPerAuthor)
	assert.Equal(t, int64(1), pages[0][0], "oldest unread post comes first")
	assert.Equal(t, lo.RangeFrom(int64(1), 20), lo.Flatten(pages), "every post is shown exactly once")
}

func TestLinkChannelAndUnregister(t *testing.T) {
	ctx := context.Background()
	service, _ := newService(t)

	channel := int64(-100)
	require.NoError(t, service.LinkChannel(ctx, 9, &channel))

	subscriber, err := service.Subscriber(ctx, 9)
	require.NoError(t, err)
	require.NotNil(t, subscriber.Channel)
	assert.Equal(t, channel, *subscriber.Channel)

	require.NoError(t, service.Unregister(ctx, 9))
	assert.ErrorIs(t, service.Unregister(ctx, 9), feeds.ErrSubscriberNotFound)
}

func TestSafeParseCursor(t *testing.T) {
	assert.Equal(t, int64(12), feeds.SafeParseCursor("12"))
	assert.Equal(t, int64(0), feeds.SafeParseCursor("garbage"))
}
