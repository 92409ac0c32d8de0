package workers_test

import (
	"context"
	"errors"
	"nofuture/db"
	"nofuture/models"
	"nofuture/telegram"
	"nofuture/twitter"
	"nofuture/workers"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *db.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "workers.db")
	require.NoError(t, db.Migrate(dsn))
	store, err := db.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

type fakeSource struct {
	mu       sync.Mutex
	timeline map[int64][]twitter.RawPost
	errs     map[int64]error
	since    map[int64][]*int64
}

func (f *fakeSource) FetchTimeline(ctx context.Context, authorID int64, sinceID *int64) ([]twitter.RawPost, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.since == nil {
		f.since = map[int64][]*int64{}
	}
	f.since[authorID] = append(f.since[authorID], sinceID)

	if err := f.errs[authorID]; err != nil {
		return nil, err
	}
	// Behave like an upstream that ignores since_id
	return f.timeline[authorID], nil
}

type sentMessage struct {
	chatID int64
	body   string
	media  []models.Media
}

type fakeMessenger struct {
	sent   []sentMessage
	errs   []error
	onSend func()
}

func (f *fakeMessenger) next() error {
	if f.onSend != nil {
		f.onSend()
	}
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeMessenger) SendText(ctx context.Context, chatID int64, html string) error {
	f.sent = append(f.sent, sentMessage{chatID: chatID, body: html})
	return f.next()
}

func (f *fakeMessenger) SendMediaGroup(ctx context.Context, chatID int64, caption string, media []models.Media) error {
	f.sent = append(f.sent, sentMessage{chatID: chatID, body: caption, media: media})
	return f.next()
}

func TestIngesterPass(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	good, err := store.UpsertAuthor(ctx, models.AuthorProfile{PlatformId: 10, Name: "Good Author", Username: "good"})
	require.NoError(t, err)
	_, err = store.UpsertAuthor(ctx, models.AuthorProfile{PlatformId: 20, Name: "Broken", Username: "broken"})
	require.NoError(t, err)

	profile := models.AuthorProfile{PlatformId: 10, Name: "Good Author", Username: "good"}
	source := &fakeSource{
		timeline: map[int64][]twitter.RawPost{
			10: {
				{PlatformId: 105, Text: "newest", Author: profile, Media: []models.Attachment{models.Photo{Url: "p.jpg"}}},
				{PlatformId: 101, Text: "older", Author: profile},
			},
		},
		errs: map[int64]error{20: twitter.ErrTransport},
	}

	ingester := workers.NewIngester(store, source, time.Minute)
	require.NoError(t, ingester.Pass(ctx))

	cursor, ok, err := store.LatestPostPlatformID(ctx, good.Id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(105), cursor)
	assert.Nil(t, source.since[10][0], "first pass has no cursor")

	posts, err := store.RecentPosts(ctx, good.Id, 10)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "https://twitter.com/good/status/105", posts[0].SourceUrl)
	assert.Equal(t, "Good Author", posts[0].SourceText)

	media, err := store.ListPostMedia(ctx, posts[0].Id)
	require.NoError(t, err)
	assert.Len(t, media, 1)

	// Second pass re-reads the cursor from the store and does not duplicate
	require.NoError(t, ingester.Pass(ctx))
	require.Len(t, source.since[10], 2)
	require.NotNil(t, source.since[10][1])
	assert.Equal(t, int64(105), *source.since[10][1])

	posts, err = store.RecentPosts(ctx, good.Id, 10)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
}

func seedSubscriber(t *testing.T, store *db.DB, id int64, channel *int64) {
	t.Helper()
	ctx := context.Background()
	_, err := store.EnsureSubscriber(ctx, id)
	require.NoError(t, err)
	if channel != nil {
		require.NoError(t, store.SetSubscriberChannel(ctx, id, channel))
	}
}

func TestPublisherRemovesEntryWhateverTheOutcome(t *testing.T) {
	tests := []struct {
		name    string
		sendErr error
	}{
		{name: "delivered", sendErr: nil},
		{name: "delivery failed", sendErr: errors.New("chat not found")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := openStore(t)
			channel := int64(-100500)
			seedSubscriber(t, store, 1, &channel)

			_, err := store.CreateScheduledPost(ctx, models.ScheduledPost{
				UserId: 1, MediaIds: models.MediaIDs{}, PostText: "a < b", PostSource: "Src & Co", PostSourceUrl: "https://twitter.com/x/status/1",
			})
			require.NoError(t, err)

			messenger := &fakeMessenger{errs: []error{tt.sendErr}}
			require.NoError(t, workers.NewPublisher(store, messenger, time.Minute).Pass(ctx))

			require.Len(t, messenger.sent, 1)
			assert.Equal(t, channel, messenger.sent[0].chatID)
			assert.Equal(t, "a &lt; b\n\n<b><a href=\"https://twitter.com/x/status/1\">Src &amp; Co</a></b>", messenger.sent[0].body)
			assert.Nil(t, messenger.sent[0].media)

			remaining, err := store.ListScheduledWithSubscribers(ctx)
			require.NoError(t, err)
			assert.Empty(t, remaining)
		})
	}
}

func TestPublisherRemovesAttemptedEntriesWhenCancelled(t *testing.T) {
	store := openStore(t)
	channel := int64(-1)
	seedSubscriber(t, store, 1, &channel)

	for _, text := range []string{"first", "second"} {
		_, err := store.CreateScheduledPost(context.Background(), models.ScheduledPost{UserId: 1, PostText: text})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messenger := &fakeMessenger{onSend: cancel}

	err := workers.NewPublisher(store, messenger, time.Minute).Pass(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, messenger.sent, 1)

	remaining, err := store.ListScheduledWithSubscribers(context.Background())
	require.NoError(t, err)
	require.Len(t, remaining, 1, "only the attempted entry is removed")
	assert.Equal(t, "second", remaining[0].Post.PostText)
}

func TestPublisherRateLimitPausesAndContinues(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	channel := int64(-1)
	seedSubscriber(t, store, 1, &channel)

	for _, text := range []string{"first", "second"} {
		_, err := store.CreateScheduledPost(ctx, models.ScheduledPost{UserId: 1, PostText: text})
		require.NoError(t, err)
	}

	messenger := &fakeMessenger{errs: []error{&telegram.RateLimitError{RetryAfter: 10 * time.Millisecond}}}
	start := time.Now()
	require.NoError(t, workers.NewPublisher(store, messenger, time.Minute).Pass(ctx))

	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	require.Len(t, messenger.sent, 2, "the pass carries on after the pause")

	remaining, err := store.ListScheduledWithSubscribers(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestPublisherSkipsUndeliverable(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	seedSubscriber(t, store, 1, nil)

	_, err := store.CreateScheduledPost(ctx, models.ScheduledPost{UserId: 1, PostText: "no channel"})
	require.NoError(t, err)
	_, err = store.CreateScheduledPost(ctx, models.ScheduledPost{UserId: 2, PostText: "no subscriber"})
	require.NoError(t, err)

	messenger := &fakeMessenger{}
	require.NoError(t, workers.NewPublisher(store, messenger, time.Minute).Pass(ctx))

	assert.Empty(t, messenger.sent)
	remaining, err := store.ListScheduledWithSubscribers(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)
}

func TestPublisherSendsMediaInSelectionOrder(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	channel := int64(-7)
	seedSubscriber(t, store, 1, &channel)

	author, err := store.UpsertAuthor(ctx, models.AuthorProfile{PlatformId: 1, Name: "n", Username: "u"})
	require.NoError(t, err)
	post, _, err := store.InsertPost(ctx, models.Post{PlatformId: 1, AuthorId: author.Id}, []models.Attachment{
		models.Photo{Url: "first.jpg"}, models.Video{Url: "second.mp4"},
	})
	require.NoError(t, err)
	media, err := store.ListPostMedia(ctx, post.Id)
	require.NoError(t, err)

	_, err = store.CreateScheduledPost(ctx, models.ScheduledPost{
		UserId: 1, MediaIds: models.MediaIDs{media[1].Id, media[0].Id}, PostText: "album",
	})
	require.NoError(t, err)

	messenger := &fakeMessenger{}
	require.NoError(t, workers.NewPublisher(store, messenger, time.Minute).Pass(ctx))

	require.Len(t, messenger.sent, 1)
	assert.Equal(t, []string{"second.mp4", "first.jpg"}, lo.Map(messenger.sent[0].media, func(m models.Media, _ int) string { return m.Url }))
	assert.Equal(t, workers.RenderMessage("album", "", ""), messenger.sent[0].body)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 2)
	go func() { done <- workers.NewIngester(store, &fakeSource{}, time.Hour).Run(ctx) }()
	go func() { done <- workers.NewPublisher(store, &fakeMessenger{}, time.Hour).Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop")
		}
	}
}

func TestEscapeHTML(t *testing.T) {
	assert.Equal(t, "&lt;b&gt;Tom &amp; Jerry&lt;/b&gt; \"quoted\"", workers.EscapeHTML("<b>Tom & Jerry</b> \"quoted\""))
}
