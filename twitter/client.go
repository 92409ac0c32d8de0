package twitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"nofuture/models"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const DefaultBaseURL = "https://api.twitter.com"

var (
	// ErrTransport is a network or HTTP failure, safe to retry later
	ErrTransport = errors.New("transport error")
	// ErrNotFound means the requested author does not exist upstream
	ErrNotFound = errors.New("not found")
	// ErrUpstreamFormat means the response did not have the expected shape
	ErrUpstreamFormat = errors.New("unexpected upstream response")
)

type Client struct {
	token      string
	baseURL    string
	http       *http.Client
	maxResults int
	maxRetries uint64
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.http = client }
}

// WithMaxResults sets how many posts a timeline request asks for (5 to 100)
func WithMaxResults(n int) Option {
	return func(c *Client) { c.maxResults = n }
}

// WithMaxRetries bounds the retries of transport failures within one call
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:      token,
		baseURL:    DefaultBaseURL,
		http:       &http.Client{Timeout: 30 * time.Second},
		maxResults: 5,
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAuthor resolves the profile of the author with the given platform id
func (c *Client) FetchAuthor(ctx context.Context, platformID int64) (models.AuthorProfile, error) {
	return c.fetchUser(ctx, "/2/users/"+strconv.FormatInt(platformID, 10))
}

func (c *Client) FetchAuthorByHandle(ctx context.Context, handle string) (models.AuthorProfile, error) {
	return c.fetchUser(ctx, "/2/users/by/username/"+url.PathEscape(handle))
}

func (c *Client) fetchUser(ctx context.Context, path string) (models.AuthorProfile, error) {
	var resp userResponse
	if err := c.get(ctx, path, url.Values{"user.fields": {"profile_image_url"}}, &resp); err != nil {
		return models.AuthorProfile{}, err
	}

	if resp.Data == nil {
		return models.AuthorProfile{}, payloadError(resp.Errors)
	}
	return toProfile(*resp.Data)
}

// FetchTimeline returns the author's posts newer than sinceID, without
// replies and reposts, in the order the upstream returned them.
func (c *Client) FetchTimeline(ctx context.Context, authorID int64, sinceID *int64) ([]RawPost, error) {
	query := url.Values{
		"exclude":      {"replies,retweets"},
		"tweet.fields": {"attachments,author_id"},
		"expansions":   {"attachments.media_keys,author_id"},
		"media.fields": {"type,url,variants"},
		"max_results":  {strconv.Itoa(c.maxResults)},
	}
	if sinceID != nil {
		query.Set("since_id", strconv.FormatInt(*sinceID, 10))
	}

	var resp timelineResponse
	if err := c.get(ctx, "/2/users/"+strconv.FormatInt(authorID, 10)+"/tweets", query, &resp); err != nil {
		return nil, err
	}

	if resp.Data == nil && len(resp.Errors) > 0 {
		return nil, payloadError(resp.Errors)
	}

	media := lo.KeyBy(resp.Includes.Media, func(m apiMedia) string { return m.MediaKey })
	users := lo.KeyBy(resp.Includes.Users, func(u apiUser) string { return u.Id })

	posts := make([]RawPost, 0, len(resp.Data))
	for _, tweet := range resp.Data {
		// The upstream is expected to honour since_id, but not trusted to
		if id, err := strconv.ParseInt(tweet.Id, 10, 64); err == nil && sinceID != nil && id <= *sinceID {
			log.WithFields(log.Fields{
				"platformId": id,
				"sinceId":    *sinceID,
			}).Debug("Dropping post at or below cursor")
			continue
		}

		post, err := toRawPost(tweet, media, users)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func toRawPost(tweet apiTweet, media map[string]apiMedia, users map[string]apiUser) (RawPost, error) {
	id, err := strconv.ParseInt(tweet.Id, 10, 64)
	if err != nil {
		return RawPost{}, fmt.Errorf("%w: post id %q", ErrUpstreamFormat, tweet.Id)
	}

	user, ok := users[tweet.AuthorId]
	if !ok {
		return RawPost{}, fmt.Errorf("%w: author %q of post %d not included", ErrUpstreamFormat, tweet.AuthorId, id)
	}
	author, err := toProfile(user)
	if err != nil {
		return RawPost{}, err
	}

	var attachments []models.Attachment
	if tweet.Attachments != nil {
		for _, key := range tweet.Attachments.MediaKeys {
			m, ok := media[key]
			if !ok {
				return RawPost{}, fmt.Errorf("%w: media %q of post %d not included", ErrUpstreamFormat, key, id)
			}
			attachment, err := resolveMedia(m)
			if err != nil {
				return RawPost{}, err
			}
			attachments = append(attachments, attachment)
		}
	}

	return RawPost{
		PlatformId: id,
		Text:       Sanitize(tweet.Text, len(attachments)),
		Media:      attachments,
		Author:     author,
	}, nil
}

func toProfile(user apiUser) (models.AuthorProfile, error) {
	id, err := strconv.ParseInt(user.Id, 10, 64)
	if err != nil {
		return models.AuthorProfile{}, fmt.Errorf("%w: user id %q", ErrUpstreamFormat, user.Id)
	}
	return models.AuthorProfile{
		PlatformId: id,
		Name:       user.Name,
		Username:   user.Username,
		AvatarUrl:  user.ProfileImageUrl,
	}, nil
}

func payloadError(errs []apiError) error {
	if len(errs) == 0 {
		return fmt.Errorf("%w: empty response", ErrUpstreamFormat)
	}
	if lo.SomeBy(errs, apiError.notFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, errs[0].Detail)
	}
	return fmt.Errorf("%w: %s", ErrUpstreamFormat, errs[0].Title)
}

// get performs an authenticated GET and decodes the JSON body into out.
// Transport failures are retried with exponential backoff.
func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path + "?" + query.Encode()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second

	attempt := 0
	operation := func() error {
		attempt++
		err := c.do(ctx, endpoint, out)
		if err != nil && !errors.Is(err, ErrTransport) {
			return backoff.Permanent(err)
		}
		if err != nil {
			log.WithFields(log.Fields{
				"path":    path,
				"attempt": attempt,
				"error":   err,
			}).Debug("Feed source request failed")
		}
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx))
}

func (c *Client) do(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", ErrNotFound, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
	case resp.StatusCode >= 400:
		// Credentials and request errors do not get better on retry
		return backoff.Permanent(fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading body: %v", ErrTransport, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamFormat, err)
	}
	return nil
}
