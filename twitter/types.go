package twitter

import (
	"nofuture/models"
	"strings"
)

// Wire types of the v2 API. Only the fields we request are mapped.

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

func (e apiError) notFound() bool {
	return strings.HasSuffix(e.Type, "/resource-not-found")
}

type apiUser struct {
	Id              string  `json:"id"`
	Name            string  `json:"name"`
	Username        string  `json:"username"`
	ProfileImageUrl *string `json:"profile_image_url"`
}

type userResponse struct {
	Data   *apiUser   `json:"data"`
	Errors []apiError `json:"errors"`
}

type apiTweet struct {
	Id          string `json:"id"`
	Text        string `json:"text"`
	AuthorId    string `json:"author_id"`
	Attachments *struct {
		MediaKeys []string `json:"media_keys"`
	} `json:"attachments"`
}

type apiVariant struct {
	BitRate     *int64 `json:"bit_rate"`
	ContentType string `json:"content_type"`
	Url         string `json:"url"`
}

type apiMedia struct {
	MediaKey string       `json:"media_key"`
	Type     string       `json:"type"`
	Url      *string      `json:"url"`
	Variants []apiVariant `json:"variants"`
}

type timelineResponse struct {
	Data     []apiTweet `json:"data"`
	Includes struct {
		Media []apiMedia `json:"media"`
		Users []apiUser  `json:"users"`
	} `json:"includes"`
	Errors []apiError `json:"errors"`
}

// RawPost is a timeline entry with its attachments resolved
type RawPost struct {
	PlatformId int64
	Text       string
	Media      []models.Attachment
	Author     models.AuthorProfile
}
