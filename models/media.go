package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
)

// ParseMediaKind accepts the values stored in the media_type column
func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(s) {
	case MediaPhoto, MediaVideo:
		return MediaKind(s), nil
	}
	return "", fmt.Errorf("unknown media kind %q", s)
}

// Attachment is a resolved upstream attachment. Implemented by Photo and Video only.
type Attachment interface {
	Kind() MediaKind
	URL() string
	attachment()
}

type Photo struct {
	Url string
}

func (p Photo) Kind() MediaKind { return MediaPhoto }
func (p Photo) URL() string     { return p.Url }
func (Photo) attachment()       {}

type Video struct {
	Url string
}

func (v Video) Kind() MediaKind { return MediaVideo }
func (v Video) URL() string     { return v.Url }
func (Video) attachment()       {}

// MediaIDs is an ordered set of media ids, stored comma-joined
type MediaIDs []int64

// ParseMediaIDs decodes a comma-joined id list. Fragments that are not
// numbers are skipped, duplicates keep their first position.
func ParseMediaIDs(s string) MediaIDs {
	ids := MediaIDs{}
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return lo.Uniq(ids)
}

func (ids MediaIDs) String() string {
	return strings.Join(lo.Map(ids, func(id int64, _ int) string {
		return strconv.FormatInt(id, 10)
	}), ",")
}

// Without removes excluded ids, keeping the order of the rest
func (ids MediaIDs) Without(excluded []int64) MediaIDs {
	return lo.Filter(ids, func(id int64, _ int) bool {
		return !lo.Contains(excluded, id)
	})
}

func (ids MediaIDs) MarshalJSON() ([]byte, error) {
	return json.Marshal(ids.String())
}
