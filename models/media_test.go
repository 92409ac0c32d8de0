package models_test

import (
	"nofuture/models"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMediaIDs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected models.MediaIDs
	}{
		{
			name:     "empty string",
			input:    "",
			expected: models.MediaIDs{},
		},
		{
			name:     "single id",
			input:    "42",
			expected: models.MediaIDs{42},
		},
		{
			name:     "keeps selection order",
			input:    "9,5,7",
			expected: models.MediaIDs{9, 5, 7},
		},
		{
			name:     "skips garbage",
			input:    "5,,abc,9",
			expected: models.MediaIDs{5, 9},
		},
		{
			name:     "drops duplicates",
			input:    "5,9,5",
			expected: models.MediaIDs{5, 9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, models.ParseMediaIDs(tt.input))
		})
	}
}

func TestMediaIDsWithout(t *testing.T) {
	ids := models.MediaIDs{5, 7, 9}

	assert.Equal(t, "5,9", ids.Without([]int64{7}).String())
	assert.Equal(t, "5,7,9", ids.Without(nil).String())
	assert.Equal(t, "", ids.Without([]int64{5, 7, 9}).String())
}

func TestAttachmentKinds(t *testing.T) {
	var a models.Attachment = models.Photo{Url: "https://pbs.example/a.jpg"}
	assert.Equal(t, models.MediaPhoto, a.Kind())
	assert.Equal(t, "https://pbs.example/a.jpg", a.URL())

	a = models.Video{Url: "https://video.example/b.mp4"}
	assert.Equal(t, models.MediaVideo, a.Kind())
	assert.Equal(t, "https://video.example/b.mp4", a.URL())
}

func TestParseMediaKind(t *testing.T) {
	kind, err := models.ParseMediaKind("video")
	assert.NoError(t, err)
	assert.Equal(t, models.MediaVideo, kind)

	_, err = models.ParseMediaKind("gif")
	assert.Error(t, err)
}
