package telegram

import (
	"context"
	"errors"
	"fmt"
	"nofuture/models"
	"time"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/samber/lo"
)

// RateLimitError is returned when the chat platform asks us to slow down
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// Sender delivers rendered posts to chat channels
type Sender struct {
	bot *tgbot.Bot
}

func NewSender(token string, opts ...tgbot.Option) (*Sender, error) {
	opts = append([]tgbot.Option{tgbot.WithSkipGetMe()}, opts...)
	bot, err := tgbot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &Sender{bot: bot}, nil
}

func (s *Sender) SendText(ctx context.Context, chatID int64, html string) error {
	_, err := s.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    chatID,
		Text:      html,
		ParseMode: tgmodels.ParseModeHTML,
	})
	return translate(err)
}

// SendMediaGroup sends the media as one album with caption on the first item.
// A single item is sent as a plain photo or video since albums need two.
func (s *Sender) SendMediaGroup(ctx context.Context, chatID int64, caption string, media []models.Media) error {
	if len(media) == 0 {
		return s.SendText(ctx, chatID, caption)
	}

	if len(media) == 1 {
		var err error
		switch media[0].Kind {
		case models.MediaVideo:
			_, err = s.bot.SendVideo(ctx, &tgbot.SendVideoParams{
				ChatID:    chatID,
				Video:     &tgmodels.InputFileString{Data: media[0].Url},
				Caption:   caption,
				ParseMode: tgmodels.ParseModeHTML,
			})
		default:
			_, err = s.bot.SendPhoto(ctx, &tgbot.SendPhotoParams{
				ChatID:    chatID,
				Photo:     &tgmodels.InputFileString{Data: media[0].Url},
				Caption:   caption,
				ParseMode: tgmodels.ParseModeHTML,
			})
		}
		return translate(err)
	}

	_, err := s.bot.SendMediaGroup(ctx, &tgbot.SendMediaGroupParams{
		ChatID: chatID,
		Media:  BuildMediaGroup(caption, media),
	})
	return translate(err)
}

// BuildMediaGroup maps media rows to album items referenced by URL. Only the
// first item carries the caption and parse mode.
func BuildMediaGroup(caption string, media []models.Media) []tgmodels.InputMedia {
	return lo.Map(media, func(m models.Media, i int) tgmodels.InputMedia {
		var itemCaption string
		var parseMode tgmodels.ParseMode
		if i == 0 {
			itemCaption, parseMode = caption, tgmodels.ParseModeHTML
		}

		if m.Kind == models.MediaVideo {
			return &tgmodels.InputMediaVideo{Media: m.Url, Caption: itemCaption, ParseMode: parseMode}
		}
		return &tgmodels.InputMediaPhoto{Media: m.Url, Caption: itemCaption, ParseMode: parseMode}
	})
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var tooMany *tgbot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return &RateLimitError{RetryAfter: time.Duration(tooMany.RetryAfter) * time.Second, Err: err}
	}
	return err
}
