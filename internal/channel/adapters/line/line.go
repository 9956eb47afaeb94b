// Package line maps the LINE Messaging API onto the channel ports.
package line

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/winson8942-oss/line-drive-bot/internal/channel"
	"github.com/winson8942-oss/line-drive-bot/internal/channel/adapters/adapterutil"
	"github.com/winson8942-oss/line-drive-bot/internal/config"
)

// maxTextRunes is the Messaging API limit for a single text message.
const maxTextRunes = 5000

// ErrNotConfigured is returned when the channel secret or access token is missing.
var ErrNotConfigured = errors.New("line channel credentials not configured")

// Adapter implements channel.EventParser, channel.Notifier, channel.ContentFetcher and
// channel.Directory on top of the LINE SDK.
type Adapter struct {
	logger *slog.Logger
	secret string
	api    *messaging_api.MessagingApiAPI
	blob   *messaging_api.MessagingApiBlobAPI
}

// NewAdapter builds the SDK clients from cfg.
func NewAdapter(log *slog.Logger, cfg config.LineConfig) (*Adapter, error) {
	if log == nil {
		log = slog.Default()
	}
	secret := strings.TrimSpace(cfg.ChannelSecret)
	token := strings.TrimSpace(cfg.ChannelToken)
	if secret == "" || token == "" {
		return nil, ErrNotConfigured
	}
	api, err := messaging_api.NewMessagingApiAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create messaging api client: %w", err)
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create messaging blob client: %w", err)
	}
	return &Adapter{
		logger: log.With(slog.String("adapter", "line")),
		secret: secret,
		api:    api,
		blob:   blob,
	}, nil
}

// ParseRequest verifies the x-line-signature header and normalizes the payload.
func (a *Adapter) ParseRequest(r *http.Request) ([]channel.Event, error) {
	return parseRequest(a.logger, a.secret, r)
}

func parseRequest(log *slog.Logger, secret string, r *http.Request) ([]channel.Event, error) {
	cb, err := webhook.ParseRequest(secret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			return nil, channel.ErrInvalidSignature
		}
		return nil, fmt.Errorf("parse webhook: %w", err)
	}
	events := make([]channel.Event, 0, len(cb.Events))
	for _, raw := range cb.Events {
		ev, ok := mapEvent(raw)
		if !ok {
			continue
		}
		if log != nil {
			log.Debug("inbound event",
				slog.String("event_id", ev.ID),
				slog.String("type", string(ev.Type)),
				slog.String("message_kind", string(ev.Message.Kind)),
				slog.String("conversation", ev.Source.ConversationKey()),
				slog.String("text", adapterutil.SummarizeText(ev.Message.Text)),
			)
		}
		events = append(events, ev)
	}
	return events, nil
}

func mapEvent(raw webhook.EventInterface) (channel.Event, bool) {
	switch e := raw.(type) {
	case webhook.MessageEvent:
		ev := channel.Event{
			ID:          e.WebhookEventId,
			Type:        channel.EventMessage,
			Message:     mapMessage(e.Message),
			Source:      mapSource(e.Source),
			ReplyHandle: e.ReplyToken,
			ReceivedAt:  eventTime(e.Timestamp),
		}
		if e.DeliveryContext != nil {
			ev.Redelivery = e.DeliveryContext.IsRedelivery
		}
		return ev, true
	case webhook.FollowEvent:
		return channel.Event{
			ID:          e.WebhookEventId,
			Type:        channel.EventFollow,
			Source:      mapSource(e.Source),
			ReplyHandle: e.ReplyToken,
			ReceivedAt:  eventTime(e.Timestamp),
		}, true
	case webhook.JoinEvent:
		return channel.Event{
			ID:          e.WebhookEventId,
			Type:        channel.EventJoin,
			Source:      mapSource(e.Source),
			ReplyHandle: e.ReplyToken,
			ReceivedAt:  eventTime(e.Timestamp),
		}, true
	default:
		return channel.Event{}, false
	}
}

func mapMessage(raw webhook.MessageContentInterface) channel.Message {
	switch m := raw.(type) {
	case webhook.TextMessageContent:
		return channel.Message{Kind: channel.MessageText, ID: m.Id, Text: m.Text}
	case webhook.ImageMessageContent:
		return channel.Message{Kind: channel.MessageImage, ID: m.Id}
	case webhook.VideoMessageContent:
		return channel.Message{Kind: channel.MessageVideo, ID: m.Id}
	case webhook.AudioMessageContent:
		return channel.Message{Kind: channel.MessageAudio, ID: m.Id}
	case webhook.FileMessageContent:
		return channel.Message{Kind: channel.MessageFile, ID: m.Id, FileName: m.FileName}
	default:
		return channel.Message{Kind: channel.MessageOther}
	}
}

func mapSource(raw webhook.SourceInterface) channel.Source {
	switch s := raw.(type) {
	case webhook.UserSource:
		return channel.Source{Kind: channel.SourceUser, UserID: s.UserId}
	case webhook.GroupSource:
		return channel.Source{Kind: channel.SourceGroup, GroupID: s.GroupId, UserID: s.UserId}
	case webhook.RoomSource:
		return channel.Source{Kind: channel.SourceRoom, RoomID: s.RoomId, UserID: s.UserId}
	default:
		return channel.Source{}
	}
}

func eventTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(ms).UTC()
}

// Reply answers with a single text message using a reply token.
func (a *Adapter) Reply(ctx context.Context, replyToken, text string) error {
	_, err := a.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   textMessages(text),
	})
	if err != nil {
		a.logger.Warn("reply failed", slog.Any("error", err))
		return fmt.Errorf("reply message: %w", err)
	}
	return nil
}

// Push sends a text message to a user, group or room id.
func (a *Adapter) Push(ctx context.Context, to, text string) error {
	_, err := a.api.WithContext(ctx).PushMessage(&messaging_api.PushMessageRequest{
		To:       to,
		Messages: textMessages(text),
	}, "")
	if err != nil {
		a.logger.Warn("push failed", slog.String("to", to), slog.Any("error", err))
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

// FetchContent streams message content. The caller closes the reader.
func (a *Adapter) FetchContent(ctx context.Context, messageID string) (io.ReadCloser, error) {
	resp, err := a.blob.WithContext(ctx).GetMessageContent(messageID)
	if err != nil {
		return nil, fmt.Errorf("get message content %s: %w", messageID, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("get message content %s: unexpected status %d", messageID, resp.StatusCode)
	}
	return resp.Body, nil
}

// UserDisplayName returns the profile name of a user who has added the bot.
func (a *Adapter) UserDisplayName(ctx context.Context, userID string) (string, error) {
	profile, err := a.api.WithContext(ctx).GetProfile(userID)
	if err != nil {
		return "", fmt.Errorf("get profile: %w", err)
	}
	return strings.TrimSpace(profile.DisplayName), nil
}

// GroupName returns the group's display name.
func (a *Adapter) GroupName(ctx context.Context, groupID string) (string, error) {
	summary, err := a.api.WithContext(ctx).GetGroupSummary(groupID)
	if err != nil {
		return "", fmt.Errorf("get group summary: %w", err)
	}
	return strings.TrimSpace(summary.GroupName), nil
}

func textMessages(text string) []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{
		messaging_api.TextMessage{Text: truncate(text, maxTextRunes)},
	}
}

func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit-1]) + "…"
}
