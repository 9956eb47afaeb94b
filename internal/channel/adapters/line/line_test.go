package line

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winson8942-oss/line-drive-bot/internal/channel"
	"github.com/winson8942-oss/line-drive-bot/internal/config"
)

const testSecret = "test-channel-secret"

func signedRequest(t *testing.T, secret, body string) *http.Request {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	_, err := mac.Write([]byte(body))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	req.Header.Set("X-Line-Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return req
}

const payload = `{
  "destination": "Ubot",
  "events": [
    {
      "type": "message",
      "mode": "active",
      "timestamp": 1700000000000,
      "webhookEventId": "01HEVT1",
      "deliveryContext": {"isRedelivery": false},
      "replyToken": "reply-1",
      "source": {"type": "group", "groupId": "C1234567890", "userId": "U1"},
      "message": {"type": "image", "id": "1001", "quoteToken": "q", "contentProvider": {"type": "line"}}
    },
    {
      "type": "message",
      "mode": "active",
      "timestamp": 1700000001000,
      "webhookEventId": "01HEVT2",
      "deliveryContext": {"isRedelivery": true},
      "replyToken": "reply-2",
      "source": {"type": "user", "userId": "U2"},
      "message": {"type": "file", "id": "1002", "fileName": "report.pdf", "fileSize": 12}
    },
    {
      "type": "message",
      "mode": "active",
      "timestamp": 1700000002000,
      "webhookEventId": "01HEVT3",
      "deliveryContext": {"isRedelivery": false},
      "replyToken": "reply-3",
      "source": {"type": "room", "roomId": "R9", "userId": "U3"},
      "message": {"type": "text", "id": "1003", "text": "解鎖備份", "quoteToken": "q"}
    }
  ]
}`

func TestParseRequestMapsEvents(t *testing.T) {
	events, err := parseRequest(nil, testSecret, signedRequest(t, testSecret, payload))
	require.NoError(t, err)
	require.Len(t, events, 3)

	img := events[0]
	assert.Equal(t, "01HEVT1", img.ID)
	assert.Equal(t, channel.EventMessage, img.Type)
	assert.Equal(t, channel.MessageImage, img.Message.Kind)
	assert.Equal(t, "1001", img.Message.ID)
	assert.Equal(t, channel.SourceGroup, img.Source.Kind)
	assert.Equal(t, "C1234567890", img.Source.ConversationKey())
	assert.Equal(t, "reply-1", img.ReplyHandle)
	assert.False(t, img.Redelivery)
	assert.Equal(t, int64(1700000000000), img.ReceivedAt.UnixMilli())

	file := events[1]
	assert.Equal(t, channel.MessageFile, file.Message.Kind)
	assert.Equal(t, "report.pdf", file.Message.FileName)
	assert.Equal(t, channel.SourceUser, file.Source.Kind)
	assert.True(t, file.Redelivery)

	text := events[2]
	assert.True(t, text.IsText())
	assert.Equal(t, "解鎖備份", text.Message.Text)
	assert.Equal(t, channel.SourceRoom, text.Source.Kind)
	assert.Equal(t, "R9", text.Source.ConversationKey())
	assert.Equal(t, "U3", text.Source.UserID)
}

func TestParseRequestRejectsBadSignature(t *testing.T) {
	_, err := parseRequest(nil, testSecret, signedRequest(t, "other-secret", payload))
	assert.ErrorIs(t, err, channel.ErrInvalidSignature)
}

func TestMapEventIgnoresUnknown(t *testing.T) {
	_, ok := mapEvent(webhook.UnsendEvent{})
	assert.False(t, ok)
}

func TestNewAdapterRequiresCredentials(t *testing.T) {
	_, err := NewAdapter(nil, config.LineConfig{ChannelSecret: "s"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	a, err := NewAdapter(nil, config.LineConfig{ChannelSecret: "s", ChannelToken: "t"})
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))

	long := strings.Repeat("圖", 12)
	got := truncate(long, 10)
	assert.Equal(t, 10, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "…"))
}
