package channel

import (
	"strings"
	"time"
)

// EventType is the webhook event type; only EventMessage carries a Message.
type EventType string

const (
	EventMessage EventType = "message"
	EventFollow  EventType = "follow"
	EventJoin    EventType = "join"
	EventOther   EventType = "other"
)

// SourceKind identifies where an event came from.
type SourceKind string

const (
	SourceUser  SourceKind = "user"
	SourceGroup SourceKind = "group"
	SourceRoom  SourceKind = "room"
)

// MessageKind is the message content type.
type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
	MessageVideo MessageKind = "video"
	MessageAudio MessageKind = "audio"
	MessageFile  MessageKind = "file"
	MessageOther MessageKind = "other"
)

// IsMedia reports whether the message carries downloadable content.
func (k MessageKind) IsMedia() bool {
	switch k {
	case MessageImage, MessageVideo, MessageAudio, MessageFile:
		return true
	default:
		return false
	}
}

// DefaultExtension is the extension used when the platform gives no file name.
func (k MessageKind) DefaultExtension() string {
	switch k {
	case MessageImage:
		return "jpg"
	case MessageVideo:
		return "mp4"
	case MessageAudio:
		return "m4a"
	default:
		return "dat"
	}
}

// Source is the origin of an event. UserID may be set for group and room sources too.
type Source struct {
	Kind    SourceKind
	UserID  string
	GroupID string
	RoomID  string
}

// ConversationKey groups events for batching and push delivery:
// group id, else room id, else user id.
func (s Source) ConversationKey() string {
	for _, id := range []string{s.GroupID, s.RoomID, s.UserID} {
		if v := strings.TrimSpace(id); v != "" {
			return v
		}
	}
	return ""
}

// Message is the content of a message event.
type Message struct {
	Kind     MessageKind
	ID       string
	Text     string
	FileName string
}

// Event is a single webhook event normalized from the platform payload.
type Event struct {
	ID          string
	Type        EventType
	Message     Message
	Source      Source
	ReplyHandle string
	Redelivery  bool
	ReceivedAt  time.Time
}

// IsText reports whether e is a text message event.
func (e Event) IsText() bool {
	return e.Type == EventMessage && e.Message.Kind == MessageText
}

// TrimmedText returns the message text without surrounding whitespace.
func (e Event) TrimmedText() string {
	return strings.TrimSpace(e.Message.Text)
}
