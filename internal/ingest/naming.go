package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/winson8942-oss/line-drive-bot/internal/channel"
	"github.com/winson8942-oss/line-drive-bot/internal/storage"
)

const (
	timestampLayout = "2006-01-02_15-04-05"
	monthLayout     = "2006-01"
)

// fileName is the platform file name, or <messageId>.<ext> when none was given.
func fileName(msg channel.Message) string {
	if name := strings.TrimSpace(msg.FileName); name != "" {
		return name
	}
	return msg.ID + "." + msg.Kind.DefaultExtension()
}

// storedName prefixes the sanitized name with the local timestamp of t.
func storedName(t time.Time, loc *time.Location, name string) string {
	return t.In(loc).Format(timestampLayout) + "_" + storage.SanitizeSegment(name)
}

func monthBucket(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(monthLayout)
}

func lastN(id string, n int) string {
	r := []rune(id)
	if len(r) <= n {
		return id
	}
	return string(r[len(r)-n:])
}

// tenantFolder names the per-conversation folder. Lookups are best effort.
func (p *Pipeline) tenantFolder(ctx context.Context, src channel.Source) string {
	unknown := p.catalog.UnknownChat
	switch src.Kind {
	case channel.SourceGroup:
		if p.directory != nil {
			name, err := p.directory.GroupName(ctx, src.GroupID)
			if err == nil && strings.TrimSpace(name) != "" {
				return name
			}
			if err != nil {
				p.logger.Debug("group name lookup failed", slog.String("group_id", src.GroupID), slog.Any("error", err))
			}
		}
		return "Group-" + lastN(src.GroupID, 4)
	case channel.SourceRoom:
		return "Room-" + lastN(src.RoomID, 4)
	case channel.SourceUser:
		if p.directory == nil {
			return unknown
		}
		name, err := p.directory.UserDisplayName(ctx, src.UserID)
		if err != nil || strings.TrimSpace(name) == "" {
			p.logger.Debug("profile lookup failed", slog.String("user_id", src.UserID), slog.Any("error", err))
			return unknown
		}
		return "User-" + name
	default:
		return unknown
	}
}
