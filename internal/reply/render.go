package reply

import (
	"strings"

	"github.com/winson8942-oss/line-drive-bot/internal/channel"
)

// Item is one archived file waiting to be acknowledged.
type Item struct {
	Name string
	Kind channel.MessageKind
}

var categoryOrder = []channel.MessageKind{
	channel.MessageImage,
	channel.MessageVideo,
	channel.MessageAudio,
	channel.MessageFile,
}

func category(kind channel.MessageKind) channel.MessageKind {
	switch kind {
	case channel.MessageImage, channel.MessageVideo, channel.MessageAudio:
		return kind
	default:
		return channel.MessageFile
	}
}

func (c *Catalog) categoryTitle(kind channel.MessageKind) string {
	switch kind {
	case channel.MessageImage:
		return c.CategoryImage
	case channel.MessageVideo:
		return c.CategoryVideo
	case channel.MessageAudio:
		return c.CategoryAudio
	default:
		return c.CategoryFile
	}
}

// Render builds the grouped acknowledgment. Empty categories are omitted and names keep
// arrival order within a category.
func Render(c *Catalog, items []Item) string {
	grouped := make(map[channel.MessageKind][]string, len(categoryOrder))
	for _, it := range items {
		k := category(it.Kind)
		grouped[k] = append(grouped[k], it.Name)
	}
	var b strings.Builder
	b.WriteString(c.BatchHeader)
	for _, k := range categoryOrder {
		names := grouped[k]
		if len(names) == 0 {
			continue
		}
		b.WriteString("\n\n")
		b.WriteString(c.categoryTitle(k))
		b.WriteString("：")
		for _, n := range names {
			b.WriteString("\n- ")
			b.WriteString(n)
		}
	}
	return b.String()
}
