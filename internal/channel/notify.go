package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoRecipient is returned by Deliver when neither a reply handle nor a push target is known.
var ErrNoRecipient = errors.New("no reply handle or push target")

// Deliver sends text with the reply handle when there is one, falling back to a push to
// the conversation key when the reply fails or no handle is available.
func Deliver(ctx context.Context, n Notifier, replyHandle, to, text string) error {
	if n == nil {
		return fmt.Errorf("notifier not configured")
	}
	replyHandle = strings.TrimSpace(replyHandle)
	to = strings.TrimSpace(to)
	var replyErr error
	if replyHandle != "" {
		if replyErr = n.Reply(ctx, replyHandle, text); replyErr == nil {
			return nil
		}
	}
	if to == "" {
		if replyErr != nil {
			return replyErr
		}
		return ErrNoRecipient
	}
	if err := n.Push(ctx, to, text); err != nil {
		return errors.Join(replyErr, err)
	}
	return nil
}
