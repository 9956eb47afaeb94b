package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	replyErr error
	pushErr  error
	replies  []string
	pushes   []string
}

func (n *recordingNotifier) Reply(_ context.Context, handle, text string) error {
	if n.replyErr != nil {
		return n.replyErr
	}
	n.replies = append(n.replies, handle+"|"+text)
	return nil
}

func (n *recordingNotifier) Push(_ context.Context, to, text string) error {
	if n.pushErr != nil {
		return n.pushErr
	}
	n.pushes = append(n.pushes, to+"|"+text)
	return nil
}

func TestDeliverPrefersReply(t *testing.T) {
	n := &recordingNotifier{}
	require.NoError(t, Deliver(context.Background(), n, "tok", "U1", "hi"))
	assert.Equal(t, []string{"tok|hi"}, n.replies)
	assert.Empty(t, n.pushes)
}

func TestDeliverFallsBackToPush(t *testing.T) {
	n := &recordingNotifier{replyErr: errors.New("invalid reply token")}
	require.NoError(t, Deliver(context.Background(), n, "tok", "U1", "hi"))
	assert.Equal(t, []string{"U1|hi"}, n.pushes)
}

func TestDeliverWithoutHandlePushes(t *testing.T) {
	n := &recordingNotifier{}
	require.NoError(t, Deliver(context.Background(), n, "", "C1", "hi"))
	assert.Equal(t, []string{"C1|hi"}, n.pushes)
}

func TestDeliverNoRecipient(t *testing.T) {
	n := &recordingNotifier{}
	assert.ErrorIs(t, Deliver(context.Background(), n, "", "", "hi"), ErrNoRecipient)
}

func TestDeliverJoinsErrors(t *testing.T) {
	replyErr := errors.New("expired")
	pushErr := errors.New("quota")
	n := &recordingNotifier{replyErr: replyErr, pushErr: pushErr}

	err := Deliver(context.Background(), n, "tok", "U1", "hi")
	assert.ErrorIs(t, err, replyErr)
	assert.ErrorIs(t, err, pushErr)
}
