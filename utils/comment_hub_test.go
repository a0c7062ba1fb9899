package utils

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommentHub_BroadcastReachesResourceOnly(t *testing.T) {
	h := NewCommentHub()
	a, cancelA := h.Subscribe("post", 1)
	defer cancelA()
	b, cancelB := h.Subscribe("post", 2)
	defer cancelB()

	h.Broadcast("post", 1, CommentEvent{Type: CommentLiked, CommentID: 9, LikeCount: 3})

	require.Len(t, a, 1)
	var ev CommentEvent
	require.NoError(t, json.Unmarshal(<-a, &ev))
	assert.Equal(t, CommentLiked, ev.Type)
	assert.Equal(t, uint(9), ev.CommentID)
	assert.Equal(t, int64(3), ev.LikeCount)
	assert.Len(t, b, 0)
}

func TestCommentHub_CancelClosesOnce(t *testing.T) {
	h := NewCommentHub()
	ch, cancel := h.Subscribe("event", 4)
	assert.Equal(t, 1, h.Subscribers("event", 4))

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, h.Subscribers("event", 4))
}

func TestCommentHub_DropsSlowSubscriber(t *testing.T) {
	h := NewCommentHub()
	slow, cancelSlow := h.Subscribe("post", 1)
	defer cancelSlow()

	for i := 0; i < subscriberBuffer; i++ {
		h.Broadcast("post", 1, CommentEvent{Type: CommentCreated, CommentID: uint(i + 1)})
	}
	assert.Equal(t, 1, h.Subscribers("post", 1))

	h.Broadcast("post", 1, CommentEvent{Type: CommentCreated, CommentID: 100})
	assert.Equal(t, 0, h.Subscribers("post", 1))

	n := 0
	for range slow {
		n++
	}
	assert.Equal(t, subscriberBuffer, n)
}

func TestCommentHub_NilBroadcast(t *testing.T) {
	var h *CommentHub
	assert.NotPanics(t, func() { h.Broadcast("post", 1, CommentEvent{Type: CommentDeleted}) })
}
