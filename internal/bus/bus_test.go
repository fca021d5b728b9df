package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch Subscription) any {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestPublishReachesSubscribersOfTopic(t *testing.T) {
	b := New(nil, 4)
	defer b.Close()

	both := b.Subscribe("a", "b")
	onlyB := b.Subscribe("b")

	b.Publish("a", 1)
	b.Publish("b", "two")

	assert.Equal(t, 1, receive(t, both))
	assert.Equal(t, "two", receive(t, both))
	assert.Equal(t, "two", receive(t, onlyB))
}

func TestUnsubscribeTopicKeepsOthers(t *testing.T) {
	b := New(nil, 4)
	defer b.Close()

	ch := b.Subscribe("a", "b")
	b.Unsubscribe(ch, "a")

	b.Publish("a", 1)
	b.Publish("b", 2)

	assert.Equal(t, 2, receive(t, ch))
}

func TestCloseClosesSubscriptions(t *testing.T) {
	b := New(nil, 0)
	ch := b.Subscribe("a")

	b.Close()
	b.Close()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed")
	}
}

func TestPayloadType(t *testing.T) {
	assert.Equal(t, "<nil>", payloadType(nil))
	assert.Equal(t, "int", payloadType(3))
}
