package eventbus

import (
	"context"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisSubscription_TopicAndUnsubscribe(t *testing.T) {
	_, cancel := context.WithCancel(context.Background())
	cancelled := false
	sub := &redisSubscription{id: "sub-1", topic: "payment.events", cancel: func() {
		cancelled = true
		cancel()
	}}

	assert.Equal(t, "payment.events", sub.Topic())
	err := sub.Unsubscribe()
	require.NoError(t, err)
	assert.True(t, cancelled)
}

// TestRedisBus_CloseCancelsAllSubscriptions exercises Close's fan-out over
// tracked subscriptions without requiring a reachable Redis server: the
// client is never dialed until a command is issued, and Close on an
// unconnected client's pool is a safe no-op.
func TestRedisBus_CloseCancelsAllSubscriptions(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	bus := NewRedisBus(client, zap.NewNop())

	cancelled := make([]bool, 2)
	bus.subs = []*redisSubscription{
		{id: "1", topic: "t1", cancel: func() { cancelled[0] = true }},
		{id: "2", topic: "t2", cancel: func() { cancelled[1] = true }},
	}

	err := bus.Close()
	require.NoError(t, err)
	assert.True(t, cancelled[0])
	assert.True(t, cancelled[1])
}
