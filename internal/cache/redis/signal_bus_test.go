package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalBus_PatternSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Subscribe(ctx, "ch:book:*")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "ch:book:BTC-USDT-SWAP", []byte(`{"event":"book_update"}`)))

	select {
	case msg := <-msgs:
		assert.Equal(t, "ch:book:BTC-USDT-SWAP", msg.Channel)
		assert.JSONEq(t, `{"event":"book_update"}`, string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	select {
	case _, ok := <-msgs:
		for ok {
			_, ok = <-msgs
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestSignalBus_ExactSubscribe(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Subscribe(ctx, "ch:estimate")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "ch:status", []byte("ignored")))
	require.NoError(t, bus.Publish(ctx, "ch:estimate", []byte("hit")))

	select {
	case msg := <-msgs:
		assert.Equal(t, "ch:estimate", msg.Channel)
		assert.Equal(t, "hit", string(msg.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestSignalBus_Streams(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c)
	ctx := context.Background()

	empty, err := bus.StreamRead(ctx, "stream:empty", "0", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, bus.StreamAppend(ctx, "stream:test", []byte(p)))
	}

	all, err := bus.StreamRead(ctx, "stream:test", "0", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", string(all[0].Payload))

	after, err := bus.StreamRead(ctx, "stream:test", all[0].ID, 10)
	require.NoError(t, err)
	assert.Len(t, after, 2)

	newest, err := bus.StreamRevRange(ctx, "stream:test", 2)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, "c", string(newest[0].Payload))
	assert.Equal(t, "b", string(newest[1].Payload))
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("ch:book:*"))
	assert.True(t, hasPattern("ch:?"))
	assert.False(t, hasPattern("ch:estimate"))
}
