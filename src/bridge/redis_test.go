package bridge

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskhive/realtime/src/hub"
	"github.com/taskhive/realtime/src/types"
)

type mockTarget struct {
	mu     sync.Mutex
	events []hub.BridgeEvent
}

func (m *mockTarget) CastLocal(ev hub.BridgeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockTarget) received() []hub.BridgeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]hub.BridgeEvent(nil), m.events...)
}

func newTestBridge(t *testing.T) (*RedisBridge, *mockTarget) {
	t.Helper()
	target := &mockTarget{}
	b := NewRedisBridge(DefaultRedisConfig(), target, zerolog.Nop())
	return b, target
}

func redisMessage(t *testing.T, instanceID string, ev hub.BridgeEvent) *redis.Message {
	t.Helper()
	data, err := json.Marshal(redisEnvelope{InstanceID: instanceID, Event: ev})
	require.NoError(t, err)
	return &redis.Message{Payload: string(data)}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := types.NewEnvelope(types.KindMessageNew, types.ChatMessage{
		ID:             "m1",
		ConversationID: "c1",
		Body:           "hello",
	})
	require.NoError(t, err)

	in := redisEnvelope{
		InstanceID: "node-1",
		Event:      hub.BridgeEvent{ConversationID: "c1", Env: env},
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out redisEnvelope
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "node-1", out.InstanceID)
	assert.Equal(t, "c1", out.Event.ConversationID)
	assert.Equal(t, types.KindMessageNew, out.Event.Env.Event)

	var msg types.ChatMessage
	require.NoError(t, json.Unmarshal(out.Event.Env.Data, &msg))
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "hello", msg.Body)
}

func TestForeignEventsForwarded(t *testing.T) {
	b, target := newTestBridge(t)

	env, err := types.NewEnvelope(types.KindJobsRefresh, nil)
	require.NoError(t, err)
	b.handleRedisMessage(redisMessage(t, "other-node", hub.BridgeEvent{Env: env}))

	got := target.received()
	require.Len(t, got, 1)
	assert.Equal(t, types.KindJobsRefresh, got[0].Env.Event)
}

func TestOwnEventsSkipped(t *testing.T) {
	b, target := newTestBridge(t)

	env, err := types.NewEnvelope(types.KindMessageNew, types.ChatMessage{ID: "m1"})
	require.NoError(t, err)
	b.handleRedisMessage(redisMessage(t, b.instanceID, hub.BridgeEvent{ConversationID: "c1", Env: env}))

	assert.Empty(t, target.received(), "an instance must not re-deliver its own events")
}

func TestMalformedPayloadIgnored(t *testing.T) {
	b, target := newTestBridge(t)

	assert.NotPanics(t, func() {
		b.handleRedisMessage(&redis.Message{Payload: "not json"})
	})
	assert.Empty(t, target.received())
}

func TestNotAvailableBeforeStart(t *testing.T) {
	b, _ := newTestBridge(t)
	assert.False(t, b.Available())
}

func TestInstanceIDsAreDistinct(t *testing.T) {
	b1, _ := newTestBridge(t)
	b2, _ := newTestBridge(t)
	assert.NotEqual(t, b1.instanceID, b2.instanceID)
}
