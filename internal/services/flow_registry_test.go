package services

import (
	"context"
	"testing"
	"time"

	"github.com/BradenHooton/riskgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(env *testEnv, ttl time.Duration) *FlowRegistry {
	r := NewFlowRegistry(env.orchestrator, ttl)
	r.now = env.clock.Now
	return r
}

func TestFlowRegistry_StartAndGet(t *testing.T) {
	env := newTestEnv(t)
	registry := newTestRegistry(env, 10*time.Minute)

	flow := registry.Start(testClient)
	got, err := registry.Get(flow.ID())
	require.NoError(t, err)
	assert.Same(t, flow, got)
	assert.Equal(t, 1, registry.Len())

	_, err = registry.Get("missing")
	assert.ErrorIs(t, err, models.ErrFlowNotFound)
}

func TestFlowRegistry_IdleFlowsExpire(t *testing.T) {
	env := newTestEnv(t)
	registry := newTestRegistry(env, 10*time.Minute)

	flow := registry.Start(testClient)
	env.clock.Advance(10 * time.Minute)

	_, err := registry.Get(flow.ID())
	assert.ErrorIs(t, err, models.ErrFlowNotFound)
	assert.Zero(t, registry.Len())
}

func TestFlowRegistry_InputExtendsLifetime(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, flowEmail)
	registry := newTestRegistry(env, 10*time.Minute)

	flow := registry.Start(testClient)
	env.clock.Advance(9 * time.Minute)

	_, err := flow.SubmitCredentials(context.Background(), flowEmail, "WrongP@ss999")
	require.ErrorIs(t, err, models.ErrInvalidCredentials)

	env.clock.Advance(9 * time.Minute)
	_, err = registry.Get(flow.ID())
	assert.NoError(t, err)
}

func TestFlowRegistry_Sweep(t *testing.T) {
	env := newTestEnv(t)
	registry := newTestRegistry(env, 10*time.Minute)

	stale := registry.Start(testClient)
	env.clock.Advance(6 * time.Minute)
	fresh := registry.Start(testClient)
	env.clock.Advance(5 * time.Minute)

	assert.Equal(t, 1, registry.Sweep())
	assert.Equal(t, 1, registry.Len())

	_, err := registry.Get(stale.ID())
	assert.ErrorIs(t, err, models.ErrFlowNotFound)
	_, err = registry.Get(fresh.ID())
	assert.NoError(t, err)
}

func TestFlowRegistry_Remove(t *testing.T) {
	env := newTestEnv(t)
	registry := newTestRegistry(env, time.Minute)

	flow := registry.Start(testClient)
	registry.Remove(flow.ID())
	registry.Remove(flow.ID())

	_, err := registry.Get(flow.ID())
	assert.ErrorIs(t, err, models.ErrFlowNotFound)
}

func TestFlowRegistry_ZeroTTLNeverExpires(t *testing.T) {
	env := newTestEnv(t)
	registry := newTestRegistry(env, 0)

	flow := registry.Start(testClient)
	env.clock.Advance(72 * time.Hour)

	assert.Zero(t, registry.Sweep())
	_, err := registry.Get(flow.ID())
	assert.NoError(t, err)
}
