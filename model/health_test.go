package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/deckcheck/model"
)

func TestCircuitOpensAtThreshold(t *testing.T) {
	r := model.NewRegistry(nil, nil)
	r.SetHealthConfig(model.HealthConfig{FailureThreshold: 3, RecoveryTimeout: time.Hour})

	r.MarkEndpointFailure("flaky")
	r.MarkEndpointFailure("flaky")
	assert.True(t, r.IsEndpointAvailable("flaky"), "below threshold should stay available")

	r.MarkEndpointFailure("flaky")
	assert.False(t, r.IsEndpointAvailable("flaky"), "threshold reached should trip the circuit")

	health := r.GetEndpointHealth("flaky")
	require.NotNil(t, health)
	assert.True(t, health.CircuitOpen)
	assert.Equal(t, 3, health.FailureCount)
	assert.False(t, health.Available)
}

func TestCircuitHalfOpenAfterRecoveryTimeout(t *testing.T) {
	r := model.NewRegistry(nil, nil)
	r.SetHealthConfig(model.HealthConfig{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})

	r.MarkEndpointFailure("flaky")
	assert.False(t, r.IsEndpointAvailable("flaky"))

	// After the recovery timeout one probe is admitted even though the
	// circuit is still open.
	time.Sleep(20 * time.Millisecond)
	assert.True(t, r.IsEndpointAvailable("flaky"))

	health := r.GetEndpointHealth("flaky")
	require.NotNil(t, health)
	assert.True(t, health.CircuitOpen)
}

func TestSuccessResetsCircuit(t *testing.T) {
	r := model.NewRegistry(nil, nil)
	r.SetHealthConfig(model.HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	r.MarkEndpointFailure("flaky")
	assert.False(t, r.IsEndpointAvailable("flaky"))

	r.MarkEndpointSuccess("flaky")
	assert.True(t, r.IsEndpointAvailable("flaky"))

	health := r.GetEndpointHealth("flaky")
	require.NotNil(t, health)
	assert.False(t, health.CircuitOpen)
	assert.Equal(t, 0, health.FailureCount)
	assert.True(t, health.Available)
	assert.False(t, health.LastSuccess.IsZero())
}

func TestUnknownEndpointIsAvailable(t *testing.T) {
	r := model.NewRegistry(nil, nil)

	assert.True(t, r.IsEndpointAvailable("never-seen"))
	assert.Nil(t, r.GetEndpointHealth("never-seen"))
}

func TestGetEndpointHealthReturnsCopy(t *testing.T) {
	r := model.NewRegistry(nil, nil)
	r.MarkEndpointFailure("flaky")

	health := r.GetEndpointHealth("flaky")
	require.NotNil(t, health)
	health.FailureCount = 99

	fresh := r.GetEndpointHealth("flaky")
	assert.Equal(t, 1, fresh.FailureCount)
}
