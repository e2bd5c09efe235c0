package snsctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerbose(t *testing.T) {
	ctx := context.Background()
	assert.False(t, IsVerbose(ctx))
	assert.True(t, IsVerbose(SetVerbose(ctx, true)))
	assert.False(t, IsVerbose(SetVerbose(ctx, false)))
}

func TestSensorName(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, SensorName(ctx))
	ctx = WithSensor(SetVerbose(ctx, true), "front")
	assert.Equal(t, "front", SensorName(ctx))
	assert.True(t, IsVerbose(ctx))
}
