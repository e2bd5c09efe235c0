package distance

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockDistanceSensor_StaticValue(t *testing.T) {
	s := NewMockDistanceSensor(func(ctx context.Context) (Measurement, error) {
		return Measurement{Status: StatusValid, DistanceMM: 120}, nil
	})
	m, err := s.Measure(context.Background())
	require.NoError(t, err)
	assert.True(t, m.Valid())
	assert.Equal(t, uint16(120), m.DistanceMM)
}

func TestMockDistanceSensor_Dynamic(t *testing.T) {
	dist := uint16(100)
	var s Sensor = NewMockVL53L4CD(func(ctx context.Context) (Measurement, error) {
		return Measurement{Status: StatusValid, DistanceMM: dist}, nil
	})
	m1, _ := s.Measure(context.Background())
	dist = 250
	m2, _ := s.Measure(context.Background())
	assert.Equal(t, uint16(100), m1.DistanceMM)
	assert.Equal(t, uint16(250), m2.DistanceMM)
}

func TestMockDistanceSensor_Error(t *testing.T) {
	s := NewMockDistanceSensor(func(ctx context.Context) (Measurement, error) {
		return Measurement{}, fmt.Errorf("%w: waiting for a measurement", ErrTimeout)
	})
	_, err := s.Measure(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}
