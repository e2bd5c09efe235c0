package distance

import (
	"context"
)

// MeasureBehaviorFunc defines the function signature for ranging behavior.
type MeasureBehaviorFunc func(ctx context.Context) (Measurement, error)

// MockDistanceSensor is a mock implementation of a ranging sensor that uses
// a behavior function to produce results without requiring hardware.
// This can be used to mock sensors like VL53L4CD.
type MockDistanceSensor struct {
	behavior MeasureBehaviorFunc
}

// NewMockDistanceSensor creates a new mock distance sensor with the given behavior function.
// The behavior function is called whenever Measure is invoked.
//
// Example usage:
//
//	sensor := NewMockDistanceSensor(func(ctx context.Context) (Measurement, error) {
//		return Measurement{Status: StatusValid, DistanceMM: 120}, nil
//	})
func NewMockDistanceSensor(behavior MeasureBehaviorFunc) *MockDistanceSensor {
	return &MockDistanceSensor{behavior: behavior}
}

// Measure returns the measurement by calling the behavior function.
func (m *MockDistanceSensor) Measure(ctx context.Context) (Measurement, error) {
	return m.behavior(ctx)
}

// NewMockVL53L4CD creates a new mock VL53L4CD sensor (alias for NewMockDistanceSensor).
func NewMockVL53L4CD(behavior MeasureBehaviorFunc) *MockDistanceSensor {
	return NewMockDistanceSensor(behavior)
}
