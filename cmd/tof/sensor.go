package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mklimuk/rangefinder"
	"github.com/mklimuk/rangefinder/cmd/tof/console"
	"github.com/mklimuk/rangefinder/config"
	"github.com/mklimuk/rangefinder/distance"
)

// replaced in tests
var newSensor = distance.NewVL53L4CD

// setupSensor initializes the sensor and applies its calibration.
func setupSensor(ctx context.Context, bus rangefinder.I2CBus, s config.Sensor) (*distance.VL53L4CD, error) {
	opts := append([]distance.VL53L4CDOpt{distance.WithAddress(s.Address)}, s.Options()...)
	sensor := newSensor(bus, opts...)
	err := sensor.Init(ctx)
	if err == nil {
		err = applyCalibration(ctx, sensor, s)
	}
	if err != nil {
		return nil, fmt.Errorf("sensor %s: %w", s.Name, errors.Join(err, sensor.Close()))
	}
	return sensor, nil
}

func applyCalibration(ctx context.Context, sensor *distance.VL53L4CD, s config.Sensor) error {
	if s.OffsetMM != 0 {
		if err := sensor.SetOffset(ctx, s.OffsetMM); err != nil {
			return err
		}
	}
	if s.XTalkKcps != 0 {
		if err := sensor.SetXTalk(ctx, s.XTalkKcps); err != nil {
			return err
		}
	}
	if s.SigmaMM != 0 {
		if err := sensor.SetSigmaThreshold(ctx, s.SigmaMM); err != nil {
			return err
		}
	}
	if s.SignalKcps != 0 {
		if err := sensor.SetSignalThreshold(ctx, s.SignalKcps); err != nil {
			return err
		}
	}
	return nil
}

func printMeasurement(name string, m distance.Measurement) {
	level := int(m.Status.Severity())
	console.PInfof(console.PictoRuler, "%s %s %s (sigma %d mm, signal %d kcps, ambient %d kcps, %d spads)",
		console.White(name),
		console.Level(level, fmt.Sprintf("%d mm", m.DistanceMM)),
		console.Level(level, m.Status),
		m.SigmaMM, m.SignalRate, m.AmbientRate, m.SpadsEnabled)
}
