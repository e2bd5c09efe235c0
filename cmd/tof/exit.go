package main

import (
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/rangefinder/cmd/tof/console"
	"github.com/mklimuk/rangefinder/config"
	"github.com/mklimuk/rangefinder/distance"
)

// exitCode maps driver and configuration errors to the cli exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, distance.ErrTimeout):
		return console.CodeTimeout
	case errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, distance.ErrInvalidTimingBudget),
		errors.Is(err, distance.ErrInvalidInterMeasurement),
		errors.Is(err, distance.ErrInvalidAddress),
		errors.Is(err, distance.ErrInvalidThreshold):
		return console.CodeConfig
	default:
		return console.CodeFailure
	}
}

func fail(err error, msg string, args ...interface{}) cli.ExitCoder {
	return console.ExitErr(exitCode(err), err, msg, args...)
}
