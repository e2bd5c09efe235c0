package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/rangefinder/cmd/tof/console"
	"github.com/mklimuk/rangefinder/distance"
)

var calibrateCmd = cli.Command{
	Name: "calibrate",
	Subcommands: cli.Commands{
		&calibrateTemperatureCmd,
		&calibrateOffsetCmd,
	},
}

var calibrateTemperatureCmd = cli.Command{
	Name:  "temperature",
	Usage: "recalibrate after a temperature change",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return fail(err, "configuration error")
		}
		ctx := commandContext(c)
		bus, closeBus, err := openBus(ctx, cfg.Bus)
		if err != nil {
			return fail(err, "bus error")
		}
		defer func() { _ = closeBus() }()
		sensor, err := setupSensor(ctx, bus, cfg.Sensors[0])
		if err != nil {
			return fail(err, "initialization error")
		}
		defer func() { _ = sensor.Close() }()
		if err := sensor.StartTemperatureUpdate(ctx); err != nil {
			return fail(err, "temperature update failed")
		}
		console.PInfof(console.PictoThermometer, "temperature update done")
		return nil
	},
}

var calibrateOffsetCmd = cli.Command{
	Name:  "offset",
	Usage: "measure a target at a known distance and compute the offset",
	Flags: []cli.Flag{
		&cli.UintFlag{Name: "target", Usage: "target distance in mm", Value: 100},
		&cli.IntFlag{Name: "samples", Usage: "number of valid samples to average", Value: 20},
		&cli.BoolFlag{Name: "save", Usage: "store the offset in the config file"},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return fail(err, "configuration error")
		}
		ctx := commandContext(c)
		bus, closeBus, err := openBus(ctx, cfg.Bus)
		if err != nil {
			return fail(err, "bus error")
		}
		defer func() { _ = closeBus() }()
		s := cfg.Sensors[0]
		s.OffsetMM = 0
		sensor, err := setupSensor(ctx, bus, s)
		if err != nil {
			return fail(err, "initialization error")
		}
		defer func() { _ = sensor.Close() }()
		if err := sensor.SetOffset(ctx, 0); err != nil {
			return fail(err, "could not reset offset")
		}
		offset, err := measureOffset(c, sensor, int(c.Uint("target")), c.Int("samples"))
		if err != nil {
			return fail(err, "calibration failed")
		}
		if err := sensor.SetOffset(ctx, offset); err != nil {
			return fail(err, "could not write offset")
		}
		console.PInfof(console.PictoTarget, "offset %s", console.Green(fmt.Sprintf("%d mm", offset)))
		if c.Bool("save") {
			path := c.String("config")
			if path == "" {
				return console.Exit(1, "--save requires --config")
			}
			cfg.Sensors[0].OffsetMM = offset
			if err := cfg.Save(path); err != nil {
				return fail(err, "could not save configuration")
			}
		}
		return nil
	},
}

func measureOffset(c *cli.Context, sensor *distance.VL53L4CD, target, samples int) (int16, error) {
	ctx := commandContext(c)
	if samples < 1 {
		return 0, errors.New("at least one sample is required")
	}
	if err := sensor.StartRanging(ctx); err != nil {
		return 0, err
	}
	defer func() { _ = sensor.StopRanging(ctx) }()
	var sum, valid int
	for attempts := 0; valid < samples; attempts++ {
		if attempts > samples*4 {
			return 0, fmt.Errorf("only %d of %d samples valid", valid, samples)
		}
		m, err := sensor.Measure(ctx)
		if err != nil {
			return 0, err
		}
		if !m.Valid() {
			console.Debugf("skipping sample: %s", m.Status)
			continue
		}
		sum += int(m.DistanceMM)
		valid++
	}
	offset := target - sum/valid
	if offset < distance.MinOffset || offset > distance.MaxOffset {
		return 0, fmt.Errorf("offset %d mm out of range", offset)
	}
	return int16(offset), nil
}

