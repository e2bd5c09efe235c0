package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/rangefinder"
	"github.com/mklimuk/rangefinder/cmd/tof/console"
	"github.com/mklimuk/rangefinder/config"
	"github.com/mklimuk/rangefinder/distance"
	"github.com/mklimuk/rangefinder/gpio"
	"github.com/mklimuk/rangefinder/snsctx"
)

var arrayCmd = cli.Command{
	Name:  "array",
	Usage: "bring up every configured sensor through the xshut expander and range with all of them",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "count", Usage: "number of rounds, 0 runs until interrupted", Value: 1},
		&cli.DurationFlag{Name: "interval", Usage: "pause between rounds", Value: 100 * time.Millisecond},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return fail(err, "configuration error")
		}
		if cfg.Expander == nil {
			return console.Exit(1, "array mode requires an expander in the configuration")
		}
		ctx, stop := signal.NotifyContext(commandContext(c), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		bus, closeBus, err := openBus(ctx, cfg.Bus)
		if err != nil {
			return fail(err, "bus error")
		}
		defer func() { _ = closeBus() }()

		var expOpts []gpio.MCP23017Opt
		if cfg.Expander.Bank == 1 {
			expOpts = append(expOpts, gpio.WithBank1())
		}
		xshut := gpio.NewXShut(gpio.NewMCP23017(bus, cfg.Expander.Address, expOpts...), cfg.XShutPins()...)
		if err := xshut.Init(ctx); err != nil {
			return fail(err, "expander error")
		}
		sensors, err := bringUp(ctx, bus, xshut, cfg.Sensors)
		if err != nil {
			return fail(err, "could not bring up sensors")
		}
		defer func() {
			for _, s := range sensors {
				_ = s.StopRanging(context.WithoutCancel(ctx))
				_ = s.Close()
			}
		}()
		for i, s := range sensors {
			if err := s.StartRanging(ctx); err != nil {
				return fail(err, "sensor %s", cfg.Sensors[i].Name)
			}
		}
		count := c.Int("count")
		for round := 0; count == 0 || round < count; round++ {
			for i, s := range sensors {
				name := cfg.Sensors[i].Name
				m, err := s.Measure(snsctx.WithSensor(ctx, name))
				switch {
				case errors.Is(err, distance.ErrTimeout):
					console.Warnf("sensor %s: no measurement", name)
					continue
				case ctx.Err() != nil:
					return nil
				case err != nil:
					return fail(err, "sensor %s", name)
				}
				printMeasurement(name, m)
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.Duration("interval")):
			}
		}
		return nil
	},
}

func bringUp(ctx context.Context, bus rangefinder.I2CBus, xshut *gpio.XShut, cfgs []config.Sensor) ([]*distance.VL53L4CD, error) {
	addrs := make([]byte, len(cfgs))
	for i, s := range cfgs {
		addrs[i] = s.Address
	}
	sensors, err := distance.AssignAddresses(ctx, bus, xshut, addrs)
	if err != nil {
		return nil, err
	}
	for i, s := range sensors {
		sctx := snsctx.WithSensor(ctx, cfgs[i].Name)
		err := s.SetRangeTiming(sctx, cfgs[i].TimingBudgetMs, cfgs[i].InterMeasurementMs)
		if err == nil {
			err = applyCalibration(sctx, s, cfgs[i])
		}
		if err != nil {
			for _, s := range sensors {
				_ = s.Close()
			}
			return nil, err
		}
		console.PInfof(console.PictoPin, "%s ready at %#02x", console.White(cfgs[i].Name), s.Address())
	}
	return sensors, nil
}
