package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/rangefinder/cmd/tof/console"
	"github.com/mklimuk/rangefinder/distance"
)

var measureCmd = cli.Command{
	Name:    "measure",
	Aliases: []string{"m"},
	Usage:   "range with the first configured sensor",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "count",
			Usage: "number of measurements, 0 runs until interrupted",
			Value: 1,
		},
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "pause between measurements",
		},
		&cli.UintFlag{
			Name:  "budget",
			Usage: "timing budget in ms (10-200)",
		},
		&cli.UintFlag{
			Name:  "inter",
			Usage: "inter-measurement period in ms, 0 for continuous ranging",
		},
		&cli.BoolFlag{
			Name:  "yaml",
			Usage: "print measurements as yaml documents",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return fail(err, "configuration error")
		}
		s := cfg.Sensors[0]
		if c.IsSet("budget") {
			s.TimingBudgetMs = uint32(c.Uint("budget"))
		}
		if c.IsSet("inter") {
			s.InterMeasurementMs = uint32(c.Uint("inter"))
		}
		ctx, stop := signal.NotifyContext(commandContext(c), os.Interrupt)
		defer stop()

		bus, closeBus, err := openBus(ctx, cfg.Bus)
		if err != nil {
			return fail(err, "bus error")
		}
		defer func() { _ = closeBus() }()

		sensor, err := setupSensor(ctx, bus, s)
		if err != nil {
			return fail(err, "initialization error")
		}
		defer func() { _ = sensor.Close() }()
		if err := sensor.StartRanging(ctx); err != nil {
			return fail(err, "could not start ranging")
		}
		defer func() {
			if err := sensor.StopRanging(context.WithoutCancel(ctx)); err != nil {
				console.Warnf("could not stop ranging: %v", err)
			}
		}()

		enc := yaml.NewEncoder(console.Writer())
		defer func() { _ = enc.Close() }()
		count := c.Int("count")
		for i := 0; count == 0 || i < count; i++ {
			m, err := sensor.Measure(ctx)
			switch {
			case errors.Is(err, context.Canceled):
				return nil
			case errors.Is(err, distance.ErrTimeout):
				console.Warnf("no measurement: %v", err)
				continue
			case err != nil:
				return fail(err, "measurement error")
			}
			if c.Bool("yaml") {
				if err := enc.Encode(m); err != nil {
					return fail(err, "encoding error")
				}
			} else {
				printMeasurement(s.Name, m)
			}
			if interval := c.Duration("interval"); interval > 0 {
				select {
				case <-time.After(interval):
				case <-ctx.Done():
					return nil
				}
			}
		}
		return nil
	},
}
