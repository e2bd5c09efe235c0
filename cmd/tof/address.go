package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/rangefinder/cmd/tof/console"
	"github.com/mklimuk/rangefinder/distance"
)

var addressCmd = cli.Command{
	Name:      "address",
	Usage:     "move the sensor to a new address until the next power cycle",
	ArgsUsage: "<new address (hex)>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return console.Exit(1, "expected 1 argument, got %d", c.NArg())
		}
		next, err := parseAddress(c.Args().Get(0))
		if err != nil {
			return fail(err, "invalid address")
		}
		cfg, err := loadConfig(c)
		if err != nil {
			return fail(err, "configuration error")
		}
		current := cfg.Sensors[0].Address
		if !c.Bool("yes") {
			ok, err := console.Confirm(fmt.Sprintf("move sensor %#02x to %#02x?", current, next))
			if err != nil {
				return fail(err, "prompt error")
			}
			if !ok {
				console.PInfof(console.PictoStop, "aborted")
				return nil
			}
		}
		ctx := commandContext(c)
		bus, closeBus, err := openBus(ctx, cfg.Bus)
		if err != nil {
			return fail(err, "bus error")
		}
		defer func() { _ = closeBus() }()

		sensor := distance.NewVL53L4CD(bus, distance.WithAddress(current))
		defer func() { _ = sensor.Close() }()
		if _, err := sensor.ModelID(ctx); err != nil {
			return fail(err, "no sensor at %#02x", current)
		}
		if err := sensor.ChangeDeviceAddress(ctx, next); err != nil {
			return fail(err, "could not change address")
		}
		if _, err := sensor.ModelID(ctx); err != nil {
			return fail(err, "sensor does not answer at %#02x", next)
		}
		console.PInfof(console.PictoPin, "sensor moved to %s", console.Green(fmt.Sprintf("%#02x", next)))
		return nil
	},
}
