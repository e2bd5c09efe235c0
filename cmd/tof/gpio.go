package main

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/rangefinder/cmd/tof/console"
	"github.com/mklimuk/rangefinder/config"
	"github.com/mklimuk/rangefinder/gpio"
)

var gpioCmd = cli.Command{
	Name:  "gpio",
	Usage: "inspect and drive the xshut expander",
	Subcommands: cli.Commands{
		&gpioStatusCmd,
		&gpioReadCmd,
		&gpioSetCmd,
	},
}

// withExpander opens the bus and hands the configured expander to fn.
func withExpander(c *cli.Context, fn func(exp *gpio.MCP23017) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fail(err, "configuration error")
	}
	if cfg.Expander == nil {
		cfg.Expander = &config.Expander{Address: gpio.DefaultMCP23017Address}
	}
	ctx := commandContext(c)
	bus, closeBus, err := openBus(ctx, cfg.Bus)
	if err != nil {
		return fail(err, "bus error")
	}
	defer func() { _ = closeBus() }()
	var opts []gpio.MCP23017Opt
	if cfg.Expander.Bank == 1 {
		opts = append(opts, gpio.WithBank1())
	}
	return fn(gpio.NewMCP23017(bus, cfg.Expander.Address, opts...))
}

var gpioReadCmd = cli.Command{
	Name: "read",
	Action: func(c *cli.Context) error {
		return withExpander(c, func(exp *gpio.MCP23017) error {
			data, err := exp.Read(commandContext(c))
			if err != nil {
				return fail(err, "could not read gpio")
			}
			console.Printf("I/O A: %#02X\nI/O B: %#02X\n", data[0], data[1])
			return nil
		})
	},
}

var gpioStatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		return withExpander(c, func(exp *gpio.MCP23017) error {
			data, err := exp.ReadSettings(commandContext(c))
			if err != nil {
				return fail(err, "could not read settings")
			}
			console.Printf("IOCON content: %#02X\n", data)
			return nil
		})
	},
}

var gpioSetCmd = cli.Command{
	Name:      "set",
	Usage:     "drive an output pin",
	ArgsUsage: "<pin 0-15> <0|1>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		pin, err := strconv.Atoi(c.Args().Get(0))
		if err != nil || pin < 0 || pin >= gpio.Pins {
			return console.Exit(1, "invalid pin %q", c.Args().Get(0))
		}
		high, err := strconv.ParseBool(c.Args().Get(1))
		if err != nil {
			return fail(err, "invalid level")
		}
		return withExpander(c, func(exp *gpio.MCP23017) error {
			ctx := commandContext(c)
			mask := byte(1 << (pin % 8))
			var err error
			if pin < 8 {
				err = exp.InitA(ctx, ^mask)
			} else {
				err = exp.InitB(ctx, ^mask)
			}
			if err == nil {
				err = exp.SetPin(ctx, pin, high)
			}
			if err != nil {
				return fail(err, "could not set pin")
			}
			console.PInfof(console.PictoPin, "pin %d set to %s", pin, console.Green(fmt.Sprint(high)))
			return nil
		})
	},
}
