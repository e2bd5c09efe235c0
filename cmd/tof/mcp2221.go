package main

import (
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/rangefinder/adapter"
	"github.com/mklimuk/rangefinder/cmd/tof/console"
)

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "inspect and reset the MCP2221 usb-i2c bridge",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "index", Usage: "adapter index when several are connected"},
	},
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
		&mcp2221SpeedCmd,
	},
}

func openMCP2221(c *cli.Context) (*adapter.MCP2221, error) {
	a := adapter.NewMCP2221(adapter.WithDeviceIndex(c.Int("index")))
	if err := a.Init(); err != nil {
		return nil, err
	}
	return a, nil
}

func printStatus(status *adapter.MCP2221Status) error {
	enc := yaml.NewEncoder(console.Writer())
	if err := enc.Encode(status); err != nil {
		return fail(err, "encoding error")
	}
	return enc.Close()
}

var mcp2221StatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		a, err := openMCP2221(c)
		if err != nil {
			return fail(err, "adapter initialization error")
		}
		status, err := a.Status(commandContext(c))
		if err != nil {
			return fail(err, "adapter communication error")
		}
		return printStatus(status)
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel the current transfer and free the bus",
	Action: func(c *cli.Context) error {
		a, err := openMCP2221(c)
		if err != nil {
			return fail(err, "adapter initialization error")
		}
		status, err := a.ReleaseBus(commandContext(c))
		if err != nil {
			return fail(err, "adapter communication error")
		}
		return printStatus(status)
	},
}

var mcp2221SpeedCmd = cli.Command{
	Name:  "speed",
	Usage: "set the bus clock",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "hz", Value: 400_000},
	},
	Action: func(c *cli.Context) error {
		a, err := openMCP2221(c)
		if err != nil {
			return fail(err, "adapter initialization error")
		}
		ctx := commandContext(c)
		if err := a.SetSpeed(ctx, c.Int("hz")); err != nil {
			return fail(err, "could not set speed")
		}
		status, err := a.Status(ctx)
		if err != nil {
			return fail(err, "adapter communication error")
		}
		return printStatus(status)
	},
}
