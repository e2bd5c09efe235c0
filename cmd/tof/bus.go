package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/rangefinder"
	"github.com/mklimuk/rangefinder/adapter"
	"github.com/mklimuk/rangefinder/config"
	"github.com/mklimuk/rangefinder/i2c"
	"github.com/mklimuk/rangefinder/snsctx"
)

// loadConfig reads the installation file if given and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}
	if a := c.String("adapter"); a != "" {
		cfg.Bus.Adapter = a
	}
	if d := c.String("device"); d != "" {
		cfg.Bus.Device = d
	}
	if a := c.String("address"); a != "" {
		addr, err := parseAddress(a)
		if err != nil {
			return nil, err
		}
		cfg.Sensors[0].Address = addr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseAddress(s string) (byte, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(s) == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 1 {
		return 0, fmt.Errorf("could not decode address %q", s)
	}
	if b[0] == 0 || b[0] > 0x7F {
		return 0, fmt.Errorf("address %#x is not a 7-bit address", b[0])
	}
	return b[0], nil
}

func commandContext(c *cli.Context) context.Context {
	return snsctx.SetVerbose(c.Context, c.Bool("verbose"))
}

// openBus opens the configured adapter. The returned function closes it.
func openBus(ctx context.Context, cfg config.Bus) (rangefinder.I2CBus, func() error, error) {
	switch cfg.Adapter {
	case config.AdapterMCP2221:
		var opts []adapter.MCP2221Opt
		if cfg.Index != nil {
			opts = append(opts, adapter.WithDeviceIndex(*cfg.Index))
		}
		a := adapter.NewMCP2221(opts...)
		if err := a.Init(); err != nil {
			return nil, nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		if cfg.SpeedHz > 0 {
			if err := a.SetSpeed(ctx, cfg.SpeedHz); err != nil {
				return nil, nil, err
			}
		}
		return a, func() error { return nil }, nil
	case config.AdapterPeriph:
		dev := cfg.Device
		b, err := i2c.NewGenericBus(dev)
		if err != nil {
			return nil, nil, err
		}
		if cfg.SpeedHz > 0 {
			if err := b.SetSpeed(physic.Frequency(cfg.SpeedHz) * physic.Hertz); err != nil {
				_ = b.Close()
				return nil, nil, err
			}
		}
		return b, b.Close, nil
	case config.AdapterGobot:
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		var b *i2c.GobotBus
		if cfg.Device != "" {
			nr, err := strconv.Atoi(cfg.Device)
			if err != nil {
				_ = npi.I2cBusAdaptor.Finalize()
				return nil, nil, fmt.Errorf("gobot bus must be a number: %w", err)
			}
			b = i2c.NewGobotBus(npi, nr)
		} else {
			b = i2c.NewGobotBusDefault(npi)
		}
		return b, func() error {
			err := b.Close()
			if ferr := npi.I2cBusAdaptor.Finalize(); ferr != nil && err == nil {
				err = ferr
			}
			return err
		}, nil
	case config.AdapterI2CDev:
		dev := cfg.Device
		if dev == "" {
			dev = "/dev/i2c-1"
		}
		b := i2c.NewDevBus(dev)
		return b, b.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown adapter %q", cfg.Adapter)
	}
}
