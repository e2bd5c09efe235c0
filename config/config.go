// Package config describes a rangefinder installation: the bus, an optional
// XSHUT expander and the sensors wired to it.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/rangefinder/distance"
	"github.com/mklimuk/rangefinder/gpio"
)

const (
	AdapterMCP2221 = "mcp2221"
	AdapterPeriph  = "periph"
	AdapterGobot   = "gobot"
	AdapterI2CDev  = "i2cdev"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Bus      Bus       `yaml:"bus"`
	Expander *Expander `yaml:"expander,omitempty"`
	Sensors  []Sensor  `yaml:"sensors"`
}

type Bus struct {
	Adapter string `yaml:"adapter"`
	// periph bus name (e.g. "/dev/i2c-1" or "1"), gobot bus number or i2c-dev node
	Device  string `yaml:"device,omitempty"`
	SpeedHz int    `yaml:"speed_hz,omitempty"`
	// MCP2221 enumeration index when several bridges are attached
	Index *int `yaml:"index,omitempty"`
}

type Expander struct {
	Address byte `yaml:"address"`
	Bank    int  `yaml:"bank"`
}

type Sensor struct {
	Name               string `yaml:"name"`
	Address            byte   `yaml:"address"`
	XShut              *int   `yaml:"xshut,omitempty"`
	TimingBudgetMs     uint32 `yaml:"timing_budget_ms"`
	InterMeasurementMs uint32 `yaml:"inter_measurement_ms"`
	OffsetMM           int16  `yaml:"offset_mm,omitempty"`
	XTalkKcps          uint16 `yaml:"xtalk_kcps,omitempty"`
	SigmaMM            uint16 `yaml:"sigma_mm,omitempty"`
	SignalKcps         uint16 `yaml:"signal_kcps,omitempty"`
}

// Default is a single sensor at the power up address behind an MCP2221.
func Default() *Config {
	return &Config{
		Bus:     Bus{Adapter: AdapterMCP2221, SpeedHz: 400_000},
		Sensors: []Sensor{{Name: "tof", Address: distance.DefaultAddress, TimingBudgetMs: 20}},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Bus.Adapter == "" {
		c.Bus.Adapter = AdapterMCP2221
	}
	for i := range c.Sensors {
		s := &c.Sensors[i]
		if s.Address == 0 {
			s.Address = distance.DefaultAddress
		}
		if s.TimingBudgetMs == 0 {
			s.TimingBudgetMs = 20
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("tof%d", i)
		}
	}
}

func (c *Config) Validate() error {
	switch c.Bus.Adapter {
	case AdapterMCP2221, AdapterPeriph, AdapterGobot, AdapterI2CDev:
	default:
		return fmt.Errorf("%w: unknown adapter %q", ErrInvalidConfig, c.Bus.Adapter)
	}
	if len(c.Sensors) == 0 {
		return fmt.Errorf("%w: no sensors", ErrInvalidConfig)
	}
	if c.Expander != nil && (c.Expander.Bank < 0 || c.Expander.Bank > 1) {
		return fmt.Errorf("%w: expander bank must be 0 or 1", ErrInvalidConfig)
	}
	addrs := make(map[byte]string)
	pins := make(map[int]string)
	for _, s := range c.Sensors {
		if s.Address > 0x7F {
			return fmt.Errorf("%w: sensor %s: address %#x is not a 7-bit address", ErrInvalidConfig, s.Name, s.Address)
		}
		if other, ok := addrs[s.Address]; ok {
			return fmt.Errorf("%w: sensors %s and %s share address %#x", ErrInvalidConfig, other, s.Name, s.Address)
		}
		addrs[s.Address] = s.Name
		if s.TimingBudgetMs < distance.MinTimingBudget || s.TimingBudgetMs > distance.MaxTimingBudget {
			return fmt.Errorf("%w: sensor %s: timing budget %d ms", ErrInvalidConfig, s.Name, s.TimingBudgetMs)
		}
		if s.InterMeasurementMs != 0 && s.InterMeasurementMs < s.TimingBudgetMs {
			return fmt.Errorf("%w: sensor %s: inter-measurement %d ms shorter than budget", ErrInvalidConfig, s.Name, s.InterMeasurementMs)
		}
		if s.XShut == nil {
			if len(c.Sensors) > 1 {
				return fmt.Errorf("%w: sensor %s: xshut pin required with several sensors", ErrInvalidConfig, s.Name)
			}
			continue
		}
		if c.Expander == nil {
			return fmt.Errorf("%w: sensor %s: xshut pin without expander", ErrInvalidConfig, s.Name)
		}
		if *s.XShut < 0 || *s.XShut >= gpio.Pins {
			return fmt.Errorf("%w: sensor %s: xshut pin %d", ErrInvalidConfig, s.Name, *s.XShut)
		}
		if other, ok := pins[*s.XShut]; ok {
			return fmt.Errorf("%w: sensors %s and %s share xshut pin %d", ErrInvalidConfig, other, s.Name, *s.XShut)
		}
		pins[*s.XShut] = s.Name
		if len(c.Sensors) > 1 && s.Address == distance.DefaultAddress {
			return fmt.Errorf("%w: sensor %s: %#x is the power up address", ErrInvalidConfig, s.Name, s.Address)
		}
	}
	return nil
}

// Options returns driver options for the sensor.
func (s Sensor) Options() []distance.VL53L4CDOpt {
	return []distance.VL53L4CDOpt{
		distance.WithTimingBudget(s.TimingBudgetMs),
		distance.WithInterMeasurement(s.InterMeasurementMs),
	}
}

// XShutPins returns the expander pins of all sensors in order.
func (c *Config) XShutPins() []int {
	pins := make([]int, 0, len(c.Sensors))
	for _, s := range c.Sensors {
		if s.XShut != nil {
			pins = append(pins, *s.XShut)
		}
	}
	return pins
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("could not encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("could not write config: %w", err)
	}
	return nil
}
