package gpio

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/rangefinder"
	"github.com/mklimuk/rangefinder/i2c"
)

type registry int

const DefaultMCP23017Address = 0x21

// number of I/O lines on both ports
const Pins = 16

const (
	IODIRA registry = iota
	IOPOLA
	GPINTENA
	DEFVALA
	INTCONA
	IOCONA
	GPPUA
	INTFA
	INTCAPA
	GPIOA
	OLATA
	IODIRB
	IOPOLB
	GPINTENB
	DEFVALB
	INTCONB
	IOCONB
	GPPUB
	INTFB
	INTCAPB
	GPIOB
	OLATB
)

// BankAddr maps registers to addresses for IOCON.BANK = 0 and IOCON.BANK = 1.
var BankAddr = []map[registry]byte{
	{
		IODIRA:   0x00,
		IOPOLA:   0x02,
		GPINTENA: 0x04,
		DEFVALA:  0x06,
		INTCONA:  0x08,
		IOCONA:   0x0A,
		GPPUA:    0x0C,
		INTFA:    0x0E,
		INTCAPA:  0x10,
		GPIOA:    0x12,
		OLATA:    0x14,
		IODIRB:   0x01,
		IOPOLB:   0x03,
		GPINTENB: 0x05,
		DEFVALB:  0x07,
		INTCONB:  0x09,
		IOCONB:   0x0B,
		GPPUB:    0x0D,
		INTFB:    0x0F,
		INTCAPB:  0x11,
		GPIOB:    0x13,
		OLATB:    0x15,
	},
	{
		IODIRA:   0x00,
		IOPOLA:   0x01,
		GPINTENA: 0x02,
		DEFVALA:  0x03,
		INTCONA:  0x04,
		IOCONA:   0x05,
		GPPUA:    0x06,
		INTFA:    0x07,
		INTCAPA:  0x08,
		GPIOA:    0x09,
		OLATA:    0x0A,
		IODIRB:   0x10,
		IOPOLB:   0x11,
		GPINTENB: 0x12,
		DEFVALB:  0x13,
		INTCONB:  0x14,
		IOCONB:   0x15,
		GPPUB:    0x16,
		INTFB:    0x17,
		INTCAPB:  0x18,
		GPIOB:    0x19,
		OLATB:    0x1A,
	},
}

/*
	Steps to drive outputs:

1. Clear IODIR bits of the output pins (0 = output) - 0x00(A)/0x01(B)
2. Write the output levels to OLAT
3. Read back GPIO to verify the pin state
*/
type MCP23017 struct {
	mx   sync.Mutex
	dev  *i2c.Device
	bank int
	// output latches of port A and B as last written
	latch [2]byte
}

type MCP23017Opt func(*MCP23017)

// WithBank1 selects the IOCON.BANK = 1 register layout.
func WithBank1() MCP23017Opt {
	return func(m *MCP23017) {
		m.bank = 1
	}
}

func NewMCP23017(bus rangefinder.I2CBus, address byte, opts ...MCP23017Opt) *MCP23017 {
	m := &MCP23017{dev: i2c.NewDevice(bus, address)}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InitA sets IODIR registry to inout on I/O pool A
func (m *MCP23017) InitA(ctx context.Context, inout byte) error {
	if err := m.write(ctx, IODIRA, inout); err != nil {
		return fmt.Errorf("could not initialize gpio A set: %w", err)
	}
	return nil
}

// InitB sets IODIR registry to inout on I/O pool B
func (m *MCP23017) InitB(ctx context.Context, inout byte) error {
	if err := m.write(ctx, IODIRB, inout); err != nil {
		return fmt.Errorf("could not initialize gpio B set: %w", err)
	}
	return nil
}

// PullUpA sets up pull up resistors on set A
func (m *MCP23017) PullUpA(ctx context.Context, settings byte) error {
	if err := m.write(ctx, GPPUA, settings); err != nil {
		return fmt.Errorf("could not set pull-up on gpio A set: %w", err)
	}
	return nil
}

// PullUpB sets up pull up resistors on set B
func (m *MCP23017) PullUpB(ctx context.Context, settings byte) error {
	if err := m.write(ctx, GPPUB, settings); err != nil {
		return fmt.Errorf("could not set pull-up on gpio B set: %w", err)
	}
	return nil
}

// WriteA sets the output latch of set A
func (m *MCP23017) WriteA(ctx context.Context, value byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.write(ctx, OLATA, value); err != nil {
		return fmt.Errorf("could not write gpio A set: %w", err)
	}
	m.latch[0] = value
	return nil
}

// WriteB sets the output latch of set B
func (m *MCP23017) WriteB(ctx context.Context, value byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.write(ctx, OLATB, value); err != nil {
		return fmt.Errorf("could not write gpio B set: %w", err)
	}
	m.latch[1] = value
	return nil
}

func (m *MCP23017) Read(ctx context.Context) ([]byte, error) {
	res := make([]byte, 2)
	var err error
	res[0], err = m.ReadA(ctx)
	if err != nil {
		return nil, err
	}
	res[1], err = m.ReadB(ctx)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReadA reads gpio A set values
func (m *MCP23017) ReadA(ctx context.Context) (byte, error) {
	res, err := m.read(ctx, GPIOA)
	if err != nil {
		return 0, fmt.Errorf("could not read gpio A set: %w", err)
	}
	return res, nil
}

// ReadB reads gpio B set values
func (m *MCP23017) ReadB(ctx context.Context) (byte, error) {
	res, err := m.read(ctx, GPIOB)
	if err != nil {
		return 0, fmt.Errorf("could not read gpio B set: %w", err)
	}
	return res, nil
}

// ReadSettings reads contents of IOCON registry
func (m *MCP23017) ReadSettings(ctx context.Context) (byte, error) {
	res, err := m.read(ctx, IOCONA)
	if err != nil {
		return 0, fmt.Errorf("could not read gpio settings: %w", err)
	}
	return res, nil
}

// SetPin drives a single output, pins 0-7 are set A and 8-15 set B.
func (m *MCP23017) SetPin(ctx context.Context, pin int, high bool) error {
	if pin < 0 || pin >= Pins {
		return fmt.Errorf("pin %d out of range [0, %d)", pin, Pins)
	}
	m.mx.Lock()
	defer m.mx.Unlock()
	port := pin / 8
	value := m.latch[port]
	if high {
		value |= 1 << (pin % 8)
	} else {
		value &^= 1 << (pin % 8)
	}
	reg := OLATA
	if port == 1 {
		reg = OLATB
	}
	if err := m.write(ctx, reg, value); err != nil {
		return fmt.Errorf("could not set pin %d: %w", pin, err)
	}
	m.latch[port] = value
	return nil
}

func (m *MCP23017) Close() error {
	return m.dev.Close()
}

func (m *MCP23017) write(ctx context.Context, reg registry, value byte) error {
	return m.dev.WriteByte8(ctx, BankAddr[m.bank][reg], value)
}

func (m *MCP23017) read(ctx context.Context, reg registry) (byte, error) {
	return m.dev.ReadByte8(ctx, BankAddr[m.bank][reg])
}
