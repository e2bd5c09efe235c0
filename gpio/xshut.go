package gpio

import (
	"context"
	"fmt"
)

// XShut drives active-low sensor shutdown lines wired to expander pins.
// Index i of SetShutdown refers to Pins[i].
type XShut struct {
	expander *MCP23017
	Pins     []int
}

// NewXShut returns a controller for the given expander pins.
func NewXShut(expander *MCP23017, pins ...int) *XShut {
	return &XShut{expander: expander, Pins: pins}
}

// Init configures every used pin as an output and holds all sensors in shutdown.
func (x *XShut) Init(ctx context.Context) error {
	dir := [2]byte{0xFF, 0xFF}
	for _, pin := range x.Pins {
		if pin < 0 || pin >= Pins {
			return fmt.Errorf("pin %d out of range [0, %d)", pin, Pins)
		}
		dir[pin/8] &^= 1 << (pin % 8)
	}
	if err := x.expander.WriteA(ctx, 0x00); err != nil {
		return err
	}
	if err := x.expander.WriteB(ctx, 0x00); err != nil {
		return err
	}
	if err := x.expander.InitA(ctx, dir[0]); err != nil {
		return err
	}
	return x.expander.InitB(ctx, dir[1])
}

func (x *XShut) SetShutdown(ctx context.Context, index int, shutdown bool) error {
	if index < 0 || index >= len(x.Pins) {
		return fmt.Errorf("xshut line %d not configured", index)
	}
	return x.expander.SetPin(ctx, x.Pins[index], !shutdown)
}

func (x *XShut) Lines() int {
	return len(x.Pins)
}
