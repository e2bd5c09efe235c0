package gpio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/rangefinder/i2c/i2ctest"
)

func TestMCP23017_Bank0(t *testing.T) {
	regs := i2ctest.NewRegisters8(DefaultMCP23017Address)
	m := NewMCP23017(regs, DefaultMCP23017Address)
	ctx := context.Background()

	require.NoError(t, m.InitA(ctx, 0xF0))
	require.NoError(t, m.InitB(ctx, 0x0F))
	require.NoError(t, m.PullUpA(ctx, 0x01))
	assert.Equal(t, byte(0xF0), regs.Byte(0x00))
	assert.Equal(t, byte(0x0F), regs.Byte(0x01))
	assert.Equal(t, byte(0x01), regs.Byte(0x0C))

	regs.Set(0x12, 0xA5)
	regs.Set(0x13, 0x5A)
	res, err := m.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xA5, 0x5A}, res)
}

func TestMCP23017_Bank1(t *testing.T) {
	regs := i2ctest.NewRegisters8(0x20)
	m := NewMCP23017(regs, 0x20, WithBank1())
	ctx := context.Background()

	require.NoError(t, m.InitB(ctx, 0x00))
	require.NoError(t, m.WriteB(ctx, 0x81))
	assert.Len(t, regs.WritesTo(0x10), 1)
	assert.Equal(t, byte(0x81), regs.Byte(0x1A))
}

func TestMCP23017_SetPin(t *testing.T) {
	regs := i2ctest.NewRegisters8(DefaultMCP23017Address)
	m := NewMCP23017(regs, DefaultMCP23017Address)
	ctx := context.Background()

	require.NoError(t, m.SetPin(ctx, 1, true))
	require.NoError(t, m.SetPin(ctx, 3, true))
	require.NoError(t, m.SetPin(ctx, 9, true))
	require.NoError(t, m.SetPin(ctx, 1, false))
	assert.Equal(t, byte(0x08), regs.Byte(0x14))
	assert.Equal(t, byte(0x02), regs.Byte(0x15))

	assert.Error(t, m.SetPin(ctx, 16, true))
	assert.Error(t, m.SetPin(ctx, -1, true))
}

func TestXShut(t *testing.T) {
	regs := i2ctest.NewRegisters8(DefaultMCP23017Address)
	x := NewXShut(NewMCP23017(regs, DefaultMCP23017Address), 0, 1, 8)
	ctx := context.Background()

	require.NoError(t, x.Init(ctx))
	assert.Equal(t, byte(0xFC), regs.Byte(0x00), "pins 0 and 1 are outputs")
	assert.Equal(t, byte(0xFE), regs.Byte(0x01), "pin 8 is an output")
	assert.Equal(t, byte(0x00), regs.Byte(0x14))

	require.NoError(t, x.SetShutdown(ctx, 2, false))
	assert.Equal(t, byte(0x01), regs.Byte(0x15))
	require.NoError(t, x.SetShutdown(ctx, 0, false))
	assert.Equal(t, byte(0x01), regs.Byte(0x14))
	require.NoError(t, x.SetShutdown(ctx, 0, true))
	assert.Equal(t, byte(0x00), regs.Byte(0x14))

	assert.Error(t, x.SetShutdown(ctx, 3, true))
	assert.Equal(t, 3, x.Lines())
}
