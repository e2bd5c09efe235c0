// Package i2ctest provides an in-memory peripheral for exercising register
// level drivers without hardware.
package i2ctest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/rangefinder"
)

var ErrNoDevice = errors.New("i2ctest: no device acknowledged the address")

var _ rangefinder.I2CBus = &Registers{}

// Transfer is a recorded bus cycle.
type Transfer struct {
	Addr byte
	W    []byte
	R    []byte
}

// Registers simulates a peripheral with a flat, auto-incrementing register
// file. The first Width bytes of every write select the register pointer,
// the rest is stored from there on. Reads continue from the pointer.
type Registers struct {
	mx      sync.Mutex
	address byte
	width   int
	pointer uint16
	mem     map[uint16]byte

	transfers []Transfer
	releases  int
	busy      int
	err       error

	// OnWrite is called after data has been stored at reg.
	OnWrite func(reg uint16, data []byte)
	// OnRead is called before n bytes are served from reg. It may update
	// registers with Set.
	OnRead func(reg uint16, n int)
}

// NewRegisters16 returns a peripheral with 16-bit register addresses.
func NewRegisters16(address byte) *Registers {
	return &Registers{address: address, width: 2, mem: make(map[uint16]byte)}
}

// NewRegisters8 returns a peripheral with 8-bit register addresses.
func NewRegisters8(address byte) *Registers {
	return &Registers{address: address, width: 1, mem: make(map[uint16]byte)}
}

func (r *Registers) Tx(ctx context.Context, address byte, w, rd []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mx.Lock()
	r.transfers = append(r.transfers, Transfer{Addr: address, W: append([]byte(nil), w...)})
	if r.err != nil {
		err := r.err
		r.mx.Unlock()
		return err
	}
	if r.busy > 0 {
		r.busy--
		r.mx.Unlock()
		return rangefinder.ErrBusBusy
	}
	if address != r.address {
		r.mx.Unlock()
		return fmt.Errorf("%w: %#x", ErrNoDevice, address)
	}
	var written []byte
	if len(w) >= r.width {
		if r.width == 2 {
			r.pointer = binary.BigEndian.Uint16(w)
		} else {
			r.pointer = uint16(w[0])
		}
		written = w[r.width:]
	}
	start := r.pointer
	for i, b := range written {
		r.mem[start+uint16(i)] = b
	}
	r.mx.Unlock()

	if len(written) > 0 && r.OnWrite != nil {
		r.OnWrite(start, append([]byte(nil), written...))
	}
	if len(rd) == 0 {
		return nil
	}
	if r.OnRead != nil {
		r.OnRead(start, len(rd))
	}

	r.mx.Lock()
	defer r.mx.Unlock()
	for i := range rd {
		rd[i] = r.mem[start+uint16(i)]
	}
	r.transfers[len(r.transfers)-1].R = append([]byte(nil), rd...)
	return nil
}

func (r *Registers) Release(ctx context.Context) error {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.releases++
	return nil
}

// Address returns the address the peripheral currently answers to.
func (r *Registers) Address() byte {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.address
}

// SetAddress moves the peripheral to another bus address.
func (r *Registers) SetAddress(address byte) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.address = address
}

// Fail makes every following transfer return err; nil restores normal operation.
func (r *Registers) Fail(err error) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.err = err
}

// Busy makes the next n transfers report rangefinder.ErrBusBusy.
func (r *Registers) Busy(n int) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.busy = n
}

func (r *Registers) Releases() int {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.releases
}

func (r *Registers) Set(reg uint16, data ...byte) {
	r.mx.Lock()
	defer r.mx.Unlock()
	for i, b := range data {
		r.mem[reg+uint16(i)] = b
	}
}

func (r *Registers) SetWord(reg uint16, value uint16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], value)
	r.Set(reg, buf[:]...)
}

func (r *Registers) SetDword(reg uint16, value uint32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], value)
	r.Set(reg, buf[:]...)
}

func (r *Registers) Get(reg uint16, n int) []byte {
	r.mx.Lock()
	defer r.mx.Unlock()
	out := make([]byte, n)
	for i := range out {
		out[i] = r.mem[reg+uint16(i)]
	}
	return out
}

func (r *Registers) Byte(reg uint16) byte {
	return r.Get(reg, 1)[0]
}

func (r *Registers) Word(reg uint16) uint16 {
	return binary.BigEndian.Uint16(r.Get(reg, 2))
}

func (r *Registers) Dword(reg uint16) uint32 {
	return binary.BigEndian.Uint32(r.Get(reg, 4))
}

// Transfers returns a copy of the recorded bus cycles.
func (r *Registers) Transfers() []Transfer {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]Transfer(nil), r.transfers...)
}

// WritesTo returns the payloads of every write that started at reg, in order.
func (r *Registers) WritesTo(reg uint16) [][]byte {
	r.mx.Lock()
	defer r.mx.Unlock()
	var out [][]byte
	for _, t := range r.transfers {
		if len(t.W) <= r.width {
			continue
		}
		var start uint16
		if r.width == 2 {
			start = binary.BigEndian.Uint16(t.W)
		} else {
			start = uint16(t.W[0])
		}
		if start == reg {
			out = append(out, t.W[r.width:])
		}
	}
	return out
}

// ResetLog forgets recorded transfers.
func (r *Registers) ResetLog() {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.transfers = nil
}
