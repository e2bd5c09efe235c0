package i2c

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/rangefinder"
)

// MaxTransactionSize is the largest frame a single bus transfer may carry,
// register address prefix included.
const MaxTransactionSize = 255

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrTransactionAborted = errors.New("transaction aborted")
	ErrClosed             = errors.New("device handle closed")
)

// Device is a handle to one peripheral on a bus. It exposes register level
// I/O with 8 and 16 bit register addresses; multi-byte values are big-endian.
// All bus access through one Device is serialised so that a register address
// is always followed by the data of the same transfer.
type Device struct {
	mx         sync.Mutex
	bus        rangefinder.I2CBus
	addr       byte
	retryLimit int
	closed     bool
}

type DeviceOpt func(*Device)

// WithRetryLimit sets how many times a transfer is repeated after the bus
// reported itself busy. Each retry is preceded by a bus release.
func WithRetryLimit(limit int) DeviceOpt {
	return func(d *Device) {
		if limit >= 0 {
			d.retryLimit = limit
		}
	}
}

func NewDevice(bus rangefinder.I2CBus, addr byte, opts ...DeviceOpt) *Device {
	d := &Device{bus: bus, addr: addr, retryLimit: 1}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Addr returns the 7-bit peripheral address.
func (d *Device) Addr() byte {
	return d.addr
}

// Bus returns the channel the device is attached to.
func (d *Device) Bus() rangefinder.I2CBus {
	return d.bus
}

// Close releases the handle. The bus itself stays open.
func (d *Device) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.closed = true
	return nil
}

// Transaction performs a combined write-then-read cycle sending the first
// sendLen bytes of send and receiving recvLen bytes into recv.
// A recvLen of zero is rejected, use Write for write-only transfers.
func (d *Device) Transaction(ctx context.Context, send []byte, sendLen int, recv []byte, recvLen int) error {
	if sendLen < 0 || len(send) < sendLen {
		return fmt.Errorf("%w: send buffer is too small, must be at least %d", ErrInvalidArgument, sendLen)
	}
	if recvLen < 1 {
		return fmt.Errorf("%w: receive size must be at least 1, %d given", ErrInvalidArgument, recvLen)
	}
	if len(recv) < recvLen {
		return fmt.Errorf("%w: receive buffer is too small, must be at least %d", ErrInvalidArgument, recvLen)
	}
	if sendLen > MaxTransactionSize || recvLen > MaxTransactionSize {
		return fmt.Errorf("%w: transfer is too large, must be at most %d", ErrInvalidArgument, MaxTransactionSize)
	}
	return d.tx(ctx, send[:sendLen], recv[:recvLen])
}

// Write sends data to the device in a single transfer.
func (d *Device) Write(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: nothing to write", ErrInvalidArgument)
	}
	if len(data) > MaxTransactionSize {
		return fmt.Errorf("%w: buffer is too large, must be at most %d", ErrInvalidArgument, MaxTransactionSize)
	}
	return d.tx(ctx, data, nil)
}

// Read receives count bytes into buffer without prompting the device first.
func (d *Device) Read(ctx context.Context, buffer []byte, count int) error {
	if err := checkCount(count, buffer); err != nil {
		return err
	}
	return d.tx(ctx, nil, buffer[:count])
}

// ReadFromAddress8 reads count consecutive bytes starting at an 8-bit register.
func (d *Device) ReadFromAddress8(ctx context.Context, register byte, count int, buffer []byte) error {
	if err := checkCount(count, buffer); err != nil {
		return err
	}
	return d.Transaction(ctx, []byte{register}, 1, buffer, count)
}

// ReadFromAddress16 reads count consecutive bytes starting at a 16-bit register.
func (d *Device) ReadFromAddress16(ctx context.Context, register uint16, count int, buffer []byte) error {
	if err := checkCount(count, buffer); err != nil {
		return err
	}
	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], register)
	return d.Transaction(ctx, prefix[:], len(prefix), buffer, count)
}

// WriteToAddress8 writes data starting at an 8-bit register.
func (d *Device) WriteToAddress8(ctx context.Context, register byte, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: nothing to write to register %#x", ErrInvalidArgument, register)
	}
	buf := make([]byte, len(data)+1)
	buf[0] = register
	copy(buf[1:], data)
	return d.Write(ctx, buf)
}

// WriteToAddress16 writes data starting at a 16-bit register.
func (d *Device) WriteToAddress16(ctx context.Context, register uint16, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: nothing to write to register %#04x", ErrInvalidArgument, register)
	}
	buf := make([]byte, len(data)+2)
	binary.BigEndian.PutUint16(buf, register)
	copy(buf[2:], data)
	return d.Write(ctx, buf)
}

func (d *Device) ReadByte8(ctx context.Context, register byte) (byte, error) {
	var buf [1]byte
	if err := d.ReadFromAddress8(ctx, register, 1, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (d *Device) WriteByte8(ctx context.Context, register byte, value byte) error {
	return d.WriteToAddress8(ctx, register, []byte{value})
}

func (d *Device) ReadByte16(ctx context.Context, register uint16) (byte, error) {
	var buf [1]byte
	if err := d.ReadFromAddress16(ctx, register, 1, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (d *Device) ReadWord16(ctx context.Context, register uint16) (uint16, error) {
	var buf [2]byte
	if err := d.ReadFromAddress16(ctx, register, 2, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func (d *Device) ReadDword16(ctx context.Context, register uint16) (uint32, error) {
	var buf [4]byte
	if err := d.ReadFromAddress16(ctx, register, 4, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func (d *Device) WriteByte16(ctx context.Context, register uint16, value byte) error {
	return d.WriteToAddress16(ctx, register, []byte{value})
}

func (d *Device) WriteWord16(ctx context.Context, register uint16, value uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], value)
	return d.WriteToAddress16(ctx, register, buf[:])
}

func (d *Device) WriteDword16(ctx context.Context, register uint16, value uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], value)
	return d.WriteToAddress16(ctx, register, buf[:])
}

func (d *Device) tx(ctx context.Context, w, r []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if d.closed {
		return fmt.Errorf("device %#x: %w", d.addr, ErrClosed)
	}
	var err error
	for attempt := 0; attempt <= d.retryLimit; attempt++ {
		err = d.bus.Tx(ctx, d.addr, w, r)
		if err == nil {
			return nil
		}
		if !errors.Is(err, rangefinder.ErrBusBusy) {
			break
		}
		// try to release the bus
		_ = d.bus.Release(ctx)
	}
	return fmt.Errorf("%w: device %#x: %w", ErrTransactionAborted, d.addr, err)
}

func checkCount(count int, buffer []byte) error {
	if count < 1 {
		return fmt.Errorf("%w: value must be at least 1, %d given", ErrInvalidArgument, count)
	}
	if len(buffer) < count {
		return fmt.Errorf("%w: buffer is too small, must be at least %d", ErrInvalidArgument, count)
	}
	if count > MaxTransactionSize {
		return fmt.Errorf("%w: count must be at most %d", ErrInvalidArgument, MaxTransactionSize)
	}
	return nil
}
