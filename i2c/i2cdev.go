package i2c

import (
	"context"
	"fmt"
	"sync"

	goi2c "github.com/swdee/go-i2c"

	"github.com/mklimuk/rangefinder"
)

var _ rangefinder.I2CBus = &DevBus{}

// devConn is the part of a go-i2c handle the bus needs.
type devConn interface {
	WriteBytes(buf []byte) (int, error)
	ReadBytes(buf []byte) (int, error)
	Close() error
}

// DevBus talks to a Linux i2c-dev node (e.g. /dev/i2c-1) through go-i2c.
// A go-i2c handle is bound to one peripheral address, so handles are opened
// lazily per address and cached like GobotBus connections.
type DevBus struct {
	mx    sync.Mutex
	dev   string
	open  func(address byte, dev string) (devConn, error)
	conns map[byte]devConn
}

func NewDevBus(dev string) *DevBus {
	return &DevBus{
		dev: dev,
		open: func(address byte, dev string) (devConn, error) {
			return goi2c.New(address, dev)
		},
		conns: make(map[byte]devConn),
	}
}

func (b *DevBus) Tx(ctx context.Context, address byte, w, r []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	conn, err := b.connection(address)
	if err != nil {
		return err
	}
	if len(w) > 0 {
		if _, err := conn.WriteBytes(w); err != nil {
			return fmt.Errorf("could not write to %s device %#x: %w", b.dev, address, err)
		}
	}
	if len(r) > 0 {
		n, err := conn.ReadBytes(r)
		if err != nil {
			return fmt.Errorf("could not read from %s device %#x: %w", b.dev, address, err)
		}
		if n != len(r) {
			return fmt.Errorf("short read from %s device %#x: expected %d, got %d", b.dev, address, len(r), n)
		}
	}
	return nil
}

func (b *DevBus) connection(address byte) (devConn, error) {
	if conn, ok := b.conns[address]; ok {
		return conn, nil
	}
	conn, err := b.open(address, b.dev)
	if err != nil {
		return nil, fmt.Errorf("could not open %s device %#x: %w", b.dev, address, err)
	}
	b.conns[address] = conn
	return conn, nil
}

// Release closes all handles; they are reopened on next use.
func (b *DevBus) Release(ctx context.Context) error {
	return b.Close()
}

func (b *DevBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var firstErr error
	for addr, conn := range b.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("could not close handle for %#x: %w", addr, err)
		}
		delete(b.conns, addr)
	}
	return firstErr
}
