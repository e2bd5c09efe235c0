package i2c

import (
	"context"
	"fmt"
	"sync"

	"github.com/mklimuk/rangefinder"
	"gobot.io/x/gobot/v2/drivers/i2c"
)

var _ rangefinder.I2CBus = &GobotBus{}

// GobotBus adapts a gobot I2C connector (e.g. the NanoPi adaptor) to the
// rangefinder bus contract. Gobot hands out one connection per peripheral
// address; they are opened lazily and cached.
//
// Gobot has no combined write-read primitive, so a transaction is a write
// followed by a read. Device serialises both halves.
type GobotBus struct {
	mx        sync.Mutex
	connector i2c.Connector
	busNr     int
	conns     map[byte]i2c.Connection
}

func NewGobotBus(connector i2c.Connector, busNr int) *GobotBus {
	return &GobotBus{
		connector: connector,
		busNr:     busNr,
		conns:     make(map[byte]i2c.Connection),
	}
}

// NewGobotBusDefault uses the connector's default bus number.
func NewGobotBusDefault(connector i2c.Connector) *GobotBus {
	return NewGobotBus(connector, connector.DefaultI2cBus())
}

func (b *GobotBus) Tx(ctx context.Context, address byte, w, r []byte) error {
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
		if _, err := conn.Write(w); err != nil {
			return fmt.Errorf("could not write to i2c bus %d device %#x: %w", b.busNr, address, err)
		}
	}
	if len(r) > 0 {
		n, err := conn.Read(r)
		if err != nil {
			return fmt.Errorf("could not read from i2c bus %d device %#x: %w", b.busNr, address, err)
		}
		if n != len(r) {
			return fmt.Errorf("short read from i2c bus %d device %#x: expected %d, got %d", b.busNr, address, len(r), n)
		}
	}
	return nil
}

func (b *GobotBus) connection(address byte) (i2c.Connection, error) {
	if conn, ok := b.conns[address]; ok {
		return conn, nil
	}
	conn, err := b.connector.GetI2cConnection(int(address), b.busNr)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus %d device %#x: %w", b.busNr, address, err)
	}
	b.conns[address] = conn
	return conn, nil
}

// Release drops every cached connection; they are reopened on next use.
func (b *GobotBus) Release(ctx context.Context) error {
	return b.Close()
}

func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var firstErr error
	for addr, conn := range b.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("could not close connection to %#x: %w", addr, err)
		}
		delete(b.conns, addr)
	}
	return firstErr
}
