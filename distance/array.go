package distance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mklimuk/rangefinder"
)

// ShutdownController drives the XSHUT lines of several sensors sharing one bus.
type ShutdownController interface {
	SetShutdown(ctx context.Context, index int, shutdown bool) error
}

// firmware boot time after XSHUT is released (tBOOT)
const xshutBootDelay = 2 * time.Millisecond

// AssignAddresses brings up sensors that all power up at DefaultAddress.
// Every sensor is held in shutdown, then released one at a time, moved to
// addrs[i] and initialised. Sensor i is wired to XSHUT line i.
func AssignAddresses(ctx context.Context, bus rangefinder.I2CBus, ctrl ShutdownController, addrs []byte, opts ...VL53L4CDOpt) ([]*VL53L4CD, error) {
	seen := make(map[byte]bool, len(addrs))
	for _, addr := range addrs {
		if addr == 0 || addr > 0x7F || addr == DefaultAddress {
			return nil, fmt.Errorf("%w: %#x", ErrInvalidAddress, addr)
		}
		if seen[addr] {
			return nil, fmt.Errorf("%w: %#x assigned twice", ErrInvalidAddress, addr)
		}
		seen[addr] = true
	}
	for i := range addrs {
		if err := ctrl.SetShutdown(ctx, i, true); err != nil {
			return nil, fmt.Errorf("could not shut down sensor %d: %w", i, err)
		}
	}
	sensors := make([]*VL53L4CD, 0, len(addrs))
	closeAll := func(err error) ([]*VL53L4CD, error) {
		for _, s := range sensors {
			err = errors.Join(err, s.Close())
		}
		return nil, err
	}
	for i, addr := range addrs {
		if err := ctrl.SetShutdown(ctx, i, false); err != nil {
			return closeAll(fmt.Errorf("could not wake up sensor %d: %w", i, err))
		}
		timer := time.NewTimer(xshutBootDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return closeAll(ctx.Err())
		}
		sensorOpts := append(append([]VL53L4CDOpt{}, opts...), WithAddress(DefaultAddress))
		s := NewVL53L4CD(bus, sensorOpts...)
		if err := s.waitBoot(ctx); err != nil {
			return closeAll(fmt.Errorf("sensor %d: %w", i, errors.Join(err, s.Close())))
		}
		if err := s.ChangeDeviceAddress(ctx, addr); err != nil {
			return closeAll(fmt.Errorf("sensor %d: %w", i, errors.Join(err, s.Close())))
		}
		sensors = append(sensors, s)
		if err := s.Init(ctx); err != nil {
			return closeAll(fmt.Errorf("sensor %d at %#x: %w", i, addr, err))
		}
	}
	return sensors, nil
}

func (s *VL53L4CD) waitBoot(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.boot(ctx)
}
