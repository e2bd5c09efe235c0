package distance

import (
	"context"
	"sync"

	"github.com/mklimuk/rangefinder/i2c/i2ctest"
)

// sensorSim is a register file that behaves like a booted VL53L4CD: writing
// SYSTEM_START arms ranging, a ranging sensor raises the interrupt when it is
// polled and SYSTEM_INTERRUPT_CLEAR drops it again.
type sensorSim struct {
	*i2ctest.Registers

	mx      sync.Mutex
	ranging bool
	stalled bool
	starts  []byte
	awake   bool
}

func newSensorSim(address byte) *sensorSim {
	sim := &sensorSim{Registers: i2ctest.NewRegisters16(address), awake: true}
	sim.SetWord(uint16(IDENTIFICATION_MODEL_ID), ModelID)
	sim.Set(uint16(FIRMWARE_SYSTEM_STATUS), firmwareBooted)
	sim.SetWord(uint16(OSC_FREQ), 0xB000)
	sim.SetDword(uint16(RESULT_OSC_CALIBRATE_VAL), 677)
	sim.OnWrite = sim.onWrite
	sim.OnRead = sim.onRead
	return sim
}

func (s *sensorSim) onWrite(reg uint16, data []byte) {
	for i, b := range data {
		switch Register(reg + uint16(i)) {
		case SYSTEM_START:
			s.mx.Lock()
			s.ranging = b != startStop
			s.starts = append(s.starts, b)
			s.mx.Unlock()
		case SYSTEM_INTERRUPT_CLEAR:
			if b == 0x01 {
				s.setInterrupt(false)
			}
		case I2C_SLAVE_DEVICE_ADDRESS:
			s.SetAddress(b & 0x7F)
		}
	}
}

func (s *sensorSim) onRead(reg uint16, n int) {
	if Register(reg) != GPIO_TIO_HV_STATUS {
		return
	}
	s.mx.Lock()
	produce := s.ranging && !s.stalled
	s.mx.Unlock()
	if produce {
		s.setInterrupt(true)
	}
}

// setInterrupt drives GPIO_TIO_HV_STATUS bit 0 relative to the polarity in GPIO_HV_MUX_CTRL.
func (s *sensorSim) setInterrupt(raised bool) {
	polarity := (s.Byte(uint16(GPIO_HV_MUX_CTRL)) >> 4) & 1
	if raised {
		polarity ^= 1
	}
	status := s.Byte(uint16(GPIO_TIO_HV_STATUS))
	s.Set(uint16(GPIO_TIO_HV_STATUS), status&^1|polarity)
}

func (s *sensorSim) stall(stalled bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.stalled = stalled
}

func (s *sensorSim) startCommands() []byte {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]byte(nil), s.starts...)
}

func (s *sensorSim) setResult(status byte, spads, signal, ambient, sigma, distance uint16) {
	s.Set(uint16(RESULT_RANGE_STATUS), status)
	s.SetWord(uint16(RESULT_SPAD_NB), spads)
	s.SetWord(uint16(RESULT_SIGNAL_RATE), signal)
	s.SetWord(uint16(RESULT_AMBIENT_RATE), ambient)
	s.SetWord(uint16(RESULT_SIGMA), sigma)
	s.SetWord(uint16(RESULT_DISTANCE), distance)
}

// simBus routes transfers to the simulated sensor currently answering the address.
type simBus struct {
	sensors []*sensorSim
}

func (b *simBus) Tx(ctx context.Context, address byte, w, r []byte) error {
	for _, s := range b.sensors {
		s.mx.Lock()
		awake := s.awake
		s.mx.Unlock()
		if awake && s.Address() == address {
			return s.Tx(ctx, address, w, r)
		}
	}
	return i2ctest.ErrNoDevice
}

func (b *simBus) Release(ctx context.Context) error {
	return nil
}

// simShutdown powers simulated sensors up and down; waking up restores the default address.
type simShutdown struct {
	bus *simBus
}

func (c *simShutdown) SetShutdown(ctx context.Context, index int, shutdown bool) error {
	s := c.bus.sensors[index]
	s.mx.Lock()
	s.awake = !shutdown
	s.mx.Unlock()
	if shutdown {
		s.SetAddress(DefaultAddress)
	}
	return nil
}
