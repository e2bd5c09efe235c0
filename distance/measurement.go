package distance

import (
	"context"
	"encoding/binary"

	"periph.io/x/conn/v3/physic"
)

// Sensor produces measurements on demand.
type Sensor interface {
	Measure(ctx context.Context) (Measurement, error)
}

var _ Sensor = &VL53L4CD{}
var _ Sensor = &MockDistanceSensor{}

// Measurement is one decoded ranging result.
type Measurement struct {
	Status     Status `yaml:"status"`
	DistanceMM uint16 `yaml:"distance_mm"`
	// kcps
	AmbientRate  uint32 `yaml:"ambient_rate"`
	SignalRate   uint32 `yaml:"signal_rate"`
	SpadsEnabled uint16 `yaml:"spads_enabled"`
	SigmaMM      uint16 `yaml:"sigma_mm"`
}

func (m Measurement) Valid() bool {
	return m.Status == StatusValid
}

func (m Measurement) Distance() physic.Distance {
	return physic.Distance(m.DistanceMM) * physic.MilliMetre
}

// decodeResult decodes the result block read from RESULT_RANGE_STATUS.
func decodeResult(buf []byte) Measurement {
	word := func(reg Register) uint16 {
		off := int(reg - RESULT_RANGE_STATUS)
		return binary.BigEndian.Uint16(buf[off : off+2])
	}
	return Measurement{
		Status:       StatusFromReturn(buf[0]),
		DistanceMM:   word(RESULT_DISTANCE),
		AmbientRate:  uint32(word(RESULT_AMBIENT_RATE)) * 8,
		SignalRate:   uint32(word(RESULT_SIGNAL_RATE)) * 8,
		SpadsEnabled: word(RESULT_SPAD_NB) / 256,
		SigmaMM:      word(RESULT_SIGMA) / 4,
	}
}
