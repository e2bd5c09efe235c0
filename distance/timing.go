package distance

import (
	"fmt"
	"math"
)

const (
	MinTimingBudget = 10
	MaxTimingBudget = 200

	continuousOverheadUs = 2500
	autonomousOverheadUs = 4300
	// applied to the oscillator calibration in autonomous mode
	interMeasurementFactor = 1.055
)

// rangeConfig derives RANGE_CONFIG_A and RANGE_CONFIG_B from the effective
// timing budget in microseconds and the OSC_FREQ register value.
// Arithmetic wraps on uint32 the same way the device reference does.
func rangeConfig(budgetUs uint32, osc uint16) (uint16, uint16, error) {
	if osc == 0 {
		return 0, 0, ErrZeroOscillator
	}
	macroPeriod := (2304 * (0x40000000 / uint32(osc))) >> 6
	budgetUs <<= 12
	a, err := encodeTimeout(macroPeriod, budgetUs, 16)
	if err != nil {
		return 0, 0, err
	}
	b, err := encodeTimeout(macroPeriod, budgetUs, 12)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// encodeTimeout packs the macro period count as (exponent << 8) | mantissa.
func encodeTimeout(macroPeriod, budget, x uint32) (uint16, error) {
	tmp := macroPeriod * x
	if tmp>>6 == 0 {
		return 0, fmt.Errorf("%w: macro period %d", ErrZeroOscillator, macroPeriod)
	}
	ls := ((budget + (tmp >> 7)) / (tmp >> 6)) - 1
	var ms uint32
	for ls&0xFFFFFF00 > 0 {
		ls >>= 1
		ms++
	}
	return uint16(ms<<8 | ls&0xFF), nil
}

// interMeasurementValue is the INTERMEASUREMENT_MS register value for an
// autonomous period in milliseconds.
func interMeasurementValue(interMs uint32, calibration uint32) uint32 {
	return uint32(math.Round(interMeasurementFactor * float64(interMs) * float64(calibration&0x3FF)))
}

func validateTiming(budgetMs, interMs uint32) error {
	if budgetMs < MinTimingBudget || budgetMs > MaxTimingBudget {
		return fmt.Errorf("%w: %d ms not in [%d, %d]", ErrInvalidTimingBudget, budgetMs, MinTimingBudget, MaxTimingBudget)
	}
	if interMs != 0 && interMs < budgetMs {
		return fmt.Errorf("%w: %d ms is shorter than the timing budget of %d ms", ErrInvalidInterMeasurement, interMs, budgetMs)
	}
	return nil
}
