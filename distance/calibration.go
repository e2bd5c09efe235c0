package distance

import (
	"context"
	"fmt"
)

// Window selects when the interrupt fires relative to the detection thresholds.
type Window byte

const (
	WindowBelow Window = 0
	WindowAbove Window = 1
	WindowOut   Window = 2
	WindowIn    Window = 3
	// interrupt on every new sample, the power up setting
	windowNewSample byte = 0x20
)

const (
	MinOffset = -1024
	MaxOffset = 1023
	// RANGE_CONFIG_SIGMA_THRESH holds mm in 14.2 fixed point
	MaxSigmaThreshold = 0x3FFF
)

// SetOffset corrects every distance by mm.
func (s *VL53L4CD) SetOffset(ctx context.Context, mm int16) error {
	if mm < MinOffset || mm > MaxOffset {
		return fmt.Errorf("%w: offset %d mm not in [%d, %d]", ErrInvalidThreshold, mm, MinOffset, MaxOffset)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.dev.WriteWord16(ctx, uint16(RANGE_OFFSET_MM), uint16(mm*4)); err != nil {
		return fmt.Errorf("vl53l4cd: could not write offset: %w", err)
	}
	if err := s.dev.WriteWord16(ctx, uint16(INNER_OFFSET_MM), 0); err != nil {
		return fmt.Errorf("vl53l4cd: could not write inner offset: %w", err)
	}
	if err := s.dev.WriteWord16(ctx, uint16(OUTER_OFFSET_MM), 0); err != nil {
		return fmt.Errorf("vl53l4cd: could not write outer offset: %w", err)
	}
	return nil
}

func (s *VL53L4CD) Offset(ctx context.Context) (int16, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	raw, err := s.dev.ReadWord16(ctx, uint16(RANGE_OFFSET_MM))
	if err != nil {
		return 0, fmt.Errorf("vl53l4cd: could not read offset: %w", err)
	}
	// 11 significant bits, two fractional
	v := int16((raw << 3) >> 5)
	if v > 1024 {
		v -= 2048
	}
	return v, nil
}

// SetXTalk sets the crosstalk compensation in kcps; 0 disables it.
func (s *VL53L4CD) SetXTalk(ctx context.Context, kcps uint16) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.dev.WriteWord16(ctx, uint16(XTALK_X_PLANE_GRADIENT_KCPS), 0); err != nil {
		return fmt.Errorf("vl53l4cd: could not write crosstalk gradient: %w", err)
	}
	if err := s.dev.WriteWord16(ctx, uint16(XTALK_Y_PLANE_GRADIENT_KCPS), 0); err != nil {
		return fmt.Errorf("vl53l4cd: could not write crosstalk gradient: %w", err)
	}
	value := uint16((uint32(kcps) << 9) / 1000)
	if err := s.dev.WriteWord16(ctx, uint16(XTALK_PLANE_OFFSET_KCPS), value); err != nil {
		return fmt.Errorf("vl53l4cd: could not write crosstalk: %w", err)
	}
	return nil
}

func (s *VL53L4CD) XTalk(ctx context.Context) (uint16, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	raw, err := s.dev.ReadWord16(ctx, uint16(XTALK_PLANE_OFFSET_KCPS))
	if err != nil {
		return 0, fmt.Errorf("vl53l4cd: could not read crosstalk: %w", err)
	}
	return uint16((uint32(raw) * 1000) >> 9), nil
}

// SetSignalThreshold sets the minimum return signal rate in kcps.
func (s *VL53L4CD) SetSignalThreshold(ctx context.Context, kcps uint16) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.dev.WriteWord16(ctx, uint16(MIN_COUNT_RATE_RTN_LIMIT_MCPS), kcps>>3); err != nil {
		return fmt.Errorf("vl53l4cd: could not write signal threshold: %w", err)
	}
	return nil
}

func (s *VL53L4CD) SignalThreshold(ctx context.Context) (uint16, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	raw, err := s.dev.ReadWord16(ctx, uint16(MIN_COUNT_RATE_RTN_LIMIT_MCPS))
	if err != nil {
		return 0, fmt.Errorf("vl53l4cd: could not read signal threshold: %w", err)
	}
	return raw << 3, nil
}

// SetSigmaThreshold sets the maximum accepted sigma in mm.
func (s *VL53L4CD) SetSigmaThreshold(ctx context.Context, mm uint16) error {
	if mm > MaxSigmaThreshold {
		return fmt.Errorf("%w: sigma %d mm above %d", ErrInvalidThreshold, mm, MaxSigmaThreshold)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.dev.WriteWord16(ctx, uint16(RANGE_CONFIG_SIGMA_THRESH), mm<<2); err != nil {
		return fmt.Errorf("vl53l4cd: could not write sigma threshold: %w", err)
	}
	return nil
}

func (s *VL53L4CD) SigmaThreshold(ctx context.Context) (uint16, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	raw, err := s.dev.ReadWord16(ctx, uint16(RANGE_CONFIG_SIGMA_THRESH))
	if err != nil {
		return 0, fmt.Errorf("vl53l4cd: could not read sigma threshold: %w", err)
	}
	return raw >> 2, nil
}

// SetDetectionThresholds makes the sensor signal only results matching window.
func (s *VL53L4CD) SetDetectionThresholds(ctx context.Context, lowMM, highMM uint16, window Window) error {
	if window > WindowIn {
		return fmt.Errorf("%w: window %d", ErrInvalidThreshold, window)
	}
	if lowMM > highMM {
		return fmt.Errorf("%w: low %d mm above high %d mm", ErrInvalidThreshold, lowMM, highMM)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.dev.WriteByte16(ctx, uint16(SYSTEM_INTERRUPT), byte(window)); err != nil {
		return fmt.Errorf("vl53l4cd: could not write interrupt window: %w", err)
	}
	if err := s.dev.WriteWord16(ctx, uint16(THRESH_HIGH), highMM); err != nil {
		return fmt.Errorf("vl53l4cd: could not write high threshold: %w", err)
	}
	if err := s.dev.WriteWord16(ctx, uint16(THRESH_LOW), lowMM); err != nil {
		return fmt.Errorf("vl53l4cd: could not write low threshold: %w", err)
	}
	return nil
}

// ClearDetectionThresholds returns to signalling every new sample.
func (s *VL53L4CD) ClearDetectionThresholds(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.dev.WriteByte16(ctx, uint16(SYSTEM_INTERRUPT), windowNewSample); err != nil {
		return fmt.Errorf("vl53l4cd: could not write interrupt window: %w", err)
	}
	return nil
}
