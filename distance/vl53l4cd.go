package distance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/rangefinder"
	"github.com/mklimuk/rangefinder/i2c"
	"github.com/mklimuk/rangefinder/snsctx"
)

var (
	ErrInvalidTimingBudget     = errors.New("vl53l4cd: timing budget out of range")
	ErrInvalidInterMeasurement = errors.New("vl53l4cd: inter-measurement period shorter than timing budget")
	ErrZeroOscillator          = errors.New("vl53l4cd: oscillator frequency is zero")
	ErrTimeout                 = errors.New("vl53l4cd: timed out")
	ErrInvalidAddress          = errors.New("vl53l4cd: invalid device address")
	ErrInvalidThreshold        = errors.New("vl53l4cd: invalid threshold")
)

type State int

const (
	StateUninitialized State = iota
	StateBooting
	StateConfigured
	StateIdle
	StateRanging
	StateWarmingUp
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBooting:
		return "booting"
	case StateConfigured:
		return "configured"
	case StateIdle:
		return "idle"
	case StateRanging:
		return "ranging"
	case StateWarmingUp:
		return "warming up"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type VL53L4CDOpts struct {
	Address            byte
	PollInterval       time.Duration
	BootTimeout        time.Duration
	MeasurementTimeout time.Duration
	// milliseconds
	TimingBudget     uint32
	InterMeasurement uint32
	RetryLimit       int
	Logger           *slog.Logger
}

type VL53L4CDOpt func(*VL53L4CDOpts)

func WithAddress(address byte) VL53L4CDOpt {
	return func(o *VL53L4CDOpts) {
		o.Address = address
	}
}

func WithPollInterval(interval time.Duration) VL53L4CDOpt {
	return func(o *VL53L4CDOpts) {
		o.PollInterval = interval
	}
}

// WithBootTimeout bounds the firmware boot wait. Zero leaves only the context as the bound.
func WithBootTimeout(timeout time.Duration) VL53L4CDOpt {
	return func(o *VL53L4CDOpts) {
		o.BootTimeout = timeout
	}
}

func WithMeasurementTimeout(timeout time.Duration) VL53L4CDOpt {
	return func(o *VL53L4CDOpts) {
		o.MeasurementTimeout = timeout
	}
}

// WithTimingBudget sets the budget applied by Init.
func WithTimingBudget(ms uint32) VL53L4CDOpt {
	return func(o *VL53L4CDOpts) {
		o.TimingBudget = ms
	}
}

// WithInterMeasurement sets the autonomous period applied by Init; 0 selects continuous mode.
func WithInterMeasurement(ms uint32) VL53L4CDOpt {
	return func(o *VL53L4CDOpts) {
		o.InterMeasurement = ms
	}
}

func WithRetryLimit(limit int) VL53L4CDOpt {
	return func(o *VL53L4CDOpts) {
		o.RetryLimit = limit
	}
}

func WithLogger(logger *slog.Logger) VL53L4CDOpt {
	return func(o *VL53L4CDOpts) {
		o.Logger = logger
	}
}

// VL53L4CD represents ST VL53L4CD time-of-flight ranging sensor.
// Typical usage:
//
//	s := NewVL53L4CD(bus)
//	if err := s.Init(ctx); err != nil { ... }
//	if err := s.StartRanging(ctx); err != nil { ... }
//	m, err := s.Measure(ctx)
//
// The driver lock is held for whole register sequences so that a start,
// its wait and the interrupt clear are never interleaved with other calls.
type VL53L4CD struct {
	mx     sync.Mutex
	config VL53L4CDOpts
	dev    *i2c.Device
	state  State
	budget uint32
	inter  uint32
}

func NewVL53L4CD(bus rangefinder.I2CBus, opts ...VL53L4CDOpt) *VL53L4CD {
	config := VL53L4CDOpts{
		Address:            DefaultAddress,
		PollInterval:       time.Millisecond,
		BootTimeout:        time.Second,
		MeasurementTimeout: time.Second,
		TimingBudget:       20,
		RetryLimit:         1,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &VL53L4CD{
		config: config,
		dev:    i2c.NewDevice(bus, config.Address, i2c.WithRetryLimit(config.RetryLimit)),
	}
}

// Init identifies the sensor, waits for the firmware to boot, uploads the
// default configuration and applies the configured range timing.
func (s *VL53L4CD) Init(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.state = StateBooting
	if err := s.boot(ctx); err != nil {
		s.state = StateUninitialized
		return err
	}
	if err := s.configure(ctx); err != nil {
		s.state = StateUninitialized
		return err
	}
	s.state = StateIdle
	s.logger(ctx).Debug("sensor initialized", "budget_ms", s.budget, "inter_ms", s.inter)
	return nil
}

func (s *VL53L4CD) boot(ctx context.Context) error {
	id, err := s.dev.ReadWord16(ctx, uint16(IDENTIFICATION_MODEL_ID))
	if err != nil {
		return fmt.Errorf("vl53l4cd: could not read model id: %w", err)
	}
	if id != ModelID {
		s.logger(ctx).Warn("unexpected model id", "id", fmt.Sprintf("%#04x", id), "expected", fmt.Sprintf("%#04x", ModelID))
	}
	s.logger(ctx).Debug("waiting for boot")
	err = pollUntil(ctx, s.config.PollInterval, s.config.BootTimeout, func(ctx context.Context) (bool, error) {
		status, err := s.dev.ReadByte16(ctx, uint16(FIRMWARE_SYSTEM_STATUS))
		return status == firmwareBooted, err
	})
	if err != nil {
		return fmt.Errorf("vl53l4cd: boot: %w", err)
	}
	s.logger(ctx).Debug("sensor booted")
	return nil
}

func (s *VL53L4CD) configure(ctx context.Context) error {
	if err := s.dev.WriteToAddress16(ctx, uint16(I2C_FAST_MODE_PLUS), defaultConfig[:]); err != nil {
		return fmt.Errorf("vl53l4cd: could not write default configuration: %w", err)
	}
	s.state = StateConfigured
	// one ranging cycle is required before the VHV settings below take effect
	flushErr := s.startRanging(ctx)
	stopErr := s.stopRanging(context.WithoutCancel(ctx))
	switch {
	case errors.Is(flushErr, ErrTimeout):
		s.logger(ctx).Warn("no measurement during bring-up cycle, continuing")
	case flushErr != nil:
		return errors.Join(flushErr, stopErr)
	}
	if stopErr != nil {
		return stopErr
	}
	if err := s.dev.WriteByte16(ctx, uint16(VHV_CONFIG_TIMEOUT_MACROP_LOOP_BOUND), 0x09); err != nil {
		return fmt.Errorf("vl53l4cd: could not write vhv timeout: %w", err)
	}
	if err := s.dev.WriteByte16(ctx, uint16(MYSTERY_1), 0x00); err != nil {
		return fmt.Errorf("vl53l4cd: could not write calibration: %w", err)
	}
	if err := s.dev.WriteWord16(ctx, uint16(MYSTERY_2), 0x0500); err != nil {
		return fmt.Errorf("vl53l4cd: could not write calibration: %w", err)
	}
	return s.setRangeTiming(ctx, s.config.TimingBudget, s.config.InterMeasurement)
}

// SetRangeTiming programs the timing budget (10-200 ms) and the
// inter-measurement period. An inter-measurement of 0 selects continuous
// ranging, anything else autonomous low power ranging with that period,
// which may not be shorter than the budget.
func (s *VL53L4CD) SetRangeTiming(ctx context.Context, budgetMs, interMs uint32) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.setRangeTiming(ctx, budgetMs, interMs)
}

func (s *VL53L4CD) setRangeTiming(ctx context.Context, budgetMs, interMs uint32) error {
	if err := validateTiming(budgetMs, interMs); err != nil {
		return err
	}
	osc, err := s.dev.ReadWord16(ctx, uint16(OSC_FREQ))
	if err != nil {
		return fmt.Errorf("vl53l4cd: could not read oscillator frequency: %w", err)
	}
	if osc == 0 {
		s.logger(ctx).Error("oscillator frequency is zero")
		return ErrZeroOscillator
	}
	budgetUs := budgetMs * 1000
	if interMs == 0 {
		if err := s.dev.WriteDword16(ctx, uint16(INTERMEASUREMENT_MS), 0); err != nil {
			return fmt.Errorf("vl53l4cd: could not write inter-measurement: %w", err)
		}
		budgetUs -= continuousOverheadUs
	} else {
		calibration, err := s.dev.ReadDword16(ctx, uint16(RESULT_OSC_CALIBRATE_VAL))
		if err != nil {
			return fmt.Errorf("vl53l4cd: could not read oscillator calibration: %w", err)
		}
		if err := s.dev.WriteDword16(ctx, uint16(INTERMEASUREMENT_MS), interMeasurementValue(interMs, calibration)); err != nil {
			return fmt.Errorf("vl53l4cd: could not write inter-measurement: %w", err)
		}
		budgetUs = (budgetUs - autonomousOverheadUs) / 2
	}
	a, b, err := rangeConfig(budgetUs, osc)
	if err != nil {
		return err
	}
	if err := s.dev.WriteWord16(ctx, uint16(RANGE_CONFIG_A), a); err != nil {
		return fmt.Errorf("vl53l4cd: could not write range config A: %w", err)
	}
	if err := s.dev.WriteWord16(ctx, uint16(RANGE_CONFIG_B), b); err != nil {
		return fmt.Errorf("vl53l4cd: could not write range config B: %w", err)
	}
	s.budget, s.inter = budgetMs, interMs
	return nil
}

// RangeTiming returns the timing budget and inter-measurement period last
// applied, in milliseconds.
func (s *VL53L4CD) RangeTiming() (uint32, uint32) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.budget, s.inter
}

// Measure waits for the next result, reads it and clears the interrupt.
// A timeout yields ErrTimeout and no measurement.
func (s *VL53L4CD) Measure(ctx context.Context) (Measurement, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.waitForMeasurement(ctx); err != nil {
		return Measurement{}, err
	}
	return s.readMeasurement(ctx)
}

// StartRanging starts continuous or autonomous ranging depending on the
// programmed inter-measurement period and consumes the first result.
func (s *VL53L4CD) StartRanging(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.startRanging(ctx)
}

func (s *VL53L4CD) startRanging(ctx context.Context) error {
	inter, err := s.dev.ReadDword16(ctx, uint16(INTERMEASUREMENT_MS))
	if err != nil {
		return fmt.Errorf("vl53l4cd: could not read inter-measurement: %w", err)
	}
	// device convention: a zero period means back-to-back ranging (0x21),
	// a programmed period means autonomous low power ranging (0x40)
	cmd := startAutonomous
	if inter == 0 {
		cmd = startContinuous
	}
	if err := s.dev.WriteByte16(ctx, uint16(SYSTEM_START), cmd); err != nil {
		return fmt.Errorf("vl53l4cd: could not start ranging: %w", err)
	}
	prev := s.state
	s.state = StateRanging
	if err := s.waitForMeasurement(ctx); err != nil {
		return err
	}
	if err := s.clearInterrupt(ctx); err != nil {
		return err
	}
	if prev == StateConfigured {
		// bring-up cycle
		s.state = prev
	}
	return nil
}

// StopRanging stops ranging without waiting for the sensor.
func (s *VL53L4CD) StopRanging(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.stopRanging(ctx)
}

func (s *VL53L4CD) stopRanging(ctx context.Context) error {
	if err := s.dev.WriteByte16(ctx, uint16(SYSTEM_START), startStop); err != nil {
		return fmt.Errorf("vl53l4cd: could not stop ranging: %w", err)
	}
	if s.state == StateRanging {
		s.state = StateIdle
	}
	return nil
}

// StartTemperatureUpdate recalibrates the sensor after a temperature change.
// Ranging must be stopped. The normal calibration values are restored even
// when the recalibration cycle fails.
func (s *VL53L4CD) StartTemperatureUpdate(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.state = StateWarmingUp
	err := s.temperatureCycle(ctx)
	if err != nil {
		s.logger(ctx).Warn("temperature update failed", "error", err)
	}
	// restore even if ctx is already done
	restoreCtx := context.WithoutCancel(ctx)
	if rerr := s.dev.WriteByte16(restoreCtx, uint16(VHV_CONFIG_TIMEOUT_MACROP_LOOP_BOUND), 0x09); rerr != nil {
		err = errors.Join(err, fmt.Errorf("vl53l4cd: could not restore vhv timeout: %w", rerr))
	}
	if rerr := s.dev.WriteByte16(restoreCtx, uint16(MYSTERY_1), 0x00); rerr != nil {
		err = errors.Join(err, fmt.Errorf("vl53l4cd: could not restore calibration: %w", rerr))
	}
	s.state = StateIdle
	return err
}

func (s *VL53L4CD) temperatureCycle(ctx context.Context) error {
	if err := s.dev.WriteByte16(ctx, uint16(VHV_CONFIG_TIMEOUT_MACROP_LOOP_BOUND), 0x81); err != nil {
		return fmt.Errorf("vl53l4cd: could not write vhv timeout: %w", err)
	}
	if err := s.dev.WriteByte16(ctx, uint16(MYSTERY_1), 0x92); err != nil {
		return fmt.Errorf("vl53l4cd: could not write calibration: %w", err)
	}
	if err := s.dev.WriteByte16(ctx, uint16(SYSTEM_START), startAutonomous); err != nil {
		return fmt.Errorf("vl53l4cd: could not start ranging: %w", err)
	}
	err := s.waitForMeasurement(ctx)
	if cerr := s.clearInterrupt(context.WithoutCancel(ctx)); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if serr := s.dev.WriteByte16(context.WithoutCancel(ctx), uint16(SYSTEM_START), startStop); serr != nil {
		err = errors.Join(err, fmt.Errorf("vl53l4cd: could not stop ranging: %w", serr))
	}
	return err
}

// HasMeasurement reports whether a new result is ready. The interrupt line
// toggles, so readiness is a mismatch between the output and its polarity.
func (s *VL53L4CD) HasMeasurement(ctx context.Context) (bool, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.hasMeasurement(ctx)
}

func (s *VL53L4CD) hasMeasurement(ctx context.Context) (bool, error) {
	ctrl, err := s.dev.ReadByte16(ctx, uint16(GPIO_HV_MUX_CTRL))
	if err != nil {
		return false, fmt.Errorf("vl53l4cd: could not read interrupt polarity: %w", err)
	}
	status, err := s.dev.ReadByte16(ctx, uint16(GPIO_TIO_HV_STATUS))
	if err != nil {
		return false, fmt.Errorf("vl53l4cd: could not read interrupt status: %w", err)
	}
	return isReady(ctrl, status), nil
}

func isReady(ctrl, status byte) bool {
	return status&1 != (ctrl>>4)&1
}

// WaitForMeasurement blocks until a result is ready or the measurement timeout elapses.
func (s *VL53L4CD) WaitForMeasurement(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.waitForMeasurement(ctx)
}

func (s *VL53L4CD) waitForMeasurement(ctx context.Context) error {
	err := pollUntil(ctx, s.config.PollInterval, s.config.MeasurementTimeout, s.hasMeasurement)
	if errors.Is(err, ErrTimeout) {
		s.logger(ctx).Warn("timed out while waiting for a measurement", "timeout", s.config.MeasurementTimeout)
		return fmt.Errorf("%w: waiting for a measurement", ErrTimeout)
	}
	return err
}

// ReadMeasurement reads the current result and clears the interrupt. The
// clear is issued even when the result could not be read.
func (s *VL53L4CD) ReadMeasurement(ctx context.Context) (Measurement, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.readMeasurement(ctx)
}

func (s *VL53L4CD) readMeasurement(ctx context.Context) (Measurement, error) {
	buf := make([]byte, resultBlockSize)
	err := s.dev.ReadFromAddress16(ctx, uint16(RESULT_RANGE_STATUS), resultBlockSize, buf)
	if err != nil {
		err = fmt.Errorf("vl53l4cd: could not read result: %w", err)
	}
	if cerr := s.clearInterrupt(context.WithoutCancel(ctx)); cerr != nil {
		err = errors.Join(err, cerr)
	}
	if err != nil {
		return Measurement{}, err
	}
	m := decodeResult(buf)
	if snsctx.IsVerbose(ctx) {
		s.logger(ctx).Debug("measurement", "status", m.Status, "distance_mm", m.DistanceMM, "sigma_mm", m.SigmaMM)
	}
	return m, nil
}

// ClearInterrupt acknowledges the current result so the next one can be signalled.
func (s *VL53L4CD) ClearInterrupt(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.clearInterrupt(ctx)
}

func (s *VL53L4CD) clearInterrupt(ctx context.Context) error {
	if err := s.dev.WriteByte16(ctx, uint16(SYSTEM_INTERRUPT_CLEAR), 0x01); err != nil {
		return fmt.Errorf("vl53l4cd: could not clear interrupt: %w", err)
	}
	return nil
}

// ChangeDeviceAddress moves the sensor to a new 7-bit address. The setting
// is volatile and lost on power down or XSHUT.
func (s *VL53L4CD) ChangeDeviceAddress(ctx context.Context, address byte) error {
	if address == 0 || address > 0x7F {
		return fmt.Errorf("%w: %#x", ErrInvalidAddress, address)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.dev.WriteByte16(ctx, uint16(I2C_SLAVE_DEVICE_ADDRESS), address&0x7F); err != nil {
		return fmt.Errorf("vl53l4cd: could not change address: %w", err)
	}
	old := s.dev
	s.dev = i2c.NewDevice(old.Bus(), address, i2c.WithRetryLimit(s.config.RetryLimit))
	s.config.Address = address
	if err := old.Close(); err != nil {
		s.logger(ctx).Debug("could not close previous handle", "error", err)
	}
	return nil
}

// Reset issues a software reset. Init has to be called again afterwards.
func (s *VL53L4CD) Reset(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.dev.WriteByte16(ctx, uint16(SOFT_RESET), 0x00); err != nil {
		return fmt.Errorf("vl53l4cd: could not assert reset: %w", err)
	}
	timer := time.NewTimer(100 * time.Microsecond)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.dev.WriteByte16(ctx, uint16(SOFT_RESET), 0x01); err != nil {
		return fmt.Errorf("vl53l4cd: could not release reset: %w", err)
	}
	s.state = StateUninitialized
	return nil
}

func (s *VL53L4CD) ModelID(ctx context.Context) (uint16, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	id, err := s.dev.ReadWord16(ctx, uint16(IDENTIFICATION_MODEL_ID))
	if err != nil {
		return 0, fmt.Errorf("vl53l4cd: could not read model id: %w", err)
	}
	return id, nil
}

func (s *VL53L4CD) Address() byte {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.dev.Addr()
}

func (s *VL53L4CD) State() State {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.state
}

// Close releases the device handle. The bus stays open.
func (s *VL53L4CD) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.dev.Close()
}

func (s *VL53L4CD) logger(ctx context.Context) *slog.Logger {
	l := s.config.Logger.With("address", fmt.Sprintf("%#02x", s.dev.Addr()))
	if name := snsctx.SensorName(ctx); name != "" {
		l = l.With("sensor", name)
	}
	return l
}
