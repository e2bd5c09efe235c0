package distance

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/rangefinder/i2c"
)

func fastOpts(extra ...VL53L4CDOpt) []VL53L4CDOpt {
	return append([]VL53L4CDOpt{
		WithPollInterval(100 * time.Microsecond),
		WithBootTimeout(20 * time.Millisecond),
		WithMeasurementTimeout(20 * time.Millisecond),
	}, extra...)
}

func initSensor(t *testing.T, sim *sensorSim, opts ...VL53L4CDOpt) *VL53L4CD {
	t.Helper()
	s := NewVL53L4CD(sim, fastOpts(opts...)...)
	require.NoError(t, s.Init(context.Background()))
	return s
}

func TestVL53L4CD_Init(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	s := initSensor(t, sim)

	assert.Equal(t, StateIdle, s.State())
	config := sim.WritesTo(uint16(I2C_FAST_MODE_PLUS))
	require.Len(t, config, 1)
	assert.Equal(t, defaultConfig[:], config[0])
	assert.Len(t, config[0], 91)

	assert.Equal(t, byte(0x09), sim.Byte(uint16(VHV_CONFIG_TIMEOUT_MACROP_LOOP_BOUND)))
	assert.Equal(t, byte(0x00), sim.Byte(uint16(MYSTERY_1)))
	assert.Equal(t, uint16(0x0500), sim.Word(uint16(MYSTERY_2)))
	assert.Equal(t, uint32(0), sim.Dword(uint16(INTERMEASUREMENT_MS)))
	assert.Equal(t, uint16(0x01A6), sim.Word(uint16(RANGE_CONFIG_A)))
	assert.Equal(t, uint16(0x01DE), sim.Word(uint16(RANGE_CONFIG_B)))

	// the default table programs a non-zero period, so the bring-up cycle is autonomous
	assert.Equal(t, []byte{0x00, startAutonomous, startStop}, sim.startCommands())

	budget, inter := s.RangeTiming()
	assert.Equal(t, uint32(20), budget)
	assert.Equal(t, uint32(0), inter)
}

func TestVL53L4CD_InitUnexpectedModelID(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	sim.SetWord(uint16(IDENTIFICATION_MODEL_ID), 0x1234)
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s := initSensor(t, sim, WithLogger(logger))

	assert.Equal(t, StateIdle, s.State())
	assert.Contains(t, logs.String(), "unexpected model id")
	assert.Contains(t, logs.String(), "0x1234")
	assert.Len(t, sim.WritesTo(uint16(I2C_FAST_MODE_PLUS)), 1, "configuration continues")
}

func TestVL53L4CD_InitBootTimeout(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	sim.Set(uint16(FIRMWARE_SYSTEM_STATUS), 0x00)
	s := NewVL53L4CD(sim, fastOpts(WithBootTimeout(5*time.Millisecond))...)

	err := s.Init(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, StateUninitialized, s.State())
	assert.Empty(t, sim.WritesTo(uint16(I2C_FAST_MODE_PLUS)))
}

func TestVL53L4CD_InitCancelled(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	sim.Set(uint16(FIRMWARE_SYSTEM_STATUS), 0x00)
	s := NewVL53L4CD(sim, fastOpts(WithBootTimeout(0))...)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := s.Init(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrTimeout)
}

// neverReady reports the interrupt output equal to its polarity, so no result ever becomes ready.
type neverReady struct {
	*sensorSim
}

func (n *neverReady) Tx(ctx context.Context, address byte, w, r []byte) error {
	if err := n.sensorSim.Tx(ctx, address, w, r); err != nil {
		return err
	}
	if len(r) == 1 && bytes.Equal(w, []byte{0x00, byte(GPIO_TIO_HV_STATUS)}) {
		polarity := (n.Byte(uint16(GPIO_HV_MUX_CTRL)) >> 4) & 1
		r[0] = r[0]&^1 | polarity
	}
	return nil
}

func TestVL53L4CD_InitBringUpCycleTimeout(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	var logs bytes.Buffer
	s := NewVL53L4CD(&neverReady{sensorSim: sim}, fastOpts(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))...)

	require.NoError(t, s.Init(context.Background()))
	assert.Equal(t, StateIdle, s.State())
	assert.Contains(t, logs.String(), "no measurement during bring-up cycle")
	assert.Equal(t, []byte{0x00, startAutonomous, startStop}, sim.startCommands())
	assert.Equal(t, startStop, sim.Byte(uint16(SYSTEM_START)))
	assert.Equal(t, byte(0x09), sim.Byte(uint16(VHV_CONFIG_TIMEOUT_MACROP_LOOP_BOUND)))
	assert.Equal(t, byte(0x00), sim.Byte(uint16(MYSTERY_1)))
	assert.Equal(t, uint16(0x0500), sim.Word(uint16(MYSTERY_2)))
	assert.Equal(t, uint16(0x01A6), sim.Word(uint16(RANGE_CONFIG_A)))
	assert.Equal(t, uint16(0x01DE), sim.Word(uint16(RANGE_CONFIG_B)))
}

func TestVL53L4CD_InitBringUpCycleBusError(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	nack := errors.New("nack")
	bus := &failingRead{sensorSim: sim, prefix: []byte{0x00, byte(INTERMEASUREMENT_MS)}, err: nack}
	s := NewVL53L4CD(bus, fastOpts()...)

	err := s.Init(context.Background())
	assert.ErrorIs(t, err, nack)
	assert.Equal(t, StateUninitialized, s.State())
	// the stop is still issued and configuration stops there
	assert.Equal(t, []byte{0x00, startStop}, sim.startCommands())
	assert.Empty(t, sim.WritesTo(uint16(VHV_CONFIG_TIMEOUT_MACROP_LOOP_BOUND)))
}

func TestVL53L4CD_SetRangeTimingValidation(t *testing.T) {
	tests := []struct {
		name   string
		budget uint32
		inter  uint32
		err    error
	}{
		{"budget too short", 9, 0, ErrInvalidTimingBudget},
		{"budget too long", 201, 0, ErrInvalidTimingBudget},
		{"inter shorter than budget", 50, 20, ErrInvalidInterMeasurement},
		{"autonomous budget too long", 250, 1000, ErrInvalidTimingBudget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := newSensorSim(DefaultAddress)
			s := NewVL53L4CD(sim, fastOpts()...)
			err := s.SetRangeTiming(context.Background(), tt.budget, tt.inter)
			assert.ErrorIs(t, err, tt.err)
			assert.Empty(t, sim.Transfers(), "rejected before touching the device")
		})
	}
}

func TestVL53L4CD_SetRangeTimingZeroOscillator(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	sim.SetWord(uint16(OSC_FREQ), 0)
	var logs bytes.Buffer
	s := NewVL53L4CD(sim, fastOpts(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))...)

	err := s.SetRangeTiming(context.Background(), 20, 0)
	assert.ErrorIs(t, err, ErrZeroOscillator)
	assert.Contains(t, logs.String(), "oscillator frequency is zero")
	assert.Empty(t, sim.WritesTo(uint16(RANGE_CONFIG_A)))
	assert.Empty(t, sim.WritesTo(uint16(INTERMEASUREMENT_MS)))
}

func TestVL53L4CD_SetRangeTimingAutonomous(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	s := initSensor(t, sim)

	require.NoError(t, s.SetRangeTiming(context.Background(), 20, 100))
	assert.Equal(t, uint32(71424), sim.Dword(uint16(INTERMEASUREMENT_MS)))
	assert.Equal(t, uint16(0x0095), sim.Word(uint16(RANGE_CONFIG_A)))
	assert.Equal(t, uint16(0x00C7), sim.Word(uint16(RANGE_CONFIG_B)))
	budget, inter := s.RangeTiming()
	assert.Equal(t, uint32(20), budget)
	assert.Equal(t, uint32(100), inter)
}

func TestVL53L4CD_StartCommand(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	s := initSensor(t, sim)
	ctx := context.Background()

	require.NoError(t, s.StartRanging(ctx))
	assert.Equal(t, StateRanging, s.State())
	starts := sim.startCommands()
	assert.Equal(t, startContinuous, starts[len(starts)-1])
	require.NoError(t, s.StopRanging(ctx))
	assert.Equal(t, StateIdle, s.State())

	require.NoError(t, s.SetRangeTiming(ctx, 20, 100))
	require.NoError(t, s.StartRanging(ctx))
	starts = sim.startCommands()
	assert.Equal(t, startAutonomous, starts[len(starts)-1])
	require.NoError(t, s.StopRanging(ctx))
	assert.Equal(t, startStop, sim.Byte(uint16(SYSTEM_START)))
}

func TestVL53L4CD_Measure(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	s := initSensor(t, sim)
	ctx := context.Background()
	require.NoError(t, s.StartRanging(ctx))

	sim.setResult(0x09|0xE0, 0x1000, 0x0100, 0x0010, 0x0008, 0x00C8)
	sim.ResetLog()
	m, err := s.Measure(ctx)
	require.NoError(t, err)

	assert.Equal(t, Measurement{
		Status:       StatusValid,
		DistanceMM:   200,
		AmbientRate:  128,
		SignalRate:   2048,
		SpadsEnabled: 16,
		SigmaMM:      2,
	}, m)
	assert.True(t, m.Valid())
	assert.Equal(t, 200*physic.MilliMetre, m.Distance())

	transfers := sim.Transfers()
	last := transfers[len(transfers)-1]
	assert.Equal(t, []byte{0x00, 0x86, 0x01}, last.W, "interrupt clear closes the read cycle")
}

func TestVL53L4CD_MeasureStatus(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	s := initSensor(t, sim)
	ctx := context.Background()
	require.NoError(t, s.StartRanging(ctx))

	sim.setResult(0x06, 0, 0xFFFF, 0xFFFF, 0, 0x0FA0)
	m, err := s.Measure(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusSigmaAboveThreshold, m.Status)
	assert.False(t, m.Valid())
	assert.Equal(t, SeverityWarning, m.Status.Severity())
	assert.Equal(t, uint32(0xFFFF*8), m.SignalRate)
	assert.Equal(t, uint32(0xFFFF*8), m.AmbientRate)
}

func TestVL53L4CD_MeasureTimeout(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	var logs bytes.Buffer
	s := initSensor(t, sim, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	ctx := context.Background()
	require.NoError(t, s.StartRanging(ctx))
	sim.stall(true)
	sim.ResetLog()

	m, err := s.Measure(ctx)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, Measurement{}, m)
	assert.Contains(t, logs.String(), "timed out while waiting for a measurement")
	for _, tr := range sim.Transfers() {
		assert.NotEqual(t, []byte{0x00, 0x89}, tr.W, "no result read after a timeout")
	}

	sim.stall(false)
	_, err = s.Measure(ctx)
	assert.NoError(t, err, "a stalled sensor can be retried")
}

type failingRead struct {
	*sensorSim
	prefix []byte
	err    error
}

func (f *failingRead) Tx(ctx context.Context, address byte, w, r []byte) error {
	if len(r) > 0 && bytes.Equal(w, f.prefix) {
		return f.err
	}
	return f.sensorSim.Tx(ctx, address, w, r)
}

func TestVL53L4CD_ReadMeasurementClearsOnFailure(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	nack := errors.New("nack")
	bus := &failingRead{sensorSim: sim, prefix: []byte{0x00, 0x89}, err: nack}
	s := NewVL53L4CD(bus, fastOpts()...)
	sim.Set(uint16(SYSTEM_INTERRUPT_CLEAR), 0x00)

	_, err := s.ReadMeasurement(context.Background())
	assert.ErrorIs(t, err, nack)
	assert.ErrorIs(t, err, i2c.ErrTransactionAborted)
	assert.Equal(t, [][]byte{{0x01}}, sim.WritesTo(uint16(SYSTEM_INTERRUPT_CLEAR)))
}

func TestVL53L4CD_HasMeasurement(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	s := NewVL53L4CD(sim, fastOpts()...)
	ctx := context.Background()

	tests := []struct {
		ctrl   byte
		status byte
		ready  bool
	}{
		{0x11, 0x00, true},
		{0x11, 0x01, false},
		{0x01, 0x00, false},
		{0x01, 0x01, true},
		{0x10, 0x02, true},
		{0x00, 0xFF, true},
		{0xEF, 0xFE, false},
	}
	for _, tt := range tests {
		sim.Set(uint16(GPIO_HV_MUX_CTRL), tt.ctrl)
		sim.Set(uint16(GPIO_TIO_HV_STATUS), tt.status)
		ready, err := s.HasMeasurement(ctx)
		require.NoError(t, err)
		assert.Equal(t, tt.ready, ready, "ctrl %#x status %#x", tt.ctrl, tt.status)
		assert.Equal(t, tt.ready, isReady(tt.ctrl, tt.status))
	}
}

func TestVL53L4CD_TemperatureUpdate(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	s := initSensor(t, sim)
	ctx := context.Background()

	require.NoError(t, s.StartTemperatureUpdate(ctx))
	assert.Equal(t, [][]byte{{0x09}, {0x81}, {0x09}}, sim.WritesTo(uint16(VHV_CONFIG_TIMEOUT_MACROP_LOOP_BOUND)))
	assert.Equal(t, [][]byte{{0x00}, {0x92}, {0x00}}, sim.WritesTo(uint16(MYSTERY_1)))
	starts := sim.startCommands()
	assert.Equal(t, []byte{startAutonomous, startStop}, starts[len(starts)-2:])
	assert.Equal(t, StateIdle, s.State())
}

func TestVL53L4CD_TemperatureUpdateRestoresAfterTimeout(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	s := initSensor(t, sim)
	sim.stall(true)

	sim.ResetLog()

	err := s.StartTemperatureUpdate(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, [][]byte{{0x01}}, sim.WritesTo(uint16(SYSTEM_INTERRUPT_CLEAR)), "interrupt cleared after the timeout")
	assert.Equal(t, byte(0x09), sim.Byte(uint16(VHV_CONFIG_TIMEOUT_MACROP_LOOP_BOUND)))
	assert.Equal(t, byte(0x00), sim.Byte(uint16(MYSTERY_1)))
	assert.Equal(t, startStop, sim.Byte(uint16(SYSTEM_START)))
	assert.Equal(t, StateIdle, s.State())
}

func TestVL53L4CD_ChangeDeviceAddress(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	s := NewVL53L4CD(sim, fastOpts()...)
	ctx := context.Background()

	require.NoError(t, s.ChangeDeviceAddress(ctx, 0x30))
	assert.Equal(t, byte(0x30), sim.Address())
	assert.Equal(t, byte(0x30), s.Address())
	id, err := s.ModelID(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModelID, id)

	assert.ErrorIs(t, s.ChangeDeviceAddress(ctx, 0x00), ErrInvalidAddress)
	assert.ErrorIs(t, s.ChangeDeviceAddress(ctx, 0x80), ErrInvalidAddress)
	assert.Equal(t, byte(0x30), s.Address())
}

func TestVL53L4CD_Calibration(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	s := NewVL53L4CD(sim, fastOpts()...)
	ctx := context.Background()

	require.NoError(t, s.SetOffset(ctx, -10))
	assert.Equal(t, uint16(0xFFD8), sim.Word(uint16(RANGE_OFFSET_MM)))
	assert.Equal(t, [][]byte{{0x00, 0x00}}, sim.WritesTo(uint16(INNER_OFFSET_MM)))
	offset, err := s.Offset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int16(-10), offset)
	require.NoError(t, s.SetOffset(ctx, 25))
	offset, err = s.Offset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int16(25), offset)
	assert.ErrorIs(t, s.SetOffset(ctx, 2000), ErrInvalidThreshold)

	require.NoError(t, s.SetXTalk(ctx, 100))
	assert.Equal(t, uint16(51), sim.Word(uint16(XTALK_PLANE_OFFSET_KCPS)))
	xtalk, err := s.XTalk(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(99), xtalk)

	require.NoError(t, s.SetSignalThreshold(ctx, 1024))
	assert.Equal(t, uint16(128), sim.Word(uint16(MIN_COUNT_RATE_RTN_LIMIT_MCPS)))
	signal, err := s.SignalThreshold(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(1024), signal)

	require.NoError(t, s.SetSigmaThreshold(ctx, 90))
	assert.Equal(t, uint16(360), sim.Word(uint16(RANGE_CONFIG_SIGMA_THRESH)))
	sigma, err := s.SigmaThreshold(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(90), sigma)
	assert.ErrorIs(t, s.SetSigmaThreshold(ctx, 0x4000), ErrInvalidThreshold)

	require.NoError(t, s.SetDetectionThresholds(ctx, 100, 300, WindowIn))
	assert.Equal(t, byte(0x03), sim.Byte(uint16(SYSTEM_INTERRUPT)))
	assert.Equal(t, uint16(300), sim.Word(uint16(THRESH_HIGH)))
	assert.Equal(t, uint16(100), sim.Word(uint16(THRESH_LOW)))
	assert.ErrorIs(t, s.SetDetectionThresholds(ctx, 300, 100, WindowOut), ErrInvalidThreshold)
	assert.ErrorIs(t, s.SetDetectionThresholds(ctx, 100, 300, Window(4)), ErrInvalidThreshold)
	require.NoError(t, s.ClearDetectionThresholds(ctx))
	assert.Equal(t, byte(0x20), sim.Byte(uint16(SYSTEM_INTERRUPT)))
}

func TestVL53L4CD_Reset(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	s := initSensor(t, sim)

	require.NoError(t, s.Reset(context.Background()))
	assert.Equal(t, [][]byte{{0x00}, {0x01}}, sim.WritesTo(uint16(SOFT_RESET)))
	assert.Equal(t, StateUninitialized, s.State())
}

func TestVL53L4CD_TransportFailure(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	s := NewVL53L4CD(sim, fastOpts()...)
	nack := errors.New("nack")
	sim.Fail(nack)

	err := s.Init(context.Background())
	assert.ErrorIs(t, err, nack)
	assert.ErrorIs(t, err, i2c.ErrTransactionAborted)
	assert.Equal(t, StateUninitialized, s.State())
}

func TestVL53L4CD_Closed(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	s := NewVL53L4CD(sim, fastOpts()...)
	require.NoError(t, s.Close())
	_, err := s.ModelID(context.Background())
	assert.ErrorIs(t, err, i2c.ErrClosed)
}

func TestVL53L4CD_ConcurrentMeasure(t *testing.T) {
	sim := newSensorSim(DefaultAddress)
	s := initSensor(t, sim)
	ctx := context.Background()
	require.NoError(t, s.StartRanging(ctx))
	sim.setResult(0x09, 0x0800, 0x0020, 0x0002, 0x0010, 0x0100)

	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			m, err := s.Measure(ctx)
			assert.NoError(t, err)
			assert.Equal(t, uint16(256), m.DistanceMM)
			_, err = s.HasMeasurement(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
