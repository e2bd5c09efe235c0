package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/rangefinder"
	"github.com/mklimuk/rangefinder/snsctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// HID command codes (MCP2221A datasheet, section 3.1)
const (
	cmdStatusSetParameters = 0x10
	cmdGetI2CData          = 0x40
	cmdI2CWriteData        = 0x90
	cmdI2CReadData         = 0x91
	cmdI2CWriteDataNoStop  = 0x94
	cmdI2CReadDataRepeated = 0x93
)

const (
	reportSize = 64
	// payload bytes carried by one HID report
	chunkSize = 60
	// internal clock used to derive the I2C speed divider
	clockHz = 12_000_000
)

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")

var _ rangefinder.I2CBus = &MCP2221{}

// MCP2221 is a Microchip MCP2221(A) USB to I2C bridge. Every command opens
// the HID device, exchanges one 64 byte report and closes it again.
type MCP2221 struct {
	mx           sync.Mutex
	request      []byte
	response     []byte
	responseWait time.Duration
	id           []int
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

type MCP2221Opt func(*MCP2221)

// WithResponseWait sets the delay between writing a report and reading the answer.
func WithResponseWait(wait time.Duration) MCP2221Opt {
	return func(d *MCP2221) {
		d.responseWait = wait
	}
}

// WithDeviceIndex selects one of several attached bridges by enumeration order.
func WithDeviceIndex(index int) MCP2221Opt {
	return func(d *MCP2221) {
		d.id = []int{index}
	}
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	d := &MCP2221{
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Init cancels any transfer left over by a previous process.
func (d *MCP2221) Init() error {
	_, err := d.ReleaseBus(context.Background())
	return err
}

// Tx writes w and then reads len(r) bytes using a repeated start, which is
// what 16-bit register addressed peripherals require.
func (d *MCP2221) Tx(ctx context.Context, address byte, w, r []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	switch {
	case len(r) == 0:
		return d.write(ctx, cmdI2CWriteData, address, w)
	case len(w) == 0:
		if err := d.readRequest(ctx, cmdI2CReadData, address, len(r)); err != nil {
			return err
		}
		return d.collect(ctx, r)
	default:
		if err := d.write(ctx, cmdI2CWriteDataNoStop, address, w); err != nil {
			return err
		}
		if err := d.readRequest(ctx, cmdI2CReadDataRepeated, address, len(r)); err != nil {
			return err
		}
		return d.collect(ctx, r)
	}
}

func (d *MCP2221) write(ctx context.Context, cmd byte, address byte, buffer []byte) error {
	for _, frame := range writeFrames(cmd, address, buffer) {
		d.resetBuffers()
		copy(d.request, frame)
		if err := d.send(ctx, true); err != nil {
			return fmt.Errorf("write to %#x failed: %w", address, err)
		}
		// write could not be performed
		if d.response[1] == 0x01 {
			slog.Debug("adapter busy", "address", address)
			return rangefinder.ErrBusBusy
		}
	}
	return nil
}

func (d *MCP2221) readRequest(ctx context.Context, cmd byte, address byte, size int) error {
	d.resetBuffers()
	d.request[0] = cmd
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(size))
	d.request[3] = address<<1 + 1
	if err := d.send(ctx, true); err != nil {
		return fmt.Errorf("bus read from %#x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		return rangefinder.ErrBusBusy
	}
	return nil
}

// collect drains the bridge's read buffer, at most chunkSize bytes per report.
func (d *MCP2221) collect(ctx context.Context, buffer []byte) error {
	for got := 0; got < len(buffer); {
		d.resetBuffers()
		d.request[0] = cmdGetI2CData
		if err := d.send(ctx, true); err != nil {
			return fmt.Errorf("error getting read data from adapter: %w", err)
		}
		if d.response[1] == 0x41 {
			return fmt.Errorf("error reading the I2C slave data from the I2C engine")
		}
		n := int(d.response[3])
		if n == 127 || n > chunkSize || got+n > len(buffer) {
			return fmt.Errorf("invalid data size byte; expected at most %d, got %d", len(buffer)-got, n)
		}
		if n == 0 {
			return fmt.Errorf("adapter returned no data after %d of %d bytes", got, len(buffer))
		}
		copy(buffer[got:], d.response[4:4+n])
		got += n
	}
	return nil
}

// SetSpeed programs the I2C clock divider. The bridge supports 46 kHz to 400 kHz.
func (d *MCP2221) SetSpeed(ctx context.Context, hz int) error {
	divider, err := speedDivider(hz)
	if err != nil {
		return err
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatusSetParameters
	d.request[3] = 0x20
	d.request[4] = divider
	if err := d.send(ctx, true); err != nil {
		return fmt.Errorf("set speed request failed: %w", err)
	}
	// 0x21 means the speed could not be set because a transfer is in progress
	if d.response[3] != 0x20 {
		return fmt.Errorf("%w: speed not accepted (%#x)", ErrCommandFailed, d.response[3])
	}
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatusSetParameters
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

func (d *MCP2221) Release(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	_, err := d.releaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.releaseBus(ctx)
}

func (d *MCP2221) releaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.resetBuffers()
	d.request[0] = cmdStatusSetParameters
	d.request[2] = 0x10
	err := d.send(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func (d *MCP2221) send(ctx context.Context, response bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dev, err := d.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			slog.Debug("could not close adapter", "error", err)
		}
	}()
	verbose := snsctx.IsVerbose(ctx)
	if verbose {
		slog.Debug("sending message to adapter", "report", hex.Dump(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	if !response {
		return nil
	}
	timer := time.NewTimer(d.responseWait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		slog.Debug("read message from adapter", "report", hex.Dump(d.response))
	}
	if d.response[0] != d.request[0] {
		return fmt.Errorf("%w: response echoes %#x, expected %#x", ErrCommandUnsupported, d.response[0], d.request[0])
	}
	return nil
}

func (d *MCP2221) open() (*hid.Device, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, fmt.Errorf("MCP2221 device not found")
	}
	if len(d.id) == 0 {
		if len(devs) > 1 {
			return nil, fmt.Errorf("ambiguous device identification")
		}
		dev, err := devs[0].Open()
		if err != nil {
			return nil, fmt.Errorf("error opening device: %w", err)
		}
		return dev, nil
	}
	if d.id[0] < 0 || d.id[0] >= len(devs) {
		return nil, fmt.Errorf("no device with id %d", d.id[0])
	}
	dev, err := devs[d.id[0]].Open()
	if err != nil {
		return nil, fmt.Errorf("error opening device: %w", err)
	}
	return dev, nil
}

func (d *MCP2221) resetBuffers() {
	resetBuffer(d.request)
	resetBuffer(d.response)
}

func resetBuffer(buf []byte) {
	for i := range buf {
		buf[i] = 0x00
	}
}

// writeFrames splits a write into HID reports. Every report repeats the
// command, the total transfer length and the address byte.
func writeFrames(cmd byte, address byte, buffer []byte) [][]byte {
	var frames [][]byte
	for start := 0; ; start += chunkSize {
		end := start + chunkSize
		if end > len(buffer) {
			end = len(buffer)
		}
		frame := make([]byte, 4, 4+end-start)
		frame[0] = cmd
		binary.LittleEndian.PutUint16(frame[1:3], uint16(len(buffer)))
		frame[3] = address << 1
		frame = append(frame, buffer[start:end]...)
		frames = append(frames, frame)
		if end >= len(buffer) {
			return frames
		}
	}
}

func speedDivider(hz int) (byte, error) {
	if hz < 46_000 || hz > 400_000 {
		return 0, fmt.Errorf("speed %d Hz out of range [46000, 400000]", hz)
	}
	return byte(clockHz/hz - 3), nil
}
