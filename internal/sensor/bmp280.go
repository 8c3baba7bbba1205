package sensor

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"
)

// BMP280 registers.
const (
	regCalib   = 0x88
	regChipID  = 0xD0
	regCtrl    = 0xF4
	regTempMSB = 0xFA

	chipID = 0x58

	// ctrlNormalX16 selects temperature x16, pressure x16, normal mode.
	ctrlNormalX16 = 0b10110111

	calibLen = 6
	rawLen   = 3

	// rawSkipped is what the chip reports for a disabled measurement.
	rawSkipped RawSample = 0x80000
)

// DefaultSettleDelay is the wait between enabling conversion and reading calibration.
const DefaultSettleDelay = 100 * time.Millisecond

// DefaultAddresses are the two addresses the SDO pin can select.
var DefaultAddresses = []uint16{0x76, 0x77}

// Bus is a register-addressed two-wire bus. A transaction writes w then
// reads len(r) bytes from the device at addr.
// periph.io/x/conn/v3/i2c.Bus satisfies this interface.
type Bus interface {
	Tx(addr uint16, w, r []byte) error
}

// Logger defines the logging interface used by the driver.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Calibration holds the factory temperature trimming parameters.
type Calibration struct {
	T1 uint16
	T2 int16
	T3 int16
}

// Valid reports whether T1 holds a programmed value. Erased or floating
// NVM reads back as all zeros or all ones.
func (c Calibration) Valid() bool {
	return c.T1 != 0 && c.T1 != 0xFFFF
}

// RawSample is a 20-bit uncompensated temperature conversion.
type RawSample uint32

// Device is a BMP280 found on a bus.
type Device struct {
	bus  Bus
	addr uint16

	// SettleDelay overrides DefaultSettleDelay when non-zero.
	SettleDelay time.Duration

	logger Logger
	cal    Calibration
	ready  atomic.Bool
}

// Discover probes candidates in order and returns the first device that
// reports the BMP280 chip id. Addresses that fail the transaction are
// skipped. No address is probed twice and nothing is retried.
func Discover(bus Bus, candidates []uint16, logger Logger) (*Device, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	id := make([]byte, 1)
	for _, addr := range candidates {
		if err := bus.Tx(addr, []byte{regChipID}, id); err != nil {
			logger.Debug("no response from address", "address", formatAddr(addr), "error", err)
			continue
		}
		logger.Debug("probed address", "address", formatAddr(addr), "chip_id", fmt.Sprintf("0x%02X", id[0]))
		if id[0] == chipID {
			logger.Info("BMP280 found", "address", formatAddr(addr))
			return &Device{bus: bus, addr: addr, logger: logger}, nil
		}
	}

	return nil, fmt.Errorf("%w (probed %d addresses)", ErrNotFound, len(candidates))
}

// Addr returns the bus address the device answered on.
func (d *Device) Addr() uint16 {
	return d.addr
}

// InitializeCalibration enables continuous conversion, waits for the chip
// to settle and reads the temperature calibration block. It fails with
// ErrCalibration if either transaction fails or T1 is unprogrammed.
// On success the device is ready for Sample.
func (d *Device) InitializeCalibration(ctx context.Context) (Calibration, error) {
	if err := d.bus.Tx(d.addr, []byte{regCtrl, ctrlNormalX16}, nil); err != nil {
		return Calibration{}, fmt.Errorf("%w: writing ctrl_meas: %w", ErrCalibration, err)
	}

	delay := d.SettleDelay
	if delay == 0 {
		delay = DefaultSettleDelay
	}
	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return Calibration{}, ctx.Err()
	case <-timer.C:
	}

	buf := make([]byte, calibLen)
	if err := d.bus.Tx(d.addr, []byte{regCalib}, buf); err != nil {
		return Calibration{}, fmt.Errorf("%w: reading calibration: %w", ErrCalibration, err)
	}

	cal := parseCalibration(buf)
	if !cal.Valid() {
		return Calibration{}, fmt.Errorf("%w: T1=0x%04X", ErrCalibration, cal.T1)
	}

	d.logger.Debug("calibration loaded", "t1", cal.T1, "t2", cal.T2, "t3", cal.T3)

	d.cal = cal
	d.ready.Store(true)
	return cal, nil
}

func parseCalibration(b []byte) Calibration {
	return Calibration{
		T1: binary.LittleEndian.Uint16(b[0:2]),
		T2: int16(binary.LittleEndian.Uint16(b[2:4])), //nolint:gosec // two's complement reinterpretation
		T3: int16(binary.LittleEndian.Uint16(b[4:6])), //nolint:gosec // two's complement reinterpretation
	}
}

// Ready reports whether calibration succeeded.
func (d *Device) Ready() bool {
	return d != nil && d.ready.Load()
}

// Calibration returns the stored calibration. It is the zero value until
// InitializeCalibration succeeds.
func (d *Device) Calibration() Calibration {
	return d.cal
}

// ReadRaw reads one temperature conversion. The register pointer is set
// in its own transaction before the 3-byte read.
func (d *Device) ReadRaw() (RawSample, error) {
	if err := d.bus.Tx(d.addr, []byte{regTempMSB}, nil); err != nil {
		return 0, fmt.Errorf("%w: selecting data register: %w", ErrBus, err)
	}

	buf := make([]byte, rawLen)
	if err := d.bus.Tx(d.addr, nil, buf); err != nil {
		return 0, fmt.Errorf("%w: reading data: %w", ErrBus, err)
	}

	raw := RawSample(buf[0])<<12 | RawSample(buf[1])<<4 | RawSample(buf[2])>>4
	if raw == 0 || raw == rawSkipped {
		return 0, fmt.Errorf("%w: 0x%05X", ErrInvalidSample, uint32(raw))
	}
	return raw, nil
}

// Sample reads one conversion and compensates it with the stored calibration.
func (d *Device) Sample() (float64, error) {
	if !d.Ready() {
		return 0, ErrNotReady
	}
	raw, err := d.ReadRaw()
	if err != nil {
		return 0, err
	}
	return Compensate(raw, d.cal), nil
}

func formatAddr(addr uint16) string {
	return fmt.Sprintf("0x%02X", addr)
}
