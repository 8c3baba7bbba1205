// Package sensor implements the BMP280 temperature protocol over I2C.
//
// The driver covers the subset of the chip the node needs:
//
//   - Discover probes candidate addresses for chip id 0x58
//   - InitializeCalibration enables continuous conversion and reads T1..T3
//   - ReadRaw fetches one 20-bit temperature conversion
//   - Compensate turns a raw conversion into degrees Celsius
//
// Compensate is pure and safe to call from any goroutine. A Device is owned
// by a single caller; the bus is not locked.
//
// The bus is abstracted as Bus, which periph.io's i2c.Bus satisfies, so
// tests drive the driver with a register map instead of hardware.
package sensor
