package sensor

import "errors"

// Domain errors for the BMP280 driver.
var (
	// ErrNotFound indicates no candidate address answered with the BMP280 chip id.
	ErrNotFound = errors.New("sensor: no BMP280 found on bus")

	// ErrCalibration indicates the calibration block could not be read or
	// holds an erased/unprogrammed value.
	ErrCalibration = errors.New("sensor: calibration invalid")

	// ErrBus indicates a failed bus transaction.
	ErrBus = errors.New("sensor: bus transaction failed")

	// ErrInvalidSample indicates the raw conversion returned a known-invalid value.
	ErrInvalidSample = errors.New("sensor: invalid raw sample")

	// ErrNotReady indicates Sample was called before calibration succeeded.
	ErrNotReady = errors.New("sensor: not calibrated")
)
