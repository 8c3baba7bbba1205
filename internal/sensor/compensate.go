package sensor

import "periph.io/x/conn/v3/physic"

// CompensateCenti applies the Bosch fixed-point temperature formula and
// returns hundredths of a degree Celsius.
//
// Arithmetic is 32-bit signed with wraparound and arithmetic right shifts,
// matching the datasheet reference. All state is local to the call.
func CompensateCenti(raw RawSample, cal Calibration) int32 {
	adc := int32(raw) //nolint:gosec // 20-bit value
	t1 := int32(cal.T1)
	t2 := int32(cal.T2)
	t3 := int32(cal.T3)

	v1 := (((adc >> 3) - (t1 << 1)) * t2) >> 11
	d := (adc >> 4) - t1
	v2 := (((d * d) >> 12) * t3) >> 14

	fine := v1 + v2
	return (fine*5 + 128) >> 8
}

// Compensate returns the temperature in degrees Celsius.
func Compensate(raw RawSample, cal Calibration) float64 {
	return float64(CompensateCenti(raw, cal)) / 100.0
}

// Temperature converts degrees Celsius into a periph physic.Temperature,
// whose String form is used in logs.
func Temperature(celsius float64) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(celsius*float64(physic.Celsius))
}

// Fahrenheit converts degrees Celsius to Fahrenheit.
func Fahrenheit(celsius float64) float64 {
	return celsius*9/5 + 32
}
