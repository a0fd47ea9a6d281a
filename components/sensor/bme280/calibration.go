package bme280

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/grovesense/weatherlink/components/sensor"
)

// calibration holds the factory trimming parameters, named as in the datasheet.
type calibration struct {
	T1 uint16
	T2 int16
	T3 int16

	P1 uint16
	P2, P3, P4, P5, P6, P7, P8, P9 int16

	H1 uint8
	H2 int16
	H3 uint8
	H4 int16
	H5 int16
	H6 int8
}

// parseCalibration decodes the blocks read from 0x88..0xA1 and 0xE1..0xE7.
func parseCalibration(block1, block2 []byte) (calibration, error) {
	if len(block1) != calib1Len || len(block2) != calib2Len {
		return calibration{}, errors.Errorf("calibration blocks have %d and %d bytes, want %d and %d",
			len(block1), len(block2), calib1Len, calib2Len)
	}
	le := binary.LittleEndian
	c := calibration{
		T1: le.Uint16(block1[0:]),
		T2: int16(le.Uint16(block1[2:])),
		T3: int16(le.Uint16(block1[4:])),
		P1: le.Uint16(block1[6:]),
		P2: int16(le.Uint16(block1[8:])),
		P3: int16(le.Uint16(block1[10:])),
		P4: int16(le.Uint16(block1[12:])),
		P5: int16(le.Uint16(block1[14:])),
		P6: int16(le.Uint16(block1[16:])),
		P7: int16(le.Uint16(block1[18:])),
		P8: int16(le.Uint16(block1[20:])),
		P9: int16(le.Uint16(block1[22:])),
		// block1[24] is reserved.
		H1: block1[25],
		H2: int16(le.Uint16(block2[0:])),
		H3: block2[2],
		// H4 and H5 are 12 bit signed values sharing the nibbles of 0xE5.
		H4: int16(int8(block2[3]))<<4 | int16(block2[4]&0x0F),
		H5: int16(int8(block2[5]))<<4 | int16(block2[4]>>4),
		H6: int8(block2[6]),
	}
	if c.T1 == 0 || c.P1 == 0 {
		return calibration{}, errors.New("calibration data is blank")
	}
	return c, nil
}

// compensate converts a raw measurement. A channel the chip skipped, or one that compensates to a
// non-finite value, fails the whole reading.
func (c calibration) compensate(raw rawMeasurement) (sensor.Reading, error) {
	switch {
	case raw.temperature == skippedTP:
		return sensor.Reading{}, &sensor.ReadError{Channel: sensor.ChannelTemperature, Err: errors.New("measurement skipped")}
	case raw.pressure == skippedTP:
		return sensor.Reading{}, &sensor.ReadError{Channel: sensor.ChannelPressure, Err: errors.New("measurement skipped")}
	case raw.humidity == skippedH:
		return sensor.Reading{}, &sensor.ReadError{Channel: sensor.ChannelHumidity, Err: errors.New("measurement skipped")}
	}

	tFine, temperature := c.temperature(float64(raw.temperature))
	pressure, ok := c.pressure(float64(raw.pressure), tFine)
	if !ok {
		return sensor.Reading{}, &sensor.ReadError{Channel: sensor.ChannelPressure, Err: errors.New("division by zero in compensation")}
	}
	reading := sensor.Reading{
		Temperature: temperature,
		Humidity:    c.humidity(float64(raw.humidity), tFine),
		Pressure:    pressure / 100,
	}
	if err := reading.Validate(); err != nil {
		return sensor.Reading{}, err
	}
	return reading, nil
}

// temperature returns t_fine, which pressure and humidity depend on, and degrees Celsius.
func (c calibration) temperature(adc float64) (float64, float64) {
	var1 := (adc/16384.0 - float64(c.T1)/1024.0) * float64(c.T2)
	var2 := adc/131072.0 - float64(c.T1)/8192.0
	var2 = var2 * var2 * float64(c.T3)
	tFine := var1 + var2
	return tFine, tFine / 5120.0
}

// pressure returns pascals.
func (c calibration) pressure(adc, tFine float64) (float64, bool) {
	var1 := tFine/2.0 - 64000.0
	var2 := var1 * var1 * float64(c.P6) / 32768.0
	var2 += var1 * float64(c.P5) * 2.0
	var2 = var2/4.0 + float64(c.P4)*65536.0
	var1 = (float64(c.P3)*var1*var1/524288.0 + float64(c.P2)*var1) / 524288.0
	var1 = (1.0 + var1/32768.0) * float64(c.P1)
	if var1 == 0 {
		return 0, false
	}
	p := 1048576.0 - adc
	p = (p - var2/4096.0) * 6250.0 / var1
	var1 = float64(c.P9) * p * p / 2147483648.0
	var2 = p * float64(c.P8) / 32768.0
	return p + (var1+var2+float64(c.P7))/16.0, true
}

// humidity returns percent relative humidity clamped to [0, 100].
func (c calibration) humidity(adc, tFine float64) float64 {
	h := tFine - 76800.0
	h = (adc - (float64(c.H4)*64.0 + float64(c.H5)/16384.0*h)) *
		(float64(c.H2) / 65536.0 * (1.0 + float64(c.H6)/67108864.0*h*(1.0+float64(c.H3)/67108864.0*h)))
	h *= 1.0 - float64(c.H1)*h/524288.0
	switch {
	case h > 100:
		return 100
	case h < 0:
		return 0
	default:
		return h
	}
}
