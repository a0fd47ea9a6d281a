package fake

// Register image of a BME280 that has just finished a measurement of 25.08 °C, 55.00 %RH and
// 1006.53 hPa.
var (
	bme280Calibration1 = []byte{
		112, 107, 67, 103, 24, 252, // T1..T3
		125, 142, 67, 214, 208, 11, 39, 11, 140, 0, 249, 255, 140, 60, 248, 198, 112, 23, // P1..P9
		0,  // reserved
		75, // H1
	}
	bme280Calibration2 = []byte{106, 1, 0, 19, 41, 3, 30}
	bme280Measurement  = []byte{101, 90, 192, 126, 237, 0, 117, 48}
)

// SeedBME280 places a BME280 register image at addr.
func SeedBME280(bus *I2C, addr byte) {
	bus.SetRegisters(addr, 0xD0, []byte{0x60})
	bus.SetRegisters(addr, 0x88, bme280Calibration1)
	bus.SetRegisters(addr, 0xE1, bme280Calibration2)
	bus.SetRegisters(addr, 0xF7, bme280Measurement)
}
