// Package reporter posts sensor readings to the collector.
package reporter

import (
	"strconv"

	"github.com/grovesense/weatherlink/components/sensor"
)

// EncodeReading renders a reading as the collector's wire format:
//
//	{"temperature": 23.46, "humidity": 41.20, "pressure": 1013.05}
//
// Keys appear in this order and every value carries exactly two fractional digits, so equal
// readings always produce identical bodies. Non-finite values are rejected.
func EncodeReading(reading sensor.Reading) ([]byte, error) {
	if err := reading.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 64)
	buf = append(buf, `{"`+sensor.ChannelTemperature+`": `...)
	buf = strconv.AppendFloat(buf, reading.Temperature, 'f', 2, 64)
	buf = append(buf, `, "`+sensor.ChannelHumidity+`": `...)
	buf = strconv.AppendFloat(buf, reading.Humidity, 'f', 2, 64)
	buf = append(buf, `, "`+sensor.ChannelPressure+`": `...)
	buf = strconv.AppendFloat(buf, reading.Pressure, 'f', 2, 64)
	buf = append(buf, '}')
	return buf, nil
}
