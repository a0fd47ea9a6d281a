// Package register registers all components
package register

import (
	// register buses.
	_ "github.com/grovesense/weatherlink/components/board/fake"
	_ "github.com/grovesense/weatherlink/components/board/genericlinux"
	// register sensors.
	_ "github.com/grovesense/weatherlink/components/sensor/bme280"
	_ "github.com/grovesense/weatherlink/components/sensor/bmxx80"
	_ "github.com/grovesense/weatherlink/components/sensor/fake"
)
