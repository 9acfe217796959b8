package env

// Sample represents a single environmental measurement.
type Sample struct {
	Temperature float64 `json:"temp_c"`       // °C
	Humidity    float64 `json:"humidity_pct"` // %rH
}

// Sensor reads ambient temperature and relative humidity.
type Sensor interface {
	ReadTemperature() (float64, error)
	ReadHumidity() (float64, error)
}

// PowerMonitor reads the supply voltage. It is an optional capability:
// a nil PowerMonitor disables every voltage feature.
type PowerMonitor interface {
	ReadVoltage() (float64, error)
}

// Read takes one temperature and humidity reading from s.
func Read(s Sensor) (Sample, error) {
	t, err := s.ReadTemperature()
	if err != nil {
		return Sample{}, err
	}
	h, err := s.ReadHumidity()
	if err != nil {
		return Sample{}, err
	}
	return Sample{Temperature: t, Humidity: h}, nil
}
