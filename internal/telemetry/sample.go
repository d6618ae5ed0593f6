package telemetry

// Reading is a raw measurement from the sensor driver in tenths of a unit.
type Reading struct {
	// Temperature in tenths of a degree Celsius.
	Temperature int16

	// Humidity in tenths of a percent relative humidity.
	Humidity uint16
}

// Sample is one reading in physical units, ready to publish.
type Sample struct {
	// Sequence counts successful measurements since the process started.
	Sequence uint32 `json:"d" cbor:"d"`

	// Temperature in degrees Celsius.
	Temperature float64 `json:"t" cbor:"t"`

	// Humidity in percent relative humidity.
	Humidity float64 `json:"h" cbor:"h"`
}

// NewSample converts a driver reading to physical units.
func NewSample(seq uint32, r Reading) Sample {
	return Sample{
		Sequence:    seq,
		Temperature: float64(r.Temperature) / 10.0,
		Humidity:    float64(r.Humidity) / 10.0,
	}
}
