package types

import "encoding/json"

type Station struct {
	Station   string  `json:"station"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Elevation float64 `json:"elevation"`
}

// Measurement is one daily observation. Date is stored as YYYY-MM-DD text.
type Measurement struct {
	ID      int64    `json:"id"`
	Station string   `json:"station"`
	Date    string   `json:"date"`
	Prcp    *float64 `json:"prcp"`
	Tobs    float64  `json:"tobs"`
}

type DatePrecipitation struct {
	Station string
	Date    string
	Prcp    *float64
}

type DateTemperature struct {
	Date string
	Tobs float64
}

// TemperatureStats holds min/avg/max of observed temperature. Fields are nil
// when no rows matched.
type TemperatureStats struct {
	Min *float64
	Avg *float64
	Max *float64
}

// MarshalJSON encodes the stats as [TMIN, TAVG, TMAX].
func (s TemperatureStats) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]*float64{s.Min, s.Avg, s.Max})
}
