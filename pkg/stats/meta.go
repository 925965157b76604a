package stats

import "math"

// Metric describes a tracked quantity.
type Metric struct {
	Key  string `mapstructure:"key"`
	Name string `mapstructure:"name"`
	Unit string `mapstructure:"unit"`
}

// Catalog is the ordered set of metrics the system tracks.
type Catalog []Metric

// DefaultCatalog mirrors the sensor box.
func DefaultCatalog() Catalog {
	return Catalog{
		{Key: "TDS", Name: "Total Dissolved Solids", Unit: "ppm"},
		{Key: "air_temp", Name: "Air Temperature", Unit: "°C"},
		{Key: "distance", Name: "Water Level", Unit: "cm"},
		{Key: "humidity", Name: "Humidity", Unit: "%"},
		{Key: "pH", Name: "pH", Unit: ""},
		{Key: "water_temp", Name: "Water Temperature", Unit: "°C"},
		{Key: "dissolved_oxygen", Name: "Dissolved Oxygen", Unit: "mg/L"},
	}
}

// Keys returns the metric keys in catalog order.
func (c Catalog) Keys() []string {
	keys := make([]string, len(c))
	for i, m := range c {
		keys[i] = m.Key
	}
	return keys
}

// Find returns the metric with the given key.
func (c Catalog) Find(key string) (Metric, bool) {
	for _, m := range c {
		if m.Key == key {
			return m, true
		}
	}
	return Metric{}, false
}

// Shape builds a snapshot holding exactly the catalog metrics, in catalog
// order. Values the lookup cannot supply become NaN.
func (c Catalog) Shape(ts int64, lookup func(key string) (float64, bool)) Snapshot {
	rs := make(Readings, len(c))
	for i, m := range c {
		v, ok := lookup(m.Key)
		if !ok {
			v = math.NaN()
		}
		rs[i] = Reading{Key: m.Key, Value: v}
	}
	return Snapshot{Timestamp: ts, Readings: rs}
}
