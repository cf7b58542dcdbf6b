package models

import "time"

// Dataset is one sailbuoy telemetry download: aligned time series keyed by
// variable name (Leak, BigLeak, SailRotation, Warning, WithinTrackRadius, ...).
type Dataset struct {
	PlatformSerial string
	DeploymentID   int
	Times          []time.Time
	Series         map[string][]float64
}

// Has reports whether the dataset carries variable name.
func (d Dataset) Has(name string) bool {
	_, ok := d.Series[name]
	return ok
}

// Span returns the first and last sample times. ok is false for an empty dataset.
func (d Dataset) Span() (first, last time.Time, ok bool) {
	if len(d.Times) == 0 {
		return time.Time{}, time.Time{}, false
	}
	first, last = d.Times[0], d.Times[0]
	for _, t := range d.Times[1:] {
		if t.Before(first) {
			first = t
		}
		if t.After(last) {
			last = t
		}
	}
	return first, last, true
}
