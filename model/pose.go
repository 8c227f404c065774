package model

import "time"

// Pose is a snapshot of the simulated state vector taken after a state-update
// cycle. State is ordered (x, y, theta) for a position-only model, with
// velocity components appended for higher kinematic orders. Published for
// visualization only; no control logic consumes it.
type Pose struct {
	State []float64 `json:"state"`
	Stamp time.Time `json:"stamp"`
}

// Measurement is a single simulated distance-to-wall reading.
type Measurement struct {
	Distance float64   `json:"distance"`
	Stamp    time.Time `json:"stamp"`
}
