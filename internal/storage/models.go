package storage

import "time"

// Step statuses
const (
	StepOK      = "ok"
	StepFailed  = "failed"
	StepSkipped = "skipped"
)

// Run is one recorded mission execution
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	Variant    string
	Address    string
	Config     *string
	Error      *string
	Positions  int
	Steps      []Step
}

// Step is the outcome of one mission step
type Step struct {
	Name       string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// PositionSample is a position report taken during a run, with the last
// attitude seen before it. Angles are in degrees.
type PositionSample struct {
	Timestamp time.Time
	Latitude  float64
	Longitude float64
	Altitude  float64
	Roll      float64
	Pitch     float64
	Yaw       float64
}
