package mission

import (
	"fmt"
	"strings"
)

type StepName string

const (
	StepConnect          StepName = "connect"
	StepBatteryCheck     StepName = "battery_check"
	StepCalibrateSensors StepName = "calibrate_sensors"
	StepHomePoint        StepName = "home_point"
	StepHomeAltitude     StepName = "home_altitude"
	StepArm              StepName = "arm"
	StepTakeoff          StepName = "takeoff"
	StepConfirmAirborne  StepName = "confirm_airborne"
	StepGoTo             StepName = "goto"
	StepLand             StepName = "land"
	StepConfirmLanded    StepName = "confirm_landed"
	StepPositionReport   StepName = "position_report"
	StepDisarm           StepName = "disarm"
)

// stepOrder is the only order steps ever run in.
var stepOrder = []StepName{
	StepConnect,
	StepBatteryCheck,
	StepCalibrateSensors,
	StepHomePoint,
	StepHomeAltitude,
	StepArm,
	StepTakeoff,
	StepConfirmAirborne,
	StepGoTo,
	StepLand,
	StepConfirmLanded,
	StepPositionReport,
	StepDisarm,
}

const (
	// VariantFull runs every step.
	VariantFull = "full"
	// VariantBasic skips the battery check, the home altitude capture, the
	// airborne/landed confirmations, the position report and the disarm.
	VariantBasic = "basic"
)

var variants = map[string]map[StepName]bool{
	VariantFull: {},
	VariantBasic: {
		StepBatteryCheck:    false,
		StepHomeAltitude:    false,
		StepConfirmAirborne: false,
		StepConfirmLanded:   false,
		StepPositionReport:  false,
		StepDisarm:          false,
	},
}

type Step struct {
	Name    StepName
	Enabled bool
}

// Plan is the ordered list of mission steps with their enabled flags.
type Plan struct {
	Variant string
	Steps   []Step
}

// NewPlan builds the plan for a variant, then applies per-step overrides
// keyed by step name.
func NewPlan(variant string, overrides map[string]bool) (Plan, error) {
	variant = strings.ToLower(strings.TrimSpace(variant))
	disabled, ok := variants[variant]
	if !ok {
		return Plan{}, fmt.Errorf("unknown mission variant %q", variant)
	}

	plan := Plan{Variant: variant, Steps: make([]Step, 0, len(stepOrder))}
	index := make(map[StepName]int, len(stepOrder))
	for i, name := range stepOrder {
		enabled, listed := disabled[name]
		plan.Steps = append(plan.Steps, Step{Name: name, Enabled: !listed || enabled})
		index[name] = i
	}

	for name, enabled := range overrides {
		i, ok := index[StepName(name)]
		if !ok {
			return Plan{}, fmt.Errorf("unknown mission step %q", name)
		}
		plan.Steps[i].Enabled = enabled
	}

	return plan, nil
}

func (p Plan) Enabled(name StepName) bool {
	for _, s := range p.Steps {
		if s.Name == name {
			return s.Enabled
		}
	}
	return false
}
