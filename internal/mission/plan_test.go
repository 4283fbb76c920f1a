package mission

import (
	"context"
	"errors"
	"testing"
	"time"

	derrors "FlightCheck/internal/errors"
)

func TestNewPlanVariants(t *testing.T) {
	basicOff := map[StepName]bool{
		StepBatteryCheck:    true,
		StepHomeAltitude:    true,
		StepConfirmAirborne: true,
		StepConfirmLanded:   true,
		StepPositionReport:  true,
		StepDisarm:          true,
	}

	full, err := NewPlan("full", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	basic, err := NewPlan(" BASIC ", nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if basic.Variant != VariantBasic {
		t.Errorf("Expected variant %s, got %s", VariantBasic, basic.Variant)
	}

	if len(full.Steps) != len(stepOrder) || len(basic.Steps) != len(stepOrder) {
		t.Fatalf("Expected %d steps, got %d and %d", len(stepOrder), len(full.Steps), len(basic.Steps))
	}

	for i, name := range stepOrder {
		if full.Steps[i].Name != name || basic.Steps[i].Name != name {
			t.Errorf("Expected step %d to be %s", i, name)
		}
		if !full.Steps[i].Enabled {
			t.Errorf("Expected %s enabled in full", name)
		}
		if basic.Steps[i].Enabled == basicOff[name] {
			t.Errorf("Expected %s enabled=%v in basic, got %v", name, !basicOff[name], basic.Steps[i].Enabled)
		}
	}
}

func TestNewPlanOverrides(t *testing.T) {
	plan, err := NewPlan(VariantBasic, map[string]bool{"disarm": true, "battery_check": true, "goto": false})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if !plan.Enabled(StepDisarm) || !plan.Enabled(StepBatteryCheck) {
		t.Errorf("Expected overrides to enable disarm and battery check")
	}
	if plan.Enabled(StepGoTo) {
		t.Errorf("Expected goto disabled")
	}
	if !plan.Enabled(StepArm) {
		t.Errorf("Expected arm to keep its variant default")
	}
}

func TestNewPlanErrors(t *testing.T) {
	if _, err := NewPlan("acrobatic", nil); err == nil {
		t.Errorf("Expected error for unknown variant")
	}
	if _, err := NewPlan(VariantFull, map[string]bool{"loop": true}); err == nil {
		t.Errorf("Expected error for unknown step")
	}
}

func TestWaitFor(t *testing.T) {
	values := stream[int]{values: []int{1, 2, 3}}

	got, err := waitFor(context.Background(), time.Second, values.subscribe, func(v int) bool { return v > 1 })
	if err != nil || got != 2 {
		t.Errorf("Expected 2, got %d (%v)", got, err)
	}

	_, err = waitFor(context.Background(), 20*time.Millisecond, values.subscribe, func(v int) bool { return v > 5 })
	if !errors.Is(err, derrors.ErrConditionTimeout) {
		t.Errorf("Expected ErrConditionTimeout, got %v", err)
	}

	closed := stream[int]{values: []int{1}, closed: true}
	_, err = waitFor(context.Background(), time.Second, closed.subscribe, func(v int) bool { return v > 5 })
	if !errors.Is(err, derrors.ErrStreamClosed) {
		t.Errorf("Expected ErrStreamClosed, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = waitFor(ctx, 0, values.subscribe, func(v int) bool { return v > 5 })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
