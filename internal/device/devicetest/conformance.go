// Package devicetest provides a conformance suite for ParameterQuerier
// implementations. Any device that answers parameter queries must pass it.
package devicetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/plus-control/plusd/internal/device"
)

// Expectations describes what a device under test should answer.
type Expectations struct {
	// Names that must appear in ParameterNames
	RequiredNames []string

	// Fixed answers to check, by name
	Values map[string]string

	// Upper bound for one full parameter query
	MaxQueryTime time.Duration
}

// ConformanceResult is the outcome of one check.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
}

// RunConformance runs every check against a fresh device from newDevice.
// newDevice must return a connected device; cleanup runs after each check.
func RunConformance(t *testing.T, newDevice func(t *testing.T) device.ParameterQuerier, exp Expectations) {
	t.Helper()

	checks := []struct {
		name string
		fn   func(ctx context.Context, d device.ParameterQuerier, exp Expectations) error
	}{
		{"ParameterNames_Required", checkNames},
		{"ParameterAnswers_All", checkAllAnswers},
		{"ParameterAnswers_Values", checkValues},
		{"ParameterAnswers_DeviceId", checkDeviceID},
		{"ParameterAnswers_Repeatable", checkRepeatable},
		{"ParameterAnswers_Cancelled", checkCancelled},
	}

	var results []ConformanceResult
	for _, c := range checks {
		d := newDevice(t)
		timeout := exp.MaxQueryTime
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)

		start := time.Now()
		err := c.fn(ctx, d, exp)
		cancel()

		res := ConformanceResult{TestName: c.name, Passed: err == nil, Duration: time.Since(start)}
		if err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
	}

	failed := 0
	for _, r := range results {
		if r.Passed {
			t.Logf("PASS %s (%v)", r.TestName, r.Duration)
			continue
		}
		failed++
		t.Errorf("FAIL %s: %s", r.TestName, r.Error)
	}
	if failed > 0 {
		t.Fatalf("device conformance failed: %d/%d checks passed", len(results)-failed, len(results))
	}
}

func checkNames(_ context.Context, d device.ParameterQuerier, exp Expectations) error {
	have := make(map[string]bool)
	for _, n := range d.ParameterNames() {
		have[n] = true
	}
	for _, n := range exp.RequiredNames {
		if !have[n] {
			return fmt.Errorf("parameter %s missing from ParameterNames", n)
		}
	}
	return nil
}

func checkAllAnswers(ctx context.Context, d device.ParameterQuerier, _ Expectations) error {
	names := d.ParameterNames()
	answers, err := d.ParameterAnswers(ctx, names)
	if err != nil {
		return fmt.Errorf("ParameterAnswers: %w", err)
	}
	for _, n := range names {
		if _, ok := answers[n]; !ok {
			return fmt.Errorf("no answer for %s", n)
		}
	}
	return nil
}

func checkValues(ctx context.Context, d device.ParameterQuerier, exp Expectations) error {
	if len(exp.Values) == 0 {
		return nil
	}
	names := make([]string, 0, len(exp.Values))
	for n := range exp.Values {
		names = append(names, n)
	}
	answers, err := d.ParameterAnswers(ctx, names)
	if err != nil {
		return fmt.Errorf("ParameterAnswers: %w", err)
	}
	for n, want := range exp.Values {
		if got := answers[n]; got != want {
			return fmt.Errorf("%s = %q, want %q", n, got, want)
		}
	}
	return nil
}

func checkDeviceID(ctx context.Context, d device.ParameterQuerier, _ Expectations) error {
	answers, err := d.ParameterAnswers(ctx, nil)
	if err != nil {
		return fmt.Errorf("ParameterAnswers: %w", err)
	}
	if answers["DeviceId"] != d.ID() {
		return fmt.Errorf("DeviceId = %q, want %q", answers["DeviceId"], d.ID())
	}
	return nil
}

func checkRepeatable(ctx context.Context, d device.ParameterQuerier, _ Expectations) error {
	names := d.ParameterNames()
	first, err := d.ParameterAnswers(ctx, names)
	if err != nil {
		return err
	}
	second, err := d.ParameterAnswers(ctx, names)
	if err != nil {
		return err
	}
	for _, n := range names {
		if first[n] != second[n] {
			return fmt.Errorf("%s changed between queries: %q then %q", n, first[n], second[n])
		}
	}
	return nil
}

func checkCancelled(_ context.Context, d device.ParameterQuerier, _ Expectations) error {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.ParameterAnswers(ctx, d.ParameterNames()); err == nil {
		return fmt.Errorf("query with cancelled context succeeded")
	}
	return nil
}
