package logger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRatioSamplerAllowsNumeratorPerDenominator(t *testing.T) {
	s := newRatioSampler(2, 5)
	allowed := 0
	for i := 0; i < 50; i++ {
		if s.Allow() {
			allowed++
		}
	}
	if allowed != 20 {
		t.Fatalf("allowed = %d, want 20", allowed)
	}
}

func TestRatioSamplerDisabled(t *testing.T) {
	s := newRatioSampler(0, 0)
	for i := 0; i < 10; i++ {
		if !s.Allow() {
			t.Fatalf("disabled sampler rejected event %d", i)
		}
	}
}

func TestParseRatioSpec(t *testing.T) {
	cases := map[string][2]int{
		"1/50":  {1, 50},
		" 3/4 ": {3, 4},
		"10":    {1, 10},
		"0":     {0, 0},
		"x/y":   {0, 0},
		"":      {0, 0},
	}
	for spec, want := range cases {
		num, den := parseRatioSpec(spec)
		if num != want[0] || den != want[1] {
			t.Fatalf("parseRatioSpec(%q) = %d/%d, want %d/%d", spec, num, den, want[0], want[1])
		}
	}
}

func TestStatus(t *testing.T) {
	cases := map[string]error{
		"ok":        nil,
		"fail":      errors.New("boom"),
		"cancelled": fmt.Errorf("wrap: %w", context.Canceled),
		"timeout":   context.DeadlineExceeded,
	}
	for want, err := range cases {
		if got := Status(err); got != want {
			t.Fatalf("Status(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestRoundMS(t *testing.T) {
	if RoundMS(-time.Second) != 0 {
		t.Fatal("negative duration should round to zero")
	}
	if got := RoundMS(1499 * time.Microsecond); got != time.Millisecond {
		t.Fatalf("RoundMS = %v", got)
	}
}
