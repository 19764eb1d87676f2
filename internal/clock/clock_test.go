package clock

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fixedOffset(d time.Duration, err error) func(context.Context, string) (time.Duration, error) {
	return func(context.Context, string) (time.Duration, error) { return d, err }
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name      string
		offset    time.Duration
		err       error
		wantPhase Phase
		wantWarn  string
	}{
		{name: "in sync", offset: 40 * time.Millisecond, wantPhase: Healthy},
		{name: "behind within threshold", offset: -2 * time.Second, wantPhase: Healthy},
		{name: "ahead", offset: 3 * time.Second, wantPhase: Skewed, wantWarn: "off by 3s"},
		{name: "behind", offset: -90 * time.Second, wantPhase: Skewed, wantWarn: "off by -1m30s"},
		{name: "unreachable", err: errors.New("i/o timeout"), wantPhase: Unreachable, wantWarn: "i/o timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Checker{QueryFunc: fixedOffset(tt.offset, tt.err)}
			got := c.Check(context.Background())
			if got.Phase != tt.wantPhase {
				t.Fatalf("Check().Phase = %s, want %s", got.Phase, tt.wantPhase)
			}
			warn := got.Warning()
			if tt.wantWarn == "" && warn != "" {
				t.Fatalf("Warning() = %q, want none", warn)
			}
			if !strings.Contains(warn, tt.wantWarn) {
				t.Fatalf("Warning() = %q, want it to contain %q", warn, tt.wantWarn)
			}
		})
	}
}

func TestCheckUsesDefaults(t *testing.T) {
	var gotPool string
	c := Checker{QueryFunc: func(_ context.Context, pool string) (time.Duration, error) {
		gotPool = pool
		return 0, nil
	}}
	c.Check(context.Background())
	if gotPool != DefaultPool {
		t.Fatalf("pool = %q, want %q", gotPool, DefaultPool)
	}
}

func TestCheckCustomThreshold(t *testing.T) {
	c := Checker{Threshold: 100 * time.Millisecond, QueryFunc: fixedOffset(250*time.Millisecond, nil)}
	if got := c.Check(context.Background()).Phase; got != Skewed {
		t.Fatalf("Check().Phase = %s, want %s", got, Skewed)
	}
}
