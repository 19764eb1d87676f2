// Package clock checks the host clock against NTP before packages are
// fetched. Apt signature checks fail on hosts whose clock is far off.
package clock

import (
	"context"
	"time"

	"github.com/beevik/ntp"
)

const (
	DefaultPool      = "pool.ntp.org"
	DefaultThreshold = 2 * time.Second
	queryTimeout     = 5 * time.Second
)

type Phase uint8

const (
	Unchecked Phase = iota
	Healthy
	Skewed
	Unreachable
)

func (p Phase) String() string {
	switch p {
	case Unchecked:
		return "unchecked"
	case Healthy:
		return "healthy"
	case Skewed:
		return "skewed"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

type Status struct {
	Phase  Phase
	Offset time.Duration
	Error  string
}

// Warning is a one-line message for the user, empty when the clock is fine.
func (s Status) Warning() string {
	switch s.Phase {
	case Skewed:
		return "host clock is off by " + s.Offset.Round(time.Millisecond).String() + "; package signature checks may fail"
	case Unreachable:
		return "could not verify host clock: " + s.Error
	default:
		return ""
	}
}

type Checker struct {
	Pool      string
	Threshold time.Duration

	// QueryFunc replaces the NTP query in tests.
	QueryFunc func(ctx context.Context, pool string) (time.Duration, error)
}

// Check queries the pool once. It never fails; problems are reported in
// the returned Status.
func (c Checker) Check(ctx context.Context) Status {
	pool := c.Pool
	if pool == "" {
		pool = DefaultPool
	}
	threshold := c.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	query := c.QueryFunc
	if query == nil {
		query = queryOffset
	}

	offset, err := query(ctx, pool)
	if err != nil {
		return Status{Phase: Unreachable, Error: err.Error()}
	}
	phase := Skewed
	if offset.Abs() <= threshold {
		phase = Healthy
	}
	return Status{Phase: phase, Offset: offset}
}

func queryOffset(ctx context.Context, pool string) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	timeout := queryTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	resp, err := ntp.QueryWithOptions(pool, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}
