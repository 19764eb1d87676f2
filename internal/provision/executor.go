// Package provision runs the installer steps in order and unwinds the
// completed ones when a later step fails.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sharespace/internal/adapter/sqlite"
	"sharespace/internal/logging"
	"sharespace/internal/telemetry"
)

// Undo reverses the side effects of a completed step.
type Undo func(ctx context.Context) error

// Step is one unit of provisioning. Run may return an Undo together with an
// error when it failed after partially applying its effects.
type Step struct {
	ID  string
	Run func(ctx context.Context) (Undo, error)
}

// StepJournal receives every step and compensation outcome.
type StepJournal interface {
	RecordStep(ctx context.Context, runID int64, rec sqlite.StepRecord) error
}

type completed struct {
	id   string
	undo Undo
}

// Executor runs steps inside telemetry spans. It remembers completed steps
// across Execute calls so a failure unwinds everything done so far.
type Executor struct {
	Op       *telemetry.Operation
	Journal  StepJournal
	RunID    int64
	Rollback bool

	done []completed
	now  func() time.Time
}

// Execute runs steps in order and stops at the first failure. With
// Rollback set, the compensations of every completed step run in reverse
// order before the error is returned.
func (e *Executor) Execute(ctx context.Context, steps []Step) error {
	log := logging.Component("provision")
	for _, step := range steps {
		start := e.clock()
		var undo Undo
		err := e.Op.RunStep(ctx, step.ID, func(ctx context.Context) error {
			var err error
			undo, err = step.Run(ctx)
			return err
		})
		elapsed := e.clock().Sub(start)

		if undo != nil {
			e.done = append(e.done, completed{id: step.ID, undo: undo})
		}
		if err != nil {
			log.Error("step failed", "step", step.ID, "err", err)
			e.record(ctx, sqlite.StepRecord{Step: step.ID, Outcome: sqlite.OutcomeFailed, Detail: err.Error(), Duration: elapsed})
			stepErr := fmt.Errorf("%s: %w", step.ID, err)
			if !e.Rollback {
				return stepErr
			}
			return errors.Join(stepErr, e.compensate(ctx))
		}
		log.Debug("step done", "step", step.ID, "elapsed", elapsed)
		e.record(ctx, sqlite.StepRecord{Step: step.ID, Outcome: sqlite.OutcomeSucceeded, Duration: elapsed})
	}
	return nil
}

// Completed lists the IDs of steps holding a compensation, oldest first.
func (e *Executor) Completed() []string {
	ids := make([]string, len(e.done))
	for i, c := range e.done {
		ids[i] = c.id
	}
	return ids
}

// compensate runs every pending undo in reverse. It keeps going past
// failures and survives cancellation of ctx so an interrupted run still
// cleans up.
func (e *Executor) compensate(ctx context.Context) error {
	log := logging.Component("provision")
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(e.done) - 1; i >= 0; i-- {
		c := e.done[i]
		start := e.clock()
		err := e.Op.RunStep(ctx, "rollback/"+c.id, c.undo)
		rec := sqlite.StepRecord{Step: c.id, Outcome: sqlite.OutcomeCompensated, Duration: e.clock().Sub(start)}
		if err != nil {
			log.Error("compensation failed", "step", c.id, "err", err)
			rec.Outcome, rec.Detail = sqlite.OutcomeCompensationFailed, err.Error()
			errs = append(errs, fmt.Errorf("undo %s: %w", c.id, err))
		} else {
			log.Info("compensated", "step", c.id)
		}
		e.record(ctx, rec)
	}
	e.done = nil
	return errors.Join(errs...)
}

func (e *Executor) record(ctx context.Context, rec sqlite.StepRecord) {
	if e.Journal == nil {
		return
	}
	if err := e.Journal.RecordStep(context.WithoutCancel(ctx), e.RunID, rec); err != nil {
		logging.Component("provision").Warn("journal write failed", "step", rec.Step, "err", err)
	}
}

func (e *Executor) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}
