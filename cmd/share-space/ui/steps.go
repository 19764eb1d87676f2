package ui

import "strings"

// stepStatus is where a provisioning step stands. Steps that ran and were
// later undone by a rollback move to stepCompensated, or to
// stepCompensationFailed when their undo errored.
type stepStatus string

const (
	stepPending            stepStatus = "pending"
	stepRunning            stepStatus = "running"
	stepDone               stepStatus = "done"
	stepFailed             stepStatus = "failed"
	stepCompensated        stepStatus = "compensated"
	stepCompensationFailed stepStatus = "compensation_failed"
)

func (s stepStatus) finished() bool {
	switch s {
	case stepDone, stepCompensated:
		return true
	}
	return false
}

func (s stepStatus) failed() bool {
	return s == stepFailed || s == stepCompensationFailed
}

// stepState is one checklist row. Rollback rows use the ID
// "rollback/<step>" and sit under a synthetic "rollback" parent.
type stepState struct {
	ID       string
	ParentID string
	Title    string
	Status   stepStatus
	Message  string

	synthetic bool
}

// undoes returns the step a rollback row compensates.
func (s stepState) undoes() (string, bool) {
	if s.ParentID != rollbackParent {
		return "", false
	}
	return strings.TrimPrefix(s.ID, rollbackParent+"/"), true
}

type stepSnapshot struct {
	Steps []stepState
}
