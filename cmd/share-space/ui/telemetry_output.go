package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"sharespace/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// rollbackParent is the step ID prefix compensations run under.
const rollbackParent = "rollback"

// TelemetryOutput turns provisioning spans into terminal output: a live
// checklist on a terminal, one line per state change otherwise.
type TelemetryOutput struct {
	provider *sdktrace.TracerProvider
	closeFn  func()
}

func NewTelemetryOutput() *TelemetryOutput {
	return newTelemetryOutput(os.Stderr, IsInteractive())
}

func newTelemetryOutput(out io.Writer, interactive bool) *TelemetryOutput {
	if interactive {
		checklist := NewChecklist(out)
		observer := newStepObserver(checklist.OnSnapshot)
		provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(&stepSpanProcessor{observer: observer}))
		return &TelemetryOutput{provider: provider, closeFn: checklist.Close}
	}

	line := newLineTelemetry(out)
	observer := newStepObserver(line.OnSnapshot)
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(&stepSpanProcessor{observer: observer}))
	return &TelemetryOutput{provider: provider, closeFn: func() {}}
}

func (o *TelemetryOutput) Tracer(name string) trace.Tracer {
	return o.provider.Tracer(name)
}

func (o *TelemetryOutput) Close() {
	if o == nil {
		return
	}
	_ = o.provider.Shutdown(context.Background())
	o.closeFn()
}

type lineTelemetry struct {
	mu       sync.Mutex
	out      io.Writer
	status   map[string]stepStatus
	messages map[string]string
}

func newLineTelemetry(out io.Writer) *lineTelemetry {
	return &lineTelemetry{
		out:      out,
		status:   make(map[string]stepStatus),
		messages: make(map[string]string),
	}
}

func (l *lineTelemetry) OnSnapshot(snapshot stepSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, step := range snapshot.Steps {
		if step.Status == stepPending {
			continue
		}

		msg := strings.TrimSpace(step.Message)
		prevStatus, hasStatus := l.status[step.ID]
		if hasStatus && prevStatus == step.Status && l.messages[step.ID] == msg {
			continue
		}

		l.status[step.ID] = step.Status
		l.messages[step.ID] = msg
		fmt.Fprintln(l.out, formatStepLine(step, msg))
	}
}

func formatStepLine(step stepState, msg string) string {
	prefix := "[..]"
	switch step.Status {
	case stepRunning:
		prefix = "[->]"
	case stepDone:
		prefix = "[ok]"
	case stepFailed:
		prefix = "[x]"
	case stepCompensated:
		prefix = "[<-]"
	case stepCompensationFailed:
		prefix = "[!!]"
	}

	title := step.Title
	if title == "" {
		title = step.ID
	}
	if msg != "" {
		return fmt.Sprintf("%s%s %s (%s)", stepIndent(step), prefix, title, msg)
	}
	return fmt.Sprintf("%s%s %s", stepIndent(step), prefix, title)
}

type stepObserver struct {
	mu       sync.Mutex
	steps    map[string]stepState
	order    []string
	reporter func(stepSnapshot)
}

func newStepObserver(reporter func(stepSnapshot)) *stepObserver {
	return &stepObserver{
		steps:    make(map[string]stepState),
		order:    make([]string, 0, 12),
		reporter: reporter,
	}
}

func (o *stepObserver) onPlan(plan telemetry.Plan) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, planned := range plan.Steps {
		stepID := strings.TrimSpace(planned.ID)
		if stepID == "" {
			continue
		}

		step, exists := o.steps[stepID]
		if !exists {
			o.order = append(o.order, stepID)
			step = stepState{ID: stepID, Status: stepPending}
		}
		step.ParentID = strings.TrimSpace(planned.ParentID)
		step.Title = strings.TrimSpace(planned.Title)
		if step.Title == "" {
			step.Title = stepID
		}
		step.synthetic = false
		o.steps[stepID] = step
	}

	o.emitLocked()
}

func (o *stepObserver) onStepStart(stepID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	step := o.ensureStepLocked(stepID)
	step.Status = stepRunning
	step.Message = ""
	step.synthetic = false
	o.steps[step.ID] = step
	o.emitLocked()
}

// onStepEnd records a finished step. message is the error for a failed
// step and the step's note otherwise. A finished rollback row also marks
// the step it undid, so a completed step no longer shows as done.
func (o *stepObserver) onStepEnd(stepID string, failed bool, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	step := o.ensureStepLocked(stepID)
	step.synthetic = false
	step.Message = strings.TrimSpace(message)
	target, isUndo := step.undoes()
	switch {
	case isUndo && failed:
		step.Status = stepCompensationFailed
	case isUndo:
		step.Status = stepCompensated
	case failed:
		step.Status = stepFailed
	default:
		step.Status = stepDone
	}
	o.steps[step.ID] = step

	if undone, ok := o.steps[target]; isUndo && ok && undone.Status == stepDone {
		undone.Status = step.Status
		o.steps[target] = undone
	}
	o.emitLocked()
}

func (o *stepObserver) ensureStepLocked(stepID string) stepState {
	stepID = strings.TrimSpace(stepID)
	if stepID == "" {
		stepID = "unnamed"
	}

	if step, exists := o.steps[stepID]; exists {
		return step
	}

	parentID := ""
	title := stepID
	if idx := strings.LastIndex(stepID, "/"); idx > 0 {
		parentID = strings.TrimSpace(stepID[:idx])
		o.ensureParentLocked(parentID)
		if parentID == rollbackParent {
			title = "Undo: " + o.titleLocked(stepID[idx+1:])
		}
	}

	o.order = append(o.order, stepID)
	return stepState{ID: stepID, ParentID: parentID, Title: title, Status: stepPending}
}

func (o *stepObserver) titleLocked(stepID string) string {
	if step, ok := o.steps[stepID]; ok && step.Title != "" {
		return step.Title
	}
	return stepID
}

func (o *stepObserver) ensureParentLocked(parentID string) {
	if parentID == "" {
		return
	}
	if _, exists := o.steps[parentID]; exists {
		return
	}

	ancestorID := ""
	if idx := strings.LastIndex(parentID, "/"); idx > 0 {
		ancestorID = strings.TrimSpace(parentID[:idx])
		o.ensureParentLocked(ancestorID)
	}

	title := parentID
	if parentID == rollbackParent {
		title = "Rolling back"
	}
	o.order = append(o.order, parentID)
	o.steps[parentID] = stepState{
		ID:        parentID,
		ParentID:  ancestorID,
		Title:     title,
		Status:    stepPending,
		synthetic: true,
	}
}

func (o *stepObserver) emitLocked() {
	if o.reporter == nil {
		return
	}

	childrenByParent := make(map[string][]stepState, len(o.steps))
	for _, step := range o.steps {
		if step.ParentID == "" {
			continue
		}
		childrenByParent[step.ParentID] = append(childrenByParent[step.ParentID], step)
	}

	steps := make([]stepState, 0, len(o.order))
	for _, stepID := range o.order {
		step, exists := o.steps[stepID]
		if !exists {
			continue
		}

		if children := childrenByParent[step.ID]; len(children) > 0 {
			if step.synthetic {
				step.Status = deriveSyntheticParentStatus(children)
			}
			summary := summarizeFanout(children)
			switch {
			case step.Message == "":
				step.Message = summary
			case step.Status.failed() && !strings.Contains(step.Message, summary):
				step.Message = summary + "; " + step.Message
			}
		}

		steps = append(steps, step)
	}
	o.reporter(stepSnapshot{Steps: steps})
}

// summarizeFanout counts finished children. Rollback rows count as
// undone rather than done.
func summarizeFanout(children []stepState) string {
	total := len(children)
	finishedCount := 0
	failedCount := 0
	verb := "done"
	for _, child := range children {
		switch {
		case child.Status.finished():
			finishedCount++
		case child.Status.failed():
			failedCount++
		}
		if _, isUndo := child.undoes(); isUndo {
			verb = "undone"
		}
	}

	if failedCount > 0 {
		return fmt.Sprintf("%d/%d %s, %d failed", finishedCount, total, verb, failedCount)
	}
	return fmt.Sprintf("%d/%d %s", finishedCount, total, verb)
}

func deriveSyntheticParentStatus(children []stepState) stepStatus {
	hasRunning := false
	failedStatus := stepStatus("")
	finishedCount := 0
	compensated := false
	for _, child := range children {
		switch {
		case child.Status == stepCompensationFailed:
			failedStatus = stepCompensationFailed
		case child.Status == stepFailed && failedStatus == "":
			failedStatus = stepFailed
		case child.Status == stepRunning:
			hasRunning = true
		case child.Status.finished():
			finishedCount++
			compensated = compensated || child.Status == stepCompensated
		}
	}

	switch {
	case failedStatus != "":
		return failedStatus
	case finishedCount == len(children) && compensated:
		return stepCompensated
	case finishedCount == len(children):
		return stepDone
	case hasRunning || finishedCount > 0:
		return stepRunning
	default:
		return stepPending
	}
}

// stepSpanProcessor feeds span starts and ends to a stepObserver. Root
// spans carry the plan; every child span is a step.
type stepSpanProcessor struct {
	observer *stepObserver
}

func (p *stepSpanProcessor) OnStart(_ context.Context, span sdktrace.ReadWriteSpan) {
	if span.Parent().IsValid() {
		p.observer.onStepStart(span.Name())
		return
	}

	planJSON := attributeValue(span.Attributes(), telemetry.PlanJSONKey)
	if planJSON == "" {
		return
	}
	var plan telemetry.Plan
	if err := json.Unmarshal([]byte(planJSON), &plan); err != nil {
		return
	}
	p.observer.onPlan(plan)
}

func (p *stepSpanProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	if !span.Parent().IsValid() {
		return
	}

	status := span.Status()
	if status.Code == codes.Error {
		p.observer.onStepEnd(span.Name(), true, status.Description)
		return
	}
	p.observer.onStepEnd(span.Name(), false, attributeValue(span.Attributes(), telemetry.StepNoteKey))
}

func (p *stepSpanProcessor) Shutdown(context.Context) error {
	return nil
}

func (p *stepSpanProcessor) ForceFlush(context.Context) error {
	return nil
}

func attributeValue(attrs []attribute.KeyValue, key string) string {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return strings.TrimSpace(attr.Value.AsString())
		}
	}
	return ""
}
