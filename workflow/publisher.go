// Package workflow is the bus-facing boundary for the external workflow
// engine. The engine executes graphs elsewhere; this publisher is how its
// step and task activity reaches the pipeline, tagged with the same
// run/session discipline as any provider adapter. From the bus's
// perspective the engine is just another producer.
package workflow

import "github.com/parleychat/parley/bus"

// Publisher tags workflow events for one workflow execution.
type Publisher struct {
	bus        *bus.Bus
	workflowID string
	sessionID  string
	runID      int64
}

// NewPublisher creates a publisher for one workflow execution nested
// under the given run and session.
func NewPublisher(b *bus.Bus, workflowID, sessionID string, runID int64) *Publisher {
	return &Publisher{
		bus:        b,
		workflowID: workflowID,
		sessionID:  sessionID,
		runID:      runID,
	}
}

// StepStart publishes a workflow-step-start event.
func (p *Publisher) StepStart(stepID, name string) {
	p.bus.Publish(bus.NewEvent(p.sessionID, p.runID, bus.WorkflowStepStartPayload{
		WorkflowID: p.workflowID,
		StepID:     stepID,
		Name:       name,
	}))
}

// StepComplete publishes a workflow-step-complete event.
func (p *Publisher) StepComplete(stepID string, success bool) {
	p.bus.Publish(bus.NewEvent(p.sessionID, p.runID, bus.WorkflowStepCompletePayload{
		WorkflowID: p.workflowID,
		StepID:     stepID,
		Success:    success,
	}))
}

// TaskUpdate publishes the full replacement task list. Task updates
// coalesce per workflow within a flush window, so publishing the whole
// list on every change is cheap for consumers.
func (p *Publisher) TaskUpdate(tasks []bus.WorkflowTask) {
	p.bus.Publish(bus.NewEvent(p.sessionID, p.runID, bus.WorkflowTaskUpdatePayload{
		WorkflowID: p.workflowID,
		Tasks:      tasks,
	}))
}
