// Package approval provides the state machine and audit log shared by requests that
// must be approved before they affect a project's ledger or stock.
package approval

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/projectledger/internal/shared"
)

// State is a workflow status stored on a request row.
type State string

// Action enumerates approval log actions.
type Action string

const (
	ActionSubmit  Action = "SUBMIT"
	ActionApprove Action = "APPROVE"
	ActionReject  Action = "REJECT"
	ActionReceive Action = "RECEIVE"
	ActionCancel  Action = "CANCEL"
	// ActionTransition is logged for edges without a dedicated action.
	ActionTransition Action = "TRANSITION"
)

// Definition describes a workflow.
type Definition struct {
	Module   string
	Initial  State
	Approved State
	Edges    map[State][]State
	// Actions names the log action recorded when entering a state.
	Actions map[State]Action
}

// Machine validates status changes for one request type.
type Machine struct {
	def    Definition
	states map[State]struct{}
}

// NewMachine builds a Machine. It panics on a definition that references unknown states.
func NewMachine(def Definition) Machine {
	states := map[State]struct{}{def.Initial: {}, def.Approved: {}}
	for from, targets := range def.Edges {
		states[from] = struct{}{}
		for _, to := range targets {
			states[to] = struct{}{}
		}
	}
	for s := range def.Actions {
		if _, ok := states[s]; !ok {
			panic(fmt.Sprintf("approval: %s action for unknown state %q", def.Module, s))
		}
	}
	return Machine{def: def, states: states}
}

// Step is a validated status change.
type Step struct {
	From State
	To   State
	// Approves is true when the step enters the approved state from any other state.
	Approves bool
	// Decides is true when the step leaves the initial state.
	Decides bool
	Action  Action
}

// Module returns the workflow name.
func (m Machine) Module() string { return m.def.Module }

// Initial returns the state new requests start in.
func (m Machine) Initial() State { return m.def.Initial }

// Approved returns the state whose entry emits the request's effect.
func (m Machine) Approved() State { return m.def.Approved }

// Known reports whether s belongs to the workflow.
func (m Machine) Known(s State) bool {
	_, ok := m.states[s]
	return ok
}

// Step validates from -> to.
func (m Machine) Step(from, to State) (Step, error) {
	if !m.Known(from) || !m.Known(to) {
		return Step{}, fmt.Errorf("approval: %s unknown state %q -> %q: %w", m.def.Module, from, to, shared.ErrInvalidTransition)
	}
	if !m.allowed(from, to) {
		return Step{}, fmt.Errorf("approval: %s %s -> %s: %w", m.def.Module, from, to, shared.ErrInvalidTransition)
	}
	return m.step(from, to), nil
}

// Birth treats creation with status as a transition from the initial state. A request
// born in its initial state yields a no-op step.
func (m Machine) Birth(status State) (Step, error) {
	if status == "" || status == m.def.Initial {
		return Step{From: m.def.Initial, To: m.def.Initial, Action: ActionSubmit}, nil
	}
	return m.Step(m.def.Initial, status)
}

func (m Machine) allowed(from, to State) bool {
	for _, next := range m.def.Edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (m Machine) step(from, to State) Step {
	s := Step{
		From:     from,
		To:       to,
		Approves: to == m.def.Approved && from != m.def.Approved,
		Decides:  from == m.def.Initial && to != m.def.Initial,
		Action:   ActionTransition,
	}
	if a, ok := m.def.Actions[to]; ok {
		s.Action = a
	} else if s.Approves {
		s.Action = ActionApprove
	}
	return s
}

// Decision carries the approver stamp persisted with a request.
type Decision struct {
	By *int64
	At *time.Time
}

// Decide stamps actor and now when step leaves the initial state, otherwise it is empty.
func Decide(step Step, actor int64, now time.Time) Decision {
	if !step.Decides {
		return Decision{}
	}
	by, at := actor, now
	return Decision{By: &by, At: &at}
}
