package workflow

import (
	"fmt"

	"github.com/ieeeucsd/dashboard-finance/internal/domain/entity"
)

// Subject describes the caller as seen by transition guards
type Subject struct {
	Role       entity.Role
	IsReviewer bool
	IsOwner    bool
}

// Guard evaluates whether a subject may take a transition
type Guard func(s Subject) bool

// ReviewerNotOwner permits reviewer roles acting on records they did not submit
func ReviewerNotOwner(s Subject) bool {
	return s.IsReviewer && !s.IsOwner
}

// transition represents a permitted edge with its guard
type transition struct {
	toState entity.Status
	guard   Guard
}

// StateConfiguration configures the outgoing transitions of one status
type StateConfiguration struct {
	fromState   entity.Status
	transitions []transition
}

// Builder assembles a transition table
type Builder struct {
	kind           entity.Kind
	initial        entity.Status
	configurations map[entity.Status]*StateConfiguration
	states         []entity.Status
}

// NewBuilder creates a builder for the given record kind and initial status
func NewBuilder(kind entity.Kind, initial entity.Status) *Builder {
	b := &Builder{
		kind:           kind,
		initial:        initial,
		configurations: make(map[entity.Status]*StateConfiguration),
	}
	b.declare(initial)
	return b
}

// Configure returns the configuration for the given status
func (b *Builder) Configure(state entity.Status) *StateConfiguration {
	if state == "" {
		panic("workflow: empty state")
	}
	b.declare(state)

	config, exists := b.configurations[state]
	if !exists {
		config = &StateConfiguration{fromState: state}
		b.configurations[state] = config
	}
	return config
}

// Terminal declares statuses that have no outgoing transitions
func (b *Builder) Terminal(states ...entity.Status) *Builder {
	for _, s := range states {
		b.declare(s)
	}
	return b
}

// Permit allows a transition to toState when guard passes.
// A nil guard always passes.
func (c *StateConfiguration) Permit(toState entity.Status, guard Guard) *StateConfiguration {
	if toState == "" {
		panic(fmt.Sprintf("workflow: empty target state from %s", c.fromState))
	}
	for _, t := range c.transitions {
		if t.toState == toState {
			panic(fmt.Sprintf("workflow: duplicate transition %s -> %s", c.fromState, toState))
		}
	}
	c.transitions = append(c.transitions, transition{toState: toState, guard: guard})
	return c
}

// Build creates an immutable table using policy to resolve reviewer roles
func (b *Builder) Build(policy *RolePolicy) *Table {
	if policy == nil {
		policy = DefaultRolePolicy()
	}

	configs := make(map[entity.Status][]transition, len(b.configurations))
	for state, config := range b.configurations {
		configs[state] = append([]transition(nil), config.transitions...)
		for _, t := range config.transitions {
			if !b.isDeclared(t.toState) {
				panic(fmt.Sprintf("workflow: target state %s is not declared", t.toState))
			}
		}
	}

	valid := make(map[entity.Status]bool, len(b.states))
	for _, s := range b.states {
		valid[s] = true
	}

	return &Table{
		kind:        b.kind,
		initial:     b.initial,
		states:      append([]entity.Status(nil), b.states...),
		valid:       valid,
		transitions: configs,
		policy:      policy,
	}
}

func (b *Builder) declare(state entity.Status) {
	if !b.isDeclared(state) {
		b.states = append(b.states, state)
	}
}

func (b *Builder) isDeclared(state entity.Status) bool {
	for _, s := range b.states {
		if s == state {
			return true
		}
	}
	return false
}
