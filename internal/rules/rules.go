// Package rules implements the rule engine: stateless trigger/action pairs
// evaluated against an ir.Context.
//
// Evaluation is synchronous. For every registered evaluator, in
// registration order, the trigger is checked and, when true, the action runs
// with the same context before the next evaluator is consulted.
package rules

import (
	"slices"

	"github.com/roach88/meltshop/internal/ir"
)

// Evaluator is anything that can consume a rule context.
type Evaluator interface {
	Evaluate(ctx ir.Context)
}

// Trigger decides whether a rule fires for a context.
type Trigger func(ctx ir.Context) bool

// Action is the effect of a fired rule.
type Action func(ctx ir.Context)

// Rule pairs a trigger with an action. Rules hold no state between
// evaluations.
type Rule struct {
	Name    string
	Trigger Trigger
	Action  Action
}

// New builds an anonymous rule.
func New(trigger Trigger, action Action) Rule {
	return Rule{Trigger: trigger, Action: action}
}

// Evaluate runs the action iff the trigger holds for ctx.
func (r Rule) Evaluate(ctx ir.Context) {
	if r.Trigger == nil || r.Action == nil {
		return
	}
	if r.Trigger(ctx) {
		r.Action(ctx)
	}
}

// Rules composes evaluators behind the Evaluator contract.
type Rules struct {
	list []Evaluator
}

// Compose builds a collection evaluated in the given order.
func Compose(evaluators ...Evaluator) *Rules {
	return &Rules{list: slices.Clone(evaluators)}
}

// Add appends an evaluator after the existing ones.
func (rs *Rules) Add(ev Evaluator) {
	rs.list = append(rs.list, ev)
}

// Evaluate passes ctx to every evaluator in registration order.
func (rs *Rules) Evaluate(ctx ir.Context) {
	for _, ev := range rs.list {
		ev.Evaluate(ctx)
	}
}

// All returns a copy of the registered evaluators.
func (rs *Rules) All() []Evaluator {
	return slices.Clone(rs.list)
}

// Len returns the number of registered evaluators.
func (rs *Rules) Len() int {
	return len(rs.list)
}

// LabelRule fires action for event contexts whose event carries label.
// Sensor contexts never match.
func LabelRule(label string, action Action) Rule {
	return Rule{
		Name: "label:" + label,
		Trigger: func(ctx ir.Context) bool {
			switch ctx.Kind {
			case ir.ContextEvent:
				return ctx.Event != nil && ctx.Event.HasLabel(label)
			case ir.ContextSensor:
				return false
			default:
				return false
			}
		},
		Action: action,
	}
}
