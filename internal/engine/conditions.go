package engine

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/jkallio/tourguide/pkg/api"
)

// conditionEnv is what a custom branch expression sees. Expressions are
// authored against these names, e.g.
//
//	progress["step-pricing"] == "completed" && signals.plan == "pro"
type conditionEnv struct {
	progress map[string]string
	choices  map[string]string
	signals  map[string]any
	clicks   map[string]bool
	url      string
}

func (e conditionEnv) asMap() map[string]any {
	return map[string]any{
		"progress": e.progress,
		"choices":  e.choices,
		"signals":  e.signals,
		"clicks":   e.clicks,
		"url":      e.url,
	}
}

// evalCondition reports whether a branch condition is currently satisfied.
//
// click conditions match recorded user clicks, selector conditions match
// live DOM state, and custom conditions run a compiled expression against
// the condition environment.
func (t *Tour) evalCondition(b api.Branch, env conditionEnv) (bool, error) {
	switch b.ConditionType {
	case api.ConditionClick:
		return env.clicks[b.ConditionValue], nil

	case api.ConditionSelector:
		n, err := t.page.Count(b.ConditionValue)
		if err != nil {
			return false, fmt.Errorf("selector condition %q: %w", b.ConditionValue, err)
		}
		return n > 0, nil

	case api.ConditionCustom:
		prog, err := t.compiledCondition(b)
		if err != nil {
			return false, err
		}
		out, err := expr.Run(prog, env.asMap())
		if err != nil {
			return false, fmt.Errorf("custom condition for branch %s: %w", b.ID, err)
		}
		ok, _ := out.(bool)
		return ok, nil

	default:
		return false, fmt.Errorf("unknown condition type %q", b.ConditionType)
	}
}

// compiledCondition compiles a custom condition once per branch and caches
// the program for revisits.
func (t *Tour) compiledCondition(b api.Branch) (*vm.Program, error) {
	if prog, ok := t.programs[b.ID]; ok {
		return prog, nil
	}
	prog, err := expr.Compile(b.ConditionValue,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile condition for branch %s: %w", b.ID, err)
	}
	t.programs[b.ID] = prog
	return prog, nil
}
