// Package definition interprets the States Language tree of a state machine:
// structural validation, placeholder interpolation, and the task-resource
// scan that drives execution-role synthesis.
//
// The tree itself stays opaque generic data; only the fields needed for
// validation and reference substitution are interpreted.
package definition

import (
	"fmt"
	"regexp"
	"sort"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
)

// Validate checks the definition tree structurally: StartAt names an
// existing state, every transition target exists, and no state is
// unreachable from StartAt. Violations are DefinitionErrors naming the
// machine and the offending state.
func Validate(machine string, def map[string]any) error {
	return validateBranch(machine, def, "")
}

func validateBranch(machine string, branch map[string]any, scope string) error {
	where := func(detail string) error {
		if scope != "" {
			detail = scope + ": " + detail
		}
		return &stepfunctions.DefinitionError{Entity: machine, Detail: detail}
	}

	startAt, ok := branch["StartAt"].(string)
	if !ok || startAt == "" {
		return where("missing StartAt")
	}
	states, ok := branch["States"].(map[string]any)
	if !ok || len(states) == 0 {
		return where("missing States")
	}
	if _, ok := states[startAt]; !ok {
		return where(fmt.Sprintf("StartAt %q is not a declared state", startAt))
	}

	// Every transition target must exist.
	for name, raw := range states {
		state, ok := raw.(map[string]any)
		if !ok {
			return where(fmt.Sprintf("state %q is not a mapping", name))
		}
		for _, target := range transitionTargets(state) {
			if _, ok := states[target]; !ok {
				return where(fmt.Sprintf("state %q transitions to undeclared state %q", name, target))
			}
		}

		// Recurse into Parallel branches and Map iterators.
		for _, sub := range subBranches(state) {
			subScope := fmt.Sprintf("state %q", name)
			if scope != "" {
				subScope = scope + "/" + subScope
			}
			if err := validateBranch(machine, sub, subScope); err != nil {
				return err
			}
		}
	}

	// No orphan states: everything must be reachable from StartAt.
	reached := make(map[string]bool, len(states))
	frontier := []string{startAt}
	for len(frontier) > 0 {
		name := frontier[0]
		frontier = frontier[1:]
		if reached[name] {
			continue
		}
		reached[name] = true
		if state, ok := states[name].(map[string]any); ok {
			frontier = append(frontier, transitionTargets(state)...)
		}
	}
	if len(reached) != len(states) {
		var orphans []string
		for name := range states {
			if !reached[name] {
				orphans = append(orphans, name)
			}
		}
		sort.Strings(orphans)
		return where(fmt.Sprintf("unreachable states: %v", orphans))
	}

	return nil
}

// transitionTargets collects every state name a state can transition to:
// Next, Choice rule Next values, the choice Default, and Catch handlers.
func transitionTargets(state map[string]any) []string {
	var targets []string
	if next, ok := state["Next"].(string); ok && next != "" {
		targets = append(targets, next)
	}
	if def, ok := state["Default"].(string); ok && def != "" {
		targets = append(targets, def)
	}
	if choices, ok := state["Choices"].([]any); ok {
		for _, raw := range choices {
			if choice, ok := raw.(map[string]any); ok {
				if next, ok := choice["Next"].(string); ok && next != "" {
					targets = append(targets, next)
				}
			}
		}
	}
	if catches, ok := state["Catch"].([]any); ok {
		for _, raw := range catches {
			if catch, ok := raw.(map[string]any); ok {
				if next, ok := catch["Next"].(string); ok && next != "" {
					targets = append(targets, next)
				}
			}
		}
	}
	return targets
}

// subBranches returns the nested state-machine branches of a state:
// Parallel Branches and the Map Iterator/ItemProcessor.
func subBranches(state map[string]any) []map[string]any {
	var branches []map[string]any
	if raw, ok := state["Branches"].([]any); ok {
		for _, b := range raw {
			if branch, ok := b.(map[string]any); ok {
				branches = append(branches, branch)
			}
		}
	}
	for _, key := range []string{"Iterator", "ItemProcessor"} {
		if branch, ok := state[key].(map[string]any); ok {
			branches = append(branches, branch)
		}
	}
	return branches
}

var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Resolver maps a placeholder token (the text between ${ and }) to its
// substitution. The second return reports whether the token is known.
type Resolver func(token string) (string, bool)

// Interpolate walks the string leaves of the definition tree and substitutes
// placeholder tokens via resolve. The input tree is not mutated; a new tree
// is returned. An unresolvable token is a ReferenceError.
func Interpolate(machine string, def map[string]any, resolve Resolver) (map[string]any, error) {
	out, err := interpolateValue(machine, def, resolve)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func interpolateValue(machine string, value any, resolve Resolver) (any, error) {
	switch v := value.(type) {
	case string:
		return interpolateString(machine, v, resolve)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			res, err := interpolateValue(machine, val, resolve)
			if err != nil {
				return nil, err
			}
			out[key] = res
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			res, err := interpolateValue(machine, val, resolve)
			if err != nil {
				return nil, err
			}
			out[i] = res
		}
		return out, nil
	default:
		return value, nil
	}
}

func interpolateString(machine, s string, resolve Resolver) (string, error) {
	var firstErr error
	out := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		token := match[2 : len(match)-1]
		resolved, ok := resolve(token)
		if !ok {
			if firstErr == nil {
				firstErr = &stepfunctions.ReferenceError{Entity: machine, Placeholder: match}
			}
			return match
		}
		return resolved
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// TaskResources returns the distinct Resource values of every Task state in
// the tree, including nested branches, in lexical order.
func TaskResources(def map[string]any) []string {
	seen := make(map[string]bool)
	collectTaskResources(def, seen)

	resources := make([]string, 0, len(seen))
	for r := range seen {
		resources = append(resources, r)
	}
	sort.Strings(resources)
	return resources
}

func collectTaskResources(branch map[string]any, seen map[string]bool) {
	states, ok := branch["States"].(map[string]any)
	if !ok {
		return
	}
	for _, raw := range states {
		state, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if stateType, _ := state["Type"].(string); stateType == "Task" {
			if resource, ok := state["Resource"].(string); ok && resource != "" {
				seen[resource] = true
			}
		}
		for _, sub := range subBranches(state) {
			collectTaskResources(sub, seen)
		}
	}
}
