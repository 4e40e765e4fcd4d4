// Package template provides the shared output accumulator every compiler
// phase writes into.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
)

// Accumulator collects compiled resources under unique logical identifiers.
// It is created empty at the start of a compilation run and mutated by each
// phase in dependency order; phases never write concurrently.
type Accumulator struct {
	resources map[string]stepfunctions.ResourceDef
	outputs   map[string]stepfunctions.Output
}

// New creates an empty accumulator.
func New() *Accumulator {
	return &Accumulator{
		resources: make(map[string]stepfunctions.ResourceDef),
		outputs:   make(map[string]stepfunctions.Output),
	}
}

// Put inserts a resource under its logical identifier. A second insertion
// under the same identifier is a CollisionError, never a silent overwrite.
func (a *Accumulator) Put(logicalID string, def stepfunctions.ResourceDef) error {
	if existing, ok := a.resources[logicalID]; ok {
		return &stepfunctions.CollisionError{
			LogicalID: logicalID,
			Existing:  existing.Type,
			Incoming:  def.Type,
		}
	}
	a.resources[logicalID] = def
	return nil
}

// PutShared inserts a resource that later phases are allowed to resolve to
// again (execution roles, shared path-segment resources). If the identifier
// already holds a resource of the same type, the existing entry is kept and
// reported; a type mismatch is still a collision.
func (a *Accumulator) PutShared(logicalID string, def stepfunctions.ResourceDef) (existed bool, err error) {
	existing, ok := a.resources[logicalID]
	if !ok {
		a.resources[logicalID] = def
		return false, nil
	}
	if existing.Type != def.Type {
		return false, &stepfunctions.CollisionError{
			LogicalID: logicalID,
			Existing:  existing.Type,
			Incoming:  def.Type,
		}
	}
	return true, nil
}

// Get returns the resource under logicalID, if any.
func (a *Accumulator) Get(logicalID string) (stepfunctions.ResourceDef, bool) {
	def, ok := a.resources[logicalID]
	return def, ok
}

// Has reports whether logicalID has been emitted.
func (a *Accumulator) Has(logicalID string) bool {
	_, ok := a.resources[logicalID]
	return ok
}

// Len returns the number of emitted resources.
func (a *Accumulator) Len() int {
	return len(a.resources)
}

// MergeStatements appends policy statements to an already-emitted IAM role.
// This is the one sanctioned merge into an existing identifier: role policy
// accumulation across phases.
func (a *Accumulator) MergeStatements(roleID string, statements ...any) error {
	def, ok := a.resources[roleID]
	if !ok {
		return fmt.Errorf("role %s not present in template", roleID)
	}
	policies, ok := def.Properties["Policies"].([]any)
	if !ok || len(policies) == 0 {
		return fmt.Errorf("role %s has no inline policies", roleID)
	}
	policy, ok := policies[0].(map[string]any)
	if !ok {
		return fmt.Errorf("role %s policy has unexpected shape", roleID)
	}
	doc, ok := policy["PolicyDocument"].(map[string]any)
	if !ok {
		return fmt.Errorf("role %s policy document has unexpected shape", roleID)
	}
	existing, _ := doc["Statement"].([]any)
	doc["Statement"] = append(existing, statements...)
	return nil
}

// SetOutput records a template output.
func (a *Accumulator) SetOutput(name string, out stepfunctions.Output) {
	a.outputs[name] = out
}

// SortedIDs returns a template's logical identifiers in lexical order, for
// deterministic iteration.
func SortedIDs(t *stepfunctions.Template) []string {
	ids := make([]string, 0, len(t.Resources))
	for id := range t.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Template assembles the final output document.
func (a *Accumulator) Template() *stepfunctions.Template {
	tpl := &stepfunctions.Template{
		AWSTemplateFormatVersion: "2010-09-09",
		Resources:                make(map[string]stepfunctions.ResourceDef, len(a.resources)),
	}
	for id, def := range a.resources {
		tpl.Resources[id] = def
	}
	if len(a.outputs) > 0 {
		tpl.Outputs = make(map[string]stepfunctions.Output, len(a.outputs))
		for name, out := range a.outputs {
			tpl.Outputs[name] = out
		}
	}
	return tpl
}

// DependencyOrder returns the logical identifiers in dependency order using
// Kahn's algorithm over DependsOn edges. Ties break lexically so the order
// is deterministic. A cycle is reported with the offending chain.
func (a *Accumulator) DependencyOrder() ([]string, error) {
	graph := make(map[string][]string)
	inDegree := make(map[string]int)

	for id := range a.resources {
		graph[id] = nil
		inDegree[id] = 0
	}
	for id, def := range a.resources {
		for _, dep := range def.DependsOn {
			if _, exists := a.resources[dep]; exists {
				graph[dep] = append(graph[dep], id)
				inDegree[id]++
			}
		}
	}

	var queue []string
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var result []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, neighbor := range graph[node] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(a.resources) {
		return nil, a.detectCycle()
	}
	return result, nil
}

// detectCycle finds and reports a cycle in the DependsOn graph.
func (a *Accumulator) detectCycle() error {
	visited := make(map[string]bool)
	path := make(map[string]bool)

	var cycle []string
	var findCycle func(node string) bool
	findCycle = func(node string) bool {
		visited[node] = true
		path[node] = true

		for _, dep := range a.resources[node].DependsOn {
			if _, exists := a.resources[dep]; !exists {
				continue
			}
			if !visited[dep] {
				if findCycle(dep) {
					cycle = append([]string{node}, cycle...)
					return true
				}
			} else if path[dep] {
				cycle = append([]string{dep, node}, cycle...)
				return true
			}
		}

		path[node] = false
		return false
	}

	for id := range a.resources {
		if !visited[id] {
			if findCycle(id) {
				break
			}
		}
	}

	if len(cycle) > 0 {
		msg := "circular dependency detected: "
		for i, id := range cycle {
			if i > 0 {
				msg += " -> "
			}
			msg += id
		}
		return errors.New(msg)
	}
	return errors.New("circular dependency detected")
}

// ToJSON serializes the template to indented JSON. Map keys serialize in
// sorted order, so the output is byte-identical across runs.
func ToJSON(t *stepfunctions.Template) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// ToYAML serializes the template to YAML.
func ToYAML(t *stepfunctions.Template) ([]byte, error) {
	return yaml.Marshal(t)
}
