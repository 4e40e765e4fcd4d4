// Package compiler turns a validated service configuration into a resource
// template.
//
// Compilation runs as a fixed sequence of phases over one shared
// accumulator: execution roles, state machines, activities, alarms, then the
// event subgraphs (HTTP, schedule, event bus). Later phases may reference
// identifiers created by earlier ones, never the reverse. A fatal validation
// error aborts the run; per-binding event errors are collected and reported
// together.
package compiler

import (
	"encoding/json"
	"fmt"
	"io"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
	"github.com/marcelohirota/serverless-step-functions/internal/config"
	"github.com/marcelohirota/serverless-step-functions/internal/naming"
	"github.com/marcelohirota/serverless-step-functions/internal/template"
)

// Pipeline owns one compilation run: the immutable input config, the naming
// context, and the mutable output accumulator. Only the currently executing
// phase writes into the accumulator.
type Pipeline struct {
	cfg    *config.ServiceConfig
	naming naming.Context
	acc    *template.Accumulator
	warn   io.Writer

	// roleRefs records, per machine, the execution role reference the
	// state-machine phase attaches (GetAtt for synthesized roles, the raw
	// ARN for user-supplied ones).
	roleRefs map[string]roleRef
	// interpolated holds each machine's definition tree after validation
	// and placeholder substitution, shared by the role and state-machine
	// phases.
	interpolated map[string]map[string]any
}

type roleRef struct {
	arn       any    // RoleArn property value
	logicalID string // set only for synthesized roles, for DependsOn
}

// Result is the outcome of one compilation run.
type Result struct {
	Template  *stepfunctions.Template
	Endpoints []stepfunctions.Endpoint
	// BindingErrors are the non-fatal per-binding failures collected from
	// the event compilers. Sibling bindings still compiled.
	BindingErrors []error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWarnings directs synthesis warnings (broad IAM fallbacks) to w.
func WithWarnings(w io.Writer) Option {
	return func(p *Pipeline) { p.warn = w }
}

// New creates a pipeline for one compilation run.
func New(cfg *config.ServiceConfig, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg: cfg,
		naming: naming.Context{
			Service:   cfg.Service,
			Stage:     cfg.Provider.Stage,
			Region:    cfg.Provider.Region,
			AccountID: cfg.Provider.AccountID,
		},
		acc:          template.New(),
		warn:         io.Discard,
		roleRefs:     make(map[string]roleRef),
		interpolated: make(map[string]map[string]any),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Compile runs all phases in dependency order. The returned error is fatal:
// the template is incomplete and must be discarded. Per-binding event errors
// are returned in Result.BindingErrors instead and do not fail the run.
func (p *Pipeline) Compile() (*Result, error) {
	result := &Result{}

	for _, name := range p.cfg.MachineNames() {
		sm := p.cfg.StateMachines[name]
		if err := p.prepareDefinition(sm); err != nil {
			return nil, err
		}
		if err := p.compileExecutionRole(sm); err != nil {
			return nil, err
		}
		if err := p.compileStateMachine(sm); err != nil {
			return nil, err
		}
	}

	if err := p.compileActivities(); err != nil {
		return nil, err
	}
	if err := p.compileAlarms(); err != nil {
		return nil, err
	}

	if p.cfg.HasHTTPEvents() {
		endpoints, errs, err := p.compileHTTPEvents()
		if err != nil {
			return nil, err
		}
		result.Endpoints = endpoints
		result.BindingErrors = append(result.BindingErrors, errs...)
	}

	if errs, err := p.compileScheduleEvents(); err != nil {
		return nil, err
	} else {
		result.BindingErrors = append(result.BindingErrors, errs...)
	}
	if errs, err := p.compileBridgeEvents(); err != nil {
		return nil, err
	} else {
		result.BindingErrors = append(result.BindingErrors, errs...)
	}

	// A cycle in the DependsOn edges means a phase wired resources
	// inconsistently; the template would be undeployable.
	if _, err := p.acc.DependencyOrder(); err != nil {
		return nil, err
	}

	result.Template = p.acc.Template()
	return result, nil
}

// put normalizes a resource through a JSON round trip and inserts it. The
// round trip flattens intrinsic structs into plain maps so the template
// serializes identically to JSON and YAML and the sanctioned policy merges
// see uniform shapes.
func (p *Pipeline) put(logicalID string, def stepfunctions.ResourceDef) error {
	normalized, err := normalizeDef(def)
	if err != nil {
		return err
	}
	return p.acc.Put(logicalID, normalized)
}

// putShared is put for the sanctioned-reuse identifiers (shared roles,
// shared path-segment resources).
func (p *Pipeline) putShared(logicalID string, def stepfunctions.ResourceDef) (bool, error) {
	normalized, err := normalizeDef(def)
	if err != nil {
		return false, err
	}
	return p.acc.PutShared(logicalID, normalized)
}

// setOutput normalizes the output value through the same JSON round trip as
// resource properties, so intrinsic structs flatten into plain maps before
// the template is serialized.
func (p *Pipeline) setOutput(name string, out stepfunctions.Output) error {
	data, err := json.Marshal(out.Value)
	if err != nil {
		return fmt.Errorf("serializing output %s: %w", name, err)
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("serializing output %s: %w", name, err)
	}
	out.Value = value
	p.acc.SetOutput(name, out)
	return nil
}

func normalizeDef(def stepfunctions.ResourceDef) (stepfunctions.ResourceDef, error) {
	if def.Properties == nil {
		return def, nil
	}
	data, err := json.Marshal(def.Properties)
	if err != nil {
		return def, fmt.Errorf("serializing %s properties: %w", def.Type, err)
	}
	var props map[string]any
	if err := json.Unmarshal(data, &props); err != nil {
		return def, fmt.Errorf("serializing %s properties: %w", def.Type, err)
	}
	def.Properties = props
	return def, nil
}

func (p *Pipeline) warnf(format string, args ...any) {
	fmt.Fprintf(p.warn, format+"\n", args...)
}
