// Package stepfunctions compiles declarative state-machine services into
// CloudFormation templates.
//
// A service document declares named state machines (Amazon States Language),
// standalone activities, and event triggers:
//
//	service: checkout
//	provider:
//	  stage: dev
//	  region: us-east-1
//	stateMachines:
//	  OrderFlow:
//	    definition:
//	      StartAt: Reserve
//	      States: ...
//	    events:
//	      - http:
//	          path: orders
//	          method: post
//
// The slsf CLI compiles this into a resource template: the state machine,
// its execution role, alarms, and one resource subgraph per event trigger.
package stepfunctions

// Template is the compiled output document: a CloudFormation template whose
// Resources map is keyed by logical identifier. Logical identifiers are
// unique across one compilation; a collision is a compile error.
type Template struct {
	AWSTemplateFormatVersion string                 `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description              string                 `json:"Description,omitempty" yaml:"Description,omitempty"`
	Resources                map[string]ResourceDef `json:"Resources" yaml:"Resources"`
	Outputs                  map[string]Output      `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

// ResourceDef is a single resource in the compiled template.
type ResourceDef struct {
	Type       string         `json:"Type" yaml:"Type"`
	Properties map[string]any `json:"Properties,omitempty" yaml:"Properties,omitempty"`
	DependsOn  []string       `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
}

// Output is a template output entry.
type Output struct {
	Description string `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       any    `json:"Value" yaml:"Value"`
	Export      *struct {
		Name string `json:"Name" yaml:"Name"`
	} `json:"Export,omitempty" yaml:"Export,omitempty"`
}

// Endpoint describes one HTTP trigger of a compiled service, for display
// after compilation or deployment.
type Endpoint struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	URL    string `json:"url"`
}

// Display renders the endpoint as "<METHOD> - <url>".
func (e Endpoint) Display() string {
	return e.Method + " - " + e.URL
}

// BuildResult is the JSON output from `slsf build`.
type BuildResult struct {
	Success   bool       `json:"success"`
	Template  *Template  `json:"template,omitempty"`
	Resources []string   `json:"resources,omitempty"`
	Endpoints []Endpoint `json:"endpoints,omitempty"`
	Errors    []string   `json:"errors,omitempty"`
}

// ExecutionStatus is the remote status of a state machine execution.
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "RUNNING"
	StatusSucceeded ExecutionStatus = "SUCCEEDED"
	StatusFailed    ExecutionStatus = "FAILED"
	StatusTimedOut  ExecutionStatus = "TIMED_OUT"
	StatusAborted   ExecutionStatus = "ABORTED"
)

// Terminal reports whether the status will no longer change.
func (s ExecutionStatus) Terminal() bool {
	return s != StatusRunning && s != ""
}
