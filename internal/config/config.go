// Package config loads and validates the service configuration document.
//
// The document is serverless.yml-shaped: a service name, provider settings,
// a stateMachines mapping, and an activities list. Event triggers are tagged
// entries (http, schedule, eventBridge) nested under each state machine.
package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
)

// ServiceConfig is the root user input. Read-only for the whole compilation
// pass once loaded.
type ServiceConfig struct {
	Service       string                   `yaml:"service"`
	Provider      Provider                 `yaml:"provider"`
	StateMachines map[string]*StateMachine `yaml:"stateMachines"`
	Activities    []string                 `yaml:"activities"`
}

// Provider carries deployment-target settings shared by every machine.
type Provider struct {
	Stage     string     `yaml:"stage"`
	Region    string     `yaml:"region"`
	AccountID string     `yaml:"accountId"`
	APIKeys   []string   `yaml:"apiKeys"`
	UsagePlan *UsagePlan `yaml:"usagePlan"`
	IAM       IAMOptions `yaml:"iam"`
}

// IAMOptions controls execution-role synthesis.
type IAMOptions struct {
	// Strict rejects task integrations the synthesizer does not recognize
	// instead of falling back to a broad permission grant.
	Strict bool `yaml:"strict"`
}

// UsagePlan declares API throttling and quota limits.
type UsagePlan struct {
	Throttle *Throttle `yaml:"throttle"`
	Quota    *Quota    `yaml:"quota"`
}

// Throttle is the request-rate limit of a usage plan.
type Throttle struct {
	BurstLimit int     `yaml:"burstLimit"`
	RateLimit  float64 `yaml:"rateLimit"`
}

// Quota is the request-count limit of a usage plan.
type Quota struct {
	Limit  int    `yaml:"limit"`
	Offset int    `yaml:"offset"`
	Period string `yaml:"period"`
}

// StateMachine is one declared state machine: its States Language definition
// plus the deployment concerns attached to it.
type StateMachine struct {
	// Name is the unique key under stateMachines; filled in by Load.
	Name string `yaml:"-"`

	Definition map[string]any `yaml:"definition"`
	// Role is an optional pre-existing execution role ARN. When set, role
	// synthesis is skipped.
	Role string `yaml:"role"`
	// Type selects STANDARD (default) or EXPRESS.
	Type    string         `yaml:"type"`
	Logging *LoggingConfig `yaml:"logging"`
	Tracing bool           `yaml:"tracing"`
	Alarms  *AlarmsConfig  `yaml:"alarms"`
	Events  []Event        `yaml:"events"`
}

// LoggingConfig enables execution logging for a machine.
type LoggingConfig struct {
	Level                string `yaml:"level"`
	IncludeExecutionData bool   `yaml:"includeExecutionData"`
}

// AlarmsConfig declares CloudWatch alarms for a machine. Absent config
// produces no alarm resources.
type AlarmsConfig struct {
	Metrics          []AlarmMetric        `yaml:"metrics"`
	Notifications    []NotificationTarget `yaml:"notifications"`
	TreatMissingData string               `yaml:"treatMissingData"`
}

// AlarmMetric is one metric/threshold pair. In YAML it is either a bare
// metric name (threshold 1) or a mapping with explicit settings.
type AlarmMetric struct {
	Metric            string  `yaml:"metric"`
	Threshold         float64 `yaml:"threshold"`
	Period            int     `yaml:"period"`
	EvaluationPeriods int     `yaml:"evaluationPeriods"`
}

// UnmarshalYAML accepts both the scalar and mapping forms.
func (m *AlarmMetric) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		m.Metric = node.Value
		m.Threshold = 1
		return nil
	}
	type plain AlarmMetric
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*m = AlarmMetric(p)
	if m.Threshold == 0 {
		m.Threshold = 1
	}
	return nil
}

// NotificationTarget is one subscription endpoint for alarm notifications.
type NotificationTarget struct {
	Protocol string `yaml:"protocol"`
	Endpoint string `yaml:"endpoint"`
}

// Event is a tagged union over the trigger kinds. Exactly one variant field
// is set per entry; Load rejects anything else.
type Event struct {
	HTTP        *HTTPEvent     `yaml:"http"`
	Schedule    *ScheduleEvent `yaml:"schedule"`
	EventBridge *BridgeEvent   `yaml:"eventBridge"`

	// StateMachine and Index are back-references filled in by Load:
	// the owning machine's name and this entry's position in its list.
	StateMachine string `yaml:"-"`
	Index        int    `yaml:"-"`
}

// UnmarshalYAML decodes one events entry, accepting the legacy
// cloudwatchEvent key as an alias for eventBridge.
func (e *Event) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		HTTP            *HTTPEvent     `yaml:"http"`
		Schedule        *ScheduleEvent `yaml:"schedule"`
		EventBridge     *BridgeEvent   `yaml:"eventBridge"`
		CloudWatchEvent *BridgeEvent   `yaml:"cloudwatchEvent"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	e.HTTP = raw.HTTP
	e.Schedule = raw.Schedule
	e.EventBridge = raw.EventBridge
	if e.EventBridge == nil {
		e.EventBridge = raw.CloudWatchEvent
	}
	return nil
}

// Kind returns "http", "schedule", "eventBridge", or "" when no variant or
// more than one variant is set.
func (e Event) Kind() string {
	var kind string
	count := 0
	if e.HTTP != nil {
		kind, count = "http", count+1
	}
	if e.Schedule != nil {
		kind, count = "schedule", count+1
	}
	if e.EventBridge != nil {
		kind, count = "eventBridge", count+1
	}
	if count != 1 {
		return ""
	}
	return kind
}

// HTTPEvent exposes a machine as a REST endpoint.
type HTTPEvent struct {
	Path       string       `yaml:"path"`
	Method     string       `yaml:"method"`
	CORS       bool         `yaml:"cors"`
	Private    bool         `yaml:"private"`
	Action     string       `yaml:"action"`
	Authorizer *Authorizer  `yaml:"authorizer"`
	Request    *HTTPRequest `yaml:"request"`
}

// Authorizer configures method authorization. Type selects the API Gateway
// authorizer kind; Arn points at a custom authorizer function.
type Authorizer struct {
	Name             string `yaml:"name"`
	Arn              string `yaml:"arn"`
	Type             string `yaml:"type"` // "token" (default) or "request"
	IdentitySource   string `yaml:"identitySource"`
	ResultTTLSeconds int    `yaml:"resultTtlInSeconds"`
}

// HTTPRequest configures request handling for a method.
type HTTPRequest struct {
	// Schemas maps content type to a JSON schema; presence attaches a
	// request validator to the method.
	Schemas  map[string]any    `yaml:"schemas"`
	Template map[string]string `yaml:"template"`
}

// ScheduleEvent triggers a machine on a cron or rate expression. In YAML it
// is either the bare expression or a mapping.
type ScheduleEvent struct {
	Rate    string `yaml:"rate"`
	Enabled *bool  `yaml:"enabled"`
	Input   string `yaml:"input"`
	Name    string `yaml:"name"`
}

// UnmarshalYAML accepts both the scalar and mapping forms.
func (s *ScheduleEvent) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.Rate = node.Value
		return nil
	}
	type plain ScheduleEvent
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = ScheduleEvent(p)
	return nil
}

// IsEnabled defaults to true when enabled is unset.
func (s ScheduleEvent) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// BridgeEvent triggers a machine on a pattern-matched event-bus rule.
type BridgeEvent struct {
	Pattern  map[string]any `yaml:"pattern"`
	EventBus string         `yaml:"eventBus"`
	Enabled  *bool          `yaml:"enabled"`
	Input    string         `yaml:"input"`
}

// IsEnabled defaults to true when enabled is unset.
func (b BridgeEvent) IsEnabled() bool {
	return b.Enabled == nil || *b.Enabled
}

// Load reads and validates a service configuration file.
func Load(path string) (*ServiceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a service configuration document.
func Parse(data []byte) (*ServiceConfig, error) {
	var cfg ServiceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *ServiceConfig) normalize() error {
	if c.Service == "" {
		return &stepfunctions.DefinitionError{Entity: "service", Detail: "missing service name"}
	}
	if c.Provider.Stage == "" {
		c.Provider.Stage = "dev"
	}
	if c.Provider.Region == "" {
		c.Provider.Region = "us-east-1"
	}

	for name, sm := range c.StateMachines {
		if sm == nil {
			return &stepfunctions.DefinitionError{Entity: name, Detail: "empty state machine entry"}
		}
		sm.Name = name
		if len(sm.Definition) == 0 {
			return &stepfunctions.DefinitionError{Entity: name, Detail: "missing definition"}
		}
		if sm.Type != "" && sm.Type != "STANDARD" && sm.Type != "EXPRESS" {
			return &stepfunctions.DefinitionError{
				Entity: name,
				Detail: fmt.Sprintf("unknown state machine type %q", sm.Type),
			}
		}
		for i := range sm.Events {
			ev := &sm.Events[i]
			ev.StateMachine = name
			ev.Index = i
			if ev.Kind() == "" {
				return &stepfunctions.DefinitionError{
					Entity: fmt.Sprintf("%s/events[%d]", name, i),
					Detail: "event must declare exactly one of http, schedule, eventBridge",
				}
			}
		}
	}

	seen := make(map[string]bool, len(c.Activities))
	for _, activity := range c.Activities {
		if activity == "" {
			return &stepfunctions.DefinitionError{Entity: "activities", Detail: "empty activity name"}
		}
		if seen[activity] {
			return &stepfunctions.DefinitionError{
				Entity: "activities",
				Detail: fmt.Sprintf("duplicate activity %q", activity),
			}
		}
		seen[activity] = true
	}
	return nil
}

// MachineNames returns the declared state machine names in lexical order,
// for deterministic phase iteration.
func (c *ServiceConfig) MachineNames() []string {
	names := make([]string, 0, len(c.StateMachines))
	for name := range c.StateMachines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EventsOfKind returns every binding of the given kind across all machines,
// ordered by machine name then declaration order.
func (c *ServiceConfig) EventsOfKind(kind string) []Event {
	var events []Event
	for _, name := range c.MachineNames() {
		for _, ev := range c.StateMachines[name].Events {
			if ev.Kind() == kind {
				events = append(events, ev)
			}
		}
	}
	return events
}

// HasHTTPEvents reports whether any machine declares an http trigger.
func (c *ServiceConfig) HasHTTPEvents() bool {
	return len(c.EventsOfKind("http")) > 0
}
