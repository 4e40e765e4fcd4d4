package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gorhill/cronexpr"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
	"github.com/marcelohirota/serverless-step-functions/internal/naming"
	"github.com/marcelohirota/serverless-step-functions/intrinsics"
)

var ratePattern = regexp.MustCompile(`^rate\((\d+) (minute|minutes|hour|hours|day|days)\)$`)

// validateScheduleExpression accepts the EventBridge schedule grammar:
// rate(N unit) or cron(<expression>). The cron body is parsed for real
// rather than pattern matched.
func validateScheduleExpression(expr string) error {
	switch {
	case strings.HasPrefix(expr, "rate("):
		if !ratePattern.MatchString(expr) {
			return fmt.Errorf("invalid rate expression %q", expr)
		}
		return nil
	case strings.HasPrefix(expr, "cron(") && strings.HasSuffix(expr, ")"):
		body := strings.TrimSuffix(strings.TrimPrefix(expr, "cron("), ")")
		if _, err := cronexpr.Parse(body); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
		return nil
	default:
		return fmt.Errorf("schedule must be rate(...) or cron(...), got %q", expr)
	}
}

// compileScheduleEvents emits a scheduled rule per schedule binding plus the
// shared per-machine role that lets the rule start the machine. A bad
// expression fails only its own binding.
func (p *Pipeline) compileScheduleEvents() ([]error, error) {
	var bindingErrs []error

	for _, ev := range p.cfg.EventsOfKind("schedule") {
		sched := ev.Schedule
		if err := validateScheduleExpression(sched.Rate); err != nil {
			bindingErrs = append(bindingErrs, &stepfunctions.DefinitionError{
				Entity: fmt.Sprintf("%s/events[%d]", ev.StateMachine, ev.Index),
				Detail: err.Error(),
			})
			continue
		}

		roleID, err := p.compileEventsRole(ev.StateMachine)
		if err != nil {
			return bindingErrs, err
		}
		machineID, err := p.naming.Resolve(ev.StateMachine, naming.KindStateMachine, naming.NoIndex)
		if err != nil {
			return bindingErrs, err
		}
		ruleID, err := p.naming.Resolve(ev.StateMachine, naming.KindScheduleRule, ev.Index)
		if err != nil {
			return bindingErrs, err
		}

		state := "ENABLED"
		if !sched.IsEnabled() {
			state = "DISABLED"
		}
		target := map[string]any{
			"Arn":     intrinsics.Ref{Name: machineID},
			"Id":      ruleID,
			"RoleArn": intrinsics.GetAtt{Resource: roleID, Attribute: "Arn"},
		}
		if sched.Input != "" {
			target["Input"] = sched.Input
		}

		props := map[string]any{
			"ScheduleExpression": sched.Rate,
			"State":              state,
			"Targets":            []any{target},
		}
		if sched.Name != "" {
			props["Name"] = sched.Name
		}

		err = p.put(ruleID, stepfunctions.ResourceDef{
			Type:       "AWS::Events::Rule",
			Properties: props,
			DependsOn:  []string{machineID, roleID},
		})
		if err != nil {
			return bindingErrs, err
		}
	}
	return bindingErrs, nil
}

// compileBridgeEvents emits a pattern-matched rule per event-bus binding,
// sharing the same per-machine events role as the schedule compiler.
func (p *Pipeline) compileBridgeEvents() ([]error, error) {
	var bindingErrs []error

	for _, ev := range p.cfg.EventsOfKind("eventBridge") {
		bridge := ev.EventBridge
		if len(bridge.Pattern) == 0 {
			bindingErrs = append(bindingErrs, &stepfunctions.DefinitionError{
				Entity: fmt.Sprintf("%s/events[%d]", ev.StateMachine, ev.Index),
				Detail: "eventBridge event needs a pattern",
			})
			continue
		}

		roleID, err := p.compileEventsRole(ev.StateMachine)
		if err != nil {
			return bindingErrs, err
		}
		machineID, err := p.naming.Resolve(ev.StateMachine, naming.KindStateMachine, naming.NoIndex)
		if err != nil {
			return bindingErrs, err
		}
		ruleID, err := p.naming.Resolve(ev.StateMachine, naming.KindEventRule, ev.Index)
		if err != nil {
			return bindingErrs, err
		}

		state := "ENABLED"
		if !bridge.IsEnabled() {
			state = "DISABLED"
		}
		target := map[string]any{
			"Arn":     intrinsics.Ref{Name: machineID},
			"Id":      ruleID,
			"RoleArn": intrinsics.GetAtt{Resource: roleID, Attribute: "Arn"},
		}
		if bridge.Input != "" {
			target["Input"] = bridge.Input
		}

		props := map[string]any{
			"EventPattern": bridge.Pattern,
			"State":        state,
			"Targets":      []any{target},
		}
		if bridge.EventBus != "" {
			props["EventBusName"] = bridge.EventBus
		}

		err = p.put(ruleID, stepfunctions.ResourceDef{
			Type:       "AWS::Events::Rule",
			Properties: props,
			DependsOn:  []string{machineID, roleID},
		})
		if err != nil {
			return bindingErrs, err
		}
	}
	return bindingErrs, nil
}

// compileEventsRole emits, once per machine, the role EventBridge assumes to
// start executions. Both rule compilers resolve to the same identifier.
func (p *Pipeline) compileEventsRole(machine string) (string, error) {
	roleID, err := p.naming.Resolve(machine, naming.KindEventsRole, naming.NoIndex)
	if err != nil {
		return "", err
	}
	machineID, err := p.naming.Resolve(machine, naming.KindStateMachine, naming.NoIndex)
	if err != nil {
		return "", err
	}

	_, err = p.putShared(roleID, stepfunctions.ResourceDef{
		Type: "AWS::IAM::Role",
		Properties: map[string]any{
			"AssumeRolePolicyDocument": intrinsics.AssumeRolePolicy("events.amazonaws.com"),
			"Policies": []any{
				map[string]any{
					"PolicyName": p.naming.PhysicalName(machine) + "-events",
					"PolicyDocument": map[string]any{
						"Version": "2012-10-17",
						"Statement": []any{
							intrinsics.PolicyStatement{
								Effect:   "Allow",
								Action:   "states:StartExecution",
								Resource: intrinsics.Ref{Name: machineID},
							},
						},
					},
				},
			},
		},
		DependsOn: []string{machineID},
	})
	return roleID, err
}
