package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
)

func TestValidateScheduleExpression(t *testing.T) {
	valid := []string{
		"rate(5 minutes)",
		"rate(1 hour)",
		"rate(7 days)",
		"cron(0 12 * * ? *)",
		"cron(15 10 ? * MON-FRI *)",
	}
	for _, expr := range valid {
		assert.NoError(t, validateScheduleExpression(expr), expr)
	}

	invalid := []string{
		"rate(5)",
		"rate(five minutes)",
		"rate(0.5 hours)",
		"cron(banana)",
		"every 5 minutes",
		"",
	}
	for _, expr := range invalid {
		assert.Error(t, validateScheduleExpression(expr), expr)
	}
}

func TestSchedule_EmitsRuleAndRole(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  Nightly:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - schedule: rate(1 day)
`)
	tpl := result.Template

	rule, ok := tpl.Resources["NightlyScheduleRule1"]
	require.True(t, ok)
	assert.Equal(t, "AWS::Events::Rule", rule.Type)
	assert.Equal(t, "rate(1 day)", rule.Properties["ScheduleExpression"])
	assert.Equal(t, "ENABLED", rule.Properties["State"])
	assert.ElementsMatch(t, []string{"NightlyStepFunctionsStateMachine", "NightlyEventsRuleRole"}, rule.DependsOn)

	targets := rule.Properties["Targets"].([]any)
	require.Len(t, targets, 1)
	target := targets[0].(map[string]any)
	assert.Equal(t, map[string]any{"Ref": "NightlyStepFunctionsStateMachine"}, target["Arn"])
	assert.Equal(t, "NightlyScheduleRule1", target["Id"])

	role, ok := tpl.Resources["NightlyEventsRuleRole"]
	require.True(t, ok)
	assert.Equal(t, "AWS::IAM::Role", role.Type)
}

func TestSchedule_MappingFormWithInputAndDisabled(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  Nightly:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - schedule:
          rate: cron(0 3 * * ? *)
          enabled: false
          input: '{"source":"timer"}'
          name: nightly-sweep
`)
	rule := result.Template.Resources["NightlyScheduleRule1"]
	assert.Equal(t, "DISABLED", rule.Properties["State"])
	assert.Equal(t, "nightly-sweep", rule.Properties["Name"])

	target := rule.Properties["Targets"].([]any)[0].(map[string]any)
	assert.Equal(t, `{"source":"timer"}`, target["Input"])
}

func TestSchedule_InvalidExpressionFailsOnlyItsBinding(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  Nightly:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - schedule: rate(1 day)
      - schedule: sometimes
      - schedule: rate(2 hours)
`)
	require.Len(t, result.BindingErrors, 1)
	var defErr *stepfunctions.DefinitionError
	require.ErrorAs(t, result.BindingErrors[0], &defErr)
	assert.Equal(t, "Nightly/events[1]", defErr.Entity)

	assert.Contains(t, result.Template.Resources, "NightlyScheduleRule1")
	assert.NotContains(t, result.Template.Resources, "NightlyScheduleRule2")
	assert.Contains(t, result.Template.Resources, "NightlyScheduleRule3")
}

func TestSchedule_SharedEventsRoleAcrossBindings(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  Nightly:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - schedule: rate(1 day)
      - eventBridge:
          pattern:
            source: [aws.ec2]
`)
	tpl := result.Template

	var roles int
	for _, def := range tpl.Resources {
		if def.Type == "AWS::IAM::Role" {
			roles++
		}
	}
	// execution role + one shared events role, despite two rule bindings
	assert.Equal(t, 2, roles)
}

func TestBridge_EmitsPatternRule(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  OrderFlow:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - eventBridge:
          pattern:
            source: [custom.orders]
            detail-type: [order.created]
          eventBus: orders-bus
`)
	rule, ok := result.Template.Resources["OrderFlowEventsRule1"]
	require.True(t, ok)
	assert.Equal(t, "AWS::Events::Rule", rule.Type)
	assert.Equal(t, "orders-bus", rule.Properties["EventBusName"])

	pattern := rule.Properties["EventPattern"].(map[string]any)
	assert.Equal(t, []any{"custom.orders"}, pattern["source"])
}

func TestBridge_MissingPatternFailsBinding(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  OrderFlow:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - eventBridge:
          eventBus: orders-bus
`)
	require.Len(t, result.BindingErrors, 1)
	var defErr *stepfunctions.DefinitionError
	require.ErrorAs(t, result.BindingErrors[0], &defErr)
	assert.Contains(t, defErr.Detail, "pattern")

	for id, def := range result.Template.Resources {
		assert.NotEqual(t, "AWS::Events::Rule", def.Type, "unexpected rule %s", id)
	}
}
