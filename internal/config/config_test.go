package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
)

const sampleConfig = `
service: checkout
provider:
  stage: prod
  region: eu-west-1
stateMachines:
  OrderFlow:
    definition:
      StartAt: Reserve
      States:
        Reserve:
          Type: Pass
          End: true
    events:
      - http:
          path: orders
          method: post
          cors: true
      - schedule: rate(1 hour)
      - eventBridge:
          pattern:
            source: ["aws.ec2"]
  Cleanup:
    definition:
      StartAt: Sweep
      States:
        Sweep:
          Type: Pass
          End: true
activities:
  - resizeImage
`

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "checkout", cfg.Service)
	assert.Equal(t, "prod", cfg.Provider.Stage)
	assert.Equal(t, "eu-west-1", cfg.Provider.Region)
	assert.Equal(t, []string{"resizeImage"}, cfg.Activities)
	require.Len(t, cfg.StateMachines, 2)

	sm := cfg.StateMachines["OrderFlow"]
	require.NotNil(t, sm)
	assert.Equal(t, "OrderFlow", sm.Name)
	require.Len(t, sm.Events, 3)

	assert.Equal(t, "http", sm.Events[0].Kind())
	assert.Equal(t, "orders", sm.Events[0].HTTP.Path)
	assert.True(t, sm.Events[0].HTTP.CORS)
	assert.Equal(t, "OrderFlow", sm.Events[0].StateMachine)
	assert.Equal(t, 0, sm.Events[0].Index)

	assert.Equal(t, "schedule", sm.Events[1].Kind())
	assert.Equal(t, "rate(1 hour)", sm.Events[1].Schedule.Rate)
	assert.True(t, sm.Events[1].Schedule.IsEnabled())

	assert.Equal(t, "eventBridge", sm.Events[2].Kind())
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
service: minimal
stateMachines:
  Only:
    definition:
      StartAt: S
      States:
        S: {Type: Pass, End: true}
`))
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.Provider.Stage)
	assert.Equal(t, "us-east-1", cfg.Provider.Region)
}

func TestParse_CloudwatchEventAlias(t *testing.T) {
	cfg, err := Parse([]byte(`
service: s
stateMachines:
  M:
    definition:
      StartAt: S
      States:
        S: {Type: Pass, End: true}
    events:
      - cloudwatchEvent:
          pattern:
            source: ["aws.ecs"]
`))
	require.NoError(t, err)
	ev := cfg.StateMachines["M"].Events[0]
	assert.Equal(t, "eventBridge", ev.Kind())
	require.NotNil(t, ev.EventBridge)
}

func TestParse_ScheduleMappingForm(t *testing.T) {
	cfg, err := Parse([]byte(`
service: s
stateMachines:
  M:
    definition:
      StartAt: S
      States:
        S: {Type: Pass, End: true}
    events:
      - schedule:
          rate: cron(0 12 * * ? *)
          enabled: false
`))
	require.NoError(t, err)
	sched := cfg.StateMachines["M"].Events[0].Schedule
	require.NotNil(t, sched)
	assert.Equal(t, "cron(0 12 * * ? *)", sched.Rate)
	assert.False(t, sched.IsEnabled())
}

func TestParse_AlarmMetricForms(t *testing.T) {
	cfg, err := Parse([]byte(`
service: s
stateMachines:
  M:
    definition:
      StartAt: S
      States:
        S: {Type: Pass, End: true}
    alarms:
      metrics:
        - executionsFailed
        - metric: executionsTimedOut
          threshold: 5
      notifications:
        - protocol: email
          endpoint: ops@example.com
`))
	require.NoError(t, err)
	alarms := cfg.StateMachines["M"].Alarms
	require.NotNil(t, alarms)
	require.Len(t, alarms.Metrics, 2)
	assert.Equal(t, "executionsFailed", alarms.Metrics[0].Metric)
	assert.Equal(t, float64(1), alarms.Metrics[0].Threshold)
	assert.Equal(t, float64(5), alarms.Metrics[1].Threshold)
	require.Len(t, alarms.Notifications, 1)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing service", `
stateMachines:
  M:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
`},
		{"missing definition", `
service: s
stateMachines:
  M: {}
`},
		{"ambiguous event", `
service: s
stateMachines:
  M:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - {}
`},
		{"bad machine type", `
service: s
stateMachines:
  M:
    type: TURBO
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
`},
		{"duplicate activity", `
service: s
activities: [a, a]
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			var defErr *stepfunctions.DefinitionError
			require.ErrorAs(t, err, &defErr)
		})
	}
}

func TestMachineNames_Sorted(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, []string{"Cleanup", "OrderFlow"}, cfg.MachineNames())
}

func TestEventsOfKind(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	assert.Len(t, cfg.EventsOfKind("http"), 1)
	assert.Len(t, cfg.EventsOfKind("schedule"), 1)
	assert.Len(t, cfg.EventsOfKind("eventBridge"), 1)
	assert.True(t, cfg.HasHTTPEvents())
}
