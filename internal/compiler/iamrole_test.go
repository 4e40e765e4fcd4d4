package compiler

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
)

func roleStatements(t *testing.T, result *Result, roleID string) []map[string]any {
	t.Helper()
	role, ok := result.Template.Resources[roleID]
	require.True(t, ok, "missing role %s", roleID)

	policies := role.Properties["Policies"].([]any)
	doc := policies[0].(map[string]any)["PolicyDocument"].(map[string]any)
	raw := doc["Statement"].([]any)

	statements := make([]map[string]any, len(raw))
	for i, s := range raw {
		statements[i] = s.(map[string]any)
	}
	return statements
}

func statementActions(statement map[string]any) []string {
	var actions []string
	switch v := statement["Action"].(type) {
	case string:
		actions = append(actions, v)
	case []any:
		for _, a := range v {
			actions = append(actions, a.(string))
		}
	}
	return actions
}

func TestExecutionRole_LambdaTasksGetInvokeOnly(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  OrderFlow:
    definition:
      StartAt: Charge
      States:
        Charge:
          Type: Task
          Resource: arn:aws:lambda:us-east-1:123456789012:function:charge
          Next: Notify
        Notify:
          Type: Task
          Resource: arn:aws:lambda:us-east-1:123456789012:function:notify
          End: true
`)
	statements := roleStatements(t, result, "OrderFlowStepFunctionsExecutionRole")
	require.Len(t, statements, 1)

	assert.Equal(t, "Allow", statements[0]["Effect"])
	assert.Equal(t, []string{"lambda:InvokeFunction"}, statementActions(statements[0]))

	resources := statements[0]["Resource"].([]any)
	assert.Len(t, resources, 2)
	for _, seen := range statements {
		for _, action := range statementActions(seen) {
			assert.False(t, strings.HasPrefix(action, "sns:"))
			assert.False(t, strings.HasPrefix(action, "sqs:"))
		}
	}
}

func TestExecutionRole_MixedIntegrations(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  OrderFlow:
    definition:
      StartAt: Store
      States:
        Store:
          Type: Task
          Resource: arn:aws:dynamodb:us-east-1:123456789012:table/orders
          Next: Fanout
        Fanout:
          Type: Task
          Resource: arn:aws:sns:us-east-1:123456789012:order-events
          End: true
`)
	statements := roleStatements(t, result, "OrderFlowStepFunctionsExecutionRole")
	require.Len(t, statements, 2)

	var allActions []string
	for _, s := range statements {
		allActions = append(allActions, statementActions(s)...)
	}
	assert.Contains(t, allActions, "sns:Publish")
	assert.Contains(t, allActions, "dynamodb:PutItem")
	assert.NotContains(t, allActions, "lambda:InvokeFunction")
}

func TestExecutionRole_ActivityTasksNeedNoGrant(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  OrderFlow:
    definition:
      StartAt: Wait
      States:
        Wait:
          Type: Task
          Resource: arn:aws:states:us-east-1:123456789012:activity:manual-review
          End: true
`)
	statements := roleStatements(t, result, "OrderFlowStepFunctionsExecutionRole")
	require.Len(t, statements, 1)
	// no grantable integration remains, so the role carries the deny placeholder
	assert.Equal(t, "Deny", statements[0]["Effect"])
}

func TestExecutionRole_NestedStateMachineGrants(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  OrderFlow:
    definition:
      StartAt: RunChild
      States:
        RunChild:
          Type: Task
          Resource: arn:aws:states:us-east-1:123456789012:stateMachine:checkout-dev-Child
          End: true
`)
	statements := roleStatements(t, result, "OrderFlowStepFunctionsExecutionRole")
	require.Len(t, statements, 1)
	assert.ElementsMatch(t, []string{
		"states:DescribeExecution",
		"states:StartExecution",
		"states:StopExecution",
	}, statementActions(statements[0]))
}

func TestExecutionRole_UnknownIntegrationBroadFallback(t *testing.T) {
	var warnings bytes.Buffer
	cfg := mustParse(t, `
service: checkout
stateMachines:
  OrderFlow:
    definition:
      StartAt: Custom
      States:
        Custom:
          Type: Task
          Resource: arn:aws:glue:us-east-1:123456789012:job/etl
          End: true
`)
	result, err := New(cfg, WithWarnings(&warnings)).Compile()
	require.NoError(t, err)

	statements := roleStatements(t, result, "OrderFlowStepFunctionsExecutionRole")
	require.Len(t, statements, 1)
	assert.Equal(t, []string{"*"}, statementActions(statements[0]))
	assert.Contains(t, warnings.String(), "glue")
}

func TestExecutionRole_UnknownIntegrationStrictFails(t *testing.T) {
	cfg := mustParse(t, `
service: checkout
provider:
  iam:
    strict: true
stateMachines:
  OrderFlow:
    definition:
      StartAt: Custom
      States:
        Custom:
          Type: Task
          Resource: arn:aws:glue:us-east-1:123456789012:job/etl
          End: true
`)
	_, err := New(cfg).Compile()
	var defErr *stepfunctions.DefinitionError
	require.ErrorAs(t, err, &defErr)
	assert.Equal(t, "OrderFlow", defErr.Entity)
}

func TestExecutionRole_InterpolatedNestedArn(t *testing.T) {
	// The nested-machine grant must see the resolved ARN, not the raw
	// placeholder, so interpolation runs before role synthesis.
	result := compile(t, `
service: checkout
stateMachines:
  Child:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
  Parent:
    definition:
      StartAt: RunChild
      States:
        RunChild:
          Type: Task
          Resource: ${stateMachineArn:Child}
          End: true
`)
	statements := roleStatements(t, result, "ParentStepFunctionsExecutionRole")
	require.Len(t, statements, 1)
	assert.Contains(t, statementActions(statements[0]), "states:StartExecution")

	resources := statements[0]["Resource"].([]any)
	require.Len(t, resources, 1)
	assert.Contains(t, resources[0].(string), ":stateMachine:checkout-dev-Child")
}

func TestExecutionRole_AssumePolicyPrincipal(t *testing.T) {
	result := compile(t, `
service: checkout
provider:
  region: eu-west-1
stateMachines:
  OrderFlow:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
`)
	role := result.Template.Resources["OrderFlowStepFunctionsExecutionRole"]
	assume := role.Properties["AssumeRolePolicyDocument"].(map[string]any)
	statement := assume["Statement"].([]any)[0].(map[string]any)
	principal := statement["Principal"].(map[string]any)
	assert.Equal(t, "states.eu-west-1.amazonaws.com", principal["Service"])
}
