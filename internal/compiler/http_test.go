package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
)

func TestHTTP_PathSegmentSharing(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  OrderFlow:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - http: {path: "orders/{id}", method: get}
      - http: {path: orders/status, method: get}
`)
	tpl := result.Template

	var apiResources []string
	for id, def := range tpl.Resources {
		if def.Type == "AWS::ApiGateway::Resource" {
			apiResources = append(apiResources, id)
		}
	}
	// /orders is created once and shared by both bindings.
	assert.ElementsMatch(t, []string{
		"CheckoutApiGatewayResourceOrders",
		"CheckoutApiGatewayResourceOrdersIdVar",
		"CheckoutApiGatewayResourceOrdersStatus",
	}, apiResources)
	assert.Empty(t, result.BindingErrors)
	assert.Len(t, result.Endpoints, 2)
}

func TestHTTP_PartialFailureIsolation(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  OrderFlow:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - http: {path: orders, method: post}
      - http: {path: orders, method: teleport}
      - http: {path: refunds, method: put}
`)
	tpl := result.Template

	require.Len(t, result.BindingErrors, 1)
	var defErr *stepfunctions.DefinitionError
	require.ErrorAs(t, result.BindingErrors[0], &defErr)
	assert.Contains(t, defErr.Entity, "events[1]")
	assert.Contains(t, defErr.Detail, "teleport")

	// siblings still compiled
	assert.Contains(t, tpl.Resources, "CheckoutApiGatewayMethodOrdersPost")
	assert.Contains(t, tpl.Resources, "CheckoutApiGatewayMethodRefundsPut")
	assert.Len(t, result.Endpoints, 2)
}

func TestHTTP_ReservedPathCharacter(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  OrderFlow:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - http: {path: "orders?id", method: get}
`)
	require.Len(t, result.BindingErrors, 1)
	var defErr *stepfunctions.DefinitionError
	require.ErrorAs(t, result.BindingErrors[0], &defErr)
	assert.Contains(t, defErr.Detail, "reserved character")
}

func TestHTTP_IntegrationWiring(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  OrderFlow:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - http: {path: orders, method: post}
`)
	tpl := result.Template

	method := tpl.Resources["CheckoutApiGatewayMethodOrdersPost"]
	integration, ok := method.Properties["Integration"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "AWS", integration["Type"])
	assert.Equal(t, "POST", integration["IntegrationHttpMethod"])

	uri, ok := integration["Uri"].(map[string]any)
	require.True(t, ok)
	join, ok := uri["Fn::Join"].([]any)
	require.True(t, ok)
	require.Len(t, join, 2)
	assert.Equal(t, "", join[0])
	parts, ok := join[1].([]any)
	require.True(t, ok)
	assert.Contains(t, parts, ":states:action/StartExecution")
	assert.Contains(t, parts, map[string]any{"Ref": "AWS::Region"})
	assert.Contains(t, parts, map[string]any{"Ref": "AWS::Partition"})

	credentials, ok := integration["Credentials"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"CheckoutApiGatewayToStepFunctionsRole", "Arn"}, credentials["Fn::GetAtt"])
}

func TestHTTP_RoleCoversAllBoundMachines(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  A:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - http: {path: a, method: get}
  B:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - http: {path: b, method: get}
`)
	role := result.Template.Resources["CheckoutApiGatewayToStepFunctionsRole"]
	policies := role.Properties["Policies"].([]any)
	doc := policies[0].(map[string]any)["PolicyDocument"].(map[string]any)
	statements := doc["Statement"].([]any)
	require.Len(t, statements, 2, "one StartExecution statement per bound machine")
}

func TestHTTP_CORSInjectsOptionsMethod(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  OrderFlow:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - http: {path: orders, method: post, cors: true}
`)
	tpl := result.Template

	options, ok := tpl.Resources["CheckoutApiGatewayMethodOrdersOptions"]
	require.True(t, ok)
	integration := options.Properties["Integration"].(map[string]any)
	assert.Equal(t, "MOCK", integration["Type"])

	// deployment waits for the OPTIONS method too
	deployment := tpl.Resources["CheckoutApiGatewayDeployment"]
	assert.Contains(t, deployment.DependsOn, "CheckoutApiGatewayMethodOrdersOptions")
}

func TestHTTP_Authorizer(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  OrderFlow:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - http:
          path: orders
          method: post
          authorizer:
            arn: arn:aws:lambda:us-east-1:123456789012:function:check-auth
      - http:
          path: refunds
          method: post
          authorizer:
            arn: arn:aws:lambda:us-east-1:123456789012:function:check-auth
`)
	tpl := result.Template

	var authorizers, permissions []string
	for id, def := range tpl.Resources {
		switch def.Type {
		case "AWS::ApiGateway::Authorizer":
			authorizers = append(authorizers, id)
		case "AWS::Lambda::Permission":
			permissions = append(permissions, id)
		}
	}
	assert.Len(t, authorizers, 1, "same function arn shares one authorizer")
	assert.Len(t, permissions, 1)

	method := tpl.Resources["CheckoutApiGatewayMethodOrdersPost"]
	assert.Equal(t, "CUSTOM", method.Properties["AuthorizationType"])
}

func TestHTTP_AuthorizerWithoutArnFailsBinding(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  OrderFlow:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - http:
          path: orders
          method: post
          authorizer:
            name: check
`)
	require.Len(t, result.BindingErrors, 1)
	assert.NotContains(t, result.Template.Resources, "CheckoutApiGatewayMethodOrdersPost")
}

func TestHTTP_RequestValidator(t *testing.T) {
	result := compile(t, `
service: checkout
stateMachines:
  OrderFlow:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - http:
          path: orders
          method: post
          request:
            schemas:
              application/json:
                type: object
`)
	tpl := result.Template

	validator, ok := tpl.Resources["CheckoutApiGatewayRequestValidatorOrdersPost"]
	require.True(t, ok)
	assert.Equal(t, true, validator.Properties["ValidateRequestBody"])

	method := tpl.Resources["CheckoutApiGatewayMethodOrdersPost"]
	assert.Contains(t, method.Properties, "RequestValidatorId")
}

func TestHTTP_APIKeysAndUsagePlan(t *testing.T) {
	result := compile(t, `
service: checkout
provider:
  apiKeys: [partnerKey]
  usagePlan:
    throttle:
      burstLimit: 200
      rateLimit: 100
    quota:
      limit: 5000
      period: MONTH
stateMachines:
  OrderFlow:
    definition:
      StartAt: S
      States: {S: {Type: Pass, End: true}}
    events:
      - http: {path: orders, method: post, private: true}
`)
	tpl := result.Template

	assert.Contains(t, tpl.Resources, "CheckoutApiGatewayApiKey1")
	assert.Contains(t, tpl.Resources, "CheckoutApiGatewayUsagePlan")
	assert.Contains(t, tpl.Resources, "CheckoutApiGatewayUsagePlanKey1")

	method := tpl.Resources["CheckoutApiGatewayMethodOrdersPost"]
	assert.Equal(t, true, method.Properties["ApiKeyRequired"])

	plan := tpl.Resources["CheckoutApiGatewayUsagePlan"]
	throttle := plan.Properties["Throttle"].(map[string]any)
	assert.Equal(t, float64(200), throttle["BurstLimit"])
}

func TestHTTP_NoEventsNoAPIResources(t *testing.T) {
	result := compile(t, orderFlowNoEvents)
	for id, def := range result.Template.Resources {
		assert.NotContains(t, def.Type, "ApiGateway", "unexpected %s", id)
	}
}
