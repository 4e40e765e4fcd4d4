package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
)

func testContext() Context {
	return Context{Service: "checkout", Stage: "dev", Region: "us-east-1"}
}

func TestLogicalID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "OrderFlow", "OrderFlow"},
		{"lowercase first", "orderFlow", "OrderFlow"},
		{"hyphen separated", "order-flow", "OrderFlow"},
		{"underscore separated", "order_flow_v2", "OrderFlowV2"},
		{"leading digit", "1flow", "R1flow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LogicalID(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogicalID_Invalid(t *testing.T) {
	for _, in := range []string{"", "order/flow", "flow!", "---"} {
		_, err := LogicalID(in)
		var namingErr *stepfunctions.NamingError
		require.ErrorAs(t, err, &namingErr, "input %q", in)
	}
}

func TestResolve_Deterministic(t *testing.T) {
	ctx := testContext()

	first, err := ctx.Resolve("OrderFlow", KindStateMachine, NoIndex)
	require.NoError(t, err)
	second, err := ctx.Resolve("OrderFlow", KindStateMachine, NoIndex)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "OrderFlowStepFunctionsStateMachine", first)
}

func TestResolve_IndexDisambiguation(t *testing.T) {
	ctx := testContext()

	a, err := ctx.Resolve("OrderFlow", KindScheduleRule, 0)
	require.NoError(t, err)
	b, err := ctx.Resolve("OrderFlow", KindScheduleRule, 1)
	require.NoError(t, err)

	assert.Equal(t, "OrderFlowScheduleRule1", a)
	assert.Equal(t, "OrderFlowScheduleRule2", b)
	assert.NotEqual(t, a, b)
}

func TestResolveService(t *testing.T) {
	ctx := testContext()
	id, err := ctx.ResolveService(KindRestApi, NoIndex)
	require.NoError(t, err)
	assert.Equal(t, "CheckoutApiGatewayRestApi", id)
}

func TestPhysicalName(t *testing.T) {
	ctx := testContext()
	assert.Equal(t, "checkout-dev-OrderFlow", ctx.PhysicalName("OrderFlow"))
}

func TestStateMachineArn(t *testing.T) {
	ctx := testContext()
	ctx.AccountID = "123456789012"
	assert.Equal(t,
		"arn:aws:states:us-east-1:123456789012:stateMachine:checkout-dev-OrderFlow",
		ctx.StateMachineArn("OrderFlow"))
}
