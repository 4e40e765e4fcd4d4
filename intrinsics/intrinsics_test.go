package intrinsics

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func marshal(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestRef_MarshalJSON(t *testing.T) {
	assert.Equal(t, `{"Ref":"MyMachine"}`, marshal(t, Ref{"MyMachine"}))
}

func TestGetAtt_MarshalJSON(t *testing.T) {
	assert.Equal(t, `{"Fn::GetAtt":["MyRole","Arn"]}`, marshal(t, GetAtt{"MyRole", "Arn"}))
}

func TestSub_MarshalJSON(t *testing.T) {
	assert.Equal(t, `{"Fn::Sub":"${AWS::Region}-api"}`, marshal(t, Sub{String: "${AWS::Region}-api"}))
}

func TestJoin_MarshalJSON(t *testing.T) {
	got := marshal(t, Join{Separator: ":", Values: []any{"a", Ref{"B"}}})
	assert.Equal(t, `{"Fn::Join":[":",["a",{"Ref":"B"}]]}`, got)
}

func TestPseudoParameters_MarshalJSON(t *testing.T) {
	assert.Equal(t, `{"Ref":"AWS::Partition"}`, marshal(t, AWS_PARTITION))
	assert.Equal(t, `{"Ref":"AWS::Region"}`, marshal(t, AWS_REGION))
}

func TestServicePrincipal_MarshalJSON(t *testing.T) {
	assert.Equal(t, `{"Service":"states.amazonaws.com"}`,
		marshal(t, ServicePrincipal{"states.amazonaws.com"}))
	assert.Equal(t, `{"Service":["a.amazonaws.com","b.amazonaws.com"]}`,
		marshal(t, ServicePrincipal{"a.amazonaws.com", "b.amazonaws.com"}))
}

func TestAssumeRolePolicy(t *testing.T) {
	doc := AssumeRolePolicy("apigateway.amazonaws.com")
	require.Len(t, doc.Statement, 1)
	assert.Equal(t, "2012-10-17", doc.Version)

	stmt, ok := doc.Statement[0].(PolicyStatement)
	require.True(t, ok)
	assert.Equal(t, "Allow", stmt.Effect)
	assert.Equal(t, "sts:AssumeRole", stmt.Action)
}
