// Package intrinsics provides the CloudFormation intrinsic functions the
// compiler emits into resource properties.
//
// Core intrinsic functions:
//
//	Ref{"MyStateMachine"} → {"Ref": "MyStateMachine"}
//	GetAtt{"MyRole", "Arn"} → {"Fn::GetAtt": ["MyRole", "Arn"]}
//	Sub{"${AWS::Region}-bucket"} → {"Fn::Sub": "${AWS::Region}-bucket"}
package intrinsics

import "encoding/json"

// Ref represents a CloudFormation Ref intrinsic function.
type Ref struct {
	Name string
}

// MarshalJSON serializes to {"Ref": name}.
func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"Ref": r.Name})
}

// GetAtt represents a CloudFormation Fn::GetAtt intrinsic function.
type GetAtt struct {
	Resource  string
	Attribute string
}

// MarshalJSON serializes to {"Fn::GetAtt": [resource, attribute]}.
func (g GetAtt) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]string{
		"Fn::GetAtt": {g.Resource, g.Attribute},
	})
}

// Sub represents a CloudFormation Fn::Sub intrinsic function.
type Sub struct {
	String string
}

// MarshalJSON serializes to {"Fn::Sub": string}.
func (s Sub) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"Fn::Sub": s.String})
}

// Join represents a CloudFormation Fn::Join intrinsic function.
type Join struct {
	Separator string
	Values    []any
}

// MarshalJSON serializes to {"Fn::Join": [separator, values]}.
func (j Join) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]any{
		"Fn::Join": {j.Separator, j.Values},
	})
}

// Pseudo-parameters are predefined by CloudFormation and available in every
// template. They return values specific to the current stack.
var (
	// AWS_PARTITION returns the partition the resource is in (aws, aws-cn, aws-us-gov).
	AWS_PARTITION = Ref{"AWS::Partition"}

	// AWS_REGION returns the region in which the stack is created.
	AWS_REGION = Ref{"AWS::Region"}
)
