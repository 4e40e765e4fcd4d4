// Package naming derives deterministic logical identifiers and physical
// names for every resource the compiler synthesizes.
//
// Logical identifiers are a pure function of (state machine name, resource
// kind, disambiguating index); two compilations of the same input under the
// same Context produce identical identifiers.
package naming

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
)

// Kind enumerates the resource kinds the compiler can synthesize. The kind
// determines the suffix of the logical identifier.
type Kind string

const (
	KindStateMachine      Kind = "StepFunctionsStateMachine"
	KindRole              Kind = "StepFunctionsExecutionRole"
	KindLogGroup          Kind = "StepFunctionsLogGroup"
	KindActivity          Kind = "StepFunctionsActivity"
	KindAlarm             Kind = "StateMachineAlarm"
	KindAlarmTopic        Kind = "AlarmTopic"
	KindAlarmSubscription Kind = "AlarmTopicSubscription"
	KindScheduleRule      Kind = "ScheduleRule"
	KindEventRule         Kind = "EventsRule"
	KindEventsRole        Kind = "EventsRuleRole"
	KindRestApi           Kind = "ApiGatewayRestApi"
	KindApiResource       Kind = "ApiGatewayResource"
	KindApiMethod         Kind = "ApiGatewayMethod"
	KindRequestValidator  Kind = "ApiGatewayRequestValidator"
	KindAuthorizer        Kind = "ApiGatewayAuthorizer"
	KindApiPermission     Kind = "ApiGatewayAuthorizerPermission"
	KindApiRole           Kind = "ApiGatewayToStepFunctionsRole"
	KindDeployment        Kind = "ApiGatewayDeployment"
	KindApiKey            Kind = "ApiGatewayApiKey"
	KindUsagePlan         Kind = "ApiGatewayUsagePlan"
	KindUsagePlanKey      Kind = "ApiGatewayUsagePlanKey"
)

// NoIndex marks a resolution without a disambiguating index.
const NoIndex = -1

// Context carries the compilation-wide naming inputs. Read-only after
// construction.
type Context struct {
	Service string
	Stage   string
	Region  string
	// AccountID is the account placeholder substituted into physical ARNs.
	// Compile-time output uses pseudo-parameters instead, so this only
	// matters for the execution client's name→ARN resolution.
	AccountID string
}

// Resolve maps a state machine name and resource kind to its logical
// identifier. index disambiguates multiple resources of the same kind on
// one state machine (event bindings); pass NoIndex for singletons.
func (c Context) Resolve(stateMachineName string, kind Kind, index int) (string, error) {
	normalized, err := LogicalID(stateMachineName)
	if err != nil {
		return "", err
	}
	id := normalized + string(kind)
	if index != NoIndex {
		id += strconv.Itoa(index + 1)
	}
	return id, nil
}

// ResolveService maps a service-scoped kind (REST API, shared roles, usage
// plans) to its logical identifier. These resources are shared by every
// state machine in the service.
func (c Context) ResolveService(kind Kind, index int) (string, error) {
	normalized, err := LogicalID(c.Service)
	if err != nil {
		return "", err
	}
	id := normalized + string(kind)
	if index != NoIndex {
		id += strconv.Itoa(index + 1)
	}
	return id, nil
}

// LogicalID normalizes a user-authored name into the CloudFormation logical
// identifier charset ([A-Za-z0-9], first rune a letter). Hyphens and
// underscores act as word separators. Fails when nothing usable remains.
func LogicalID(name string) (string, error) {
	if name == "" {
		return "", &stepfunctions.NamingError{Name: name, Reason: "empty name"}
	}

	var b strings.Builder
	upperNext := true
	for _, r := range name {
		switch {
		case r == '-' || r == '_' || r == ' ':
			upperNext = true
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if upperNext {
				b.WriteRune(unicode.ToUpper(r))
				upperNext = false
			} else {
				b.WriteRune(r)
			}
		default:
			return "", &stepfunctions.NamingError{
				Name:   name,
				Reason: fmt.Sprintf("invalid character %q", r),
			}
		}
	}

	id := b.String()
	if id == "" {
		return "", &stepfunctions.NamingError{Name: name, Reason: "no usable characters"}
	}
	if !unicode.IsLetter(rune(id[0])) {
		id = "R" + id
	}
	return id, nil
}

// PhysicalName returns the deployed name of a state machine or activity:
// "<service>-<stage>-<name>".
func (c Context) PhysicalName(name string) string {
	return c.Service + "-" + c.Stage + "-" + name
}

// StateMachineArn returns the deployed ARN of a declared state machine.
// Used by placeholder interpolation and the execution client; template
// references use GetAtt instead.
func (c Context) StateMachineArn(name string) string {
	account := c.AccountID
	if account == "" {
		account = "*"
	}
	return fmt.Sprintf("arn:aws:states:%s:%s:stateMachine:%s",
		c.Region, account, c.PhysicalName(name))
}

// ActivityArn returns the deployed ARN of a declared activity.
func (c Context) ActivityArn(name string) string {
	account := c.AccountID
	if account == "" {
		account = "*"
	}
	return fmt.Sprintf("arn:aws:states:%s:%s:activity:%s",
		c.Region, account, c.PhysicalName(name))
}
