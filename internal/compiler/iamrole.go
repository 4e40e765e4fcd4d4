package compiler

import (
	"fmt"
	"sort"
	"strings"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
	"github.com/marcelohirota/serverless-step-functions/internal/config"
	"github.com/marcelohirota/serverless-step-functions/internal/definition"
	"github.com/marcelohirota/serverless-step-functions/internal/naming"
	"github.com/marcelohirota/serverless-step-functions/intrinsics"
)

// actionTemplates maps a task-resource ARN service prefix to the minimal
// permission set a machine needs to drive that integration. The synthesized
// role is the union of the templates matched by the definition's tasks.
var actionTemplates = []struct {
	prefix  string
	actions []string
}{
	{"arn:aws:lambda:", []string{"lambda:InvokeFunction"}},
	{"arn:aws:sns:", []string{"sns:Publish"}},
	{"arn:aws:sqs:", []string{"sqs:SendMessage"}},
	{"arn:aws:dynamodb:", []string{
		"dynamodb:DeleteItem",
		"dynamodb:GetItem",
		"dynamodb:PutItem",
		"dynamodb:UpdateItem",
	}},
	{"arn:aws:ecs:", []string{"ecs:RunTask"}},
	{"arn:aws:batch:", []string{"batch:SubmitJob"}},
}

// compileExecutionRole produces or reuses the execution role for a machine.
// A user-supplied role ARN skips synthesis; otherwise the definition's task
// resources select permission templates and one role resource is emitted.
// Repeated calls for the same machine within a run resolve to the existing
// entry.
func (p *Pipeline) compileExecutionRole(sm *config.StateMachine) error {
	if sm.Role != "" {
		p.roleRefs[sm.Name] = roleRef{arn: sm.Role}
		return nil
	}

	roleID, err := p.naming.Resolve(sm.Name, naming.KindRole, naming.NoIndex)
	if err != nil {
		return err
	}
	p.roleRefs[sm.Name] = roleRef{
		arn:       intrinsics.GetAtt{Resource: roleID, Attribute: "Arn"},
		logicalID: roleID,
	}
	if p.acc.Has(roleID) {
		return nil
	}

	statements, err := p.statementsForTasks(sm)
	if err != nil {
		return err
	}

	_, err = p.putShared(roleID, stepfunctions.ResourceDef{
		Type: "AWS::IAM::Role",
		Properties: map[string]any{
			"AssumeRolePolicyDocument": intrinsics.AssumeRolePolicy(
				fmt.Sprintf("states.%s.amazonaws.com", p.naming.Region),
			),
			"Policies": []any{
				map[string]any{
					"PolicyName": p.naming.PhysicalName(sm.Name) + "-execution",
					"PolicyDocument": map[string]any{
						"Version":   "2012-10-17",
						"Statement": statements,
					},
				},
			},
		},
	})
	return err
}

// statementsForTasks builds the policy statements implied by every task
// integration in the definition, one statement per matched template with the
// matching resources attached. Unrecognized integrations get a broad grant
// and a warning, or fail the run under provider.iam.strict.
func (p *Pipeline) statementsForTasks(sm *config.StateMachine) ([]any, error) {
	resourcesByPrefix := make(map[string][]string)
	var unknown []string

	for _, resource := range definition.TaskResources(p.interpolated[sm.Name]) {
		switch {
		case strings.Contains(resource, ":activity:"):
			// Activity tasks are polled by workers; the machine itself
			// needs no additional permission.
		case strings.Contains(resource, ":stateMachine:"):
			resourcesByPrefix["states"] = append(resourcesByPrefix["states"], resource)
		default:
			matched := false
			for _, tpl := range actionTemplates {
				if strings.HasPrefix(resource, tpl.prefix) {
					resourcesByPrefix[tpl.prefix] = append(resourcesByPrefix[tpl.prefix], resource)
					matched = true
					break
				}
			}
			if !matched {
				unknown = append(unknown, resource)
			}
		}
	}

	var statements []any
	for _, tpl := range actionTemplates {
		resources := resourcesByPrefix[tpl.prefix]
		if len(resources) == 0 {
			continue
		}
		sort.Strings(resources)
		statements = append(statements, intrinsics.PolicyStatement{
			Effect:   "Allow",
			Action:   toAny(tpl.actions),
			Resource: toAny(resources),
		})
	}

	if nested := resourcesByPrefix["states"]; len(nested) > 0 {
		sort.Strings(nested)
		statements = append(statements, intrinsics.PolicyStatement{
			Effect: "Allow",
			Action: []any{
				"states:DescribeExecution",
				"states:StartExecution",
				"states:StopExecution",
			},
			Resource: toAny(nested),
		})
	}

	if len(unknown) > 0 {
		if p.cfg.Provider.IAM.Strict {
			sort.Strings(unknown)
			return nil, &stepfunctions.DefinitionError{
				Entity: sm.Name,
				Detail: fmt.Sprintf("unrecognized task integrations %v with strict IAM enabled", unknown),
			}
		}
		sort.Strings(unknown)
		p.warnf("warning: %s: unrecognized task integrations %v, granting broad permissions",
			sm.Name, unknown)
		statements = append(statements, intrinsics.PolicyStatement{
			Effect:   "Allow",
			Action:   "*",
			Resource: toAny(unknown),
		})
	}

	if len(statements) == 0 {
		// A machine with no task states still needs a valid (empty-scope)
		// policy so the role resource is well formed.
		statements = append(statements, intrinsics.PolicyStatement{
			Effect:   "Deny",
			Action:   "*",
			Resource: "*",
		})
	}
	return statements, nil
}

func toAny[T any](items []T) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
