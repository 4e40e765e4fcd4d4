package compiler

import (
	"encoding/json"
	"fmt"
	"strings"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
	"github.com/marcelohirota/serverless-step-functions/internal/config"
	"github.com/marcelohirota/serverless-step-functions/internal/definition"
	"github.com/marcelohirota/serverless-step-functions/internal/naming"
	"github.com/marcelohirota/serverless-step-functions/intrinsics"
)

// prepareDefinition validates one definition tree and resolves its
// placeholders, caching the result for the role and state-machine phases.
func (p *Pipeline) prepareDefinition(sm *config.StateMachine) error {
	if err := definition.Validate(sm.Name, sm.Definition); err != nil {
		return err
	}
	interpolated, err := definition.Interpolate(sm.Name, sm.Definition, p.resolveToken)
	if err != nil {
		return err
	}
	p.interpolated[sm.Name] = interpolated
	return nil
}

// compileStateMachine emits the state-machine resource for one prepared
// definition, wired to the role recorded by the role phase.
func (p *Pipeline) compileStateMachine(sm *config.StateMachine) error {
	// encoding/json sorts map keys, so the definition string is
	// byte-identical across runs.
	definitionString, err := json.Marshal(p.interpolated[sm.Name])
	if err != nil {
		return fmt.Errorf("serializing definition of %s: %w", sm.Name, err)
	}

	machineID, err := p.naming.Resolve(sm.Name, naming.KindStateMachine, naming.NoIndex)
	if err != nil {
		return err
	}

	role := p.roleRefs[sm.Name]
	props := map[string]any{
		"StateMachineName": p.naming.PhysicalName(sm.Name),
		"DefinitionString": string(definitionString),
		"RoleArn":          role.arn,
	}
	if sm.Type == "EXPRESS" {
		props["StateMachineType"] = sm.Type
	}
	if sm.Tracing {
		props["TracingConfiguration"] = map[string]any{"Enabled": true}
	}

	var dependsOn []string
	if role.logicalID != "" {
		dependsOn = append(dependsOn, role.logicalID)
	}

	if sm.Logging != nil {
		logGroupID, err := p.compileLogGroup(sm)
		if err != nil {
			return err
		}
		level := sm.Logging.Level
		if level == "" {
			level = "ALL"
		}
		props["LoggingConfiguration"] = map[string]any{
			"Level":                strings.ToUpper(level),
			"IncludeExecutionData": sm.Logging.IncludeExecutionData,
			"Destinations": []any{
				map[string]any{
					"CloudWatchLogsLogGroup": map[string]any{
						"LogGroupArn": intrinsics.GetAtt{Resource: logGroupID, Attribute: "Arn"},
					},
				},
			},
		}
		dependsOn = append(dependsOn, logGroupID)
	}

	err = p.put(machineID, stepfunctions.ResourceDef{
		Type:       "AWS::StepFunctions::StateMachine",
		Properties: props,
		DependsOn:  dependsOn,
	})
	if err != nil {
		return err
	}

	return p.setOutput(machineID+"Arn", stepfunctions.Output{
		Description: fmt.Sprintf("ARN of the %s state machine", sm.Name),
		Value:       intrinsics.Ref{Name: machineID},
	})
}

func (p *Pipeline) compileLogGroup(sm *config.StateMachine) (string, error) {
	logGroupID, err := p.naming.Resolve(sm.Name, naming.KindLogGroup, naming.NoIndex)
	if err != nil {
		return "", err
	}
	err = p.put(logGroupID, stepfunctions.ResourceDef{
		Type: "AWS::Logs::LogGroup",
		Properties: map[string]any{
			"LogGroupName": "/aws/states/" + p.naming.PhysicalName(sm.Name),
		},
	})
	return logGroupID, err
}

// resolveToken resolves one interpolation placeholder. Supported tokens:
// self:service, self:provider.stage, self:provider.region,
// self:provider.accountId, stateMachineArn:<Name>, activityArn:<Name>.
func (p *Pipeline) resolveToken(token string) (string, bool) {
	switch token {
	case "self:service":
		return p.cfg.Service, true
	case "self:provider.stage":
		return p.naming.Stage, true
	case "self:provider.region":
		return p.naming.Region, true
	case "self:provider.accountId":
		if p.naming.AccountID == "" {
			return "", false
		}
		return p.naming.AccountID, true
	}
	if name, ok := strings.CutPrefix(token, "stateMachineArn:"); ok {
		if _, declared := p.cfg.StateMachines[name]; !declared {
			return "", false
		}
		return p.naming.StateMachineArn(name), true
	}
	if name, ok := strings.CutPrefix(token, "activityArn:"); ok {
		for _, activity := range p.cfg.Activities {
			if activity == name {
				return p.naming.ActivityArn(name), true
			}
		}
		return "", false
	}
	return "", false
}

// compileActivities emits one activity resource per declared activity.
func (p *Pipeline) compileActivities() error {
	for _, activity := range p.cfg.Activities {
		activityID, err := p.naming.Resolve(activity, naming.KindActivity, naming.NoIndex)
		if err != nil {
			return err
		}
		err = p.put(activityID, stepfunctions.ResourceDef{
			Type: "AWS::StepFunctions::Activity",
			Properties: map[string]any{
				"Name": p.naming.PhysicalName(activity),
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}
