// Package execution talks to the deployed Step Functions service: resolving
// state machine ARNs, starting executions, and reading back their outcome.
// All calls are context-bound; failures surface as TransportError so callers
// can tell a flaky network apart from a bad definition.
package execution

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/google/uuid"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
)

// Execution is the observed state of one remote execution.
type Execution struct {
	Arn    string
	Status stepfunctions.ExecutionStatus
	Output string
}

// FailureDetail is the error/cause pair a failed execution reports.
type FailureDetail struct {
	Error string
	Cause string
}

// HistoryEvent is one entry of an execution's event history, in occurrence
// order. Failure is set only for execution-failure events.
type HistoryEvent struct {
	ID      int64
	Type    string
	Failure *FailureDetail
}

// Client is the remote surface the invoke workflow needs. The production
// implementation is SFNClient; tests substitute a fake.
type Client interface {
	GetStateMachineArn(ctx context.Context, name string) (string, error)
	StartExecution(ctx context.Context, stateMachineArn, input string) (string, error)
	DescribeExecution(ctx context.Context, executionArn string) (Execution, error)
	GetExecutionHistory(ctx context.Context, executionArn string) ([]HistoryEvent, error)
}

// SFNClient implements Client against the Step Functions API.
type SFNClient struct {
	api *sfn.Client
}

// NewSFNClient builds a client from the ambient AWS configuration,
// overriding the region when one is given.
func NewSFNClient(ctx context.Context, region string) (*SFNClient, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, &stepfunctions.TransportError{Op: "LoadConfig", Err: err}
	}
	return &SFNClient{api: sfn.NewFromConfig(cfg)}, nil
}

// GetStateMachineArn resolves a deployed state machine's ARN by its exact
// name, paging through the account's machine list.
func (c *SFNClient) GetStateMachineArn(ctx context.Context, name string) (string, error) {
	paginator := sfn.NewListStateMachinesPaginator(c.api, &sfn.ListStateMachinesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", &stepfunctions.TransportError{Op: "ListStateMachines", Err: err}
		}
		for _, machine := range page.StateMachines {
			if aws.ToString(machine.Name) == name {
				return aws.ToString(machine.StateMachineArn), nil
			}
		}
	}
	return "", &stepfunctions.TransportError{
		Op:  "ListStateMachines",
		Err: fmt.Errorf("state machine %q not found", name),
	}
}

// StartExecution starts an execution with a generated unique name and
// returns its ARN.
func (c *SFNClient) StartExecution(ctx context.Context, stateMachineArn, input string) (string, error) {
	if input == "" {
		input = "{}"
	}
	out, err := c.api.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(stateMachineArn),
		Input:           aws.String(input),
		Name:            aws.String(uuid.NewString()),
	})
	if err != nil {
		return "", &stepfunctions.TransportError{Op: "StartExecution", Err: err}
	}
	return aws.ToString(out.ExecutionArn), nil
}

// DescribeExecution reads the current status and output of an execution.
func (c *SFNClient) DescribeExecution(ctx context.Context, executionArn string) (Execution, error) {
	out, err := c.api.DescribeExecution(ctx, &sfn.DescribeExecutionInput{
		ExecutionArn: aws.String(executionArn),
	})
	if err != nil {
		return Execution{}, &stepfunctions.TransportError{Op: "DescribeExecution", Err: err}
	}
	return Execution{
		Arn:    executionArn,
		Status: stepfunctions.ExecutionStatus(out.Status),
		Output: aws.ToString(out.Output),
	}, nil
}

// GetExecutionHistory returns the execution's event history in occurrence
// order, paging through the full list.
func (c *SFNClient) GetExecutionHistory(ctx context.Context, executionArn string) ([]HistoryEvent, error) {
	paginator := sfn.NewGetExecutionHistoryPaginator(c.api, &sfn.GetExecutionHistoryInput{
		ExecutionArn: aws.String(executionArn),
	})

	var events []HistoryEvent
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &stepfunctions.TransportError{Op: "GetExecutionHistory", Err: err}
		}
		for _, raw := range page.Events {
			event := HistoryEvent{
				ID:   raw.Id,
				Type: string(raw.Type),
			}
			if details := raw.ExecutionFailedEventDetails; details != nil {
				event.Failure = &FailureDetail{
					Error: aws.ToString(details.Error),
					Cause: aws.ToString(details.Cause),
				}
			}
			events = append(events, event)
		}
	}
	return events, nil
}
