package execution

import (
	"context"
	"time"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
)

// InvokeResult is the outcome of one synchronous invocation: the terminal
// status, the execution output, and the last failure detail when the
// execution failed.
type InvokeResult struct {
	ExecutionArn string
	Status       stepfunctions.ExecutionStatus
	Output       string
	Failure      *FailureDetail
}

// Failed reports whether the remote execution finished FAILED. Other
// terminal statuses (ABORTED, TIMED_OUT) are not failures for exit-code
// purposes.
func (r *InvokeResult) Failed() bool {
	return r.Status == stepfunctions.StatusFailed
}

// InvokeOptions tune the polling loop.
type InvokeOptions struct {
	// PollInterval is the delay between status checks. Zero means one
	// second.
	PollInterval time.Duration
}

func (o InvokeOptions) interval() time.Duration {
	if o.PollInterval <= 0 {
		return time.Second
	}
	return o.PollInterval
}

// Invoke resolves a state machine by name, starts an execution with the
// given input, and polls until the execution reaches a terminal status. For
// a FAILED execution the event history is fetched and the last failure
// detail attached to the result. The context bounds the whole workflow;
// cancellation mid-poll returns the context error.
func Invoke(ctx context.Context, client Client, name, input string, opts InvokeOptions) (*InvokeResult, error) {
	arn, err := client.GetStateMachineArn(ctx, name)
	if err != nil {
		return nil, err
	}

	executionArn, err := client.StartExecution(ctx, arn, input)
	if err != nil {
		return nil, err
	}

	execution, err := pollUntilTerminal(ctx, client, executionArn, opts.interval())
	if err != nil {
		return nil, err
	}

	result := &InvokeResult{
		ExecutionArn: executionArn,
		Status:       execution.Status,
		Output:       execution.Output,
	}

	if execution.Status == stepfunctions.StatusFailed {
		events, err := client.GetExecutionHistory(ctx, executionArn)
		if err != nil {
			return nil, err
		}
		result.Failure = lastFailure(events)
	}
	return result, nil
}

func pollUntilTerminal(ctx context.Context, client Client, executionArn string, interval time.Duration) (Execution, error) {
	for {
		execution, err := client.DescribeExecution(ctx, executionArn)
		if err != nil {
			return Execution{}, err
		}
		if execution.Status.Terminal() {
			return execution, nil
		}
		select {
		case <-ctx.Done():
			return Execution{}, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// lastFailure returns the failure detail of the latest failure event, nil
// when the history carries none.
func lastFailure(events []HistoryEvent) *FailureDetail {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Failure != nil {
			return events[i].Failure
		}
	}
	return nil
}
