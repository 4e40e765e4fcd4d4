package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
	"github.com/marcelohirota/serverless-step-functions/internal/config"
	"github.com/marcelohirota/serverless-step-functions/internal/execution"
)

func newInvokeCmd() *cobra.Command {
	var (
		configFile string
		name       string
		data       string
		dataPath   string
		stage      string
		region     string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "invoke",
		Short: "Run a deployed state machine and wait for the result",
		Long: `Invoke starts an execution of a deployed state machine, waits for it to
finish, and prints its output. A failed execution prints the last failure
detail from the execution history and exits non-zero.

Examples:
    slsf invoke --name OrderFlow
    slsf invoke --name OrderFlow --data '{"orderId": 1}'
    slsf invoke --name OrderFlow --path input.json --stage prod`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runInvoke(configFile, name, data, dataPath, stage, region, timeout)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "serverless.yml", "Service configuration file")
	cmd.Flags().StringVarP(&name, "name", "n", "", "State machine name (as declared under stateMachines)")
	cmd.Flags().StringVarP(&data, "data", "d", "", "Execution input as a JSON string")
	cmd.Flags().StringVarP(&dataPath, "path", "p", "", "Execution input read from a JSON file")
	cmd.Flags().StringVar(&stage, "stage", "", "Override the provider stage")
	cmd.Flags().StringVar(&region, "region", "", "Override the provider region")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Minute, "Give up waiting after this long")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func runInvoke(configFile, name, data, dataPath, stage, region string, timeout time.Duration) error {
	if data != "" && dataPath != "" {
		return fmt.Errorf("--data and --path are mutually exclusive")
	}

	input := data
	if dataPath != "" {
		raw, err := os.ReadFile(dataPath)
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		input = string(raw)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if stage != "" {
		cfg.Provider.Stage = stage
	}
	if region != "" {
		cfg.Provider.Region = region
	}
	if _, ok := cfg.StateMachines[name]; !ok {
		return fmt.Errorf("state machine %q is not declared in %s", name, configFile)
	}

	// The deployed name is service-and-stage qualified.
	physical := cfg.Service + "-" + cfg.Provider.Stage + "-" + name

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := execution.NewSFNClient(ctx, cfg.Provider.Region)
	if err != nil {
		return err
	}

	result, err := execution.Invoke(ctx, client, physical, input, execution.InvokeOptions{})
	if err != nil {
		return err
	}

	fmt.Printf("execution: %s\n", result.ExecutionArn)
	fmt.Printf("status: %s\n", result.Status)
	if result.Output != "" {
		fmt.Printf("output: %s\n", result.Output)
	}

	if result.Status == stepfunctions.StatusFailed && result.Failure != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", result.Failure.Error)
		fmt.Fprintf(os.Stderr, "cause: %s\n", result.Failure.Cause)
	}
	if result.Failed() {
		os.Exit(1)
	}
	return nil
}
