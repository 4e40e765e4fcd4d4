// Command slsf compiles declarative state-machine services into
// CloudFormation templates.
//
// Usage:
//
//	slsf build -c serverless.yml     Compile the service to a template
//	slsf info -c serverless.yml      Show the service's HTTP endpoints
//	slsf invoke --name OrderFlow     Run a deployed state machine
//	slsf version                     Show version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "slsf",
		Short: "Compile state-machine services to CloudFormation",
		Long: `slsf compiles declarative state-machine services into CloudFormation templates.

Declare state machines, triggers, and alarms in YAML:

    service: checkout
    stateMachines:
      OrderFlow:
        definition:
          StartAt: Reserve
          States: ...
        events:
          - http:
              path: orders
              method: post

Then compile the template:

    slsf build -c serverless.yml`,
	}

	rootCmd.AddCommand(
		newBuildCmd(),
		newInfoCmd(),
		newInvokeCmd(),
		newGraphCmd(),
		newWatchCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("slsf %s\n", getVersion())
		},
	}
}
