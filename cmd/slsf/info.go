package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newInfoCmd() *cobra.Command {
	var (
		configFile   string
		outputFormat string
		stage        string
		region       string
	)

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show the service's HTTP endpoints",
		Long: `Info compiles the service and prints one line per HTTP trigger:

    POST - https://<api-id>.execute-api.us-east-1.amazonaws.com/dev/orders

Examples:
    slsf info -c serverless.yml
    slsf info -c serverless.yml --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(configFile, outputFormat, stage, region)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "serverless.yml", "Service configuration file")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().StringVar(&stage, "stage", "", "Override the provider stage")
	cmd.Flags().StringVar(&region, "region", "", "Override the provider region")

	return cmd
}

func runInfo(configFile, format, stage, region string) error {
	result, err := compileService(configFile, stage, region)
	if err != nil {
		return err
	}

	switch format {
	case "text":
		if len(result.Endpoints) == 0 {
			fmt.Println("no HTTP endpoints")
			return nil
		}
		fmt.Println("endpoints:")
		for _, endpoint := range result.Endpoints {
			fmt.Printf("  %s\n", endpoint.Display())
		}
		return nil
	case "json":
		data, err := json.MarshalIndent(buildResultOf(result), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}
