package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
	"github.com/marcelohirota/serverless-step-functions/internal/compiler"
	"github.com/marcelohirota/serverless-step-functions/internal/config"
	"github.com/marcelohirota/serverless-step-functions/internal/template"
)

func newBuildCmd() *cobra.Command {
	var (
		configFile   string
		outputFormat string
		outputFile   string
		stage        string
		region       string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile the service configuration to a CloudFormation template",
		Long: `Build compiles the declared state machines, triggers, and alarms into a
CloudFormation template.

Examples:
    slsf build -c serverless.yml
    slsf build -c serverless.yml -o template.json
    slsf build -c serverless.yml --format yaml --stage prod`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(configFile, outputFormat, outputFile, stage, region)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "serverless.yml", "Service configuration file")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format: json or yaml")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&stage, "stage", "", "Override the provider stage")
	cmd.Flags().StringVar(&region, "region", "", "Override the provider region")

	return cmd
}

func runBuild(configFile, format, outputFile, stage, region string) error {
	result, err := compileService(configFile, stage, region)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return fmt.Errorf("build failed")
	}

	for _, bindingErr := range result.BindingErrors {
		fmt.Fprintln(os.Stderr, bindingErr)
	}

	var data []byte
	switch format {
	case "json":
		data, err = template.ToJSON(result.Template)
	case "yaml":
		data, err = template.ToYAML(result.Template)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	if err != nil {
		return err
	}

	if outputFile == "" {
		fmt.Println(string(data))
	} else {
		if err := os.WriteFile(outputFile, data, 0644); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s (%d resources)\n", outputFile, len(result.Template.Resources))
	}

	for _, endpoint := range result.Endpoints {
		fmt.Fprintln(os.Stderr, endpoint.Display())
	}

	if len(result.BindingErrors) > 0 {
		return fmt.Errorf("build completed with %d binding error(s)", len(result.BindingErrors))
	}
	return nil
}

// compileService loads the configuration, applies CLI overrides, and runs
// one compilation.
func compileService(configFile, stage, region string) (*compiler.Result, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if stage != "" {
		cfg.Provider.Stage = stage
	}
	if region != "" {
		cfg.Provider.Region = region
	}
	return compiler.New(cfg, compiler.WithWarnings(os.Stderr)).Compile()
}

// buildResultOf wraps a compilation outcome for JSON consumers.
func buildResultOf(result *compiler.Result) stepfunctions.BuildResult {
	out := stepfunctions.BuildResult{
		Success:   len(result.BindingErrors) == 0,
		Template:  result.Template,
		Endpoints: result.Endpoints,
	}
	out.Resources = template.SortedIDs(result.Template)
	for _, err := range result.BindingErrors {
		out.Errors = append(out.Errors, err.Error())
	}
	return out
}
