package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcelohirota/serverless-step-functions/internal/graphviz"
)

func newGraphCmd() *cobra.Command {
	var (
		configFile       string
		outputFormat     string
		clusterByService bool
		stage            string
		region           string
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Generate DOT graph of compiled resource dependencies",
		Long: `Graph compiles the service and renders the dependency graph of the
resulting template.

The output can be rendered with Graphviz:
    slsf graph -c serverless.yml | dot -Tpng -o deps.png

Or used in GitHub markdown (Mermaid format):
    slsf graph -c serverless.yml -f mermaid

Examples:
    slsf graph -c serverless.yml
    slsf graph -c serverless.yml --cluster
    slsf graph -c serverless.yml -f mermaid`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(configFile, outputFormat, clusterByService, stage, region)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "serverless.yml", "Service configuration file")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "dot", "Output format: dot or mermaid")
	cmd.Flags().BoolVar(&clusterByService, "cluster", false, "Cluster resources by AWS service")
	cmd.Flags().StringVar(&stage, "stage", "", "Override the provider stage")
	cmd.Flags().StringVar(&region, "region", "", "Override the provider region")

	return cmd
}

func runGraph(configFile, format string, cluster bool, stage, region string) error {
	result, err := compileService(configFile, stage, region)
	if err != nil {
		return err
	}

	var graphFormat graphviz.Format
	switch format {
	case "dot":
		graphFormat = graphviz.FormatDOT
	case "mermaid":
		graphFormat = graphviz.FormatMermaid
	default:
		return fmt.Errorf("unknown format: %s (use 'dot' or 'mermaid')", format)
	}

	gen := &graphviz.Generator{
		Format:           graphFormat,
		ClusterByService: cluster,
	}
	return gen.Generate(result.Template, os.Stdout)
}
