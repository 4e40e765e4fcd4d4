// Package graphviz renders the dependency graph of a compiled template in
// DOT or Mermaid format.
package graphviz

import (
	"io"
	"sort"
	"strings"

	"github.com/emicklei/dot"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
	"github.com/marcelohirota/serverless-step-functions/internal/template"
)

// Format specifies the output format for the graph.
type Format string

const (
	// FormatDOT outputs Graphviz DOT format.
	FormatDOT Format = "dot"
	// FormatMermaid outputs Mermaid format for GitHub/markdown rendering.
	FormatMermaid Format = "mermaid"
)

// Generator renders dependency graphs from a compiled template.
type Generator struct {
	// Format specifies the output format (dot or mermaid). Defaults to dot.
	Format Format

	// ClusterByService groups resources by AWS service.
	ClusterByService bool
}

// Generate renders the template's dependency graph to w. Edges run from a
// resource to everything it depends on: explicit DependsOn entries plus Ref
// and GetAtt references found in its properties. GetAtt edges render blue in
// DOT output.
func (g *Generator) Generate(tpl *stepfunctions.Template, w io.Writer) error {
	graph := g.buildGraph(tpl)

	format := g.Format
	if format == "" {
		format = FormatDOT
	}

	var output string
	if format == FormatMermaid {
		output = dot.MermaidGraph(graph, dot.MermaidTopToBottom)
	} else {
		output = graph.String()
	}

	_, err := w.Write([]byte(output))
	return err
}

// GenerateString is a convenience method that returns the graph as a string.
func (g *Generator) GenerateString(tpl *stepfunctions.Template) (string, error) {
	var sb strings.Builder
	if err := g.Generate(tpl, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (g *Generator) buildGraph(tpl *stepfunctions.Template) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "TB")

	graph.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
		n.Attr("fontname", "Arial")
	})
	graph.EdgeInitializer(func(e dot.Edge) {
		e.Attr("fontname", "Arial")
		e.Attr("fontsize", "10")
	})

	ids := template.SortedIDs(tpl)

	if g.ClusterByService {
		g.addClusteredNodes(graph, tpl, ids)
	} else {
		for _, id := range ids {
			graph.Node(id).Label(id + "\\n[" + tpl.Resources[id].Type + "]")
		}
	}

	for _, id := range ids {
		def := tpl.Resources[id]
		refs, getAtts := propertyReferences(def.Properties)

		deps := make(map[string]bool)
		for _, dep := range def.DependsOn {
			deps[dep] = true
		}
		for dep := range refs {
			deps[dep] = true
		}
		for dep := range getAtts {
			deps[dep] = true
		}

		sorted := make([]string, 0, len(deps))
		for dep := range deps {
			sorted = append(sorted, dep)
		}
		sort.Strings(sorted)

		for _, dep := range sorted {
			if _, exists := tpl.Resources[dep]; !exists {
				continue
			}
			e := graph.Edge(graph.Node(id), graph.Node(dep))
			if getAtts[dep] {
				e.Attr("color", "blue")
			}
		}
	}

	return graph
}

// addClusteredNodes groups resources by AWS service, clustering only the
// services with more than one resource.
func (g *Generator) addClusteredNodes(graph *dot.Graph, tpl *stepfunctions.Template, ids []string) {
	serviceIDs := make(map[string][]string)
	for _, id := range ids {
		service := extractService(tpl.Resources[id].Type)
		serviceIDs[service] = append(serviceIDs[service], id)
	}

	services := make([]string, 0, len(serviceIDs))
	for service := range serviceIDs {
		services = append(services, service)
	}
	sort.Strings(services)

	for _, service := range services {
		members := serviceIDs[service]
		if len(members) > 1 {
			cluster := graph.Subgraph("cluster_"+service, dot.ClusterOption{})
			cluster.Attr("label", service)
			cluster.Attr("style", "rounded")
			cluster.Attr("bgcolor", "lightyellow")
			for _, id := range members {
				cluster.Node(id).Label(id + "\\n[" + tpl.Resources[id].Type + "]")
			}
			continue
		}
		for _, id := range members {
			graph.Node(id).Label(id + "\\n[" + tpl.Resources[id].Type + "]")
		}
	}
}

// extractService extracts the service segment of a resource type.
// e.g., "AWS::ApiGateway::Method" -> "ApiGateway".
func extractService(resourceType string) string {
	parts := strings.Split(resourceType, "::")
	if len(parts) == 3 {
		return parts[1]
	}
	return "Other"
}

// propertyReferences walks a normalized property tree and collects the
// logical ids referenced by Ref and Fn::GetAtt intrinsics.
func propertyReferences(props map[string]any) (refs, getAtts map[string]bool) {
	refs = make(map[string]bool)
	getAtts = make(map[string]bool)

	var walk func(v any)
	walk = func(v any) {
		switch node := v.(type) {
		case map[string]any:
			if len(node) == 1 {
				if target, ok := node["Ref"].(string); ok {
					if !strings.HasPrefix(target, "AWS::") {
						refs[target] = true
					}
					return
				}
				if att, ok := node["Fn::GetAtt"].([]any); ok && len(att) == 2 {
					if target, ok := att[0].(string); ok {
						getAtts[target] = true
					}
					return
				}
			}
			for _, child := range node {
				walk(child)
			}
		case []any:
			for _, child := range node {
				walk(child)
			}
		}
	}
	walk(props)
	return refs, getAtts
}
