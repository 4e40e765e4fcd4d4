package compiler

import (
	"errors"
	"fmt"
	"strings"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
	"github.com/marcelohirota/serverless-step-functions/internal/config"
	"github.com/marcelohirota/serverless-step-functions/internal/naming"
	"github.com/marcelohirota/serverless-step-functions/intrinsics"
)

var allowedMethods = map[string]bool{
	"get": true, "post": true, "put": true, "delete": true,
	"patch": true, "head": true, "options": true, "any": true,
}

// httpState carries the cross-binding bookkeeping of one HTTP compilation:
// the shared REST API and integration role, the deduplicated path-segment
// resources, and the method list the deployment depends on.
type httpState struct {
	apiID  string
	roleID string

	// pathIDs maps a normalized path prefix to the logical id of its
	// ApiGateway resource, so `/orders/{id}` and `/orders/status` share one
	// `/orders` entry.
	pathIDs map[string]string
	// roleMachines tracks which machines the integration role already
	// covers; later bindings on new machines merge statements in.
	roleMachines map[string]bool
	// corsPaths marks paths that need an OPTIONS mock method.
	corsPaths map[string]bool
	// authorizerIDs dedupes authorizers by function ARN.
	authorizerIDs map[string]string

	methodIDs []string
}

// compileHTTPEvents compiles every http binding into the REST API subgraph.
// A binding that fails validation is skipped and reported; siblings still
// compile. Fatal errors (naming, collisions) abort the run.
func (p *Pipeline) compileHTTPEvents() ([]stepfunctions.Endpoint, []error, error) {
	state := &httpState{
		pathIDs:       make(map[string]string),
		roleMachines:  make(map[string]bool),
		corsPaths:     make(map[string]bool),
		authorizerIDs: make(map[string]string),
	}

	var endpoints []stepfunctions.Endpoint
	var bindingErrs []error

	for _, ev := range p.cfg.EventsOfKind("http") {
		endpoint, err := p.compileHTTPBinding(state, ev)
		if err != nil {
			var defErr *stepfunctions.DefinitionError
			if errors.As(err, &defErr) {
				bindingErrs = append(bindingErrs, err)
				continue
			}
			return nil, bindingErrs, err
		}
		endpoints = append(endpoints, endpoint)
	}

	if len(state.methodIDs) > 0 {
		if err := p.compileCORS(state); err != nil {
			return nil, bindingErrs, err
		}
		deploymentID, err := p.compileDeployment(state)
		if err != nil {
			return nil, bindingErrs, err
		}
		if err := p.compileUsagePlan(state, deploymentID); err != nil {
			return nil, bindingErrs, err
		}
	}

	return endpoints, bindingErrs, nil
}

// compileHTTPBinding compiles one (path, method) binding: validation, the
// shared API and role, path resources, and the method with its
// StartExecution integration.
func (p *Pipeline) compileHTTPBinding(state *httpState, ev config.Event) (stepfunctions.Endpoint, error) {
	http := ev.HTTP
	entity := fmt.Sprintf("%s/events[%d]", ev.StateMachine, ev.Index)

	method := strings.ToLower(http.Method)
	if !allowedMethods[method] {
		return stepfunctions.Endpoint{}, &stepfunctions.DefinitionError{
			Entity: entity,
			Detail: fmt.Sprintf("invalid HTTP method %q", http.Method),
		}
	}
	segments, err := splitPath(http.Path)
	if err != nil {
		return stepfunctions.Endpoint{}, &stepfunctions.DefinitionError{
			Entity: entity,
			Detail: err.Error(),
		}
	}
	if http.Authorizer != nil && http.Authorizer.Arn == "" {
		return stepfunctions.Endpoint{}, &stepfunctions.DefinitionError{
			Entity: entity,
			Detail: "authorizer needs a function arn",
		}
	}

	if err := p.ensureRestApi(state); err != nil {
		return stepfunctions.Endpoint{}, err
	}
	if err := p.ensureApiRole(state, ev.StateMachine); err != nil {
		return stepfunctions.Endpoint{}, err
	}

	parentRef, err := p.compilePathResources(state, segments)
	if err != nil {
		return stepfunctions.Endpoint{}, err
	}

	if err := p.compileMethod(state, ev, method, segments, parentRef); err != nil {
		return stepfunctions.Endpoint{}, err
	}

	if http.CORS {
		state.corsPaths[strings.Join(segments, "/")] = true
	}

	path := "/" + strings.Join(segments, "/")
	return stepfunctions.Endpoint{
		Method: strings.ToUpper(method),
		Path:   path,
		URL: fmt.Sprintf("https://${%s}.execute-api.%s.amazonaws.com/%s%s",
			state.apiID, p.naming.Region, p.naming.Stage, path),
	}, nil
}

// splitPath normalizes a binding path into its segments, rejecting reserved
// characters. `{param}` segments are allowed.
func splitPath(path string) ([]string, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, nil
	}
	segments := strings.Split(trimmed, "/")
	for _, segment := range segments {
		inner := segment
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			inner = segment[1 : len(segment)-1]
		}
		if inner == "" {
			return nil, fmt.Errorf("empty path segment in %q", path)
		}
		for _, r := range inner {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			case r == '-' || r == '_' || r == '.':
			default:
				return nil, fmt.Errorf("reserved character %q in path %q", r, path)
			}
		}
	}
	return segments, nil
}

func (p *Pipeline) ensureRestApi(state *httpState) error {
	if state.apiID != "" {
		return nil
	}
	apiID, err := p.naming.ResolveService(naming.KindRestApi, naming.NoIndex)
	if err != nil {
		return err
	}
	_, err = p.putShared(apiID, stepfunctions.ResourceDef{
		Type: "AWS::ApiGateway::RestApi",
		Properties: map[string]any{
			"Name": p.naming.Service + "-" + p.naming.Stage,
		},
	})
	if err != nil {
		return err
	}
	state.apiID = apiID
	return nil
}

// ensureApiRole creates the API→states integration role on first use and
// widens it with a StartExecution statement for each additional machine.
func (p *Pipeline) ensureApiRole(state *httpState, machine string) error {
	machineID, err := p.naming.Resolve(machine, naming.KindStateMachine, naming.NoIndex)
	if err != nil {
		return err
	}
	statement := intrinsics.PolicyStatement{
		Effect:   "Allow",
		Action:   "states:StartExecution",
		Resource: intrinsics.Ref{Name: machineID},
	}

	if state.roleID == "" {
		roleID, err := p.naming.ResolveService(naming.KindApiRole, naming.NoIndex)
		if err != nil {
			return err
		}
		_, err = p.putShared(roleID, stepfunctions.ResourceDef{
			Type: "AWS::IAM::Role",
			Properties: map[string]any{
				"AssumeRolePolicyDocument": intrinsics.AssumeRolePolicy("apigateway.amazonaws.com"),
				"Policies": []any{
					map[string]any{
						"PolicyName": p.naming.Service + "-" + p.naming.Stage + "-apigateway",
						"PolicyDocument": map[string]any{
							"Version":   "2012-10-17",
							"Statement": []any{statement},
						},
					},
				},
			},
		})
		if err != nil {
			return err
		}
		state.roleID = roleID
		state.roleMachines[machine] = true
		return nil
	}

	if state.roleMachines[machine] {
		return nil
	}
	normalized, err := normalizeAny(statement)
	if err != nil {
		return err
	}
	if err := p.acc.MergeStatements(state.roleID, normalized); err != nil {
		return err
	}
	state.roleMachines[machine] = true
	return nil
}

// compilePathResources walks the path segments, creating one ApiGateway
// resource per previously unseen prefix and reusing existing ones. Returns
// the reference to use as the method's ResourceId.
func (p *Pipeline) compilePathResources(state *httpState, segments []string) (any, error) {
	parent := any(intrinsics.GetAtt{Resource: state.apiID, Attribute: "RootResourceId"})

	for i := range segments {
		prefix := strings.Join(segments[:i+1], "/")
		resourceID, ok := state.pathIDs[prefix]
		if !ok {
			var err error
			resourceID, err = p.pathResourceID(segments[:i+1])
			if err != nil {
				return nil, err
			}
			if _, err := p.putShared(resourceID, stepfunctions.ResourceDef{
				Type: "AWS::ApiGateway::Resource",
				Properties: map[string]any{
					"RestApiId": intrinsics.Ref{Name: state.apiID},
					"ParentId":  parent,
					"PathPart":  segments[i],
				},
			}); err != nil {
				return nil, err
			}
			state.pathIDs[prefix] = resourceID
		}
		parent = intrinsics.Ref{Name: resourceID}
	}
	return parent, nil
}

// pathResourceID derives the logical id of a path prefix, e.g.
// ["orders", "{id}"] -> CheckoutApiGatewayResourceOrdersIdVar.
func (p *Pipeline) pathResourceID(segments []string) (string, error) {
	base, err := p.naming.ResolveService(naming.KindApiResource, naming.NoIndex)
	if err != nil {
		return "", err
	}
	suffix, err := pathSuffix(segments)
	if err != nil {
		return "", err
	}
	return base + suffix, nil
}

// pathSuffix converts path segments to an identifier fragment. Parameter
// segments get a Var suffix so /orders/{id} and /orders/id stay distinct.
func pathSuffix(segments []string) (string, error) {
	var b strings.Builder
	for _, segment := range segments {
		isParam := strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}")
		if isParam {
			segment = segment[1 : len(segment)-1]
		}
		part, err := naming.LogicalID(strings.ReplaceAll(segment, ".", "-"))
		if err != nil {
			return "", err
		}
		b.WriteString(part)
		if isParam {
			b.WriteString("Var")
		}
	}
	return b.String(), nil
}

// compileMethod emits the method resource with its state-machine
// integration, plus the optional validator and authorizer attachments.
func (p *Pipeline) compileMethod(state *httpState, ev config.Event, method string, segments []string, resourceRef any) error {
	machineID, err := p.naming.Resolve(ev.StateMachine, naming.KindStateMachine, naming.NoIndex)
	if err != nil {
		return err
	}
	suffix, err := pathSuffix(segments)
	if err != nil {
		return err
	}
	base, err := p.naming.ResolveService(naming.KindApiMethod, naming.NoIndex)
	if err != nil {
		return err
	}
	verb := strings.ToUpper(method[:1]) + method[1:]
	methodID := base + suffix + verb

	action := ev.HTTP.Action
	if action == "" {
		action = "StartExecution"
	}

	var requestTemplate any = map[string]any{
		"Fn::Sub": []any{
			`{"input": "$util.escapeJavaScript($input.json('$'))", "stateMachineArn": "${arn}"}`,
			map[string]any{"arn": intrinsics.Ref{Name: machineID}},
		},
	}
	if ev.HTTP.Request != nil {
		if custom, ok := ev.HTTP.Request.Template["application/json"]; ok {
			requestTemplate = custom
		}
	}

	props := map[string]any{
		"RestApiId":         intrinsics.Ref{Name: state.apiID},
		"ResourceId":        resourceRef,
		"HttpMethod":        strings.ToUpper(method),
		"AuthorizationType": "NONE",
		"ApiKeyRequired":    ev.HTTP.Private,
		"Integration": map[string]any{
			"Type":                  "AWS",
			"IntegrationHttpMethod": "POST",
			"Credentials":           intrinsics.GetAtt{Resource: state.roleID, Attribute: "Arn"},
			"Uri": intrinsics.Join{Separator: "", Values: []any{
				"arn:", intrinsics.AWS_PARTITION, ":apigateway:",
				intrinsics.AWS_REGION, ":states:action/" + action,
			}},
			"RequestTemplates": map[string]any{
				"application/json": requestTemplate,
			},
			"IntegrationResponses": []any{
				map[string]any{"StatusCode": "200"},
			},
		},
		"MethodResponses": []any{
			map[string]any{"StatusCode": "200"},
		},
	}

	dependsOn := []string{machineID, state.roleID}

	if ev.HTTP.Authorizer != nil {
		authorizerID, err := p.compileAuthorizer(state, ev.HTTP.Authorizer)
		if err != nil {
			return err
		}
		props["AuthorizationType"] = "CUSTOM"
		props["AuthorizerId"] = intrinsics.Ref{Name: authorizerID}
		dependsOn = append(dependsOn, authorizerID)
	}

	if ev.HTTP.Request != nil && len(ev.HTTP.Request.Schemas) > 0 {
		validatorID, err := p.compileRequestValidator(state, suffix+verb)
		if err != nil {
			return err
		}
		props["RequestValidatorId"] = intrinsics.Ref{Name: validatorID}
		dependsOn = append(dependsOn, validatorID)
	}

	if err := p.put(methodID, stepfunctions.ResourceDef{
		Type:       "AWS::ApiGateway::Method",
		Properties: props,
		DependsOn:  dependsOn,
	}); err != nil {
		return err
	}
	state.methodIDs = append(state.methodIDs, methodID)
	return nil
}
