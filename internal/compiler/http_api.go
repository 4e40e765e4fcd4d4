package compiler

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	stepfunctions "github.com/marcelohirota/serverless-step-functions"
	"github.com/marcelohirota/serverless-step-functions/internal/config"
	"github.com/marcelohirota/serverless-step-functions/internal/naming"
	"github.com/marcelohirota/serverless-step-functions/intrinsics"
)

// compileAuthorizer emits a custom authorizer (and the permission letting
// API Gateway invoke its function) once per distinct function ARN.
func (p *Pipeline) compileAuthorizer(state *httpState, auth *config.Authorizer) (string, error) {
	if existing, ok := state.authorizerIDs[auth.Arn]; ok {
		return existing, nil
	}

	name := auth.Name
	if name == "" {
		// Last ARN segment names the authorizer: .../function:check-auth.
		parts := strings.Split(auth.Arn, ":")
		name = parts[len(parts)-1]
	}
	nameID, err := naming.LogicalID(name)
	if err != nil {
		return "", err
	}
	base, err := p.naming.ResolveService(naming.KindAuthorizer, naming.NoIndex)
	if err != nil {
		return "", err
	}
	authorizerID := base + nameID

	authType := "TOKEN"
	if strings.EqualFold(auth.Type, "request") {
		authType = "REQUEST"
	}
	identitySource := auth.IdentitySource
	if identitySource == "" {
		identitySource = "method.request.header.Authorization"
	}

	props := map[string]any{
		"Name":           name,
		"RestApiId":      intrinsics.Ref{Name: state.apiID},
		"Type":           authType,
		"IdentitySource": identitySource,
		"AuthorizerUri": intrinsics.Sub{String: fmt.Sprintf(
			"arn:aws:apigateway:${AWS::Region}:lambda:path/2015-03-31/functions/%s/invocations",
			auth.Arn)},
	}
	if auth.ResultTTLSeconds > 0 {
		props["AuthorizerResultTtlInSeconds"] = auth.ResultTTLSeconds
	}

	if err := p.put(authorizerID, stepfunctions.ResourceDef{
		Type:       "AWS::ApiGateway::Authorizer",
		Properties: props,
	}); err != nil {
		return "", err
	}

	permissionBase, err := p.naming.ResolveService(naming.KindApiPermission, naming.NoIndex)
	if err != nil {
		return "", err
	}
	err = p.put(permissionBase+nameID, stepfunctions.ResourceDef{
		Type: "AWS::Lambda::Permission",
		Properties: map[string]any{
			"FunctionName": auth.Arn,
			"Action":       "lambda:InvokeFunction",
			"Principal":    "apigateway.amazonaws.com",
		},
		DependsOn: []string{authorizerID},
	})
	if err != nil {
		return "", err
	}

	state.authorizerIDs[auth.Arn] = authorizerID
	return authorizerID, nil
}

// compileRequestValidator attaches a body validator to one method. key is
// the path+verb fragment that makes the method's identifier unique.
func (p *Pipeline) compileRequestValidator(state *httpState, key string) (string, error) {
	base, err := p.naming.ResolveService(naming.KindRequestValidator, naming.NoIndex)
	if err != nil {
		return "", err
	}
	validatorID := base + key

	err = p.put(validatorID, stepfunctions.ResourceDef{
		Type: "AWS::ApiGateway::RequestValidator",
		Properties: map[string]any{
			"RestApiId":                 intrinsics.Ref{Name: state.apiID},
			"ValidateRequestBody":       true,
			"ValidateRequestParameters": false,
		},
	})
	return validatorID, err
}

// compileCORS injects an OPTIONS mock method for every path a binding
// marked, answering preflight with permissive headers.
func (p *Pipeline) compileCORS(state *httpState) error {
	paths := make([]string, 0, len(state.corsPaths))
	for path := range state.corsPaths {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		segments := strings.Split(path, "/")
		if path == "" {
			segments = nil
		}
		suffix, err := pathSuffix(segments)
		if err != nil {
			return err
		}
		base, err := p.naming.ResolveService(naming.KindApiMethod, naming.NoIndex)
		if err != nil {
			return err
		}
		methodID := base + suffix + "Options"

		var resourceRef any = intrinsics.GetAtt{Resource: state.apiID, Attribute: "RootResourceId"}
		if resourceID, ok := state.pathIDs[path]; ok {
			resourceRef = intrinsics.Ref{Name: resourceID}
		}

		corsHeaders := map[string]any{
			"method.response.header.Access-Control-Allow-Origin":  "'*'",
			"method.response.header.Access-Control-Allow-Headers": "'Content-Type,Authorization,X-Api-Key'",
			"method.response.header.Access-Control-Allow-Methods": "'OPTIONS,GET,POST,PUT,DELETE,PATCH'",
		}
		responseParams := map[string]any{
			"method.response.header.Access-Control-Allow-Origin":  true,
			"method.response.header.Access-Control-Allow-Headers": true,
			"method.response.header.Access-Control-Allow-Methods": true,
		}

		err = p.put(methodID, stepfunctions.ResourceDef{
			Type: "AWS::ApiGateway::Method",
			Properties: map[string]any{
				"RestApiId":         intrinsics.Ref{Name: state.apiID},
				"ResourceId":        resourceRef,
				"HttpMethod":        "OPTIONS",
				"AuthorizationType": "NONE",
				"Integration": map[string]any{
					"Type": "MOCK",
					"RequestTemplates": map[string]any{
						"application/json": `{"statusCode": 200}`,
					},
					"IntegrationResponses": []any{
						map[string]any{
							"StatusCode":         "200",
							"ResponseParameters": corsHeaders,
						},
					},
				},
				"MethodResponses": []any{
					map[string]any{
						"StatusCode":         "200",
						"ResponseParameters": responseParams,
					},
				},
			},
		})
		if err != nil {
			return err
		}
		state.methodIDs = append(state.methodIDs, methodID)
	}
	return nil
}

// compileDeployment finalizes the API: one deployment depending on every
// compiled method so API Gateway only deploys a complete surface.
func (p *Pipeline) compileDeployment(state *httpState) (string, error) {
	deploymentID, err := p.naming.ResolveService(naming.KindDeployment, naming.NoIndex)
	if err != nil {
		return "", err
	}

	dependsOn := append([]string(nil), state.methodIDs...)
	sort.Strings(dependsOn)

	err = p.put(deploymentID, stepfunctions.ResourceDef{
		Type: "AWS::ApiGateway::Deployment",
		Properties: map[string]any{
			"RestApiId": intrinsics.Ref{Name: state.apiID},
			"StageName": p.naming.Stage,
		},
		DependsOn: dependsOn,
	})
	return deploymentID, err
}

// compileUsagePlan emits API keys and the usage plan wiring when the
// provider declares them.
func (p *Pipeline) compileUsagePlan(state *httpState, deploymentID string) error {
	provider := p.cfg.Provider
	if len(provider.APIKeys) == 0 && provider.UsagePlan == nil {
		return nil
	}

	var keyIDs []string
	for i, keyName := range provider.APIKeys {
		keyID, err := p.naming.ResolveService(naming.KindApiKey, i)
		if err != nil {
			return err
		}
		err = p.put(keyID, stepfunctions.ResourceDef{
			Type: "AWS::ApiGateway::ApiKey",
			Properties: map[string]any{
				"Name":    keyName,
				"Enabled": true,
				"StageKeys": []any{
					map[string]any{
						"RestApiId": intrinsics.Ref{Name: state.apiID},
						"StageName": p.naming.Stage,
					},
				},
			},
			DependsOn: []string{deploymentID},
		})
		if err != nil {
			return err
		}
		keyIDs = append(keyIDs, keyID)
	}

	planID, err := p.naming.ResolveService(naming.KindUsagePlan, naming.NoIndex)
	if err != nil {
		return err
	}
	planProps := map[string]any{
		"UsagePlanName": p.naming.Service + "-" + p.naming.Stage,
		"ApiStages": []any{
			map[string]any{
				"ApiId": intrinsics.Ref{Name: state.apiID},
				"Stage": p.naming.Stage,
			},
		},
	}
	if provider.UsagePlan != nil {
		if throttle := provider.UsagePlan.Throttle; throttle != nil {
			planProps["Throttle"] = map[string]any{
				"BurstLimit": throttle.BurstLimit,
				"RateLimit":  throttle.RateLimit,
			}
		}
		if quota := provider.UsagePlan.Quota; quota != nil {
			quotaProps := map[string]any{
				"Limit":  quota.Limit,
				"Period": quota.Period,
			}
			if quota.Offset > 0 {
				quotaProps["Offset"] = quota.Offset
			}
			planProps["Quota"] = quotaProps
		}
	}
	err = p.put(planID, stepfunctions.ResourceDef{
		Type:       "AWS::ApiGateway::UsagePlan",
		Properties: planProps,
		DependsOn:  []string{deploymentID},
	})
	if err != nil {
		return err
	}

	for i, keyID := range keyIDs {
		planKeyID, err := p.naming.ResolveService(naming.KindUsagePlanKey, i)
		if err != nil {
			return err
		}
		err = p.put(planKeyID, stepfunctions.ResourceDef{
			Type: "AWS::ApiGateway::UsagePlanKey",
			Properties: map[string]any{
				"KeyId":       intrinsics.Ref{Name: keyID},
				"KeyType":     "API_KEY",
				"UsagePlanId": intrinsics.Ref{Name: planID},
			},
			DependsOn: []string{keyID, planID},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// normalizeAny flattens an intrinsic-bearing value into plain maps, the
// same way resource properties are normalized before insertion.
func normalizeAny(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
