// Package integration finds the API Gateway stages that invoke a Lambda
// function and have execution logging turned on.
package integration

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/apigateway/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Nao-Mk2/aws-lambda-tail/internal/dispatch"
	"github.com/Nao-Mk2/aws-lambda-tail/internal/model"
)

const (
	gatewayService = "apigateway"
	pageLimit      = 500
	loggingOff     = "OFF"
)

var lambdaInvocationURI = regexp.MustCompile(`(?i)^arn:aws[a-z-]*:apigateway:[a-z0-9-]*:lambda:path/[a-z0-9-]+/functions/arn:aws[a-z-]*:lambda:[a-z0-9-]*:[a-z0-9]+:function:[^/]+/invocations$`)

// InvokesFunction reports whether uri is a Lambda invocation URI containing
// functionName. Containment is a plain substring match, so a function whose
// name is contained in another's matches both.
func InvokesFunction(uri, functionName string) bool {
	return functionName != "" && lambdaInvocationURI.MatchString(uri) && strings.Contains(uri, functionName)
}

// Resolver walks API Gateway through the dispatcher.
type Resolver struct {
	client     GatewayClient
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
}

// NewResolver creates a Resolver. logger may be nil.
func NewResolver(client GatewayClient, d *dispatch.Dispatcher, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{client: client, dispatcher: d, logger: logger}
}

// FindIntegrationLogGroups returns the execution log groups of every stage
// that serves an integration invoking functionName with logging enabled for
// all routes. Names are sorted and unique.
func (r *Resolver) FindIntegrationLogGroups(ctx context.Context, functionName string) ([]string, error) {
	stages, err := r.FindLoggingStages(ctx, functionName)
	if err != nil {
		return nil, err
	}
	groups := make([]string, 0, len(stages))
	for _, s := range stages {
		groups = append(groups, s.LogGroupName())
	}
	slices.Sort(groups)
	return slices.Compact(groups), nil
}

// FindLoggingStages returns the stages of APIs integrating functionName whose
// wildcard route has a logging level. Each API's stages are fetched once.
func (r *Resolver) FindLoggingStages(ctx context.Context, functionName string) ([]model.Stage, error) {
	integrations, err := r.FindIntegrations(ctx, functionName)
	if err != nil {
		return nil, err
	}

	var apiIDs []string
	for _, in := range integrations {
		if !slices.Contains(apiIDs, in.ApiID) {
			apiIDs = append(apiIDs, in.ApiID)
		}
	}

	var (
		g      errgroup.Group
		mu     sync.Mutex
		stages []model.Stage
	)
	for _, apiID := range apiIDs {
		g.Go(func() error {
			all, err := r.ListStages(ctx, apiID)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, s := range all {
				if !s.LoggingEnabled() {
					r.logger.Debug("stage has no execution logging",
						zap.String("api", apiID), zap.String("stage", s.StageName))
					continue
				}
				stages = append(stages, s)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.SortFunc(stages, func(a, b model.Stage) int {
		return cmp.Or(cmp.Compare(a.ApiID, b.ApiID), cmp.Compare(a.StageName, b.StageName))
	})
	return stages, nil
}

// FindIntegrations returns every method integration that invokes functionName.
func (r *Resolver) FindIntegrations(ctx context.Context, functionName string) ([]model.Integration, error) {
	apis, err := r.ListApis(ctx)
	if err != nil {
		return nil, err
	}

	var (
		g     errgroup.Group
		mu    sync.Mutex
		found []model.Integration
	)
	for _, api := range apis {
		g.Go(func() error {
			resources, err := r.ListResources(ctx, api.ID)
			if err != nil {
				return err
			}
			for _, res := range resources {
				for _, method := range res.Methods {
					g.Go(func() error {
						in, ok, err := r.GetIntegration(ctx, api.ID, res.ID, method)
						if err != nil || !ok || !InvokesFunction(in.URI, functionName) {
							return err
						}
						r.logger.Info("found function integration",
							zap.String("api", api.Name),
							zap.String("path", res.Path),
							zap.String("method", method),
						)
						mu.Lock()
						found = append(found, in)
						mu.Unlock()
						return nil
					})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.SortFunc(found, func(a, b model.Integration) int {
		return cmp.Or(
			cmp.Compare(a.ApiID, b.ApiID),
			cmp.Compare(a.ResourceID, b.ResourceID),
			cmp.Compare(a.HTTPMethod, b.HTTPMethod),
		)
	})
	return found, nil
}

// ListApis returns every REST API, following position tokens.
func (r *Resolver) ListApis(ctx context.Context) ([]model.Api, error) {
	var (
		apis     []model.Api
		position *string
	)
	for {
		in := &apigateway.GetRestApisInput{Limit: aws.Int32(pageLimit), Position: position}
		out, err := dispatch.Do(ctx, r.dispatcher,
			dispatch.Request{Service: gatewayService, Operation: "GetRestApis", Input: in},
			func(ctx context.Context) (*apigateway.GetRestApisOutput, error) {
				return r.client.GetRestApis(ctx, in)
			}, followUp(position)...)
		if err != nil {
			return nil, fmt.Errorf("get rest apis: %w", err)
		}
		for _, item := range out.Items {
			apis = append(apis, model.Api{ID: aws.ToString(item.Id), Name: aws.ToString(item.Name)})
		}
		if aws.ToString(out.Position) == "" || len(out.Items) == 0 {
			return apis, nil
		}
		position = out.Position
	}
}

// ListResources returns every resource of an API with its HTTP methods sorted.
func (r *Resolver) ListResources(ctx context.Context, apiID string) ([]model.Resource, error) {
	var (
		resources []model.Resource
		position  *string
	)
	for {
		in := &apigateway.GetResourcesInput{RestApiId: aws.String(apiID), Limit: aws.Int32(pageLimit), Position: position}
		out, err := dispatch.Do(ctx, r.dispatcher,
			dispatch.Request{Service: gatewayService, Operation: "GetResources", Input: in},
			func(ctx context.Context) (*apigateway.GetResourcesOutput, error) {
				return r.client.GetResources(ctx, in)
			}, followUp(position)...)
		if err != nil {
			return nil, fmt.Errorf("get resources of %s: %w", apiID, err)
		}
		for _, item := range out.Items {
			res := model.Resource{ID: aws.ToString(item.Id), Path: aws.ToString(item.Path)}
			for method := range item.ResourceMethods {
				res.Methods = append(res.Methods, method)
			}
			slices.Sort(res.Methods)
			resources = append(resources, res)
		}
		if aws.ToString(out.Position) == "" || len(out.Items) == 0 {
			return resources, nil
		}
		position = out.Position
	}
}

// GetIntegration fetches the integration of a method. ok is false when the
// method has no integration.
func (r *Resolver) GetIntegration(ctx context.Context, apiID, resourceID, httpMethod string) (model.Integration, bool, error) {
	in := &apigateway.GetIntegrationInput{
		RestApiId:  aws.String(apiID),
		ResourceId: aws.String(resourceID),
		HttpMethod: aws.String(httpMethod),
	}
	out, err := dispatch.Do(ctx, r.dispatcher,
		dispatch.Request{Service: gatewayService, Operation: "GetIntegration", Input: in},
		func(ctx context.Context) (*apigateway.GetIntegrationOutput, error) {
			return r.client.GetIntegration(ctx, in)
		})
	if err != nil {
		var notFound *types.NotFoundException
		if errors.As(err, &notFound) {
			return model.Integration{}, false, nil
		}
		return model.Integration{}, false, fmt.Errorf("get integration %s %s of %s: %w", httpMethod, resourceID, apiID, err)
	}
	return model.Integration{
		ApiID:      apiID,
		ResourceID: resourceID,
		HTTPMethod: httpMethod,
		Type:       string(out.Type),
		URI:        aws.ToString(out.Uri),
	}, true, nil
}

// ListStages returns the stages of an API.
func (r *Resolver) ListStages(ctx context.Context, apiID string) ([]model.Stage, error) {
	in := &apigateway.GetStagesInput{RestApiId: aws.String(apiID)}
	out, err := dispatch.Do(ctx, r.dispatcher,
		dispatch.Request{Service: gatewayService, Operation: "GetStages", Input: in},
		func(ctx context.Context) (*apigateway.GetStagesOutput, error) {
			return r.client.GetStages(ctx, in)
		})
	if err != nil {
		return nil, fmt.Errorf("get stages of %s: %w", apiID, err)
	}
	stages := make([]model.Stage, 0, len(out.Item))
	for _, item := range out.Item {
		s := model.Stage{
			ApiID:          apiID,
			StageName:      aws.ToString(item.StageName),
			MethodSettings: make(map[string]string, len(item.MethodSettings)),
		}
		for route, setting := range item.MethodSettings {
			if level := aws.ToString(setting.LoggingLevel); level != "" && !strings.EqualFold(level, loggingOff) {
				s.MethodSettings[route] = level
			}
		}
		stages = append(stages, s)
	}
	return stages, nil
}

// followUp marks pagination calls after the first page as untraced.
func followUp(position *string) []dispatch.CallOption {
	if position == nil {
		return nil
	}
	return []dispatch.CallOption{dispatch.Untraced()}
}
