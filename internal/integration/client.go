package integration

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/apigateway"
)

// ApiLister lists REST APIs.
type ApiLister interface {
	GetRestApis(ctx context.Context, params *apigateway.GetRestApisInput, optFns ...func(*apigateway.Options)) (*apigateway.GetRestApisOutput, error)
}

// ResourceLister lists the resources of a REST API.
type ResourceLister interface {
	GetResources(ctx context.Context, params *apigateway.GetResourcesInput, optFns ...func(*apigateway.Options)) (*apigateway.GetResourcesOutput, error)
}

// IntegrationGetter fetches the integration of a resource method.
type IntegrationGetter interface {
	GetIntegration(ctx context.Context, params *apigateway.GetIntegrationInput, optFns ...func(*apigateway.Options)) (*apigateway.GetIntegrationOutput, error)
}

// StageLister lists the stages of a REST API.
type StageLister interface {
	GetStages(ctx context.Context, params *apigateway.GetStagesInput, optFns ...func(*apigateway.Options)) (*apigateway.GetStagesOutput, error)
}

// GatewayClient is the subset of the API Gateway API the resolver uses.
type GatewayClient interface {
	ApiLister
	ResourceLister
	IntegrationGetter
	StageLister
}
