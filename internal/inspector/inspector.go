// Package inspector is the entry point of a tailing session: it lists Lambda
// functions and tails a function's logs, optionally together with the
// execution logs of the API Gateway stages that invoke it.
package inspector

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"go.uber.org/zap"

	"github.com/Nao-Mk2/aws-lambda-tail/internal/dispatch"
	"github.com/Nao-Mk2/aws-lambda-tail/internal/integration"
	"github.com/Nao-Mk2/aws-lambda-tail/internal/model"
	"github.com/Nao-Mk2/aws-lambda-tail/internal/tail"
)

// FunctionLister is the subset of the Lambda API we use.
type FunctionLister interface {
	ListFunctions(ctx context.Context, params *lambda.ListFunctionsInput, optFns ...func(*lambda.Options)) (*lambda.ListFunctionsOutput, error)
}

// Clients groups the provider clients of a session.
type Clients struct {
	Functions FunctionLister
	Logs      tail.LogsClient
	Gateway   integration.GatewayClient
}

// Inspector tails CloudWatch Logs for Lambda functions. Every remote call of
// the session goes through one dispatcher.
type Inspector struct {
	functions  FunctionLister
	dispatcher *dispatch.Dispatcher
	tails      *tail.Service
	resolver   *integration.Resolver
	logger     *zap.Logger
}

// New creates an Inspector.
func New(c Clients, d *dispatch.Dispatcher, opts tail.Options) *Inspector {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inspector{
		functions:  c.Functions,
		dispatcher: d,
		tails:      tail.NewService(c.Logs, d, opts),
		resolver:   integration.NewResolver(c.Gateway, d, logger),
		logger:     logger,
	}
}

// ListFunctions returns every Lambda function of the account and region.
func (in *Inspector) ListFunctions(ctx context.Context) ([]model.Function, error) {
	var (
		functions []model.Function
		marker    *string
	)
	for {
		input := &lambda.ListFunctionsInput{Marker: marker}
		var opts []dispatch.CallOption
		if marker != nil {
			opts = append(opts, dispatch.Untraced())
		}
		out, err := dispatch.Do(ctx, in.dispatcher,
			dispatch.Request{Service: "lambda", Operation: "ListFunctions", Input: input},
			func(ctx context.Context) (*lambda.ListFunctionsOutput, error) {
				return in.functions.ListFunctions(ctx, input)
			}, opts...)
		if err != nil {
			return nil, fmt.Errorf("list functions: %w", err)
		}
		for _, f := range out.Functions {
			functions = append(functions, model.Function{
				Name:    aws.ToString(f.FunctionName),
				Runtime: string(f.Runtime),
			})
		}
		if aws.ToString(out.NextMarker) == "" {
			return functions, nil
		}
		marker = out.NextMarker
	}
}

// Tail tails an explicit log group.
func (in *Inspector) Tail(ctx context.Context, logGroup string) tail.Feed {
	return in.tails.TailLogGroup(ctx, logGroup)
}

// TailFunction tails the log group of a Lambda function. With
// includeIntegrations it also tails the execution logs of every API Gateway
// stage that invokes the function; those are resolved while the function tail
// is already running. The feed fails if the resolution fails.
func (in *Inspector) TailFunction(ctx context.Context, functionName string, includeIntegrations bool) tail.Feed {
	functionFeed := in.tails.TailLogGroup(ctx, model.FunctionLogGroupName(functionName))
	if !includeIntegrations {
		return functionFeed
	}

	stagesFeed := tail.Defer(ctx, func(ctx context.Context) ([]tail.Feed, error) {
		groups, err := in.resolver.FindIntegrationLogGroups(ctx, functionName)
		if err != nil {
			return nil, err
		}
		in.logger.Info("tailing integration log groups",
			zap.String("function", functionName),
			zap.Strings("groups", groups),
		)
		feeds := make([]tail.Feed, 0, len(groups))
		for _, g := range groups {
			feeds = append(feeds, in.tails.TailLogGroup(ctx, g))
		}
		return feeds, nil
	})
	return tail.Merge(ctx, functionFeed, stagesFeed)
}
