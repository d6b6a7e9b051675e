// Package client builds the AWS service clients used by a tailing session.
package client

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
)

// AuthOptions selects the region and credentials. Empty fields fall back to
// the SDK default resolution chain.
type AuthOptions struct {
	Region  string
	Profile string
}

// Clients holds one client per service the session talks to.
type Clients struct {
	Logs    *cloudwatchlogs.Client
	Lambda  *lambda.Client
	Gateway *apigateway.Client
}

// NewConfigOptions translates AuthOptions and the environment into SDK
// config load options. A profile (flag, then AWS_PROFILE) takes precedence
// over static keys from AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY.
//
// SDK retries are disabled: throttled calls must surface to the dispatcher,
// which owns the retry policy and the concurrency slots.
func NewConfigOptions(o AuthOptions) []func(*config.LoadOptions) error {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if o.Region != "" {
		opts = append(opts, config.WithRegion(o.Region))
	}
	profile := o.Profile
	if profile == "" {
		profile = os.Getenv("AWS_PROFILE")
	}
	if profile != "" {
		return append(opts, config.WithSharedConfigProfile(profile))
	}
	key, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
	if key != "" && secret != "" {
		provider := credentials.NewStaticCredentialsProvider(key, secret, os.Getenv("AWS_SESSION_TOKEN"))
		opts = append(opts, config.WithCredentialsProvider(provider))
	}
	return opts
}

// New loads the AWS configuration and creates the service clients.
func New(ctx context.Context, o AuthOptions) (*Clients, error) {
	cfg, err := config.LoadDefaultConfig(ctx, NewConfigOptions(o)...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &Clients{
		Logs:    cloudwatchlogs.NewFromConfig(cfg),
		Lambda:  lambda.NewFromConfig(cfg),
		Gateway: apigateway.NewFromConfig(cfg),
	}, nil
}
