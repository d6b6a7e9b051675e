package model

import "fmt"

const (
	// WildcardRoute is the method-settings key covering every resource and method.
	WildcardRoute = "*/*"

	lambdaLogGroupPrefix    = "/aws/lambda/"
	executionLogGroupPrefix = "API-Gateway-Execution-Logs_"
)

// Function is a Lambda function as returned by ListFunctions.
type Function struct {
	Name    string
	Runtime string
}

// Api is a REST API registered in API Gateway.
type Api struct {
	ID   string
	Name string
}

// Resource is a path in a REST API along with its configured HTTP methods.
type Resource struct {
	ID      string
	Path    string
	Methods []string
}

// Integration binds an API method to a backend.
type Integration struct {
	ApiID      string
	ResourceID string
	HTTPMethod string
	Type       string
	URI        string
}

// Stage is a deployed snapshot of a REST API. MethodSettings maps a route
// pattern ("resource/method") to its logging level; an empty level means
// logging is off for that pattern.
type Stage struct {
	ApiID          string
	StageName      string
	MethodSettings map[string]string
}

// LoggingEnabled reports whether execution logging is configured for all routes.
func (s Stage) LoggingEnabled() bool {
	return s.MethodSettings[WildcardRoute] != ""
}

// LogGroupName returns the execution log group API Gateway writes for this stage.
func (s Stage) LogGroupName() string {
	return ExecutionLogGroupName(s.ApiID, s.StageName)
}

// ExecutionLogGroupName returns the execution log group of an API stage.
func ExecutionLogGroupName(apiID, stageName string) string {
	return fmt.Sprintf("%s%s/%s", executionLogGroupPrefix, apiID, stageName)
}

// FunctionLogGroupName returns the log group a Lambda function writes to.
func FunctionLogGroupName(functionName string) string {
	return lambdaLogGroupPrefix + functionName
}
