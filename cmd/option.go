package cmd

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/Nao-Mk2/aws-lambda-tail/internal/config"
	"github.com/Nao-Mk2/aws-lambda-tail/internal/model"
)

// ConfigEnv names the environment variable holding a default config file path.
const ConfigEnv = "LAMBDA_TAIL_CONFIG"

// Options holds CLI options after parsing flags.
type Options struct {
	ConfigPath      string
	Region          string
	Profile         string
	Match           string
	Function        string
	Integrations    bool
	LogGroup        string
	Concurrency     int
	TopN            int
	IdleTimeout     time.Duration
	PollingInterval time.Duration
	RetryTimeout    time.Duration
	MaxRetries      int
	Raw             bool
	JSON            bool
	Query           string
	LogLevel        string
}

// Bind registers the flags on fs, with the built-in config as defaults.
func (o *Options) Bind(fs *pflag.FlagSet) {
	def := config.Default()
	fs.StringVar(&o.ConfigPath, "config", os.Getenv(ConfigEnv), "YAML config file (or set "+ConfigEnv+")")
	fs.StringVarP(&o.Region, "region", "r", "", "AWS region (or set AWS_REGION; falls back to AWS defaults)")
	fs.StringVarP(&o.Profile, "profile", "p", "", "AWS shared config profile (or set AWS_PROFILE)")
	fs.StringVarP(&o.Match, "match", "m", "", "Case-insensitive substring selecting the Lambda function")
	fs.StringVarP(&o.Function, "function", "f", "", "Exact Lambda function name to tail")
	fs.BoolVar(&o.Integrations, "integrations", false, "Also tail API Gateway stages integrating the function")
	fs.StringVarP(&o.LogGroup, "log-group", "g", "", "Tail this CloudWatch Logs group instead of a function")
	fs.IntVar(&o.Concurrency, "concurrency", def.Concurrency, "Maximum concurrent AWS API calls")
	fs.IntVarP(&o.TopN, "top-n", "n", def.TopN, "Number of most recently active log streams to tail per group")
	fs.DurationVarP(&o.IdleTimeout, "timeout", "t", time.Duration(def.IdleTimeout), "Stop after this long without new events (0 = never)")
	fs.DurationVarP(&o.PollingInterval, "polling-interval", "i", time.Duration(def.PollingInterval), "Log stream polling interval")
	fs.DurationVar(&o.RetryTimeout, "retry-timeout", time.Duration(def.RetryTimeout), "Delay before retrying a throttled AWS API call")
	fs.IntVar(&o.MaxRetries, "max-retries", def.MaxRetries, "Retries of a throttled call before failing (0 = unlimited)")
	fs.BoolVar(&o.Raw, "raw", false, "Print messages only, without timestamps or status lines")
	fs.BoolVar(&o.JSON, "json", false, "Print one JSON object per event")
	fs.StringVar(&o.Query, "query", "", "JMESPath applied to each JSON message; events yielding nothing are skipped")
	fs.StringVar(&o.LogLevel, "log-level", def.LogLevel, "Diagnostic log level: debug, info, warn, error")
}

// Validate checks relationships between flags.
// Returns an error message and exit code; code 0 means valid.
func (o *Options) Validate() (string, int) {
	if o.LogGroup != "" && (o.Integrations || o.Match != "" || o.Function != "") {
		return "error: --log-group cannot be combined with --function, --match or --integrations", 2
	}
	if o.Raw && o.JSON {
		return "error: --raw and --json are mutually exclusive", 2
	}
	return "", 0
}

// Resolve merges the config file, the environment and explicitly set flags,
// in increasing order of precedence, and validates the result.
func (o *Options) Resolve(fs *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Region = v
	}
	if v := ResolveProfile(""); v != "" {
		cfg.Profile = v
	}

	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("region", func() { cfg.Region = o.Region })
	set("profile", func() { cfg.Profile = o.Profile })
	set("concurrency", func() { cfg.Concurrency = o.Concurrency })
	set("top-n", func() { cfg.TopN = o.TopN })
	set("timeout", func() { cfg.IdleTimeout = config.Duration(o.IdleTimeout) })
	set("polling-interval", func() { cfg.PollingInterval = config.Duration(o.PollingInterval) })
	set("retry-timeout", func() { cfg.RetryTimeout = config.Duration(o.RetryTimeout) })
	set("max-retries", func() { cfg.MaxRetries = o.MaxRetries })
	set("log-level", func() { cfg.LogLevel = o.LogLevel })

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}

// ResolveProfile returns the profile from flag or AWS_PROFILE env, or empty.
func ResolveProfile(flagProfile string) string {
	if flagProfile != "" {
		return flagProfile
	}
	return os.Getenv("AWS_PROFILE")
}

var (
	// ErrNoFunctions means no function matched the selection.
	ErrNoFunctions = errors.New("no Lambda functions found")
	// ErrFunctionNotFound means the explicitly named function does not exist.
	ErrFunctionNotFound = errors.New("missing Lambda function")
)

// AmbiguousError lists the functions matching a selection that needs narrowing.
type AmbiguousError struct {
	Names []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%d Lambda functions match; choose one with --function:\n  %s",
		len(e.Names), strings.Join(e.Names, "\n  "))
}

// FilterFunctions keeps the functions whose name contains match, ignoring case.
func FilterFunctions(functions []model.Function, match string) []model.Function {
	if match == "" {
		return functions
	}
	needle := strings.ToLower(match)
	var out []model.Function
	for _, f := range functions {
		if strings.Contains(strings.ToLower(f.Name), needle) {
			out = append(out, f)
		}
	}
	return out
}

// SelectFunction picks the function to tail: the explicit name if it exists,
// otherwise the single function matching match.
func SelectFunction(functions []model.Function, match, explicit string) (string, error) {
	if explicit != "" {
		if slices.ContainsFunc(functions, func(f model.Function) bool { return f.Name == explicit }) {
			return explicit, nil
		}
		return "", fmt.Errorf("%w %s", ErrFunctionNotFound, explicit)
	}
	candidates := FilterFunctions(functions, match)
	switch len(candidates) {
	case 0:
		return "", ErrNoFunctions
	case 1:
		return candidates[0].Name, nil
	}
	names := make([]string, 0, len(candidates))
	for _, f := range candidates {
		names = append(names, f.Name)
	}
	slices.Sort(names)
	return "", &AmbiguousError{Names: names}
}
