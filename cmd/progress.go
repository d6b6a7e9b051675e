package cmd

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Nao-Mk2/aws-lambda-tail/internal/dispatch"
)

// ProgressMiddleware reports every top-level AWS call with its duration.
// Polling reads are too frequent to report and are skipped.
func ProgressMiddleware(logger *zap.Logger) dispatch.Middleware {
	return dispatch.MiddlewareFunc(func(req dispatch.Request, next dispatch.Handler) dispatch.Handler {
		if req.Operation == "GetLogEvents" {
			return next
		}
		return func(ctx context.Context) error {
			start := time.Now()
			err := next(ctx)
			took := zap.Duration("took", time.Since(start).Round(time.Millisecond))
			if err != nil {
				logger.Info(req.String(), took, zap.Error(err))
				return err
			}
			logger.Info(req.String(), took)
			return nil
		}
	})
}
