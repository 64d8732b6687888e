// pkg/logger/logger.go
package logger

import (
	"go.uber.org/zap"
)

// New builds the process logger: sampled JSON in prod, human-readable
// console output everywhere else. A logger that cannot be constructed
// degrades to a no-op rather than taking the process down.
func New(env string) *zap.SugaredLogger {
	build := zap.NewDevelopment
	if env == "prod" {
		build = zap.NewProduction
	}
	z, err := build()
	if err != nil {
		z = zap.NewNop()
	}
	return z.Sugar()
}
