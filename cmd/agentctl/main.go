// Command agentctl is the operator CLI: it runs the deterministic analysis
// stages locally, dispatches structured commands against the configured tool
// server and manages API clients.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	logger := mustBuildLogger()
	defer logger.Sync() //nolint:errcheck // best-effort flush

	if err := newRootCmd(&app{logger: logger}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// mustBuildLogger logs warnings and above to stderr so stdout stays clean for
// command output.
func mustBuildLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
