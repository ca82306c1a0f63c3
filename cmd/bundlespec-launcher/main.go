package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"

	"github.com/xyproto/env/v2"

	"github.com/provide-io/bundlespec/internal/launcher"
	"github.com/provide-io/bundlespec/internal/workenv"
	"github.com/provide-io/bundlespec/pkg/logging"
)

const (
	logLevelEnv = "BUNDLESPEC_LAUNCHER_LOG_LEVEL"
	logPathEnv  = "BUNDLESPEC_LAUNCHER_LOG_PATH"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n", r)
			debug.PrintStack()
			os.Exit(launcher.ExitPanic)
		}
	}()
	os.Exit(run())
}

func run() int {
	level := env.Str(logLevelEnv, env.Str("BUNDLESPEC_LOG_LEVEL"))
	prefix := "🚀 "
	if runtime.GOOS == "windows" {
		prefix = "[launcher] "
	}
	logger := logging.New(logging.Options{
		Name:    "bundlespec-launcher",
		Level:   level,
		LogPath: env.Str(logPathEnv),
		Prefix:  prefix,
	})

	exePath, err := os.Executable()
	if err != nil {
		logger.Error("❌ Failed to locate executable", "error", err)
		return launcher.ExitIOError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	code, err := launcher.Run(ctx, exePath, os.Args[1:], launcher.Options{
		Logger:       logger,
		CacheRoot:    workenv.CacheRoot(),
		LevelFromEnv: level != "",
	})
	if err != nil {
		logger.Error("❌ Launch failed", "error", err)
		var lerr *launcher.Error
		if errors.As(err, &lerr) {
			return lerr.Code
		}
		return launcher.ExitExecutionError
	}
	return code
}
