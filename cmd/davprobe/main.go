package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env"

	"github.com/davprobe/davprobe/internal/harness"
	"github.com/davprobe/davprobe/internal/httpclient"
)

type environmentVariables struct {
	TargetURL   string        `env:"DAVPROBE_TARGET,required"`
	HomePath    string        `env:"DAVPROBE_HOME" envDefault:"/calendars/probe/"`
	Username    string        `env:"DAVPROBE_USERNAME"`
	Password    string        `env:"DAVPROBE_PASSWORD"`
	DigestAuth  bool          `env:"DAVPROBE_DIGEST_AUTH"`
	BearerToken string        `env:"DAVPROBE_BEARER_TOKEN"`
	InsecureTLS bool          `env:"DAVPROBE_INSECURE_TLS"`
	Timeout     time.Duration `env:"DAVPROBE_TIMEOUT" envDefault:"30s"`
	RetryMax    int           `env:"DAVPROBE_RETRY_MAX" envDefault:"2"`
	Only        []string      `env:"DAVPROBE_ONLY" envSeparator:","`
	Output      string        `env:"DAVPROBE_OUTPUT" envDefault:"human"`
	Verbose     bool          `env:"DAVPROBE_VERBOSE"`
}

func setup() (*environmentVariables, error) {
	envVars := &environmentVariables{}
	if err := env.Parse(envVars); err != nil {
		return nil, fmt.Errorf("error parsing environment variables %w", err)
	}
	if envVars.Output != "human" && envVars.Output != "json" {
		return nil, fmt.Errorf("DAVPROBE_OUTPUT must be human or json, got %q", envVars.Output)
	}
	return envVars, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func run() int {
	envVars, err := setup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return harness.ExitHarnessError
	}

	logger := newLogger(envVars.Verbose)
	logger.Info("starting up", "target", envVars.TargetURL)

	baseURL, err := url.Parse(envVars.TargetURL)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		logger.Error("invalid target URL", "target", envVars.TargetURL, "error", err)
		return harness.ExitHarnessError
	}

	client, err := httpclient.NewWrapper(httpclient.Config{
		BaseURL:     *baseURL,
		Username:    envVars.Username,
		Password:    envVars.Password,
		DigestAuth:  envVars.DigestAuth,
		BearerToken: envVars.BearerToken,
		InsecureTLS: envVars.InsecureTLS,
		Timeout:     envVars.Timeout,
		RetryMax:    envVars.RetryMax,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("building client failed", "error", err)
		return harness.ExitHarnessError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := harness.NewRunner(client, harness.Options{
		Target:   envVars.TargetURL,
		HomePath: envVars.HomePath,
		Only:     envVars.Only,
		Logger:   logger,
	})
	report := runner.Run(ctx)

	switch envVars.Output {
	case "json":
		err = report.WriteJSON(os.Stdout)
	default:
		err = report.WriteHuman(os.Stdout)
	}
	if err != nil {
		logger.Error("writing report failed", "error", err)
		return harness.ExitHarnessError
	}
	return report.ExitCode()
}

func main() {
	os.Exit(run())
}
