// Package telemetry reports command failures to Sentry.
package telemetry

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/hpungsan/arag/internal/errors"
	"github.com/hpungsan/arag/internal/logger"
)

const serviceName = "arag"

// Config holds the configuration for Sentry initialization.
type Config struct {
	DSN         string
	Environment string
	Release     string
	Debug       bool
}

// Init initializes Sentry and returns a function that flushes pending events.
// If DSN is empty, reporting stays disabled and the returned function is a no-op.
func Init(cfg Config) (func(), error) {
	if cfg.DSN == "" {
		return func() {}, nil
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		Debug:       cfg.Debug,
		ServerName:  serviceName,
	})
	if err != nil {
		logger.Warn("sentry: failed to initialize (continuing without reporting): %v", err)
		return func() {}, nil
	}

	logger.Debug("sentry: reporting enabled (environment: %s)", cfg.Environment)
	return func() { sentry.Flush(2 * time.Second) }, nil
}

// ShouldReport reports whether err is worth sending. Expected user-facing
// outcomes such as missing prerequisites or existing destinations are not.
func ShouldReport(err error) bool {
	if err == nil {
		return false
	}
	aErr, ok := errors.As(err)
	if !ok {
		return true
	}
	switch aErr.Code {
	case errors.ErrInternal, errors.ErrShortRead, errors.ErrIndexingAborted,
		errors.ErrProvider:
		return true
	}
	return false
}

// CaptureError sends err with the command name as a tag. It is a no-op when
// Sentry is not initialized or ShouldReport is false.
func CaptureError(command string, err error) {
	if !ShouldReport(err) {
		return
	}
	hub := sentry.CurrentHub()
	if hub.Client() == nil {
		return
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("command", command)
		if aErr, ok := errors.As(err); ok {
			scope.SetTag("code", string(aErr.Code))
			scope.SetContext("details", sentry.Context(aErr.Details))
		}
		hub.CaptureException(err)
	})
}
