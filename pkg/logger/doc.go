// Package logger provides the structured logging interface used across
// mediagrab.
//
// It wraps zerolog. The global logger is configured once from
// config.LoggingConfig:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	logger.WithField("entity", slug).Info("run started")
//
// Components usually take a Logger in their constructor and fall back to
// GetLogger when none is given. Tests use NewNopLogger or NewTestLogger,
// which captures lines for assertions.
package logger
