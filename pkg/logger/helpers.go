package logger

import (
	"context"

	"github.com/rs/zerolog"
)

// LogRequest logs the outcome of a single HTTP exchange
func LogRequest(method, url string, statusCode int, durationMs float64) {
	fields := Fields{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": durationMs,
	}

	switch {
	case statusCode >= 500:
		GetLogger().WarnWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		GetLogger().WarnWithFields("HTTP request client error", fields)
	default:
		GetLogger().DebugWithFields("HTTP request completed", fields)
	}
}

// LogAcquire logs one acquisition outcome
func LogAcquire(entity, url, kind, outcome string, err error) {
	l := GetLogger().WithFields(Fields{
		"entity":  entity,
		"url":     url,
		"kind":    kind,
		"outcome": outcome,
	})

	switch {
	case err != nil:
		l.WithError(err).Error("Acquisition failed")
	case outcome == "skipped":
		l.Debug("Acquisition skipped")
	default:
		l.Info("Acquisition completed")
	}
}

// LogRateLimit logs a 429 backoff
func LogRateLimit(url string, delayMs int64) {
	GetLogger().WarnWithFields("Rate limit reached, backing off", Fields{
		"url":      url,
		"delay_ms": delayMs,
		"action":   "rate_limited",
	})
}

// LogPageProgress logs pagination progress
func LogPageProgress(entity string, page, total, found int) {
	GetLogger().InfoWithFields("Page processed", Fields{
		"entity": entity,
		"page":   page,
		"total":  total,
		"found":  found,
	})
}

// LogComponentStart logs when a component starts
func LogComponentStart(component string, config map[string]interface{}) {
	l := GetLogger().WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(component string, reason string) {
	GetLogger().InfoWithFields("Component stopped", Fields{
		"component": component,
		"reason":    reason,
	})
}

// NewNopLogger creates a logger that discards everything
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(string)                                   {}
func (n *nopLogger) Info(string)                                    {}
func (n *nopLogger) Warn(string)                                    {}
func (n *nopLogger) Error(string)                                   {}
func (n *nopLogger) WithField(string, interface{}) Logger           { return n }
func (n *nopLogger) WithFields(map[string]interface{}) Logger       { return n }
func (n *nopLogger) WithError(error) Logger                         { return n }
func (n *nopLogger) WithContext(context.Context) Logger             { return n }
func (n *nopLogger) DebugWithFields(string, map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(string, map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(string, map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(string, map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
