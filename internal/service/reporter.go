package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Reporter receives job progress. progress.Run implements it.
type Reporter interface {
	Step(ctx context.Context, message string, current, total int)
	Logf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type reporterKey struct{}

// WithReporter attaches a progress reporter to ctx for the job functions called with it
func WithReporter(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, reporterKey{}, r)
}

func reporterFrom(ctx context.Context, fallback *zap.Logger) Reporter {
	if r, ok := ctx.Value(reporterKey{}).(Reporter); ok && r != nil {
		return r
	}
	return logReporter{logger: fallback}
}

// logReporter writes progress to a zap logger when no run is attached
type logReporter struct {
	logger *zap.Logger
}

func (l logReporter) Step(_ context.Context, message string, current, total int) {
	l.logger.Debug(message, zap.Int("current", current), zap.Int("total", total))
}

func (l logReporter) Logf(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l logReporter) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}
