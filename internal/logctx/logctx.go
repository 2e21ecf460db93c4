// Package logctx hands out one logrus.Entry per component so every log line
// in the core carries a consistent "component" field, the way the teacher's
// per-package loggers do.
package logctx

import "github.com/sirupsen/logrus"

var base = logrus.StandardLogger()

// For returns a component-scoped logger. Cheap enough to call per-operation;
// logrus.Entry creation does not allocate a new logger instance.
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// SetOutput lets an embedding application redirect core log output; the core
// itself never configures handlers, formatters, or log levels — that is
// ambient host configuration, not core behavior.
func SetOutput(l *logrus.Logger) {
	base.SetOutput(l.Out)
	base.SetFormatter(l.Formatter)
	base.SetLevel(l.GetLevel())
	base.ReplaceHooks(l.Hooks)
}
