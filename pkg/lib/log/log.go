// Package log exposes the logger used by the autotask SDK.
//
// The client logs task transitions, gate requests and step dispatches with the
// task, plan and step IDs as [Kv] values. Nothing is logged by default, set
// [lib.Config].Logger to receive them.
//
// An adapter over log/slog only needs the format methods to do real work:
//
//	type slogLogger struct{ kv []any }
//
//	func (l slogLogger) Infof(format string, args ...any) { slog.Info(fmt.Sprintf(format, args...), l.kv...) }
//	func (l slogLogger) WithValues(kv log.Kv) log.Logger {
//		next := slogLogger{kv: slices.Clone(l.kv)}
//		for k, v := range kv {
//			next.kv = append(next.kv, k, v)
//		}
//		return next
//	}
//	// ... Warningf, Errorf, Debugf and the context methods
package log

import "github.com/slok/autotask/internal/log"

// Logger is the logger interface accepted by the SDK.
type Logger = log.Logger

// Kv are the structured values attached to log lines.
type Kv = log.Kv

// Noop discards everything, it's the default of [lib.Config].
var Noop = log.Noop
