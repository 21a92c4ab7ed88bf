// Package notify carries user-facing status messages out of the capture
// core. The host overlay owns presentation; the core only emits strings.
package notify

import "log/slog"

// Notifier receives user-facing status messages (started/saved/failed).
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

// Func adapts two functions to the Notifier interface.
type Func struct {
	OnInfo  func(msg string)
	OnError func(msg string)
}

func (f Func) Info(msg string) {
	if f.OnInfo != nil {
		f.OnInfo(msg)
	}
}

func (f Func) Error(msg string) {
	if f.OnError != nil {
		f.OnError(msg)
	}
}

type slogNotifier struct{}

func (slogNotifier) Info(msg string)  { slog.Info(msg) }
func (slogNotifier) Error(msg string) { slog.Error(msg) }

// Default returns a notifier that logs through slog, for hosts that do not
// install their own sink.
func Default() Notifier {
	return slogNotifier{}
}
