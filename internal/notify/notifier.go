// Package notify delivers best-effort outbound notifications about
// schedule executions. Delivery failures are reported to the caller but
// are expected to be logged and dropped, never retried.
package notify

import "github.com/rs/zerolog"

type Notifier interface {
	Send(subject, body string) error
}

// LogNotifier writes notifications to the process log. It is the default
// when no outbound channel is configured.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(subject, body string) error {
	n.log.Info().Str("subject", subject).Str("body", body).Msg("notification")
	return nil
}
