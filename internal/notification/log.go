package notification

import "github.com/rs/zerolog"

// LogNotifier writes notifications to the structured log. It is always
// registered so every notification leaves at least one durable trace.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a log-backed notification provider.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger.With().Str("component", "notify_log").Logger(),
	}
}

func (l *LogNotifier) Name() string {
	return "log"
}

func (l *LogNotifier) IsEnabled() bool {
	return true
}

func (l *LogNotifier) Send(notification *Notification) error {
	l.logger.Info().
		Str("type", string(notification.Type)).
		Str("account_id", notification.AccountID).
		Str("amount", notification.Amount.String()).
		Str("title", notification.Title).
		Msg(notification.Message)
	return nil
}
