package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithRequest returns a logger carrying the fields of one chat request.
func WithRequest(requestID, userID, intent string) *slog.Logger {
	return slog.With(
		"request_id", requestID,
		"user_id", userID,
		"intent", intent,
	)
}

// WithChannel returns a logger scoped to a relayed channel message.
func WithChannel(logger *slog.Logger, channel, sender string) *slog.Logger {
	return logger.With(
		"channel", channel,
		"sender", sender,
	)
}
