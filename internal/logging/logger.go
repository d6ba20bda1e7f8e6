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

// WithAgent returns a logger with (userId, agentId) fields attached. Use
// this for all logging within a batch or lifecycle run scoped to one agent.
func WithAgent(userID, agentID string) *slog.Logger {
	return slog.With(
		"user_id", userID,
		"agent_id", agentID,
	)
}

// WithBatch returns a logger scoped to a specific batch within an agent run.
func WithBatch(logger *slog.Logger, batchID string) *slog.Logger {
	return logger.With("batch_id", batchID)
}
