// Package observability provides structured logging, metrics, and
// distributed tracing for workflow execution.
//
// Logging uses slog; metrics and tracing use OpenTelemetry. Everything
// is opt-in with no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds workflow context to a logger.
// Returns a new logger with thread_id and node_id fields.
func EnrichLogger(logger *slog.Logger, threadID, nodeID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("thread_id", threadID),
		slog.String("node_id", nodeID),
	)
}

// LogRunStart logs the start of a workflow run.
func LogRunStart(logger *slog.Logger, graph, threadID string) {
	if logger == nil {
		return
	}
	logger.Info("workflow run starting",
		slog.String("graph", graph),
		slog.String("thread_id", threadID),
	)
}

// LogRunComplete logs successful run completion.
func LogRunComplete(logger *slog.Logger, threadID string, durationMs float64, steps int) {
	if logger == nil {
		return
	}
	logger.Info("workflow run completed",
		slog.String("thread_id", threadID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps", steps),
	)
}

// LogRunError logs run failure.
func LogRunError(logger *slog.Logger, threadID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("workflow run failed",
		slog.String("thread_id", threadID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID, nodeType string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
		slog.String("node_type", nodeType),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogInterrupt logs a run suspending on an interrupt node.
func LogInterrupt(logger *slog.Logger, threadID, nodeID, resumeKey string) {
	if logger == nil {
		return
	}
	logger.Info("workflow interrupted",
		slog.String("thread_id", threadID),
		slog.String("node_id", nodeID),
		slog.String("resume_key", resumeKey),
	)
}

// LogResume logs a run resuming from a checkpoint.
func LogResume(logger *slog.Logger, threadID, nextNode string) {
	if logger == nil {
		return
	}
	logger.Info("workflow resumed",
		slog.String("thread_id", threadID),
		slog.String("next_node", nextNode),
	)
}

// LogMapTruncated warns that a fan-out source exceeded its cap.
func LogMapTruncated(logger *slog.Logger, nodeID string, sourceLen, maxItems int) {
	if logger == nil {
		return
	}
	logger.Warn("map source truncated",
		slog.String("node_id", nodeID),
		slog.Int("source_len", sourceLen),
		slog.Int("max_items", maxItems),
	)
}

// LogLoopLimit warns that a node hit its loop limit and its cyclic edge
// was skipped.
func LogLoopLimit(logger *slog.Logger, nodeID string, limit int) {
	if logger == nil {
		return
	}
	logger.Warn("loop limit reached",
		slog.String("node_id", nodeID),
		slog.Int("limit", limit),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, threadID string, sizeBytes int) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("thread_id", threadID),
		slog.Int("size_bytes", sizeBytes),
	)
}

// LogCheckpointError logs checkpoint failure.
func LogCheckpointError(logger *slog.Logger, threadID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("thread_id", threadID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
