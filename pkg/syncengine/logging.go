package syncengine

import (
	"context"

	"go.uber.org/zap"
)

// OperationLogger receives callbacks for engine operations so hosts can sink
// them into their own logging stack.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes one engine operation outcome.
type OperationLog struct {
	Operation string
	Resource  string
	BookingID string
	Action    BookingAction
	Attempt   int
	Status    string
	Error     error
}

const (
	operationStatusOK    = "ok"
	operationStatusError = "error"
)

// zapOperationLogger adapts a zap logger to the OperationLogger callback.
type zapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger wires engine operation logs into zap.
func NewZapOperationLogger(logger *zap.Logger) OperationLogger {
	return &zapOperationLogger{logger: logger}
}

// LogOperation writes one operation outcome.
func (adapter *zapOperationLogger) LogOperation(_ context.Context, entry OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if entry.Resource != "" {
		fields = append(fields, zap.String("resource", entry.Resource))
	}
	if entry.BookingID != "" {
		fields = append(fields, zap.String("booking_id", entry.BookingID))
	}
	if entry.Action != "" {
		fields = append(fields, zap.String("action", string(entry.Action)))
	}
	if entry.Attempt > 0 {
		fields = append(fields, zap.Int("attempt", entry.Attempt))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("engine operation failed", fields...)
		return
	}
	adapter.logger.Info("engine operation", fields...)
}
