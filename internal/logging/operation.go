package logging

import (
	"context"

	"github.com/MarkoPoloResearchLab/safari/pkg/safari"
	"go.uber.org/zap"
)

const operationMessage = "safari operation"

// OperationLogger writes safari operation logs as structured zap entries.
type OperationLogger struct {
	logger *zap.Logger
}

// NewOperationLogger wraps logger. A nil logger discards everything.
func NewOperationLogger(logger *zap.Logger) *OperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperationLogger{logger: logger}
}

// LogOperation implements safari.OperationLogger.
func (operationLogger *OperationLogger) LogOperation(ctx context.Context, entry safari.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if value := entry.ReservationID.String(); value != "" {
		fields = append(fields, zap.String("reservation_id", value))
	}
	if entry.Token > 0 {
		fields = append(fields, zap.Int64("token", int64(entry.Token)))
	}
	if !entry.Date.IsZero() {
		fields = append(fields, zap.String("date", entry.Date.String()))
	}
	if value := entry.Slot.String(); value != "" {
		fields = append(fields, zap.String("slot", value))
	}
	if value := entry.RunID.String(); value != "" {
		fields = append(fields, zap.String("run_id", value))
	}
	if entry.Seats != 0 {
		fields = append(fields, zap.Int("seats", entry.Seats))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		operationLogger.logger.Warn(operationMessage, fields...)
		return
	}
	operationLogger.logger.Info(operationMessage, fields...)
}
