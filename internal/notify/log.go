package notify

import (
	"context"

	"github.com/MarkoPoloResearchLab/safari/pkg/safari"
	"go.uber.org/zap"
)

// LogNotifier writes archived reservations to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a notifier that only logs.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// NotifyArchived implements safari.ArchiveNotifier.
func (notifier *LogNotifier) NotifyArchived(ctx context.Context, record safari.ArchivedReservation) {
	notifier.logger.Info("reservation archived",
		zap.String("reservation_id", record.ReservationID.String()),
		zap.Int64("token", int64(record.Token)),
		zap.String("date", record.Date.String()),
		zap.String("slot", record.Slot.String()),
		zap.Int("seats", record.Party.Total()),
		zap.String("reason", record.Reason),
	)
}

// Fanout delivers every record to each notifier in order.
type Fanout []safari.ArchiveNotifier

// NotifyArchived implements safari.ArchiveNotifier.
func (fanout Fanout) NotifyArchived(ctx context.Context, record safari.ArchivedReservation) {
	for _, notifier := range fanout {
		if notifier != nil {
			notifier.NotifyArchived(ctx, record)
		}
	}
}
