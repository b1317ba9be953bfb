package safari

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing operation.
type OperationLog struct {
	Operation     string
	ReservationID ReservationID
	Token         Token
	Date          SafariDate
	Slot          TimeSlot
	RunID         RunID
	Seats         int
	Status        string
	Error         error
}

// ArchiveNotifier receives snapshots of reservations that left the ledger
// (expired or cancelled). Implementations must not block.
type ArchiveNotifier interface {
	NotifyArchived(ctx context.Context, record ArchivedReservation)
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithArchiveNotifier wires the sink for archived reservations.
func WithArchiveNotifier(notifier ArchiveNotifier) ServiceOption {
	return func(service *Service) {
		service.notifier = notifier
	}
}

// WithDateLocker replaces the in-process per-date lock.
func WithDateLocker(locker DateLocker) ServiceOption {
	return func(service *Service) {
		service.locker = locker
	}
}

// WithIDGenerator overrides how entity identifiers are minted.
func WithIDGenerator(generate func() string) ServiceOption {
	return func(service *Service) {
		service.newID = generate
	}
}

// WithConfig replaces the default configuration.
func WithConfig(config Config) ServiceOption {
	return func(service *Service) {
		service.config = config
	}
}
